package translate

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// dispatch sends every chunk through client with at most limit requests in
// flight. A new chunk is admitted as soon as any running request finishes.
// Results come back in completion order; callers restore order by Seq.
//
// The first client error cancels the remaining requests of the round and is
// returned as a *ProviderError.
func dispatch(ctx context.Context, client Client, chunks []Chunk, limit int, newRequest func(Chunk) Request) ([]Result, error) {
	if limit <= 0 {
		limit = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	results := make(chan Result, len(chunks))
	for _, c := range chunks {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			// A slot may free up only after a sibling has already failed.
			if gctx.Err() != nil {
				return nil
			}
			res, err := client.TranslateChunk(gctx, newRequest(c))
			if err != nil {
				return &ProviderError{Seq: c.Seq, Err: err}
			}
			// The chunk is the source of truth for identity and input.
			res.Seq = c.Seq
			res.Original = c.Lines
			results <- res
			return nil
		})
	}

	err := g.Wait()
	close(results)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	collected := make([]Result, 0, len(chunks))
	for res := range results {
		collected = append(collected, res)
	}
	return collected, nil
}
