package translate

import (
	"context"
	"sort"

	"github.com/minios-linux/batchtr/logging"
)

// reassemble puts a round's results back in Seq order, writes every
// count-matching translation into rep.Lines at its chunk's offset and
// returns the retry tasks for the chunks that mismatched.
func (t *Translator) reassemble(ctx context.Context, depth int, chunks []Chunk, results []Result, rep *Report) ([]task, error) {
	sort.Slice(results, func(i, j int) bool {
		return results[i].Seq < results[j].Seq
	})

	var retries []task
	for _, res := range results {
		c := chunks[res.Seq-1]
		t.recordUsage(ctx, depth, res, rep)

		if !res.Mismatch() {
			copy(rep.Lines[c.Offset:], res.Translated)
			continue
		}

		rep.Retried++
		t.logMismatch(ctx, depth, c, res)

		if depth >= t.opts.effectiveMaxRetryDepth() {
			return nil, &RetryExhaustedError{
				Depth:      depth,
				Offset:     c.Offset,
				Original:   res.Original,
				Translated: res.Translated,
			}
		}
		retries = append(retries, task{offset: c.Offset, lines: res.Original, depth: depth + 1})
	}
	return retries, nil
}

func (t *Translator) recordUsage(ctx context.Context, depth int, res Result, rep *Report) {
	t.logger.Debug("chunk translated",
		"seq", res.Seq, "depth", depth,
		"lines", len(res.Original), "returned", len(res.Translated),
		"usage", res.Usage)

	rep.Usage.PromptTokens += res.Usage.PromptTokens
	rep.Usage.CompletionTokens += res.Usage.CompletionTokens
	rep.Usage.TotalTokens += res.Usage.TotalTokens
	rep.Usage.Elapsed += res.Usage.Elapsed

	if t.opts.Recorder != nil {
		t.opts.Recorder.RecordUsage(ctx, UsageEvent{
			RunID:    t.opts.RunID,
			Seq:      res.Seq,
			Depth:    depth,
			Language: t.opts.Language,
			Lines:    len(res.Original),
			Returned: len(res.Translated),
			Usage:    res.Usage,
		})
	}
}

func (t *Translator) logMismatch(ctx context.Context, depth int, c Chunk, res Result) {
	for i, line := range res.Original {
		t.logger.Log(ctx, logging.LevelTrace, "original line", "line", c.Offset+i+1, "text", line)
	}
	for i, line := range res.Translated {
		t.logger.Log(ctx, logging.LevelTrace, "translated line", "index", i, "text", line)
	}
	t.logger.Error("translated line length error",
		"retry_depth", depth,
		"got", len(res.Translated), "want", len(res.Original),
		"first_line", c.Offset+1)
}
