// Package translate implements the batch translation pipeline: input lines
// are split into chunks, the chunks are translated concurrently under a fixed
// limit, results are put back into input order, and any chunk whose line
// count came back wrong is retried one line per request until it fits or the
// retry depth runs out.
package translate

import (
	"context"
	"log/slog"
	"time"
)

// Defaults used when the corresponding Options field is not positive.
const (
	DefaultChunkSize     = 50
	DefaultConcurrency   = 4
	DefaultMaxRetryDepth = 5
)

// Options controls a Translator.
type Options struct {
	// Language is the target language name used in the prompt (e.g. "Vietnamese").
	Language string
	// Model is the provider model identifier.
	Model string
	// ChunkSize is how many lines go into one first-attempt request.
	ChunkSize int
	// Concurrency is the maximum number of requests in flight.
	Concurrency int
	// MaxRetryDepth is the deepest retry round allowed. A chunk that still
	// mismatches at this depth fails the run.
	MaxRetryDepth int
	// RunID tags log records and usage events.
	RunID string
	// Logger receives pipeline diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
	// Recorder, if set, receives a UsageEvent for every chunk result.
	Recorder UsageRecorder
	// OnProgress is called after each round with resolved and total line counts.
	OnProgress func(done, total int)
}

func (o *Options) effectiveChunkSize() int {
	if o.ChunkSize > 0 {
		return o.ChunkSize
	}
	return DefaultChunkSize
}

func (o *Options) effectiveConcurrency() int {
	if o.Concurrency > 0 {
		return o.Concurrency
	}
	return DefaultConcurrency
}

func (o *Options) effectiveMaxRetryDepth() int {
	if o.MaxRetryDepth > 0 {
		return o.MaxRetryDepth
	}
	return DefaultMaxRetryDepth
}

// Report summarizes a completed run.
type Report struct {
	// Lines holds the translations, one per input line, in input order.
	Lines []string
	// Rounds is the number of dispatch rounds (1 when nothing was retried).
	Rounds int
	// Requests is the total number of chunk requests issued.
	Requests int
	// Retried is the number of chunks that came back with the wrong line count.
	Retried int
	// Usage sums token counts over every request.
	Usage Usage
}

// Translator runs the pipeline against a Client.
type Translator struct {
	client Client
	opts   Options
	logger *slog.Logger
}

// New returns a Translator that sends requests to client.
func New(client Client, opts Options) *Translator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.RunID != "" {
		logger = logger.With("run_id", opts.RunID)
	}
	return &Translator{client: client, opts: opts, logger: logger}
}

// Translate translates lines and returns exactly one output line per input
// line, in input order.
func (t *Translator) Translate(ctx context.Context, lines []string) ([]string, error) {
	rep, err := t.Run(ctx, lines)
	if err != nil {
		return nil, err
	}
	return rep.Lines, nil
}

// task is a contiguous run of input lines waiting to be translated at depth.
type task struct {
	offset int
	lines  []string
	depth  int
}

// Run translates lines and reports how the run went. Empty input returns
// immediately without contacting the client.
//
// Work is processed in rounds. Round 0 splits the whole input with the
// configured chunk size. Every chunk that comes back with the wrong number of
// lines becomes a task for the next round, which uses one line per request so
// the offending line is isolated. All tasks of a round share a depth.
func (t *Translator) Run(ctx context.Context, lines []string) (*Report, error) {
	t.logger.Debug("translate", "lines", len(lines), "language", t.opts.Language, "model", t.opts.Model)

	rep := &Report{Lines: make([]string, len(lines))}
	if len(lines) == 0 {
		return rep, nil
	}

	start := time.Now()
	total := len(lines)
	pending := []task{{offset: 0, lines: lines, depth: 0}}

	for len(pending) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		depth := pending[0].depth
		size := t.opts.effectiveChunkSize()
		if depth > 0 {
			size = 1
		}

		var chunks []Chunk
		for _, tk := range pending {
			chunks = appendChunks(chunks, tk.offset, tk.lines, size)
		}

		t.logger.Debug("dispatching round",
			"depth", depth, "chunks", len(chunks), "chunk_size", size,
			"concurrency", t.opts.effectiveConcurrency())

		results, err := dispatch(ctx, t.client, chunks, t.opts.effectiveConcurrency(), t.request)
		if err != nil {
			return nil, err
		}
		rep.Rounds++
		rep.Requests += len(chunks)

		pending, err = t.reassemble(ctx, depth, chunks, results, rep)
		if err != nil {
			return nil, err
		}

		if t.opts.OnProgress != nil {
			t.opts.OnProgress(total-pendingLines(pending), total)
		}
	}

	t.logger.Info("translation complete",
		"lines", total, "rounds", rep.Rounds, "requests", rep.Requests,
		"retried", rep.Retried, "total_tokens", rep.Usage.TotalTokens,
		"elapsed", time.Since(start))
	return rep, nil
}

func (t *Translator) request(c Chunk) Request {
	return Request{
		Seq:      c.Seq,
		Language: t.opts.Language,
		Model:    t.opts.Model,
		Lines:    c.Lines,
	}
}

func pendingLines(tasks []task) int {
	n := 0
	for _, tk := range tasks {
		n += len(tk.lines)
	}
	return n
}
