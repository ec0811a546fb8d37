package translate

import (
	"context"
	"log/slog"
	"time"
)

// Request is a single chunk translation request sent to a Client.
type Request struct {
	// Seq is the chunk's 1-based sequence index within its round.
	Seq int
	// Language is the natural-language name of the target language.
	Language string
	// Model is the provider model identifier.
	Model string
	// Lines are the chunk's source lines.
	Lines []string
}

// Usage is per-request provider metadata. The pipeline only passes it
// through to logs and the UsageRecorder.
type Usage struct {
	Model            string        `json:"model,omitempty"`
	PromptTokens     int           `json:"prompt_tokens"`
	CompletionTokens int           `json:"completion_tokens"`
	TotalTokens      int           `json:"total_tokens"`
	Elapsed          time.Duration `json:"elapsed_ns"`
	// Cached is set when the result came from the translation memory.
	Cached bool `json:"cached,omitempty"`
}

// LogValue implements slog.LogValuer.
func (u Usage) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("model", u.Model),
		slog.Int("prompt_tokens", u.PromptTokens),
		slog.Int("completion_tokens", u.CompletionTokens),
		slog.Int("total_tokens", u.TotalTokens),
		slog.Duration("elapsed", u.Elapsed),
		slog.Bool("cached", u.Cached),
	)
}

// Result is what a Client returns for one chunk. Translated may hold a
// different number of lines than Original; the pipeline retries those.
type Result struct {
	Seq        int
	Original   []string
	Translated []string
	Usage      Usage
}

// Mismatch reports whether the translated line count differs from the source.
func (r Result) Mismatch() bool {
	return len(r.Translated) != len(r.Original)
}

// Client translates one chunk. A returned error is a transport or provider
// failure and aborts the whole run. A response that cannot be parsed must
// not be reported as an error: return a Result with empty Translated instead.
type Client interface {
	TranslateChunk(ctx context.Context, req Request) (Result, error)
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, req Request) (Result, error)

// TranslateChunk calls f(ctx, req).
func (f ClientFunc) TranslateChunk(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}

// UsageEvent describes one resolved chunk request.
type UsageEvent struct {
	RunID    string `json:"run_id,omitempty"`
	Seq      int    `json:"seq"`
	Depth    int    `json:"depth"`
	Language string `json:"language"`
	Lines    int    `json:"lines"`
	Returned int    `json:"returned"`
	Usage    Usage  `json:"usage"`
}

// UsageRecorder receives a UsageEvent for every chunk result, including
// mismatched ones. It is called from the reassembly loop, never concurrently.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, ev UsageEvent)
}
