// Package provider implements translate.Client on top of remote language
// model APIs: Google Gemini (genai SDK), OpenAI-compatible chat completion
// endpoints (OpenAI, Groq, Ollama, custom) and the Anthropic Messages API.
//
// All providers share the same request shape (see package prompt), the same
// bounded retry on rate limits and server errors, and the same handling of
// unparseable answers: they are returned as a Result with no translated
// lines so the pipeline retries them like any other line count mismatch.
package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/minios-linux/batchtr/prompt"
	"github.com/minios-linux/batchtr/translate"
)

// Provider IDs.
const (
	ProviderGoogle       = "google"
	ProviderOpenAI       = "openai"
	ProviderGroq         = "groq"
	ProviderOllama       = "ollama"
	ProviderCustomOpenAI = "custom-openai"
	ProviderAnthropic    = "anthropic"
)

// Config holds the configuration for one AI translation service.
type Config struct {
	// ID is the provider identifier (google, openai, groq, ...).
	ID string
	// Name is the display name.
	Name string
	// BaseURL is the API base URL (empty = SDK default).
	BaseURL string
	// APIKey is the authentication key (empty for local services).
	APIKey string
	// Model is the default model identifier.
	Model string
	// Proxy is an optional HTTP/HTTPS proxy URL.
	Proxy string
	// Timeout is the per-request timeout.
	Timeout time.Duration
	// MaxRetries is how many times a rate-limited or failed request is
	// retried before the error is returned. 0 disables retries.
	MaxRetries int
}

// DefaultProviders returns the built-in provider definitions.
func DefaultProviders() map[string]Config {
	return map[string]Config{
		ProviderGoogle: {
			ID:      ProviderGoogle,
			Name:    "Google AI (Gemini)",
			Timeout: 120 * time.Second,
		},
		ProviderOpenAI: {
			ID:      ProviderOpenAI,
			Name:    "OpenAI",
			BaseURL: "https://api.openai.com/v1",
			Timeout: 120 * time.Second,
		},
		ProviderGroq: {
			ID:      ProviderGroq,
			Name:    "Groq",
			BaseURL: "https://api.groq.com/openai/v1",
			Timeout: 60 * time.Second,
		},
		ProviderOllama: {
			ID:      ProviderOllama,
			Name:    "Ollama",
			BaseURL: "http://localhost:11434/v1",
			Timeout: 120 * time.Second,
		},
		ProviderCustomOpenAI: {
			ID:      ProviderCustomOpenAI,
			Name:    "Custom OpenAI",
			Timeout: 60 * time.Second,
		},
		ProviderAnthropic: {
			ID:      ProviderAnthropic,
			Name:    "Anthropic",
			BaseURL: "https://api.anthropic.com/v1",
			Timeout: 120 * time.Second,
		},
	}
}

// Resolve merges overrides into the built-in definition for id. Unknown IDs
// are treated as custom OpenAI-compatible endpoints.
func Resolve(id string, overrides Config) Config {
	cfg, ok := DefaultProviders()[strings.ToLower(id)]
	if !ok {
		cfg = Config{ID: ProviderCustomOpenAI, Name: id, Timeout: 60 * time.Second}
	}
	if overrides.BaseURL != "" {
		cfg.BaseURL = overrides.BaseURL
	}
	if overrides.APIKey != "" {
		cfg.APIKey = overrides.APIKey
	}
	if overrides.Model != "" {
		cfg.Model = overrides.Model
	}
	if overrides.Proxy != "" {
		cfg.Proxy = overrides.Proxy
	}
	if overrides.Timeout > 0 {
		cfg.Timeout = overrides.Timeout
	}
	cfg.MaxRetries = overrides.MaxRetries
	return cfg
}

// Validate checks that cfg has what its provider needs.
func Validate(cfg Config) error {
	if cfg.Model == "" {
		return fmt.Errorf("a model is required for provider '%s'", cfg.ID)
	}
	switch cfg.ID {
	case ProviderGoogle, ProviderOpenAI, ProviderGroq, ProviderAnthropic:
		if cfg.APIKey == "" {
			return fmt.Errorf("provider '%s' requires an API key (--api-key, BATCHTR_API_KEY or 'batchtr auth login')", cfg.ID)
		}
	case ProviderCustomOpenAI:
		if cfg.BaseURL == "" {
			return fmt.Errorf("provider '%s' requires an endpoint URL (--base-url)", cfg.ID)
		}
	}
	return nil
}

// Option configures a client built by New.
type Option func(*client)

// WithLogger sets the logger used for parse failures and retries.
func WithLogger(l *slog.Logger) Option {
	return func(c *client) { c.logger = l }
}

// WithPrompt sets the prompt builder (system prompt override, glossary).
func WithPrompt(b prompt.Builder) Option {
	return func(c *client) { c.builder = b }
}

// WithBackoff sets the base delay between retries of failed requests and
// the pause applied after a rate limit response without a Retry-After hint.
func WithBackoff(base, rateLimit time.Duration) Option {
	return func(c *client) {
		c.retry.backoff = base
		c.retry.rateLimitDelay = rateLimit
	}
}

// completer sends one prompt to a backend and returns the raw answer text.
type completer interface {
	complete(ctx context.Context, model string, p prompt.Prompt) (string, translate.Usage, error)
}

// New returns a translate.Client for cfg.
func New(ctx context.Context, cfg Config, opts ...Option) (translate.Client, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}

	c := &client{
		id:     cfg.ID,
		model:  cfg.Model,
		logger: slog.Default(),
		retry:  newRetrier(cfg.MaxRetries),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.retry.logger = c.logger

	httpClient := makeHTTPClient(cfg.Proxy, cfg.Timeout)

	var err error
	switch cfg.ID {
	case ProviderGoogle:
		c.backend, err = newGemini(ctx, cfg, httpClient)
	case ProviderAnthropic:
		c.backend = newAnthropic(cfg, httpClient)
	default:
		c.backend = newOpenAI(cfg, httpClient)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// client is the translate.Client shared by every backend.
type client struct {
	id      string
	model   string
	builder prompt.Builder
	backend completer
	retry   *retrier
	logger  *slog.Logger
}

func (c *client) TranslateChunk(ctx context.Context, req translate.Request) (translate.Result, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	p := c.builder.Build(req.Language, req.Lines)

	start := time.Now()
	var (
		text  string
		usage translate.Usage
	)
	err := c.retry.do(ctx, func(ctx context.Context) error {
		var err error
		text, usage, err = c.backend.complete(ctx, model, p)
		return err
	})
	if err != nil {
		return translate.Result{}, fmt.Errorf("%s: %w", c.id, err)
	}
	usage.Model = model
	usage.Elapsed = time.Since(start)

	return c.finish(req, text, usage), nil
}

// finish parses the answer. A parse failure is logged and turned into an
// empty translation so the pipeline's line count check triggers a retry.
func (c *client) finish(req translate.Request, text string, usage translate.Usage) translate.Result {
	res := translate.Result{
		Seq:      req.Seq,
		Original: req.Lines,
		Usage:    usage,
	}
	lines, err := prompt.Parse(text)
	if err != nil {
		c.logger.Error("JSON parse error", "provider", c.id, "seq", req.Seq, "error", err, "choice", truncate(strings.TrimSpace(text), 500))
		return res
	}
	res.Translated = lines
	return res
}

func makeHTTPClient(proxyURL string, timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if proxyURL != "" {
		parsed, err := url.Parse(proxyURL)
		if err == nil {
			transport.Proxy = http.ProxyURL(parsed)
		}
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	for maxLen > 0 && !utf8.RuneStart(s[maxLen]) {
		maxLen--
	}
	return s[:maxLen] + "..."
}
