package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/minios-linux/batchtr/config"
	"github.com/minios-linux/batchtr/events"
	"github.com/minios-linux/batchtr/glossary"
	"github.com/minios-linux/batchtr/memory"
	"github.com/minios-linux/batchtr/prompt"
	"github.com/minios-linux/batchtr/provider"
	"github.com/minios-linux/batchtr/settings"
	"github.com/minios-linux/batchtr/translate"
)

// stack is a ready translation client plus the resources behind it.
type stack struct {
	client    translate.Client
	provider  provider.Config
	memory    *memory.Store
	publisher *events.Publisher
}

// recorder returns the usage recorder, or nil when events are disabled.
func (s *stack) recorder() translate.UsageRecorder {
	if s.publisher == nil {
		return nil
	}
	return s.publisher
}

func (s *stack) Close() {
	if s.publisher != nil {
		s.publisher.Close()
	}
	if s.memory != nil {
		s.memory.Close()
	}
}

// resolveProvider merges config values, environment keys and stored
// credentials into a provider configuration.
func resolveProvider(cfg *config.Config) provider.Config {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = settings.GetBaseURL(cfg.Provider)
	}
	return provider.Resolve(cfg.Provider, provider.Config{
		APIKey:     settings.ResolveAPIKey(cfg.Provider, cfg.APIKey),
		BaseURL:    baseURL,
		Model:      cfg.Model,
		Proxy:      cfg.Proxy,
		Timeout:    cfg.Timeout,
		MaxRetries: cfg.MaxRetries,
	})
}

// promptBuilder loads the glossary and the system prompt override. The
// --prompt file wins over the prompt.txt in the data directory.
func promptBuilder(cfg *config.Config) (prompt.Builder, error) {
	g, err := glossary.Load(cfg.Glossary)
	if err != nil {
		return prompt.Builder{}, err
	}

	system := settings.LoadPrompt()
	if cfg.Prompt != "" {
		data, err := os.ReadFile(cfg.Prompt)
		if err != nil {
			return prompt.Builder{}, fmt.Errorf("reading prompt: %w", err)
		}
		system = strings.TrimSpace(string(data))
	}
	return prompt.Builder{SystemPrompt: system, Glossary: g}, nil
}

// buildStack assembles provider client, circuit breaker, translation memory
// and usage publisher, in that order of wrapping.
func buildStack(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*stack, error) {
	pcfg := resolveProvider(cfg)
	if err := provider.Validate(pcfg); err != nil {
		return nil, err
	}

	builder, err := promptBuilder(cfg)
	if err != nil {
		return nil, err
	}
	if n := builder.Glossary.Len(); n > 0 {
		logger.Debug("glossary loaded", "path", cfg.Glossary, "terms", n)
	}

	client, err := provider.New(ctx, pcfg, provider.WithLogger(logger), provider.WithPrompt(builder))
	if err != nil {
		return nil, err
	}
	client = provider.WithBreaker(client, provider.BreakerSettings{
		Name:     pcfg.ID,
		Failures: uint32(cfg.Breaker.Failures),
		Timeout:  cfg.Breaker.Timeout,
		Logger:   logger,
	})

	s := &stack{client: client, provider: pcfg}

	if !cfg.NoMemory {
		path := cfg.Memory
		if path == "" {
			if path, err = settings.MemoryPath(); err != nil {
				return nil, err
			}
		}
		store, err := memory.Open(path)
		if err != nil {
			return nil, err
		}
		s.memory = store
		scope := builder.Fingerprint()
		s.client = store.Wrap(s.client, pcfg.Model, scope, logger)
		logger.Debug("translation memory opened", "path", store.Path(), "scope", scope)
	}

	if cfg.Events.URL != "" {
		pub, err := events.Connect(cfg.Events.URL, cfg.Events.Token, cfg.Events.Subject, logger)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.publisher = pub
	}

	return s, nil
}
