package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/minios-linux/batchtr/langmeta"
	"github.com/minios-linux/batchtr/server"
)

func newServeCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP translation API",
		Long: `Run the HTTP translation API.

Endpoints:
  GET  /health             Liveness check
  GET  /api/v1/languages   Known language codes and names
  POST /api/v1/translate   {"language": "vi", "lines": ["..."]}

Requests share one provider client, circuit breaker and translation memory.

Examples:
  batchtr serve --addr :8080 --provider groq --model llama-3.3-70b-versatile
  BATCHTR_EVENTS_URL=nats://127.0.0.1:4222 batchtr serve --model gemini-2.5-flash`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runServe(cmd.Context())
		},
	}

	cmd.Flags().String("addr", ":8080", "Listen address")
	cmd.Flags().String("lang", "", "Default target language for requests that omit one")
	addProviderFlags(cmd)

	return cmd
}

func (c *cli) runServe(ctx context.Context) error {
	cfg, logger, err := c.load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := buildStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	language := ""
	if cfg.Language != "" {
		language = langmeta.Name(cfg.Language)
	}

	srv := server.NewServer(server.Config{
		Addr:          cfg.Server.Addr,
		Client:        st.client,
		Language:      language,
		Model:         st.provider.Model,
		ChunkSize:     cfg.ChunkSize,
		Concurrency:   cfg.Concurrency,
		MaxRetryDepth: cfg.MaxRetryDepth,
		Recorder:      st.recorder(),
		Logger:        logger,
	})
	logInfo("Serving %s (%s) on %s", st.provider.Name, st.provider.Model, cfg.Server.Addr)
	return srv.Start(ctx)
}
