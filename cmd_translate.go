package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/minios-linux/batchtr/events"
	"github.com/minios-linux/batchtr/i18n"
	"github.com/minios-linux/batchtr/langmeta"
	"github.com/minios-linux/batchtr/linefile"
	"github.com/minios-linux/batchtr/provider"
	"github.com/minios-linux/batchtr/translate"
)

// providerCompletions lists --provider values for shell completion.
var providerCompletions = []string{
	"google\tGoogle AI (Gemini) — API key required",
	"openai\tOpenAI — API key required",
	"groq\tGroq — API key required",
	"anthropic\tAnthropic — API key required",
	"ollama\tOllama local server",
	"custom-openai\tCustom OpenAI-compatible endpoint",
}

// modelCompletions returns suggested models for a provider.
func modelCompletions(providerID string) []string {
	switch providerID {
	case provider.ProviderGoogle:
		return []string{"gemini-2.5-flash", "gemini-2.5-pro", "gemini-2.0-flash"}
	case provider.ProviderOpenAI:
		return []string{"gpt-4o", "gpt-4o-mini", "gpt-4.1"}
	case provider.ProviderGroq:
		return []string{"llama-3.3-70b-versatile", "mixtral-8x7b-32768"}
	case provider.ProviderAnthropic:
		return []string{"claude-sonnet-4-5", "claude-haiku-4-5"}
	case provider.ProviderOllama:
		return []string{"llama3.2", "qwen2.5", "mistral", "phi3"}
	default:
		return nil
	}
}

// addProviderFlags registers the flags shared by translate and serve.
func addProviderFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("provider", provider.ProviderGoogle, "AI provider: google, openai, groq, anthropic, ollama, custom-openai")
	f.String("model", "", "Model name (required)")
	f.String("api-key", "", "API key (or BATCHTR_API_KEY, or the provider's own variable)")
	f.String("base-url", "", "Custom API base URL")
	f.String("proxy", "", "HTTP/HTTPS proxy URL")
	f.Duration("timeout", 0, "Request timeout (default 2m)")
	f.Int("max-retries", 3, "Maximum retries on rate limits (429), server and network errors")

	f.Int("chunk-size", translate.DefaultChunkSize, "Lines per first-attempt request")
	f.Int("concurrency", translate.DefaultConcurrency, "Maximum requests in flight")
	f.Int("max-retry-depth", translate.DefaultMaxRetryDepth, "Deepest retry round for chunks that lose or gain lines")
	f.String("glossary", "", "YAML glossary of fixed term translations")
	f.String("prompt", "", "File with a custom system prompt (use {{targetLang}} placeholder)")
	f.String("memory", "", "Translation memory database (default: data dir memory.db)")
	f.Bool("no-memory", false, "Do not read or write the translation memory")
	f.Int("breaker-failures", 5, "Consecutive provider failures that pause requests (0 = off)")
	f.String("events-url", "", "NATS server for usage events")

	_ = cmd.RegisterFlagCompletionFunc("provider", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return providerCompletions, cobra.ShellCompDirectiveNoFileComp
	})
	_ = cmd.RegisterFlagCompletionFunc("model", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		p, _ := cmd.Flags().GetString("provider")
		return modelCompletions(strings.ToLower(p)), cobra.ShellCompDirectiveNoFileComp
	})
}

func newTranslateCmd(c *cli) *cobra.Command {
	var (
		output string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "translate [FILE]",
		Short: "Translate a text file line by line",
		Long: `Translate a text file line by line using AI providers.

Reads FILE (or stdin when FILE is missing or "-") and writes exactly one
translated line per input line to --output (default stdout).

Examples:
  # Translate a file into Vietnamese with Google AI
  batchtr translate chapter.txt --lang vi --model gemini-2.5-flash -o chapter.vi.txt

  # Pipe through a local Ollama model
  cat notes.txt | batchtr translate --lang de --provider ollama --model qwen2.5

  # Show the chunk plan without calling the provider
  batchtr translate book.txt --lang ru --chunk-size 20 --dry-run`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := linefile.Stdio
			if len(args) == 1 {
				input = args[0]
			}
			return c.runTranslate(cmd.Context(), input, output, dryRun)
		},
	}

	cmd.Flags().String("lang", "", "Target language: code (vi, pt_BR) or name")
	cmd.Flags().StringVarP(&output, "output", "o", linefile.Stdio, "Output file (- for stdout)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show the chunk plan without calling AI")
	addProviderFlags(cmd)

	_ = cmd.RegisterFlagCompletionFunc("lang", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return langmeta.Codes(), cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func (c *cli) runTranslate(ctx context.Context, input, output string, dryRun bool) error {
	cfg, logger, err := c.load()
	if err != nil {
		return err
	}
	if strings.TrimSpace(cfg.Language) == "" {
		return errors.New("a target language is required (--lang or language: in .batchtr.yaml)")
	}
	language := langmeta.Name(cfg.Language)

	lines, err := linefile.Read(input)
	if err != nil {
		return err
	}

	if dryRun {
		printPlan(os.Stdout, language, translate.Split(lines, cfg.ChunkSize))
		return nil
	}
	if len(lines) == 0 {
		logWarning("%s", i18n.T("Nothing to translate"))
		return linefile.Write(output, lines)
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

	runID := uuid.NewString()
	logInfo(i18n.T("Translating %s into %s with %s (%s)"),
		countLines(len(lines)), language, st.provider.Name, st.provider.Model)
	logger.Debug("run started", "run_id", runID, "input", input, "output", output)

	opts := cfg.Options(language)
	opts.RunID = runID
	opts.Logger = logger
	opts.Recorder = st.recorder()
	progress := progressPrinter(logger)
	opts.OnProgress = progress

	report, err := translate.New(st.client, opts).Run(ctx, lines)
	if err != nil && progress != nil {
		fmt.Fprintln(os.Stderr)
	}

	if st.publisher != nil {
		st.publisher.PublishRun(ctx, runSummary(runID, language, len(lines), report, err))
	}
	if err != nil {
		return translateError(err)
	}

	if err := linefile.Write(output, report.Lines); err != nil {
		return err
	}

	printStats(os.Stderr, len(lines), report)
	if output != linefile.Stdio {
		logSuccess(i18n.T("Wrote %s"), output)
	}
	return nil
}

// progressPrinter returns a progress callback, or nil when structured logs
// would be interleaved with the bar.
func progressPrinter(logger *slog.Logger) func(done, total int) {
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		return nil
	}
	return func(done, total int) {
		percent := 0
		if total > 0 {
			percent = done * 100 / total
		}
		fmt.Fprintf(os.Stderr, "\r  %s  %d/%d", progressBar(percent, 30), done, total)
		if done >= total {
			fmt.Fprintln(os.Stderr)
		}
	}
}

// progressBar renders percent as a colored bar width cells wide.
func progressBar(percent, width int) string {
	percent = max(0, min(percent, 100))
	filled := percent * width / 100

	color := colorRed
	switch {
	case percent >= 100:
		color = colorGreen
	case percent >= 50:
		color = colorYellow
	}
	return color + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + colorReset + fmt.Sprintf(" %3d%%", percent)
}

// printPlan writes the chunk layout of the first round.
func printPlan(w io.Writer, language string, chunks []translate.Chunk) {
	lines := 0
	for _, ch := range chunks {
		lines += len(ch.Lines)
	}
	fmt.Fprintf(w, i18n.T("Chunk plan for %s: %s, %s")+"\n", language, countLines(lines),
		fmt.Sprintf(i18n.N("%d chunk", "%d chunks", len(chunks)), len(chunks)))
	for _, ch := range chunks {
		fmt.Fprintf(w, "  #%-4d lines %d-%d (%d)\n", ch.Seq, ch.Offset+1, ch.Offset+len(ch.Lines), len(ch.Lines))
	}
}

// countLines formats "N lines" in the message language.
func countLines(n int) string {
	return fmt.Sprintf(i18n.N("%d line", "%d lines", n), n)
}

func printStats(w io.Writer, n int, r *translate.Report) {
	fmt.Fprintf(w, colorGreen+"[OK]"+colorReset+" %s: %s\n", i18n.T("Translation complete"), countLines(n))
	fmt.Fprintf(w, "  "+i18n.T("Rounds: %d, requests: %d, retried chunks: %d")+"\n", r.Rounds, r.Requests, r.Retried)
	if r.Usage.TotalTokens > 0 {
		fmt.Fprintf(w, "  "+i18n.T("Tokens: %d (prompt %d, completion %d)")+"\n",
			r.Usage.TotalTokens, r.Usage.PromptTokens, r.Usage.CompletionTokens)
	}
}

func runSummary(runID, language string, lines int, r *translate.Report, err error) events.RunSummary {
	s := events.RunSummary{RunID: runID, Language: language, Lines: lines}
	if r != nil {
		s.Rounds, s.Requests, s.Retried, s.Usage = r.Rounds, r.Requests, r.Retried, r.Usage
	}
	if err != nil {
		s.Error = err.Error()
	}
	return s
}

// translateError adds a hint to errors a user can act on.
func translateError(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return errors.New(i18n.T("translation cancelled"))
	case errors.Is(err, translate.ErrRetryExhausted):
		return fmt.Errorf("%w (try a smaller --chunk-size or another model)", err)
	case errors.Is(err, provider.ErrCircuitOpen):
		return fmt.Errorf("%w: the provider failed repeatedly, try again later", err)
	}
	return err
}
