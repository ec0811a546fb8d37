// Command batchtr translates text files line by line through AI providers.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/minios-linux/batchtr/config"
	"github.com/minios-linux/batchtr/i18n"
	"github.com/minios-linux/batchtr/logging"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// ANSI colors
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[0;31m"
	colorGreen  = "\033[0;32m"
	colorYellow = "\033[1;33m"
	colorBlue   = "\033[0;34m"
)

func logInfo(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorBlue+"[INFO]"+colorReset+" "+format+"\n", args...)
}

func logSuccess(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorGreen+"[OK]"+colorReset+" "+format+"\n", args...)
}

func logWarning(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorYellow+"[WARN]"+colorReset+" "+format+"\n", args...)
}

func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorRed+"[ERROR]"+colorReset+" "+format+"\n", args...)
}

// flagKeys maps command line flags to config keys. Every command binds the
// subset of these flags it defines.
var flagKeys = map[string]string{
	"provider":         "provider",
	"model":            "model",
	"api-key":          "api_key",
	"base-url":         "base_url",
	"proxy":            "proxy",
	"lang":             "language",
	"chunk-size":       "chunk_size",
	"concurrency":      "concurrency",
	"max-retry-depth":  "max_retry_depth",
	"max-retries":      "max_retries",
	"timeout":          "timeout",
	"glossary":         "glossary",
	"memory":           "memory",
	"no-memory":        "no_memory",
	"prompt":           "prompt",
	"log-level":        "log.level",
	"log-format":       "log.format",
	"breaker-failures": "breaker.failures",
	"events-url":       "events.url",
	"addr":             "server.addr",
}

// cli carries state shared by every command of one invocation.
type cli struct {
	v       *viper.Viper
	cfgFile string
	verbose bool
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}

	root := &cobra.Command{
		Use:   "batchtr",
		Short: "Translate text files line by line with AI providers",
		Long: `batchtr — batch line translation with AI providers.

Input is split into chunks that are translated concurrently. The output has
exactly one line per input line, in input order: chunks that come back with
the wrong number of lines are retried one line per request.

Commands:
  translate   Translate a file (or stdin) into one target language
  serve       Run the HTTP translation API
  memory      Inspect or prune the translation memory
  auth        Manage provider API keys
  version     Show version information

AI Providers:
  google         Google AI (Gemini) — API key
  openai         OpenAI — API key
  groq           Groq — API key
  anthropic      Anthropic — API key
  ollama         Ollama local server
  custom-openai  Custom OpenAI-compatible endpoint

Settings are read from flags, BATCHTR_* environment variables and
.batchtr.yaml (working directory or home), in that order.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			i18n.Init("")
			if _, err := config.Init(c.v, c.cfgFile); err != nil {
				return err
			}
			return config.BindFlags(c.v, cmd.Flags(), flagKeys)
		},
	}

	root.PersistentFlags().StringVar(&c.cfgFile, "config", "", "Config file (default: ./.batchtr.yaml or ~/.batchtr.yaml)")
	root.PersistentFlags().String("log-level", "info", "Log level: trace, debug, info, warn, error")
	root.PersistentFlags().String("log-format", logging.FormatText, "Log format: text or json")
	root.PersistentFlags().BoolVar(&c.verbose, "verbose", false, "Enable detailed logging (same as --log-level debug)")

	root.AddCommand(
		newTranslateCmd(c),
		newServeCmd(c),
		newMemoryCmd(c),
		newAuthCmd(),
		newVersionCmd(),
	)

	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logError("%v", err)
		os.Exit(1)
	}
}

// load decodes the settings and builds the diagnostics logger.
func (c *cli) load() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(c.v)
	if err != nil {
		return nil, nil, err
	}
	if c.verbose && !strings.EqualFold(cfg.Log.Level, "trace") {
		cfg.Log.Level = "debug"
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logging.New(os.Stderr, level, cfg.Log.Format), nil
}

// ---------------------------------------------------------------------------
// version (display version information)
// ---------------------------------------------------------------------------

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display version, commit hash, and build date.`,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "batchtr version %s\n", version)
			fmt.Fprintf(out, "  commit:    %s\n", commit)
			fmt.Fprintf(out, "  built:     %s\n", date)
		},
	}
}
