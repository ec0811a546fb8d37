package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/minios-linux/batchtr/langmeta"
	"github.com/minios-linux/batchtr/memory"
	"github.com/minios-linux/batchtr/settings"
)

func newMemoryCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect or prune the translation memory",
		Long: `Inspect or prune the translation memory.

Translated lines are cached per model, target language and prompt. The
prompt part covers the system prompt (--prompt or prompt.txt) and the
glossary: editing either makes earlier entries unreachable until the old
prompt is restored. A chunk whose lines are all cached is answered without
calling the provider. "forget" drops a language across all models and
prompts.

Examples:
  batchtr memory stats
  batchtr memory forget --lang vi`,
	}
	cmd.PersistentFlags().String("memory", "", "Translation memory database (default: data dir memory.db)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "stats",
			Short: "Show the number of cached lines",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := c.openMemory()
				if err != nil {
					return err
				}
				defer store.Close()

				n, err := store.Len(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", store.Path(), countLines(n))
				return nil
			},
		},
		newMemoryForgetCmd(c),
	)
	return cmd
}

func newMemoryForgetCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forget",
		Short: "Drop cached lines for one target language",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := c.load()
			if err != nil {
				return err
			}
			if cfg.Language == "" {
				return errors.New("a target language is required (--lang)")
			}
			store, err := c.openMemory()
			if err != nil {
				return err
			}
			defer store.Close()

			language := langmeta.Name(cfg.Language)
			n, err := store.Forget(cmd.Context(), language)
			if err != nil {
				return err
			}
			logSuccess("Removed %s of %s", countLines(int(n)), language)
			return nil
		},
	}
	cmd.Flags().String("lang", "", "Target language: code (vi, pt_BR) or name")
	return cmd
}

func (c *cli) openMemory() (*memory.Store, error) {
	cfg, _, err := c.load()
	if err != nil {
		return nil, err
	}
	path := cfg.Memory
	if path == "" {
		if path, err = settings.MemoryPath(); err != nil {
			return nil, err
		}
	}
	return memory.Open(path)
}
