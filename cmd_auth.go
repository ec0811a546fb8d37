package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/minios-linux/batchtr/provider"
	"github.com/minios-linux/batchtr/settings"
)

// authProviders is the ordered list of providers for the interactive menu.
var authProviders = []struct {
	id      string
	name    string
	desc    string
	helpURL string
	example string
}{
	{provider.ProviderGoogle, "Google AI Studio", "Gemini API key, free tier available",
		"https://aistudio.google.com/apikey", "batchtr translate FILE --lang vi --provider google --model gemini-2.5-flash"},
	{provider.ProviderOpenAI, "OpenAI", "GPT models",
		"https://platform.openai.com/api-keys", "batchtr translate FILE --lang vi --provider openai --model gpt-4o-mini"},
	{provider.ProviderGroq, "Groq Cloud", "fast inference, free tier available",
		"https://console.groq.com/keys", "batchtr translate FILE --lang vi --provider groq --model llama-3.3-70b-versatile"},
	{provider.ProviderAnthropic, "Anthropic", "Claude models",
		"https://console.anthropic.com/settings/keys", "batchtr translate FILE --lang vi --provider anthropic --model claude-sonnet-4-5"},
	{provider.ProviderCustomOpenAI, "Custom OpenAI", "any OpenAI-compatible endpoint",
		"", "batchtr translate FILE --lang vi --provider custom-openai --model MODEL_NAME"},
}

func authProviderIndex(id string) int {
	for i, p := range authProviders {
		if p.id == id {
			return i
		}
	}
	return -1
}

func completeAuthProviders(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	completions := make([]string, 0, len(authProviders))
	for _, p := range authProviders {
		completions = append(completions, fmt.Sprintf("%s\t%s", p.id, p.name))
	}
	return completions, cobra.ShellCompDirectiveNoFileComp
}

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage provider API keys",
		Long: `Manage API keys for AI providers.

Keys are stored in $XDG_DATA_HOME/batchtr/auth.json (mode 0600).
A key passed with --api-key or BATCHTR_API_KEY, or found in the provider's
own variable (GOOGLE_API_KEY, OPENAI_API_KEY, GROQ_API_KEY,
ANTHROPIC_API_KEY), takes precedence over the stored one.

API key providers:
  google        Google AI Studio (Gemini API key)
  openai        OpenAI
  groq          Groq Cloud (free tier available)
  anthropic     Anthropic
  custom-openai Custom OpenAI-compatible endpoint (URL + optional key)

No auth required:
  ollama        Local Ollama server

Examples:
  batchtr auth login                         Interactive provider selection
  batchtr auth login --provider google       Store Google AI API key
  batchtr auth logout --provider google      Remove Google API key
  batchtr auth logout                        Remove all credentials
  batchtr auth list                          Show all stored credentials`,
	}

	cmd.AddCommand(
		newAuthLoginCmd(),
		newAuthLogoutCmd(),
		newAuthListCmd(),
	)

	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	var providerID string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store an API key for a provider",
		Long: `Store an API key for a provider.

If --provider is not specified, you will be prompted to choose.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			scanner := bufio.NewScanner(cmd.InOrStdin())
			if providerID == "" {
				id, err := chooseAuthProvider(scanner, os.Stderr)
				if err != nil {
					return err
				}
				providerID = id
			}

			switch {
			case providerID == provider.ProviderCustomOpenAI:
				return authLoginCustomOpenAI(scanner, os.Stderr)
			case authProviderIndex(providerID) >= 0:
				return authLoginAPIKey(scanner, os.Stderr, providerID)
			default:
				return fmt.Errorf("unknown provider '%s'. Run 'batchtr auth login' for options", providerID)
			}
		},
	}

	cmd.Flags().StringVar(&providerID, "provider", "", "Provider to authenticate")
	_ = cmd.RegisterFlagCompletionFunc("provider", completeAuthProviders)

	return cmd
}

// chooseAuthProvider prints the provider menu and reads a number or a name.
func chooseAuthProvider(scanner *bufio.Scanner, w io.Writer) (string, error) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%sSelect provider to authenticate:%s\n\n", colorBlue, colorReset)
	for i, p := range authProviders {
		fmt.Fprintf(w, "  %d. %s%-13s%s %s\n", i+1, colorYellow, p.id, colorReset, p.desc)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Enter choice (number or name): ")

	if !scanner.Scan() {
		return "", errors.New("no input received")
	}
	choice := strings.TrimSpace(scanner.Text())

	if n, err := strconv.Atoi(choice); err == nil && n >= 1 && n <= len(authProviders) {
		return authProviders[n-1].id, nil
	}
	if authProviderIndex(choice) >= 0 {
		return choice, nil
	}
	return "", errors.New("invalid choice. Use: batchtr auth login --provider PROVIDER")
}

func authLoginAPIKey(scanner *bufio.Scanner, w io.Writer, providerID string) error {
	info := authProviders[authProviderIndex(providerID)]

	fmt.Fprintf(w, "\n%s%s — API Key Setup%s\n", colorBlue, info.name, colorReset)
	fmt.Fprintln(w, strings.Repeat("─", 60))
	fmt.Fprintln(w)

	if info.helpURL != "" {
		fmt.Fprintf(w, "  Get your API key from: %s%s%s\n\n", colorGreen, info.helpURL, colorReset)
	}

	existing := settings.GetAPIKey(providerID)
	if existing != "" {
		fmt.Fprintf(w, "  Current key: %s%s%s\n", colorYellow, settings.MaskKey(existing), colorReset)
		fmt.Fprintf(w, "  Enter new key to replace, or press Enter to keep: ")
	} else {
		fmt.Fprintf(w, "  Enter API key: ")
	}

	if !scanner.Scan() {
		return errors.New("no input received")
	}
	key := strings.TrimSpace(scanner.Text())

	if key == "" {
		if existing != "" {
			logInfo("Keeping existing key")
			return nil
		}
		return errors.New("no API key provided")
	}

	if err := settings.SetAPIKey(providerID, key, settings.GetBaseURL(providerID)); err != nil {
		return fmt.Errorf("saving API key: %w", err)
	}

	logSuccess("%s API key saved!", info.name)
	fmt.Fprintf(w, "\n  You can now use: %s\n\n", info.example)
	return nil
}

func authLoginCustomOpenAI(scanner *bufio.Scanner, w io.Writer) error {
	fmt.Fprintf(w, "\n%sCustom OpenAI-Compatible Endpoint%s\n", colorBlue, colorReset)
	fmt.Fprintln(w, strings.Repeat("─", 60))
	fmt.Fprintln(w)

	existing := settings.Get(provider.ProviderCustomOpenAI)
	if existing != nil && existing.BaseURL != "" {
		fmt.Fprintf(w, "  Current endpoint: %s%s%s\n", colorYellow, existing.BaseURL, colorReset)
		fmt.Fprintf(w, "  Enter new endpoint URL, or press Enter to keep: ")
	} else {
		fmt.Fprintf(w, "  Enter endpoint URL (e.g., https://api.example.com/v1): ")
	}

	if !scanner.Scan() {
		return errors.New("no input received")
	}
	baseURL := strings.TrimSpace(scanner.Text())
	if baseURL == "" && existing != nil {
		baseURL = existing.BaseURL
	}
	if baseURL == "" {
		return errors.New("endpoint URL is required")
	}

	if existing != nil && existing.Key != "" {
		fmt.Fprintf(w, "  Current key: %s%s%s\n", colorYellow, settings.MaskKey(existing.Key), colorReset)
		fmt.Fprintf(w, "  Enter new API key, or press Enter to keep (leave empty for none): ")
	} else {
		fmt.Fprintf(w, "  Enter API key (or press Enter if not required): ")
	}

	if !scanner.Scan() {
		return errors.New("no input received")
	}
	apiKey := strings.TrimSpace(scanner.Text())
	if apiKey == "" && existing != nil {
		apiKey = existing.Key
	}

	if err := settings.SetAPIKey(provider.ProviderCustomOpenAI, apiKey, baseURL); err != nil {
		return fmt.Errorf("saving credentials: %w", err)
	}

	logSuccess("Custom OpenAI endpoint saved!")
	fmt.Fprintf(w, "\n  You can now use: %s\n\n", authProviders[authProviderIndex(provider.ProviderCustomOpenAI)].example)
	return nil
}

func newAuthLogoutCmd() *cobra.Command {
	var providerID string

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Remove stored credentials",
		Long: `Remove stored credentials for one or all providers.

If --provider is not specified, credentials for ALL providers are removed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if providerID == "" {
				if err := settings.RemoveAll(); err != nil {
					return err
				}
				logSuccess("All stored credentials removed")
				return nil
			}
			if authProviderIndex(providerID) < 0 {
				return fmt.Errorf("unknown provider '%s'. Run 'batchtr auth list' to see providers", providerID)
			}
			if err := settings.Remove(providerID); err != nil {
				return fmt.Errorf("removing %s credentials: %w", providerID, err)
			}
			logSuccess("%s credentials removed", providerID)
			return nil
		},
	}

	cmd.Flags().StringVar(&providerID, "provider", "", "Provider to logout (default: all)")
	_ = cmd.RegisterFlagCompletionFunc("provider", completeAuthProviders)

	return cmd
}

func newAuthListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "Show stored credentials and status",
		Run: func(cmd *cobra.Command, args []string) {
			printCredentials(cmd.ErrOrStderr())
		},
	}
}

func printCredentials(w io.Writer) {
	fmt.Fprintf(w, "\n%sStored Credentials%s\n", colorBlue, colorReset)
	fmt.Fprintln(w, strings.Repeat("─", 60))

	fmt.Fprintf(w, "\n  %sAPI Key Providers%s\n", colorYellow, colorReset)
	for _, p := range authProviders {
		entry := settings.Get(p.id)
		switch {
		case entry != nil && entry.Key != "":
			status := fmt.Sprintf("%sconfigured%s (key: %s)", colorGreen, colorReset, settings.MaskKey(entry.Key))
			if entry.BaseURL != "" {
				status += fmt.Sprintf("\n  %14s endpoint: %s", "", entry.BaseURL)
			}
			fmt.Fprintf(w, "  %-14s %s\n", p.id, status)
		case entry != nil && entry.BaseURL != "":
			fmt.Fprintf(w, "  %-14s %sconfigured%s (no key)\n  %14s endpoint: %s\n", p.id, colorGreen, colorReset, "", entry.BaseURL)
		default:
			fmt.Fprintf(w, "  %-14s %snot configured%s\n", p.id, colorRed, colorReset)
		}
	}

	fmt.Fprintf(w, "\n  %sEnvironment Variables%s\n", colorYellow, colorReset)
	names := []string{"BATCHTR_API_KEY"}
	for _, p := range authProviders {
		if env := settings.EnvVarForProvider(p.id); env != "" && !slices.Contains(names, env) {
			names = append(names, env)
		}
	}
	for _, name := range names {
		if val := os.Getenv(name); val != "" {
			fmt.Fprintf(w, "  %-18s %s%s%s (overrides stored keys)\n", name+":", colorGreen, settings.MaskKey(val), colorReset)
		} else {
			fmt.Fprintf(w, "  %-18s %snot set%s\n", name+":", colorRed, colorReset)
		}
	}
	fmt.Fprintln(w)
}
