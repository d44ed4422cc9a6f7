package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lokalise-tm/ltm/i18n"
	"github.com/lokalise-tm/ltm/settings"
)

// ---------------------------------------------------------------------------
// auth (manage stored credentials)
// ---------------------------------------------------------------------------

type authProvider struct {
	id   string
	name string
}

// authProviders are the entries kept in auth.json. Ollama needs no key.
var authProviders = []authProvider{
	{"openai", "OpenAI"},
	{"google", "Google AI Studio"},
	{"groq", "Groq Cloud"},
	{"custom-openai", "Custom OpenAI-compatible endpoint"},
	{settings.Lokalise, "Lokalise API"},
}

var errNoInput = errors.New("no input received")

func knownAuthProvider(id string) bool {
	for _, p := range authProviders {
		if p.id == id {
			return true
		}
	}
	return false
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
		Short: "Manage provider and Lokalise credentials",
		Long: `Store, remove and inspect credentials.

Credentials are kept in auth.json in the ltm data directory
($XDG_DATA_HOME/ltm, default ~/.local/share/ltm) with 0600 permissions.
Environment variables and --api-key always take priority over stored keys.

Examples:
  ltm auth login --provider openai
  ltm auth login --provider lokalise
  ltm auth list
  ltm auth logout --provider groq`,
	}

	cmd.AddCommand(newAuthLoginCmd(), newAuthLogoutCmd(), newAuthListCmd())
	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	var provider string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store credentials for a provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := bufio.NewScanner(cmd.InOrStdin())
			out := cmd.ErrOrStderr()

			if provider == "" {
				fmt.Fprintf(out, "\n%s%s%s\n", colorBlue, i18n.T("Select a provider"), colorReset)
				for i, p := range authProviders {
					fmt.Fprintf(out, "  %d. %s%-14s%s %s\n", i+1, colorYellow, p.id, colorReset, p.name)
				}
				choice, err := readLine(in, out, i18n.T("Enter choice (number or name): "))
				if err != nil {
					return err
				}
				for i, p := range authProviders {
					if choice == p.id || choice == fmt.Sprintf("%d", i+1) {
						provider = p.id
						break
					}
				}
				if provider == "" {
					return fmt.Errorf("invalid choice %q; use: ltm auth login --provider PROVIDER", choice)
				}
			}

			switch provider {
			case "openai", "google", "groq":
				return authLoginAPIKey(in, out, provider)
			case "custom-openai":
				return authLoginCustomOpenAI(in, out)
			case settings.Lokalise:
				return authLoginLokalise(in, out)
			default:
				return fmt.Errorf("unknown provider %q; run 'ltm auth login' for options", provider)
			}
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "Provider to authenticate")
	_ = cmd.RegisterFlagCompletionFunc("provider", completeAuthProviders)
	return cmd
}

// readLine writes label and returns the next trimmed input line.
func readLine(in *bufio.Scanner, out io.Writer, label string) (string, error) {
	fmt.Fprint(out, "  "+label)
	if !in.Scan() {
		if err := in.Err(); err != nil {
			return "", err
		}
		return "", errNoInput
	}
	return strings.TrimSpace(in.Text()), nil
}

// promptKeep is readLine with a current value kept on empty input.
func promptKeep(in *bufio.Scanner, out io.Writer, what, current string, secret bool) (string, error) {
	if current == "" {
		return readLine(in, out, fmt.Sprintf(i18n.T("Enter %s: "), what))
	}
	shown := current
	if secret {
		shown = settings.MaskKey(current)
	}
	fmt.Fprintf(out, "  %s %s%s%s\n", i18n.T("Current:"), colorYellow, shown, colorReset)
	v, err := readLine(in, out, fmt.Sprintf(i18n.T("Enter new %s, or press Enter to keep: "), what))
	if err != nil || v != "" {
		return v, err
	}
	return current, nil
}

func authLoginAPIKey(in *bufio.Scanner, out io.Writer, provider string) error {
	var current string
	if e := settings.Get(provider); e != nil {
		current = e.Key
	}
	key, err := promptKeep(in, out, "API key", current, true)
	if err != nil {
		return err
	}
	if key == "" {
		return errors.New("API key is required")
	}
	if err := settings.SetAPIKey(provider, key); err != nil {
		return fmt.Errorf("saving credentials: %w", err)
	}
	logSuccess(i18n.T("%s API key saved"), provider)
	return nil
}

func authLoginCustomOpenAI(in *bufio.Scanner, out io.Writer) error {
	existing := settings.Get("custom-openai")
	if existing == nil {
		existing = &settings.Info{}
	}
	baseURL, err := promptKeep(in, out, "endpoint URL (e.g. https://api.example.com/v1)", existing.BaseURL, false)
	if err != nil {
		return err
	}
	if baseURL == "" {
		return errors.New("endpoint URL is required")
	}
	// Some local endpoints accept any key, so it may stay empty.
	key, err := promptKeep(in, out, "API key (optional)", existing.Key, true)
	if err != nil {
		return err
	}
	if err := settings.SetAPIKeyWithBaseURL("custom-openai", key, baseURL); err != nil {
		return fmt.Errorf("saving credentials: %w", err)
	}
	logSuccess("%s", i18n.T("Custom OpenAI endpoint saved"))
	fmt.Fprintf(out, "\n  %s ltm translate --provider custom-openai --model MODEL_NAME\n\n", i18n.T("You can now use:"))
	return nil
}

func authLoginLokalise(in *bufio.Scanner, out io.Writer) error {
	existing := settings.Get(settings.Lokalise)
	if existing == nil {
		existing = &settings.Info{}
	}
	token, err := promptKeep(in, out, "API token", existing.Key, true)
	if err != nil {
		return err
	}
	if token == "" {
		return errors.New("API token is required")
	}
	project, err := promptKeep(in, out, "project ID", existing.ProjectID, false)
	if err != nil {
		return err
	}
	if err := settings.SetLokalise(token, project); err != nil {
		return fmt.Errorf("saving credentials: %w", err)
	}
	logSuccess("%s", i18n.T("Lokalise credentials saved"))
	return nil
}

func newAuthLogoutCmd() *cobra.Command {
	var provider string

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Remove stored credentials",
		Long: `Remove stored credentials for one or all providers.

If --provider is not specified, credentials for ALL providers are removed.

Examples:
  ltm auth logout                        Remove all credentials
  ltm auth logout --provider lokalise    Remove only the Lokalise token`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if provider == "" {
				if err := settings.RemoveAll(); err != nil {
					return fmt.Errorf("removing credentials: %w", err)
				}
				logSuccess("%s", i18n.T("All stored credentials removed"))
				return nil
			}
			if !knownAuthProvider(provider) {
				return fmt.Errorf("unknown provider %q; run 'ltm auth list' to see providers", provider)
			}
			if err := settings.Remove(provider); err != nil {
				return fmt.Errorf("removing %s credentials: %w", provider, err)
			}
			logSuccess(i18n.T("%s credentials removed"), provider)
			return nil
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "Provider to logout (default: all)")
	_ = cmd.RegisterFlagCompletionFunc("provider", completeAuthProviders)
	return cmd
}

func newAuthListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "Show stored credentials and status",
		Run: func(cmd *cobra.Command, args []string) {
			printAuthStatus(cmd.OutOrStdout())
		},
	}
}

func printAuthStatus(w io.Writer) {
	fmt.Fprintf(w, "\n%s%s%s\n", colorBlue, i18n.T("Stored Credentials"), colorReset)
	fmt.Fprintln(w, strings.Repeat("─", 60))

	for _, p := range authProviders {
		entry := settings.Get(p.id)
		switch {
		case entry != nil && entry.Key != "":
			status := fmt.Sprintf("%s%s%s (key: %s)", colorGreen, i18n.T("configured"), colorReset, settings.MaskKey(entry.Key))
			if entry.BaseURL != "" {
				status += fmt.Sprintf("\n  %14s endpoint: %s", "", entry.BaseURL)
			}
			if entry.ProjectID != "" {
				status += fmt.Sprintf("\n  %14s project: %s", "", entry.ProjectID)
			}
			fmt.Fprintf(w, "  %-14s %s\n", p.id, status)
		case entry != nil && entry.BaseURL != "":
			fmt.Fprintf(w, "  %-14s %s%s%s (no key)\n  %14s endpoint: %s\n",
				p.id, colorGreen, i18n.T("configured"), colorReset, "", entry.BaseURL)
		default:
			fmt.Fprintf(w, "  %-14s %s%s%s\n", p.id, colorRed, i18n.T("not configured"), colorReset)
		}
	}

	fmt.Fprintf(w, "\n  %s%s%s\n", colorYellow, i18n.T("Environment Variables"), colorReset)
	for _, p := range authProviders {
		name := settings.EnvVarForProvider(p.id)
		if name == "" || p.id == "custom-openai" {
			continue
		}
		if v := os.Getenv(name); v != "" {
			fmt.Fprintf(w, "  %-20s %s%s%s (overrides stored key)\n", name, colorGreen, settings.MaskKey(v), colorReset)
		} else {
			fmt.Fprintf(w, "  %-20s %s%s%s\n", name, colorRed, i18n.T("not set"), colorReset)
		}
	}
	fmt.Fprintln(w)
}
