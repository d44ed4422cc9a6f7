package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lokalise-tm/ltm/config"
	"github.com/lokalise-tm/ltm/i18n"
	"github.com/lokalise-tm/ltm/langmeta"
	"github.com/lokalise-tm/ltm/lockfile"
	"github.com/lokalise-tm/ltm/plugin"
	"github.com/lokalise-tm/ltm/progress"
	"github.com/lokalise-tm/ltm/settings"
	"github.com/lokalise-tm/ltm/translate"
)

// ---------------------------------------------------------------------------
// translate (the translation pipeline)
// ---------------------------------------------------------------------------

type translateOptions struct {
	provider, apiKey, model, baseURL, proxy string
	timeout                                 time.Duration
	maxAttempts                             int
	initialDelay                            time.Duration
	verbose, noProgress                     bool
}

func newTranslateCmd() *cobra.Command {
	var opts translateOptions

	cmd := &cobra.Command{
		Use:   "translate",
		Short: "Translate the queued keys using AI",
		Long: `Translate the keys in the input queue using an AI provider.

Keys already present in the output store are skipped, so an interrupted run
continues where it stopped. Failed translations are left blank and logged;
they never abort the run.

Provider settings come from .ltm.yaml, LTM_* environment variables and the
flags below, in increasing priority. API keys are looked up in --api-key,
the provider's environment variable and 'ltm auth login', in that order.

Examples:
  # Translate with the configured provider
  ltm translate

  # Translate with Gemini
  ltm translate --provider google --model gemini-2.0-flash

  # Use a local Ollama server, with debug logging
  ltm translate --provider ollama --model llama3.2 --verbose`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranslate(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.provider, "provider", "", "AI provider: openai, google, groq, ollama, custom-openai")
	cmd.Flags().StringVar(&opts.model, "model", "", "Model name (default depends on provider)")
	cmd.Flags().StringVar(&opts.apiKey, "api-key", "", "API key (overrides environment and stored key)")
	cmd.Flags().StringVar(&opts.baseURL, "base-url", "", "Custom API base URL")
	cmd.Flags().StringVar(&opts.proxy, "proxy", "", "HTTP/HTTPS proxy URL")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "Request timeout (0 = provider default)")
	cmd.Flags().IntVar(&opts.maxAttempts, "max-attempts", 0, "Attempts per translation on transient errors (0 = configured)")
	cmd.Flags().DurationVar(&opts.initialDelay, "initial-delay", 0, "First retry wait, doubled on each retry (0 = configured)")
	cmd.Flags().BoolVar(&opts.verbose, "verbose", false, "Enable debug logging")
	cmd.Flags().BoolVar(&opts.noProgress, "no-progress", false, "Do not draw the progress bar")

	_ = cmd.RegisterFlagCompletionFunc("provider", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{
			"openai\tOpenAI — API key required",
			"google\tGoogle AI (Gemini) — API key required",
			"groq\tGroq — API key required",
			"ollama\tOllama local server",
			"custom-openai\tCustom OpenAI-compatible endpoint",
		}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

// applyFlags lets explicit flags win over the file and environment.
func (o translateOptions) applyFlags(cfg *config.File) {
	if o.provider != "" {
		cfg.Provider.ID = o.provider
	}
	if o.model != "" {
		cfg.Provider.Model = o.model
	}
	if o.baseURL != "" {
		cfg.Provider.BaseURL = o.baseURL
	}
	if o.proxy != "" {
		cfg.Provider.Proxy = o.proxy
	}
	if o.timeout > 0 {
		cfg.Provider.Timeout = o.timeout
	}
	if o.maxAttempts > 0 {
		cfg.Retry.MaxAttempts = o.maxAttempts
	}
	if o.initialDelay > 0 {
		cfg.Retry.InitialDelay = o.initialDelay
	}
}

// resolveProvider completes the provider with credentials.
func resolveProvider(cfg *config.File, flagKey string) (translate.Provider, error) {
	p := cfg.TranslateProvider()
	p.APIKey = settings.ResolveAPIKey(p.ID, flagKey)
	if p.BaseURL == "" {
		p.BaseURL = settings.GetBaseURL(p.ID)
	}
	p, err := translate.Resolve(p)
	if errors.Is(err, translate.ErrMissingAPIKey) {
		env := settings.EnvVarForProvider(p.ID)
		return p, fmt.Errorf("%w: set %s or run 'ltm auth login --provider %s'", err, env, p.ID)
	}
	return p, err
}

func progressFor(o translateOptions) progress.Starter {
	if o.noProgress || o.verbose {
		return progress.Nop
	}
	return progress.Bar(os.Stderr)
}

// newPluginRunner builds the catalog and runner for a project.
func newPluginRunner(cfg *config.File, inputPath string, logger *slog.Logger) (*plugin.Catalog, *plugin.Runner) {
	catalog := plugin.NewCatalog(cfg.Paths.PluginsDir, cfg.Paths.PluginConfig, logger)
	runner := plugin.NewRunner(plugin.NewManifestLoader(cfg.Paths.PluginsDir), plugin.Env{
		InputPath:  inputPath,
		OutputPath: cfg.Paths.Output,
		ReportsDir: cfg.Paths.ReportsDir,
	}, logger)
	runner.FailOnError = catalog.FailOnError()
	return catalog, runner
}

func runTranslate(ctx context.Context, o translateOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := setupLogging(o.verbose)

	cfg, err := config.Load(rootDir)
	if err != nil {
		return err
	}
	o.applyFlags(cfg)
	langmeta.Merge(cfg.Languages)

	prov, err := resolveProvider(cfg, o.apiKey)
	if err != nil {
		return err
	}

	lock, err := lockfile.Acquire(cfg.Paths.LockDir)
	if err != nil {
		return err
	}
	defer lock.Release()
	logger = logger.With("run_id", lock.RunID)

	prompt, err := translate.LoadPrompts()
	if err != nil {
		logWarning(i18n.T("Using built-in prompt: %v"), err)
	}
	tr, err := translate.New(ctx, prov, prompt)
	if err != nil {
		return err
	}

	input := cfg.InputPath()
	if input == cfg.Paths.MockInput {
		logWarning(i18n.T("Using mock input %s"), input)
	}

	catalog, runner := newPluginRunner(cfg, input, logger)
	if res, err := catalog.Sync(); err != nil {
		logWarning(i18n.T("Plugin sync failed: %v"), err)
	} else if len(res.Added) > 0 {
		logInfo(i18n.T("New plugins enabled: %v"), res.Added)
	}

	logInfo(i18n.T("Provider: %s, model: %s"), prov.Name, prov.Model)

	job := &translate.Job{
		InputPath:  input,
		OutputPath: cfg.Paths.Output,
		Translator: tr,
		Retry:      cfg.Retry,
		Catalog:    catalog,
		Plugins:    runner,
		Progress:   progressFor(o),
		Logger:     logger,
	}
	sum, err := job.Run(ctx)
	if ctx.Err() != nil {
		return errInterrupted
	}
	printSummary(sum)
	return err
}

func printSummary(sum translate.Summary) {
	if sum.Bypassed {
		logSuccess("%s", i18n.T("Translation bypassed by an ACTION plugin"))
		return
	}
	if sum.Pending == 0 {
		logSuccess("%s", i18n.T("Nothing to translate: every queued key is already done"))
		return
	}
	logSuccess(i18n.T("Saved %d keys (%d translations) in %s"),
		sum.Persisted, sum.Translated, sum.Elapsed.Round(time.Second))
	if sum.Failed > 0 {
		logWarning(i18n.T("%d translations failed and were left blank"), sum.Failed)
	}
	if sum.Skipped > 0 {
		logWarning(i18n.T("%d malformed rows skipped; they will be retried on the next run"), sum.Skipped)
	}
}
