// ltm, the Lokalise Translation Manager, translates queued Lokalise keys with AI
// providers, runs project plugins around the translation and uploads the
// results back to Lokalise.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	_ "github.com/lokalise-tm/ltm/bundled"
	"github.com/lokalise-tm/ltm/i18n"
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

// setupLogging installs the structured logger used by the engine packages.
func setupLogging(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	stylelog.InitDefault(&tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
	})
	return slog.Default()
}

// errInterrupted marks a run stopped by SIGINT/SIGTERM.
var errInterrupted = errors.New("interrupted")

// ---------------------------------------------------------------------------
// Global flag
// ---------------------------------------------------------------------------

var rootDir string

// ---------------------------------------------------------------------------
// Root command
// ---------------------------------------------------------------------------

func newRootCmd() *cobra.Command {
	var opts translateOptions

	root := &cobra.Command{
		Use:   "ltm",
		Short: i18n.T("Lokalise Translation Manager: AI translation of Lokalise keys"),
		Long: `ltm — Lokalise Translation Manager.

Reads the queue of keys waiting for translation (reports/ready_to_translations.csv),
translates every key into its target languages with an AI provider and appends
each result to reports/translation_done.csv as soon as it is done. Interrupted
runs resume where they stopped.

Plugins in plugins/ run around the translation:
  ACTION      runs first; may replace the whole translation step (bypass)
  PROMPT      adds instructions to the translation prompt
  EXTENSION   runs last, e.g. to build reports

Running ltm without a command runs the translation with the configured defaults.

Commands:
  translate   Translate the queue
  plugins     Inspect and configure plugins
  upload      Push translations to Lokalise
  auth        Manage provider and Lokalise credentials
  unlock      Remove a stale run lock`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranslate(cmd.Context(), opts)
		},
	}

	// Global persistent flag, inherited by all subcommands
	root.PersistentFlags().StringVar(&rootDir, "root", ".", "Project root directory")

	root.AddCommand(
		newTranslateCmd(),
		newPluginsCmd(),
		newUploadCmd(),
		newAuthCmd(),
		newUnlockCmd(),
		newVersionCmd(),
	)

	return root
}

func main() {
	i18n.Init("")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if errors.Is(err, errInterrupted) {
			logWarning("%s", i18n.T("Interrupted. Completed keys are saved; run ltm again to resume."))
			os.Exit(130)
		}
		logError("%v", err)
		os.Exit(1)
	}
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
			fmt.Fprintf(out, "ltm version %s\n", version)
			fmt.Fprintf(out, "  commit:    %s\n", commit)
			fmt.Fprintf(out, "  built:     %s\n", date)
		},
	}
}
