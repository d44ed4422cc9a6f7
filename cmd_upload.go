package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/lokalise-tm/ltm/config"
	"github.com/lokalise-tm/ltm/i18n"
	"github.com/lokalise-tm/ltm/lockfile"
	"github.com/lokalise-tm/ltm/lokalise"
	"github.com/lokalise-tm/ltm/progress"
	"github.com/lokalise-tm/ltm/settings"
)

// ---------------------------------------------------------------------------
// upload (push translations to Lokalise)
// ---------------------------------------------------------------------------

type uploadOptions struct {
	token, project string
	verbose        bool
	noProgress     bool
}

func newUploadCmd() *cobra.Command {
	var opts uploadOptions

	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Push finished translations to Lokalise",
		Long: `Push every translation in the output store to Lokalise.

Each language of each key is sent as a separate update, paced to stay below
the API rate limit. Successful updates are listed in reports/final_report.csv
and failed ones in reports/failed_update.csv. Blank translations are never
uploaded.

The API token is read from --token, LOKALISE_API_TOKEN or 'ltm auth login
--provider lokalise'; the project from --project, .ltm.yaml, LOKALISE_PROJECT_ID
or the stored credentials.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpload(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.token, "token", "", "Lokalise API token")
	cmd.Flags().StringVar(&opts.project, "project", "", "Lokalise project ID")
	cmd.Flags().BoolVar(&opts.verbose, "verbose", false, "Enable debug logging")
	cmd.Flags().BoolVar(&opts.noProgress, "no-progress", false, "Do not draw the progress bar")

	return cmd
}

func runUpload(ctx context.Context, o uploadOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := setupLogging(o.verbose)

	cfg, err := config.Load(rootDir)
	if err != nil {
		return err
	}

	project := o.project
	if project == "" {
		project = cfg.Lokalise.ProjectID
	}
	if project == "" {
		project = settings.GetProjectID()
	}
	client, err := lokalise.NewClient(settings.ResolveAPIKey(settings.Lokalise, o.token), project)
	if err != nil {
		return err
	}
	if cfg.Lokalise.BaseURL != "" {
		client.BaseURL = cfg.Lokalise.BaseURL
	}

	// Uploading while a translation run appends would send partial data.
	lock, err := lockfile.Acquire(cfg.Paths.LockDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	up := &lokalise.Uploader{
		Client:            client,
		RequestsPerSecond: cfg.Lokalise.RequestsPerSecond,
		Progress:          progress.Bar(os.Stderr),
		Logger:            logger.With("run_id", lock.RunID),
	}
	if o.noProgress || o.verbose {
		up.Progress = progress.Nop
	}

	logInfo(i18n.T("Uploading %s to project %s"), cfg.Paths.Output, project)
	res, err := up.Upload(ctx, cfg.Paths.Output, cfg.Paths.ReportsDir)
	if ctx.Err() != nil {
		return errInterrupted
	}
	if err != nil {
		return err
	}

	if res.Keys == 0 {
		logInfo("%s", i18n.T("Nothing to upload"))
		return nil
	}
	logSuccess(i18n.T("Uploaded %d translations (%d requests)"), res.Succeeded, res.Requests)
	if res.ReportPath != "" {
		logInfo(i18n.T("Report saved to %s"), res.ReportPath)
	}
	if res.Failed > 0 {
		logWarning(i18n.T("%d updates failed or were skipped, see %s"), res.Failed, res.FailedPath)
	}
	return nil
}

// ---------------------------------------------------------------------------
// unlock (remove a stale run lock)
// ---------------------------------------------------------------------------

func newUnlockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlock",
		Short: "Remove the run lock left by a crashed run",
		Long: `Remove ltm.lock from the lock directory.

Locks left by dead processes on this host are reclaimed automatically; use
this command for locks from another host or when the reclaim is not
possible. Make sure no other ltm run is active.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootDir)
			if err != nil {
				return err
			}
			holder, _ := lockfile.Read(cfg.Paths.LockDir)
			existed, err := lockfile.Remove(cfg.Paths.LockDir)
			if err != nil {
				return err
			}
			if !existed {
				logInfo("%s", i18n.T("No lock to remove"))
				return nil
			}
			if holder != nil {
				logSuccess(i18n.T("Removed lock held by pid %d on %s"), holder.PID, holder.Hostname)
			} else {
				logSuccess("%s", i18n.T("Removed lock"))
			}
			return nil
		},
	}
}
