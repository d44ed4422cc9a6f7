package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lokalise-tm/ltm/config"
	"github.com/lokalise-tm/ltm/i18n"
	"github.com/lokalise-tm/ltm/plugin"
)

// ---------------------------------------------------------------------------
// plugins (inspect and configure plugins)
// ---------------------------------------------------------------------------

func newPluginsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "Inspect and configure plugins",
		Long: `Inspect and configure the plugins in the plugins directory.

A plugin is a YAML manifest declaring its capabilities (ACTION, PROMPT,
EXTENSION) and entry points. Their enabled state is kept in
config/plugins.yaml; new plugins are enabled automatically unless
auto_discover_new_plugins is off.

Examples:
  ltm plugins status
  ltm plugins sync
  ltm plugins disable inject.yaml`,
	}

	cmd.AddCommand(
		newPluginsStatusCmd(),
		newPluginsSyncCmd(),
		newPluginsToggleCmd(true),
		newPluginsToggleCmd(false),
	)
	return cmd
}

func loadCatalog() (*plugin.Catalog, error) {
	cfg, err := config.Load(rootDir)
	if err != nil {
		return nil, err
	}
	return plugin.NewCatalog(cfg.Paths.PluginsDir, cfg.Paths.PluginConfig, setupLogging(false)), nil
}

func newPluginsStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Aliases: []string{"list", "ls"},
		Short:   "Show discovered plugins and their state",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := loadCatalog()
			if err != nil {
				return err
			}
			rows, err := catalog.Status()
			if err != nil {
				return err
			}
			printPluginStatus(cmd.OutOrStdout(), rows)
			return nil
		},
	}
}

func printPluginStatus(w io.Writer, rows []plugin.Status) {
	if len(rows) == 0 {
		fmt.Fprintln(w, i18n.T("No plugins found."))
		return
	}
	fmt.Fprintf(w, "\n%s%s%s\n", colorBlue, i18n.T("Plugins"), colorReset)
	fmt.Fprintln(w, strings.Repeat("─", 60))
	for _, r := range rows {
		state := colorGreen + i18n.T("enabled") + colorReset
		switch {
		case r.Missing:
			state = colorRed + i18n.T("missing") + colorReset
		case !r.Enabled:
			state = colorYellow + i18n.T("disabled") + colorReset
		}
		fmt.Fprintf(w, "  %-24s %-28s %s\n", r.Name, strings.Join(r.Capabilities, ","), state)
		if r.Description != "" {
			fmt.Fprintf(w, "  %-24s %s\n", "", r.Description)
		}
	}
	fmt.Fprintln(w)
}

func newPluginsSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Update the plugin configuration from the plugins directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := loadCatalog()
			if err != nil {
				return err
			}
			res, err := catalog.Sync()
			if err != nil {
				return err
			}
			for _, name := range res.Added {
				logSuccess(i18n.T("Added %s"), name)
			}
			for _, name := range res.Missing {
				logWarning(i18n.T("%s is configured but missing"), name)
			}
			if len(res.Added) == 0 && len(res.Missing) == 0 {
				logInfo("%s", i18n.T("Plugin configuration is up to date"))
			}
			return nil
		},
	}
}

func newPluginsToggleCmd(enable bool) *cobra.Command {
	use, short := "disable NAME", "Disable a plugin"
	if enable {
		use, short = "enable NAME", "Enable a plugin"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			catalog, err := loadCatalog()
			if err != nil {
				return nil, cobra.ShellCompDirectiveNoFileComp
			}
			rows, _ := catalog.Status()
			names := make([]string, 0, len(rows))
			for _, r := range rows {
				names = append(names, r.Name)
			}
			return names, cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := loadCatalog()
			if err != nil {
				return err
			}
			if err := catalog.SetEnabled(args[0], enable); err != nil {
				return err
			}
			if enable {
				logSuccess(i18n.T("%s enabled"), args[0])
			} else {
				logSuccess(i18n.T("%s disabled"), args[0])
			}
			return nil
		},
	}
}
