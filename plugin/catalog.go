package plugin

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Catalog discovers plugin manifests and reconciles them with the plugin
// configuration file.
type Catalog struct {
	Dir        string
	ConfigPath string
	Logger     *slog.Logger
}

// NewCatalog returns a catalog over dir, persisting state to configPath.
func NewCatalog(dir, configPath string, logger *slog.Logger) *Catalog {
	return &Catalog{Dir: dir, ConfigPath: configPath, Logger: logger}
}

func (c *Catalog) log() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// discover lists manifests in lexical order. Unreadable or unparsable files
// and files without a known capability are skipped.
func (c *Catalog) discover() ([]Descriptor, error) {
	entries, err := os.ReadDir(c.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading plugins directory %s: %w", c.Dir, err)
	}

	var out []Descriptor
	for _, e := range entries {
		if e.IsDir() || !isManifestFile(e.Name()) {
			continue
		}
		path := filepath.Join(c.Dir, e.Name())
		m, err := ReadManifest(path)
		if err != nil {
			c.log().Warn("skipping unreadable plugin", "plugin", e.Name(), "error", err)
			continue
		}
		caps := m.Caps()
		if len(caps) == 0 {
			c.log().Debug("skipping file without capabilities", "plugin", e.Name())
			continue
		}
		out = append(out, Descriptor{
			Name:         e.Name(),
			Path:         path,
			Description:  m.Description,
			Capabilities: caps,
		})
	}
	return out, nil
}

// Config loads the plugin configuration, warning about a corrupt file.
func (c *Catalog) Config() *Config {
	cfg, err := LoadConfig(c.ConfigPath)
	if err != nil {
		c.log().Warn("plugin config unreadable, using defaults", "path", c.ConfigPath, "error", err)
	}
	return cfg
}

// Discover returns every discovered plugin with its enabled state.
func (c *Catalog) Discover() ([]Descriptor, error) {
	found, err := c.discover()
	if err != nil {
		return nil, err
	}
	cfg := c.Config()
	for i := range found {
		found[i].Enabled = cfg.IsEnabled(found[i].Name)
		if e, ok := cfg.Plugins[found[i].Name]; ok {
			found[i].AutoDiscovered = e.AutoDiscovered
		}
	}
	return found, nil
}

// SyncResult reports what Sync changed.
type SyncResult struct {
	Added   []string
	Missing []string
}

// Sync merges discovery into the configuration file. New plugins are
// added enabled when auto-discovery is on and left out otherwise. Plugins
// no longer on disk are flagged missing but kept. The file is always
// written back.
func (c *Catalog) Sync() (SyncResult, error) {
	var res SyncResult
	found, err := c.discover()
	if err != nil {
		return res, err
	}
	cfg := c.Config()

	present := make(map[string]bool, len(found))
	for _, d := range found {
		present[d.Name] = true
		caps := capabilityStrings(d.Capabilities)

		e, ok := cfg.Plugins[d.Name]
		if !ok {
			if !cfg.Settings.AutoDiscoverNewPlugins {
				continue
			}
			cfg.Plugins[d.Name] = &Entry{
				Enabled:        true,
				Capabilities:   caps,
				Description:    d.Description,
				AutoDiscovered: true,
			}
			res.Added = append(res.Added, d.Name)
			c.log().Info("discovered plugin", "plugin", d.Name, "capabilities", caps)
			continue
		}
		e.Missing = false
		e.Capabilities = caps
		if d.Description != "" {
			e.Description = d.Description
		}
		if !e.Enabled && cfg.Settings.WarnOnDisabledPlugins {
			c.log().Warn("plugin is disabled", "plugin", d.Name)
		}
	}

	for _, name := range sortedNames(cfg.Plugins) {
		e := cfg.Plugins[name]
		if present[name] {
			continue
		}
		if !e.Missing {
			c.log().Warn("plugin missing from plugins directory", "plugin", name)
		}
		e.Missing = true
		res.Missing = append(res.Missing, name)
	}

	if err := cfg.Save(c.ConfigPath); err != nil {
		return res, err
	}
	return res, nil
}

// IsEnabled reports whether name is enabled under the current configuration.
func (c *Catalog) IsEnabled(name string) bool {
	return c.Config().IsEnabled(name)
}

// EnabledByCapability returns the enabled plugins declaring want, in
// discovery order.
func (c *Catalog) EnabledByCapability(want Capability) ([]string, error) {
	found, err := c.discover()
	if err != nil {
		return nil, err
	}
	cfg := c.Config()
	var names []string
	for _, d := range found {
		if d.Has(want) && cfg.IsEnabled(d.Name) {
			names = append(names, d.Name)
		}
	}
	return names, nil
}

// FailOnError reports the fail_on_plugin_error setting.
func (c *Catalog) FailOnError() bool {
	return c.Config().Settings.FailOnPluginError
}

// SetEnabled enables or disables a discovered or configured plugin.
func (c *Catalog) SetEnabled(name string, enabled bool) error {
	cfg := c.Config()
	e, ok := cfg.Plugins[name]
	if !ok {
		found, err := c.discover()
		if err != nil {
			return err
		}
		var desc *Descriptor
		for i := range found {
			if found[i].Name == name {
				desc = &found[i]
				break
			}
		}
		if desc == nil {
			return fmt.Errorf("plugin %q not found in %s", name, c.Dir)
		}
		e = &Entry{Capabilities: capabilityStrings(desc.Capabilities), Description: desc.Description}
		cfg.Plugins[name] = e
	}
	e.Enabled = enabled
	return cfg.Save(c.ConfigPath)
}

// Status is one row of the plugin status view.
type Status struct {
	Name         string
	Capabilities []string
	Description  string
	Enabled      bool
	Missing      bool
	Configured   bool
}

// Status merges discovery and configuration for display.
func (c *Catalog) Status() ([]Status, error) {
	found, err := c.discover()
	if err != nil {
		return nil, err
	}
	cfg := c.Config()
	seen := make(map[string]bool)
	var out []Status
	for _, d := range found {
		seen[d.Name] = true
		_, configured := cfg.Plugins[d.Name]
		out = append(out, Status{
			Name:         d.Name,
			Capabilities: capabilityStrings(d.Capabilities),
			Description:  d.Description,
			Enabled:      cfg.IsEnabled(d.Name),
			Configured:   configured,
		})
	}
	for _, name := range sortedNames(cfg.Plugins) {
		if seen[name] {
			continue
		}
		e := cfg.Plugins[name]
		out = append(out, Status{
			Name:         name,
			Capabilities: e.Capabilities,
			Description:  e.Description,
			Enabled:      e.Enabled,
			Missing:      true,
			Configured:   true,
		})
	}
	return out, nil
}
