package plugin

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Entry is the persisted state of one plugin.
type Entry struct {
	Enabled        bool     `yaml:"enabled"`
	Capabilities   []string `yaml:"capabilities,omitempty"`
	Description    string   `yaml:"description,omitempty"`
	AutoDiscovered bool     `yaml:"auto_discovered,omitempty"`
	Missing        bool     `yaml:"missing,omitempty"`
}

// Settings are the global plugin switches.
type Settings struct {
	AutoDiscoverNewPlugins bool `yaml:"auto_discover_new_plugins"`
	WarnOnDisabledPlugins  bool `yaml:"warn_on_disabled_plugins"`
	FailOnPluginError      bool `yaml:"fail_on_plugin_error"`
}

// Config is the plugin configuration file.
type Config struct {
	Plugins  map[string]*Entry `yaml:"plugins"`
	Settings Settings          `yaml:"settings"`
}

// DefaultConfig returns an empty, permissive configuration.
func DefaultConfig() *Config {
	return &Config{
		Plugins: make(map[string]*Entry),
		Settings: Settings{
			AutoDiscoverNewPlugins: true,
			WarnOnDisabledPlugins:  true,
		},
	}
}

// LoadConfig reads the configuration at path. A missing file yields the
// defaults and no error. A corrupt file yields the defaults and the parse
// error so the caller can warn about it.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("parsing %s: %w", path, err)
	}
	if cfg.Plugins == nil {
		cfg.Plugins = make(map[string]*Entry)
	}
	for name, e := range cfg.Plugins {
		if e == nil {
			cfg.Plugins[name] = &Entry{Enabled: cfg.Settings.AutoDiscoverNewPlugins}
		}
	}
	return cfg, nil
}

// Save writes the configuration through a temp file and rename.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling plugin config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing plugin config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing plugin config: %w", err)
	}
	return nil
}

// IsEnabled returns the explicit setting for name, or the auto-discovery
// setting when the plugin is not listed.
func (c *Config) IsEnabled(name string) bool {
	if e, ok := c.Plugins[name]; ok {
		return e.Enabled
	}
	return c.Settings.AutoDiscoverNewPlugins
}

func sortedNames(m map[string]*Entry) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
