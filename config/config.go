package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Env holds the LTM_* overrides. Unset variables leave the file value.
type Env struct {
	Provider     string        `env:"LTM_PROVIDER"`
	Model        string        `env:"LTM_MODEL"`
	BaseURL      string        `env:"LTM_BASE_URL"`
	Proxy        string        `env:"LTM_PROXY"`
	Timeout      time.Duration `env:"LTM_TIMEOUT"`
	ReportsDir   string        `env:"LTM_REPORTS_DIR"`
	PluginsDir   string        `env:"LTM_PLUGINS_DIR"`
	PluginConfig string        `env:"LTM_PLUGIN_CONFIG"`
	MaxAttempts  int           `env:"LTM_RETRY_MAX_ATTEMPTS"`
	InitialDelay time.Duration `env:"LTM_RETRY_INITIAL_DELAY"`

	LokaliseProject string `env:"LOKALISE_PROJECT_ID"`
	LokaliseBaseURL string `env:"LOKALISE_BASE_URL"`
}

// ParseEnv reads the overrides from the process environment.
func ParseEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return e, fmt.Errorf("parsing environment: %w", err)
	}
	return e, nil
}

// Load reads rootDir/.env into the environment (existing variables win),
// loads .ltm.yaml, applies the LTM_* overrides and resolves all paths
// against rootDir.
func Load(rootDir string) (*File, error) {
	if err := godotenv.Load(filepath.Join(rootDir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	f, err := LoadFile(rootDir)
	if err != nil {
		return nil, err
	}
	e, err := ParseEnv()
	if err != nil {
		return nil, err
	}
	f.Apply(e)
	if err := f.validate(); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	if err := f.Resolve(rootDir); err != nil {
		return nil, err
	}
	return f, nil
}

// Apply overrides file values with the set environment values. A new
// reports directory moves the queue and output files that were defaulted.
func (f *File) Apply(e Env) {
	if e.Provider != "" {
		f.Provider.ID = e.Provider
	}
	if e.Model != "" {
		f.Provider.Model = e.Model
	}
	if e.BaseURL != "" {
		f.Provider.BaseURL = e.BaseURL
	}
	if e.Proxy != "" {
		f.Provider.Proxy = e.Proxy
	}
	if e.Timeout > 0 {
		f.Provider.Timeout = e.Timeout
	}
	if e.ReportsDir != "" {
		old := f.Paths.ReportsDir
		move := func(p *string, name string) {
			if *p == filepath.Join(old, name) {
				*p = filepath.Join(e.ReportsDir, name)
			}
		}
		move(&f.Paths.Input, DefaultInput)
		move(&f.Paths.MockInput, DefaultMockInput)
		move(&f.Paths.Output, DefaultOutput)
		if f.Paths.LockDir == old {
			f.Paths.LockDir = e.ReportsDir
		}
		f.Paths.ReportsDir = e.ReportsDir
	}
	if e.PluginsDir != "" {
		f.Paths.PluginsDir = e.PluginsDir
	}
	if e.PluginConfig != "" {
		f.Paths.PluginConfig = e.PluginConfig
	}
	if e.MaxAttempts != 0 {
		f.Retry.MaxAttempts = e.MaxAttempts
	}
	if e.InitialDelay > 0 {
		f.Retry.InitialDelay = e.InitialDelay
	}
	if e.LokaliseProject != "" {
		f.Lokalise.ProjectID = e.LokaliseProject
	}
	if e.LokaliseBaseURL != "" {
		f.Lokalise.BaseURL = e.LokaliseBaseURL
	}
}
