// Package config handles the .ltm.yaml project file and the environment
// overrides applied on top of it.
//
// A missing .ltm.yaml is not an error: every setting has a default that
// matches the conventional layout
//
//	reports/ready_to_translations.csv       input queue
//	reports/ready_to_translations_mock.csv  input override for dry runs
//	reports/translation_done.csv            output store
//	plugins/                                plugin manifests
//	config/plugins.yaml                     plugin configuration
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lokalise-tm/ltm/langmeta"
	"github.com/lokalise-tm/ltm/retry"
	"github.com/lokalise-tm/ltm/translate"
)

// FileName is the project config file name.
const FileName = ".ltm.yaml"

const (
	DefaultReportsDir   = "reports"
	DefaultInput        = "ready_to_translations.csv"
	DefaultMockInput    = "ready_to_translations_mock.csv"
	DefaultOutput       = "translation_done.csv"
	DefaultPluginsDir   = "plugins"
	DefaultPluginConfig = "config/plugins.yaml"
	DefaultLockDir      = "reports"
)

// ---------------------------------------------------------------------------
// YAML schema
// ---------------------------------------------------------------------------

// File is the top-level .ltm.yaml structure. Languages adds or overrides
// language metadata.
type File struct {
	Paths     Paths                    `yaml:"paths,omitempty"`
	Provider  Provider                 `yaml:"provider,omitempty"`
	Retry     retry.Policy             `yaml:"retry,omitempty"`
	Lokalise  Lokalise                 `yaml:"lokalise,omitempty"`
	Languages map[string]langmeta.Meta `yaml:"languages,omitempty"`
}

// Paths are relative to the project root unless absolute. Input, MockInput
// and Output default to files inside ReportsDir.
type Paths struct {
	ReportsDir   string `yaml:"reports_dir,omitempty"`
	Input        string `yaml:"input,omitempty"`
	MockInput    string `yaml:"mock_input,omitempty"`
	Output       string `yaml:"output,omitempty"`
	PluginsDir   string `yaml:"plugins_dir,omitempty"`
	PluginConfig string `yaml:"plugin_config,omitempty"`
	LockDir      string `yaml:"lock_dir,omitempty"`
}

// Provider selects and tunes the AI provider.
type Provider struct {
	ID          string        `yaml:"id,omitempty"`
	Model       string        `yaml:"model,omitempty"`
	BaseURL     string        `yaml:"base_url,omitempty"`
	Proxy       string        `yaml:"proxy,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
	Temperature float64       `yaml:"temperature,omitempty"`
}

// Lokalise configures the upload step.
type Lokalise struct {
	ProjectID string `yaml:"project_id,omitempty"`
	BaseURL   string `yaml:"base_url,omitempty"`
	// RequestsPerSecond paces translation updates.
	RequestsPerSecond int `yaml:"requests_per_second,omitempty"`
}

// Default returns the configuration used when no .ltm.yaml exists.
func Default() *File {
	return &File{
		Provider: Provider{ID: translate.ProviderOpenAI},
		Retry:    retry.Default(),
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// LoadFile loads and validates .ltm.yaml from rootDir and fills defaults.
// A missing file yields Default().
func LoadFile(rootDir string) (*File, error) {
	f := Default()
	path := filepath.Join(rootDir, FileName)

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, f); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	f.fillDefaults()
	if err := f.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

func (f *File) fillDefaults() {
	p := &f.Paths
	if p.ReportsDir == "" {
		p.ReportsDir = DefaultReportsDir
	}
	if p.Input == "" {
		p.Input = filepath.Join(p.ReportsDir, DefaultInput)
	}
	if p.MockInput == "" {
		p.MockInput = filepath.Join(p.ReportsDir, DefaultMockInput)
	}
	if p.Output == "" {
		p.Output = filepath.Join(p.ReportsDir, DefaultOutput)
	}
	if p.PluginsDir == "" {
		p.PluginsDir = DefaultPluginsDir
	}
	if p.PluginConfig == "" {
		p.PluginConfig = DefaultPluginConfig
	}
	if p.LockDir == "" {
		p.LockDir = p.ReportsDir
	}
	if f.Provider.ID == "" {
		f.Provider.ID = translate.ProviderOpenAI
	}
	if f.Retry.MaxAttempts == 0 {
		f.Retry.MaxAttempts = retry.DefaultMaxAttempts
	}
	if f.Retry.InitialDelay == 0 {
		f.Retry.InitialDelay = retry.DefaultInitialDelay
	}
	if f.Lokalise.RequestsPerSecond == 0 {
		f.Lokalise.RequestsPerSecond = 6
	}
}

func (f *File) validate() error {
	if _, ok := translate.DefaultProviders()[f.Provider.ID]; !ok {
		return fmt.Errorf("unknown provider %q (valid: openai, google, groq, ollama, custom-openai)", f.Provider.ID)
	}
	if f.Provider.Timeout < 0 {
		return fmt.Errorf("provider timeout must not be negative")
	}
	if f.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1, got %d", f.Retry.MaxAttempts)
	}
	if f.Retry.InitialDelay < 0 {
		return fmt.Errorf("retry.initial_delay must not be negative")
	}
	if f.Lokalise.RequestsPerSecond < 0 {
		return fmt.Errorf("lokalise.requests_per_second must not be negative")
	}
	for code, m := range f.Languages {
		if code == "" {
			return fmt.Errorf("languages: empty language code")
		}
		if m.Name == "" {
			return fmt.Errorf("languages: %q has no name", code)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Resolving
// ---------------------------------------------------------------------------

// Resolve makes every path absolute against rootDir.
func (f *File) Resolve(rootDir string) error {
	abs, err := filepath.Abs(rootDir)
	if err != nil {
		return err
	}
	for _, p := range []*string{
		&f.Paths.ReportsDir, &f.Paths.Input, &f.Paths.MockInput, &f.Paths.Output,
		&f.Paths.PluginsDir, &f.Paths.PluginConfig, &f.Paths.LockDir,
	} {
		if !filepath.IsAbs(*p) {
			*p = filepath.Join(abs, *p)
		}
	}
	return nil
}

// InputPath returns the queue to translate: the mock queue when it
// exists, the real one otherwise.
func (f *File) InputPath() string {
	if _, err := os.Stat(f.Paths.MockInput); err == nil {
		return f.Paths.MockInput
	}
	return f.Paths.Input
}

// TranslateProvider converts the provider section for the translate package.
func (f *File) TranslateProvider() translate.Provider {
	return translate.Provider{
		ID:          f.Provider.ID,
		Model:       f.Provider.Model,
		BaseURL:     f.Provider.BaseURL,
		Proxy:       f.Provider.Proxy,
		Timeout:     f.Provider.Timeout,
		Temperature: f.Provider.Temperature,
	}
}
