package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lokalise-tm/ltm/retry"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestLoadFile_MissingUsesDefaults(t *testing.T) {
	f, err := LoadFile(t.TempDir())
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if f.Provider.ID != "openai" {
		t.Errorf("provider = %q, want openai", f.Provider.ID)
	}
	if f.Retry != retry.Default() {
		t.Errorf("retry = %+v, want default", f.Retry)
	}
	if want := filepath.Join("reports", "translation_done.csv"); f.Paths.Output != want {
		t.Errorf("output = %q, want %q", f.Paths.Output, want)
	}
	if f.Paths.PluginConfig != DefaultPluginConfig {
		t.Errorf("plugin config = %q", f.Paths.PluginConfig)
	}
	if f.Lokalise.RequestsPerSecond != 6 {
		t.Errorf("requests/s = %d, want 6", f.Lokalise.RequestsPerSecond)
	}
}

func TestLoadFile_ParsesAllSections(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, FileName, `
paths:
  reports_dir: out
provider:
  id: google
  model: gemini-2.0-flash
  timeout: 30s
retry:
  max_attempts: 3
  initial_delay: 2s
lokalise:
  project_id: "123.abc"
languages:
  pt_BR:
    name: Brazilian Portuguese
`)
	f, err := LoadFile(dir)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if f.Provider.ID != "google" || f.Provider.Timeout != 30*time.Second {
		t.Errorf("provider = %+v", f.Provider)
	}
	if f.Retry.MaxAttempts != 3 || f.Retry.InitialDelay != 2*time.Second {
		t.Errorf("retry = %+v", f.Retry)
	}
	if f.Paths.Input != filepath.Join("out", DefaultInput) {
		t.Errorf("input = %q, want it inside reports_dir", f.Paths.Input)
	}
	if f.Lokalise.ProjectID != "123.abc" {
		t.Errorf("project = %q", f.Lokalise.ProjectID)
	}
	if f.Languages["pt_BR"].Name != "Brazilian Portuguese" {
		t.Errorf("languages = %+v", f.Languages)
	}
}

func TestLoadFile_Validation(t *testing.T) {
	tests := []struct {
		name, yaml, want string
	}{
		{"unknown provider", "provider:\n  id: acme\n", "unknown provider"},
		{"negative attempts", "retry:\n  max_attempts: -1\n", "max_attempts"},
		{"nameless language", "languages:\n  xx: {}\n", "has no name"},
		{"bad yaml", "paths: [", "parsing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, FileName, tt.yaml)
			_, err := LoadFile(dir)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, FileName, "provider:\n  id: groq\n  model: file-model\n")
	t.Setenv("LTM_MODEL", "env-model")
	t.Setenv("LTM_RETRY_MAX_ATTEMPTS", "2")
	t.Setenv("LOKALISE_PROJECT_ID", "p-env")

	f, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if f.Provider.ID != "groq" {
		t.Errorf("provider = %q, want groq from file", f.Provider.ID)
	}
	if f.Provider.Model != "env-model" {
		t.Errorf("model = %q, want env-model", f.Provider.Model)
	}
	if f.Retry.MaxAttempts != 2 {
		t.Errorf("max attempts = %d, want 2", f.Retry.MaxAttempts)
	}
	if f.Lokalise.ProjectID != "p-env" {
		t.Errorf("project = %q", f.Lokalise.ProjectID)
	}
	if !filepath.IsAbs(f.Paths.Output) || !strings.HasPrefix(f.Paths.Output, dir) {
		t.Errorf("output %q not resolved against %q", f.Paths.Output, dir)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".env", "LTM_PROVIDER=ollama\nLTM_MODEL=llama3\n")
	// Registered for restore, then removed so .env can set them.
	t.Setenv("LTM_PROVIDER", "")
	t.Setenv("LTM_MODEL", "")
	os.Unsetenv("LTM_PROVIDER")
	os.Unsetenv("LTM_MODEL")

	f, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if f.Provider.ID != "ollama" || f.Provider.Model != "llama3" {
		t.Errorf("provider = %+v, want ollama/llama3 from .env", f.Provider)
	}
}

func TestLoad_InvalidEnvProvider(t *testing.T) {
	t.Setenv("LTM_PROVIDER", "acme")
	if _, err := Load(t.TempDir()); err == nil {
		t.Fatal("expected error for unknown provider from environment")
	}
}

func TestApply_ReportsDirMovesDefaultedFiles(t *testing.T) {
	f, err := LoadFile(t.TempDir())
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	f.Paths.Output = "custom/done.csv"
	f.Apply(Env{ReportsDir: "elsewhere"})

	if f.Paths.Input != filepath.Join("elsewhere", DefaultInput) {
		t.Errorf("input = %q", f.Paths.Input)
	}
	if f.Paths.LockDir != "elsewhere" {
		t.Errorf("lock dir = %q", f.Paths.LockDir)
	}
	if f.Paths.Output != "custom/done.csv" {
		t.Errorf("explicit output must be kept, got %q", f.Paths.Output)
	}
}

func TestInputPath_PrefersMock(t *testing.T) {
	dir := t.TempDir()
	f, err := LoadFile(dir)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if err := f.Resolve(dir); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := f.InputPath(); got != f.Paths.Input {
		t.Errorf("without mock: %q, want %q", got, f.Paths.Input)
	}

	if err := os.MkdirAll(f.Paths.ReportsDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(f.Paths.MockInput, []byte("key_id\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if got := f.InputPath(); got != f.Paths.MockInput {
		t.Errorf("with mock: %q, want %q", got, f.Paths.MockInput)
	}
}

func TestTranslateProvider(t *testing.T) {
	f := Default()
	f.Provider = Provider{ID: "custom-openai", Model: "m", BaseURL: "http://x", Temperature: 0.5}
	p := f.TranslateProvider()
	if p.ID != "custom-openai" || p.Model != "m" || p.BaseURL != "http://x" || p.Temperature != 0.5 {
		t.Errorf("TranslateProvider() = %+v", p)
	}
}
