// Package translate turns queued Lokalise keys into translations using an
// AI provider: OpenAI and OpenAI-compatible endpoints (Groq, Ollama,
// custom) through openai-go, and Google Gemini through genai.
//
// The Job type drives a whole run: ACTION plugins, the per-record
// translation loop with retry and incremental persistence, then EXTENSION
// plugins.
package translate

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/lokalise-tm/ltm/langmeta"
	"github.com/lokalise-tm/ltm/settings"
)

// ---------------------------------------------------------------------------
// Provider IDs
// ---------------------------------------------------------------------------

const (
	ProviderOpenAI       = "openai"
	ProviderGoogle       = "google"
	ProviderGroq         = "groq"
	ProviderOllama       = "ollama"
	ProviderCustomOpenAI = "custom-openai"
)

const (
	// DefaultModel is used for OpenAI when no model is configured.
	DefaultModel = "gpt-4o-mini"
	// DefaultTemperature keeps translations consistent between runs.
	DefaultTemperature = 0.2
	// DefaultTimeout bounds a single provider request.
	DefaultTimeout = 90 * time.Second
)

// ---------------------------------------------------------------------------
// Provider configuration
// ---------------------------------------------------------------------------

// Provider holds the configuration for an AI translation service.
type Provider struct {
	// ID is the provider identifier (openai, google, groq, ...).
	ID string
	// Name is the display name.
	Name string
	// BaseURL is the API base URL (empty uses the SDK default).
	BaseURL string
	// APIKey is the authentication key (empty for local services).
	APIKey string
	// Model is the model identifier.
	Model string
	// Proxy is an optional HTTP/HTTPS proxy URL.
	Proxy string
	// Timeout is the request timeout.
	Timeout time.Duration
	// Temperature is the sampling temperature.
	Temperature float64
}

// DefaultProviders returns the pre-configured provider definitions.
func DefaultProviders() map[string]Provider {
	return map[string]Provider{
		ProviderOpenAI: {
			ID:    ProviderOpenAI,
			Name:  "OpenAI",
			Model: DefaultModel,
		},
		ProviderGoogle: {
			ID:    ProviderGoogle,
			Name:  "Google AI (Gemini)",
			Model: "gemini-2.0-flash",
		},
		ProviderGroq: {
			ID:      ProviderGroq,
			Name:    "Groq",
			BaseURL: "https://api.groq.com/openai/v1",
			Model:   "llama-3.3-70b-versatile",
		},
		ProviderOllama: {
			ID:      ProviderOllama,
			Name:    "Ollama",
			BaseURL: "http://localhost:11434/v1",
			Timeout: 120 * time.Second,
		},
		ProviderCustomOpenAI: {
			ID:   ProviderCustomOpenAI,
			Name: "Custom OpenAI",
		},
	}
}

// Resolve fills unset fields of p from the provider's defaults.
func Resolve(p Provider) (Provider, error) {
	def, ok := DefaultProviders()[p.ID]
	if !ok {
		return p, fmt.Errorf("unknown provider %q", p.ID)
	}
	if p.Name == "" {
		p.Name = def.Name
	}
	if p.BaseURL == "" {
		p.BaseURL = def.BaseURL
	}
	if p.Model == "" {
		p.Model = def.Model
	}
	if p.Timeout <= 0 {
		p.Timeout = def.Timeout
	}
	if p.Timeout <= 0 {
		p.Timeout = DefaultTimeout
	}
	if p.Temperature <= 0 {
		p.Temperature = DefaultTemperature
	}
	return p, Validate(p)
}

// Validate checks provider settings that cannot be defaulted.
func Validate(p Provider) error {
	switch p.ID {
	case ProviderOllama:
		if p.Model == "" {
			return fmt.Errorf("provider %s requires a model (--model)", p.ID)
		}
	case ProviderCustomOpenAI:
		if p.BaseURL == "" {
			return fmt.Errorf("provider %s requires a base URL (--base-url)", p.ID)
		}
		if p.Model == "" {
			return fmt.Errorf("provider %s requires a model (--model)", p.ID)
		}
	default:
		if p.APIKey == "" {
			return fmt.Errorf("%w for provider %s", ErrMissingAPIKey, p.ID)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// System prompt
// ---------------------------------------------------------------------------

// DefaultSystemPrompt is the localization prompt. {{targetLang}} and
// {{targetCode}} are replaced per call; PROMPT plugin addons are appended.
const DefaultSystemPrompt = `You are a professional software localization expert. Your task is to translate the given English text for an application's user interface.

Instructions:
1. Translate the following text into {{targetLang}} (language code: {{targetCode}}).
2. Output ONLY the translated string. Do not include explanations, introductions, quotes, or any other text.
3. Preserve placeholders (like {{variable}}, %s, %d, %1$s) exactly as they appear in the original text. Do not translate them.
4. Maintain a neutral and clear tone suitable for software.
5. Ignore any URLs found in the text and keep them unchanged.`

// PromptsConfig holds a user override of the system prompt, loaded from
// prompts.yaml in the ltm data directory.
type PromptsConfig struct {
	System string `yaml:"system"`
}

// LoadPrompts reads prompts.yaml from the data directory, creating it with
// the built-in prompt when it does not exist. It returns the prompt to use.
func LoadPrompts() (string, error) {
	path, err := settings.PromptsFilePath()
	if err != nil {
		return DefaultSystemPrompt, fmt.Errorf("cannot determine prompts file path: %w", err)
	}
	return LoadPromptsFromFile(path)
}

// LoadPromptsFromFile reads a prompts file, creating it when missing.
func LoadPromptsFromFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if err := createDefaultPromptsFile(path); err != nil {
			return DefaultSystemPrompt, err
		}
		return DefaultSystemPrompt, nil
	}
	if err != nil {
		return DefaultSystemPrompt, fmt.Errorf("failed to read prompts file: %w", err)
	}

	var cfg PromptsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return DefaultSystemPrompt, fmt.Errorf("failed to parse prompts file: %w", err)
	}
	if strings.TrimSpace(cfg.System) == "" {
		return DefaultSystemPrompt, nil
	}
	return cfg.System, nil
}

func createDefaultPromptsFile(path string) error {
	data, err := yaml.Marshal(PromptsConfig{System: DefaultSystemPrompt})
	if err != nil {
		return fmt.Errorf("marshaling default prompts: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating prompts directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing default prompts file: %w", err)
	}
	return nil
}

// BuildSystemPrompt renders template for lang and appends the addons.
func BuildSystemPrompt(template, lang, addons string) string {
	if template == "" {
		template = DefaultSystemPrompt
	}
	prompt := strings.NewReplacer(
		"{{targetLang}}", langmeta.Name(lang),
		"{{targetCode}}", lang,
	).Replace(template)
	if addons = strings.TrimSpace(addons); addons != "" {
		prompt += "\n" + addons
	}
	return prompt
}

// ---------------------------------------------------------------------------
// Response cleanup
// ---------------------------------------------------------------------------

var markdownCodeBlock = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")

// cleanTranslation strips what models add around a bare translation:
// surrounding whitespace and a markdown code fence.
func cleanTranslation(s string) string {
	s = strings.TrimSpace(s)
	if m := markdownCodeBlock.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	}
	return s
}

// ---------------------------------------------------------------------------
// HTTP client with real proxy support
// ---------------------------------------------------------------------------

func makeHTTPClient(proxyURL string, timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if proxyURL != "" {
		parsed, err := url.Parse(proxyURL)
		if err == nil {
			transport.Proxy = http.ProxyURL(parsed)
		}
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	for maxLen > 0 && !utf8.RuneStart(s[maxLen]) {
		maxLen--
	}
	return s[:maxLen] + "..."
}
