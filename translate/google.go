package translate

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Google translates with Gemini through the genai SDK.
type Google struct {
	client      *genai.Client
	model       string
	temperature float32
	prompt      string
}

// NewGoogle creates a Gemini translator.
func NewGoogle(ctx context.Context, p Provider, systemPrompt string) (*Google, error) {
	if p.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	cfg := &genai.ClientConfig{
		APIKey:     p.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: makeHTTPClient(p.Proxy, timeout),
	}
	if p.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: p.BaseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	temp := p.Temperature
	if temp <= 0 {
		temp = DefaultTemperature
	}
	return &Google{
		client:      client,
		model:       p.Model,
		temperature: float32(temp),
		prompt:      systemPrompt,
	}, nil
}

// Translate asks Gemini for a single translated string.
func (g *Google) Translate(ctx context.Context, text, lang, addons string) (string, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(BuildSystemPrompt(g.prompt, lang, addons), genai.RoleUser),
		Temperature:       genai.Ptr(g.temperature),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(text), config)
	if err != nil {
		return "", classify(fmt.Errorf("generate content: %w", err))
	}
	out := resp.Text()
	if out == "" {
		return "", ErrEmptyResponse
	}
	return cleanTranslation(out), nil
}
