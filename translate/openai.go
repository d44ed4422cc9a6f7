package translate

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAI translates through the chat completions API. It also serves
// OpenAI-compatible endpoints (Groq, Ollama, custom) via BaseURL.
type OpenAI struct {
	client      openai.Client
	model       string
	temperature float64
	prompt      string
}

// NewOpenAI creates a translator for an OpenAI-compatible provider. SDK
// retries are disabled; the job's retry policy is the only retry layer.
func NewOpenAI(p Provider, systemPrompt string, extra ...option.RequestOption) (*OpenAI, error) {
	key := p.APIKey
	if key == "" {
		if p.ID != ProviderOllama && p.ID != ProviderCustomOpenAI {
			return nil, ErrMissingAPIKey
		}
		key = "unused"
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	opts := []option.RequestOption{
		option.WithAPIKey(key),
		option.WithHTTPClient(makeHTTPClient(p.Proxy, timeout)),
		option.WithRequestTimeout(timeout),
		option.WithMaxRetries(0),
	}
	if p.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(p.BaseURL))
	}
	opts = append(opts, extra...)

	model := p.Model
	if model == "" {
		model = DefaultModel
	}
	temp := p.Temperature
	if temp <= 0 {
		temp = DefaultTemperature
	}

	return &OpenAI{
		client:      openai.NewClient(opts...),
		model:       model,
		temperature: temp,
		prompt:      systemPrompt,
	}, nil
}

// Translate asks the model for a single translated string.
func (o *OpenAI) Translate(ctx context.Context, text, lang, addons string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(BuildSystemPrompt(o.prompt, lang, addons)),
			openai.UserMessage(text),
		},
		Temperature: openai.Float(o.temperature),
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", classify(fmt.Errorf("chat completion: %w", err))
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return cleanTranslation(resp.Choices[0].Message.Content), nil
}
