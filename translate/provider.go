package translate

import (
	"context"
	"fmt"
)

// Translator translates one source string into one language. Returned
// errors wrapped in *TransientError may be retried.
type Translator interface {
	Translate(ctx context.Context, text, lang, addons string) (string, error)
}

// TranslatorFunc adapts a function to Translator.
type TranslatorFunc func(ctx context.Context, text, lang, addons string) (string, error)

func (f TranslatorFunc) Translate(ctx context.Context, text, lang, addons string) (string, error) {
	return f(ctx, text, lang, addons)
}

// New builds the translator for p.ID.
func New(ctx context.Context, p Provider, systemPrompt string) (Translator, error) {
	switch p.ID {
	case ProviderGoogle:
		return NewGoogle(ctx, p, systemPrompt)
	case ProviderOpenAI, ProviderGroq, ProviderOllama, ProviderCustomOpenAI:
		return NewOpenAI(p, systemPrompt)
	default:
		return nil, fmt.Errorf("unknown provider %q", p.ID)
	}
}
