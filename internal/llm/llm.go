// Package llm provides single-turn text completion against a configurable
// provider. Consolidation is the only consumer; it degrades gracefully when
// the provider is down, so every client fails fast behind a circuit breaker.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/scrypster/recall/internal/breaker"
	"github.com/scrypster/recall/internal/config"
)

// ErrUnavailable indicates the provider could not serve the completion.
var ErrUnavailable = errors.New("llm unavailable")

// TextGenerator is the interface for LLM text completion. All consolidation
// prompts use single-string completion style, not multi-turn chat.
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Model() string
}

// NewTextGenerator builds the client for the configured provider.
func NewTextGenerator(cfg config.LLMConfig) (TextGenerator, error) {
	switch cfg.Provider {
	case "ollama", "":
		return NewOllamaClient(OllamaConfig{
			BaseURL: cfg.OllamaURL,
			Model:   cfg.OllamaModel,
			Timeout: cfg.Timeout(),
		}), nil
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai provider requires an api key")
		}
		return NewOpenAIClient(OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			Timeout: cfg.Timeout(),
		}), nil
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("anthropic provider requires an api key")
		}
		return NewAnthropicClient(AnthropicConfig{
			APIKey:  cfg.AnthropicAPIKey,
			Model:   cfg.AnthropicModel,
			Timeout: cfg.Timeout(),
		}), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %q", cfg.Provider)
	}
}

// throughBreaker runs a completion through a breaker and normalizes the
// open-circuit error onto ErrUnavailable.
func throughBreaker(ctx context.Context, b *breaker.Breaker, fn func() (string, error)) (string, error) {
	result, err := b.Execute(ctx, func() (any, error) { return fn() })
	if err != nil {
		if errors.Is(err, breaker.ErrOpen) {
			return "", fmt.Errorf("%w: circuit open", ErrUnavailable)
		}
		return "", err
	}
	return result.(string), nil
}
