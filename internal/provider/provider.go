// Package provider abstracts the LLM backends used for summarization.
package provider

import (
	"context"
	"fmt"

	"github.com/engramlabs/engram/internal/config"
)

// Response is the completion returned by a provider.
type Response struct {
	Content string `json:"content"`
	Role    string `json:"role"`
}

// Provider defines the chat interaction the summarization pipeline needs:
// a user prompt, a system instruction, and extra model parameters passed
// through verbatim. Parameters a backend does not understand are ignored.
type Provider interface {
	Chat(ctx context.Context, prompt, system string, params map[string]any) (*Response, error)

	// Name returns the provider identifier (e.g. "openai", "stub").
	Name() string
}

// New selects a provider from config.
func New(cfg config.LLM) (Provider, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAI(cfg.APIKey, cfg.BaseURL, cfg.Model)
	case "ollama":
		return NewOllama(cfg.Model)
	case "gemini":
		return NewGemini(cfg.APIKey, cfg.Model)
	case "anthropic":
		return NewAnthropic(cfg.APIKey, cfg.Model)
	case "stub":
		return NewStub(), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

func floatParam(params map[string]any, key string) (float64, bool) {
	switch v := params[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	}
	return 0, false
}

func intParam(params map[string]any, key string) (int, bool) {
	switch v := params[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}
