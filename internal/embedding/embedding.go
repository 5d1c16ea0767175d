// Package embedding abstracts the text-to-vector providers consumed by the
// retrieval and summarization pipelines.
package embedding

import (
	"context"
	"fmt"

	"github.com/engramlabs/engram/internal/config"
)

// Provider converts texts into embedding vectors.
type Provider interface {
	// GetEmbeddings vectorizes a batch of texts, one vector per input, in
	// order.
	GetEmbeddings(ctx context.Context, texts []string) ([][]float32, error)

	// Dim returns the embedding dimension.
	Dim() int

	// Name returns the provider identifier (e.g. "openai", "mock").
	Name() string
}

// ConnectionTester is an optional capability; providers without it are
// assumed reachable.
type ConnectionTester interface {
	TestConnection(ctx context.Context) error
}

// New selects a provider from config. Unsupported services and dimension
// mismatches are fatal at startup.
func New(cfg config.Embedding) (Provider, error) {
	switch cfg.Service {
	case "openai":
		return NewOpenAI(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Dim)
	case "ollama":
		return NewOllama(cfg.Model, cfg.Dim)
	case "gemini":
		return NewGemini(cfg.APIKey, cfg.Model, cfg.Dim)
	case "mock":
		return NewMock(cfg.Dim), nil
	default:
		return nil, fmt.Errorf("unsupported embedding service %q", cfg.Service)
	}
}
