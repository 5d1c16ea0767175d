package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini embeds via Google's embedding models.
type Gemini struct {
	client *genai.Client
	model  string
	dim    int
}

func NewGemini(apiKey, model string, dim int) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("API key is required")
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	if model == "" {
		model = "text-embedding-004"
	}

	return &Gemini{
		client: client,
		model:  model,
		dim:    dim,
	}, nil
}

func (p *Gemini) Name() string {
	return "gemini"
}

func (p *Gemini) Dim() int {
	return p.dim
}

func (p *Gemini) GetEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	em := p.client.EmbeddingModel(p.model)

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		res, err := em.EmbedContent(ctx, genai.Text(text))
		if err != nil {
			return nil, err
		}
		if res.Embedding == nil {
			return nil, fmt.Errorf("no embedding returned")
		}
		vectors[i] = res.Embedding.Values
	}
	return vectors, nil
}
