package embedding

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAI embeds via the OpenAI embeddings API (or any compatible endpoint
// through base URL override).
type OpenAI struct {
	client *openai.Client
	model  openai.EmbeddingModel
	dim    int
}

func NewOpenAI(apiKey, baseURL, model string, dim int) (*OpenAI, error) {
	if apiKey == "" {
		return nil, errors.New("API key is required")
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}

	m := openai.EmbeddingModel(model)
	if model == "" {
		m = openai.SmallEmbedding3
	}

	return &OpenAI{
		client: openai.NewClientWithConfig(config),
		model:  m,
		dim:    dim,
	}, nil
}

func (p *OpenAI) Name() string {
	return "openai"
}

func (p *OpenAI) Dim() int {
	return p.dim
}

func (p *OpenAI) GetEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := p.client.CreateEmbeddings(
		ctx,
		openai.EmbeddingRequest{
			Input: texts,
			Model: p.model,
		},
	)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	vectors := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

// TestConnection embeds a probe string to verify credentials and model.
func (p *OpenAI) TestConnection(ctx context.Context) error {
	_, err := p.GetEmbeddings(ctx, []string{"ping"})
	return err
}
