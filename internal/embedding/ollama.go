package embedding

import (
	"context"
	"net/http"
	"net/url"
	"os"

	"github.com/ollama/ollama/api"
)

// Ollama embeds via a local Ollama instance.
type Ollama struct {
	client *api.Client
	model  string
	dim    int
}

func NewOllama(model string, dim int) (*Ollama, error) {
	if model == "" {
		model = "nomic-embed-text"
	}

	baseURL := "http://localhost:11434"
	if envURL := os.Getenv("OLLAMA_HOST"); envURL != "" {
		baseURL = envURL
	}
	uri, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}

	return &Ollama{
		client: api.NewClient(uri, http.DefaultClient),
		model:  model,
		dim:    dim,
	}, nil
}

func (p *Ollama) Name() string {
	return "ollama"
}

func (p *Ollama) Dim() int {
	return p.dim
}

func (p *Ollama) GetEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		req := &api.EmbeddingRequest{
			Model:  p.model,
			Prompt: text,
		}
		resp, err := p.client.Embeddings(ctx, req)
		if err != nil {
			return nil, err
		}
		vec := make([]float32, len(resp.Embedding))
		for j, v := range resp.Embedding {
			vec[j] = float32(v)
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func (p *Ollama) TestConnection(ctx context.Context) error {
	return p.client.Heartbeat(ctx)
}
