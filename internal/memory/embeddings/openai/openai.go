// Package openai embeds text through OpenAI's embedding endpoint (or any
// service speaking the same wire via a custom base URL).
package openai

import (
	"context"
	"fmt"

	"github.com/sagerun/sage/internal/memory/embeddings"
	"github.com/sashabaranov/go-openai"
)

// Config configures the OpenAI embedding provider.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string // default text-embedding-3-small
}

// modelDimensions maps the known embedding models to their vector sizes.
var modelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// Provider implements embeddings.Provider over the OpenAI API.
type Provider struct {
	client *openai.Client
	model  string
}

var _ embeddings.Provider = (*Provider)(nil)

// New builds a provider; APIKey is required.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &Provider{client: openai.NewClientWithConfig(clientCfg), model: cfg.Model}, nil
}

func (p *Provider) Name() string { return "openai" }

func (p *Provider) Dimension() int {
	if dim, ok := modelDimensions[p.model]; ok {
		return dim
	}
	return 1536
}

func (p *Provider) MaxBatchSize() int { return 2048 }

// Embed embeds one text via the batch path.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts in one request, re-ordering the response by its
// reported indices.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(p.model),
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}

	out := make([][]float32, len(resp.Data))
	for _, data := range resp.Data {
		out[data.Index] = data.Embedding
	}
	return out, nil
}
