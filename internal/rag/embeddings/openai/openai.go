// Package openai provides an embedding provider using OpenAI's hosted
// embedding models.
package openai

import (
	"context"
	"errors"

	"github.com/sashabaranov/go-openai"

	"github.com/toolkit-rag/engine/internal/rag/embeddings"
	"github.com/toolkit-rag/engine/internal/rag/ragerr"
)

// Provider implements embeddings.Provider using OpenAI.
type Provider struct {
	client    *openai.Client
	model     string
	dimension int
}

var _ embeddings.Provider = (*Provider)(nil)

// Config contains configuration for the OpenAI provider.
type Config struct {
	APIKey  string
	BaseURL string // Optional custom base URL
	Model   string // text-embedding-3-small or text-embedding-3-large

	// Dimension overrides the model's known dimension when set.
	Dimension int
}

// New creates a new OpenAI embedding provider.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, ragerr.New(ragerr.KindProviderAuth, "OpenAI API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}

	dim := cfg.Dimension
	if dim <= 0 {
		switch cfg.Model {
		case "text-embedding-3-small":
			dim = 1536
		case "text-embedding-3-large":
			dim = 3072
		case "text-embedding-ada-002":
			dim = 1536
		default:
			dim = 1536
		}
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return &Provider{
		client:    openai.NewClientWithConfig(config),
		model:     cfg.Model,
		dimension: dim,
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "openai"
}

// Model returns the model identifier.
func (p *Provider) Model() string {
	return p.model
}

// Dimension returns the embedding dimension for the configured model.
func (p *Provider) Dimension() int {
	return p.dimension
}

// MaxBatchSize returns the maximum number of texts per batch.
func (p *Provider) MaxBatchSize() int {
	return 2048 // OpenAI supports up to 2048 inputs per request
}

// Embed generates an embedding for a single text.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, ragerr.New(ragerr.KindProviderUnavailable, "no embedding returned")
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for multiple texts. The whole batch
// fails when the API reports an error for any input.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(p.model),
	})
	if err != nil {
		return nil, classify(err)
	}

	results := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(results) {
			return nil, ragerr.New(ragerr.KindProviderUnavailable, "embedding index %d out of range", data.Index)
		}
		results[data.Index] = data.Embedding
	}
	for i, vec := range results {
		if vec == nil {
			return nil, ragerr.New(ragerr.KindProviderUnavailable, "no embedding returned for input %d", i)
		}
	}

	return results, nil
}

// classify maps go-openai errors to the shared taxonomy.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		kind := embeddings.ClassifyHTTPStatus(apiErr.HTTPStatusCode)
		return ragerr.Wrap(kind, err, "openai embeddings request failed")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ragerr.Wrap(ragerr.KindProviderTimeout, err, "openai embeddings request timed out")
	}
	return ragerr.Wrap(ragerr.KindProviderUnavailable, err, "openai embeddings request failed")
}
