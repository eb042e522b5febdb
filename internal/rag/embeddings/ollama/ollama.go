// Package ollama provides an embedding provider using a locally hosted
// Ollama model server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/toolkit-rag/engine/internal/rag/embeddings"
	"github.com/toolkit-rag/engine/internal/rag/ragerr"
)

// Provider implements embeddings.Provider using Ollama.
type Provider struct {
	baseURL   string
	model     string
	dimension int
	client    *http.Client
}

var _ embeddings.Provider = (*Provider)(nil)

// Config contains configuration for the Ollama provider.
type Config struct {
	BaseURL string // Default: http://localhost:11434
	Model   string // nomic-embed-text, mxbai-embed-large

	// Dimension overrides the model's known dimension when set.
	Dimension int

	// Timeout bounds each HTTP call. Default: 60s.
	Timeout time.Duration
}

// New creates a new Ollama embedding provider.
func New(cfg Config) (*Provider, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "nomic-embed-text"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	dim := cfg.Dimension
	if dim <= 0 {
		switch cfg.Model {
		case "nomic-embed-text":
			dim = 768
		case "mxbai-embed-large":
			dim = 1024
		case "all-minilm":
			dim = 384
		default:
			dim = 768
		}
	}

	return &Provider{
		baseURL:   cfg.BaseURL,
		model:     cfg.Model,
		dimension: dim,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "ollama"
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
// Ollama embeds one prompt per request, so this only bounds the
// client-side loop.
func (p *Provider) MaxBatchSize() int {
	return 100
}

// Embed generates an embedding for a single text.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	req := embeddingRequest{
		Model:  p.model,
		Prompt: text,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, ragerr.Wrap(embeddings.ClassifyTransportErr(err), err, "ollama request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		kind := embeddings.ClassifyHTTPStatus(resp.StatusCode)
		return nil, ragerr.New(kind, "ollama returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var result embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, ragerr.Wrap(ragerr.KindProviderUnavailable, err, "decode ollama response")
	}
	if len(result.Embedding) == 0 {
		return nil, ragerr.New(ragerr.KindProviderUnavailable, "ollama returned empty embedding")
	}

	return result.Embedding, nil
}

// EmbedBatch generates embeddings for multiple texts. Ollama has no
// batch endpoint, so texts are embedded sequentially; the first
// failure aborts the whole batch.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))

	for i, text := range texts {
		vector, err := p.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		vectors[i] = vector
	}

	return vectors, nil
}

type embeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}
