// Package tei provides an embedding provider using a Text Embeddings
// Inference server, the dedicated inference backend of the deployment
// matrix alongside Ollama and OpenAI.
package tei

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

// Provider implements embeddings.Provider against a TEI server.
type Provider struct {
	baseURL   string
	apiKey    string
	model     string
	dimension int
	client    *http.Client
}

var _ embeddings.Provider = (*Provider)(nil)

// Config contains configuration for the TEI provider.
type Config struct {
	BaseURL string // Default: http://localhost:8080
	APIKey  string // Optional bearer token
	Model   string // Served model identifier, informational

	// Dimension is the served model's output dimension. Required:
	// TEI does not expose it in the embed response.
	Dimension int

	// Timeout bounds each HTTP call. Default: 30s.
	Timeout time.Duration
}

// New creates a new TEI embedding provider.
func New(cfg Config) (*Provider, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8080"
	}
	if cfg.Model == "" {
		cfg.Model = "BAAI/bge-base-en-v1.5"
	}
	if cfg.Dimension <= 0 {
		return nil, ragerr.New(ragerr.KindValidation, "tei provider requires an explicit dimension")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Provider{
		baseURL:   cfg.BaseURL,
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		dimension: cfg.Dimension,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "tei"
}

// Model returns the served model identifier.
func (p *Provider) Model() string {
	return p.model
}

// Dimension returns the configured embedding dimension.
func (p *Provider) Dimension() int {
	return p.dimension
}

// MaxBatchSize returns the maximum number of texts per batch.
// TEI rejects batches above its --max-client-batch-size, 32 by default.
func (p *Provider) MaxBatchSize() int {
	return 32
}

// Embed generates an embedding for a single text.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, ragerr.New(ragerr.KindProviderUnavailable, "tei returned no embedding")
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for multiple texts in one request.
// The server embeds all inputs or rejects the request, so the batch
// fails as a whole.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(embedRequest{Inputs: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, ragerr.Wrap(embeddings.ClassifyTransportErr(err), err, "tei request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		kind := embeddings.ClassifyHTTPStatus(resp.StatusCode)
		return nil, ragerr.New(kind, "tei returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, ragerr.Wrap(ragerr.KindProviderUnavailable, err, "decode tei response")
	}
	if len(vectors) != len(texts) {
		return nil, ragerr.New(ragerr.KindProviderUnavailable, "tei returned %d embeddings for %d inputs", len(vectors), len(texts))
	}
	for i, vec := range vectors {
		if len(vec) != p.dimension {
			return nil, ragerr.New(ragerr.KindDimensionMismatch, "tei embedding %d has dimension %d, configured %d", i, len(vec), p.dimension)
		}
	}

	return vectors, nil
}

type embedRequest struct {
	Inputs []string `json:"inputs"`
}
