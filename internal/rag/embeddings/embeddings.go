// Package embeddings provides interfaces and implementations for
// embedding providers.
package embeddings

import (
	"context"
	"errors"
	"net/http"

	"github.com/toolkit-rag/engine/internal/rag/ragerr"
)

// Provider defines the interface for embedding providers.
//
// Implementations wrap backends with different latency and failure
// profiles; all of them preserve input order and length. Batch calls
// fail as a whole: when any item cannot be embedded the entire batch
// returns an error and no partial results are produced.
type Provider interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts. The result
	// has the same length and order as texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Name returns the provider name.
	Name() string

	// Model returns the stable model identifier.
	Model() string

	// Dimension returns the embedding dimension.
	Dimension() int

	// MaxBatchSize returns the maximum number of texts per batch.
	MaxBatchSize() int
}

// Config contains common configuration for embedding providers.
type Config struct {
	Provider string `yaml:"provider"` // ollama, openai, tei
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`

	// Dimension overrides the model's default dimension when set.
	Dimension int `yaml:"dimension"`
}

// ClassifyHTTPStatus maps an HTTP response status from an embedding
// backend to the shared error taxonomy. Credential problems are fatal;
// everything else a backend returns is treated as transient.
func ClassifyHTTPStatus(status int) ragerr.Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ragerr.KindProviderAuth
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ragerr.KindProviderTimeout
	default:
		return ragerr.KindProviderUnavailable
	}
}

// ClassifyTransportErr maps a transport-level failure (connection
// refused, context deadline) to the taxonomy.
func ClassifyTransportErr(err error) ragerr.Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return ragerr.KindProviderTimeout
	}
	return ragerr.KindProviderUnavailable
}
