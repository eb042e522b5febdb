package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/toolkit-rag/engine/internal/rag/ragerr"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Chunking.ChunkSize != 1000 || cfg.Chunking.ChunkOverlap != 200 {
		t.Errorf("chunking defaults = %+v", cfg.Chunking)
	}
	if cfg.Query.DefaultLimit != 10 {
		t.Errorf("default limit = %d", cfg.Query.DefaultLimit)
	}
	if cfg.Query.HybridAlpha != 0.5 {
		t.Errorf("hybrid alpha = %g", cfg.Query.HybridAlpha)
	}
	if cfg.Embedding.RequestTimeout != 30*time.Second {
		t.Errorf("request timeout = %v", cfg.Embedding.RequestTimeout)
	}
	if cfg.Store.Backend != "memory" {
		t.Errorf("store backend = %s", cfg.Store.Backend)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
chunking:
  chunk_size: 500
  chunk_overlap: 50
embedding:
  provider: openai
  model: text-embedding-3-small
  api_key: test-key
store:
  backend: sqlite
  path: /tmp/rag.db
query:
  hybrid_alpha: 0.7
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Chunking.ChunkSize != 500 || cfg.Chunking.ChunkOverlap != 50 {
		t.Errorf("chunking = %+v", cfg.Chunking)
	}
	if cfg.Embedding.Provider != "openai" {
		t.Errorf("provider = %s", cfg.Embedding.Provider)
	}
	if cfg.Store.Backend != "sqlite" || cfg.Store.Path != "/tmp/rag.db" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.Query.HybridAlpha != 0.7 {
		t.Errorf("alpha = %g", cfg.Query.HybridAlpha)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CHUNK_SIZE", "800")
	t.Setenv("CHUNK_OVERLAP", "80")
	t.Setenv("EMBEDDING_PROVIDER", "tei")
	t.Setenv("EMBEDDING_DIMENSION", "768")
	t.Setenv("EMBEDDING_BASE_URL", "http://tei:8080")
	t.Setenv("HYBRID_ALPHA", "0.25")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Chunking.ChunkSize != 800 || cfg.Chunking.ChunkOverlap != 80 {
		t.Errorf("chunking = %+v", cfg.Chunking)
	}
	if cfg.Embedding.Provider != "tei" || cfg.Embedding.Dimension != 768 {
		t.Errorf("embedding = %+v", cfg.Embedding)
	}
	if cfg.Query.HybridAlpha != 0.25 {
		t.Errorf("alpha = %g", cfg.Query.HybridAlpha)
	}
}

func TestEnvExpansionInFile(t *testing.T) {
	t.Setenv("TEST_RAG_KEY", "expanded-secret")
	path := writeConfig(t, `
embedding:
  provider: openai
  api_key: ${TEST_RAG_KEY}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Embedding.APIKey != "expanded-secret" {
		t.Errorf("api key = %q", cfg.Embedding.APIKey)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"overlap >= size", func(c *Config) { c.Chunking.ChunkOverlap = c.Chunking.ChunkSize }},
		{"negative overlap", func(c *Config) { c.Chunking.ChunkOverlap = -1 }},
		{"unknown provider", func(c *Config) { c.Embedding.Provider = "bogus" }},
		{"tei without dimension", func(c *Config) { c.Embedding.Provider = "tei"; c.Embedding.Dimension = 0 }},
		{"unknown backend", func(c *Config) { c.Store.Backend = "cassandra" }},
		{"pgvector without dsn", func(c *Config) { c.Store.Backend = "pgvector"; c.Store.DSN = "" }},
		{"alpha out of range", func(c *Config) { c.Query.HybridAlpha = 1.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !ragerr.Is(err, ragerr.KindValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}
