package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/toolkit-rag/engine/internal/rag/ragerr"
)

func TestNew(t *testing.T) {
	t.Run("default config", func(t *testing.T) {
		p, err := New(Config{})
		if err != nil {
			t.Fatalf("New error: %v", err)
		}
		if p.baseURL != "http://localhost:11434" {
			t.Errorf("baseURL = %q, want %q", p.baseURL, "http://localhost:11434")
		}
		if p.model != "nomic-embed-text" {
			t.Errorf("model = %q, want %q", p.model, "nomic-embed-text")
		}
	})

	t.Run("custom config", func(t *testing.T) {
		p, err := New(Config{BaseURL: "http://custom:8080", Model: "mxbai-embed-large"})
		if err != nil {
			t.Fatalf("New error: %v", err)
		}
		if p.Model() != "mxbai-embed-large" {
			t.Errorf("Model() = %q", p.Model())
		}
		if p.Dimension() != 1024 {
			t.Errorf("Dimension() = %d, want 1024", p.Dimension())
		}
	})

	t.Run("dimension override", func(t *testing.T) {
		p, err := New(Config{Model: "custom-model", Dimension: 512})
		if err != nil {
			t.Fatalf("New error: %v", err)
		}
		if p.Dimension() != 512 {
			t.Errorf("Dimension() = %d, want 512", p.Dimension())
		}
	})
}

func TestProvider_Embed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Prompt != "hello" {
			t.Errorf("prompt = %q", req.Prompt)
		}
		json.NewEncoder(w).Encode(embeddingResponse{Embedding: []float32{0.1, 0.2, 0.3}})
	}))
	defer server.Close()

	p, _ := New(Config{BaseURL: server.URL})
	vec, err := p.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("expected 3 elements, got %d", len(vec))
	}
}

func TestProvider_EmbedBatchPreservesOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		json.NewDecoder(r.Body).Decode(&req)
		// Echo the prompt length so order is observable.
		json.NewEncoder(w).Encode(embeddingResponse{Embedding: []float32{float32(len(req.Prompt))}})
	}))
	defer server.Close()

	p, _ := New(Config{BaseURL: server.URL})
	vecs, err := p.EmbedBatch(context.Background(), []string{"a", "bb", "ccc"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vecs))
	}
	for i, want := range []float32{1, 2, 3} {
		if vecs[i][0] != want {
			t.Errorf("vector %d = %v, want [%v]", i, vecs[i], want)
		}
	}
}

func TestProvider_ErrorClassification(t *testing.T) {
	tests := []struct {
		status int
		want   ragerr.Kind
	}{
		{http.StatusUnauthorized, ragerr.KindProviderAuth},
		{http.StatusForbidden, ragerr.KindProviderAuth},
		{http.StatusInternalServerError, ragerr.KindProviderUnavailable},
		{http.StatusTooManyRequests, ragerr.KindProviderUnavailable},
		{http.StatusGatewayTimeout, ragerr.KindProviderTimeout},
	}
	for _, tc := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		p, _ := New(Config{BaseURL: server.URL})
		_, err := p.Embed(context.Background(), "x")
		server.Close()
		if !ragerr.Is(err, tc.want) {
			t.Errorf("status %d: kind = %s, want %s", tc.status, ragerr.KindOf(err), tc.want)
		}
	}
}

func TestProvider_BatchFailsAsWhole(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls > 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(embeddingResponse{Embedding: []float32{1}})
	}))
	defer server.Close()

	p, _ := New(Config{BaseURL: server.URL})
	vecs, err := p.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err == nil {
		t.Fatal("expected batch error")
	}
	if vecs != nil {
		t.Fatal("failed batch must not return partial results")
	}
}
