package tei

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/toolkit-rag/engine/internal/rag/ragerr"
)

func TestNewRequiresDimension(t *testing.T) {
	if _, err := New(Config{}); !ragerr.Is(err, ragerr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestEmbedBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("authorization = %q", got)
		}
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		out := make([][]float32, len(req.Inputs))
		for i := range req.Inputs {
			out[i] = []float32{float32(i), float32(i)}
		}
		json.NewEncoder(w).Encode(out)
	}))
	defer server.Close()

	p, err := New(Config{BaseURL: server.URL, APIKey: "secret", Dimension: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	vecs, err := p.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vecs))
	}
	if vecs[2][0] != 2 {
		t.Fatalf("order not preserved: %v", vecs)
	}
}

func TestEmbedBatchDimensionMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([][]float32{{1, 2, 3}})
	}))
	defer server.Close()

	p, _ := New(Config{BaseURL: server.URL, Dimension: 2})
	_, err := p.EmbedBatch(context.Background(), []string{"a"})
	if !ragerr.Is(err, ragerr.KindDimensionMismatch) {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
}

func TestEmbedBatchLengthMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([][]float32{{1, 2}})
	}))
	defer server.Close()

	p, _ := New(Config{BaseURL: server.URL, Dimension: 2})
	_, err := p.EmbedBatch(context.Background(), []string{"a", "b"})
	if !ragerr.Is(err, ragerr.KindProviderUnavailable) {
		t.Fatalf("expected provider_unavailable, got %v", err)
	}
}

func TestAuthErrorIsFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	p, _ := New(Config{BaseURL: server.URL, Dimension: 2})
	_, err := p.EmbedBatch(context.Background(), []string{"a"})
	if !ragerr.Is(err, ragerr.KindProviderAuth) {
		t.Fatalf("expected provider_auth, got %v", err)
	}
	if ragerr.Retryable(err) {
		t.Fatal("auth errors must not be retryable")
	}
}
