package ragerr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestKindOf(t *testing.T) {
	err := New(KindNotFound, "document %s missing", "doc1")
	if KindOf(err) != KindNotFound {
		t.Fatalf("expected not_found, got %s", KindOf(err))
	}
	if KindOf(errors.New("plain")) != KindInternal {
		t.Fatal("unclassified errors should map to internal")
	}
}

func TestKindSurvivesWrapping(t *testing.T) {
	base := New(KindProviderTimeout, "embed deadline exceeded")
	wrapped := fmt.Errorf("ingest doc1: %w", base)

	if !Is(wrapped, KindProviderTimeout) {
		t.Fatal("kind lost through fmt.Errorf wrapping")
	}
	if !Retryable(wrapped) {
		t.Fatal("provider timeout should be retryable")
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		kind Kind
		want bool
	}{
		{KindProviderUnavailable, true},
		{KindProviderTimeout, true},
		{KindStoreUnavailable, true},
		{KindProviderAuth, false},
		{KindDimensionMismatch, false},
		{KindValidation, false},
		{KindRateLimited, false},
		{KindInternal, false},
	}
	for _, tc := range cases {
		if got := Retryable(New(tc.kind, "x")); got != tc.want {
			t.Errorf("Retryable(%s) = %v, want %v", tc.kind, got, tc.want)
		}
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		kind Kind
		want int
	}{
		{KindValidation, http.StatusBadRequest},
		{KindNotFound, http.StatusNotFound},
		{KindRateLimited, http.StatusTooManyRequests},
		{KindProviderUnavailable, http.StatusServiceUnavailable},
		{KindStoreUnavailable, http.StatusServiceUnavailable},
		{KindProviderAuth, http.StatusInternalServerError},
		{KindDimensionMismatch, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatus(New(tc.kind, "x")); got != tc.want {
			t.Errorf("HTTPStatus(%s) = %d, want %d", tc.kind, got, tc.want)
		}
	}
}

func TestRetryAfterHint(t *testing.T) {
	err := &Error{Kind: KindRateLimited, Message: "too many requests", RetryAfter: 3 * time.Second}
	if got := RetryAfter(err); got != 3*time.Second {
		t.Fatalf("expected 3s hint, got %v", got)
	}
	if RetryAfter(errors.New("plain")) != 0 {
		t.Fatal("expected zero hint for plain error")
	}
}

func TestErrorMessageIncludesProject(t *testing.T) {
	err := New(KindStoreUnavailable, "connection refused").WithProject("proj-a").WithFile("doc1")
	if got := err.Error(); got != "store_unavailable: project proj-a: connection refused" {
		t.Fatalf("unexpected message: %q", got)
	}
	if err.FileID != "doc1" {
		t.Fatal("file id not attached")
	}
}
