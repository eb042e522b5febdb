package cache

import (
	"testing"
	"time"

	"github.com/toolkit-rag/engine/pkg/models"
)

func sampleResults(content string) []models.SearchResult {
	return []models.SearchResult{
		{Chunk: &models.Chunk{Content: content}, Score: 0.9},
	}
}

func TestGetPutRoundTrip(t *testing.T) {
	c := New(Options{TTL: time.Minute})
	key := Key(&models.SearchRequest{ProjectID: "proj-a", Query: "hello", Mode: models.SearchModeSemantic})

	if _, ok := c.Get(key); ok {
		t.Fatal("empty cache should miss")
	}

	c.Put(key, "proj-a", sampleResults("hello world"))
	got, ok := c.Get(key)
	if !ok {
		t.Fatal("expected hit")
	}
	if len(got) != 1 || got[0].Chunk.Content != "hello world" {
		t.Fatalf("got %+v", got)
	}
}

func TestKeyNormalizesQuery(t *testing.T) {
	base := &models.SearchRequest{ProjectID: "proj-a", Query: "hello world", Mode: models.SearchModeHybrid}
	spaced := &models.SearchRequest{ProjectID: "proj-a", Query: "  Hello   WORLD ", Mode: models.SearchModeHybrid}
	if Key(base) != Key(spaced) {
		t.Error("whitespace and case should not change the key")
	}

	otherProject := &models.SearchRequest{ProjectID: "proj-b", Query: "hello world", Mode: models.SearchModeHybrid}
	if Key(base) == Key(otherProject) {
		t.Error("different projects must not share keys")
	}

	otherMode := &models.SearchRequest{ProjectID: "proj-a", Query: "hello world", Mode: models.SearchModeKeyword}
	if Key(base) == Key(otherMode) {
		t.Error("different modes must not share keys")
	}
}

func TestKeyFilterOrderInsensitive(t *testing.T) {
	a := &models.SearchRequest{
		ProjectID: "proj-a", Query: "q", Mode: models.SearchModeSemantic,
		Filters: models.SearchFilters{FileIDs: []string{"doc1", "doc2"}},
	}
	b := &models.SearchRequest{
		ProjectID: "proj-a", Query: "q", Mode: models.SearchModeSemantic,
		Filters: models.SearchFilters{FileIDs: []string{"doc2", "doc1"}},
	}
	if Key(a) != Key(b) {
		t.Error("filter order should not change the key")
	}
}

func TestTTLExpiry(t *testing.T) {
	c := New(Options{TTL: time.Minute})
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Put("k", "proj-a", sampleResults("x"))
	if _, ok := c.Get("k"); !ok {
		t.Fatal("fresh entry should hit")
	}

	now = now.Add(61 * time.Second)
	if _, ok := c.Get("k"); ok {
		t.Fatal("expired entry should miss")
	}
}

func TestInvalidateProject(t *testing.T) {
	c := New(Options{TTL: time.Minute})
	c.Put("k1", "proj-a", sampleResults("a"))
	c.Put("k2", "proj-a", sampleResults("b"))
	c.Put("k3", "proj-b", sampleResults("c"))

	if dropped := c.InvalidateProject("proj-a"); dropped != 2 {
		t.Errorf("dropped = %d, want 2", dropped)
	}
	if _, ok := c.Get("k1"); ok {
		t.Error("proj-a entry survived invalidation")
	}
	if _, ok := c.Get("k3"); !ok {
		t.Error("proj-b entry should survive")
	}
}

func TestMaxSizeEvictsOldest(t *testing.T) {
	c := New(Options{TTL: time.Hour, MaxSize: 2})
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Put("k1", "proj-a", sampleResults("a"))
	now = now.Add(time.Second)
	c.Put("k2", "proj-a", sampleResults("b"))
	now = now.Add(time.Second)
	c.Put("k3", "proj-a", sampleResults("c"))

	if c.Len() != 2 {
		t.Fatalf("len = %d, want 2", c.Len())
	}
	if _, ok := c.Get("k1"); ok {
		t.Error("oldest entry should be evicted")
	}
	if _, ok := c.Get("k3"); !ok {
		t.Error("newest entry should remain")
	}
}

func TestCachedResultsAreCopies(t *testing.T) {
	c := New(Options{TTL: time.Minute})
	c.Put("k", "proj-a", sampleResults("original"))

	got, _ := c.Get("k")
	got[0].Score = 0

	again, _ := c.Get("k")
	if again[0].Score != 0.9 {
		t.Error("caller mutation leaked into the cache")
	}
}

func TestStats(t *testing.T) {
	c := New(Options{TTL: time.Minute})
	c.Get("missing")
	c.Put("k", "proj-a", sampleResults("a"))
	c.Get("k")
	c.Get("k")

	stats := c.GetStats()
	if stats.Hits != 2 || stats.Misses != 1 || stats.Entries != 1 {
		t.Errorf("stats = %+v", stats)
	}
}
