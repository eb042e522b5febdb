package memory

import (
	"context"
	"testing"

	"github.com/toolkit-rag/engine/internal/rag/ragerr"
	"github.com/toolkit-rag/engine/internal/rag/store"
	"github.com/toolkit-rag/engine/pkg/models"
)

func ingestDoc(t *testing.T, s *Store, projectID, fileID string, contents []string, vectors [][]float32) {
	t.Helper()
	doc := &models.Document{ProjectID: projectID, FileID: fileID, FileType: "txt"}
	chunks := make([]*models.Chunk, len(contents))
	for i := range contents {
		chunks[i] = &models.Chunk{Index: i, Content: contents[i], Embedding: vectors[i]}
	}
	if err := s.UpsertChunks(context.Background(), doc, chunks); err != nil {
		t.Fatalf("UpsertChunks(%s/%s): %v", projectID, fileID, err)
	}
}

func TestQueryRanksByCosine(t *testing.T) {
	s := New(3)
	ingestDoc(t, s, "proj-a", "doc1",
		[]string{"alpha", "beta", "gamma"},
		[][]float32{{1, 0, 0}, {0.9, 0.1, 0}, {0, 1, 0}})

	results, err := s.Query(context.Background(), "proj-a", []float32{1, 0, 0}, store.QueryOptions{Limit: 2})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Chunk.Content != "alpha" || results[1].Chunk.Content != "beta" {
		t.Errorf("unexpected ranking: %q, %q", results[0].Chunk.Content, results[1].Chunk.Content)
	}
	if results[0].Score < results[1].Score {
		t.Error("results not sorted by score")
	}
}

func TestProjectIsolation(t *testing.T) {
	s := New(3)
	ingestDoc(t, s, "proj-a", "doc1", []string{"alpha"}, [][]float32{{1, 0, 0}})
	ingestDoc(t, s, "proj-b", "doc1", []string{"alpha"}, [][]float32{{1, 0, 0}})

	results, err := s.Query(context.Background(), "proj-b", []float32{1, 0, 0}, store.QueryOptions{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 1 || results[0].Chunk.ProjectID != "proj-b" {
		t.Fatalf("isolation violated: %+v", results)
	}
}

func TestUpsertRejectsWrongDimension(t *testing.T) {
	s := New(3)
	doc := &models.Document{ProjectID: "proj-a", FileID: "doc1"}
	chunks := []*models.Chunk{{Embedding: []float32{1, 0}}}

	err := s.UpsertChunks(context.Background(), doc, chunks)
	if !ragerr.Is(err, ragerr.KindDimensionMismatch) {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
}

func TestUpsertReplacesPriorGeneration(t *testing.T) {
	s := New(3)
	ingestDoc(t, s, "proj-a", "doc1",
		[]string{"old one", "old two"},
		[][]float32{{1, 0, 0}, {0, 1, 0}})
	ingestDoc(t, s, "proj-a", "doc1",
		[]string{"new one"},
		[][]float32{{0, 0, 1}})

	stats, err := s.ProjectStats(context.Background(), "proj-a")
	if err != nil {
		t.Fatalf("ProjectStats: %v", err)
	}
	if stats.TotalChunks != 1 || stats.TotalDocuments != 1 {
		t.Fatalf("stats after replace = %+v", stats)
	}

	results, err := s.KeywordQuery(context.Background(), "proj-a", "old", store.QueryOptions{})
	if err != nil {
		t.Fatalf("KeywordQuery: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("stale chunks still searchable: %+v", results)
	}
}

func TestDeleteDocumentNotFound(t *testing.T) {
	s := New(3)
	_, err := s.DeleteDocument(context.Background(), "proj-a", "ghost")
	if !ragerr.Is(err, ragerr.KindNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestDeleteProject(t *testing.T) {
	s := New(3)
	ingestDoc(t, s, "proj-a", "doc1", []string{"a"}, [][]float32{{1, 0, 0}})
	ingestDoc(t, s, "proj-a", "doc2", []string{"b", "c"}, [][]float32{{0, 1, 0}, {0, 0, 1}})

	removed, err := s.DeleteProject(context.Background(), "proj-a")
	if err != nil {
		t.Fatalf("DeleteProject: %v", err)
	}
	if removed != 3 {
		t.Errorf("removed = %d, want 3", removed)
	}

	_, err = s.DeleteProject(context.Background(), "proj-a")
	if !ragerr.Is(err, ragerr.KindNotFound) {
		t.Fatalf("second delete: expected not_found, got %v", err)
	}
}

func TestResultsAreCopies(t *testing.T) {
	s := New(3)
	ingestDoc(t, s, "proj-a", "doc1", []string{"alpha"}, [][]float32{{1, 0, 0}})

	results, err := s.Query(context.Background(), "proj-a", []float32{1, 0, 0}, store.QueryOptions{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	results[0].Chunk.Content = "mutated"

	again, err := s.Query(context.Background(), "proj-a", []float32{1, 0, 0}, store.QueryOptions{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if again[0].Chunk.Content != "alpha" {
		t.Error("caller mutation leaked into the store")
	}
}

func TestListFileIDsSorted(t *testing.T) {
	s := New(3)
	ingestDoc(t, s, "proj-a", "zeta", []string{"z"}, [][]float32{{1, 0, 0}})
	ingestDoc(t, s, "proj-a", "alpha", []string{"a"}, [][]float32{{0, 1, 0}})

	ids, err := s.ListFileIDs(context.Background(), "proj-a")
	if err != nil {
		t.Fatalf("ListFileIDs: %v", err)
	}
	if len(ids) != 2 || ids[0] != "alpha" || ids[1] != "zeta" {
		t.Fatalf("ids = %v, want [alpha zeta]", ids)
	}
}
