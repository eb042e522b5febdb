package pgvector

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/toolkit-rag/engine/internal/rag/ragerr"
	"github.com/toolkit-rag/engine/internal/rag/store"
	"github.com/toolkit-rag/engine/pkg/models"
)

func newMockStore(t *testing.T, dimension int) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &Store{db: db, dimension: dimension}, mock
}

func TestEncodeEmbedding(t *testing.T) {
	enc := encodeEmbedding([]float32{0.5, -1, 2})
	if !enc.Valid || enc.String != "[0.5,-1,2]" {
		t.Fatalf("unexpected encoding: %+v", enc)
	}
	if encodeEmbedding(nil).Valid {
		t.Fatal("empty embedding should encode as NULL")
	}
}

func TestUpsertChunksReplacesGeneration(t *testing.T) {
	s, mock := newMockStore(t, 3)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO rag_documents`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM rag_chunks WHERE project_id = \$1 AND file_id = \$2`).
		WithArgs("proj-a", "doc1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectPrepare(`INSERT INTO rag_chunks`)
	mock.ExpectExec(`INSERT INTO rag_chunks`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	doc := &models.Document{ProjectID: "proj-a", FileID: "doc1", CreatedAt: time.Now()}
	chunks := []*models.Chunk{{
		Index:     0,
		Content:   "hello world",
		EndOffset: 11,
		Embedding: []float32{1, 2, 3},
	}}

	if err := s.UpsertChunks(context.Background(), doc, chunks); err != nil {
		t.Fatalf("UpsertChunks: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpsertChunksRejectsWrongDimension(t *testing.T) {
	s, _ := newMockStore(t, 3)

	doc := &models.Document{ProjectID: "proj-a", FileID: "doc1"}
	chunks := []*models.Chunk{{Embedding: []float32{1, 2}}}

	err := s.UpsertChunks(context.Background(), doc, chunks)
	if !ragerr.Is(err, ragerr.KindDimensionMismatch) {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
}

func TestDeleteDocumentNotFound(t *testing.T) {
	s, mock := newMockStore(t, 3)

	mock.ExpectExec(`DELETE FROM rag_chunks`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM rag_documents`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := s.DeleteDocument(context.Background(), "proj-a", "ghost")
	if !ragerr.Is(err, ragerr.KindNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestDeleteDocumentReturnsChunkCount(t *testing.T) {
	s, mock := newMockStore(t, 3)

	mock.ExpectExec(`DELETE FROM rag_chunks`).
		WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectExec(`DELETE FROM rag_documents`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	removed, err := s.DeleteDocument(context.Background(), "proj-a", "doc1")
	if err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if removed != 5 {
		t.Fatalf("removed = %d, want 5", removed)
	}
}

func TestQueryRejectsWrongDimension(t *testing.T) {
	s, _ := newMockStore(t, 3)

	_, err := s.Query(context.Background(), "proj-a", []float32{1, 2}, store.QueryOptions{})
	if !ragerr.Is(err, ragerr.KindDimensionMismatch) {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
}

func TestQueryScopesToProject(t *testing.T) {
	s, mock := newMockStore(t, 2)

	rows := sqlmock.NewRows([]string{
		"id", "file_id", "chunk_index", "content", "start_offset", "end_offset",
		"metadata", "created_at", "score",
	}).AddRow("c1", "doc1", 0, "hello", 0, 5, `{}`, time.Now(), 0.9)

	mock.ExpectQuery(`SELECT c\.id, c\.file_id`).
		WillReturnRows(rows)

	results, err := s.Query(context.Background(), "proj-a", []float32{1, 0}, store.QueryOptions{Limit: 5})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Chunk.ProjectID != "proj-a" {
		t.Fatalf("result not stamped with project: %+v", results[0].Chunk)
	}
	if results[0].Mode != models.SearchModeSemantic {
		t.Fatalf("mode = %s", results[0].Mode)
	}
}

func TestLoadMigrations(t *testing.T) {
	migrations, err := loadMigrations()
	if err != nil {
		t.Fatalf("loadMigrations: %v", err)
	}
	if len(migrations) == 0 {
		t.Fatal("no embedded migrations found")
	}
	for _, m := range migrations {
		if m.UpSQL == "" {
			t.Errorf("migration %s has no up SQL", m.ID)
		}
	}
}
