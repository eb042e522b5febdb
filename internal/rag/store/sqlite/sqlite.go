// Package sqlite provides an embedded vector store backed by SQLite.
// Embeddings are stored inline and scored with an exact scan, which is
// fine for single-node deployments and local development.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/toolkit-rag/engine/internal/rag/ragerr"
	"github.com/toolkit-rag/engine/internal/rag/store"
	"github.com/toolkit-rag/engine/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS rag_documents (
	project_id  TEXT NOT NULL,
	file_id     TEXT NOT NULL,
	name        TEXT NOT NULL DEFAULT '',
	size        INTEGER NOT NULL DEFAULT 0,
	file_type   TEXT NOT NULL DEFAULT '',
	language    TEXT NOT NULL DEFAULT '',
	metadata    TEXT NOT NULL DEFAULT '{}',
	chunk_count INTEGER NOT NULL DEFAULT 0,
	created_at  TIMESTAMP NOT NULL,
	PRIMARY KEY (project_id, file_id)
);

CREATE TABLE IF NOT EXISTS rag_chunks (
	id           TEXT PRIMARY KEY,
	project_id   TEXT NOT NULL,
	file_id      TEXT NOT NULL,
	chunk_index  INTEGER NOT NULL,
	content      TEXT NOT NULL,
	start_offset INTEGER NOT NULL DEFAULT 0,
	end_offset   INTEGER NOT NULL DEFAULT 0,
	metadata     TEXT NOT NULL DEFAULT '{}',
	embedding    BLOB,
	created_at   TIMESTAMP NOT NULL,
	FOREIGN KEY (project_id, file_id) REFERENCES rag_documents(project_id, file_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_rag_chunks_project ON rag_chunks(project_id);
CREATE INDEX IF NOT EXISTS idx_rag_chunks_file ON rag_chunks(project_id, file_id);
`

// Store implements store.VectorStore on an embedded SQLite database.
type Store struct {
	db        *sql.DB
	dimension int
}

var _ store.VectorStore = (*Store)(nil)

// Config contains configuration for the SQLite store.
type Config struct {
	// Path is the database file path. ":memory:" gives an in-memory
	// database, useful in tests.
	Path string

	// Dimension is the embedding dimension configured for the
	// deployment's embedding model.
	Dimension int
}

// New opens the database and creates the schema if missing.
func New(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, ragerr.New(ragerr.KindValidation, "sqlite path is required")
	}
	if cfg.Dimension <= 0 {
		return nil, ragerr.New(ragerr.KindValidation, "sqlite store requires a positive dimension")
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// modernc.org/sqlite serializes writes itself but a single
	// connection avoids SQLITE_BUSY on concurrent transactions.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, ragerr.Wrap(ragerr.KindStoreUnavailable, err, "create schema")
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, ragerr.Wrap(ragerr.KindStoreUnavailable, err, "enable foreign keys")
	}

	return &Store{db: db, dimension: cfg.Dimension}, nil
}

// UpsertChunks atomically replaces the document's chunk set.
func (s *Store) UpsertChunks(ctx context.Context, doc *models.Document, chunks []*models.Chunk) error {
	for i, chunk := range chunks {
		if err := store.ValidateVector(chunk.Embedding, s.dimension); err != nil {
			return ragerr.Wrap(ragerr.KindOf(err), err, "validate embedding for chunk %d", i).WithProject(doc.ProjectID).WithFile(doc.FileID)
		}
	}

	metadata, err := json.Marshal(metadataOrEmpty(doc.Metadata))
	if err != nil {
		return fmt.Errorf("marshal document metadata: %w", err)
	}

	createdAt := doc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr(err, "begin transaction")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO rag_documents (project_id, file_id, name, size, file_type, language, metadata, chunk_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (project_id, file_id) DO UPDATE SET
			name = excluded.name,
			size = excluded.size,
			file_type = excluded.file_type,
			language = excluded.language,
			metadata = excluded.metadata,
			chunk_count = excluded.chunk_count,
			created_at = excluded.created_at
	`, doc.ProjectID, doc.FileID, doc.Name, doc.Size, doc.FileType, doc.Language,
		string(metadata), len(chunks), createdAt)
	if err != nil {
		return storeErr(err, "upsert document")
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM rag_chunks WHERE project_id = ? AND file_id = ?`, doc.ProjectID, doc.FileID)
	if err != nil {
		return storeErr(err, "delete prior generation")
	}

	for _, chunk := range chunks {
		id := chunk.ID
		if id == "" {
			id = uuid.New().String()
		}
		chunkCreated := chunk.CreatedAt
		if chunkCreated.IsZero() {
			chunkCreated = createdAt
		}

		chunkMeta, err := json.Marshal(metadataOrEmpty(chunk.Metadata))
		if err != nil {
			return fmt.Errorf("marshal chunk metadata: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO rag_chunks (id, project_id, file_id, chunk_index, content, start_offset, end_offset, metadata, embedding, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, id, doc.ProjectID, doc.FileID, chunk.Index, chunk.Content,
			chunk.StartOffset, chunk.EndOffset, string(chunkMeta),
			encodeEmbedding(chunk.Embedding), chunkCreated)
		if err != nil {
			return storeErr(err, "insert chunk %d", chunk.Index)
		}
	}

	if err := tx.Commit(); err != nil {
		return storeErr(err, "commit")
	}
	return nil
}

// DeleteDocument removes a document and all its chunks.
func (s *Store) DeleteDocument(ctx context.Context, projectID, fileID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rag_chunks WHERE project_id = ? AND file_id = ?`, projectID, fileID)
	if err != nil {
		return 0, storeErr(err, "delete chunks")
	}
	removed, _ := res.RowsAffected()

	docRes, err := s.db.ExecContext(ctx, `DELETE FROM rag_documents WHERE project_id = ? AND file_id = ?`, projectID, fileID)
	if err != nil {
		return 0, storeErr(err, "delete document")
	}
	if n, _ := docRes.RowsAffected(); n == 0 {
		return 0, ragerr.New(ragerr.KindNotFound, "document %s not found", fileID).WithProject(projectID)
	}
	return removed, nil
}

// DeleteProject removes every document in the project.
func (s *Store) DeleteProject(ctx context.Context, projectID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rag_chunks WHERE project_id = ?`, projectID)
	if err != nil {
		return 0, storeErr(err, "delete chunks")
	}
	removed, _ := res.RowsAffected()

	docRes, err := s.db.ExecContext(ctx, `DELETE FROM rag_documents WHERE project_id = ?`, projectID)
	if err != nil {
		return 0, storeErr(err, "delete documents")
	}
	if n, _ := docRes.RowsAffected(); n == 0 {
		return 0, ragerr.New(ragerr.KindNotFound, "project not found").WithProject(projectID)
	}
	return removed, nil
}

// Query scans the project's chunks and scores them by cosine
// similarity in-process.
func (s *Store) Query(ctx context.Context, projectID string, vector []float32, opts store.QueryOptions) ([]models.SearchResult, error) {
	if err := store.ValidateVector(vector, s.dimension); err != nil {
		return nil, err
	}
	return s.scan(ctx, projectID, opts, models.SearchModeSemantic, func(chunk *models.Chunk) float32 {
		if len(chunk.Embedding) != len(vector) {
			return 0
		}
		return store.Cosine(vector, chunk.Embedding)
	})
}

// KeywordQuery scans the project's chunks and scores them lexically.
func (s *Store) KeywordQuery(ctx context.Context, projectID, text string, opts store.QueryOptions) ([]models.SearchResult, error) {
	return s.scan(ctx, projectID, opts, models.SearchModeKeyword, func(chunk *models.Chunk) float32 {
		return store.LexicalScore(text, chunk.Content)
	})
}

func (s *Store) scan(ctx context.Context, projectID string, opts store.QueryOptions, mode models.SearchMode, score func(*models.Chunk) float32) ([]models.SearchResult, error) {
	query := `
		SELECT c.id, c.file_id, c.chunk_index, c.content, c.start_offset, c.end_offset,
			c.metadata, c.embedding, c.created_at, d.file_type, d.language
		FROM rag_chunks c
		JOIN rag_documents d ON d.project_id = c.project_id AND d.file_id = c.file_id
		WHERE c.project_id = ?
	`
	rows, err := s.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, storeErr(err, "scan chunks")
	}
	defer rows.Close()

	var results []models.SearchResult
	for rows.Next() {
		var chunk models.Chunk
		var metadataJSON string
		var embedding []byte
		var fileType, language string

		err := rows.Scan(
			&chunk.ID, &chunk.FileID, &chunk.Index, &chunk.Content,
			&chunk.StartOffset, &chunk.EndOffset, &metadataJSON,
			&embedding, &chunk.CreatedAt, &fileType, &language)
		if err != nil {
			return nil, storeErr(err, "scan chunk row")
		}
		chunk.ProjectID = projectID

		doc := models.Document{FileID: chunk.FileID, FileType: fileType, Language: language}
		if !store.MatchesFilters(&doc, opts.Filters) {
			continue
		}

		if err := json.Unmarshal([]byte(metadataJSON), &chunk.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal chunk metadata: %w", err)
		}
		chunk.Embedding = decodeEmbedding(embedding)

		sc := score(&chunk)
		if sc <= 0 {
			continue
		}
		results = append(results, models.SearchResult{Chunk: &chunk, Score: sc, Mode: mode})
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err, "rows")
	}

	store.SortResults(results)
	return store.Truncate(results, opts.MinScore, opts.EffectiveLimit()), nil
}

// ListFileIDs returns the sorted document identifiers in the project.
func (s *Store) ListFileIDs(ctx context.Context, projectID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT file_id FROM rag_documents WHERE project_id = ? ORDER BY file_id ASC`, projectID)
	if err != nil {
		return nil, storeErr(err, "list file ids")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storeErr(err, "scan file id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ProjectStats aggregates counts for one project.
func (s *Store) ProjectStats(ctx context.Context, projectID string) (*models.ProjectStats, error) {
	stats := &models.ProjectStats{
		ProjectID: projectID,
		FileTypes: make(map[string]int),
	}

	var lastIndexed sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(size), 0), MAX(created_at)
		FROM rag_documents WHERE project_id = ?
	`, projectID).Scan(&stats.TotalDocuments, &stats.StorageBytes, &lastIndexed)
	if err != nil {
		return nil, storeErr(err, "count documents")
	}
	if lastIndexed.Valid {
		stats.LastIndexed = &lastIndexed.Time
	}

	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rag_chunks WHERE project_id = ?`, projectID).Scan(&stats.TotalChunks)
	if err != nil {
		return nil, storeErr(err, "count chunks")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT file_type, COUNT(*) FROM rag_documents
		WHERE project_id = ? AND file_type <> ''
		GROUP BY file_type
	`, projectID)
	if err != nil {
		return nil, storeErr(err, "count file types")
	}
	defer rows.Close()

	for rows.Next() {
		var fileType string
		var count int
		if err := rows.Scan(&fileType, &count); err != nil {
			return nil, storeErr(err, "scan file type")
		}
		stats.FileTypes[fileType] = count
	}
	return stats, rows.Err()
}

// SystemStats aggregates counts across all projects.
func (s *Store) SystemStats(ctx context.Context) (*models.SystemStats, error) {
	stats := &models.SystemStats{EmbeddingDimension: s.dimension}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT project_id), COUNT(*), COALESCE(SUM(size), 0)
		FROM rag_documents
	`).Scan(&stats.TotalProjects, &stats.TotalDocuments, &stats.StorageBytes)
	if err != nil {
		return nil, storeErr(err, "count documents")
	}

	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rag_chunks`).Scan(&stats.TotalChunks)
	if err != nil {
		return nil, storeErr(err, "count chunks")
	}
	return stats, nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return ragerr.Wrap(ragerr.KindStoreUnavailable, err, "ping database")
	}
	return nil
}

// Close releases resources.
func (s *Store) Close() error {
	return s.db.Close()
}

func metadataOrEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func storeErr(err error, format string, args ...any) error {
	return ragerr.Wrap(ragerr.KindStoreUnavailable, err, format, args...)
}

// encodeEmbedding packs the vector as little-endian float32 bytes.
func encodeEmbedding(embedding []float32) []byte {
	if len(embedding) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(embedding))
	for i, f := range embedding {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeEmbedding(data []byte) []float32 {
	if len(data) < 4 {
		return nil
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec
}
