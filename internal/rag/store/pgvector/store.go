// Package pgvector provides a vector store implementation using
// PostgreSQL with the pgvector extension.
package pgvector

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/toolkit-rag/engine/internal/rag/ragerr"
	"github.com/toolkit-rag/engine/internal/rag/store"
	"github.com/toolkit-rag/engine/pkg/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store implements store.VectorStore using pgvector. Vector search is
// cosine over the `<=>` operator; keyword search uses the built-in
// full-text ranking. Per-document replace runs in one transaction so
// the document-row lock serializes concurrent writers for the same
// (project, file) pair.
type Store struct {
	db        *sql.DB
	dimension int
	ownsDB    bool // whether this store owns the db connection
}

var _ store.VectorStore = (*Store)(nil)

// Config contains configuration for the pgvector store.
type Config struct {
	// DSN is the PostgreSQL connection string.
	// If empty, DB must be provided.
	DSN string

	// DB is an existing database connection to reuse.
	// If provided, DSN is ignored and the store will not close the connection.
	DB *sql.DB

	// Dimension is the embedding dimension configured for the
	// deployment's embedding model.
	Dimension int

	// RunMigrations controls whether to run migrations on startup.
	RunMigrations bool
}

// New creates a new pgvector store.
func New(cfg Config) (*Store, error) {
	var db *sql.DB
	var ownsDB bool
	var err error

	if cfg.DB != nil {
		db = cfg.DB
		ownsDB = false
	} else if cfg.DSN != "" {
		db, err = sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		ownsDB = true

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, ragerr.Wrap(ragerr.KindStoreUnavailable, err, "ping database")
		}
	} else {
		return nil, ragerr.New(ragerr.KindValidation, "either DSN or DB must be provided")
	}

	s := &Store{
		db:        db,
		dimension: cfg.Dimension,
		ownsDB:    ownsDB,
	}

	if cfg.RunMigrations {
		if err := s.runMigrations(context.Background()); err != nil {
			if ownsDB {
				db.Close()
			}
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	return s, nil
}

// runMigrations applies pending database migrations.
func (s *Store) runMigrations(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS rag_schema_migrations (
			id TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("create rag_schema_migrations: %w", err)
	}

	migrations, err := loadMigrations()
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("get applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.ID] {
			continue
		}

		if strings.TrimSpace(m.UpSQL) == "" {
			return fmt.Errorf("missing up migration for %s", m.ID)
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", m.ID, err)
		}

		if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", m.ID, err)
		}

		if _, err := tx.ExecContext(ctx, `INSERT INTO rag_schema_migrations (id) VALUES ($1)`, m.ID); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", m.ID, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", m.ID, err)
		}
	}

	return nil
}

func (s *Store) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM rag_schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query rag_schema_migrations: %w", err)
	}
	defer rows.Close()

	applied := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan rag_schema_migrations: %w", err)
		}
		applied[id] = true
	}
	return applied, rows.Err()
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

	// The upsert takes a row lock on the document, serializing
	// concurrent replaces of the same (project, file) pair.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO rag_documents (project_id, file_id, name, size, file_type, language, metadata, chunk_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (project_id, file_id) DO UPDATE SET
			name = EXCLUDED.name,
			size = EXCLUDED.size,
			file_type = EXCLUDED.file_type,
			language = EXCLUDED.language,
			metadata = EXCLUDED.metadata,
			chunk_count = EXCLUDED.chunk_count,
			created_at = EXCLUDED.created_at
	`, doc.ProjectID, doc.FileID, doc.Name, doc.Size, doc.FileType, doc.Language,
		string(metadata), len(chunks), createdAt)
	if err != nil {
		return storeErr(err, "upsert document")
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM rag_chunks WHERE project_id = $1 AND file_id = $2`, doc.ProjectID, doc.FileID)
	if err != nil {
		return storeErr(err, "delete prior generation")
	}

	if len(chunks) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO rag_chunks (id, project_id, file_id, chunk_index, content, start_offset, end_offset, metadata, embedding, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`)
		if err != nil {
			return storeErr(err, "prepare chunk insert")
		}
		defer stmt.Close()

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

			_, err = stmt.ExecContext(ctx,
				id, doc.ProjectID, doc.FileID, chunk.Index, chunk.Content,
				chunk.StartOffset, chunk.EndOffset, string(chunkMeta),
				encodeEmbedding(chunk.Embedding), chunkCreated)
			if err != nil {
				return storeErr(err, "insert chunk %d", chunk.Index)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return storeErr(err, "commit")
	}
	return nil
}

// DeleteDocument removes a document and all its chunks.
func (s *Store) DeleteDocument(ctx context.Context, projectID, fileID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rag_chunks WHERE project_id = $1 AND file_id = $2`, projectID, fileID)
	if err != nil {
		return 0, storeErr(err, "delete chunks")
	}
	removed, _ := res.RowsAffected()

	docRes, err := s.db.ExecContext(ctx, `DELETE FROM rag_documents WHERE project_id = $1 AND file_id = $2`, projectID, fileID)
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
	res, err := s.db.ExecContext(ctx, `DELETE FROM rag_chunks WHERE project_id = $1`, projectID)
	if err != nil {
		return 0, storeErr(err, "delete chunks")
	}
	removed, _ := res.RowsAffected()

	docRes, err := s.db.ExecContext(ctx, `DELETE FROM rag_documents WHERE project_id = $1`, projectID)
	if err != nil {
		return 0, storeErr(err, "delete documents")
	}
	if n, _ := docRes.RowsAffected(); n == 0 {
		return 0, ragerr.New(ragerr.KindNotFound, "project not found").WithProject(projectID)
	}
	return removed, nil
}

// Query performs cosine nearest-neighbor search within the project.
func (s *Store) Query(ctx context.Context, projectID string, vector []float32, opts store.QueryOptions) ([]models.SearchResult, error) {
	if err := store.ValidateVector(vector, s.dimension); err != nil {
		return nil, err
	}

	query := `
		SELECT c.id, c.file_id, c.chunk_index, c.content, c.start_offset, c.end_offset,
			c.metadata, c.created_at,
			1 - (c.embedding <=> $2::vector) AS score
		FROM rag_chunks c
		JOIN rag_documents d ON d.project_id = c.project_id AND d.file_id = c.file_id
		WHERE c.project_id = $1 AND c.embedding IS NOT NULL
	`
	args := []any{projectID, encodeEmbedding(vector)}
	query, args = appendFilters(query, args, opts.Filters)

	argNum := len(args) + 1
	query += fmt.Sprintf(" AND (1 - (c.embedding <=> $2::vector)) >= $%d", argNum)
	args = append(args, opts.MinScore)
	argNum++

	query += fmt.Sprintf(" ORDER BY score DESC, c.file_id ASC, c.chunk_index ASC LIMIT $%d", argNum)
	args = append(args, opts.EffectiveLimit())

	return s.queryResults(ctx, projectID, models.SearchModeSemantic, query, args)
}

// KeywordQuery performs full-text search within the project.
func (s *Store) KeywordQuery(ctx context.Context, projectID, text string, opts store.QueryOptions) ([]models.SearchResult, error) {
	query := `
		SELECT c.id, c.file_id, c.chunk_index, c.content, c.start_offset, c.end_offset,
			c.metadata, c.created_at,
			ts_rank(to_tsvector('simple', c.content), plainto_tsquery('simple', $2)) AS score
		FROM rag_chunks c
		JOIN rag_documents d ON d.project_id = c.project_id AND d.file_id = c.file_id
		WHERE c.project_id = $1
			AND to_tsvector('simple', c.content) @@ plainto_tsquery('simple', $2)
	`
	args := []any{projectID, text}
	query, args = appendFilters(query, args, opts.Filters)

	argNum := len(args) + 1
	if opts.MinScore > 0 {
		query += fmt.Sprintf(" AND ts_rank(to_tsvector('simple', c.content), plainto_tsquery('simple', $2)) >= $%d", argNum)
		args = append(args, opts.MinScore)
		argNum++
	}

	query += fmt.Sprintf(" ORDER BY score DESC, c.file_id ASC, c.chunk_index ASC LIMIT $%d", argNum)
	args = append(args, opts.EffectiveLimit())

	return s.queryResults(ctx, projectID, models.SearchModeKeyword, query, args)
}

func (s *Store) queryResults(ctx context.Context, projectID string, mode models.SearchMode, query string, args []any) ([]models.SearchResult, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr(err, "search query")
	}
	defer rows.Close()

	var results []models.SearchResult
	for rows.Next() {
		var chunk models.Chunk
		var metadataJSON string
		var score float64

		err := rows.Scan(
			&chunk.ID, &chunk.FileID, &chunk.Index, &chunk.Content,
			&chunk.StartOffset, &chunk.EndOffset, &metadataJSON,
			&chunk.CreatedAt, &score)
		if err != nil {
			return nil, storeErr(err, "scan search result")
		}
		chunk.ProjectID = projectID

		if err := json.Unmarshal([]byte(metadataJSON), &chunk.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal chunk metadata: %w", err)
		}

		results = append(results, models.SearchResult{
			Chunk: &chunk,
			Score: float32(score),
			Mode:  mode,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err, "rows")
	}
	return results, nil
}

// ListFileIDs returns the sorted document identifiers in the project.
func (s *Store) ListFileIDs(ctx context.Context, projectID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT file_id FROM rag_documents WHERE project_id = $1 ORDER BY file_id ASC`, projectID)
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
		FROM rag_documents WHERE project_id = $1
	`, projectID).Scan(&stats.TotalDocuments, &stats.StorageBytes, &lastIndexed)
	if err != nil {
		return nil, storeErr(err, "count documents")
	}
	if lastIndexed.Valid {
		stats.LastIndexed = &lastIndexed.Time
	}

	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rag_chunks WHERE project_id = $1`, projectID).Scan(&stats.TotalChunks)
	if err != nil {
		return nil, storeErr(err, "count chunks")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT file_type, COUNT(*) FROM rag_documents
		WHERE project_id = $1 AND file_type <> ''
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
	if s.ownsDB && s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Helper functions

// appendFilters adds metadata filter predicates to a query that has
// aliases c (chunks) and d (documents).
func appendFilters(query string, args []any, f models.SearchFilters) (string, []any) {
	argNum := len(args) + 1

	if len(f.FileIDs) > 0 {
		placeholders := make([]string, len(f.FileIDs))
		for i, id := range f.FileIDs {
			placeholders[i] = fmt.Sprintf("$%d", argNum)
			args = append(args, id)
			argNum++
		}
		query += fmt.Sprintf(" AND c.file_id IN (%s)", strings.Join(placeholders, ","))
	}
	if len(f.FileTypes) > 0 {
		placeholders := make([]string, len(f.FileTypes))
		for i, ft := range f.FileTypes {
			placeholders[i] = fmt.Sprintf("$%d", argNum)
			args = append(args, ft)
			argNum++
		}
		query += fmt.Sprintf(" AND d.file_type IN (%s)", strings.Join(placeholders, ","))
	}
	if len(f.Languages) > 0 {
		placeholders := make([]string, len(f.Languages))
		for i, lang := range f.Languages {
			placeholders[i] = fmt.Sprintf("$%d", argNum)
			args = append(args, lang)
			argNum++
		}
		query += fmt.Sprintf(" AND d.language IN (%s)", strings.Join(placeholders, ","))
	}
	return query, args
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

func encodeEmbedding(embedding []float32) sql.NullString {
	if len(embedding) == 0 {
		return sql.NullString{}
	}

	var sb strings.Builder
	sb.WriteByte('[')
	for i, f := range embedding {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(fmt.Sprintf("%g", f))
	}
	sb.WriteByte(']')

	return sql.NullString{String: sb.String(), Valid: true}
}

// Migration represents an embedded migration.
type Migration struct {
	ID      string
	UpSQL   string
	DownSQL string
}

func loadMigrations() ([]Migration, error) {
	paths, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	entries := map[string]*Migration{}
	for _, path := range paths {
		base := strings.TrimPrefix(path, "migrations/")
		suffix := ""
		switch {
		case strings.HasSuffix(base, ".up.sql"):
			suffix = ".up.sql"
		case strings.HasSuffix(base, ".down.sql"):
			suffix = ".down.sql"
		default:
			continue
		}
		id := strings.TrimSuffix(base, suffix)
		entry := entries[id]
		if entry == nil {
			entry = &Migration{ID: id}
			entries[id] = entry
		}
		data, err := migrationsFS.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", path, err)
		}
		if suffix == ".up.sql" {
			entry.UpSQL = string(data)
		} else {
			entry.DownSQL = string(data)
		}
	}

	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	migrations := make([]Migration, 0, len(ids))
	for _, id := range ids {
		migrations = append(migrations, *entries[id])
	}
	return migrations, nil
}
