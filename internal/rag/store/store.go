// Package store defines the vector-store abstraction the retrieval
// engine runs on, plus the scoring helpers shared by the exact-scan
// backends.
//
// Backends index vectors differently (exact scan, inverted file,
// approximate graphs); the interface guarantees the ordering contract
// and per-project isolation, not a specific indexing algorithm.
package store

import (
	"context"

	"github.com/toolkit-rag/engine/pkg/models"
)

// VectorStore is the persistence interface for chunks and embeddings.
// Every operation is scoped to a single project; no call can observe
// another project's data.
type VectorStore interface {
	// UpsertChunks atomically replaces all chunks for the document
	// identified by (doc.ProjectID, doc.FileID). Readers observe
	// either the prior generation or the new one, never a mix.
	UpsertChunks(ctx context.Context, doc *models.Document, chunks []*models.Chunk) error

	// DeleteDocument removes a document and all of its chunks,
	// returning the number of chunks removed. Unknown documents fail
	// with a not-found error.
	DeleteDocument(ctx context.Context, projectID, fileID string) (int64, error)

	// DeleteProject removes every document in the project, returning
	// the number of chunks removed.
	DeleteProject(ctx context.Context, projectID string) (int64, error)

	// Query performs nearest-neighbor search over the project
	// partition. Results are ordered by descending score; ties are
	// broken by (file_id, chunk index) ascending. Vectors of the
	// wrong dimensionality fail with a dimension-mismatch error.
	Query(ctx context.Context, projectID string, vector []float32, opts QueryOptions) ([]models.SearchResult, error)

	// KeywordQuery performs lexical search over chunk text with the
	// same ordering contract as Query.
	KeywordQuery(ctx context.Context, projectID, text string, opts QueryOptions) ([]models.SearchResult, error)

	// ListFileIDs returns the document identifiers indexed in the
	// project, sorted ascending.
	ListFileIDs(ctx context.Context, projectID string) ([]string, error)

	// ProjectStats aggregates counts for one project.
	ProjectStats(ctx context.Context, projectID string) (*models.ProjectStats, error)

	// SystemStats aggregates counts across all projects.
	SystemStats(ctx context.Context) (*models.SystemStats, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// QueryOptions bounds and filters a single query.
type QueryOptions struct {
	// Limit is the maximum number of results. Default: 10.
	Limit int

	// MinScore drops results scoring below this threshold.
	MinScore float32

	// Filters restricts the query to matching chunks.
	Filters models.SearchFilters
}

// DefaultLimit is applied when QueryOptions.Limit is not positive.
const DefaultLimit = 10

// EffectiveLimit returns the limit to use for a query.
func (o QueryOptions) EffectiveLimit() int {
	if o.Limit <= 0 {
		return DefaultLimit
	}
	return o.Limit
}
