// Package models defines the core data types for the retrieval engine.
package models

import (
	"time"
)

// Document represents an indexed unit of content within a project.
// A document is identified by its FileID, which is unique within the
// owning project; re-ingesting the same FileID replaces all of its
// chunks atomically.
type Document struct {
	// ProjectID is the tenant that owns this document.
	ProjectID string `json:"project_id"`

	// FileID is the document identifier, unique within the project.
	FileID string `json:"file_id"`

	// Name is the human-readable name of the document.
	Name string `json:"name,omitempty"`

	// Size is the byte length of the ingested text.
	Size int64 `json:"size"`

	// FileType is the declared file type (e.g. "code", "documentation").
	FileType string `json:"file_type,omitempty"`

	// Language is the declared language (e.g. "go", "python").
	Language string `json:"language,omitempty"`

	// Metadata contains arbitrary user-supplied key-value pairs.
	Metadata map[string]string `json:"metadata,omitempty"`

	// ChunkCount is the number of chunks in the current generation.
	ChunkCount int `json:"chunk_count,omitempty"`

	// CreatedAt is when this generation of the document was committed.
	CreatedAt time.Time `json:"created_at"`
}

// Chunk is a contiguous slice of a document's text and the unit of
// embedding and retrieval. Offsets are character positions into the
// source text of the owning document.
type Chunk struct {
	// ID is the unique identifier for this chunk.
	ID string `json:"id"`

	// ProjectID is the tenant that owns this chunk.
	ProjectID string `json:"project_id"`

	// FileID links this chunk to its parent document.
	FileID string `json:"file_id"`

	// Index is the position of this chunk within the document (0-based).
	Index int `json:"index"`

	// Content is the text content of this chunk.
	Content string `json:"content"`

	// StartOffset is the character offset in the source text.
	StartOffset int `json:"start_offset"`

	// EndOffset is the ending character offset (exclusive).
	EndOffset int `json:"end_offset"`

	// Embedding is the vector embedding for semantic search.
	Embedding []float32 `json:"-"`

	// Metadata is inherited from the document plus chunk-local fields.
	Metadata map[string]string `json:"metadata,omitempty"`

	// CreatedAt is when the chunk was created.
	CreatedAt time.Time `json:"created_at"`
}

// SearchMode selects the retrieval strategy for a search.
type SearchMode string

const (
	// SearchModeSemantic retrieves by vector similarity.
	SearchModeSemantic SearchMode = "semantic"
	// SearchModeKeyword retrieves by lexical match over chunk text.
	SearchModeKeyword SearchMode = "keyword"
	// SearchModeHybrid blends semantic and keyword scores.
	SearchModeHybrid SearchMode = "hybrid"
)

// Valid reports whether the mode is one of the supported search modes.
func (m SearchMode) Valid() bool {
	switch m {
	case SearchModeSemantic, SearchModeKeyword, SearchModeHybrid:
		return true
	}
	return false
}

// SearchFilters restricts a search to a subset of a project's chunks.
type SearchFilters struct {
	// FileIDs limits results to the listed documents.
	FileIDs []string `json:"file_ids,omitempty"`

	// FileTypes limits results to documents of the listed types.
	FileTypes []string `json:"file_types,omitempty"`

	// Languages limits results to documents in the listed languages.
	Languages []string `json:"languages,omitempty"`
}

// Empty reports whether no filter is set.
func (f SearchFilters) Empty() bool {
	return len(f.FileIDs) == 0 && len(f.FileTypes) == 0 && len(f.Languages) == 0
}

// SearchRequest defines parameters for a search against one project.
type SearchRequest struct {
	// ProjectID is the tenant to search in.
	ProjectID string `json:"project_id"`

	// Query is the search query text.
	Query string `json:"query"`

	// Mode selects semantic, keyword, or hybrid retrieval.
	// Defaults to semantic when empty.
	Mode SearchMode `json:"mode,omitempty"`

	// Limit is the maximum number of results to return.
	Limit int `json:"limit,omitempty"`

	// MinScore drops results scoring below this threshold.
	MinScore float32 `json:"min_score,omitempty"`

	// Filters restricts the search to matching chunks.
	Filters SearchFilters `json:"filters,omitempty"`
}

// SearchResult is a single matching chunk with its relevance score.
// Score semantics depend on the mode that produced the result.
type SearchResult struct {
	// Chunk is the matching chunk.
	Chunk *Chunk `json:"chunk"`

	// Score is the relevance score, higher is better.
	Score float32 `json:"score"`

	// Mode is the search mode that produced this score.
	Mode SearchMode `json:"mode"`
}

// SearchResponse contains the ordered results of one search.
type SearchResponse struct {
	// Results are the matching chunks ordered by descending score.
	Results []SearchResult `json:"results"`

	// TotalCount is the number of results returned.
	TotalCount int `json:"total_count"`

	// Cached reports whether the response was served from the result cache.
	Cached bool `json:"cached,omitempty"`

	// QueryTime is how long the search took.
	QueryTime time.Duration `json:"query_time"`
}

// IngestResult reports the outcome of ingesting one document.
type IngestResult struct {
	// ProjectID and FileID identify the ingested document.
	ProjectID string `json:"project_id"`
	FileID    string `json:"file_id"`

	// ChunkCount is the number of chunks committed.
	ChunkCount int `json:"chunk_count"`

	// EmbeddingModel is the model that produced the embeddings.
	EmbeddingModel string `json:"embedding_model"`

	// DurationMs is the wall-clock time for the whole operation.
	DurationMs int64 `json:"duration_ms"`
}

// ProjectStats aggregates counts for a single project.
type ProjectStats struct {
	ProjectID      string         `json:"project_id"`
	TotalDocuments int64          `json:"total_documents"`
	TotalChunks    int64          `json:"total_chunks"`
	FileTypes      map[string]int `json:"file_types,omitempty"`
	StorageBytes   int64          `json:"storage_size"`
	LastIndexed    *time.Time     `json:"last_indexed,omitempty"`
}

// SystemStats aggregates counts across every project.
type SystemStats struct {
	TotalProjects  int64 `json:"total_projects"`
	TotalDocuments int64 `json:"total_documents"`
	TotalChunks    int64 `json:"total_chunks"`
	StorageBytes   int64 `json:"storage_size"`

	// EmbeddingDimension is the configured embedding dimension.
	EmbeddingDimension int `json:"embedding_dimension,omitempty"`
}
