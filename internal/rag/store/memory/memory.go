// Package memory provides an in-process vector store backed by maps.
// It performs exact-scan search and exists for unit tests and the
// zero-dependency development mode.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/toolkit-rag/engine/internal/rag/ragerr"
	"github.com/toolkit-rag/engine/internal/rag/store"
	"github.com/toolkit-rag/engine/pkg/models"
)

// Store implements store.VectorStore in memory.
type Store struct {
	mu        sync.RWMutex
	dimension int
	projects  map[string]map[string]*docEntry // project -> file_id -> generation
}

type docEntry struct {
	doc    *models.Document
	chunks []*models.Chunk
}

var _ store.VectorStore = (*Store)(nil)

// New creates an empty in-memory store. A positive dimension enables
// vector validation on writes and queries.
func New(dimension int) *Store {
	return &Store{
		dimension: dimension,
		projects:  make(map[string]map[string]*docEntry),
	}
}

// UpsertChunks atomically replaces the document's chunk set.
func (s *Store) UpsertChunks(ctx context.Context, doc *models.Document, chunks []*models.Chunk) error {
	for i, chunk := range chunks {
		if err := store.ValidateVector(chunk.Embedding, s.dimension); err != nil {
			return ragerr.Wrap(ragerr.KindOf(err), err, "chunk %d", i).WithProject(doc.ProjectID).WithFile(doc.FileID)
		}
	}

	entry := &docEntry{
		doc:    cloneDocument(doc),
		chunks: make([]*models.Chunk, len(chunks)),
	}
	for i, chunk := range chunks {
		entry.chunks[i] = cloneChunk(chunk)
	}
	entry.doc.ChunkCount = len(chunks)
	if entry.doc.CreatedAt.IsZero() {
		entry.doc.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	project := s.projects[doc.ProjectID]
	if project == nil {
		project = make(map[string]*docEntry)
		s.projects[doc.ProjectID] = project
	}
	project[doc.FileID] = entry
	return nil
}

// DeleteDocument removes a document and returns its chunk count.
func (s *Store) DeleteDocument(ctx context.Context, projectID, fileID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	project := s.projects[projectID]
	entry, ok := project[fileID]
	if !ok {
		return 0, ragerr.New(ragerr.KindNotFound, "document %s not found", fileID).WithProject(projectID)
	}
	delete(project, fileID)
	if len(project) == 0 {
		delete(s.projects, projectID)
	}
	return int64(len(entry.chunks)), nil
}

// DeleteProject removes every document in the project.
func (s *Store) DeleteProject(ctx context.Context, projectID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	project, ok := s.projects[projectID]
	if !ok {
		return 0, ragerr.New(ragerr.KindNotFound, "project not found").WithProject(projectID)
	}
	var removed int64
	for _, entry := range project {
		removed += int64(len(entry.chunks))
	}
	delete(s.projects, projectID)
	return removed, nil
}

// Query performs an exact cosine scan over the project partition.
func (s *Store) Query(ctx context.Context, projectID string, vector []float32, opts store.QueryOptions) ([]models.SearchResult, error) {
	if err := store.ValidateVector(vector, s.dimension); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []models.SearchResult
	for _, entry := range s.projects[projectID] {
		if !store.MatchesFilters(entry.doc, opts.Filters) {
			continue
		}
		for _, chunk := range entry.chunks {
			score := store.Cosine(vector, chunk.Embedding)
			if score < opts.MinScore {
				continue
			}
			results = append(results, models.SearchResult{
				Chunk: cloneChunk(chunk),
				Score: score,
				Mode:  models.SearchModeSemantic,
			})
		}
	}

	store.SortResults(results)
	return store.Truncate(results, opts.MinScore, opts.EffectiveLimit()), nil
}

// KeywordQuery performs lexical search over chunk text.
func (s *Store) KeywordQuery(ctx context.Context, projectID, text string, opts store.QueryOptions) ([]models.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []models.SearchResult
	for _, entry := range s.projects[projectID] {
		if !store.MatchesFilters(entry.doc, opts.Filters) {
			continue
		}
		for _, chunk := range entry.chunks {
			score := store.LexicalScore(text, chunk.Content)
			if score <= 0 || score < opts.MinScore {
				continue
			}
			results = append(results, models.SearchResult{
				Chunk: cloneChunk(chunk),
				Score: score,
				Mode:  models.SearchModeKeyword,
			})
		}
	}

	store.SortResults(results)
	return store.Truncate(results, opts.MinScore, opts.EffectiveLimit()), nil
}

// ListFileIDs returns the sorted document identifiers in the project.
func (s *Store) ListFileIDs(ctx context.Context, projectID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	project := s.projects[projectID]
	ids := make([]string, 0, len(project))
	for fileID := range project {
		ids = append(ids, fileID)
	}
	sort.Strings(ids)
	return ids, nil
}

// ProjectStats aggregates counts for one project.
func (s *Store) ProjectStats(ctx context.Context, projectID string) (*models.ProjectStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &models.ProjectStats{
		ProjectID: projectID,
		FileTypes: make(map[string]int),
	}
	for _, entry := range s.projects[projectID] {
		stats.TotalDocuments++
		stats.TotalChunks += int64(len(entry.chunks))
		if entry.doc.FileType != "" {
			stats.FileTypes[entry.doc.FileType]++
		}
		for _, chunk := range entry.chunks {
			stats.StorageBytes += int64(len(chunk.Content))
		}
		if stats.LastIndexed == nil || entry.doc.CreatedAt.After(*stats.LastIndexed) {
			created := entry.doc.CreatedAt
			stats.LastIndexed = &created
		}
	}
	return stats, nil
}

// SystemStats aggregates counts across all projects.
func (s *Store) SystemStats(ctx context.Context) (*models.SystemStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &models.SystemStats{EmbeddingDimension: s.dimension}
	for _, project := range s.projects {
		stats.TotalProjects++
		for _, entry := range project {
			stats.TotalDocuments++
			stats.TotalChunks += int64(len(entry.chunks))
			for _, chunk := range entry.chunks {
				stats.StorageBytes += int64(len(chunk.Content))
			}
		}
	}
	return stats, nil
}

// Ping always succeeds for the in-memory store.
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// Close releases the store's data.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects = make(map[string]map[string]*docEntry)
	return nil
}

func cloneDocument(doc *models.Document) *models.Document {
	out := *doc
	if doc.Metadata != nil {
		out.Metadata = make(map[string]string, len(doc.Metadata))
		for k, v := range doc.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

func cloneChunk(chunk *models.Chunk) *models.Chunk {
	out := *chunk
	if chunk.Embedding != nil {
		out.Embedding = append([]float32(nil), chunk.Embedding...)
	}
	if chunk.Metadata != nil {
		out.Metadata = make(map[string]string, len(chunk.Metadata))
		for k, v := range chunk.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}
