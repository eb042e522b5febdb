// Package qdrant provides a vector store implementation backed by a
// Qdrant server over its REST API.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/toolkit-rag/engine/internal/rag/ragerr"
	"github.com/toolkit-rag/engine/internal/rag/store"
	"github.com/toolkit-rag/engine/pkg/models"
)

const (
	defaultTimeout   = 15 * time.Second
	collectionPrefix = "rag_"
	scrollPageSize   = 256
)

// Store implements store.VectorStore over the Qdrant REST API. Each
// project maps to its own collection, which gives the tenant
// partition. Keyword search scrolls the collection and scores
// lexically in-process since Qdrant has no text ranking.
type Store struct {
	url       string
	apiKey    string
	dimension int
	client    *http.Client
}

var _ store.VectorStore = (*Store)(nil)

// Config contains configuration for the Qdrant store.
type Config struct {
	// URL is the base URL of the Qdrant server, e.g. http://localhost:6333.
	URL string

	// APIKey is sent in the api-key header when set.
	APIKey string

	// Dimension is the embedding dimension configured for the
	// deployment's embedding model.
	Dimension int

	// Timeout bounds each request. Defaults to 15s.
	Timeout time.Duration

	// HTTPClient overrides the default client when set.
	HTTPClient *http.Client
}

// New creates a new Qdrant store.
func New(cfg Config) (*Store, error) {
	if cfg.URL == "" {
		return nil, ragerr.New(ragerr.KindValidation, "qdrant URL is required")
	}
	if cfg.Dimension <= 0 {
		return nil, ragerr.New(ragerr.KindValidation, "qdrant store requires a positive dimension")
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	return &Store{
		url:       cfg.URL,
		apiKey:    cfg.APIKey,
		dimension: cfg.Dimension,
		client:    client,
	}, nil
}

func collectionName(projectID string) string {
	return collectionPrefix + projectID
}

// pointID derives a stable point identifier so re-ingesting a document
// overwrites its previous points instead of accumulating duplicates.
func pointID(fileID string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s:%d", fileID, index))).String()
}

// ensureCollection creates the project collection if missing. Qdrant
// returns 409 when the collection already exists.
func (s *Store) ensureCollection(ctx context.Context, projectID string) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     s.dimension,
			"distance": "Cosine",
		},
	}
	status, err := s.do(ctx, http.MethodPut, fmt.Sprintf("/collections/%s", collectionName(projectID)), body, nil)
	if err != nil {
		return err
	}
	if status >= 300 && status != http.StatusConflict {
		return ragerr.New(ragerr.KindStoreUnavailable, "create collection: status %d", status).WithProject(projectID)
	}
	return nil
}

// UpsertChunks atomically replaces the document's chunk set. Qdrant
// has no transactions, so the prior generation is deleted by filter
// and the new points are written with wait=true before returning.
func (s *Store) UpsertChunks(ctx context.Context, doc *models.Document, chunks []*models.Chunk) error {
	for i, chunk := range chunks {
		if err := store.ValidateVector(chunk.Embedding, s.dimension); err != nil {
			return ragerr.Wrap(ragerr.KindOf(err), err, "validate embedding for chunk %d", i).WithProject(doc.ProjectID).WithFile(doc.FileID)
		}
	}

	if err := s.ensureCollection(ctx, doc.ProjectID); err != nil {
		return err
	}

	if err := s.deleteByFile(ctx, doc.ProjectID, doc.FileID); err != nil {
		return err
	}

	if len(chunks) == 0 {
		return nil
	}

	createdAt := doc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	points := make([]map[string]any, len(chunks))
	for i, chunk := range chunks {
		points[i] = map[string]any{
			"id":     pointID(doc.FileID, chunk.Index),
			"vector": chunk.Embedding,
			"payload": map[string]any{
				"file_id":      doc.FileID,
				"chunk_index":  chunk.Index,
				"content":      chunk.Content,
				"start_offset": chunk.StartOffset,
				"end_offset":   chunk.EndOffset,
				"metadata":     metadataOrEmpty(chunk.Metadata),
				"doc_name":     doc.Name,
				"doc_size":     doc.Size,
				"file_type":    doc.FileType,
				"language":     doc.Language,
				"created_at":   createdAt.Format(time.RFC3339Nano),
			},
		}
	}

	path := fmt.Sprintf("/collections/%s/points?wait=true", collectionName(doc.ProjectID))
	status, err := s.do(ctx, http.MethodPut, path, map[string]any{"points": points}, nil)
	if err != nil {
		return err
	}
	if status >= 300 {
		return ragerr.New(ragerr.KindStoreUnavailable, "upsert points: status %d", status).WithProject(doc.ProjectID).WithFile(doc.FileID)
	}
	return nil
}

func (s *Store) deleteByFile(ctx context.Context, projectID, fileID string) error {
	body := map[string]any{
		"filter": fileFilter(fileID),
	}
	path := fmt.Sprintf("/collections/%s/points/delete?wait=true", collectionName(projectID))
	status, err := s.do(ctx, http.MethodPost, path, body, nil)
	if err != nil {
		return err
	}
	if status >= 300 && status != http.StatusNotFound {
		return ragerr.New(ragerr.KindStoreUnavailable, "delete points: status %d", status).WithProject(projectID).WithFile(fileID)
	}
	return nil
}

func fileFilter(fileID string) map[string]any {
	return map[string]any{
		"must": []map[string]any{
			{"key": "file_id", "match": map[string]any{"value": fileID}},
		},
	}
}

// DeleteDocument removes a document's points and returns how many were removed.
func (s *Store) DeleteDocument(ctx context.Context, projectID, fileID string) (int64, error) {
	count, err := s.countPoints(ctx, projectID, fileFilter(fileID))
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, ragerr.New(ragerr.KindNotFound, "document %s not found", fileID).WithProject(projectID)
	}
	if err := s.deleteByFile(ctx, projectID, fileID); err != nil {
		return 0, err
	}
	return count, nil
}

// DeleteProject drops the project's collection.
func (s *Store) DeleteProject(ctx context.Context, projectID string) (int64, error) {
	count, err := s.countPoints(ctx, projectID, nil)
	if err != nil {
		return 0, err
	}

	status, err := s.do(ctx, http.MethodDelete, fmt.Sprintf("/collections/%s", collectionName(projectID)), nil, nil)
	if err != nil {
		return 0, err
	}
	if status == http.StatusNotFound {
		return 0, ragerr.New(ragerr.KindNotFound, "project not found").WithProject(projectID)
	}
	if status >= 300 {
		return 0, ragerr.New(ragerr.KindStoreUnavailable, "delete collection: status %d", status).WithProject(projectID)
	}
	return count, nil
}

func (s *Store) countPoints(ctx context.Context, projectID string, filter map[string]any) (int64, error) {
	body := map[string]any{"exact": true}
	if filter != nil {
		body["filter"] = filter
	}
	var resp struct {
		Result struct {
			Count int64 `json:"count"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/count", collectionName(projectID))
	status, err := s.do(ctx, http.MethodPost, path, body, &resp)
	if err != nil {
		return 0, err
	}
	if status == http.StatusNotFound {
		return 0, ragerr.New(ragerr.KindNotFound, "project not found").WithProject(projectID)
	}
	if status >= 300 {
		return 0, ragerr.New(ragerr.KindStoreUnavailable, "count points: status %d", status).WithProject(projectID)
	}
	return resp.Result.Count, nil
}

// Query performs cosine nearest-neighbor search within the project.
func (s *Store) Query(ctx context.Context, projectID string, vector []float32, opts store.QueryOptions) ([]models.SearchResult, error) {
	if err := store.ValidateVector(vector, s.dimension); err != nil {
		return nil, err
	}

	body := map[string]any{
		"vector":       vector,
		"limit":        opts.EffectiveLimit(),
		"with_payload": true,
	}
	if opts.MinScore > 0 {
		body["score_threshold"] = opts.MinScore
	}
	if filter := searchFilter(opts.Filters); filter != nil {
		body["filter"] = filter
	}

	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", collectionName(projectID))
	status, err := s.do(ctx, http.MethodPost, path, body, &resp)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		// No collection means no documents, not an error.
		return nil, nil
	}
	if status >= 300 {
		return nil, ragerr.New(ragerr.KindStoreUnavailable, "search: status %d", status).WithProject(projectID)
	}

	results := make([]models.SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		results = append(results, models.SearchResult{
			Chunk: chunkFromPayload(projectID, r.Payload),
			Score: float32(r.Score),
			Mode:  models.SearchModeSemantic,
		})
	}
	store.SortResults(results)
	return results, nil
}

// KeywordQuery scrolls the project's points and scores them lexically.
func (s *Store) KeywordQuery(ctx context.Context, projectID, text string, opts store.QueryOptions) ([]models.SearchResult, error) {
	var results []models.SearchResult
	err := s.scroll(ctx, projectID, searchFilter(opts.Filters), func(payload map[string]any) {
		chunk := chunkFromPayload(projectID, payload)
		score := store.LexicalScore(text, chunk.Content)
		if score <= 0 {
			return
		}
		results = append(results, models.SearchResult{
			Chunk: chunk,
			Score: score,
			Mode:  models.SearchModeKeyword,
		})
	})
	if err != nil {
		return nil, err
	}
	store.SortResults(results)
	return store.Truncate(results, opts.MinScore, opts.EffectiveLimit()), nil
}

// scroll pages through every point in the project's collection. A
// missing collection is treated as an empty project.
func (s *Store) scroll(ctx context.Context, projectID string, filter map[string]any, visit func(payload map[string]any)) error {
	path := fmt.Sprintf("/collections/%s/points/scroll", collectionName(projectID))
	var offset any

	for {
		body := map[string]any{
			"limit":        scrollPageSize,
			"with_payload": true,
		}
		if filter != nil {
			body["filter"] = filter
		}
		if offset != nil {
			body["offset"] = offset
		}

		var resp struct {
			Result struct {
				Points []struct {
					Payload map[string]any `json:"payload"`
				} `json:"points"`
				NextPageOffset any `json:"next_page_offset"`
			} `json:"result"`
		}
		status, err := s.do(ctx, http.MethodPost, path, body, &resp)
		if err != nil {
			return err
		}
		if status == http.StatusNotFound {
			return nil
		}
		if status >= 300 {
			return ragerr.New(ragerr.KindStoreUnavailable, "scroll points: status %d", status).WithProject(projectID)
		}

		for _, p := range resp.Result.Points {
			visit(p.Payload)
		}
		if resp.Result.NextPageOffset == nil {
			return nil
		}
		offset = resp.Result.NextPageOffset
	}
}

// ListFileIDs returns the sorted document identifiers in the project.
func (s *Store) ListFileIDs(ctx context.Context, projectID string) ([]string, error) {
	seen := map[string]bool{}
	err := s.scroll(ctx, projectID, nil, func(payload map[string]any) {
		if id, ok := payload["file_id"].(string); ok {
			seen[id] = true
		}
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// ProjectStats aggregates counts for one project.
func (s *Store) ProjectStats(ctx context.Context, projectID string) (*models.ProjectStats, error) {
	stats := &models.ProjectStats{
		ProjectID: projectID,
		FileTypes: make(map[string]int),
	}

	type docInfo struct {
		size      int64
		fileType  string
		createdAt time.Time
	}
	docs := map[string]docInfo{}

	err := s.scroll(ctx, projectID, nil, func(payload map[string]any) {
		stats.TotalChunks++
		fileID, _ := payload["file_id"].(string)
		if fileID == "" {
			return
		}
		// Doc-level fields repeat on every chunk; keep the first.
		if _, ok := docs[fileID]; ok {
			return
		}
		info := docInfo{}
		if v, ok := payload["doc_size"].(float64); ok {
			info.size = int64(v)
		}
		if v, ok := payload["file_type"].(string); ok {
			info.fileType = v
		}
		if v, ok := payload["created_at"].(string); ok {
			if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
				info.createdAt = t
			}
		}
		docs[fileID] = info
	})
	if err != nil {
		return nil, err
	}

	for _, info := range docs {
		stats.TotalDocuments++
		stats.StorageBytes += info.size
		if info.fileType != "" {
			stats.FileTypes[info.fileType]++
		}
		if !info.createdAt.IsZero() && (stats.LastIndexed == nil || info.createdAt.After(*stats.LastIndexed)) {
			t := info.createdAt
			stats.LastIndexed = &t
		}
	}
	return stats, nil
}

// SystemStats aggregates counts across every project collection.
func (s *Store) SystemStats(ctx context.Context) (*models.SystemStats, error) {
	projects, err := s.listProjects(ctx)
	if err != nil {
		return nil, err
	}

	stats := &models.SystemStats{EmbeddingDimension: s.dimension}
	for _, projectID := range projects {
		ps, err := s.ProjectStats(ctx, projectID)
		if err != nil {
			return nil, err
		}
		stats.TotalProjects++
		stats.TotalDocuments += ps.TotalDocuments
		stats.TotalChunks += ps.TotalChunks
		stats.StorageBytes += ps.StorageBytes
	}
	return stats, nil
}

func (s *Store) listProjects(ctx context.Context) ([]string, error) {
	var resp struct {
		Result struct {
			Collections []struct {
				Name string `json:"name"`
			} `json:"collections"`
		} `json:"result"`
	}
	status, err := s.do(ctx, http.MethodGet, "/collections", nil, &resp)
	if err != nil {
		return nil, err
	}
	if status >= 300 {
		return nil, ragerr.New(ragerr.KindStoreUnavailable, "list collections: status %d", status)
	}

	var projects []string
	for _, c := range resp.Result.Collections {
		if len(c.Name) > len(collectionPrefix) && c.Name[:len(collectionPrefix)] == collectionPrefix {
			projects = append(projects, c.Name[len(collectionPrefix):])
		}
	}
	sort.Strings(projects)
	return projects, nil
}

// Ping verifies the server is reachable.
func (s *Store) Ping(ctx context.Context) error {
	status, err := s.do(ctx, http.MethodGet, "/collections", nil, nil)
	if err != nil {
		return err
	}
	if status >= 300 {
		return ragerr.New(ragerr.KindStoreUnavailable, "qdrant unhealthy: status %d", status)
	}
	return nil
}

// Close releases resources. The HTTP client has nothing to close.
func (s *Store) Close() error { return nil }

func searchFilter(f models.SearchFilters) map[string]any {
	if f.Empty() {
		return nil
	}
	var must []map[string]any
	if len(f.FileIDs) > 0 {
		must = append(must, map[string]any{"key": "file_id", "match": map[string]any{"any": f.FileIDs}})
	}
	if len(f.FileTypes) > 0 {
		must = append(must, map[string]any{"key": "file_type", "match": map[string]any{"any": f.FileTypes}})
	}
	if len(f.Languages) > 0 {
		must = append(must, map[string]any{"key": "language", "match": map[string]any{"any": f.Languages}})
	}
	return map[string]any{"must": must}
}

func chunkFromPayload(projectID string, payload map[string]any) *models.Chunk {
	chunk := &models.Chunk{ProjectID: projectID}
	if v, ok := payload["file_id"].(string); ok {
		chunk.FileID = v
	}
	if v, ok := payload["chunk_index"].(float64); ok {
		chunk.Index = int(v)
	}
	if v, ok := payload["content"].(string); ok {
		chunk.Content = v
	}
	if v, ok := payload["start_offset"].(float64); ok {
		chunk.StartOffset = int(v)
	}
	if v, ok := payload["end_offset"].(float64); ok {
		chunk.EndOffset = int(v)
	}
	if v, ok := payload["metadata"].(map[string]any); ok {
		chunk.Metadata = make(map[string]string, len(v))
		for k, mv := range v {
			if sv, ok := mv.(string); ok {
				chunk.Metadata[k] = sv
			}
		}
	}
	if v, ok := payload["created_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			chunk.CreatedAt = t
		}
	}
	chunk.ID = pointID(chunk.FileID, chunk.Index)
	return chunk
}

func metadataOrEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

// do issues one request and decodes the response into out when
// provided. Transport failures map to store errors; HTTP status
// handling is left to the caller since some codes are expected.
func (s *Store) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.url+path, reader)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, ragerr.Wrap(ragerr.KindStoreUnavailable, err, "qdrant %s %s", method, path)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, ragerr.Wrap(ragerr.KindStoreUnavailable, err, "decode qdrant response")
		}
	}
	return resp.StatusCode, nil
}
