// Package ingest coordinates the document ingestion pipeline:
// chunking, batched embedding, and atomic storage, with retry and
// cache invalidation around the write path.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/toolkit-rag/engine/internal/cache"
	"github.com/toolkit-rag/engine/internal/observability"
	"github.com/toolkit-rag/engine/internal/rag/chunker"
	"github.com/toolkit-rag/engine/internal/rag/embeddings"
	"github.com/toolkit-rag/engine/internal/rag/ragerr"
	"github.com/toolkit-rag/engine/internal/rag/store"
	"github.com/toolkit-rag/engine/internal/ratelimit"
	"github.com/toolkit-rag/engine/internal/retry"
	"github.com/toolkit-rag/engine/pkg/models"
)

// RateClassIngest is the limiter class applied to ingestion traffic.
const RateClassIngest = "ingest"

// Options configures the ingestion orchestrator.
type Options struct {
	// BatchSize caps texts per embedding request. The provider's own
	// MaxBatchSize still applies when it is smaller. Default: 100.
	BatchSize int

	// Concurrency bounds parallel documents in IngestBatch. Default: 4.
	Concurrency int

	// Timeout is the deadline for one document's full pipeline.
	// Zero means no deadline beyond the caller's context.
	Timeout time.Duration

	// Retry governs retries of transient provider and store failures.
	Retry retry.Config

	// Cache, when set, is invalidated for the project after every
	// successful write or delete.
	Cache *cache.ResultCache

	// Limiter throttles ingestion per client. Nil disables limiting.
	Limiter *ratelimit.Registry

	// Logger, Metrics, and Tracer are optional instrumentation.
	Logger  *observability.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// Orchestrator runs the ingestion pipeline for one deployment.
type Orchestrator struct {
	provider embeddings.Provider
	store    store.VectorStore
	splitter chunker.Splitter
	opts     Options

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Request describes one document to ingest.
type Request struct {
	// ProjectID is the tenant to ingest into.
	ProjectID string

	// FileID identifies the document within the project. Re-ingesting
	// the same FileID replaces all of its chunks.
	FileID string

	// Name is an optional human-readable document name.
	Name string

	// Content is the full document text.
	Content string

	// FileType and Language classify the document for filtering.
	FileType string
	Language string

	// Metadata is attached to the document and inherited by chunks.
	Metadata map[string]string
}

// New creates an orchestrator. The splitter cuts documents into
// chunks, the provider embeds them, and the store persists them.
func New(provider embeddings.Provider, vs store.VectorStore, splitter chunker.Splitter, opts Options) *Orchestrator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = observability.NewLogger(observability.LogConfig{Level: "error"})
	}
	return &Orchestrator{
		provider: provider,
		store:    vs,
		splitter: splitter,
		opts:     opts,
		locks:    make(map[string]*sync.Mutex),
	}
}

// Ingest runs the full pipeline for one document: split, embed in
// batches, and commit as a single generation. Concurrent ingests of
// the same (project, file) serialize; different documents proceed in
// parallel.
func (o *Orchestrator) Ingest(ctx context.Context, clientID string, req *Request) (*models.IngestResult, error) {
	start := time.Now()

	if err := o.validate(req); err != nil {
		return nil, err
	}

	if o.opts.Limiter != nil {
		if err := o.opts.Limiter.Check(RateClassIngest, clientID); err != nil {
			if o.opts.Metrics != nil {
				o.opts.Metrics.RecordRateLimitRejection(RateClassIngest)
			}
			return nil, err
		}
	}

	if o.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.Timeout)
		defer cancel()
	}

	if o.opts.Tracer != nil {
		var span trace.Span
		ctx, span = o.opts.Tracer.TraceIngest(ctx, req.ProjectID, req.FileID)
		defer span.End()
	}

	unlock := o.lock(req.ProjectID, req.FileID)
	defer unlock()

	result, err := o.run(ctx, req)

	status := "success"
	if err != nil {
		status = "error"
	}
	if o.opts.Metrics != nil {
		chunks := 0
		if result != nil {
			chunks = result.ChunkCount
		}
		o.opts.Metrics.RecordIngest(o.provider.Name(), status, chunks, time.Since(start).Seconds())
	}
	if err != nil {
		if o.opts.Metrics != nil {
			o.opts.Metrics.RecordError("ingest", string(ragerr.KindOf(err)))
		}
		return nil, err
	}

	if o.opts.Cache != nil {
		o.opts.Cache.InvalidateProject(req.ProjectID)
	}

	result.DurationMs = time.Since(start).Milliseconds()
	o.opts.Logger.Info(ctx, "document ingested",
		"project_id", req.ProjectID,
		"file_id", req.FileID,
		"chunks", result.ChunkCount,
		"duration_ms", result.DurationMs,
	)
	return result, nil
}

func (o *Orchestrator) validate(req *Request) error {
	if req == nil {
		return ragerr.New(ragerr.KindValidation, "request is required")
	}
	if req.ProjectID == "" {
		return ragerr.New(ragerr.KindValidation, "project_id is required")
	}
	if req.FileID == "" {
		return ragerr.New(ragerr.KindValidation, "file_id is required")
	}
	if strings.TrimSpace(req.Content) == "" {
		return ragerr.New(ragerr.KindValidation, "content is empty")
	}
	return nil
}

// run executes split -> embed -> upsert. Nothing is written until
// every chunk has an embedding, so a provider failure leaves the
// prior generation intact.
func (o *Orchestrator) run(ctx context.Context, req *Request) (*models.IngestResult, error) {
	pieces, err := o.splitter.Split(req.Content)
	if err != nil {
		return nil, err
	}
	if len(pieces) == 0 {
		return nil, ragerr.New(ragerr.KindValidation, "content produced no chunks")
	}

	vectors, err := o.embed(ctx, pieces)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	doc := &models.Document{
		ProjectID:  req.ProjectID,
		FileID:     req.FileID,
		Name:       req.Name,
		Size:       int64(len(req.Content)),
		FileType:   req.FileType,
		Language:   req.Language,
		Metadata:   req.Metadata,
		ChunkCount: len(pieces),
		CreatedAt:  now,
	}

	chunks := make([]*models.Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = &models.Chunk{
			ID:          chunkID(req.FileID, p.Index),
			ProjectID:   req.ProjectID,
			FileID:      req.FileID,
			Index:       p.Index,
			Content:     p.Content,
			StartOffset: p.StartOffset,
			EndOffset:   p.EndOffset,
			Embedding:   vectors[i],
			Metadata:    req.Metadata,
			CreatedAt:   now,
		}
	}

	res := retry.Do(ctx, o.opts.Retry, func() error {
		return o.store.UpsertChunks(ctx, doc, chunks)
	})
	if res.Err != nil {
		return nil, res.Err
	}

	return &models.IngestResult{
		ProjectID:      req.ProjectID,
		FileID:         req.FileID,
		ChunkCount:     len(chunks),
		EmbeddingModel: o.provider.Model(),
	}, nil
}

// embed generates vectors for every chunk, batched to the smaller of
// the configured batch size and the provider's limit. Order matches
// the input.
func (o *Orchestrator) embed(ctx context.Context, pieces []chunker.Chunk) ([][]float32, error) {
	batchSize := o.opts.BatchSize
	if max := o.provider.MaxBatchSize(); max > 0 && max < batchSize {
		batchSize = max
	}

	vectors := make([][]float32, 0, len(pieces))
	for i := 0; i < len(pieces); i += batchSize {
		end := i + batchSize
		if end > len(pieces) {
			end = len(pieces)
		}
		texts := make([]string, end-i)
		for j := range texts {
			texts[j] = pieces[i+j].Content
		}

		start := time.Now()
		batch, res := retry.DoWithValue(ctx, o.opts.Retry, func() ([][]float32, error) {
			return o.provider.EmbedBatch(ctx, texts)
		})
		if o.opts.Metrics != nil {
			status := "success"
			if res.Err != nil {
				status = "error"
			}
			o.opts.Metrics.RecordEmbeddingRequest(o.provider.Name(), o.provider.Model(), status, time.Since(start).Seconds())
		}
		if res.Err != nil {
			return nil, fmt.Errorf("embed batch %d: %w", i/batchSize, res.Err)
		}
		if len(batch) != len(texts) {
			return nil, ragerr.New(ragerr.KindInternal, "provider returned %d embeddings for %d texts", len(batch), len(texts))
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// Outcome pairs one batch item's result with its error.
type Outcome struct {
	Result *models.IngestResult
	Err    error
}

// IngestBatch ingests multiple documents with bounded concurrency.
// Outcomes are in request order; one document's failure does not stop
// the others.
func (o *Orchestrator) IngestBatch(ctx context.Context, clientID string, reqs []*Request) []Outcome {
	outcomes := make([]Outcome, len(reqs))

	sem := make(chan struct{}, o.opts.Concurrency)
	var wg sync.WaitGroup

	for i, req := range reqs {
		wg.Add(1)
		go func(i int, req *Request) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			result, err := o.Ingest(ctx, clientID, req)
			outcomes[i] = Outcome{Result: result, Err: err}
		}(i, req)
	}
	wg.Wait()

	return outcomes
}

// DeleteDocument removes a document and all of its chunks, returning
// the number of chunks removed.
func (o *Orchestrator) DeleteDocument(ctx context.Context, projectID, fileID string) (int64, error) {
	if projectID == "" || fileID == "" {
		return 0, ragerr.New(ragerr.KindValidation, "project_id and file_id are required")
	}

	unlock := o.lock(projectID, fileID)
	defer unlock()

	removed, err := o.store.DeleteDocument(ctx, projectID, fileID)
	if err != nil {
		return 0, err
	}
	if o.opts.Cache != nil {
		o.opts.Cache.InvalidateProject(projectID)
	}
	o.opts.Logger.Info(ctx, "document deleted",
		"project_id", projectID,
		"file_id", fileID,
		"chunks_removed", removed,
	)
	return removed, nil
}

// DeleteProject removes every document in the project.
func (o *Orchestrator) DeleteProject(ctx context.Context, projectID string) (int64, error) {
	if projectID == "" {
		return 0, ragerr.New(ragerr.KindValidation, "project_id is required")
	}

	removed, err := o.store.DeleteProject(ctx, projectID)
	if err != nil {
		return 0, err
	}
	if o.opts.Cache != nil {
		o.opts.Cache.InvalidateProject(projectID)
	}
	o.opts.Logger.Info(ctx, "project deleted",
		"project_id", projectID,
		"chunks_removed", removed,
	)
	return removed, nil
}

// ListFileIDs returns the document identifiers indexed in the
// project, sorted ascending.
func (o *Orchestrator) ListFileIDs(ctx context.Context, projectID string) ([]string, error) {
	if projectID == "" {
		return nil, ragerr.New(ragerr.KindValidation, "project_id is required")
	}
	return o.store.ListFileIDs(ctx, projectID)
}

// lock serializes writes to one (project, file) pair.
func (o *Orchestrator) lock(projectID, fileID string) func() {
	key := projectID + "\x00" + fileID

	o.mu.Lock()
	m, ok := o.locks[key]
	if !ok {
		m = &sync.Mutex{}
		o.locks[key] = m
	}
	o.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// chunkID derives a stable identifier from the document and position,
// so re-ingesting a file produces the same IDs.
func chunkID(fileID string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s:%d", fileID, index))).String()
}
