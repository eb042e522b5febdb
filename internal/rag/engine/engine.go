// Package engine executes search queries against the vector store,
// blending semantic and keyword retrieval with caching and rate
// limiting in front.
package engine

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/toolkit-rag/engine/internal/cache"
	"github.com/toolkit-rag/engine/internal/observability"
	"github.com/toolkit-rag/engine/internal/rag/embeddings"
	"github.com/toolkit-rag/engine/internal/rag/ragerr"
	"github.com/toolkit-rag/engine/internal/rag/store"
	"github.com/toolkit-rag/engine/internal/ratelimit"
	"github.com/toolkit-rag/engine/pkg/models"
)

// RateClassQuery is the limiter class applied to search traffic.
const RateClassQuery = "query"

// Options configures the query engine.
type Options struct {
	// HybridAlpha weights the semantic score in hybrid mode. The
	// keyword score gets 1-alpha. Defaults to 0.5.
	HybridAlpha float64

	// DefaultLimit applies when a request does not set a limit.
	DefaultLimit int

	// MaxLimit rejects requests asking for more results.
	MaxLimit int

	// Cache holds recent query results. Nil disables caching.
	Cache *cache.ResultCache

	// Limiter throttles queries per client. Nil disables limiting.
	Limiter *ratelimit.Registry

	// Logger, Metrics, and Tracer are optional instrumentation.
	Logger  *observability.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// Engine answers search requests for one deployment.
type Engine struct {
	provider embeddings.Provider
	store    store.VectorStore
	opts     Options
}

// New creates a query engine. The provider embeds query text for
// semantic and hybrid modes; keyword mode never touches it.
func New(provider embeddings.Provider, vs store.VectorStore, opts Options) *Engine {
	if opts.HybridAlpha <= 0 || opts.HybridAlpha > 1 {
		opts.HybridAlpha = 0.5
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = store.DefaultLimit
	}
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = 100
	}
	if opts.Logger == nil {
		opts.Logger = observability.NewLogger(observability.LogConfig{Level: "error"})
	}
	return &Engine{provider: provider, store: vs, opts: opts}
}

// Search runs one query. The mode selects semantic, keyword, or hybrid
// retrieval; hybrid runs both and blends normalized scores.
func (e *Engine) Search(ctx context.Context, clientID string, req *models.SearchRequest) (*models.SearchResponse, error) {
	start := time.Now()

	if err := e.validate(req); err != nil {
		return nil, err
	}

	if e.opts.Limiter != nil {
		if err := e.opts.Limiter.Check(RateClassQuery, clientID); err != nil {
			if e.opts.Metrics != nil {
				e.opts.Metrics.RecordRateLimitRejection(RateClassQuery)
			}
			return nil, err
		}
	}

	if e.opts.Tracer != nil {
		var span trace.Span
		ctx, span = e.opts.Tracer.TraceQuery(ctx, req.ProjectID, string(req.Mode))
		defer span.End()
	}

	var cacheKey string
	if e.opts.Cache != nil {
		cacheKey = cache.Key(req)
		if results, ok := e.opts.Cache.Get(cacheKey); ok {
			if e.opts.Metrics != nil {
				e.opts.Metrics.RecordCacheLookup(true)
			}
			return &models.SearchResponse{
				Results:    results,
				TotalCount: len(results),
				Cached:     true,
				QueryTime:  time.Since(start),
			}, nil
		}
		if e.opts.Metrics != nil {
			e.opts.Metrics.RecordCacheLookup(false)
		}
	}

	results, err := e.execute(ctx, req)

	status := "success"
	if err != nil {
		status = "error"
	}
	if e.opts.Metrics != nil {
		e.opts.Metrics.RecordQuery(string(req.Mode), status, time.Since(start).Seconds())
	}
	if err != nil {
		if e.opts.Metrics != nil {
			e.opts.Metrics.RecordError("engine", string(ragerr.KindOf(err)))
		}
		return nil, err
	}

	if e.opts.Cache != nil {
		e.opts.Cache.Put(cacheKey, req.ProjectID, results)
	}

	e.opts.Logger.Debug(ctx, "query executed",
		"project_id", req.ProjectID,
		"mode", string(req.Mode),
		"results", len(results),
		"duration_ms", time.Since(start).Milliseconds())

	return &models.SearchResponse{
		Results:    results,
		TotalCount: len(results),
		QueryTime:  time.Since(start),
	}, nil
}

func (e *Engine) validate(req *models.SearchRequest) error {
	if req.ProjectID == "" {
		return ragerr.New(ragerr.KindValidation, "project_id is required")
	}
	if strings.TrimSpace(req.Query) == "" {
		return ragerr.New(ragerr.KindValidation, "query must not be empty").WithProject(req.ProjectID)
	}
	if req.Mode == "" {
		req.Mode = models.SearchModeSemantic
	}
	if !req.Mode.Valid() {
		return ragerr.New(ragerr.KindValidation, "unknown search mode %q", req.Mode).WithProject(req.ProjectID)
	}
	if req.Limit < 0 || req.Limit > e.opts.MaxLimit {
		return ragerr.New(ragerr.KindValidation, "limit must be in [0, %d], got %d", e.opts.MaxLimit, req.Limit).WithProject(req.ProjectID)
	}
	if req.Limit == 0 {
		req.Limit = e.opts.DefaultLimit
	}
	if req.MinScore < 0 || req.MinScore > 1 {
		return ragerr.New(ragerr.KindValidation, "min_score must be in [0, 1], got %g", req.MinScore).WithProject(req.ProjectID)
	}
	return nil
}

func (e *Engine) execute(ctx context.Context, req *models.SearchRequest) ([]models.SearchResult, error) {
	switch req.Mode {
	case models.SearchModeSemantic:
		return e.semantic(ctx, req)
	case models.SearchModeKeyword:
		return e.keyword(ctx, req)
	case models.SearchModeHybrid:
		return e.hybrid(ctx, req)
	default:
		return nil, ragerr.New(ragerr.KindValidation, "unknown search mode %q", req.Mode)
	}
}

func (e *Engine) semantic(ctx context.Context, req *models.SearchRequest) ([]models.SearchResult, error) {
	vector, err := e.provider.Embed(ctx, req.Query)
	if err != nil {
		return nil, err
	}
	return e.store.Query(ctx, req.ProjectID, vector, store.QueryOptions{
		Limit:    req.Limit,
		MinScore: req.MinScore,
		Filters:  req.Filters,
	})
}

func (e *Engine) keyword(ctx context.Context, req *models.SearchRequest) ([]models.SearchResult, error) {
	return e.store.KeywordQuery(ctx, req.ProjectID, req.Query, store.QueryOptions{
		Limit:    req.Limit,
		MinScore: req.MinScore,
		Filters:  req.Filters,
	})
}

// hybrid runs both retrievals over a widened candidate set, min-max
// normalizes each side, and blends with alpha. MinScore applies to the
// blended score, not the raw ones.
func (e *Engine) hybrid(ctx context.Context, req *models.SearchRequest) ([]models.SearchResult, error) {
	candidateOpts := store.QueryOptions{
		Limit:   req.Limit * 3,
		Filters: req.Filters,
	}

	vector, err := e.provider.Embed(ctx, req.Query)
	if err != nil {
		return nil, err
	}

	semResults, err := e.store.Query(ctx, req.ProjectID, vector, candidateOpts)
	if err != nil {
		return nil, err
	}
	kwResults, err := e.store.KeywordQuery(ctx, req.ProjectID, req.Query, candidateOpts)
	if err != nil {
		return nil, err
	}

	blended := blend(semResults, kwResults, float32(e.opts.HybridAlpha))
	store.SortResults(blended)
	return store.Truncate(blended, req.MinScore, req.Limit), nil
}

// blend merges the two result sets by chunk identity. Each side's
// scores are min-max normalized to [0,1] first so cosine similarity
// and lexical rank become comparable.
func blend(semantic, keyword []models.SearchResult, alpha float32) []models.SearchResult {
	semNorm := normalize(semantic)
	kwNorm := normalize(keyword)

	type entry struct {
		chunk *models.Chunk
		sem   float32
		kw    float32
	}
	merged := make(map[string]*entry, len(semantic)+len(keyword))

	keyOf := func(c *models.Chunk) string {
		if c.ID != "" {
			return c.ID
		}
		return c.FileID + "\x00" + strconv.Itoa(c.Index)
	}

	for i, r := range semantic {
		merged[keyOf(r.Chunk)] = &entry{chunk: r.Chunk, sem: semNorm[i]}
	}
	for i, r := range keyword {
		key := keyOf(r.Chunk)
		if ex, ok := merged[key]; ok {
			ex.kw = kwNorm[i]
		} else {
			merged[key] = &entry{chunk: r.Chunk, kw: kwNorm[i]}
		}
	}

	results := make([]models.SearchResult, 0, len(merged))
	for _, ent := range merged {
		score := alpha*ent.sem + (1-alpha)*ent.kw
		results = append(results, models.SearchResult{
			Chunk: ent.chunk,
			Score: score,
			Mode:  models.SearchModeHybrid,
		})
	}
	return results
}

// normalize min-max scales scores to [0,1]. A set with a single
// distinct score maps to all-ones so it still contributes.
func normalize(results []models.SearchResult) []float32 {
	norm := make([]float32, len(results))
	if len(results) == 0 {
		return norm
	}

	lo, hi := results[0].Score, results[0].Score
	for _, r := range results[1:] {
		if r.Score < lo {
			lo = r.Score
		}
		if r.Score > hi {
			hi = r.Score
		}
	}

	if hi == lo {
		for i := range norm {
			norm[i] = 1
		}
		return norm
	}
	for i, r := range results {
		norm[i] = (r.Score - lo) / (hi - lo)
	}
	return norm
}

// BatchSearch runs multiple requests with bounded concurrency and
// returns responses in request order. Individual failures land in the
// matching slot of the error slice.
func (e *Engine) BatchSearch(ctx context.Context, clientID string, reqs []*models.SearchRequest, concurrency int) ([]*models.SearchResponse, []error) {
	if concurrency <= 0 {
		concurrency = 4
	}

	responses := make([]*models.SearchResponse, len(reqs))
	errs := make([]error, len(reqs))

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, req := range reqs {
		wg.Add(1)
		go func(i int, req *models.SearchRequest) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			responses[i], errs[i] = e.Search(ctx, clientID, req)
		}(i, req)
	}
	wg.Wait()

	return responses, errs
}

// Health verifies the store and embedding provider are reachable.
func (e *Engine) Health(ctx context.Context) error {
	if err := e.store.Ping(ctx); err != nil {
		return err
	}
	// A one-token embed exercises the provider end to end.
	if _, err := e.provider.Embed(ctx, "ping"); err != nil {
		return err
	}
	return nil
}

// Stats reports store-level aggregates for one project.
func (e *Engine) Stats(ctx context.Context, projectID string) (*models.ProjectStats, error) {
	if projectID == "" {
		return nil, ragerr.New(ragerr.KindValidation, "project_id is required")
	}
	return e.store.ProjectStats(ctx, projectID)
}

// SystemStats reports aggregates across all projects.
func (e *Engine) SystemStats(ctx context.Context) (*models.SystemStats, error) {
	return e.store.SystemStats(ctx)
}
