package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting application metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - Document ingestion throughput and latency
//   - Embedding provider request performance
//   - Query latency broken down by search mode
//   - Cache effectiveness and rate limit rejections
//   - Error rates categorized by component and kind
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	start := time.Now()
//	// ... ingest a document ...
//	metrics.RecordIngest("openai", "success", 12, time.Since(start).Seconds())
type Metrics struct {
	// IngestCounter counts document ingestions.
	// Labels: provider (ollama|openai|tei), status (success|error)
	IngestCounter *prometheus.CounterVec

	// IngestDuration measures end-to-end ingestion latency in seconds.
	// Labels: provider
	// Buckets: 0.1s, 0.5s, 1s, 2s, 5s, 10s, 30s, 60s
	IngestDuration *prometheus.HistogramVec

	// ChunksIndexed counts chunks written to the store.
	// Labels: provider
	ChunksIndexed *prometheus.CounterVec

	// EmbeddingRequestCounter counts embedding API calls.
	// Labels: provider, model, status (success|error)
	EmbeddingRequestCounter *prometheus.CounterVec

	// EmbeddingRequestDuration measures embedding API latency in seconds.
	// Labels: provider, model
	// Buckets: 0.05s, 0.1s, 0.5s, 1s, 2s, 5s, 10s, 30s
	EmbeddingRequestDuration *prometheus.HistogramVec

	// QueryCounter counts search queries.
	// Labels: mode (semantic|keyword|hybrid), status (success|error)
	QueryCounter *prometheus.CounterVec

	// QueryDuration measures query latency in seconds.
	// Labels: mode
	// Buckets: 0.001s, 0.005s, 0.01s, 0.05s, 0.1s, 0.5s, 1s, 5s
	QueryDuration *prometheus.HistogramVec

	// CacheCounter tracks result cache lookups.
	// Labels: result (hit|miss)
	CacheCounter *prometheus.CounterVec

	// RateLimitRejections counts rejected requests.
	// Labels: class (ingest|query)
	RateLimitRejections *prometheus.CounterVec

	// StoreOperationDuration measures vector store latency in seconds.
	// Labels: backend (pgvector|qdrant|sqlite|memory), operation
	// Buckets: 0.001s, 0.005s, 0.01s, 0.05s, 0.1s, 0.5s, 1s, 5s
	StoreOperationDuration *prometheus.HistogramVec

	// ErrorCounter tracks errors by component and kind.
	// Labels: component (ingest|engine|store|embeddings), kind
	ErrorCounter *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
// This should be called once at application startup.
//
// All metrics are automatically registered with Prometheus's default registry
// and will be available at the /metrics endpoint when using prometheus HTTP handler.
func NewMetrics() *Metrics {
	return &Metrics{
		IngestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ragengine_ingests_total",
				Help: "Total number of document ingestions by provider and status",
			},
			[]string{"provider", "status"},
		),

		IngestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ragengine_ingest_duration_seconds",
				Help:    "Duration of document ingestions in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider"},
		),

		ChunksIndexed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ragengine_chunks_indexed_total",
				Help: "Total number of chunks written to the vector store",
			},
			[]string{"provider"},
		),

		EmbeddingRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ragengine_embedding_requests_total",
				Help: "Total number of embedding API requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		EmbeddingRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ragengine_embedding_request_duration_seconds",
				Help:    "Duration of embedding API requests in seconds",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"provider", "model"},
		),

		QueryCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ragengine_queries_total",
				Help: "Total number of search queries by mode and status",
			},
			[]string{"mode", "status"},
		),

		QueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ragengine_query_duration_seconds",
				Help:    "Duration of search queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"mode"},
		),

		CacheCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ragengine_cache_lookups_total",
				Help: "Total number of result cache lookups by outcome",
			},
			[]string{"result"},
		),

		RateLimitRejections: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ragengine_rate_limit_rejections_total",
				Help: "Total number of requests rejected by the rate limiter",
			},
			[]string{"class"},
		),

		StoreOperationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ragengine_store_operation_duration_seconds",
				Help:    "Duration of vector store operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"backend", "operation"},
		),

		ErrorCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ragengine_errors_total",
				Help: "Total number of errors by component and kind",
			},
			[]string{"component", "kind"},
		),
	}
}

// RecordIngest records metrics for one document ingestion.
func (m *Metrics) RecordIngest(provider, status string, chunks int, durationSeconds float64) {
	m.IngestCounter.WithLabelValues(provider, status).Inc()
	m.IngestDuration.WithLabelValues(provider).Observe(durationSeconds)
	if chunks > 0 {
		m.ChunksIndexed.WithLabelValues(provider).Add(float64(chunks))
	}
}

// RecordEmbeddingRequest records metrics for an embedding API request.
func (m *Metrics) RecordEmbeddingRequest(provider, model, status string, durationSeconds float64) {
	m.EmbeddingRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.EmbeddingRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
}

// RecordQuery records metrics for one search query.
func (m *Metrics) RecordQuery(mode, status string, durationSeconds float64) {
	m.QueryCounter.WithLabelValues(mode, status).Inc()
	m.QueryDuration.WithLabelValues(mode).Observe(durationSeconds)
}

// RecordCacheLookup records a cache hit or miss.
func (m *Metrics) RecordCacheLookup(hit bool) {
	if hit {
		m.CacheCounter.WithLabelValues("hit").Inc()
	} else {
		m.CacheCounter.WithLabelValues("miss").Inc()
	}
}

// RecordRateLimitRejection counts a rejected request for an endpoint class.
func (m *Metrics) RecordRateLimitRejection(class string) {
	m.RateLimitRejections.WithLabelValues(class).Inc()
}

// RecordStoreOperation records vector store latency.
func (m *Metrics) RecordStoreOperation(backend, operation string, durationSeconds float64) {
	m.StoreOperationDuration.WithLabelValues(backend, operation).Observe(durationSeconds)
}

// RecordError increments the error counter for a given component and kind.
func (m *Metrics) RecordError(component, kind string) {
	m.ErrorCounter.WithLabelValues(component, kind).Inc()
}
