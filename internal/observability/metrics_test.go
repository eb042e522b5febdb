package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// NewMetrics registers with the default registry, so it can only run
// once per process.
var testMetrics = NewMetrics()

func TestRecordIngest(t *testing.T) {
	testMetrics.RecordIngest("openai", "success", 5, 1.2)

	if got := testutil.ToFloat64(testMetrics.IngestCounter.WithLabelValues("openai", "success")); got < 1 {
		t.Errorf("ingest counter = %v", got)
	}
	if got := testutil.ToFloat64(testMetrics.ChunksIndexed.WithLabelValues("openai")); got < 5 {
		t.Errorf("chunks indexed = %v", got)
	}
}

func TestRecordQuery(t *testing.T) {
	testMetrics.RecordQuery("hybrid", "success", 0.01)

	if got := testutil.ToFloat64(testMetrics.QueryCounter.WithLabelValues("hybrid", "success")); got < 1 {
		t.Errorf("query counter = %v", got)
	}
}

func TestRecordCacheLookup(t *testing.T) {
	testMetrics.RecordCacheLookup(true)
	testMetrics.RecordCacheLookup(false)

	if got := testutil.ToFloat64(testMetrics.CacheCounter.WithLabelValues("hit")); got < 1 {
		t.Errorf("hit counter = %v", got)
	}
	if got := testutil.ToFloat64(testMetrics.CacheCounter.WithLabelValues("miss")); got < 1 {
		t.Errorf("miss counter = %v", got)
	}
}

func TestRecordRateLimitRejection(t *testing.T) {
	testMetrics.RecordRateLimitRejection("query")

	if got := testutil.ToFloat64(testMetrics.RateLimitRejections.WithLabelValues("query")); got < 1 {
		t.Errorf("rejection counter = %v", got)
	}
}

func TestRecordError(t *testing.T) {
	testMetrics.RecordError("engine", "store_unavailable")

	if got := testutil.ToFloat64(testMetrics.ErrorCounter.WithLabelValues("engine", "store_unavailable")); got < 1 {
		t.Errorf("error counter = %v", got)
	}
}
