package ratelimit

import (
	"testing"
	"time"

	"github.com/toolkit-rag/engine/internal/rag/ragerr"
)

// fakeClock lets tests move time forward deterministically.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestLimiter(limit int, window time.Duration) (*Limiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	l := NewLimiter(Config{Limit: limit, Window: window, Enabled: true})
	l.now = clock.Now
	return l, clock
}

func TestAllowUpToLimit(t *testing.T) {
	l, _ := newTestLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if ok, _ := l.Allow("client-a"); !ok {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	ok, retryAfter := l.Allow("client-a")
	if ok {
		t.Fatal("request over the limit should be rejected")
	}
	if retryAfter != time.Minute {
		t.Errorf("retryAfter = %v, want %v", retryAfter, time.Minute)
	}
}

func TestRejectedRequestsDoNotConsume(t *testing.T) {
	l, clock := newTestLimiter(2, time.Minute)

	l.Allow("client-a")
	l.Allow("client-a")
	for i := 0; i < 10; i++ {
		if ok, _ := l.Allow("client-a"); ok {
			t.Fatal("should stay rejected")
		}
	}

	// Only the two admitted requests occupy the window, so capacity
	// returns when they expire regardless of the rejected burst.
	clock.Advance(time.Minute + time.Second)
	if ok, _ := l.Allow("client-a"); !ok {
		t.Fatal("capacity should return after the window")
	}
}

func TestWindowSlides(t *testing.T) {
	l, clock := newTestLimiter(2, time.Minute)

	l.Allow("client-a")
	clock.Advance(30 * time.Second)
	l.Allow("client-a")

	if ok, retryAfter := l.Allow("client-a"); ok {
		t.Fatal("third request inside window should be rejected")
	} else if retryAfter != 30*time.Second {
		t.Errorf("retryAfter = %v, want 30s", retryAfter)
	}

	// First request leaves the window; one slot opens.
	clock.Advance(31 * time.Second)
	if ok, _ := l.Allow("client-a"); !ok {
		t.Fatal("slot should open when the oldest request expires")
	}
	if ok, _ := l.Allow("client-a"); ok {
		t.Fatal("only one slot should have opened")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)

	if ok, _ := l.Allow("client-a"); !ok {
		t.Fatal("client-a first request should pass")
	}
	if ok, _ := l.Allow("client-b"); !ok {
		t.Fatal("client-b should have its own window")
	}
	if ok, _ := l.Allow("client-a"); ok {
		t.Fatal("client-a should be limited")
	}
}

func TestCheckReturnsRateLimitedError(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)

	if err := l.Check("client-a"); err != nil {
		t.Fatalf("first check: %v", err)
	}
	err := l.Check("client-a")
	if !ragerr.Is(err, ragerr.KindRateLimited) {
		t.Fatalf("expected rate_limited, got %v", err)
	}
	if ragerr.RetryAfter(err) != time.Minute {
		t.Errorf("retry hint = %v, want 1m", ragerr.RetryAfter(err))
	}
	if ragerr.Retryable(err) {
		t.Error("rate_limited should not be auto-retried")
	}
}

func TestDisabledLimiterAllowsEverything(t *testing.T) {
	l := NewLimiter(Config{Limit: 1, Window: time.Minute, Enabled: false})
	for i := 0; i < 100; i++ {
		if ok, _ := l.Allow("client-a"); !ok {
			t.Fatal("disabled limiter should never reject")
		}
	}
}

func TestGetStatus(t *testing.T) {
	l, _ := newTestLimiter(3, time.Minute)

	l.Allow("client-a")
	l.Allow("client-a")

	status := l.GetStatus("client-a")
	if status.Used != 2 || status.Remaining != 1 {
		t.Errorf("status = %+v", status)
	}
	if status.RetryAfter != 0 {
		t.Errorf("retry after with capacity = %v", status.RetryAfter)
	}

	l.Allow("client-a")
	status = l.GetStatus("client-a")
	if status.Remaining != 0 {
		t.Errorf("remaining = %d, want 0", status.Remaining)
	}
	if status.RetryAfter != time.Minute {
		t.Errorf("retry after = %v, want 1m", status.RetryAfter)
	}
}

func TestReset(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)

	l.Allow("client-a")
	if ok, _ := l.Allow("client-a"); ok {
		t.Fatal("should be limited before reset")
	}
	l.Reset("client-a")
	if ok, _ := l.Allow("client-a"); !ok {
		t.Fatal("reset should clear the window")
	}
}

func TestCompositeKey(t *testing.T) {
	if got := CompositeKey("client-a", "query"); got != "client-a:query" {
		t.Errorf("CompositeKey = %q", got)
	}
}

func TestRegistryIndependentClasses(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	r := NewRegistry(map[string]Config{
		"ingest": {Limit: 1, Window: time.Minute, Enabled: true},
		"query":  {Limit: 2, Window: time.Second, Enabled: true},
	})
	r.Limiter("ingest").now = clock.Now
	r.Limiter("query").now = clock.Now

	if err := r.Check("ingest", "client-a"); err != nil {
		t.Fatalf("ingest 1: %v", err)
	}
	if err := r.Check("ingest", "client-a"); !ragerr.Is(err, ragerr.KindRateLimited) {
		t.Fatalf("ingest 2: expected rate_limited, got %v", err)
	}

	// The query class has its own budget.
	if err := r.Check("query", "client-a"); err != nil {
		t.Fatalf("query 1: %v", err)
	}
	if err := r.Check("query", "client-a"); err != nil {
		t.Fatalf("query 2: %v", err)
	}

	// Unknown classes are unlimited.
	if err := r.Check("stats", "client-a"); err != nil {
		t.Fatalf("unknown class: %v", err)
	}
}
