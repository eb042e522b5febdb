// Package ratelimit provides sliding-window rate limiting keyed by
// caller and endpoint class.
package ratelimit

import (
	"sync"
	"time"

	"github.com/toolkit-rag/engine/internal/rag/ragerr"
)

// Config configures one endpoint class.
type Config struct {
	// Limit is the maximum number of requests inside the window.
	Limit int `yaml:"limit"`
	// Window is the length of the sliding window.
	Window time.Duration `yaml:"window"`
	// Enabled controls whether rate limiting is active.
	Enabled bool `yaml:"enabled"`
}

// DefaultConfig returns the default rate limit configuration.
func DefaultConfig() Config {
	return Config{
		Limit:   60,
		Window:  time.Minute,
		Enabled: true,
	}
}

// window tracks request timestamps for one key. Timestamps are kept
// in arrival order so the head is always the oldest.
type window struct {
	mu     sync.Mutex
	stamps []time.Time
}

// Limiter enforces a sliding-window limit per key. A rejected request
// never consumes capacity, so a caller that keeps hammering past the
// limit does not push its own recovery further away.
type Limiter struct {
	mu      sync.RWMutex
	windows map[string]*window
	config  Config
	maxKeys int
	now     func() time.Time
}

// NewLimiter creates a new rate limiter.
func NewLimiter(config Config) *Limiter {
	if config.Limit <= 0 {
		config.Limit = DefaultConfig().Limit
	}
	if config.Window <= 0 {
		config.Window = DefaultConfig().Window
	}
	return &Limiter{
		windows: make(map[string]*window),
		config:  config,
		maxKeys: 10000,
		now:     time.Now,
	}
}

// Allow checks the key against the window and records the request when
// admitted. It returns whether the request may proceed and, when
// rejected, how long until the oldest recorded request leaves the
// window.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	if !l.config.Enabled {
		return true, 0
	}

	w := l.getWindow(key)

	w.mu.Lock()
	defer w.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.config.Window)

	// Drop expired timestamps from the head.
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}

	if len(w.stamps) >= l.config.Limit {
		retryAfter := w.stamps[0].Add(l.config.Window).Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return false, retryAfter
	}

	w.stamps = append(w.stamps, now)
	return true, 0
}

// Check is Allow wrapped in the error taxonomy: a rejection comes back
// as a rate-limited error carrying the retry hint.
func (l *Limiter) Check(key string) error {
	ok, retryAfter := l.Allow(key)
	if ok {
		return nil
	}
	err := ragerr.New(ragerr.KindRateLimited, "rate limit exceeded for %s", key)
	err.RetryAfter = retryAfter
	return err
}

// getWindow returns or creates the window for the given key.
func (l *Limiter) getWindow(key string) *window {
	l.mu.RLock()
	w, exists := l.windows[key]
	l.mu.RUnlock()

	if exists {
		return w
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Double-check after acquiring write lock
	if w, exists = l.windows[key]; exists {
		return w
	}

	if len(l.windows) >= l.maxKeys {
		l.prune()
	}

	w = &window{}
	l.windows[key] = w
	return w
}

// prune removes keys whose every timestamp has left the window.
func (l *Limiter) prune() {
	cutoff := l.now().Add(-l.config.Window)
	for key, w := range l.windows {
		w.mu.Lock()
		idle := len(w.stamps) == 0 || !w.stamps[len(w.stamps)-1].After(cutoff)
		w.mu.Unlock()
		if idle {
			delete(l.windows, key)
		}
	}
}

// Reset clears the recorded requests for a key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, key)
}

// Status reports the current window state for a key.
type Status struct {
	Key        string        `json:"key"`
	Used       int           `json:"used"`
	Limit      int           `json:"limit"`
	Remaining  int           `json:"remaining"`
	RetryAfter time.Duration `json:"retry_after"`
}

// GetStatus returns the rate limit status for a key without consuming
// capacity.
func (l *Limiter) GetStatus(key string) Status {
	status := Status{Key: key, Limit: l.config.Limit}
	if !l.config.Enabled {
		status.Remaining = l.config.Limit
		return status
	}

	w := l.getWindow(key)
	w.mu.Lock()
	defer w.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.config.Window)
	used := 0
	var oldest time.Time
	for _, ts := range w.stamps {
		if ts.After(cutoff) {
			if used == 0 {
				oldest = ts
			}
			used++
		}
	}

	status.Used = used
	status.Remaining = l.config.Limit - used
	if status.Remaining < 0 {
		status.Remaining = 0
	}
	if status.Remaining == 0 && !oldest.IsZero() {
		status.RetryAfter = oldest.Add(l.config.Window).Sub(now)
	}
	return status
}

// CompositeKey creates a rate limit key from multiple parts.
func CompositeKey(parts ...string) string {
	key := ""
	for i, part := range parts {
		if i > 0 {
			key += ":"
		}
		key += part
	}
	return key
}

// Registry groups limiters by endpoint class so ingestion and query
// traffic are throttled independently.
type Registry struct {
	mu       sync.RWMutex
	limiters map[string]*Limiter
}

// NewRegistry creates a registry with the given per-class configs.
func NewRegistry(configs map[string]Config) *Registry {
	limiters := make(map[string]*Limiter, len(configs))
	for class, cfg := range configs {
		limiters[class] = NewLimiter(cfg)
	}
	return &Registry{limiters: limiters}
}

// Check applies the class limiter to the caller key. Unknown classes
// are unlimited.
func (r *Registry) Check(class, callerKey string) error {
	r.mu.RLock()
	l, ok := r.limiters[class]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return l.Check(CompositeKey(callerKey, class))
}

// Limiter returns the limiter for a class, or nil.
func (r *Registry) Limiter(class string) *Limiter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.limiters[class]
}
