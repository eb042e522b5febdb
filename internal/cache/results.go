// Package cache provides a time-limited cache for query results.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/toolkit-rag/engine/pkg/models"
)

// ResultCache stores search results keyed by a digest of the request.
// Entries expire after the TTL and every write for a project can be
// dropped at once when its documents change.
type ResultCache struct {
	mu      sync.Mutex
	entries map[string]*entry
	ttl     time.Duration
	maxSize int
	now     func() time.Time

	hits   int64
	misses int64
}

type entry struct {
	projectID string
	results   []models.SearchResult
	storedAt  time.Time
}

// Options configures the cache.
type Options struct {
	// TTL is how long an entry stays valid. Zero disables expiry.
	TTL time.Duration
	// MaxSize caps the number of entries. Zero means unbounded.
	MaxSize int
}

// New creates a new result cache.
func New(opts Options) *ResultCache {
	ttl := opts.TTL
	if ttl < 0 {
		ttl = 0
	}
	maxSize := opts.MaxSize
	if maxSize < 0 {
		maxSize = 0
	}
	return &ResultCache{
		entries: make(map[string]*entry),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Key derives the cache key for a search request. The query text is
// normalized so trivially different spellings of the same request
// share an entry.
func Key(req *models.SearchRequest) string {
	filters := req.Filters
	fileIDs := sortedCopy(filters.FileIDs)
	fileTypes := sortedCopy(filters.FileTypes)
	languages := sortedCopy(filters.Languages)

	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%d\x00%g\x00%s\x00%s\x00%s",
		req.ProjectID,
		normalizeQuery(req.Query),
		req.Mode,
		req.Limit,
		req.MinScore,
		strings.Join(fileIDs, ","),
		strings.Join(fileTypes, ","),
		strings.Join(languages, ","),
	)
	return hex.EncodeToString(h.Sum(nil))
}

func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

func sortedCopy(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}

// Get returns the cached results for a key, or false on miss or
// expiry.
func (c *ResultCache) Get(key string) ([]models.SearchResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if c.ttl > 0 && c.now().Sub(e.storedAt) >= c.ttl {
		delete(c.entries, key)
		c.misses++
		return nil, false
	}

	c.hits++
	results := make([]models.SearchResult, len(e.results))
	copy(results, e.results)
	return results, true
}

// Put stores results under the key, tagged with the owning project.
func (c *ResultCache) Put(key, projectID string, results []models.SearchResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := make([]models.SearchResult, len(results))
	copy(stored, results)

	c.entries[key] = &entry{
		projectID: projectID,
		results:   stored,
		storedAt:  c.now(),
	}
	c.prune()
}

// prune removes expired entries, then evicts oldest entries past the
// size cap. Callers hold the lock.
func (c *ResultCache) prune() {
	now := c.now()
	if c.ttl > 0 {
		for key, e := range c.entries {
			if now.Sub(e.storedAt) >= c.ttl {
				delete(c.entries, key)
			}
		}
	}

	if c.maxSize <= 0 {
		return
	}
	for len(c.entries) > c.maxSize {
		var oldestKey string
		var oldestAt time.Time
		for key, e := range c.entries {
			if oldestKey == "" || e.storedAt.Before(oldestAt) {
				oldestKey = key
				oldestAt = e.storedAt
			}
		}
		delete(c.entries, oldestKey)
	}
}

// InvalidateProject drops every entry belonging to the project.
func (c *ResultCache) InvalidateProject(projectID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := 0
	for key, e := range c.entries {
		if e.projectID == projectID {
			delete(c.entries, key)
			dropped++
		}
	}
	return dropped
}

// Clear removes all entries.
func (c *ResultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}

// Len returns the current number of entries.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats reports cache effectiveness counters.
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Entries int   `json:"entries"`
}

// GetStats returns a snapshot of the counters.
func (c *ResultCache) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Entries: len(c.entries)}
}
