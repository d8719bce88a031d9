// Package cache provides a query-keyed embedding cache with LRU eviction
// and TTL expiry. Keys are normalized (lowercased, trimmed) so trivially
// different spellings of the same query share an entry.
package cache

import (
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Defaults
const (
	DefaultMaxSize = 1000
	DefaultTTL     = 30 * time.Minute
)

type entry struct {
	vector   []float32
	storedAt time.Time
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits    uint64
	Misses  uint64
	Size    int
	MaxSize int
}

// Cache is an LRU embedding cache with TTL. Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	lru     *lru.Cache[string, *entry]
	ttl     time.Duration
	maxSize int
	hits    uint64
	misses  uint64

	// now is swappable for TTL tests
	now func() time.Time
}

// New creates a cache. Non-positive maxSize or ttl fall back to defaults.
func New(maxSize int, ttl time.Duration) *Cache {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	inner, err := lru.New[string, *entry](maxSize)
	if err != nil {
		inner, _ = lru.New[string, *entry](DefaultMaxSize)
		maxSize = DefaultMaxSize
	}
	return &Cache{
		lru:     inner,
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// normalizeKey lowercases and trims a query so it matches regardless of
// casing or surrounding whitespace.
func normalizeKey(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

// Get returns the cached embedding for query. An expired entry is removed
// and counted as a miss.
func (c *Cache) Get(query string) ([]float32, bool) {
	key := normalizeKey(query)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	if !ok {
		c.misses++
		return nil, false
	}
	if c.now().Sub(e.storedAt) >= c.ttl {
		c.lru.Remove(key)
		c.misses++
		return nil, false
	}

	c.hits++
	vector := make([]float32, len(e.vector))
	copy(vector, e.vector)
	return vector, true
}

// Set stores an embedding for query, evicting the least recently used entry
// at capacity.
func (c *Cache) Set(query string, vector []float32) {
	key := normalizeKey(query)
	stored := make([]float32, len(vector))
	copy(stored, vector)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, &entry{vector: stored, storedAt: c.now()})
}

// Has reports whether a live entry exists without touching recency or the
// hit/miss counters.
func (c *Cache) Has(query string) bool {
	key := normalizeKey(query)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Peek(key)
	if !ok {
		return false
	}
	return c.now().Sub(e.storedAt) < c.ttl
}

// Prune removes all expired entries and returns how many were dropped.
func (c *Cache) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, key := range c.lru.Keys() {
		if e, ok := c.lru.Peek(key); ok && c.now().Sub(e.storedAt) >= c.ttl {
			c.lru.Remove(key)
			removed++
		}
	}
	return removed
}

// Clear empties the cache and resets counters.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
	c.hits = 0
	c.misses = 0
}

// Stats returns current counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:    c.hits,
		Misses:  c.misses,
		Size:    c.lru.Len(),
		MaxSize: c.maxSize,
	}
}

// HitRate is hits/(hits+misses), or 0 before any lookup.
func (c *Cache) HitRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total)
}
