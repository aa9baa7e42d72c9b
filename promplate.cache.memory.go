package promplate

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// CompletionCacheConfig configures MemoryCache.
type CompletionCacheConfig struct {
	// TTL is how long completions are cached. Default: 10 minutes.
	TTL time.Duration

	// MaxEntries is the maximum number of cached completions. Default: 1000.
	MaxEntries int

	// MaxResultSize is the largest completion cached, in bytes. Default: 1MB.
	MaxResultSize int
}

// CompletionCacheStats tracks cache performance.
type CompletionCacheStats struct {
	Hits       int64
	Misses     int64
	Evictions  int64
	EntryCount int
}

// DefaultCompletionCacheConfig returns the default cache limits.
func DefaultCompletionCacheConfig() CompletionCacheConfig {
	return CompletionCacheConfig{
		TTL:           DefaultCacheTTL,
		MaxEntries:    DefaultCacheMaxEntries,
		MaxResultSize: DefaultCacheMaxResultSize,
	}
}

// MemoryCache is an in-process CompletionCache with LRU eviction and expiry.
type MemoryCache struct {
	mu      sync.Mutex
	config  CompletionCacheConfig
	entries map[string]*list.Element
	lru     *list.List // front is most recently used
	stats   CompletionCacheStats
	now     func() time.Time
}

type memoryCacheEntry struct {
	key       string
	text      string
	expiresAt time.Time
}

// NewMemoryCache creates a MemoryCache. Zero config values take their defaults.
func NewMemoryCache(config CompletionCacheConfig) *MemoryCache {
	defaults := DefaultCompletionCacheConfig()
	if config.TTL <= 0 {
		config.TTL = defaults.TTL
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = defaults.MaxEntries
	}
	if config.MaxResultSize <= 0 {
		config.MaxResultSize = defaults.MaxResultSize
	}
	return &MemoryCache{
		config:  config,
		entries: make(map[string]*list.Element),
		lru:     list.New(),
		now:     time.Now,
	}
}

// Get returns a cached completion if present and not expired.
func (c *MemoryCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return "", false, nil
	}
	entry := elem.Value.(*memoryCacheEntry)
	if c.now().After(entry.expiresAt) {
		c.remove(elem)
		c.stats.Misses++
		return "", false, nil
	}
	c.lru.MoveToFront(elem)
	c.stats.Hits++
	return entry.text, true, nil
}

// Set stores a completion, evicting the least recently used entry when full.
// Completions larger than MaxResultSize are not cached.
func (c *MemoryCache) Set(_ context.Context, key, text string) error {
	if len(text) > c.config.MaxResultSize {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(c.config.TTL)
	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*memoryCacheEntry)
		entry.text = text
		entry.expiresAt = expiresAt
		c.lru.MoveToFront(elem)
		return nil
	}

	for c.lru.Len() >= c.config.MaxEntries {
		c.remove(c.lru.Back())
		c.stats.Evictions++
	}
	c.entries[key] = c.lru.PushFront(&memoryCacheEntry{key: key, text: text, expiresAt: expiresAt})
	return nil
}

// Invalidate removes one entry.
func (c *MemoryCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[key]; ok {
		c.remove(elem)
	}
}

// Clear removes all entries.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.lru.Init()
}

// Cleanup removes expired entries and returns how many were removed.
// Call periodically for long-running applications.
func (c *MemoryCache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for elem := c.lru.Front(); elem != nil; {
		next := elem.Next()
		if now.After(elem.Value.(*memoryCacheEntry).expiresAt) {
			c.remove(elem)
			removed++
		}
		elem = next
	}
	return removed
}

// Stats returns current cache statistics.
func (c *MemoryCache) Stats() CompletionCacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := c.stats
	stats.EntryCount = c.lru.Len()
	return stats
}

// HitRate returns the cache hit rate (0.0 to 1.0).
func (c *MemoryCache) HitRate() float64 {
	stats := c.Stats()
	total := stats.Hits + stats.Misses
	if total == 0 {
		return 0
	}
	return float64(stats.Hits) / float64(total)
}

func (c *MemoryCache) remove(elem *list.Element) {
	delete(c.entries, elem.Value.(*memoryCacheEntry).key)
	c.lru.Remove(elem)
}
