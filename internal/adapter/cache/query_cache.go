// Package cache memoizes retrieval results between index rebuilds.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"sync"
	"time"

	"taxrag/internal/domain"
	"taxrag/internal/port"
)

// QueryCache is an LRU of retrieval results with a TTL. Invalidate bumps a
// generation so entries stored before a rebuild are never served.
type QueryCache struct {
	mu         sync.Mutex
	entries    map[string]*cacheEntry
	order      []string
	maxSize    int
	ttl        time.Duration
	generation uint64
	now        func() time.Time
}

type cacheEntry struct {
	results    []domain.ScoredChunk
	storedAt   time.Time
	generation uint64
}

func NewQueryCache(maxSize int, ttl time.Duration) *QueryCache {
	if maxSize <= 0 {
		maxSize = 100
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &QueryCache{
		entries: make(map[string]*cacheEntry),
		order:   make([]string, 0, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// cacheKey normalizes case and surrounding whitespace so trivially different
// spellings of one question share an entry.
func cacheKey(query string, k int) string {
	hash := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(query)) + "\x00" + strconv.Itoa(k)))
	return hex.EncodeToString(hash[:16])
}

func (c *QueryCache) Get(query string, k int) ([]domain.ScoredChunk, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(query, k)
	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.storedAt) > c.ttl || entry.generation != c.generation {
		delete(c.entries, key)
		c.removeFromOrder(key)
		return nil, false
	}
	c.moveToEnd(key)
	return append([]domain.ScoredChunk(nil), entry.results...), true
}

func (c *QueryCache) Put(query string, k int, results []domain.ScoredChunk) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(query, k)
	entry := &cacheEntry{
		results:    append([]domain.ScoredChunk(nil), results...),
		storedAt:   c.now(),
		generation: c.generation,
	}

	if _, exists := c.entries[key]; exists {
		c.entries[key] = entry
		c.moveToEnd(key)
		return
	}
	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}
	c.entries[key] = entry
	c.order = append(c.order, key)
}

// Invalidate drops every entry. Call it after the index is rebuilt.
func (c *QueryCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry)
	c.order = c.order[:0]
	c.generation++
}

func (c *QueryCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *QueryCache) evictOldest() {
	if len(c.order) == 0 {
		return
	}
	oldest := c.order[0]
	c.order = c.order[1:]
	delete(c.entries, oldest)
}

func (c *QueryCache) moveToEnd(key string) {
	c.removeFromOrder(key)
	c.order = append(c.order, key)
}

func (c *QueryCache) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

// CachedRetriever answers repeated queries from a QueryCache. Errors are not
// cached.
type CachedRetriever struct {
	retriever port.Retriever
	cache     *QueryCache
}

var _ port.Retriever = (*CachedRetriever)(nil)

func NewCachedRetriever(retriever port.Retriever, cache *QueryCache) *CachedRetriever {
	return &CachedRetriever{
		retriever: retriever,
		cache:     cache,
	}
}

func (r *CachedRetriever) Search(ctx context.Context, query string, k int) ([]domain.ScoredChunk, error) {
	if results, hit := r.cache.Get(query, k); hit {
		return results, nil
	}

	results, err := r.retriever.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}

	r.cache.Put(query, k, results)
	return results, nil
}

// Cache exposes the underlying cache so callers can invalidate it.
func (r *CachedRetriever) Cache() *QueryCache {
	return r.cache
}
