package market

import (
	"sync"
	"sync/atomic"
	"time"
)

// categoryCache is a TTL cache keyed by symbol, one instance per snapshot
// category so each category ages independently.
type categoryCache[T any] struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry[T]

	hits   atomic.Int64
	misses atomic.Int64
}

type cacheEntry[T any] struct {
	value     T
	fetchedAt time.Time
}

func newCategoryCache[T any](ttl time.Duration) *categoryCache[T] {
	return &categoryCache[T]{
		ttl:     ttl,
		entries: make(map[string]cacheEntry[T]),
	}
}

func (c *categoryCache[T]) get(symbol string, now time.Time) (T, time.Time, bool) {
	c.mu.RLock()
	e, ok := c.entries[symbol]
	c.mu.RUnlock()
	if !ok || now.Sub(e.fetchedAt) > c.ttl {
		var zero T
		c.misses.Add(1)
		return zero, time.Time{}, false
	}
	c.hits.Add(1)
	return e.value, e.fetchedAt, true
}

func (c *categoryCache[T]) put(symbol string, v T, now time.Time) {
	c.mu.Lock()
	c.entries[symbol] = cacheEntry[T]{value: v, fetchedAt: now}
	c.mu.Unlock()
}

func (c *categoryCache[T]) stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
