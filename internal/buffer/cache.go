package buffer

import (
	"context"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru"
)

// Loader fetches the value for a key on a cache miss.
type Loader[K comparable, V any] func(ctx context.Context, key K) (V, error)

// Cache is a bounded, concurrency-safe read-through LRU cache. Entries leave
// only through capacity eviction; there is no invalidation, so it must only
// hold values that never change once loaded.
type Cache[K comparable, V any] struct {
	lru    *lru.Cache
	load   Loader[K, V]
	hits   atomic.Int64
	misses atomic.Int64
}

// NewCache creates a cache holding at most size entries.
func NewCache[K comparable, V any](size int, load Loader[K, V]) (*Cache[K, V], error) {
	if load == nil {
		return nil, fmt.Errorf("new cache: nil loader")
	}
	l, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("new cache: %w", err)
	}
	return &Cache[K, V]{lru: l, load: load}, nil
}

// Get returns the cached value for key, loading and caching it on a miss.
// Loader errors are returned as-is and nothing is cached for the key.
//
// Concurrent misses on the same key may each call the loader; the values are
// immutable, so the last Add wins harmlessly.
func (c *Cache[K, V]) Get(ctx context.Context, key K) (V, error) {
	if v, ok := c.lru.Get(key); ok {
		c.hits.Add(1)
		return v.(V), nil
	}
	c.misses.Add(1)

	v, err := c.load(ctx, key)
	if err != nil {
		var zero V
		return zero, err
	}
	c.lru.Add(key, v)
	return v, nil
}

// Peek returns a cached value without loading or touching recency.
func (c *Cache[K, V]) Peek(key K) (V, bool) {
	if v, ok := c.lru.Peek(key); ok {
		return v.(V), true
	}
	var zero V
	return zero, false
}

// Len returns the number of cached entries.
func (c *Cache[K, V]) Len() int {
	return c.lru.Len()
}

// Stats returns the hit and miss counts since creation.
func (c *Cache[K, V]) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
