// Package embedcache memoizes embedding computations keyed by a digest of the
// input bytes.
//
// A Cache is constructed explicitly and handed to the embed stage. The backing
// Store decides eviction: NewMapStore never evicts and suits one-shot batch
// runs, while NewLRUStore and NewExpirableStore bound the cache for long-lived
// processes.
//
// Two concurrent misses on the same key may both compute; the last Add wins.
// Embeddings are deterministic for identical bytes so either value is correct.
package embedcache

import (
	"context"
	"sync/atomic"

	"github.com/JakeFAU/sitelens/internal/ingest"
)

// ComputeFunc produces the embedding for data on a cache miss.
type ComputeFunc func(ctx context.Context, data []byte) ([]float32, error)

// Store holds cached vectors. Implementations must be safe for concurrent use.
type Store interface {
	Get(key string) ([]float32, bool)
	Add(key string, vector []float32)
	Len() int
}

// Stats reports cache effectiveness.
type Stats struct {
	Hits    int64
	Misses  int64
	Entries int
}

// Cache is a content-addressed memoization layer over an embedding function.
type Cache struct {
	store   Store
	hasher  ingest.Hasher
	observe func(hit bool)
	hits    atomic.Int64
	misses  atomic.Int64
}

// Option customizes a Cache.
type Option func(*Cache)

// WithObserver registers a callback invoked on every lookup.
func WithObserver(fn func(hit bool)) Option {
	return func(c *Cache) {
		c.observe = fn
	}
}

// New builds a Cache over store. A nil store defaults to an unbounded map.
func New(store Store, hasher ingest.Hasher, opts ...Option) *Cache {
	if store == nil {
		store = NewMapStore()
	}
	c := &Cache{store: store, hasher: hasher}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrCompute returns the cached vector for data, computing and storing it on
// a miss. Only compute errors are returned; failed computations are not cached.
func (c *Cache) GetOrCompute(ctx context.Context, data []byte, compute ComputeFunc) ([]float32, error) {
	key := c.hasher.Hash(data)
	if vec, ok := c.store.Get(key); ok {
		c.hits.Add(1)
		c.notify(true)
		return vec, nil
	}
	c.misses.Add(1)
	c.notify(false)

	vec, err := compute(ctx, data)
	if err != nil {
		return nil, err
	}
	c.store.Add(key, vec)
	return vec, nil
}

// Stats returns hit/miss counters and the current entry count.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Entries: c.store.Len(),
	}
}

func (c *Cache) notify(hit bool) {
	if c.observe != nil {
		c.observe(hit)
	}
}
