package embedcache

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MapStore is an unbounded store guarded by a RWMutex.
type MapStore struct {
	mu      sync.RWMutex
	entries map[string][]float32
}

// NewMapStore returns an empty unbounded store.
func NewMapStore() *MapStore {
	return &MapStore{entries: make(map[string][]float32)}
}

// Get implements Store.
func (s *MapStore) Get(key string) ([]float32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.entries[key]
	return v, ok
}

// Add implements Store.
func (s *MapStore) Add(key string, vector []float32) {
	s.mu.Lock()
	s.entries[key] = vector
	s.mu.Unlock()
}

// Len implements Store.
func (s *MapStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// LRUStore evicts the least recently used entry once size is reached.
type LRUStore struct {
	cache *lru.Cache[string, []float32]
}

// NewLRUStore builds a size-bounded store.
func NewLRUStore(size int) (*LRUStore, error) {
	c, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	return &LRUStore{cache: c}, nil
}

// Get implements Store.
func (s *LRUStore) Get(key string) ([]float32, bool) {
	return s.cache.Get(key)
}

// Add implements Store.
func (s *LRUStore) Add(key string, vector []float32) {
	s.cache.Add(key, vector)
}

// Len implements Store.
func (s *LRUStore) Len() int {
	return s.cache.Len()
}

// ExpirableStore drops entries after ttl and, when size > 0, evicts LRU
// entries beyond size.
type ExpirableStore struct {
	cache *expirable.LRU[string, []float32]
}

// NewExpirableStore builds a time-bounded store. size <= 0 means no size bound.
func NewExpirableStore(size int, ttl time.Duration) *ExpirableStore {
	if size < 0 {
		size = 0
	}
	return &ExpirableStore{cache: expirable.NewLRU[string, []float32](size, nil, ttl)}
}

// Get implements Store.
func (s *ExpirableStore) Get(key string) ([]float32, bool) {
	return s.cache.Get(key)
}

// Add implements Store.
func (s *ExpirableStore) Add(key string, vector []float32) {
	s.cache.Add(key, vector)
}

// Len implements Store.
func (s *ExpirableStore) Len() int {
	return s.cache.Len()
}

// NewStore picks a store for the given bounds: unbounded map when both are
// zero, expirable LRU when ttl is set, plain LRU otherwise.
func NewStore(maxEntries int, ttl time.Duration) (Store, error) {
	switch {
	case ttl > 0:
		return NewExpirableStore(maxEntries, ttl), nil
	case maxEntries > 0:
		return NewLRUStore(maxEntries)
	default:
		return NewMapStore(), nil
	}
}
