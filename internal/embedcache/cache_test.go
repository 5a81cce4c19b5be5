package embedcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitelens/internal/hash/sha256"
)

type countingCompute struct {
	calls atomic.Int64
	err   error
}

func (c *countingCompute) compute(_ context.Context, data []byte) ([]float32, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return []float32{float32(len(data)), 0.5, -1}, nil
}

func TestGetOrComputeMemoizesIdenticalBytes(t *testing.T) {
	t.Parallel()

	cache := New(NewMapStore(), sha256.New())
	fn := &countingCompute{}
	image := []byte{0xff, 0xd8, 0xff, 0xe0, 0x01}

	first, err := cache.GetOrCompute(context.Background(), image, fn.compute)
	require.NoError(t, err)
	second, err := cache.GetOrCompute(context.Background(), append([]byte(nil), image...), fn.compute)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, int64(1), fn.calls.Load())
	require.Equal(t, Stats{Hits: 1, Misses: 1, Entries: 1}, cache.Stats())
}

func TestGetOrComputeDoesNotCacheFailures(t *testing.T) {
	t.Parallel()

	cache := New(nil, sha256.New())
	fn := &countingCompute{err: errors.New("model unavailable")}

	_, err := cache.GetOrCompute(context.Background(), []byte("img"), fn.compute)
	require.Error(t, err)
	_, err = cache.GetOrCompute(context.Background(), []byte("img"), fn.compute)
	require.Error(t, err)

	require.Equal(t, int64(2), fn.calls.Load())
	require.Zero(t, cache.Stats().Entries)
}

func TestGetOrComputeDistinctKeysConcurrently(t *testing.T) {
	t.Parallel()

	cache := New(NewMapStore(), sha256.New())
	fn := &countingCompute{}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			data := []byte(fmt.Sprintf("image-%02d", i))
			_, err := cache.GetOrCompute(context.Background(), data, fn.compute)
			require.NoError(t, err)
		}(i)
	}
	wg.Wait()

	require.Equal(t, 50, cache.Stats().Entries)
	require.Equal(t, int64(50), fn.calls.Load())
}

func TestObserverSeesLookups(t *testing.T) {
	t.Parallel()

	var hits, misses int
	cache := New(NewMapStore(), sha256.New(), WithObserver(func(hit bool) {
		if hit {
			hits++
		} else {
			misses++
		}
	}))
	fn := &countingCompute{}
	for i := 0; i < 3; i++ {
		_, err := cache.GetOrCompute(context.Background(), []byte("same"), fn.compute)
		require.NoError(t, err)
	}
	require.Equal(t, 2, hits)
	require.Equal(t, 1, misses)
}

func TestLRUStoreEvicts(t *testing.T) {
	t.Parallel()

	store, err := NewLRUStore(2)
	require.NoError(t, err)
	store.Add("a", []float32{1})
	store.Add("b", []float32{2})
	store.Add("c", []float32{3})

	_, ok := store.Get("a")
	require.False(t, ok)
	require.Equal(t, 2, store.Len())
}

func TestExpirableStoreExpires(t *testing.T) {
	t.Parallel()

	store := NewExpirableStore(0, 20*time.Millisecond)
	store.Add("a", []float32{1})
	_, ok := store.Get("a")
	require.True(t, ok)

	require.Eventually(t, func() bool {
		_, ok := store.Get("a")
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestNewStoreSelection(t *testing.T) {
	t.Parallel()

	s, err := NewStore(0, 0)
	require.NoError(t, err)
	require.IsType(t, &MapStore{}, s)

	s, err = NewStore(10, 0)
	require.NoError(t, err)
	require.IsType(t, &LRUStore{}, s)

	s, err = NewStore(10, time.Minute)
	require.NoError(t, err)
	require.IsType(t, &ExpirableStore{}, s)

	_, err = NewStore(-1, 0)
	require.NoError(t, err)
}
