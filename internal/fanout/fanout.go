// Package fanout runs a function over a slice with bounded concurrency.
package fanout

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/gammazero/workerpool"
	"golang.org/x/sync/errgroup"
)

// Strategy selects how items are scheduled.
type Strategy string

const (
	// Wave launches up to limit calls, waits for all of them, then launches the
	// next group.
	Wave Strategy = "wave"
	// Pool keeps limit workers busy until every item has been handed out.
	Pool Strategy = "pool"
)

// ParseStrategy maps a config string to a Strategy. Empty means Wave.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", Wave:
		return Wave, nil
	case Pool:
		return Pool, nil
	default:
		return "", fmt.Errorf("unknown fan-out strategy %q", s)
	}
}

// PanicError reports calls that panicked. Indices refer to the input slice.
type PanicError struct {
	Indices []int
	Values  []any
	Stack   []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("%d call(s) panicked; first: %v", len(e.Indices), e.Values[0])
}

// Panicked reports whether item i panicked.
func (e *PanicError) Panicked(i int) bool {
	for _, idx := range e.Indices {
		if idx == i {
			return true
		}
	}
	return false
}

// Map calls fn for every item and returns the results in input order. At most
// limit calls are in flight at any moment. A panicking call leaves the zero
// value in its slot and is reported through a *PanicError once every item has
// been processed.
func Map[T, R any](ctx context.Context, strategy Strategy, limit int, items []T, fn func(context.Context, T) R) ([]R, error) {
	results := make([]R, len(items))
	if len(items) == 0 {
		return results, nil
	}
	if limit <= 0 {
		limit = 1
	}

	var (
		mu     sync.Mutex
		panics *PanicError
	)
	call := func(i int) {
		defer func() {
			if r := recover(); r != nil {
				mu.Lock()
				if panics == nil {
					panics = &PanicError{Stack: debug.Stack()}
				}
				panics.Indices = append(panics.Indices, i)
				panics.Values = append(panics.Values, r)
				mu.Unlock()
			}
		}()
		results[i] = fn(ctx, items[i])
	}

	switch strategy {
	case Pool:
		runPool(limit, len(items), call)
	default:
		runWaves(limit, len(items), call)
	}

	if panics != nil {
		return results, panics
	}
	return results, nil
}

func runWaves(limit, n int, call func(int)) {
	for start := 0; start < n; start += limit {
		end := min(start+limit, n)
		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				call(i)
				return nil
			})
		}
		_ = g.Wait()
	}
}

func runPool(limit, n int, call func(int)) {
	wp := workerpool.New(limit)
	for i := 0; i < n; i++ {
		wp.Submit(func() {
			call(i)
		})
	}
	wp.StopWait()
}
