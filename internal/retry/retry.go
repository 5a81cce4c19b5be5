// Package retry provides jittered exponential backoff for transient failures.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	goretry "github.com/sethvargo/go-retry"
)

// jitterPercent spreads each wait by up to this percentage either way.
const jitterPercent = 25

// Policy decides whether a failed attempt is retried and how long to wait.
type Policy interface {
	// Retryable reports whether err may succeed on another attempt.
	Retryable(err error) bool
	// NewBackoff returns a fresh wait sequence for one call to Do. The
	// sequence stops when the retry budget is spent.
	NewBackoff() goretry.Backoff
}

// Exponential implements Policy with jittered exponential backoff.
type Exponential struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// NewExponential builds a policy allowing maxRetries retries after the first
// attempt. Non-positive delays fall back to 250ms base and 5s cap.
func NewExponential(maxRetries int, baseDelay, maxDelay time.Duration) *Exponential {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 250 * time.Millisecond
	}
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}
	if maxDelay < baseDelay {
		maxDelay = baseDelay
	}
	return &Exponential{
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
	}
}

// MaxRetries returns the configured retry budget.
func (p *Exponential) MaxRetries() int {
	return p.maxRetries
}

// Retryable rejects permanent errors and cancellation.
func (p *Exponential) Retryable(err error) bool {
	if err == nil || IsPermanent(err) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}

// NewBackoff returns base*2^n waits, capped at the max delay and jittered by
// 25%, for at most MaxRetries retries.
func (p *Exponential) NewBackoff() goretry.Backoff {
	b := goretry.NewExponential(p.baseDelay)
	b = goretry.WithCappedDuration(p.maxDelay, b)
	b = goretry.WithJitterPercent(jitterPercent, b)
	return goretry.WithMaxRetries(uint64(p.maxRetries), b)
}

// NotifyFunc observes a failed attempt that is about to be retried.
type NotifyFunc func(failures int, err error, wait time.Duration)

// Do runs fn until it succeeds, the policy gives up, or ctx is done. The last
// error is returned when retries are exhausted.
func Do[T any](ctx context.Context, policy Policy, fn func(context.Context) (T, error), notify NotifyFunc) (T, error) {
	var (
		val      T
		failures int
		lastErr  error
	)
	var backoff goretry.Backoff = goretry.BackoffFunc(func() (time.Duration, bool) { return 0, true })
	if policy != nil {
		backoff = policy.NewBackoff()
	}
	observed := goretry.BackoffFunc(func() (time.Duration, bool) {
		wait, stop := backoff.Next()
		if !stop && notify != nil {
			notify(failures, lastErr, wait)
		}
		return wait, stop
	})

	err := goretry.Do(ctx, observed, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err == nil {
			val = v
			return nil
		}
		failures++
		lastErr = err
		if policy == nil || !policy.Retryable(err) {
			return err
		}
		return goretry.RetryableError(err)
	})
	if err == nil {
		return val, nil
	}

	var zero T
	if lastErr != nil && !errors.Is(err, lastErr) {
		// Cancelled while backing off.
		return zero, fmt.Errorf("attempt %d: %w (backoff: %v)", failures, lastErr, err)
	}
	return zero, fmt.Errorf("attempt %d: %w", failures, err)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
