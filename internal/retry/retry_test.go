package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fastPolicy(maxRetries int) *Exponential {
	return NewExponential(maxRetries, time.Millisecond, 2*time.Millisecond)
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	calls := 0
	var notified []int
	got, err := Do(context.Background(), fastPolicy(3), func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("cold start")
		}
		return "ok", nil
	}, func(failures int, _ error, _ time.Duration) {
		notified = append(notified, failures)
	})

	require.NoError(t, err)
	require.Equal(t, "ok", got)
	require.Equal(t, 3, calls)
	require.Equal(t, []int{1, 2}, notified)
}

func TestDoExhaustsBudget(t *testing.T) {
	t.Parallel()

	calls := 0
	boom := errors.New("rate limited")
	_, err := Do(context.Background(), fastPolicy(3), func(context.Context) (int, error) {
		calls++
		return 0, boom
	}, nil)

	require.ErrorIs(t, err, boom)
	require.Equal(t, 4, calls)
}

func TestDoStopsOnPermanent(t *testing.T) {
	t.Parallel()

	calls := 0
	_, err := Do(context.Background(), fastPolicy(5), func(context.Context) (int, error) {
		calls++
		return 0, Permanent(errors.New("bad request"))
	}, nil)

	require.Error(t, err)
	require.True(t, IsPermanent(err))
	require.Equal(t, 1, calls)
}

func TestDoHonoursCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Do(ctx, NewExponential(5, time.Hour, time.Hour), func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, errors.New("transient")
	}, nil)

	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestExponentialBackoffSequence(t *testing.T) {
	t.Parallel()

	b := NewExponential(3, 100*time.Millisecond, 400*time.Millisecond).NewBackoff()
	for i := 0; i < 3; i++ {
		wait, stop := b.Next()
		require.False(t, stop)
		require.GreaterOrEqual(t, wait, 75*time.Millisecond)
		require.LessOrEqual(t, wait, 500*time.Millisecond)
	}
	_, stop := b.Next()
	require.True(t, stop, "budget of three retries is spent")
}

func TestExponentialRetryable(t *testing.T) {
	t.Parallel()

	p := NewExponential(2, 0, 0)
	require.True(t, p.Retryable(errors.New("x")))
	require.False(t, p.Retryable(nil))
	require.False(t, p.Retryable(context.Canceled))
	require.False(t, p.Retryable(Permanent(errors.New("x"))))
	require.Equal(t, 2, p.MaxRetries())
}

func TestDoWithoutPolicyRunsOnce(t *testing.T) {
	t.Parallel()

	calls := 0
	_, err := Do(context.Background(), nil, func(context.Context) (int, error) {
		calls++
		return 0, errors.New("transient")
	}, nil)

	require.Error(t, err)
	require.Equal(t, 1, calls)
}
