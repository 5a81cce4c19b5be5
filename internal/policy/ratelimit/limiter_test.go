package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiterDisabled(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	require.False(t, l.Enabled())
	for range 5 {
		require.NoError(t, l.Wait(context.Background(), "https://example.com"))
	}
	require.Zero(t, l.Hosts())

	var nilLimiter *Limiter
	require.NoError(t, nilLimiter.Wait(context.Background(), "https://example.com"))
}

func TestLimiterBlocksPerHost(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 0.001, Burst: 1})
	require.True(t, l.Enabled())
	require.NoError(t, l.Wait(context.Background(), "https://a.test/1"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, l.Wait(ctx, "https://a.test/2"))

	require.NoError(t, l.Wait(context.Background(), "https://b.test/1"))
	require.Equal(t, 2, l.Hosts())
}

func TestLimiterWaitsForToken(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 20, Burst: 1})
	ctx := context.Background()
	require.NoError(t, l.Wait(ctx, "https://a.test"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://a.test"))
	require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}
