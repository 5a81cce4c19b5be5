package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "nested", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})
	s.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return s
}

func TestInsertAndMatch(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertVector(ctx, "https://a.test", []float32{1, 0, 0}, "memory://a.jpg"))
	require.NoError(t, s.InsertVector(ctx, "https://b.test", []float32{0.9, 0.1, 0}, "memory://b.jpg"))
	require.NoError(t, s.InsertVector(ctx, "https://c.test", []float32{0, 1, 0}, "memory://c.jpg"))
	require.NoError(t, s.InsertVector(ctx, "https://d.test", []float32{1, 0}, "memory://d.jpg"))

	matches, err := s.MatchVectors(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	require.Equal(t, "https://a.test", matches[0].URL)
	require.InDelta(t, 1.0, matches[0].Similarity, 1e-6)
	require.Equal(t, "https://b.test", matches[1].URL)
	require.Equal(t, "memory://b.jpg", matches[1].ScreenshotURL)
	require.Equal(t, time.UnixMilli(1700000000000).UTC(), matches[0].CreatedAt)
	require.Positive(t, matches[0].ID)
}

func TestDuplicateURLsAreKept(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertVector(ctx, "https://a.test", []float32{1, 1}, "x"))
	require.NoError(t, s.InsertVector(ctx, "https://a.test", []float32{1, 1}, "y"))

	matches, err := s.MatchVectors(ctx, []float32{1, 1}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 2)
}

func TestRejectsEmptyVectors(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	require.Error(t, s.InsertVector(context.Background(), "https://a.test", nil, "x"))
	_, err := s.MatchVectors(context.Background(), nil, 1)
	require.Error(t, err)
}
