package embed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitelens/internal/embedcache"
	"github.com/JakeFAU/sitelens/internal/hash/sha256"
	"github.com/JakeFAU/sitelens/internal/ingest"
	"github.com/JakeFAU/sitelens/internal/retry"
)

type scriptedModel struct {
	mu       sync.Mutex
	calls    int
	failures int
	err      error
	vec      []float32
}

func (m *scriptedModel) Embed(context.Context, []byte) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.calls <= m.failures {
		return nil, m.err
	}
	return m.vec, nil
}

func (m *scriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func newStage(model ingest.EmbeddingModel) *Stage {
	cache := embedcache.New(embedcache.NewMapStore(), sha256.New())
	return New(cache, model, retry.NewExponential(3, time.Millisecond, 2*time.Millisecond), nil)
}

func okRender(image string) ingest.RenderResult {
	return ingest.RenderResult{URL: "https://a.test", Success: true, Image: []byte(image), PublicURL: "https://cdn.test/a.jpg"}
}

func TestEmbedShortCircuitsFailedRender(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{vec: []float32{1}}
	stage := newStage(model)

	result := stage.Embed(context.Background(), ingest.RenderResult{URL: "https://a.test", Err: "render navigate: timeout"})
	require.False(t, result.Success)
	require.Equal(t, "render navigate: timeout", result.Err)
	require.Zero(t, model.Calls())
}

func TestEmbedRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{failures: 2, err: errors.New("503 cold start"), vec: []float32{0.1, 0.2}}
	stage := newStage(model)

	result := stage.Embed(context.Background(), okRender("jpeg"))
	require.True(t, result.Success, result.Err)
	require.Equal(t, []float32{0.1, 0.2}, result.Vector)
	require.Equal(t, "https://cdn.test/a.jpg", result.PublicURL)
	require.Equal(t, 3, model.Calls())
}

func TestEmbedExhaustsRetries(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{failures: 100, err: errors.New("model down")}
	stage := newStage(model)

	result := stage.Embed(context.Background(), okRender("jpeg"))
	require.False(t, result.Success)
	require.Contains(t, result.Err, "model down")
	require.Contains(t, result.Err, "embed compute")
	require.Equal(t, 4, model.Calls())
}

func TestEmbedDoesNotRetryPermanentErrors(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{failures: 100, err: retry.Permanent(errors.New("400 bad image"))}
	stage := newStage(model)

	result := stage.Embed(context.Background(), okRender("jpeg"))
	require.False(t, result.Success)
	require.Equal(t, 1, model.Calls())
}

func TestEmbedCachesIdenticalImages(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{vec: []float32{3, 4}}
	stage := newStage(model)

	first := stage.Embed(context.Background(), okRender("same-bytes"))
	second := stage.Embed(context.Background(), okRender("same-bytes"))
	require.True(t, first.Success)
	require.Equal(t, first.Vector, second.Vector)
	require.Equal(t, 1, model.Calls())

	vec, err := stage.Vector(context.Background(), []byte("same-bytes"))
	require.NoError(t, err)
	require.Equal(t, []float32{3, 4}, vec)
	require.Equal(t, 1, model.Calls())
}

func TestEmbedRejectsEmptyVector(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{vec: []float32{}}
	stage := New(embedcache.New(nil, sha256.New()), model, nil, nil)

	result := stage.Embed(context.Background(), okRender("jpeg"))
	require.False(t, result.Success)
	require.Contains(t, result.Err, "empty embedding")
}
