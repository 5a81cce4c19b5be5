// Package embed turns rendered screenshots into embedding vectors.
package embed

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitelens/internal/embedcache"
	"github.com/JakeFAU/sitelens/internal/ingest"
	"github.com/JakeFAU/sitelens/internal/metrics"
	"github.com/JakeFAU/sitelens/internal/retry"
)

var errEmptyVector = errors.New("empty embedding vector")

// Stage implements ingest.EmbedStage. Lookups go through the cache; only the
// model call on a miss is retried.
type Stage struct {
	cache  *embedcache.Cache
	model  ingest.EmbeddingModel
	policy retry.Policy
	logger *zap.Logger
}

// New wires the stage. A nil policy disables retries.
func New(cache *embedcache.Cache, model ingest.EmbeddingModel, policy retry.Policy, logger *zap.Logger) *Stage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stage{cache: cache, model: model, policy: policy, logger: logger}
}

// Embed implements ingest.EmbedStage.
func (s *Stage) Embed(ctx context.Context, render ingest.RenderResult) ingest.EmbedResult {
	result := ingest.EmbedResult{URL: render.URL, PublicURL: render.PublicURL}
	if !render.Success {
		result.Err = render.Err
		if result.Err == "" {
			result.Err = "render did not succeed"
		}
		return result
	}

	vec, err := s.vector(ctx, render.URL, render.Image)
	if err != nil {
		err = ingest.NewStageError(ingest.StageEmbed, "compute", err)
		s.logger.Warn("embedding failed", zap.String("url", render.URL), zap.Error(err))
		result.Err = err.Error()
		return result
	}
	result.Success = true
	result.Vector = vec
	return result
}

// Vector returns the cached or freshly computed embedding for image.
func (s *Stage) Vector(ctx context.Context, image []byte) ([]float32, error) {
	return s.vector(ctx, "", image)
}

func (s *Stage) vector(ctx context.Context, url string, image []byte) ([]float32, error) {
	if len(image) == 0 {
		return nil, errors.New("no image bytes")
	}
	return s.cache.GetOrCompute(ctx, image, func(ctx context.Context, data []byte) ([]float32, error) {
		return retry.Do(ctx, s.policy, func(ctx context.Context) ([]float32, error) {
			vec, err := s.model.Embed(ctx, data)
			if err != nil {
				return nil, err
			}
			if len(vec) == 0 {
				return nil, errEmptyVector
			}
			return vec, nil
		}, func(failures int, err error, wait time.Duration) {
			metrics.ObserveEmbedRetry()
			s.logger.Debug("retrying embedding",
				zap.String("url", url),
				zap.Int("attempt", failures),
				zap.Duration("backoff", wait),
				zap.Error(err),
			)
		})
	})
}
