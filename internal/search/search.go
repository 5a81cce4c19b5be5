// Package search finds stored sites that look like a given URL.
package search

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitelens/internal/ingest"
)

// Vectorizer computes an embedding for raw image bytes.
type Vectorizer interface {
	Vector(ctx context.Context, image []byte) ([]float32, error)
}

// Service captures a page, embeds the screenshot and queries the store.
type Service struct {
	capturer ingest.Capturer
	vectors  Vectorizer
	store    ingest.VectorStore
	logger   *zap.Logger
}

// New builds a Service.
func New(capturer ingest.Capturer, vectors Vectorizer, store ingest.VectorStore, logger *zap.Logger) (*Service, error) {
	if capturer == nil || vectors == nil || store == nil {
		return nil, errors.New("search requires a capturer, vectorizer and store")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{capturer: capturer, vectors: vectors, store: store, logger: logger}, nil
}

// Similar returns the k stored sites closest to rawURL's screenshot.
func (s *Service) Similar(ctx context.Context, rawURL string, k int) ([]ingest.Match, error) {
	target, err := ingest.NormalizeURL(rawURL)
	if err != nil {
		return nil, err
	}
	image, err := s.capturer.Capture(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("capture %s: %w", target, err)
	}
	vec, err := s.vectors.Vector(ctx, image)
	if err != nil {
		return nil, ingest.NewStageError(ingest.StageEmbed, "compute", err)
	}
	matches, err := s.store.MatchVectors(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("match vectors: %w", err)
	}
	s.logger.Info("search complete", zap.String("url", target), zap.Int("matches", len(matches)))
	return matches, nil
}
