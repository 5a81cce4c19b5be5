// Package persist writes successful embeddings to the vector store.
package persist

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitelens/internal/ingest"
)

// Stage implements ingest.PersistStage.
type Stage struct {
	store  ingest.VectorStore
	logger *zap.Logger
}

// New builds a persist stage over store.
func New(store ingest.VectorStore, logger *zap.Logger) *Stage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stage{store: store, logger: logger}
}

// Persist implements ingest.PersistStage. Incomplete results are never sent
// to the store.
func (s *Stage) Persist(ctx context.Context, embed ingest.EmbedResult) ingest.PersistOutcome {
	outcome := ingest.PersistOutcome{URL: embed.URL}
	switch {
	case !embed.Success:
		outcome.Err = embed.Err
		if outcome.Err == "" {
			outcome.Err = "embedding did not succeed"
		}
		return outcome
	case embed.PublicURL == "":
		outcome.Err = "missing screenshot url"
		return outcome
	case len(embed.Vector) == 0:
		outcome.Err = "missing embedding vector"
		return outcome
	}

	if err := s.store.InsertVector(ctx, embed.URL, embed.Vector, embed.PublicURL); err != nil {
		err = ingest.NewStageError(ingest.StagePersist, "insert", err)
		s.logger.Warn("persist failed", zap.String("url", embed.URL), zap.Error(err))
		outcome.Err = err.Error()
		return outcome
	}
	outcome.Success = true
	return outcome
}
