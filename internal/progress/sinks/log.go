package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitelens/internal/ingest"
	"github.com/JakeFAU/sitelens/internal/progress"
)

// LogSink writes progress events as structured logs. Persisted items are
// logged at debug level to keep large runs readable; failures at warn.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.Stringer("run_id", evt.RunUUID()),
			zap.String("kind", string(evt.Kind)),
		}
		switch evt.Kind {
		case progress.KindItemDone:
			fields = append(fields,
				zap.Int("chunk", evt.Chunk),
				zap.String("url", evt.URL),
				zap.String("status", string(evt.Status)),
				zap.String("stage", string(evt.Stage)),
			)
			if evt.Note != "" {
				fields = append(fields, zap.String("reason", evt.Note))
			}
			if evt.Status == ingest.StatusFailed {
				s.logger.Warn("item failed", fields...)
			} else {
				s.logger.Debug("item done", fields...)
			}
		case progress.KindChunkStart, progress.KindChunkDone:
			fields = append(fields, zap.Int("chunk", evt.Chunk), zap.Int("items", evt.Items))
			if evt.Dur > 0 {
				fields = append(fields, zap.Duration("dur", evt.Dur))
			}
			s.logger.Debug("chunk progress", fields...)
		default:
			fields = append(fields, zap.Int("items", evt.Items))
			if evt.Dur > 0 {
				fields = append(fields, zap.Duration("dur", evt.Dur))
			}
			s.logger.Info("run progress", fields...)
		}
	}
	return nil
}

// Close implements progress.Sink; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
