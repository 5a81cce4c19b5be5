package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/sitelens/internal/progress"
)

// PrometheusSink exports run progress via Prometheus. It owns the run, chunk
// and item collectors.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted prometheus.Counter
	runsRunning   prometheus.Gauge
	runDuration   prometheus.Histogram

	chunksCompleted prometheus.Counter
	chunkDuration   prometheus.Histogram

	items *prometheus.CounterVec
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sitelens_runs_started_total",
			Help: "Batch runs started.",
		}),
		runsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sitelens_runs_completed_total",
			Help: "Batch runs completed.",
		}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sitelens_runs_running",
			Help: "Batch runs in progress.",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sitelens_run_duration_seconds",
			Help:    "Wall time per completed run.",
			Buckets: []float64{10, 30, 60, 300, 900, 1800, 3600, 7200},
		}),
		chunksCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sitelens_chunks_completed_total",
			Help: "Chunks processed through every stage.",
		}),
		chunkDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sitelens_chunk_duration_seconds",
			Help:    "Wall time per chunk.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitelens_items_total",
			Help: "Terminal item outcomes partitioned by status and stage.",
		}, []string{"status", "stage"}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runDuration,
		s.chunksCompleted,
		s.chunkDuration,
		s.items,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Kind {
		case progress.KindRunStart:
			s.runsStarted.Inc()
			s.runsRunning.Inc()
		case progress.KindRunDone:
			s.runsCompleted.Inc()
			s.runsRunning.Dec()
			if evt.Dur > 0 {
				s.runDuration.Observe(evt.Dur.Seconds())
			}
		case progress.KindChunkDone:
			s.chunksCompleted.Inc()
			if evt.Dur > 0 {
				s.chunkDuration.Observe(evt.Dur.Seconds())
			}
		case progress.KindItemDone:
			s.items.WithLabelValues(string(evt.Status), string(evt.Stage)).Inc()
		}
	}
	return nil
}

// Close implements progress.Sink; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
