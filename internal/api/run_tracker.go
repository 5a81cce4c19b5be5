package api

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/sitelens/internal/ingest"
	"github.com/JakeFAU/sitelens/internal/progress"
)

const defaultTrackedRuns = 32

// RunState values reported by the progress routes.
const (
	RunRunning = "running"
	RunDone    = "done"
)

// RunSnapshot is the point-in-time view of one batch run.
type RunSnapshot struct {
	RunID       uuid.UUID     `json:"run_id"`
	Status      string        `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  *time.Time    `json:"finished_at,omitempty"`
	ChunksDone  int           `json:"chunks_done"`
	Totals      ingest.Totals `json:"totals"`
	LastFailure string        `json:"last_failure,omitempty"`
}

// RunTracker is a progress.Sink that folds events into per-run snapshots for
// the status server. Only the most recent runs are retained.
type RunTracker struct {
	mu    sync.RWMutex
	runs  map[uuid.UUID]*RunSnapshot
	order []uuid.UUID
	limit int
}

// NewRunTracker keeps up to limit runs; non-positive values use a default.
func NewRunTracker(limit int) *RunTracker {
	if limit <= 0 {
		limit = defaultTrackedRuns
	}
	return &RunTracker{
		runs:  make(map[uuid.UUID]*RunSnapshot),
		limit: limit,
	}
}

// Consume implements progress.Sink.
func (t *RunTracker) Consume(_ context.Context, batch []progress.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, evt := range batch {
		id := evt.RunUUID()
		run := t.runs[id]
		if run == nil {
			run = t.track(id, evt.TS)
		}
		switch evt.Kind {
		case progress.KindRunStart:
			run.StartedAt = evt.TS
			run.Totals.Input = evt.Items
		case progress.KindChunkDone:
			run.ChunksDone++
		case progress.KindItemDone:
			run.Totals.Add(ingest.Outcome{URL: evt.URL, Status: evt.Status, Stage: evt.Stage, Reason: evt.Note})
			if evt.Status == ingest.StatusFailed {
				run.LastFailure = evt.URL + ": " + evt.Note
			}
		case progress.KindRunDone:
			ts := evt.TS
			run.Status = RunDone
			run.FinishedAt = &ts
		}
	}
	return nil
}

// Close implements progress.Sink.
func (t *RunTracker) Close(context.Context) error { return nil }

func (t *RunTracker) track(id uuid.UUID, ts time.Time) *RunSnapshot {
	run := &RunSnapshot{RunID: id, Status: RunRunning, StartedAt: ts}
	t.runs[id] = run
	t.order = append(t.order, id)
	for len(t.order) > t.limit {
		delete(t.runs, t.order[0])
		t.order = t.order[1:]
	}
	return run
}

// Runs returns snapshots newest first, optionally filtered by status.
func (t *RunTracker) Runs(status string) []RunSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]RunSnapshot, 0, len(t.runs))
	for _, run := range t.runs {
		if status != "" && run.Status != status {
			continue
		}
		out = append(out, copySnapshot(run))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// Run returns the snapshot for id.
func (t *RunTracker) Run(id uuid.UUID) (RunSnapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	run, ok := t.runs[id]
	if !ok {
		return RunSnapshot{}, false
	}
	return copySnapshot(run), true
}

func copySnapshot(run *RunSnapshot) RunSnapshot {
	cp := *run
	if run.FinishedAt != nil {
		ts := *run.FinishedAt
		cp.FinishedAt = &ts
	}
	return cp
}
