// Package publisher announces finished batch runs to downstream consumers.
package publisher

import (
	"context"
	"time"

	"github.com/JakeFAU/sitelens/internal/ingest"
)

// Publisher sends a run summary and returns the broker-assigned message ID.
type Publisher interface {
	Publish(ctx context.Context, summary Summary) (string, error)
}

// Summary is the wire payload for a finished run. Only failed outcomes are
// carried; persisted and filtered URLs are visible in the store and totals.
type Summary struct {
	RunID      string           `json:"run_id"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Totals     ingest.Totals    `json:"totals"`
	Failures   []ingest.Outcome `json:"failures"`
}

// NewSummary condenses a report into its published form.
func NewSummary(report ingest.Report) Summary {
	failures := report.Failures()
	if failures == nil {
		failures = []ingest.Outcome{}
	}
	return Summary{
		RunID:      report.RunID,
		StartedAt:  report.Started,
		FinishedAt: report.Finished,
		Totals:     report.Totals,
		Failures:   failures,
	}
}
