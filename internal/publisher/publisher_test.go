package publisher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitelens/internal/ingest"
)

func TestNewSummaryKeepsOnlyFailures(t *testing.T) {
	t.Parallel()

	started := time.Unix(100, 0).UTC()
	report := ingest.Report{
		RunID:    "run-1",
		Started:  started,
		Finished: started.Add(time.Minute),
		Totals:   ingest.Totals{Input: 3, Persisted: 1, Filtered: 1, EmbedFailed: 1},
		Outcomes: []ingest.Outcome{
			{URL: "https://a.test", Status: ingest.StatusPersisted, Stage: ingest.StagePersist},
			{URL: "https://b.test", Status: ingest.StatusFiltered, Stage: ingest.StageFilter},
			{URL: "https://c.test", Status: ingest.StatusFailed, Stage: ingest.StageEmbed, Reason: "embed compute: boom"},
		},
	}

	summary := NewSummary(report)
	require.Equal(t, "run-1", summary.RunID)
	require.Equal(t, report.Totals, summary.Totals)
	require.Equal(t, started.Add(time.Minute), summary.FinishedAt)
	require.Len(t, summary.Failures, 1)
	require.Equal(t, "https://c.test", summary.Failures[0].URL)
}

func TestNewSummaryNoFailuresEncodesEmptyList(t *testing.T) {
	t.Parallel()

	summary := NewSummary(ingest.Report{RunID: "run-2"})
	require.NotNil(t, summary.Failures)
	require.Empty(t, summary.Failures)
}
