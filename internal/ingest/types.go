// Package ingest defines the types and collaborator interfaces shared by the
// pipeline stages and the batch orchestrator.
package ingest

import "time"

// Stage names the pipeline step at which an item reached its terminal state.
type Stage string

// Pipeline stages in execution order.
const (
	StageFilter  Stage = "filter"
	StageRender  Stage = "render"
	StageEmbed   Stage = "embed"
	StagePersist Stage = "persist"
)

// Status is the coarse terminal result of an item.
type Status string

// Terminal statuses reported per item.
const (
	StatusPersisted Status = "persisted"
	StatusFiltered  Status = "filtered-parked"
	StatusFailed    Status = "failed"
)

// DomainVerdict is the parked-domain classification for a single URL.
type DomainVerdict struct {
	URL      string
	IsParked bool
	Reason   string
	// ProbeFailed is set when the preliminary fetch failed and the verdict
	// fell back to legitimate.
	ProbeFailed bool
}

// RenderResult is the output of the render stage. Image is owned by the
// result until the embed stage consumes it.
type RenderResult struct {
	URL       string
	Success   bool
	Image     []byte
	PublicURL string
	Err       string
}

// EmbedResult is the output of the embed stage. PublicURL is carried over
// from the render result.
type EmbedResult struct {
	URL       string
	Success   bool
	Vector    []float32
	PublicURL string
	Err       string
}

// PersistOutcome is the output of the persist stage.
type PersistOutcome struct {
	URL     string
	Success bool
	Err     string
}

// Outcome is the terminal state of one input URL.
type Outcome struct {
	URL    string `json:"url"`
	Status Status `json:"status"`
	Stage  Stage  `json:"stage"`
	Reason string `json:"reason,omitempty"`
}

// Totals aggregates outcomes by terminal bucket.
type Totals struct {
	Input         int `json:"input"`
	Persisted     int `json:"persisted"`
	Filtered      int `json:"filtered_parked"`
	FilterFailed  int `json:"filter_failed"`
	RenderFailed  int `json:"render_failed"`
	EmbedFailed   int `json:"embed_failed"`
	PersistFailed int `json:"persist_failed"`
}

// Failed returns the number of items that failed at any stage.
func (t Totals) Failed() int {
	return t.FilterFailed + t.RenderFailed + t.EmbedFailed + t.PersistFailed
}

// Add records a single outcome in the matching bucket.
func (t *Totals) Add(o Outcome) {
	switch o.Status {
	case StatusPersisted:
		t.Persisted++
	case StatusFiltered:
		t.Filtered++
	case StatusFailed:
		switch o.Stage {
		case StageFilter:
			t.FilterFailed++
		case StageRender:
			t.RenderFailed++
		case StageEmbed:
			t.EmbedFailed++
		case StagePersist:
			t.PersistFailed++
		}
	}
}

// Report is the result of one batch run.
type Report struct {
	RunID    string    `json:"run_id"`
	Started  time.Time `json:"started_at"`
	Finished time.Time `json:"finished_at"`
	Totals   Totals    `json:"totals"`
	Outcomes []Outcome `json:"outcomes"`
}

// Failures returns the outcomes with StatusFailed.
func (r Report) Failures() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Status == StatusFailed {
			out = append(out, o)
		}
	}
	return out
}

// Match is one ranked nearest-neighbour result from the vector store.
type Match struct {
	ID            int64     `json:"id"`
	URL           string    `json:"url"`
	ScreenshotURL string    `json:"screenshot_url"`
	Similarity    float64   `json:"similarity"`
	CreatedAt     time.Time `json:"created_at"`
}
