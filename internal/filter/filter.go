// Package filter rejects parked and placeholder domains before they reach the
// renderer.
//
// A Filter probes each URL with a cheap HTTP fetch, extracts page signals and
// runs them through an ordered list of heuristics. When the probe itself fails
// the URL is treated as legitimate so slow but real sites are not dropped.
package filter

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitelens/internal/ingest"
	"github.com/JakeFAU/sitelens/internal/metrics"
)

// DefaultTimeout bounds a probe when Config.Timeout is unset. It stays below
// the render navigation timeout.
const DefaultTimeout = 8 * time.Second

// Config controls the probe and classifier.
type Config struct {
	Timeout       time.Duration
	MinWords      int
	ExtraPhrases  []string
	RespectRobots bool
	UserAgent     string
}

// Filter implements ingest.DomainFilter.
type Filter struct {
	prober     Prober
	classifier *Classifier
	logger     *zap.Logger
}

// New builds a Filter backed by a colly prober.
func New(cfg Config, logger *zap.Logger) *Filter {
	return NewWithProber(NewCollyProber(cfg.UserAgent, cfg.Timeout, cfg.RespectRobots), cfg, logger)
}

// NewWithProber builds a Filter over a custom prober.
func NewWithProber(prober Prober, cfg Config, logger *zap.Logger) *Filter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Filter{
		prober:     prober,
		classifier: NewClassifier(cfg.MinWords, cfg.ExtraPhrases),
		logger:     logger,
	}
}

// Check implements ingest.DomainFilter.
func (f *Filter) Check(ctx context.Context, url string) ingest.DomainVerdict {
	start := time.Now()
	signals, err := f.prober.Probe(ctx, url)
	if err != nil {
		f.logger.Debug("probe failed, treating as legitimate",
			zap.String("url", url),
			zap.Error(err),
		)
		metrics.ObserveProbe("probe_failed", time.Since(start))
		return ingest.DomainVerdict{
			URL:         url,
			Reason:      "probe failed: " + err.Error(),
			ProbeFailed: true,
		}
	}

	verdict := f.classifier.Classify(url, signals)
	label := "legitimate"
	if verdict.IsParked {
		label = "parked"
		f.logger.Info("parked domain filtered",
			zap.String("url", url),
			zap.String("reason", verdict.Reason),
		)
	}
	metrics.ObserveProbe(label, time.Since(start))
	return verdict
}
