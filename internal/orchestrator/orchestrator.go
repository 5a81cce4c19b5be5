// Package orchestrator drives URLs through the filter, render, embed and
// persist stages in fixed-size chunks and reports one terminal outcome per
// input URL.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitelens/internal/clock/system"
	"github.com/JakeFAU/sitelens/internal/fanout"
	idgen "github.com/JakeFAU/sitelens/internal/id/uuid"
	"github.com/JakeFAU/sitelens/internal/ingest"
	"github.com/JakeFAU/sitelens/internal/metrics"
	"github.com/JakeFAU/sitelens/internal/progress"
)

// Config controls chunking and per-stage concurrency.
type Config struct {
	ChunkSize          int
	ChunkDelay         time.Duration
	FilterConcurrency  int
	RenderConcurrency  int
	EmbedConcurrency   int
	PersistConcurrency int
	Strategy           fanout.Strategy
	FilterEnabled      bool
}

// DefaultConfig returns the batch defaults.
func DefaultConfig() Config {
	return Config{
		ChunkSize:          100,
		ChunkDelay:         time.Second,
		FilterConcurrency:  15,
		RenderConcurrency:  15,
		EmbedConcurrency:   8,
		PersistConcurrency: 25,
		Strategy:           fanout.Wave,
		FilterEnabled:      true,
	}
}

// Stages groups the per-item collaborators. Filter may be nil when filtering
// is disabled.
type Stages struct {
	Filter   ingest.DomainFilter
	Renderer ingest.Renderer
	Embed    ingest.EmbedStage
	Persist  ingest.PersistStage
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithEmitter sets the progress emitter.
func WithEmitter(emitter progress.Emitter) Option {
	return func(o *Orchestrator) {
		if emitter != nil {
			o.emitter = emitter
		}
	}
}

// IDGenerator issues run IDs.
type IDGenerator interface {
	NewRunID() uuid.UUID
}

// WithIDGenerator overrides how run IDs are issued.
func WithIDGenerator(ids IDGenerator) Option {
	return func(o *Orchestrator) {
		if ids != nil {
			o.ids = ids
		}
	}
}

// WithClock overrides the clock used for report timestamps.
func WithClock(clock ingest.Clock) Option {
	return func(o *Orchestrator) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// Orchestrator runs batches. A single Orchestrator may run batches
// sequentially or concurrently; it holds no per-run state.
type Orchestrator struct {
	cfg     Config
	stages  Stages
	logger  *zap.Logger
	emitter progress.Emitter
	clock   ingest.Clock
	ids     IDGenerator
	sleep   func(context.Context, time.Duration)
}

// New validates cfg and stages and returns an Orchestrator.
func New(cfg Config, stages Stages, opts ...Option) (*Orchestrator, error) {
	if stages.Renderer == nil || stages.Embed == nil || stages.Persist == nil {
		return nil, errors.New("renderer, embed and persist stages are required")
	}
	if cfg.FilterEnabled && stages.Filter == nil {
		return nil, errors.New("filter enabled without a domain filter")
	}
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", cfg.ChunkSize)
	}
	if cfg.Strategy == "" {
		cfg.Strategy = fanout.Wave
	}
	o := &Orchestrator{
		cfg:     cfg,
		stages:  stages,
		logger:  zap.NewNop(),
		emitter: progress.NopEmitter{},
		clock:   system.New(),
		ids:     idgen.New(),
		sleep:   sleepWithContext,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Run processes urls and returns the aggregate report. It never fails: every
// input URL appears in exactly one outcome. A cancelled context makes the
// remaining stage calls fail and skips inter-chunk delays.
func (o *Orchestrator) Run(ctx context.Context, urls []string) ingest.Report {
	runUUID := o.ids.NewRunID()
	runID := progress.UUIDToBytes(runUUID)
	report := ingest.Report{
		RunID:    runUUID.String(),
		Started:  o.clock.Now(),
		Outcomes: make([]ingest.Outcome, 0, len(urls)),
	}
	report.Totals.Input = len(urls)

	o.emitter.Emit(progress.Event{RunID: runID, TS: report.Started, Kind: progress.KindRunStart, Items: len(urls)})
	o.logger.Info("run started",
		zap.String("run_id", report.RunID),
		zap.Int("urls", len(urls)),
		zap.Int("chunk_size", o.cfg.ChunkSize),
		zap.String("strategy", string(o.cfg.Strategy)),
	)

	chunks := chunk(urls, o.cfg.ChunkSize)
	for i, batch := range chunks {
		start := time.Now()
		o.emitter.Emit(progress.Event{RunID: runID, TS: o.clock.Now(), Kind: progress.KindChunkStart, Chunk: i, Items: len(batch)})

		outcomes := o.processChunk(ctx, runID, i, batch)

		var totals ingest.Totals
		for _, out := range outcomes {
			totals.Add(out)
			report.Totals.Add(out)
		}
		report.Outcomes = append(report.Outcomes, outcomes...)

		o.emitter.Emit(progress.Event{
			RunID: runID,
			TS:    o.clock.Now(),
			Kind:  progress.KindChunkDone,
			Chunk: i,
			Items: len(batch),
			Dur:   time.Since(start),
		})
		o.logger.Info("chunk complete",
			zap.String("run_id", report.RunID),
			zap.Int("chunk", i+1),
			zap.Int("chunks", len(chunks)),
			zap.Int("persisted", totals.Persisted),
			zap.Int("filtered", totals.Filtered),
			zap.Int("failed", totals.Failed()),
			zap.Duration("duration", time.Since(start)),
		)

		if i < len(chunks)-1 && ctx.Err() == nil && o.cfg.ChunkDelay > 0 {
			o.sleep(ctx, o.cfg.ChunkDelay)
		}
	}

	report.Finished = o.clock.Now()
	o.emitter.Emit(progress.Event{
		RunID: runID,
		TS:    report.Finished,
		Kind:  progress.KindRunDone,
		Items: len(urls),
		Dur:   report.Finished.Sub(report.Started),
	})
	o.logger.Info("run finished",
		zap.String("run_id", report.RunID),
		zap.Int("persisted", report.Totals.Persisted),
		zap.Int("filtered", report.Totals.Filtered),
		zap.Int("failed", report.Totals.Failed()),
	)
	return report
}

// processChunk moves one chunk through every stage. Items leave the pipeline
// at the first stage that does not succeed.
func (o *Orchestrator) processChunk(ctx context.Context, runID [16]byte, index int, urls []string) []ingest.Outcome {
	outcomes := make([]ingest.Outcome, 0, len(urls))
	record := func(out ingest.Outcome) {
		outcomes = append(outcomes, out)
		o.emitter.Emit(progress.ItemEvent(runID, index, out))
	}

	candidates := urls
	if o.cfg.FilterEnabled {
		candidates = o.filterStage(ctx, urls, record)
	}

	renders, err := fanout.Map(ctx, o.cfg.Strategy, o.cfg.RenderConcurrency, candidates,
		tracked(ingest.StageRender, o.stages.Renderer.Render))
	var rendered []ingest.RenderResult
	for i, r := range renders {
		switch {
		case err != nil:
			record(stageAborted(candidates[i], ingest.StageRender, i, err))
		case !r.Success:
			record(failed(candidates[i], ingest.StageRender, r.Err))
		default:
			rendered = append(rendered, r)
		}
	}

	embeds, err := fanout.Map(ctx, o.cfg.Strategy, o.cfg.EmbedConcurrency, rendered,
		tracked(ingest.StageEmbed, o.stages.Embed.Embed))
	for i := range rendered {
		rendered[i].Image = nil
	}
	var embedded []ingest.EmbedResult
	for i, e := range embeds {
		switch {
		case err != nil:
			record(stageAborted(rendered[i].URL, ingest.StageEmbed, i, err))
		case !e.Success:
			record(failed(rendered[i].URL, ingest.StageEmbed, e.Err))
		default:
			embedded = append(embedded, e)
		}
	}

	persists, err := fanout.Map(ctx, o.cfg.Strategy, o.cfg.PersistConcurrency, embedded,
		tracked(ingest.StagePersist, o.stages.Persist.Persist))
	for i, p := range persists {
		switch {
		case err != nil:
			record(stageAborted(embedded[i].URL, ingest.StagePersist, i, err))
		case !p.Success:
			record(failed(embedded[i].URL, ingest.StagePersist, p.Err))
		default:
			record(ingest.Outcome{URL: embedded[i].URL, Status: ingest.StatusPersisted, Stage: ingest.StagePersist})
		}
	}
	return outcomes
}

func (o *Orchestrator) filterStage(ctx context.Context, urls []string, record func(ingest.Outcome)) []string {
	verdicts, err := fanout.Map(ctx, o.cfg.Strategy, o.cfg.FilterConcurrency, urls,
		tracked(ingest.StageFilter, o.stages.Filter.Check))
	legitimate := make([]string, 0, len(urls))
	for i, v := range verdicts {
		switch {
		case err != nil:
			record(stageAborted(urls[i], ingest.StageFilter, i, err))
		case v.IsParked:
			record(ingest.Outcome{URL: urls[i], Status: ingest.StatusFiltered, Stage: ingest.StageFilter, Reason: v.Reason})
		default:
			legitimate = append(legitimate, urls[i])
		}
	}
	return legitimate
}

func tracked[T, R any](stage ingest.Stage, fn func(context.Context, T) R) func(context.Context, T) R {
	return func(ctx context.Context, item T) R {
		done := metrics.StageStarted(string(stage))
		defer done()
		return fn(ctx, item)
	}
}

func failed(url string, stage ingest.Stage, reason string) ingest.Outcome {
	if reason == "" {
		reason = string(stage) + " failed"
	}
	return ingest.Outcome{URL: url, Status: ingest.StatusFailed, Stage: stage, Reason: reason}
}

// stageAborted converts a panicked stage into a failure for item i. The item
// whose call panicked carries the panic value; the rest note the abort.
func stageAborted(url string, stage ingest.Stage, i int, err error) ingest.Outcome {
	var panicErr *fanout.PanicError
	if errors.As(err, &panicErr) {
		for j, idx := range panicErr.Indices {
			if idx == i {
				return failed(url, stage, fmt.Sprintf("%s panic: %v", stage, panicErr.Values[j]))
			}
		}
	}
	return failed(url, stage, fmt.Sprintf("%s stage aborted: %v", stage, err))
}

func chunk(urls []string, size int) [][]string {
	if len(urls) == 0 {
		return nil
	}
	chunks := make([][]string, 0, (len(urls)+size-1)/size)
	for start := 0; start < len(urls); start += size {
		end := min(start+size, len(urls))
		chunks = append(chunks, urls[start:end])
	}
	return chunks
}

func sleepWithContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
