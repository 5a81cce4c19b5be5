// Package app builds the long-lived pipeline services from configuration and
// owns their shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitelens/internal/api"
	"github.com/JakeFAU/sitelens/internal/config"
	"github.com/JakeFAU/sitelens/internal/embed"
	"github.com/JakeFAU/sitelens/internal/embedcache"
	"github.com/JakeFAU/sitelens/internal/embedder"
	"github.com/JakeFAU/sitelens/internal/fanout"
	"github.com/JakeFAU/sitelens/internal/filter"
	"github.com/JakeFAU/sitelens/internal/hash/sha256"
	"github.com/JakeFAU/sitelens/internal/ingest"
	"github.com/JakeFAU/sitelens/internal/metrics"
	"github.com/JakeFAU/sitelens/internal/orchestrator"
	"github.com/JakeFAU/sitelens/internal/persist"
	"github.com/JakeFAU/sitelens/internal/progress"
	"github.com/JakeFAU/sitelens/internal/progress/sinks"
	"github.com/JakeFAU/sitelens/internal/publisher"
	"github.com/JakeFAU/sitelens/internal/publisher/pubsub"
	"github.com/JakeFAU/sitelens/internal/render"
	"github.com/JakeFAU/sitelens/internal/retry"
	"github.com/JakeFAU/sitelens/internal/search"
	"github.com/JakeFAU/sitelens/internal/storage/gcs"
	"github.com/JakeFAU/sitelens/internal/storage/local"
	"github.com/JakeFAU/sitelens/internal/storage/memory"
	"github.com/JakeFAU/sitelens/internal/store/postgres"
	"github.com/JakeFAU/sitelens/internal/store/sqlite"
)

const publishTimeout = 10 * time.Second

// Renderer renders for the batch and captures for search.
type Renderer interface {
	ingest.Renderer
	ingest.Capturer
}

// Option customizes App construction.
type Option func(*options)

type options struct {
	registerer prometheus.Registerer
	renderer   Renderer
	publisher  publisher.Publisher
}

// WithRegisterer registers the progress collectors somewhere other than the
// default Prometheus registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithRenderer replaces the headless browser renderer.
func WithRenderer(r Renderer) Option {
	return func(o *options) { o.renderer = r }
}

// WithPublisher replaces the configured run summary publisher.
func WithPublisher(p publisher.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

type closer struct {
	name string
	fn   func(context.Context) error
}

// App holds the services shared by the CLI commands.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	cache        *embedcache.Cache
	orchestrator *orchestrator.Orchestrator
	search       *search.Service
	publisher    publisher.Publisher
	server       *api.Server
	closers      []closer
}

// New builds every collaborator named by cfg. On failure anything already
// started is released before the error is returned.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(&o)
	}
	metrics.Init()

	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			if cerr := a.Close(context.Background()); cerr != nil {
				logger.Warn("release partially built app", zap.Error(cerr))
			}
		}
	}()

	blob, err := a.buildBlobStore(ctx)
	if err != nil {
		return nil, err
	}
	store, err := a.buildVectorStore(ctx)
	if err != nil {
		return nil, err
	}
	model, err := NewEmbeddingModel(cfg.Embed)
	if err != nil {
		return nil, err
	}

	cacheStore, err := embedcache.NewStore(cfg.Cache.MaxEntries, cfg.Cache.TTL)
	if err != nil {
		return nil, fmt.Errorf("build embedding cache: %w", err)
	}
	a.cache = embedcache.New(cacheStore, sha256.New(), embedcache.WithObserver(metrics.ObserveCacheLookup))
	policy := retry.NewExponential(cfg.Embed.MaxRetries, cfg.Embed.BackoffInitial, cfg.Embed.BackoffMax)
	embedStage := embed.New(a.cache, model, policy, logger.Named("embed"))

	renderer := o.renderer
	if renderer == nil {
		r, rerr := render.New(renderConfig(cfg.Render), blob, logger.Named("render"))
		if rerr != nil {
			return nil, fmt.Errorf("start renderer: %w", rerr)
		}
		a.addCloser("renderer", func(context.Context) error {
			r.Close()
			return nil
		})
		renderer = r
	}

	hub, err := a.buildProgressHub(o.registerer)
	if err != nil {
		return nil, err
	}

	stages := orchestrator.Stages{
		Renderer: renderer,
		Embed:    embedStage,
		Persist:  persist.New(store, logger.Named("persist")),
	}
	if cfg.Pipeline.FilterEnabled {
		stages.Filter = filter.New(filter.Config{
			Timeout:       cfg.Filter.Timeout,
			MinWords:      cfg.Filter.MinWords,
			ExtraPhrases:  cfg.Filter.ExtraPhrases,
			RespectRobots: cfg.Filter.RespectRobots,
			UserAgent:     cfg.Filter.UserAgent,
		}, logger.Named("filter"))
	}
	orchCfg, err := orchestratorConfig(cfg.Pipeline)
	if err != nil {
		return nil, err
	}
	a.orchestrator, err = orchestrator.New(orchCfg, stages,
		orchestrator.WithLogger(logger.Named("orchestrator")),
		orchestrator.WithEmitter(hub),
	)
	if err != nil {
		return nil, fmt.Errorf("build orchestrator: %w", err)
	}

	a.search, err = search.New(renderer, embedStage, store, logger.Named("search"))
	if err != nil {
		return nil, fmt.Errorf("build search: %w", err)
	}

	a.publisher = o.publisher
	if a.publisher == nil && cfg.PubSub.Topic != "" {
		p, perr := pubsub.New(ctx, cfg.PubSub.ProjectID, cfg.PubSub.Topic, logger.Named("pubsub"))
		if perr != nil {
			return nil, fmt.Errorf("connect pubsub: %w", perr)
		}
		a.addCloser("pubsub", func(context.Context) error { return p.Close() })
		a.publisher = p
	}

	if a.server != nil {
		if err := a.server.Start(); err != nil {
			return nil, err
		}
		a.addCloser("status server", a.server.Shutdown)
	}

	logger.Info("application services initialized",
		zap.String("storage", cfg.Storage.Provider),
		zap.String("store", cfg.Store.Provider),
		zap.String("embedder", cfg.Embed.Provider),
		zap.Bool("filter", cfg.Pipeline.FilterEnabled),
		zap.Bool("publish", a.publisher != nil),
	)
	return a, nil
}

func (a *App) addCloser(name string, fn func(context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

func (a *App) buildBlobStore(ctx context.Context) (ingest.BlobStore, error) {
	cfg := a.cfg.Storage
	switch cfg.Provider {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		a.addCloser("gcs", func(context.Context) error { return client.Close() })
		blob, err := gcs.New(client, gcs.Config{
			Bucket:        cfg.GCSBucket,
			PublicBaseURL: cfg.PublicBaseURL,
			CacheControl:  cfg.CacheControl,
		})
		if err != nil {
			return nil, fmt.Errorf("build gcs blob store: %w", err)
		}
		return blob, nil
	case "local":
		blob, err := local.New(local.Config{BaseDir: cfg.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("build local blob store: %w", err)
		}
		return blob, nil
	case "memory":
		return memory.NewBlobStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage provider %q", cfg.Provider)
	}
}

func (a *App) buildVectorStore(ctx context.Context) (ingest.VectorStore, error) {
	cfg := a.cfg.Store
	switch cfg.Provider {
	case "postgres":
		s, err := postgres.New(ctx, postgres.Config{
			DSN:             cfg.DSN,
			Table:           cfg.Table,
			MaxConns:        cfg.MaxConns,
			MinConns:        cfg.MinConns,
			MaxConnLifetime: cfg.MaxConnLifetime,
			AutoMigrate:     cfg.AutoMigrate,
			Dimension:       cfg.Dimension,
		})
		if err != nil {
			return nil, fmt.Errorf("connect postgres store: %w", err)
		}
		a.addCloser("postgres", func(context.Context) error {
			s.Close()
			return nil
		})
		return s, nil
	case "sqlite":
		s, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		a.addCloser("sqlite", func(context.Context) error { return s.Close() })
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store provider %q", cfg.Provider)
	}
}

func (a *App) buildProgressHub(reg prometheus.Registerer) (*progress.Hub, error) {
	promSink, err := sinks.NewPrometheusSink(reg)
	if err != nil {
		return nil, fmt.Errorf("build progress metrics: %w", err)
	}
	hubSinks := []progress.Sink{sinks.NewLogSink(a.logger.Named("progress")), promSink}
	if a.cfg.Metrics.Addr != "" {
		tracker := api.NewRunTracker(0)
		hubSinks = append(hubSinks, tracker)
		a.server = api.NewServer(a.cfg.Metrics.Addr, tracker, a.logger.Named("api"))
	}
	hub := progress.NewHub(progress.Config{
		BufferSize:   a.cfg.Progress.BufferSize,
		MaxBatchWait: a.cfg.Progress.MaxBatchWait,
		Logger:       a.logger.Named("progress"),
	}, hubSinks...)
	a.addCloser("progress hub", hub.Close)
	return hub, nil
}

// NewEmbeddingModel selects the embedding collaborator named by cfg.Provider.
func NewEmbeddingModel(cfg config.EmbedConfig) (ingest.EmbeddingModel, error) {
	switch cfg.Provider {
	case "http":
		m, err := embedder.NewHTTP(embedder.HTTPConfig{
			Endpoint: cfg.Endpoint,
			APIKey:   cfg.APIKey,
			Timeout:  cfg.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("build http embedder: %w", err)
		}
		return m, nil
	case "command":
		m, err := embedder.NewCommand(cfg.Command, cfg.Args...)
		if err != nil {
			return nil, fmt.Errorf("build command embedder: %w", err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown embed provider %q", cfg.Provider)
	}
}

func renderConfig(cfg config.RenderConfig) render.Config {
	return render.Config{
		UserAgent:        cfg.UserAgent,
		ChromePath:       cfg.ChromePath,
		NavTimeout:       cfg.NavTimeout,
		CaptureTimeout:   cfg.CaptureTimeout,
		SettleDelay:      cfg.SettleDelay,
		ViewportWidth:    cfg.ViewportWidth,
		ViewportHeight:   cfg.ViewportHeight,
		JPEGQuality:      cfg.JPEGQuality,
		DismissSelectors: cfg.DismissSelectors,
		KeyPrefix:        cfg.KeyPrefix,
		DomainQPS:        cfg.DomainQPS,
	}
}

func orchestratorConfig(cfg config.PipelineConfig) (orchestrator.Config, error) {
	strategy, err := fanout.ParseStrategy(cfg.Strategy)
	if err != nil {
		return orchestrator.Config{}, err
	}
	return orchestrator.Config{
		ChunkSize:          cfg.ChunkSize,
		ChunkDelay:         cfg.ChunkDelay,
		FilterConcurrency:  cfg.FilterConcurrency,
		RenderConcurrency:  cfg.RenderConcurrency,
		EmbedConcurrency:   cfg.EmbedConcurrency,
		PersistConcurrency: cfg.PersistConcurrency,
		Strategy:           strategy,
		FilterEnabled:      cfg.FilterEnabled,
	}, nil
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Run executes one batch. The status server reports ready for its duration.
func (a *App) Run(ctx context.Context, urls []string) ingest.Report {
	if a.server != nil {
		a.server.SetReady(true)
		defer a.server.SetReady(false)
	}
	report := a.orchestrator.Run(ctx, urls)
	stats := a.cache.Stats()
	a.logger.Info("embedding cache",
		zap.Int64("hits", stats.Hits),
		zap.Int64("misses", stats.Misses),
		zap.Int("entries", stats.Entries),
	)
	return report
}

// Search returns the k stored sites most similar to rawURL.
func (a *App) Search(ctx context.Context, rawURL string, k int) ([]ingest.Match, error) {
	matches, err := a.search.Similar(ctx, rawURL, k)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", rawURL, err)
	}
	return matches, nil
}

// Publish sends the run summary when a publisher is configured. Failures are
// logged and never change the run's result.
func (a *App) Publish(ctx context.Context, report ingest.Report) {
	if a.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	id, err := a.publisher.Publish(ctx, publisher.NewSummary(report))
	if err != nil {
		a.logger.Warn("publish run summary failed", zap.String("run_id", report.RunID), zap.Error(err))
		return
	}
	a.logger.Info("run summary published", zap.String("run_id", report.RunID), zap.String("message_id", id))
}

// Close releases services in reverse construction order and joins any errors.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			a.logger.Warn("close failed", zap.String("service", c.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
