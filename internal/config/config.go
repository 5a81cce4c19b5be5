// Package config loads and validates sitelens configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. SITELENS_STORE_DSN.
const EnvPrefix = "SITELENS"

// DefaultUserAgent identifies the probe and the headless browser.
const DefaultUserAgent = "sitelens-bot/0.1 (+https://github.com/JakeFAU/sitelens)"

// Config captures every knob of the batch pipeline.
type Config struct {
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Filter   FilterConfig   `mapstructure:"filter"`
	Render   RenderConfig   `mapstructure:"render"`
	Embed    EmbedConfig    `mapstructure:"embed"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Store    StoreConfig    `mapstructure:"store"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Progress ProgressConfig `mapstructure:"progress"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// PipelineConfig governs chunking and per-stage concurrency.
type PipelineConfig struct {
	ChunkSize          int           `mapstructure:"chunk_size"`
	ChunkDelay         time.Duration `mapstructure:"chunk_delay"`
	FilterConcurrency  int           `mapstructure:"filter_concurrency"`
	RenderConcurrency  int           `mapstructure:"render_concurrency"`
	EmbedConcurrency   int           `mapstructure:"embed_concurrency"`
	PersistConcurrency int           `mapstructure:"persist_concurrency"`
	// Strategy is "wave" or "pool".
	Strategy      string `mapstructure:"strategy"`
	FilterEnabled bool   `mapstructure:"filter_enabled"`
}

// FilterConfig controls the parked-domain probe.
type FilterConfig struct {
	Timeout       time.Duration `mapstructure:"timeout"`
	MinWords      int           `mapstructure:"min_words"`
	ExtraPhrases  []string      `mapstructure:"extra_phrases"`
	RespectRobots bool          `mapstructure:"respect_robots"`
	UserAgent     string        `mapstructure:"user_agent"`
}

// RenderConfig controls the headless browser.
type RenderConfig struct {
	UserAgent        string        `mapstructure:"user_agent"`
	ChromePath       string        `mapstructure:"chrome_path"`
	NavTimeout       time.Duration `mapstructure:"nav_timeout"`
	CaptureTimeout   time.Duration `mapstructure:"capture_timeout"`
	SettleDelay      time.Duration `mapstructure:"settle_delay"`
	ViewportWidth    int           `mapstructure:"viewport_width"`
	ViewportHeight   int           `mapstructure:"viewport_height"`
	JPEGQuality      int           `mapstructure:"jpeg_quality"`
	DismissSelectors []string      `mapstructure:"dismiss_selectors"`
	KeyPrefix        string        `mapstructure:"key_prefix"`
	DomainQPS        float64       `mapstructure:"domain_qps"`
}

// EmbedConfig selects the embedding model and its retry budget.
type EmbedConfig struct {
	// Provider is "http" or "command".
	Provider       string        `mapstructure:"provider"`
	Endpoint       string        `mapstructure:"endpoint"`
	APIKey         string        `mapstructure:"api_key"`
	Timeout        time.Duration `mapstructure:"timeout"`
	Command        string        `mapstructure:"command"`
	Args           []string      `mapstructure:"args"`
	MaxRetries     int           `mapstructure:"max_retries"`
	BackoffInitial time.Duration `mapstructure:"backoff_initial"`
	BackoffMax     time.Duration `mapstructure:"backoff_max"`
}

// CacheConfig bounds the embedding cache. Zero values keep it unbounded.
type CacheConfig struct {
	MaxEntries int           `mapstructure:"max_entries"`
	TTL        time.Duration `mapstructure:"ttl"`
}

// StorageConfig selects the screenshot blob store.
type StorageConfig struct {
	// Provider is "gcs", "local" or "memory".
	Provider      string `mapstructure:"provider"`
	GCSBucket     string `mapstructure:"gcs_bucket"`
	PublicBaseURL string `mapstructure:"public_base_url"`
	CacheControl  string `mapstructure:"cache_control"`
	LocalDir      string `mapstructure:"local_dir"`
}

// StoreConfig selects the vector store.
type StoreConfig struct {
	// Provider is "postgres" or "sqlite".
	Provider        string        `mapstructure:"provider"`
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	Dimension       int           `mapstructure:"dimension"`
	SQLitePath      string        `mapstructure:"sqlite_path"`
}

// PubSubConfig enables run summary publication when Topic is set.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// MetricsConfig enables the status server when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// ProgressConfig sizes the progress hub.
type ProgressConfig struct {
	BufferSize   int           `mapstructure:"buffer_size"`
	MaxBatchWait time.Duration `mapstructure:"max_batch_wait"`
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from an optional file and the environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("pipeline.chunk_size", 100)
	v.SetDefault("pipeline.chunk_delay", time.Second)
	v.SetDefault("pipeline.filter_concurrency", 15)
	v.SetDefault("pipeline.render_concurrency", 15)
	v.SetDefault("pipeline.embed_concurrency", 8)
	v.SetDefault("pipeline.persist_concurrency", 25)
	v.SetDefault("pipeline.strategy", "wave")
	v.SetDefault("pipeline.filter_enabled", true)

	v.SetDefault("filter.timeout", 8*time.Second)
	v.SetDefault("filter.min_words", 20)
	v.SetDefault("filter.extra_phrases", []string{})
	v.SetDefault("filter.respect_robots", false)
	v.SetDefault("filter.user_agent", DefaultUserAgent)

	v.SetDefault("render.user_agent", DefaultUserAgent)
	v.SetDefault("render.chrome_path", "")
	v.SetDefault("render.nav_timeout", 30*time.Second)
	v.SetDefault("render.capture_timeout", 15*time.Second)
	v.SetDefault("render.settle_delay", time.Second)
	v.SetDefault("render.viewport_width", 1980)
	v.SetDefault("render.viewport_height", 1080)
	v.SetDefault("render.jpeg_quality", 80)
	v.SetDefault("render.dismiss_selectors", []string{
		"#onetrust-accept-btn-handler",
		"button[aria-label='Accept all']",
		"button[aria-label='Close']",
		".cookie-consent button",
		"[id*='cookie'] button",
	})
	v.SetDefault("render.key_prefix", "screenshots")
	v.SetDefault("render.domain_qps", 0.0)

	v.SetDefault("embed.provider", "http")
	v.SetDefault("embed.endpoint", "")
	v.SetDefault("embed.api_key", "")
	v.SetDefault("embed.timeout", 60*time.Second)
	v.SetDefault("embed.command", "")
	v.SetDefault("embed.args", []string{})
	v.SetDefault("embed.max_retries", 3)
	v.SetDefault("embed.backoff_initial", 500*time.Millisecond)
	v.SetDefault("embed.backoff_max", 5*time.Second)

	v.SetDefault("cache.max_entries", 0)
	v.SetDefault("cache.ttl", time.Duration(0))

	v.SetDefault("storage.provider", "local")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.public_base_url", "")
	v.SetDefault("storage.cache_control", "public, max-age=86400")
	v.SetDefault("storage.local_dir", "data/screenshots")

	v.SetDefault("store.provider", "sqlite")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.table", "site_embeddings")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 0)
	v.SetDefault("store.max_conn_lifetime", time.Hour)
	v.SetDefault("store.auto_migrate", false)
	v.SetDefault("store.dimension", 512)
	v.SetDefault("store.sqlite_path", "data/sitelens.db")

	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")

	v.SetDefault("metrics.addr", "")

	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch_wait", 250*time.Millisecond)

	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	var errs []error
	p := c.Pipeline
	if p.ChunkSize <= 0 {
		errs = append(errs, errors.New("pipeline.chunk_size must be > 0"))
	}
	if p.ChunkDelay < 0 {
		errs = append(errs, errors.New("pipeline.chunk_delay must be >= 0"))
	}
	for name, n := range map[string]int{
		"pipeline.filter_concurrency":  p.FilterConcurrency,
		"pipeline.render_concurrency":  p.RenderConcurrency,
		"pipeline.embed_concurrency":   p.EmbedConcurrency,
		"pipeline.persist_concurrency": p.PersistConcurrency,
	} {
		if n <= 0 {
			errs = append(errs, fmt.Errorf("%s must be > 0", name))
		}
	}
	switch strings.ToLower(p.Strategy) {
	case "", "wave", "pool":
	default:
		errs = append(errs, fmt.Errorf("pipeline.strategy must be wave or pool, got %q", p.Strategy))
	}

	if c.Filter.Timeout <= 0 {
		errs = append(errs, errors.New("filter.timeout must be > 0"))
	}
	if c.Render.JPEGQuality < 0 || c.Render.JPEGQuality > 100 {
		errs = append(errs, errors.New("render.jpeg_quality must be within 0..100"))
	}
	if c.Render.DomainQPS < 0 {
		errs = append(errs, errors.New("render.domain_qps must be >= 0"))
	}

	switch c.Embed.Provider {
	case "http":
		if c.Embed.Endpoint == "" {
			errs = append(errs, errors.New("embed.endpoint must be set when embed.provider is http"))
		}
	case "command":
		if c.Embed.Command == "" {
			errs = append(errs, errors.New("embed.command must be set when embed.provider is command"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown embed.provider %q", c.Embed.Provider))
	}
	if c.Embed.MaxRetries < 0 {
		errs = append(errs, errors.New("embed.max_retries must be >= 0"))
	}

	if c.Cache.MaxEntries < 0 || c.Cache.TTL < 0 {
		errs = append(errs, errors.New("cache.max_entries and cache.ttl must be >= 0"))
	}

	switch c.Storage.Provider {
	case "gcs":
		if c.Storage.GCSBucket == "" {
			errs = append(errs, errors.New("storage.gcs_bucket must be set when storage.provider is gcs"))
		}
	case "local":
		if c.Storage.LocalDir == "" {
			errs = append(errs, errors.New("storage.local_dir must be set when storage.provider is local"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown storage.provider %q", c.Storage.Provider))
	}

	switch c.Store.Provider {
	case "postgres":
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("store.dsn must be set when store.provider is postgres"))
		}
		if c.Store.AutoMigrate && c.Store.Dimension <= 0 {
			errs = append(errs, errors.New("store.dimension must be > 0 when store.auto_migrate is set"))
		}
	case "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unknown store.provider %q", c.Store.Provider))
	}

	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		errs = append(errs, errors.New("pubsub.project_id must be set when pubsub.topic is set"))
	}
	return errors.Join(errs...)
}
