package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
pipeline:
  chunk_size: 50
  chunk_delay: 2s
  render_concurrency: 4
  strategy: pool
filter:
  min_words: 30
  extra_phrases: ["under construction"]
render:
  jpeg_quality: 70
  domain_qps: 0.5
embed:
  provider: command
  command: /usr/local/bin/embed
  args: ["--model", "clip"]
  max_retries: 2
cache:
  max_entries: 1000
  ttl: 1h
storage:
  provider: gcs
  gcs_bucket: shots
store:
  provider: postgres
  dsn: postgres://localhost/sitelens
  auto_migrate: true
  dimension: 768
pubsub:
  project_id: proj
  topic: runs
metrics:
  addr: ":9090"
logging:
  development: false
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 50, cfg.Pipeline.ChunkSize)
	require.Equal(t, 2*time.Second, cfg.Pipeline.ChunkDelay)
	require.Equal(t, 4, cfg.Pipeline.RenderConcurrency)
	require.Equal(t, 15, cfg.Pipeline.FilterConcurrency)
	require.Equal(t, "pool", cfg.Pipeline.Strategy)
	require.True(t, cfg.Pipeline.FilterEnabled)
	require.Equal(t, 30, cfg.Filter.MinWords)
	require.Equal(t, []string{"under construction"}, cfg.Filter.ExtraPhrases)
	require.Equal(t, 70, cfg.Render.JPEGQuality)
	require.InDelta(t, 0.5, cfg.Render.DomainQPS, 1e-9)
	require.Equal(t, "command", cfg.Embed.Provider)
	require.Equal(t, []string{"--model", "clip"}, cfg.Embed.Args)
	require.Equal(t, 2, cfg.Embed.MaxRetries)
	require.Equal(t, 1000, cfg.Cache.MaxEntries)
	require.Equal(t, time.Hour, cfg.Cache.TTL)
	require.Equal(t, "shots", cfg.Storage.GCSBucket)
	require.Equal(t, 768, cfg.Store.Dimension)
	require.True(t, cfg.Store.AutoMigrate)
	require.Equal(t, "runs", cfg.PubSub.Topic)
	require.Equal(t, ":9090", cfg.Metrics.Addr)
	require.False(t, cfg.Logging.Development)
	require.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
embed:
  endpoint: http://localhost:8000/embed
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 100, cfg.Pipeline.ChunkSize)
	require.Equal(t, time.Second, cfg.Pipeline.ChunkDelay)
	require.Equal(t, 15, cfg.Pipeline.FilterConcurrency)
	require.Equal(t, 15, cfg.Pipeline.RenderConcurrency)
	require.Equal(t, 8, cfg.Pipeline.EmbedConcurrency)
	require.Equal(t, 25, cfg.Pipeline.PersistConcurrency)
	require.Equal(t, "wave", cfg.Pipeline.Strategy)
	require.Equal(t, 3, cfg.Embed.MaxRetries)
	require.Equal(t, 8*time.Second, cfg.Filter.Timeout)
	require.Less(t, cfg.Filter.Timeout, cfg.Render.NavTimeout)
	require.Equal(t, 15*time.Second, cfg.Render.CaptureTimeout)
	require.Equal(t, 1980, cfg.Render.ViewportWidth)
	require.Equal(t, 1080, cfg.Render.ViewportHeight)
	require.Equal(t, 80, cfg.Render.JPEGQuality)
	require.NotEmpty(t, cfg.Render.DismissSelectors)
	require.Equal(t, "local", cfg.Storage.Provider)
	require.Equal(t, "sqlite", cfg.Store.Provider)
	require.Equal(t, "data/sitelens.db", cfg.Store.SQLitePath)
	require.Empty(t, cfg.Metrics.Addr)
}

func TestLoadEnvOverride(t *testing.T) {
	// t.Setenv forbids t.Parallel.
	t.Setenv("SITELENS_EMBED_ENDPOINT", "http://env/embed")
	t.Setenv("SITELENS_PIPELINE_CHUNK_SIZE", "7")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "http://env/embed", cfg.Embed.Endpoint)
	require.Equal(t, 7, cfg.Pipeline.ChunkSize)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "read config")
}

func validConfig() Config {
	return Config{
		Pipeline: PipelineConfig{
			ChunkSize:          100,
			FilterConcurrency:  1,
			RenderConcurrency:  1,
			EmbedConcurrency:   1,
			PersistConcurrency: 1,
			Strategy:           "wave",
		},
		Filter:  FilterConfig{Timeout: time.Second},
		Render:  RenderConfig{JPEGQuality: 80},
		Embed:   EmbedConfig{Provider: "http", Endpoint: "http://localhost/embed"},
		Storage: StorageConfig{Provider: "memory"},
		Store:   StoreConfig{Provider: "sqlite"},
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "chunk size", mutate: func(c *Config) { c.Pipeline.ChunkSize = 0 }, want: "pipeline.chunk_size"},
		{name: "embed concurrency", mutate: func(c *Config) { c.Pipeline.EmbedConcurrency = 0 }, want: "pipeline.embed_concurrency"},
		{name: "strategy", mutate: func(c *Config) { c.Pipeline.Strategy = "burst" }, want: "pipeline.strategy"},
		{name: "filter timeout", mutate: func(c *Config) { c.Filter.Timeout = 0 }, want: "filter.timeout"},
		{name: "jpeg quality", mutate: func(c *Config) { c.Render.JPEGQuality = 101 }, want: "render.jpeg_quality"},
		{name: "embed endpoint", mutate: func(c *Config) { c.Embed.Endpoint = "" }, want: "embed.endpoint"},
		{name: "embed command", mutate: func(c *Config) { c.Embed.Provider = "command" }, want: "embed.command"},
		{name: "embed provider", mutate: func(c *Config) { c.Embed.Provider = "grpc" }, want: "embed.provider"},
		{name: "gcs bucket", mutate: func(c *Config) { c.Storage.Provider = "gcs" }, want: "storage.gcs_bucket"},
		{name: "storage provider", mutate: func(c *Config) { c.Storage.Provider = "s3" }, want: "storage.provider"},
		{name: "postgres dsn", mutate: func(c *Config) { c.Store.Provider = "postgres" }, want: "store.dsn"},
		{name: "store provider", mutate: func(c *Config) { c.Store.Provider = "mysql" }, want: "store.provider"},
		{name: "pubsub project", mutate: func(c *Config) { c.PubSub.Topic = "runs" }, want: "pubsub.project_id"},
		{name: "cache bounds", mutate: func(c *Config) { c.Cache.TTL = -time.Second }, want: "cache.max_entries"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.True(t, strings.Contains(err.Error(), tt.want), "expected %q in %v", tt.want, err)
		})
	}
}

func TestConfigValidateAcceptsBaseline(t *testing.T) {
	t.Parallel()

	require.NoError(t, validConfig().Validate())
}
