// Package metrics exposes process-wide Prometheus collectors for the pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	cacheLookupsTotal      *prometheus.CounterVec
	embedRetriesTotal      prometheus.Counter
	renderDurationSeconds  *prometheus.HistogramVec
	screenshotBytesTotal   prometheus.Counter
	probeDurationSeconds   *prometheus.HistogramVec
	httpRequestsTotal      *prometheus.CounterVec
	inflightStageOperation *prometheus.GaugeVec
	rateLimitDelaySeconds  prometheus.Histogram

	once sync.Once
)

// Init registers the collectors with the default registry. It is safe to call
// multiple times.
func Init() {
	once.Do(func() {
		cacheLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitelens_embed_cache_lookups_total",
				Help: "Embedding cache lookups, labeled by result (hit or miss).",
			},
			[]string{"result"},
		)

		embedRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sitelens_embed_retries_total",
				Help: "Embedding compute attempts that failed and were retried.",
			},
		)

		renderDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sitelens_render_duration_seconds",
				Help:    "Histogram of render latencies, labeled by success.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"success"},
		)

		screenshotBytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sitelens_screenshot_bytes_total",
				Help: "Total bytes of JPEG screenshots uploaded.",
			},
		)

		probeDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sitelens_filter_probe_duration_seconds",
				Help:    "Histogram of parked-domain probe latencies, labeled by verdict.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"verdict"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitelens_http_requests_total",
				Help: "Requests served by the status server, labeled by route and code.",
			},
			[]string{"route", "code"},
		)

		inflightStageOperation = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sitelens_stage_inflight",
				Help: "Stage operations currently in flight.",
			},
			[]string{"stage"},
		)

		rateLimitDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sitelens_rate_limit_delay_seconds",
				Help:    "Time spent waiting for a per-host rate limit token.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCacheLookup records an embedding cache hit or miss.
func ObserveCacheLookup(hit bool) {
	Init()
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// ObserveEmbedRetry records one retried embedding attempt.
func ObserveEmbedRetry() {
	Init()
	embedRetriesTotal.Inc()
}

// ObserveRender records the latency and size of a render.
func ObserveRender(success bool, duration time.Duration, screenshotBytes int) {
	Init()
	renderDurationSeconds.WithLabelValues(strconv.FormatBool(success)).Observe(duration.Seconds())
	if screenshotBytes > 0 {
		screenshotBytesTotal.Add(float64(screenshotBytes))
	}
}

// ObserveProbe records the latency of a filter probe with its verdict label.
func ObserveProbe(verdict string, duration time.Duration) {
	Init()
	probeDurationSeconds.WithLabelValues(verdict).Observe(duration.Seconds())
}

// ObserveHTTPRequest records a request served by the status server.
func ObserveHTTPRequest(route string, code int) {
	Init()
	httpRequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// ObserveRateLimitDelay records a per-host rate limit wait.
func ObserveRateLimitDelay(d time.Duration) {
	Init()
	rateLimitDelaySeconds.Observe(d.Seconds())
}

// StageStarted increments the in-flight gauge for stage and returns the
// matching decrement.
func StageStarted(stage string) func() {
	Init()
	g := inflightStageOperation.WithLabelValues(stage)
	g.Inc()
	return g.Dec
}
