// Package render captures full-viewport screenshots of web pages with headless
// Chrome and uploads them to blob storage.
package render

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitelens/internal/clock/system"
	"github.com/JakeFAU/sitelens/internal/ingest"
	"github.com/JakeFAU/sitelens/internal/metrics"
	"github.com/JakeFAU/sitelens/internal/policy/ratelimit"
)

// ContentType is the MIME type of uploaded screenshots.
const ContentType = "image/jpeg"

// ErrNoBlobStore is returned by New when no blob store is supplied.
var ErrNoBlobStore = errors.New("render requires a blob store")

// Config controls browser behavior and screenshot output. NavTimeout bounds
// navigation only; the screenshot gets CaptureTimeout once the page is ready.
type Config struct {
	UserAgent        string
	ChromePath       string
	NavTimeout       time.Duration
	CaptureTimeout   time.Duration
	SettleDelay      time.Duration
	ViewportWidth    int
	ViewportHeight   int
	JPEGQuality      int
	DismissSelectors []string
	KeyPrefix        string
	DomainQPS        float64
}

func (c *Config) applyDefaults() {
	if c.NavTimeout <= 0 {
		c.NavTimeout = 30 * time.Second
	}
	if c.CaptureTimeout <= 0 {
		c.CaptureTimeout = 15 * time.Second
	}
	if c.ViewportWidth <= 0 {
		c.ViewportWidth = 1980
	}
	if c.ViewportHeight <= 0 {
		c.ViewportHeight = 1080
	}
	if c.JPEGQuality <= 0 || c.JPEGQuality > 100 {
		c.JPEGQuality = 80
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "screenshots"
	}
}

// CaptureFunc produces JPEG bytes for a URL.
type CaptureFunc func(ctx context.Context, url string) ([]byte, error)

// Renderer implements ingest.Renderer and ingest.Capturer.
type Renderer struct {
	cfg     Config
	blob    ingest.BlobStore
	clock   ingest.Clock
	logger  *zap.Logger
	capture CaptureFunc
	browser *browser
	limiter *ratelimit.Limiter
}

// New launches a shared headless browser and returns a Renderer that opens one
// tab per render.
func New(cfg Config, blob ingest.BlobStore, logger *zap.Logger) (*Renderer, error) {
	if blob == nil {
		return nil, ErrNoBlobStore
	}
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	b, err := startBrowser(cfg, logger)
	if err != nil {
		return nil, err
	}
	r := newRenderer(cfg, blob, b.capture, logger)
	r.browser = b
	return r, nil
}

func newRenderer(cfg Config, blob ingest.BlobStore, capture CaptureFunc, logger *zap.Logger) *Renderer {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renderer{
		cfg:     cfg,
		blob:    blob,
		clock:   system.New(),
		logger:  logger,
		capture: capture,
		limiter: ratelimit.New(ratelimit.Config{RPS: cfg.DomainQPS, Burst: 1}),
	}
}

// Close tears down the browser. It is safe to call on a nil Renderer.
func (r *Renderer) Close() {
	if r == nil || r.browser == nil {
		return
	}
	r.browser.close()
}

// Render implements ingest.Renderer. It never returns an error; failures are
// reported in the result with the failing operation as prefix.
func (r *Renderer) Render(ctx context.Context, rawURL string) ingest.RenderResult {
	start := time.Now()
	result := ingest.RenderResult{URL: rawURL}

	image, err := r.Capture(ctx, rawURL)
	if err != nil {
		result.Err = err.Error()
		r.logger.Warn("render failed", zap.String("url", rawURL), zap.Error(err))
		metrics.ObserveRender(false, time.Since(start), 0)
		return result
	}

	key := ObjectKey(r.cfg.KeyPrefix, r.clock.Now(), rawURL)
	publicURL, err := r.blob.Upload(ctx, key, image, ContentType)
	if err != nil {
		err = ingest.NewStageError(ingest.StageRender, "upload", err)
		result.Err = err.Error()
		r.logger.Warn("screenshot upload failed", zap.String("url", rawURL), zap.String("key", key), zap.Error(err))
		metrics.ObserveRender(false, time.Since(start), len(image))
		return result
	}

	result.Success = true
	result.Image = image
	result.PublicURL = publicURL
	metrics.ObserveRender(true, time.Since(start), len(image))
	r.logger.Debug("rendered",
		zap.String("url", rawURL),
		zap.String("public_url", publicURL),
		zap.Int("bytes", len(image)),
		zap.Duration("duration", time.Since(start)),
	)
	return result
}

// Capture implements ingest.Capturer. It applies the per-host rate limit and
// returns the screenshot without uploading it.
func (r *Renderer) Capture(ctx context.Context, rawURL string) ([]byte, error) {
	if err := r.limiter.Wait(ctx, rawURL); err != nil {
		return nil, ingest.NewStageError(ingest.StageRender, "rate limit", err)
	}
	image, err := r.capture(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if len(image) == 0 {
		return nil, ingest.NewStageError(ingest.StageRender, "screenshot", errors.New("empty image"))
	}
	return image, nil
}

// ObjectKey builds the blob key "<prefix>/<unix-millis>-<host>.jpg".
func ObjectKey(prefix string, at time.Time, rawURL string) string {
	host := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	name := fmt.Sprintf("%d-%s.jpg", at.UnixMilli(), sanitizeHost(host))
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

func sanitizeHost(host string) string {
	host = strings.ToLower(host)
	var b strings.Builder
	b.Grow(len(host))
	for _, r := range host {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}
