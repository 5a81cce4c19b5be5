package render

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitelens/internal/ingest"
)

const resumeVideosJS = `document.querySelectorAll('video').forEach(v => {
  if (v.paused) { v.muted = true; v.play().catch(() => {}); }
});`

// interactionTimeout bounds each best-effort step on top of any wait the step
// itself performs.
const interactionTimeout = 5 * time.Second

const scrollPause = 300 * time.Millisecond

const clickFirstJS = `(() => {
  const el = document.querySelector(%q);
  if (!el) { return false; }
  el.click();
  return true;
})()`

type browser struct {
	cfg           Config
	logger        *zap.Logger
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

func startBrowser(cfg Config, logger *zap.Logger) (*browser, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("enable-automation", false),
		chromedp.WindowSize(cfg.ViewportWidth, cfg.ViewportHeight),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ChromePath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}
	return &browser{
		cfg:           cfg,
		logger:        logger,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

func (b *browser) close() {
	b.browserCancel()
	b.allocCancel()
}

// capture opens a dedicated tab, navigates, runs best-effort interactions and
// takes a clipped JPEG screenshot. Each phase has its own deadline derived from
// the tab, so time spent loading does not eat into the capture. The tab is
// always closed on return.
func (b *browser) capture(ctx context.Context, rawURL string) ([]byte, error) {
	tabCtx, cancelTab := chromedp.NewContext(b.browserCtx)
	defer cancelTab()

	stopForward := forwardCancel(ctx, cancelTab)
	defer stopForward()

	if err := runWithin(tabCtx, b.cfg.NavTimeout, b.navigate(rawURL)...); err != nil {
		return nil, ingest.NewStageError(ingest.StageRender, "navigate", err)
	}

	for _, step := range b.interactions() {
		if err := runWithin(tabCtx, step.budget, step.action); err != nil {
			b.logger.Debug("page interaction failed",
				zap.String("url", rawURL),
				zap.String("step", step.name),
				zap.Error(err),
			)
		}
	}

	var image []byte
	if err := runWithin(tabCtx, b.cfg.CaptureTimeout, b.screenshot(&image)); err != nil {
		return nil, ingest.NewStageError(ingest.StageRender, "screenshot", err)
	}
	return image, nil
}

func runWithin(tabCtx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	ctx, cancel := context.WithTimeout(tabCtx, timeout)
	defer cancel()
	return chromedp.Run(ctx, actions...)
}

func (b *browser) navigate(rawURL string) []chromedp.Action {
	actions := []chromedp.Action{
		network.Enable(),
		emulation.SetDeviceMetricsOverride(int64(b.cfg.ViewportWidth), int64(b.cfg.ViewportHeight), 1, false),
	}
	if b.cfg.UserAgent != "" {
		actions = append(actions, emulation.SetUserAgentOverride(b.cfg.UserAgent))
	}
	return append(actions,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

type interaction struct {
	name   string
	action chromedp.Action
	budget time.Duration
}

func (b *browser) interactions() []interaction {
	steps := []interaction{
		{name: "dismiss overlay", action: b.dismissOverlay(), budget: interactionTimeout},
		{name: "scroll", action: chromedp.Tasks{
			chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
			chromedp.Sleep(scrollPause),
			chromedp.Evaluate(`window.scrollTo(0, 0)`, nil),
		}, budget: interactionTimeout + scrollPause},
	}
	if b.cfg.SettleDelay > 0 {
		steps = append(steps, interaction{
			name:   "settle",
			action: chromedp.Sleep(b.cfg.SettleDelay),
			budget: interactionTimeout + b.cfg.SettleDelay,
		})
	}
	return append(steps, interaction{
		name:   "resume videos",
		action: chromedp.Evaluate(resumeVideosJS, nil),
		budget: interactionTimeout,
	})
}

// dismissOverlay clicks the first configured selector present on the page and
// falls back to pressing Escape.
func (b *browser) dismissOverlay() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		for _, sel := range b.cfg.DismissSelectors {
			var clicked bool
			if err := chromedp.Evaluate(fmt.Sprintf(clickFirstJS, sel), &clicked).Do(ctx); err != nil {
				return fmt.Errorf("click %q: %w", sel, err)
			}
			if clicked {
				return nil
			}
		}
		if err := chromedp.KeyEvent(kb.Escape).Do(ctx); err != nil {
			return fmt.Errorf("press escape: %w", err)
		}
		return nil
	})
}

func (b *browser) screenshot(out *[]byte) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		buf, err := page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatJpeg).
			WithQuality(int64(b.cfg.JPEGQuality)).
			WithClip(&page.Viewport{
				X:      0,
				Y:      0,
				Width:  float64(b.cfg.ViewportWidth),
				Height: float64(b.cfg.ViewportHeight),
				Scale:  1,
			}).
			Do(ctx)
		if err != nil {
			return err
		}
		*out = buf
		return nil
	})
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
