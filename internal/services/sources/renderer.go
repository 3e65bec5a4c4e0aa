package sources

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/moatasim-KT/career-copilot-sub004/internal/common"
	"github.com/moatasim-KT/career-copilot-sub004/internal/models"
)

// Renderer produces the DOM of a JavaScript-driven board page with a headless
// browser. The browser starts lazily on the first render_js fetch and is
// shared by all such sources; renders are serialized.
type Renderer struct {
	mu     sync.Mutex
	cfg    *common.FetchConfig
	logger arbor.ILogger

	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
}

// NewRenderer creates a renderer. No browser is started until the first Render.
func NewRenderer(cfg *common.FetchConfig, logger arbor.ILogger) *Renderer {
	return &Renderer{
		cfg:    cfg,
		logger: logger,
	}
}

// Render navigates to url and returns the page DOM after scripts have run
func (r *Renderer) Render(ctx context.Context, source, url string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureBrowserLocked(); err != nil {
		return "", models.ClassifyFetchError(source, err)
	}

	timeout := r.cfg.RenderTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	renderCtx, cancel := context.WithTimeout(r.browserCtx, timeout)
	defer cancel()

	// The render context derives from the browser, not the caller; bridge the
	// caller's cancellation across.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	started := time.Now()
	var html string
	err := chromedp.Run(renderCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", models.ClassifyFetchError(source, fmt.Errorf("page render failed: %w", err))
	}

	r.logger.Debug().
		Str("source", source).
		Str("url", url).
		Dur("duration", time.Since(started)).
		Msg("Rendered page")

	return html, nil
}

// ensureBrowserLocked starts the headless browser on first use. Caller holds mu.
func (r *Renderer) ensureBrowserLocked() error {
	if r.browserCtx != nil {
		return nil
	}

	allocatorOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(r.cfg.UserAgent),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Startup probe so a missing Chrome binary fails the first fetch with a
	// clear error instead of hanging
	testCtx, testCancel := context.WithTimeout(browserCtx, 30*time.Second)
	defer testCancel()
	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("headless browser failed to start: %w", err)
	}

	r.browserCtx = browserCtx
	r.browserCancel = browserCancel
	r.allocCancel = allocCancel

	r.logger.Info().Msg("Headless browser started for render_js sources")
	return nil
}

// Close shuts the browser down if it was started
func (r *Renderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browserCancel != nil {
		r.browserCancel()
		r.browserCancel = nil
	}
	if r.allocCancel != nil {
		r.allocCancel()
		r.allocCancel = nil
	}
	r.browserCtx = nil
}
