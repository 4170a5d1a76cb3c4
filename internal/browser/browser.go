// Package browser provides headless Chrome sessions for pages that only
// render their content after running scripts.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chromedp/chromedp"

	"setfetch/internal/fetcher"
)

// ErrClosed is returned when a session is requested after Close
var ErrClosed = errors.New("browser closed")

// Options configures the Chrome process
type Options struct {
	// ExecPath overrides the Chrome binary lookup
	ExecPath string

	// Headful shows the browser window, for debugging selectors
	Headful bool

	UserAgent string
	NoSandbox bool
}

// Chrome is a lazily started headless Chrome shared by all sessions. Each
// session is its own tab.
type Chrome struct {
	opts   Options
	logger *slog.Logger

	mu            sync.Mutex
	cancelAlloc   context.CancelFunc
	browserCtx    context.Context
	cancelBrowser context.CancelFunc
	closed        bool
}

var _ fetcher.Browser = (*Chrome)(nil)

// New returns a Chrome that starts on the first NewSession call
func New(opts Options, logger *slog.Logger) *Chrome {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chrome{opts: opts, logger: logger}
}

func (c *Chrome) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if c.opts.Headful {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if c.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(c.opts.ExecPath))
	}
	if c.opts.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(c.opts.UserAgent))
	}
	if c.opts.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	return append(opts,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
	)
}

// bounded runs fn, calling cancel if ctx ends first. fn must return once
// cancel has been called. A ctx that ended wins over fn's own result.
func bounded(ctx context.Context, cancel context.CancelFunc, fn func() error) error {
	stop := context.AfterFunc(ctx, cancel)
	err := fn()
	if !stop() {
		return ctx.Err()
	}
	return err
}

// start launches the browser process once
func (c *Chrome) start(ctx context.Context) error {
	if c.browserCtx != nil {
		return nil
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), c.allocatorOptions()...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	// the first Run on a fresh context launches the process
	err := bounded(ctx, cancelBrowser, func() error { return chromedp.Run(browserCtx) })
	if err != nil {
		cancelBrowser()
		cancelAlloc()
		return fmt.Errorf("failed to start chrome: %w", err)
	}

	c.cancelAlloc = cancelAlloc
	c.browserCtx, c.cancelBrowser = browserCtx, cancelBrowser
	c.logger.Info("chrome started")
	return nil
}

// browser returns the running browser's context, starting it if needed
func (c *Chrome) browser(ctx context.Context) (context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.start(ctx); err != nil {
		return nil, err
	}
	return c.browserCtx, nil
}

// NewSession opens a new tab
func (c *Chrome) NewSession(ctx context.Context) (fetcher.Session, error) {
	browserCtx, err := c.browser(ctx)
	if err != nil {
		return nil, err
	}

	// the lock is not held here, so a slow tab does not block other sessions
	tabCtx, cancelTab := chromedp.NewContext(browserCtx)
	if err := bounded(ctx, cancelTab, func() error { return chromedp.Run(tabCtx) }); err != nil {
		cancelTab()
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}

	return &session{ctx: tabCtx, cancel: cancelTab}, nil
}

// Close shuts the browser down. Open sessions stop working.
func (c *Chrome) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	if c.cancelBrowser != nil {
		c.cancelBrowser()
		c.cancelAlloc()
		c.logger.Info("chrome stopped")
	}
	return nil
}

// session is one tab; its context is the chromedp target
type session struct {
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func (s *session) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, chromedp.Navigate(url))
}

func (s *session) Reload(ctx context.Context) error {
	return s.run(ctx, chromedp.Reload())
}

func (s *session) Content(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

func (s *session) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// run executes actions on the tab, bounded by the caller's context. A
// caller deadline or cancellation is reported as the caller's error so that
// it classifies as a timeout or cancellation.
func (s *session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}
