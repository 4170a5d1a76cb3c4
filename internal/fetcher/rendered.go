package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sourcegraph/conc/panics"
)

const (
	defaultSettle           = 5 * time.Second
	defaultRenderedTimeout  = 30 * time.Second
	defaultSessionRetries   = 3
	defaultSessionRetryWait = 2 * time.Second
	renderedStatus          = 200
)

// Defaults of the completeness check applied to rendered pages
const (
	DefaultMinContentLength = 1000
	DefaultNotFoundMarker   = "ไม่พบข้อมูล"
)

// Browser opens script-executing page sessions. Implementations own an
// expensive external resource (a browser process), so every Session they
// return must be closed.
type Browser interface {
	NewSession(ctx context.Context) (Session, error)
}

// Session is one scoped browser tab
type Session interface {
	// Navigate loads url and returns once the document has been requested
	Navigate(ctx context.Context, url string) error

	// Reload reloads the current document
	Reload(ctx context.Context) error

	// Content returns the current rendered document
	Content(ctx context.Context) (string, error)

	// Close releases the session
	Close() error
}

// CompletenessCheck reports whether rendered content looks fully loaded
type CompletenessCheck func(content string) bool

// MinLengthAndNoMarker returns a CompletenessCheck that treats content
// shorter than minLength, or containing any of the markers, as incomplete.
func MinLengthAndNoMarker(minLength int, markers ...string) CompletenessCheck {
	return func(content string) bool {
		if len(content) < minLength {
			return false
		}
		for _, m := range markers {
			if m != "" && strings.Contains(content, m) {
				return false
			}
		}
		return true
	}
}

// RenderedOptions configures a RenderedTransport
type RenderedOptions struct {
	// Policy is the retry policy applied to page loads
	Policy RetryPolicy

	// Settle is how long to wait after a load before reading the content
	Settle time.Duration

	// SessionRetries is how many times session creation is attempted
	SessionRetries int

	// SessionRetryWait is the pause between session creation attempts
	SessionRetryWait time.Duration

	// Complete decides whether a page needs its single reload
	Complete CompletenessCheck
}

// DefaultRenderedOptions returns the options used when none are configured
func DefaultRenderedOptions() RenderedOptions {
	policy := DefaultRetryPolicy()
	policy.Timeout = defaultRenderedTimeout
	return RenderedOptions{
		Policy:           policy,
		Settle:           defaultSettle,
		SessionRetries:   defaultSessionRetries,
		SessionRetryWait: defaultSessionRetryWait,
		Complete:         MinLengthAndNoMarker(DefaultMinContentLength, DefaultNotFoundMarker),
	}
}

// RenderedTransport fetches pages that need script execution. Each attempt
// acquires its own browser session and releases it on every exit path.
type RenderedTransport struct {
	browser Browser
	opts    RenderedOptions
	logger  *slog.Logger
}

// NewRenderedTransport creates a transport backed by the given browser
func NewRenderedTransport(browser Browser, opts RenderedOptions, logger *slog.Logger) *RenderedTransport {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.SessionRetries <= 0 {
		opts.SessionRetries = defaultSessionRetries
	}
	if opts.Settle < 0 {
		opts.Settle = 0
	}
	if opts.Complete == nil {
		opts.Complete = MinLengthAndNoMarker(DefaultMinContentLength, DefaultNotFoundMarker)
	}
	return &RenderedTransport{
		browser: browser,
		opts:    opts,
		logger:  logger,
	}
}

// Fetch loads the page, retrying transient failures
func (t *RenderedTransport) Fetch(ctx context.Context, req Request) Outcome {
	if ferr := validateURL(req.URL); ferr != nil {
		return Failure(ferr, 1)
	}

	// the reload is spent once per fetch, whichever attempt uses it
	reloaded := false

	return t.opts.Policy.run(ctx, t.logger, req, func(attemptCtx context.Context) (out Outcome, ferr *FetchError) {
		recovered := panics.Try(func() {
			out, ferr = t.attempt(ctx, attemptCtx, req, &reloaded)
		})
		if recovered != nil {
			t.logger.Error("rendered fetch panicked",
				"source", req.Source,
				"symbol", req.Symbol,
				"panic", recovered.Value)
			return Outcome{}, AsFetchError(recovered.AsError())
		}
		return out, ferr
	})
}

func (t *RenderedTransport) attempt(parent, attemptCtx context.Context, req Request, reloaded *bool) (Outcome, *FetchError) {
	session, ferr := t.openSession(parent, attemptCtx)
	if ferr != nil {
		return Outcome{}, ferr
	}
	defer func() {
		if err := session.Close(); err != nil {
			t.logger.Warn("failed to close browser session",
				"source", req.Source,
				"symbol", req.Symbol,
				"error", err.Error())
		}
	}()

	t.logger.Debug("loading rendered page",
		"source", req.Source,
		"symbol", req.Symbol,
		"url", req.URL)

	if err := session.Navigate(attemptCtx, req.URL); err != nil {
		return Outcome{}, ClassifyError(parent, err)
	}

	content, ferr := t.settleAndRead(parent, attemptCtx, session)
	if ferr != nil {
		return Outcome{}, ferr
	}

	// One reload, outside the retry budget, when the page looks half-loaded
	if !*reloaded && !t.opts.Complete(content) {
		*reloaded = true
		t.logger.Warn("page may not have loaded properly, reloading once",
			"source", req.Source,
			"symbol", req.Symbol,
			"length", len(content))

		if err := session.Reload(attemptCtx); err != nil {
			return Outcome{}, ClassifyError(parent, err)
		}
		content, ferr = t.settleAndRead(parent, attemptCtx, session)
		if ferr != nil {
			return Outcome{}, ferr
		}
	}

	return Success([]byte(content), ContentMarkup, renderedStatus, 0), nil
}

func (t *RenderedTransport) settleAndRead(parent, ctx context.Context, session Session) (string, *FetchError) {
	if err := sleep(ctx, t.opts.Settle); err != nil {
		return "", ClassifyError(parent, err)
	}
	content, err := session.Content(ctx)
	if err != nil {
		return "", ClassifyError(parent, err)
	}
	return content, nil
}

// openSession acquires a browser session, retrying creation failures. A
// session that cannot be created is a resource error and is not retried by
// the outer attempt loop.
func (t *RenderedTransport) openSession(parent, ctx context.Context) (Session, *FetchError) {
	var lastErr error
	for i := 0; i < t.opts.SessionRetries; i++ {
		t.logger.Debug("creating browser session", "attempt", i+1)

		session, err := t.browser.NewSession(ctx)
		if err == nil {
			return session, nil
		}
		lastErr = err
		t.logger.Warn("browser session creation failed",
			"attempt", i+1,
			"error", err.Error())

		if i < t.opts.SessionRetries-1 {
			if err := sleep(ctx, t.opts.SessionRetryWait); err != nil {
				return nil, ClassifyError(parent, err)
			}
		}
	}
	return nil, NewResourceError(
		fmt.Sprintf("failed to create browser session after %d attempts", t.opts.SessionRetries),
		lastErr)
}

// sleep waits for d or until ctx is done
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
