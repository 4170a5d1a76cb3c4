package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"setfetch/internal/fetcher"
	"setfetch/internal/source"
)

const (
	// DefaultRenderedDelay applies to sources fetched through a browser,
	// which are the most likely to get blocked
	DefaultRenderedDelay = 2 * time.Second
	// DefaultAPIDelay applies to plain HTTP sources
	DefaultAPIDelay = 1 * time.Second
)

// Delays configures the throttle delay per source
type Delays struct {
	// Rendered is the delay for sources fetched in rendered mode
	Rendered time.Duration

	// API is the delay for sources fetched over plain HTTP
	API time.Duration

	// Overrides replaces the mode default for individual sources
	Overrides map[source.Source]time.Duration
}

// DefaultDelays returns the delays used when none are configured
func DefaultDelays() Delays {
	return Delays{
		Rendered: DefaultRenderedDelay,
		API:      DefaultAPIDelay,
	}
}

// For returns the delay that applies to src
func (d Delays) For(src source.Source) time.Duration {
	if v, ok := d.Overrides[src]; ok {
		return v
	}
	if ep, err := source.Lookup(src); err == nil && ep.Mode == source.ModeRendered {
		return d.Rendered
	}
	return d.API
}

// Limiter throttles calls per source. Every Wait suspends the caller for the
// source's delay, and concurrent callers for the same source are additionally
// spaced at least one delay apart.
type Limiter struct {
	delays   Delays
	logger   *slog.Logger
	limiters map[source.Source]*rate.Limiter
	mu       sync.RWMutex
}

// New creates a limiter with the given delays
func New(delays Delays, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{
		delays:   delays,
		logger:   logger,
		limiters: make(map[source.Source]*rate.Limiter),
	}
}

// Delay returns the configured delay for src
func (l *Limiter) Delay(src source.Source) time.Duration {
	return l.delays.For(src)
}

// Wait blocks for the source's delay and until the spacing limiter permits
// the call. It returns an error if the context is canceled first.
func (l *Limiter) Wait(ctx context.Context, src source.Source) error {
	delay := l.delays.For(src)
	if delay <= 0 {
		return ctx.Err()
	}

	l.logger.Debug("rate limiting", "source", src, "delay", delay)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return ctx.Err()
	}

	return l.limiterFor(src, delay).Wait(ctx)
}

func (l *Limiter) limiterFor(src source.Source, delay time.Duration) *rate.Limiter {
	l.mu.RLock()
	limiter, exists := l.limiters[src]
	l.mu.RUnlock()
	if exists {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if limiter, exists = l.limiters[src]; exists {
		return limiter
	}
	limiter = rate.NewLimiter(rate.Every(delay), 1)
	l.limiters[src] = limiter
	return limiter
}

// Throttled wraps a fetcher so that every call first passes the limiter
func Throttled(l *Limiter, next fetcher.Fetcher) fetcher.Fetcher {
	return fetcher.FetcherFunc(func(ctx context.Context, req fetcher.Request) fetcher.Outcome {
		if err := l.Wait(ctx, req.Source); err != nil {
			return fetcher.Failure(fetcher.NewCanceledError(err), 0)
		}
		return next.Fetch(ctx, req)
	})
}
