package fetcher

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	// Default retry configuration
	defaultMaxRetries  = 3
	defaultTimeout     = 10 * time.Second
	defaultBackoffBase = 1 * time.Second
)

// RetryPolicy controls how many attempts a transport makes and how long it
// waits between them.
type RetryPolicy struct {
	// MaxRetries is the total number of attempts, including the first one
	MaxRetries int

	// Timeout bounds each attempt when the request does not set its own
	Timeout time.Duration

	// BackoffBase is the wait after the first failed attempt. The wait after
	// attempt n (0-indexed) is BackoffBase * 2^n.
	BackoffBase time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:  defaultMaxRetries,
		Timeout:     defaultTimeout,
		BackoffBase: defaultBackoffBase,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxRetries <= 0 {
		p.MaxRetries = defaultMaxRetries
	}
	if p.Timeout <= 0 {
		p.Timeout = defaultTimeout
	}
	if p.BackoffBase < 0 {
		p.BackoffBase = 0
	}
	return p
}

// Delay returns the wait that follows the failed attempt with the given
// 0-indexed number.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	return time.Duration(float64(p.BackoffBase) * math.Pow(2, float64(attempt)))
}

func (p RetryPolicy) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BackoffBase
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = p.Delay(p.MaxRetries)
	return b
}

// attemptFunc performs one attempt and returns its content or a FetchError
type attemptFunc func(ctx context.Context) (Outcome, *FetchError)

// run drives attempts until one succeeds, a non-retryable error occurs, the
// policy is exhausted or ctx is done. It never returns an error: the last
// error and the attempt count end up in the Outcome.
func (p RetryPolicy) run(ctx context.Context, logger *slog.Logger, req Request, attempt attemptFunc) Outcome {
	p = p.withDefaults()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = p.Timeout
	}

	attempts := 0
	var lastErr *FetchError

	operation := func() (Outcome, error) {
		if err := ctx.Err(); err != nil {
			lastErr = NewCanceledError(err)
			return Outcome{}, backoff.Permanent(lastErr)
		}

		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		out, ferr := attempt(attemptCtx)
		cancel()

		if ferr == nil {
			out.Attempts = attempts
			return out, nil
		}

		lastErr = ferr
		if !ferr.Retryable {
			return Outcome{}, backoff.Permanent(ferr)
		}
		return Outcome{}, ferr
	}

	notify := func(err error, wait time.Duration) {
		logger.Debug("retrying request",
			"source", req.Source,
			"symbol", req.Symbol,
			"url", req.URL,
			"attempt", attempts,
			"wait", wait,
			"error", err.Error())
	}

	out, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(p.newBackOff()),
		backoff.WithMaxTries(uint(p.MaxRetries)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
	if err == nil {
		return out
	}

	if lastErr == nil || (ctx.Err() != nil && lastErr.Type != ErrorTypeCanceled && lastErr.Retryable) {
		// The backoff wait itself was interrupted by the caller
		lastErr = NewCanceledError(ctx.Err())
	}

	logger.Warn("fetch failed",
		"source", req.Source,
		"symbol", req.Symbol,
		"url", req.URL,
		"attempts", attempts,
		"error", lastErr.Error())

	return Failure(lastErr, attempts)
}
