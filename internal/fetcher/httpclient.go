package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"resty.dev/v3"
)

const (
	// DefaultUserAgent is sent when no user agent is configured
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

// HTTPTransport fetches plain HTTP resources with retry and exponential backoff.
// It is stateless apart from the shared connection pool and safe for
// concurrent use.
type HTTPTransport struct {
	client *resty.Client
	policy RetryPolicy
	logger *slog.Logger
}

// HTTPOption configures an HTTPTransport
type HTTPOption func(*HTTPTransport)

// WithRetryPolicy sets the retry policy
func WithRetryPolicy(p RetryPolicy) HTTPOption {
	return func(t *HTTPTransport) { t.policy = p }
}

// WithLogger sets the logger used for retry and failure reporting
func WithLogger(l *slog.Logger) HTTPOption {
	return func(t *HTTPTransport) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithUserAgent overrides the User-Agent header
func WithUserAgent(ua string) HTTPOption {
	return func(t *HTTPTransport) {
		if ua != "" {
			t.client.SetHeader("User-Agent", ua)
		}
	}
}

// NewHTTPTransport creates a new HTTP transport. Retries are driven by the
// transport itself so the resty client is configured for single attempts.
func NewHTTPTransport(opts ...HTTPOption) *HTTPTransport {
	client := resty.New().
		SetHeader("User-Agent", DefaultUserAgent).
		SetRetryCount(0)

	t := &HTTPTransport{
		client: client,
		policy: DefaultRetryPolicy(),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Close releases the underlying client's idle connections
func (t *HTTPTransport) Close() error {
	return t.client.Close()
}

// Fetch performs the request, retrying transient failures
func (t *HTTPTransport) Fetch(ctx context.Context, req Request) Outcome {
	if ferr := validateURL(req.URL); ferr != nil {
		t.logger.Warn("rejecting malformed request",
			"source", req.Source,
			"symbol", req.Symbol,
			"url", req.URL,
			"error", ferr.Error())
		return Failure(ferr, 1)
	}

	return t.policy.run(ctx, t.logger, req, func(attemptCtx context.Context) (Outcome, *FetchError) {
		return t.attempt(ctx, attemptCtx, req)
	})
}

// attempt issues a single GET. parent is the caller's context and is used to
// tell a caller cancellation apart from a per-attempt timeout.
func (t *HTTPTransport) attempt(parent, attemptCtx context.Context, req Request) (Outcome, *FetchError) {
	t.logger.Debug("making request",
		"source", req.Source,
		"symbol", req.Symbol,
		"url", req.URL)

	r := t.client.R().
		SetContext(attemptCtx).
		SetHeader("Accept", acceptHeader(req.Expect))
	if len(req.Query) > 0 {
		r.SetQueryParams(req.Query)
	}

	resp, err := r.Get(req.URL)
	if err != nil {
		return Outcome{}, ClassifyError(parent, err)
	}

	if !resp.IsSuccess() {
		return Outcome{}, ClassifyHTTPError(resp.StatusCode())
	}

	kind := contentKind(resp.Header().Get("Content-Type"), req.Expect)
	if req.Expect == ContentJSON && kind != ContentJSON {
		// typically a block or maintenance page served in place of the API
		return Outcome{}, NewValidationError(fmt.Sprintf("expected JSON, got %q", resp.Header().Get("Content-Type")))
	}

	return Success(resp.Bytes(), kind, resp.StatusCode(), 0), nil
}

// validateURL rejects URLs that no retry could ever fix
func validateURL(raw string) *FetchError {
	u, err := url.Parse(raw)
	if err != nil {
		return NewRequestError(fmt.Sprintf("malformed URL %q", raw), err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return NewRequestError(fmt.Sprintf("unsupported URL scheme %q", u.Scheme), nil)
	}
	if u.Host == "" {
		return NewRequestError(fmt.Sprintf("URL %q has no host", raw), nil)
	}
	return nil
}

func acceptHeader(kind ContentKind) string {
	if kind == ContentJSON {
		return "application/json"
	}
	return "text/html,application/xhtml+xml"
}

// contentKind derives the payload kind from the Content-Type header, falling
// back to what the caller expected when the header is missing or generic.
func contentKind(contentType string, expect ContentKind) ContentKind {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "json"):
		return ContentJSON
	case strings.Contains(ct, "html"), strings.Contains(ct, "xml"):
		return ContentMarkup
	case expect != "":
		return expect
	default:
		return ContentMarkup
	}
}
