package fetcher

import (
	"context"
	"time"

	"setfetch/internal/source"
)

// Fetcher is the core interface that all transports must implement.
// A Fetcher performs one logical call for a Request, including its own
// retries, and always reports the result as an Outcome.
type Fetcher interface {
	// Fetch retrieves the raw content for the request. It never panics and
	// never returns a bare error: failures are carried by the Outcome.
	Fetch(ctx context.Context, req Request) Outcome
}

// FetcherFunc adapts a plain function to the Fetcher interface
type FetcherFunc func(ctx context.Context, req Request) Outcome

// Fetch implements Fetcher
func (f FetcherFunc) Fetch(ctx context.Context, req Request) Outcome {
	return f(ctx, req)
}

// ContentKind is the kind of payload a source returns
type ContentKind string

const (
	// ContentMarkup is an HTML document
	ContentMarkup ContentKind = "markup"
	// ContentJSON is a JSON document
	ContentJSON ContentKind = "json"
)

// Request describes a single outbound call for one source and symbol.
// It is created per extractor invocation and not retained after the response.
type Request struct {
	// Source is the upstream origin being fetched
	Source source.Source

	// Symbol is the security the request is about
	Symbol string

	// URL is the absolute URL to fetch
	URL string

	// Query holds optional query parameters
	Query map[string]string

	// Timeout bounds each attempt. Zero means the transport default.
	Timeout time.Duration

	// Expect is the content kind the caller expects back
	Expect ContentKind
}
