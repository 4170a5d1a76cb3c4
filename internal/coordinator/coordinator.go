package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"setfetch/internal/extract"
	"setfetch/internal/fetcher"
	"setfetch/internal/ratelimit"
	"setfetch/internal/record"
	"setfetch/internal/source"
)

// Defaults for the historical price range
const (
	DefaultHistoryMonths = 60
	DefaultGranularity   = "month"
	daysPerMonth         = 30
	rangeDateLayout      = "2006-01-02"
)

// Transports holds the fetchers used per source mode. When Rendered is nil,
// rendered sources are fetched over HTTP instead.
type Transports struct {
	HTTP     fetcher.Fetcher
	Rendered fetcher.Fetcher
}

// Options tune how requests are built
type Options struct {
	BaseURL       string
	HistoryMonths int
	Granularity   string

	// Now returns the aggregation instant. Defaults to time.Now.
	Now func() time.Time
}

// Coordinator runs one pipeline per source for a symbol and merges the
// partials into an aggregated record
type Coordinator struct {
	http       fetcher.Fetcher
	rendered   fetcher.Fetcher
	limiter    *ratelimit.Limiter
	extractors extract.Set
	opts       Options
	logger     *slog.Logger
}

// New creates a Coordinator. Every fetcher it uses is wrapped by the limiter
// so no pipeline can reach the network unthrottled.
func New(transports Transports, limiter *ratelimit.Limiter, extractors extract.Set, opts Options, logger *slog.Logger) (*Coordinator, error) {
	if transports.HTTP == nil {
		return nil, errors.New("no HTTP transport configured")
	}
	if limiter == nil {
		return nil, errors.New("no rate limiter configured")
	}
	for _, src := range source.All {
		if extractors[src] == nil {
			return nil, fmt.Errorf("no extractor configured for %s", src)
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.HistoryMonths <= 0 {
		opts.HistoryMonths = DefaultHistoryMonths
	}
	if opts.Granularity == "" {
		opts.Granularity = DefaultGranularity
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	rendered := transports.Rendered
	if rendered == nil {
		rendered = transports.HTTP
	}

	return &Coordinator{
		http:       ratelimit.Throttled(limiter, transports.HTTP),
		rendered:   ratelimit.Throttled(limiter, rendered),
		limiter:    limiter,
		extractors: extractors,
		opts:       opts,
		logger:     logger,
	}, nil
}

// Aggregate fetches every source for symbol concurrently. One source failing,
// or panicking, never affects the others; its slot carries an error marker.
func (c *Coordinator) Aggregate(ctx context.Context, symbol record.Symbol) record.Aggregated {
	now := c.opts.Now()
	partials := make([]record.Partial, len(source.All))

	var wg conc.WaitGroup
	for i, src := range source.All {
		wg.Go(func() {
			partials[i] = c.runPipeline(ctx, symbol, src, now)
		})
	}
	wg.Wait()

	rec := record.NewAggregated(symbol, now, partials)

	c.logger.Info("aggregated symbol",
		"symbol", symbol,
		"status", rec.Status,
		"failed_sources", rec.FailedSources)

	return rec
}

// runPipeline recovers from any panic in the fetch or extract step and turns
// it into the source's error-tagged partial.
func (c *Coordinator) runPipeline(ctx context.Context, symbol record.Symbol, src source.Source, now time.Time) record.Partial {
	var p record.Partial
	recovered := panics.Try(func() {
		p = c.pipeline(ctx, symbol, src, now)
	})
	if recovered != nil {
		c.logger.Error("pipeline panicked",
			"symbol", symbol,
			"source", src,
			"panic", recovered.Value)
		return record.Empty(src, symbol, record.Internal(fmt.Sprintf("pipeline panicked: %v", recovered.Value)))
	}
	if p == nil {
		return record.Empty(src, symbol, record.Internal("extractor returned no record"))
	}
	return p
}

func (c *Coordinator) pipeline(ctx context.Context, symbol record.Symbol, src source.Source, now time.Time) record.Partial {
	ex := c.extractors[src]

	req, err := c.request(symbol, src, now)
	if err != nil {
		return ex.Extract(symbol, fetcher.Failure(err, 0))
	}

	f := c.http
	if ep, _ := source.Lookup(src); ep.Mode == source.ModeRendered {
		f = c.rendered
	}

	out := f.Fetch(ctx, req)

	c.logger.Debug("source fetched",
		"symbol", symbol,
		"source", src,
		"throttle", c.limiter.Delay(src),
		"ok", out.Succeeded(),
		"attempts", out.Attempts)

	return ex.Extract(symbol, out)
}

// request builds the outbound request for one source
func (c *Coordinator) request(symbol record.Symbol, src source.Source, now time.Time) (fetcher.Request, *fetcher.FetchError) {
	ep, err := source.Lookup(src)
	if err != nil {
		return fetcher.Request{}, fetcher.NewRequestError(err.Error(), err)
	}

	u, err := ep.URL(c.opts.BaseURL, symbol.String())
	if err != nil {
		return fetcher.Request{}, fetcher.NewRequestError(err.Error(), err)
	}

	query := ep.QueryParams(symbol.String())
	if src == source.HistoricalTrading {
		query["type"] = c.opts.Granularity
		query["range"] = HistoryRange(now, c.opts.HistoryMonths)
	}

	expect := fetcher.ContentMarkup
	if src == source.RightsBenefits || src == source.HistoricalTrading {
		expect = fetcher.ContentJSON
	}

	return fetcher.Request{
		Source: src,
		Symbol: symbol.String(),
		URL:    u,
		Query:  query,
		Expect: expect,
	}, nil
}

// HistoryRange renders the price chart range parameter: months × 30 days
// back from now, as "start_end" calendar dates.
func HistoryRange(now time.Time, months int) string {
	start := now.AddDate(0, 0, -daysPerMonth*months)
	return start.Format(rangeDateLayout) + "_" + now.Format(rangeDateLayout)
}
