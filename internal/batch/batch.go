// Package batch runs the aggregator over an ordered list of symbols, pacing
// dispatches and collecting the symbols that need a retry.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"setfetch/internal/record"
)

// DefaultInterSymbolDelay spaces consecutive symbols
const DefaultInterSymbolDelay = 3 * time.Second

// ErrNoSymbols is returned when a batch is started without symbols
var ErrNoSymbols = errors.New("no symbols to process")

// Aggregator produces the record for one symbol
type Aggregator interface {
	Aggregate(ctx context.Context, symbol record.Symbol) record.Aggregated
}

// Saver persists a record. Implemented by the snapshot stores.
type Saver interface {
	Save(ctx context.Context, rec record.Aggregated) error
}

// Options controls pacing and parallelism
type Options struct {
	// InterSymbolDelay is the minimum spacing between symbol dispatches
	InterSymbolDelay time.Duration

	// Concurrency above 1 processes that many symbols at once
	Concurrency int
}

// Result is the outcome of one batch run
type Result struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time

	// Symbols is the normalized, de-duplicated input in order
	Symbols []record.Symbol
	Records map[record.Symbol]record.Aggregated

	// Failed lists, in input order, symbols whose record is partial or
	// could not be persisted
	Failed []record.Symbol

	PersistErrors map[record.Symbol]error
}

// OK reports whether every symbol succeeded
func (r Result) OK() bool {
	return len(r.Failed) == 0
}

// Ordered returns the records in input order
func (r Result) Ordered() []record.Aggregated {
	out := make([]record.Aggregated, 0, len(r.Symbols))
	for _, s := range r.Symbols {
		out = append(out, r.Records[s])
	}
	return out
}

// Runner processes batches
type Runner struct {
	agg    Aggregator
	store  Saver
	opts   Options
	logger *slog.Logger
}

// New creates a Runner. store may be nil, in which case records are not
// persisted.
func New(agg Aggregator, store Saver, opts Options, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.InterSymbolDelay < 0 {
		opts.InterSymbolDelay = 0
	}
	return &Runner{agg: agg, store: store, opts: opts, logger: logger}
}

// Normalize trims and upper-cases symbols, rejects blanks and drops
// duplicates while keeping the first occurrence.
func Normalize(raw []string) ([]record.Symbol, error) {
	if len(raw) == 0 {
		return nil, ErrNoSymbols
	}

	seen := make(map[record.Symbol]bool, len(raw))
	out := make([]record.Symbol, 0, len(raw))
	for i, s := range raw {
		sym, err := record.NewSymbol(s)
		if err != nil {
			return nil, fmt.Errorf("symbol %d: %w", i+1, err)
		}
		if seen[sym] {
			continue
		}
		seen[sym] = true
		out = append(out, sym)
	}
	return out, nil
}

// Run aggregates every symbol. A failing symbol never stops the batch; the
// only errors returned are for invalid input. Cancelling ctx makes the
// remaining symbols finish quickly with canceled markers.
func (r *Runner) Run(ctx context.Context, raw []string) (Result, error) {
	symbols, err := Normalize(raw)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		RunID:         uuid.NewString(),
		StartedAt:     time.Now().UTC(),
		Symbols:       symbols,
		Records:       make(map[record.Symbol]record.Aggregated, len(symbols)),
		PersistErrors: map[record.Symbol]error{},
	}

	logger := r.logger.With("run_id", res.RunID)
	logger.Info("batch started",
		"symbols", len(symbols),
		"concurrency", r.opts.Concurrency,
		"inter_symbol_delay", r.opts.InterSymbolDelay)

	var outcomes []symbolOutcome
	if r.opts.Concurrency > 1 {
		outcomes = r.runParallel(ctx, logger, symbols)
	} else {
		outcomes = r.runSequential(ctx, logger, symbols)
	}

	for i, o := range outcomes {
		sym := symbols[i]
		res.Records[sym] = o.rec
		if o.persistErr != nil {
			res.PersistErrors[sym] = o.persistErr
		}
		if !o.rec.OK() || o.persistErr != nil {
			res.Failed = append(res.Failed, sym)
		}
	}
	res.FinishedAt = time.Now().UTC()

	logger.Info("batch finished",
		"symbols", len(symbols),
		"failed", len(res.Failed),
		"duration", res.FinishedAt.Sub(res.StartedAt))

	return res, nil
}

type symbolOutcome struct {
	rec        record.Aggregated
	persistErr error
}

func (r *Runner) runSequential(ctx context.Context, logger *slog.Logger, symbols []record.Symbol) []symbolOutcome {
	outcomes := make([]symbolOutcome, len(symbols))
	for i, sym := range symbols {
		if i > 0 {
			pause(ctx, r.opts.InterSymbolDelay)
		}
		outcomes[i] = r.process(ctx, logger, i, len(symbols), sym)
	}
	return outcomes
}

// runParallel dispatches symbols in input order through a shared pacing
// gate. Each worker writes only its own slot.
func (r *Runner) runParallel(ctx context.Context, logger *slog.Logger, symbols []record.Symbol) []symbolOutcome {
	outcomes := make([]symbolOutcome, len(symbols))

	gate := rate.NewLimiter(rate.Inf, 1)
	if r.opts.InterSymbolDelay > 0 {
		gate = rate.NewLimiter(rate.Every(r.opts.InterSymbolDelay), 1)
	}

	var g errgroup.Group
	g.SetLimit(r.opts.Concurrency)
	for i, sym := range symbols {
		// a canceled gate still dispatches so every symbol gets a record
		_ = gate.Wait(ctx)
		g.Go(func() error {
			outcomes[i] = r.process(ctx, logger, i, len(symbols), sym)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (r *Runner) process(ctx context.Context, logger *slog.Logger, i, total int, sym record.Symbol) symbolOutcome {
	logger.Info("processing symbol", "symbol", sym, "position", i+1, "total", total)

	rec := r.agg.Aggregate(ctx, sym)
	if !rec.OK() {
		logger.Warn("symbol incomplete", "symbol", sym, "failed_sources", rec.FailedSources)
	}

	out := symbolOutcome{rec: rec}
	if r.store == nil {
		return out
	}
	if err := r.store.Save(ctx, rec); err != nil {
		logger.Error("failed to save snapshot", "symbol", sym, "error", err)
		out.persistErr = err
	}
	return out
}

// pause waits for d or until ctx is done
func pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
