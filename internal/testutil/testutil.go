package testutil

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"setfetch/internal/fetcher"
	"setfetch/internal/record"
	"setfetch/internal/source"
)

// QuietLogger discards all output
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MockFetcher is a mock implementation of the Fetcher interface for testing.
// It records every request it receives.
type MockFetcher struct {
	FetchFunc func(ctx context.Context, req fetcher.Request) fetcher.Outcome

	mu    sync.Mutex
	calls []fetcher.Request
}

// Fetch implements the Fetcher interface
func (m *MockFetcher) Fetch(ctx context.Context, req fetcher.Request) fetcher.Outcome {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()

	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, req)
	}
	return fetcher.Success(nil, req.Expect, 200, 1)
}

// Calls returns a copy of the requests received so far
func (m *MockFetcher) Calls() []fetcher.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]fetcher.Request(nil), m.calls...)
}

// CallCount returns how many requests were made for src
func (m *MockFetcher) CallCount(src source.Source) int {
	n := 0
	for _, c := range m.Calls() {
		if c.Source == src {
			n++
		}
	}
	return n
}

// NewMockFetcher creates a mock that answers each source with a fixed
// outcome. Sources without an entry fail with a 404.
func NewMockFetcher(outcomes map[source.Source]fetcher.Outcome) *MockFetcher {
	return &MockFetcher{
		FetchFunc: func(ctx context.Context, req fetcher.Request) fetcher.Outcome {
			if out, ok := outcomes[req.Source]; ok {
				return out
			}
			return fetcher.Failure(fetcher.NewClientError(404, "not found"), 1)
		},
	}
}

// GoodOutcomes returns a successful outcome with realistic content for every
// source
func GoodOutcomes() map[source.Source]fetcher.Outcome {
	return map[source.Source]fetcher.Outcome{
		source.Factsheet:           fetcher.Success([]byte(FactsheetPage), fetcher.ContentMarkup, 200, 1),
		source.CompanyHighlights:   fetcher.Success([]byte(HighlightsPage), fetcher.ContentMarkup, 200, 1),
		source.RightsBenefits:      fetcher.Success([]byte(RightsPayload), fetcher.ContentJSON, 200, 1),
		source.FinancialStatements: fetcher.Success([]byte(StatementsPage), fetcher.ContentMarkup, 200, 1),
		source.HistoricalTrading:   fetcher.Success([]byte(PricesPayload), fetcher.ContentJSON, 200, 1),
	}
}

// MockAggregator returns canned records per symbol and counts calls
type MockAggregator struct {
	AggregateFunc func(ctx context.Context, symbol record.Symbol) record.Aggregated

	mu    sync.Mutex
	order []record.Symbol
}

// Aggregate records the call and delegates to AggregateFunc
func (m *MockAggregator) Aggregate(ctx context.Context, symbol record.Symbol) record.Aggregated {
	m.mu.Lock()
	m.order = append(m.order, symbol)
	m.mu.Unlock()

	if m.AggregateFunc != nil {
		return m.AggregateFunc(ctx, symbol)
	}
	return OKRecord(symbol)
}

// Symbols returns the symbols aggregated so far, in call order
func (m *MockAggregator) Symbols() []record.Symbol {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]record.Symbol(nil), m.order...)
}

// OKRecord builds a record where every source succeeded with no data
func OKRecord(symbol record.Symbol) record.Aggregated {
	partials := make([]record.Partial, 0, len(source.All))
	for _, src := range source.All {
		partials = append(partials, record.Empty(src, symbol, nil))
	}
	return record.NewAggregated(symbol, time.Now(), partials)
}

// PartialRecord builds a record where the given sources failed
func PartialRecord(symbol record.Symbol, failed ...source.Source) record.Aggregated {
	bad := map[source.Source]bool{}
	for _, src := range failed {
		bad[src] = true
	}
	partials := make([]record.Partial, 0, len(source.All))
	for _, src := range source.All {
		var marker *record.SourceError
		if bad[src] {
			marker = &record.SourceError{Kind: record.ErrorKindTransient, Message: "server error", Attempts: 3}
		}
		partials = append(partials, record.Empty(src, symbol, marker))
	}
	return record.NewAggregated(symbol, time.Now(), partials)
}

// MockStore is an in-memory snapshot store whose Save can be made to fail
type MockStore struct {
	SaveErr error

	mu    sync.Mutex
	saved map[record.Symbol]record.Aggregated
}

// Save stores rec unless SaveErr is set
func (m *MockStore) Save(_ context.Context, rec record.Aggregated) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		m.saved = map[record.Symbol]record.Aggregated{}
	}
	m.saved[rec.Symbol] = rec
	return nil
}

// Load returns a saved record
func (m *MockStore) Load(_ context.Context, symbol record.Symbol) (record.Aggregated, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.saved[symbol]
	if !ok {
		return record.Aggregated{}, ErrNotSaved
	}
	return rec, nil
}

// Saved returns how many records are stored
func (m *MockStore) Saved() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}
