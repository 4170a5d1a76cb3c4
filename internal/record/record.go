package record

import (
	"errors"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"setfetch/internal/fetcher"
	"setfetch/internal/source"
)

// Symbol is a case-normalized security identifier
type Symbol string

var upper = cases.Upper(language.Und)

// ErrEmptySymbol is returned for blank symbols
var ErrEmptySymbol = errors.New("symbol cannot be empty")

// NewSymbol trims and upper-cases s
func NewSymbol(s string) (Symbol, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrEmptySymbol
	}
	return Symbol(upper.String(s)), nil
}

// String implements fmt.Stringer
func (s Symbol) String() string {
	return string(s)
}

// ErrorKind classifies why a source produced no data
type ErrorKind string

const (
	// ErrorKindTransient means the transport gave up after retrying
	ErrorKindTransient ErrorKind = "transient"
	// ErrorKindPermanent means the request could not succeed (4xx, malformed)
	ErrorKindPermanent ErrorKind = "permanent"
	// ErrorKindResource means a browser session could not be acquired
	ErrorKindResource ErrorKind = "resource"
	// ErrorKindUnavailable means content arrived but could not be decoded
	ErrorKindUnavailable ErrorKind = "unavailable"
	// ErrorKindCanceled means the caller aborted the fetch
	ErrorKindCanceled ErrorKind = "canceled"
	// ErrorKindInternal means the pipeline itself failed unexpectedly
	ErrorKindInternal ErrorKind = "internal"
)

// SourceError is the error marker embedded in a partial record
type SourceError struct {
	Kind     ErrorKind `json:"kind"`
	Message  string    `json:"message"`
	Attempts int       `json:"attempts,omitempty"`
}

// Error implements the error interface
func (e *SourceError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// FromOutcome builds the error marker for a failed fetch outcome
func FromOutcome(out fetcher.Outcome) *SourceError {
	if out.Succeeded() {
		return nil
	}
	return &SourceError{
		Kind:     kindOf(out.Err),
		Message:  out.Err.Error(),
		Attempts: out.Attempts,
	}
}

// Unavailable builds the error marker for content that could not be used
func Unavailable(message string) *SourceError {
	return &SourceError{Kind: ErrorKindUnavailable, Message: message}
}

// Internal builds the error marker for an unexpected pipeline fault
func Internal(message string) *SourceError {
	return &SourceError{Kind: ErrorKindInternal, Message: message}
}

func kindOf(err *fetcher.FetchError) ErrorKind {
	switch {
	case err.Type == fetcher.ErrorTypeResource:
		return ErrorKindResource
	case err.Type == fetcher.ErrorTypeCanceled:
		return ErrorKindCanceled
	case err.Type == fetcher.ErrorTypeValidation:
		return ErrorKindUnavailable
	case err.Retryable:
		return ErrorKindTransient
	default:
		return ErrorKindPermanent
	}
}

// Partial is one source's contribution to an aggregated record. Every
// variant either carries data or an error marker, never neither.
type Partial interface {
	// Source returns the source the partial came from
	Source() source.Source

	// Failure returns the embedded error marker, or nil
	Failure() *SourceError
}

// Status is the overall state of an aggregated record
type Status string

const (
	// StatusOK means every source produced data
	StatusOK Status = "ok"
	// StatusPartial means at least one source carries an error marker
	StatusPartial Status = "partial"
)

// Aggregated is the merged record for one symbol. It has exactly one slot
// per known source; a failed source occupies its slot with an error-tagged
// partial.
type Aggregated struct {
	Symbol              Symbol                  `json:"symbol"`
	Timestamp           time.Time               `json:"timestamp"`
	Status              Status                  `json:"status"`
	FailedSources       []source.Source         `json:"failed_sources"`
	Factsheet           FactSheet               `json:"factsheet"`
	CompanyHighlights   CompanyHighlights       `json:"company_highlights"`
	RightsBenefits      RightsAndBenefits       `json:"rights_benefits"`
	FinancialStatements FinancialStatementIndex `json:"financial_statements"`
	HistoricalTrading   HistoricalPrices        `json:"historical_trading"`
}

// NewAggregated assembles a record from partials. Sources without a partial
// get an internal error marker so that no slot is ever left empty.
func NewAggregated(symbol Symbol, at time.Time, partials []Partial) Aggregated {
	rec := Aggregated{
		Symbol:    symbol,
		Timestamp: at.UTC(),
	}

	seen := make(map[source.Source]bool, len(source.All))
	for _, p := range partials {
		if p == nil {
			continue
		}
		switch v := p.(type) {
		case FactSheet:
			rec.Factsheet = v
		case CompanyHighlights:
			rec.CompanyHighlights = v
		case RightsAndBenefits:
			rec.RightsBenefits = v
		case FinancialStatementIndex:
			rec.FinancialStatements = v
		case HistoricalPrices:
			rec.HistoricalTrading = v
		default:
			continue
		}
		seen[p.Source()] = true
	}

	for _, src := range source.All {
		if !seen[src] {
			rec.fill(Empty(src, symbol, Internal("source produced no record")))
		}
	}

	rec.FailedSources = []source.Source{}
	for _, p := range rec.Partials() {
		if p.Failure() != nil {
			rec.FailedSources = append(rec.FailedSources, p.Source())
		}
	}

	rec.Status = StatusOK
	if len(rec.FailedSources) > 0 {
		rec.Status = StatusPartial
	}

	return rec
}

func (a *Aggregated) fill(p Partial) {
	switch v := p.(type) {
	case FactSheet:
		a.Factsheet = v
	case CompanyHighlights:
		a.CompanyHighlights = v
	case RightsAndBenefits:
		a.RightsBenefits = v
	case FinancialStatementIndex:
		a.FinancialStatements = v
	case HistoricalPrices:
		a.HistoricalTrading = v
	}
}

// Partials returns the five slots in source order
func (a Aggregated) Partials() []Partial {
	return []Partial{
		a.Factsheet,
		a.CompanyHighlights,
		a.RightsBenefits,
		a.FinancialStatements,
		a.HistoricalTrading,
	}
}

// OK reports whether every source produced data
func (a Aggregated) OK() bool {
	return a.Status == StatusOK
}

// Empty returns the error-tagged, data-free partial for src
func Empty(src source.Source, symbol Symbol, failure *SourceError) Partial {
	switch src {
	case source.Factsheet:
		return FactSheet{Symbol: symbol, Table: map[string]string{}, Ratios: map[string]float64{}, DividendInfo: map[string]string{}, Error: failure}
	case source.CompanyHighlights:
		return CompanyHighlights{Symbol: symbol, Financials: []FinancialYear{}, Error: failure}
	case source.RightsBenefits:
		return RightsAndBenefits{Symbol: symbol, Dividends: []Dividend{}, Error: failure}
	case source.FinancialStatements:
		return FinancialStatementIndex{Symbol: symbol, Statements: []StatementFile{}, Error: failure}
	case source.HistoricalTrading:
		return HistoricalPrices{Symbol: symbol, Prices: []PricePoint{}, Error: failure}
	default:
		return nil
	}
}
