package source

import (
	"fmt"
	"net/url"
	"strings"
)

// Source identifies one upstream origin of data for a symbol
type Source string

const (
	// Factsheet is the script-rendered factsheet page
	Factsheet Source = "factsheet"
	// CompanyHighlights is the company highlights table page
	CompanyHighlights Source = "company_highlights"
	// RightsBenefits is the rights and benefits JSON API
	RightsBenefits Source = "rights_benefits"
	// FinancialStatements is the financial statement document listing page
	FinancialStatements Source = "financial_statements"
	// HistoricalTrading is the price chart JSON API
	HistoricalTrading Source = "historical_trading"
)

// All lists every known source in the order records report them.
var All = []Source{
	Factsheet,
	CompanyHighlights,
	RightsBenefits,
	FinancialStatements,
	HistoricalTrading,
}

// Mode describes how a source has to be fetched
type Mode int

const (
	// ModeHTTP is a plain HTTP GET
	ModeHTTP Mode = iota
	// ModeRendered requires a browser to execute scripts before the content is usable
	ModeRendered
)

// String implements fmt.Stringer
func (m Mode) String() string {
	if m == ModeRendered {
		return "rendered"
	}
	return "http"
}

// Endpoint describes where a source lives relative to the upstream base URL.
// PathTemplate and Query values may contain the {symbol} placeholder.
type Endpoint struct {
	Source       Source
	Mode         Mode
	PathTemplate string
	Query        map[string]string
}

const symbolPlaceholder = "{symbol}"

// Endpoints is the catalog of upstream endpoints, keyed by source.
var Endpoints = map[Source]Endpoint{
	Factsheet: {
		Source:       Factsheet,
		Mode:         ModeRendered,
		PathTemplate: "/th/market/product/stock/quote/{symbol}/factsheet",
	},
	CompanyHighlights: {
		Source:       CompanyHighlights,
		Mode:         ModeHTTP,
		PathTemplate: "/th/market/product/stock/quote/{symbol}/financial-statement/company-highlights",
	},
	RightsBenefits: {
		Source:       RightsBenefits,
		Mode:         ModeHTTP,
		PathTemplate: "/api/set/company-rights-and-benefits/{symbol}",
		Query:        map[string]string{"type": "financial"},
	},
	FinancialStatements: {
		Source:       FinancialStatements,
		Mode:         ModeHTTP,
		PathTemplate: "/th/market/product/stock/quote/{symbol}/financial-statement/financial-position",
	},
	HistoricalTrading: {
		Source:       HistoricalTrading,
		Mode:         ModeHTTP,
		PathTemplate: "/api/set/stock/price-chart",
		Query:        map[string]string{"symbol": symbolPlaceholder},
	},
}

// Lookup returns the endpoint registered for a source
func Lookup(src Source) (Endpoint, error) {
	ep, ok := Endpoints[src]
	if !ok {
		return Endpoint{}, fmt.Errorf("unknown source: %s", src)
	}
	return ep, nil
}

// Parse converts a string into a known Source
func Parse(s string) (Source, error) {
	candidate := Source(strings.ToLower(strings.TrimSpace(s)))
	for _, src := range All {
		if src == candidate {
			return src, nil
		}
	}
	return "", fmt.Errorf("unknown source: %q", s)
}

// URL builds the absolute URL of the endpoint for a symbol. The symbol is
// path-escaped before substitution.
func (e Endpoint) URL(baseURL, symbol string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("invalid base URL %q: scheme and host are required", baseURL)
	}

	path := strings.ReplaceAll(e.PathTemplate, symbolPlaceholder, url.PathEscape(symbol))
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("invalid path for %s: %w", e.Source, err)
	}

	return base.ResolveReference(ref).String(), nil
}

// QueryParams renders the endpoint's query template for a symbol
func (e Endpoint) QueryParams(symbol string) map[string]string {
	if len(e.Query) == 0 {
		return nil
	}
	params := make(map[string]string, len(e.Query))
	for k, v := range e.Query {
		params[k] = strings.ReplaceAll(v, symbolPlaceholder, symbol)
	}
	return params
}
