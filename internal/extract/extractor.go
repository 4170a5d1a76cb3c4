// Package extract turns fetched page markup and API payloads into typed
// record partials. Extractors never fail: missing fields become nulls and
// unusable content becomes an error-tagged empty partial.
package extract

import (
	"bytes"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"github.com/goccy/go-json"

	"setfetch/internal/fetcher"
	"setfetch/internal/record"
	"setfetch/internal/source"
)

// Extractor converts one source's fetch outcome into its partial
type Extractor interface {
	// Source returns the source this extractor understands
	Source() source.Source

	// Extract builds the partial for symbol. A failed outcome yields the
	// source's empty partial carrying the failure.
	Extract(symbol record.Symbol, out fetcher.Outcome) record.Partial
}

// Set maps every source to its extractor
type Set map[source.Source]Extractor

// Defaults returns the extractors for all sources. baseURL resolves
// relative statement links.
func Defaults(baseURL string) Set {
	return Set{
		source.Factsheet:           NewFactSheetExtractor(),
		source.CompanyHighlights:   NewHighlightsExtractor(),
		source.RightsBenefits:      NewRightsExtractor(),
		source.FinancialStatements: NewStatementsExtractor(baseURL),
		source.HistoricalTrading:   NewPricesExtractor(),
	}
}

// failed reports the error-tagged partial for a failed or empty outcome
func failed(src source.Source, symbol record.Symbol, out fetcher.Outcome) (record.Partial, bool) {
	if !out.Succeeded() {
		return record.Empty(src, symbol, record.FromOutcome(out)), true
	}
	if len(bytes.TrimSpace(out.Body)) == 0 {
		return record.Empty(src, symbol, record.Unavailable("empty response body")), true
	}
	return nil, false
}

func parseDocument(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse markup: %w", err)
	}
	return doc, nil
}

// decodeList decodes a JSON object and returns the objects in the array
// under key. A missing key or non-array value yields an empty list; a body
// that is not a JSON object is an error.
func decodeList(body []byte, key string) ([]map[string]any, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("invalid JSON response: %w", err)
	}

	raw, ok := envelope[key]
	if !ok {
		return []map[string]any{}, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return []map[string]any{}, nil
	}

	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		var m map[string]any
		if err := json.Unmarshal(item, &m); err != nil || m == nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}
