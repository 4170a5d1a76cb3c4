package extract

import (
	"github.com/PuerkitoBio/goquery"

	"setfetch/internal/fetcher"
	"setfetch/internal/record"
	"setfetch/internal/source"
)

// highlightColumns is the minimum row width: year plus eight metrics
const highlightColumns = 9

// HighlightsExtractor reads the yearly highlights table
type HighlightsExtractor struct {
	// TableMarkers must all appear in a table's text for it to be used
	TableMarkers []string
}

// NewHighlightsExtractor returns the extractor with the default markers
func NewHighlightsExtractor() *HighlightsExtractor {
	return &HighlightsExtractor{TableMarkers: []string{"ปี", "รายได้รวม"}}
}

// Source implements Extractor
func (e *HighlightsExtractor) Source() source.Source { return source.CompanyHighlights }

// Extract implements Extractor
func (e *HighlightsExtractor) Extract(symbol record.Symbol, out fetcher.Outcome) record.Partial {
	if p, ok := failed(source.CompanyHighlights, symbol, out); ok {
		return p
	}

	doc, err := parseDocument(out.Body)
	if err != nil {
		return record.Empty(source.CompanyHighlights, symbol, record.Unavailable(err.Error()))
	}

	return record.CompanyHighlights{
		Symbol:     symbol,
		Financials: e.rows(doc.Selection),
	}
}

func (e *HighlightsExtractor) rows(doc *goquery.Selection) []record.FinancialYear {
	years := []record.FinancialYear{}

	// every matching table contributes rows; a wrapper table around a
	// matching one is skipped so its rows are not read twice
	matches := func(s *goquery.Selection) bool {
		return containsAll(CleanText(s.Text()), e.TableMarkers)
	}
	tables := doc.Find("table").FilterFunction(func(_ int, s *goquery.Selection) bool {
		if !matches(s) {
			return false
		}
		return s.Find("table").FilterFunction(func(_ int, inner *goquery.Selection) bool {
			return matches(inner)
		}).Length() == 0
	})

	tables.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() < highlightColumns {
			return
		}
		col := func(i int) string { return cells.Eq(i).Text() }

		fy := record.FinancialYear{
			Year:            ParseInt(col(0)),
			Revenue:         ParseNumber(col(1)),
			NetProfit:       ParseNumber(col(2)),
			EPS:             ParseNumber(col(3)),
			BVPS:            ParseNumber(col(4)),
			ROE:             ParseNumber(col(5)),
			NetProfitMargin: ParseNumber(col(6)),
			PE:              ParseNumber(col(7)),
			PBV:             ParseNumber(col(8)),
		}
		if blankYear(fy) {
			return
		}
		years = append(years, fy)
	})

	return years
}

func blankYear(fy record.FinancialYear) bool {
	return !fy.Year.Valid && !fy.Revenue.Valid && !fy.NetProfit.Valid &&
		!fy.EPS.Valid && !fy.BVPS.Valid && !fy.ROE.Valid &&
		!fy.NetProfitMargin.Valid && !fy.PE.Valid && !fy.PBV.Valid
}
