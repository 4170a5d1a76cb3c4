package extract

import (
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/guregu/null/v6"

	"setfetch/internal/fetcher"
	"setfetch/internal/record"
	"setfetch/internal/source"
)

const (
	millionBaht     = "ล้านบาท"
	marketCapLabel  = "มูลค่าหลักทรัพย์ตามราคาตลาด"
	marketCapHeader = "มูลค่าตลาด (ล้านบาท)"
	avgVolumeHeader = "ปริมาณซื้อขายเฉลี่ย 10 วัน (หุ้น)"
	avgVolumeKey    = "ปริมาณซื้อขายเฉลี่ย 10 วัน"
)

var (
	dividendKeys = []string{"Dividend", "ปันผล"}
	high52Keys   = []string{"สูงสุด 52 สัปดาห์", "52 Week High"}
	low52Keys    = []string{"ต่ำสุด 52 สัปดาห์", "52 Week Low"}

	tableSelectors = []string{"table.table-info", "table", ".table"}
)

// FactSheetExtractor reads the rendered factsheet page. Each field is looked
// up with an ordered list of strategies so that small layout changes only
// degrade individual fields.
type FactSheetExtractor struct {
	CompanyName Lookups
	Price       Lookups
	MarketCap   Lookups
	AvgVolume   Lookups
}

// NewFactSheetExtractor returns the extractor with the default strategies
func NewFactSheetExtractor() *FactSheetExtractor {
	return &FactSheetExtractor{
		CompanyName: Lookups{
			CSS{Selector: "h1.company-name"},
			CSS{Selector: ".security-symbol"},
			CSS{Selector: ".company-name"},
			CSS{Selector: "h1"},
			SymbolText{Selector: "span"},
		},
		Price: Lookups{
			CSS{Selector: ".last-price"},
			CSS{Selector: "[class*='last-price']"},
			CSS{Selector: ".quote-summary .price"},
			CSS{Selector: ".price"},
			Pattern{Selector: "span", Pattern: regexp.MustCompile(`^\d[\d,]*\.\d{2}$`)},
		},
		MarketCap: Lookups{
			LabelNext{Selector: "div", Label: marketCapLabel},
			LabelSibling{Label: marketCapHeader},
		},
		AvgVolume: Lookups{
			LabelSibling{Label: avgVolumeHeader},
		},
	}
}

// Source implements Extractor
func (e *FactSheetExtractor) Source() source.Source { return source.Factsheet }

// Extract implements Extractor
func (e *FactSheetExtractor) Extract(symbol record.Symbol, out fetcher.Outcome) record.Partial {
	if p, ok := failed(source.Factsheet, symbol, out); ok {
		return p
	}

	doc, err := parseDocument(out.Body)
	if err != nil {
		return record.Empty(source.Factsheet, symbol, record.Unavailable(err.Error()))
	}

	return e.extract(symbol, doc.Selection)
}

func (e *FactSheetExtractor) extract(symbol record.Symbol, doc *goquery.Selection) record.FactSheet {
	sym := symbol.String()
	fs := record.FactSheet{
		Symbol:       symbol,
		Table:        keyValueRows(doc, tableSelectors),
		Ratios:       map[string]float64{},
		DividendInfo: map[string]string{},
	}

	if v, ok := e.CompanyName.First(doc, sym); ok {
		fs.CompanyName = null.StringFrom(v)
	}
	if v, ok := e.Price.First(doc, sym); ok {
		fs.Price = FirstNumber(v)
	}
	if v, ok := e.MarketCap.First(doc, sym); ok {
		fs.MarketCap = ParseScaled(v, millionBaht, 1_000_000)
	}
	if v, ok := e.AvgVolume.First(doc, sym); ok {
		fs.AvgVolume10D = ParseInt(v)
	}

	for _, key := range slices.Sorted(maps.Keys(fs.Table)) {
		value := fs.Table[key]
		if n := ParseNumber(value); n.Valid {
			fs.Ratios[key] = n.Float64
		}
		if containsAny(key, dividendKeys) {
			fs.DividendInfo[key] = value
		}
		switch {
		case !fs.High52Week.Valid && containsAny(key, high52Keys):
			fs.High52Week = ParseNumber(value)
		case !fs.Low52Week.Valid && containsAny(key, low52Keys):
			fs.Low52Week = ParseNumber(value)
		case !fs.AvgVolume10D.Valid && strings.Contains(key, avgVolumeKey):
			fs.AvgVolume10D = ParseInt(value)
		}
	}

	return fs
}
