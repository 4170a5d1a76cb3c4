package extract

import (
	"setfetch/internal/fetcher"
	"setfetch/internal/record"
	"setfetch/internal/source"
)

// DividendRightsType is the rightsType value of dividend entitlements
const DividendRightsType = "เงินปันผล"

// RightsExtractor keeps the dividend entries of the rights and benefits API
type RightsExtractor struct {
	RightsType string
}

// NewRightsExtractor returns an extractor filtering on dividends
func NewRightsExtractor() *RightsExtractor {
	return &RightsExtractor{RightsType: DividendRightsType}
}

// Source implements Extractor
func (e *RightsExtractor) Source() source.Source { return source.RightsBenefits }

// Extract implements Extractor
func (e *RightsExtractor) Extract(symbol record.Symbol, out fetcher.Outcome) record.Partial {
	if p, ok := failed(source.RightsBenefits, symbol, out); ok {
		return p
	}

	items, err := decodeList(out.Body, "data")
	if err != nil {
		return record.Empty(source.RightsBenefits, symbol, record.Unavailable(err.Error()))
	}

	dividends := []record.Dividend{}
	want := CleanText(e.RightsType)
	for _, item := range items {
		rt := stringField(item, "rightsType")
		if !rt.Valid || rt.String != want {
			continue
		}
		dividends = append(dividends, record.Dividend{
			Year:           intField(item, "entitlementYear"),
			Type:           stringField(item, "benefitType"),
			AnnounceDate:   stringField(item, "signPostDate", "announceDate"),
			XDDate:         stringField(item, "xdDate"),
			PaymentDate:    stringField(item, "paymentDate"),
			AmountPerShare: floatField(item, "amount", "dividendPerShare"),
			Note:           stringField(item, "remark"),
		})
	}

	return record.RightsAndBenefits{Symbol: symbol, Dividends: dividends}
}
