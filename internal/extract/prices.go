package extract

import (
	"setfetch/internal/fetcher"
	"setfetch/internal/record"
	"setfetch/internal/source"
)

// priceKeys lists the accepted payload keys per price point field
var priceKeys = struct {
	Date, Open, High, Low, Close, Price, Volume, Value []string
}{
	Date:   []string{"date", "datetime", "tradingDate", "time"},
	Open:   []string{"open"},
	High:   []string{"high"},
	Low:    []string{"low"},
	Close:  []string{"close"},
	Price:  []string{"price", "last"},
	Volume: []string{"volume", "totalVolume"},
	Value:  []string{"value", "totalValue"},
}

// knownPriceKeys is every key consumed by priceKeys
var knownPriceKeys = func() map[string]bool {
	known := map[string]bool{}
	for _, keys := range [][]string{
		priceKeys.Date, priceKeys.Open, priceKeys.High, priceKeys.Low,
		priceKeys.Close, priceKeys.Price, priceKeys.Volume, priceKeys.Value,
	} {
		for _, k := range keys {
			known[k] = true
		}
	}
	return known
}()

// extraFields returns the item's keys that no column consumes, or nil
func extraFields(item map[string]any) map[string]any {
	var extra map[string]any
	for k, v := range item {
		if knownPriceKeys[k] {
			continue
		}
		if extra == nil {
			extra = map[string]any{}
		}
		extra[k] = v
	}
	return extra
}

// PricesExtractor decodes the price chart API
type PricesExtractor struct{}

// NewPricesExtractor returns a PricesExtractor
func NewPricesExtractor() *PricesExtractor {
	return &PricesExtractor{}
}

// Source implements Extractor
func (e *PricesExtractor) Source() source.Source { return source.HistoricalTrading }

// Extract implements Extractor
func (e *PricesExtractor) Extract(symbol record.Symbol, out fetcher.Outcome) record.Partial {
	if p, ok := failed(source.HistoricalTrading, symbol, out); ok {
		return p
	}

	items, err := decodeList(out.Body, "price")
	if err != nil {
		return record.Empty(source.HistoricalTrading, symbol, record.Unavailable(err.Error()))
	}

	prices := make([]record.PricePoint, 0, len(items))
	for _, item := range items {
		prices = append(prices, record.PricePoint{
			Date:   stringField(item, priceKeys.Date...),
			Open:   floatField(item, priceKeys.Open...),
			High:   floatField(item, priceKeys.High...),
			Low:    floatField(item, priceKeys.Low...),
			Close:  floatField(item, priceKeys.Close...),
			Price:  floatField(item, priceKeys.Price...),
			Volume: floatField(item, priceKeys.Volume...),
			Value:  floatField(item, priceKeys.Value...),
			Extra:  extraFields(item),
		})
	}

	return record.HistoricalPrices{Symbol: symbol, Prices: prices}
}
