package record

import (
	"github.com/guregu/null/v6"

	"setfetch/internal/source"
)

// FactSheet is the data read from the rendered factsheet page
type FactSheet struct {
	Symbol       Symbol             `json:"symbol"`
	CompanyName  null.String        `json:"company_name"`
	Price        null.Float         `json:"price"`
	MarketCap    null.Float         `json:"market_cap"`
	High52Week   null.Float         `json:"high_52w"`
	Low52Week    null.Float         `json:"low_52w"`
	AvgVolume10D null.Int           `json:"avg_volume_10d"`
	Table        map[string]string  `json:"factsheet_table"`
	Ratios       map[string]float64 `json:"financial_ratios"`
	DividendInfo map[string]string  `json:"dividend_info"`
	Error        *SourceError       `json:"error,omitempty"`
}

// Source implements Partial
func (FactSheet) Source() source.Source { return source.Factsheet }

// Failure implements Partial
func (f FactSheet) Failure() *SourceError { return f.Error }

// FinancialYear is one row of the company highlights table
type FinancialYear struct {
	Year            null.Int   `json:"year"`
	Revenue         null.Float `json:"revenue"`
	NetProfit       null.Float `json:"net_profit"`
	EPS             null.Float `json:"eps"`
	BVPS            null.Float `json:"bvps"`
	ROE             null.Float `json:"roe"`
	NetProfitMargin null.Float `json:"net_profit_margin"`
	PE              null.Float `json:"pe"`
	PBV             null.Float `json:"pbv"`
}

// CompanyHighlights holds the yearly financial highlights
type CompanyHighlights struct {
	Symbol     Symbol          `json:"symbol"`
	Financials []FinancialYear `json:"financials"`
	Error      *SourceError    `json:"error,omitempty"`
}

// Source implements Partial
func (CompanyHighlights) Source() source.Source { return source.CompanyHighlights }

// Failure implements Partial
func (c CompanyHighlights) Failure() *SourceError { return c.Error }

// Dividend is one dividend entitlement
type Dividend struct {
	Year           null.Int    `json:"year"`
	Type           null.String `json:"type"`
	AnnounceDate   null.String `json:"announce_date"`
	XDDate         null.String `json:"xd_date"`
	PaymentDate    null.String `json:"payment_date"`
	AmountPerShare null.Float  `json:"amount_per_share"`
	Note           null.String `json:"note"`
}

// RightsAndBenefits holds the dividend subset of the rights and benefits list
type RightsAndBenefits struct {
	Symbol    Symbol       `json:"symbol"`
	Dividends []Dividend   `json:"dividends"`
	Error     *SourceError `json:"error,omitempty"`
}

// Source implements Partial
func (RightsAndBenefits) Source() source.Source { return source.RightsBenefits }

// Failure implements Partial
func (r RightsAndBenefits) Failure() *SourceError { return r.Error }

// StatementFile is a financial statement document link with metadata derived
// from its file name
type StatementFile struct {
	URL      string      `json:"url"`
	Year     null.String `json:"year"`
	Period   string      `json:"period"`
	Language string      `json:"language"`
	Type     string      `json:"type"`
}

// FinancialStatementIndex lists the downloadable statement documents
type FinancialStatementIndex struct {
	Symbol     Symbol          `json:"symbol"`
	Statements []StatementFile `json:"financial_statements"`
	Error      *SourceError    `json:"error,omitempty"`
}

// Source implements Partial
func (FinancialStatementIndex) Source() source.Source { return source.FinancialStatements }

// Failure implements Partial
func (f FinancialStatementIndex) Failure() *SourceError { return f.Error }

// PricePoint is one entry of the price chart
type PricePoint struct {
	Date   null.String `json:"date"`
	Open   null.Float  `json:"open"`
	High   null.Float  `json:"high"`
	Low    null.Float  `json:"low"`
	Close  null.Float  `json:"close"`
	Price  null.Float  `json:"price"`
	Volume null.Float  `json:"volume"`
	Value  null.Float  `json:"value"`

	// Extra keeps upstream fields that have no column above
	Extra map[string]any `json:"extra,omitempty"`
}

// HistoricalPrices holds the price chart series
type HistoricalPrices struct {
	Symbol Symbol       `json:"symbol"`
	Prices []PricePoint `json:"historical_prices"`
	Error  *SourceError `json:"error,omitempty"`
}

// Source implements Partial
func (HistoricalPrices) Source() source.Source { return source.HistoricalTrading }

// Failure implements Partial
func (h HistoricalPrices) Failure() *SourceError { return h.Error }
