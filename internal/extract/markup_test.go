package extract

import (
	"testing"

	"setfetch/internal/fetcher"
	"setfetch/internal/record"
)

const factsheetPage = `<html><body>
<h1 class="company-name">PTT PUBLIC COMPANY LIMITED</h1>
<div class="quote"><span class="last-price">34.50</span></div>
<div class="stat">
  <div>มูลค่าหลักทรัพย์ตามราคาตลาด</div>
  <div>982,834.12 ล้านบาท</div>
</div>
<table class="table-info">
  <tr><td>P/E (เท่า)</td><td>9.87</td></tr>
  <tr><td>อัตราเงินปันผลตอบแทน (%)</td><td>5.80%</td></tr>
  <tr><td>สูงสุด 52 สัปดาห์</td><td>38.25</td></tr>
  <tr><td>ต่ำสุด 52 สัปดาห์</td><td>30.00</td></tr>
  <tr><td>ปริมาณซื้อขายเฉลี่ย 10 วัน</td><td>45,123,400</td></tr>
  <tr><td>นโยบายเงินปันผล</td><td>-</td></tr>
</table>
</body></html>`

func markup(body string) fetcher.Outcome {
	return fetcher.Success([]byte(body), fetcher.ContentMarkup, 200, 1)
}

func TestFactSheetExtractor(t *testing.T) {
	fs, ok := NewFactSheetExtractor().Extract("PTT", markup(factsheetPage)).(record.FactSheet)
	if !ok {
		t.Fatal("Extract() did not return a FactSheet")
	}
	if fs.Error != nil {
		t.Fatalf("unexpected error marker: %v", fs.Error)
	}

	if fs.CompanyName.String != "PTT PUBLIC COMPANY LIMITED" {
		t.Errorf("CompanyName = %v", fs.CompanyName)
	}
	if !fs.Price.Valid || fs.Price.Float64 != 34.5 {
		t.Errorf("Price = %v, want 34.5", fs.Price)
	}
	if !fs.MarketCap.Valid || fs.MarketCap.Float64 != 982_834_120_000 {
		t.Errorf("MarketCap = %v, want 982834120000", fs.MarketCap)
	}
	if fs.High52Week.Float64 != 38.25 || fs.Low52Week.Float64 != 30 {
		t.Errorf("52 week range = %v/%v, want 38.25/30", fs.High52Week, fs.Low52Week)
	}
	if !fs.AvgVolume10D.Valid || fs.AvgVolume10D.Int64 != 45_123_400 {
		t.Errorf("AvgVolume10D = %v, want 45123400", fs.AvgVolume10D)
	}

	if len(fs.Table) != 6 {
		t.Errorf("Table has %d rows, want 6", len(fs.Table))
	}
	if len(fs.Ratios) != 5 {
		t.Errorf("Ratios = %v, want 5 numeric entries", fs.Ratios)
	}
	if _, ok := fs.Ratios["นโยบายเงินปันผล"]; ok {
		t.Error("placeholder value was coerced into a ratio")
	}
	if len(fs.DividendInfo) != 2 {
		t.Errorf("DividendInfo = %v, want 2 entries", fs.DividendInfo)
	}
}

func TestFactSheetExtractor_PartialPage(t *testing.T) {
	page := `<html><body><span class="last-price">12.40</span></body></html>`

	fs := NewFactSheetExtractor().Extract("ABC", markup(page)).(record.FactSheet)

	if fs.Error != nil {
		t.Fatalf("a page with missing fields must not be an error: %v", fs.Error)
	}
	if fs.Price.Float64 != 12.4 {
		t.Errorf("Price = %v, want 12.4", fs.Price)
	}
	if fs.MarketCap.Valid || fs.High52Week.Valid || fs.AvgVolume10D.Valid {
		t.Error("missing fields should be null")
	}
	if fs.Table == nil || fs.Ratios == nil || fs.DividendInfo == nil {
		t.Error("maps should be empty, not nil")
	}
}

func TestFactSheetExtractor_FailedOutcome(t *testing.T) {
	out := fetcher.Failure(fetcher.NewServerError(503), 3)

	fs := NewFactSheetExtractor().Extract("ABC", out).(record.FactSheet)

	if fs.Error == nil || fs.Error.Kind != record.ErrorKindTransient {
		t.Fatalf("Error = %v, want transient marker", fs.Error)
	}
	if fs.Error.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", fs.Error.Attempts)
	}
	if fs.Symbol != "ABC" {
		t.Errorf("Symbol = %q, want ABC", fs.Symbol)
	}
}

func TestLabelSibling(t *testing.T) {
	page := `<table><tr><th>มูลค่าตลาด (ล้านบาท)</th><td>1,500.00</td></tr></table>`
	e := NewFactSheetExtractor()

	fs := e.Extract("ABC", markup(page)).(record.FactSheet)
	if fs.MarketCap.Float64 != 1_500_000_000 {
		t.Errorf("MarketCap = %v, want 1.5e9", fs.MarketCap)
	}
}

const highlightsPage = `<html><body>
<table><tr><td>ข่าว</td><td>ไม่เกี่ยวข้อง</td></tr></table>
<table>
  <tr><th>ปี</th><th>รายได้รวม</th><th>กำไรสุทธิ</th><th>EPS</th><th>BVPS</th><th>ROE</th><th>NPM</th><th>P/E</th><th>P/BV</th></tr>
  <tr><td>2566</td><td>3,145,000.50</td><td>112,000</td><td>3.92</td><td>38.10</td><td>10.5%</td><td>3.56</td><td>9.1</td><td>0.95</td></tr>
  <tr><td>2565</td><td>-</td><td>91,000</td><td>3.10</td><td>-</td><td>8.2</td><td>2.90</td><td>-</td><td>1.01</td></tr>
  <tr><td>-</td><td>-</td><td>-</td><td>-</td><td>-</td><td>-</td><td>-</td><td>-</td><td>-</td></tr>
  <tr><td>หมายเหตุ</td></tr>
</table>
</body></html>`

func TestHighlightsExtractor(t *testing.T) {
	ch, ok := NewHighlightsExtractor().Extract("PTT", markup(highlightsPage)).(record.CompanyHighlights)
	if !ok {
		t.Fatal("Extract() did not return CompanyHighlights")
	}
	if ch.Error != nil {
		t.Fatalf("unexpected error marker: %v", ch.Error)
	}
	if len(ch.Financials) != 2 {
		t.Fatalf("got %d rows, want 2", len(ch.Financials))
	}

	latest := ch.Financials[0]
	if latest.Year.Int64 != 2566 || latest.Revenue.Float64 != 3145000.5 || latest.ROE.Float64 != 10.5 {
		t.Errorf("unexpected first row: %+v", latest)
	}

	prior := ch.Financials[1]
	if prior.Revenue.Valid || prior.BVPS.Valid || prior.PE.Valid {
		t.Errorf("placeholder cells should be null: %+v", prior)
	}
	if prior.NetProfit.Float64 != 91000 {
		t.Errorf("NetProfit = %v, want 91000", prior.NetProfit)
	}
}

func TestHighlightsExtractor_MultipleTables(t *testing.T) {
	page := `<html><body>
<table><tr><td>
  <table>
    <tr><th>ปี</th><th>รายได้รวม</th></tr>
    <tr><td>2566</td><td>100</td><td>10</td><td>1</td><td>5</td><td>2</td><td>3</td><td>9</td><td>1.1</td></tr>
  </table>
</td></tr></table>
<table>
  <tr><th>ปี</th><th>รายได้รวม</th></tr>
  <tr><td>2565</td><td>90</td><td>9</td><td>1</td><td>5</td><td>2</td><td>3</td><td>9</td><td>1.2</td></tr>
</table>
</body></html>`

	ch := NewHighlightsExtractor().Extract("PTT", markup(page)).(record.CompanyHighlights)
	if len(ch.Financials) != 2 {
		t.Fatalf("got %d rows, want one per matching table", len(ch.Financials))
	}
	if ch.Financials[0].Year.Int64 != 2566 || ch.Financials[1].Year.Int64 != 2565 {
		t.Errorf("years = %v, %v; want 2566, 2565 in document order",
			ch.Financials[0].Year, ch.Financials[1].Year)
	}
}

func TestHighlightsExtractor_NoTable(t *testing.T) {
	ch := NewHighlightsExtractor().Extract("PTT", markup("<p>maintenance</p>")).(record.CompanyHighlights)
	if ch.Error != nil {
		t.Errorf("unexpected error marker: %v", ch.Error)
	}
	if ch.Financials == nil || len(ch.Financials) != 0 {
		t.Errorf("Financials = %v, want empty list", ch.Financials)
	}
}

func TestEmptyBodyIsUnavailable(t *testing.T) {
	for src, e := range Defaults("https://www.set.or.th") {
		t.Run(string(src), func(t *testing.T) {
			p := e.Extract("PTT", fetcher.Success([]byte("  "), fetcher.ContentMarkup, 200, 1))
			if p.Source() != src {
				t.Errorf("Source() = %s, want %s", p.Source(), src)
			}
			if p.Failure() == nil || p.Failure().Kind != record.ErrorKindUnavailable {
				t.Errorf("Failure() = %v, want unavailable", p.Failure())
			}
		})
	}
}
