package testutil

import "errors"

// ErrNotSaved is returned by MockStore.Load for unknown symbols
var ErrNotSaved = errors.New("record not saved")

// FactsheetPage is a minimal rendered factsheet
const FactsheetPage = `<html><body>
<h1 class="company-name">PTT PUBLIC COMPANY LIMITED</h1>
<span class="last-price">34.50</span>
<div class="stat"><div>มูลค่าหลักทรัพย์ตามราคาตลาด</div><div>982,834.12 ล้านบาท</div></div>
<table class="table-info">
  <tr><td>P/E (เท่า)</td><td>9.87</td></tr>
  <tr><td>อัตราเงินปันผลตอบแทน (%)</td><td>5.80</td></tr>
  <tr><td>สูงสุด 52 สัปดาห์</td><td>38.25</td></tr>
  <tr><td>ต่ำสุด 52 สัปดาห์</td><td>30.00</td></tr>
</table>
</body></html>`

// HighlightsPage holds a two-year highlights table
const HighlightsPage = `<html><body><table>
  <tr><th>ปี</th><th>รายได้รวม</th><th>กำไรสุทธิ</th><th>EPS</th><th>BVPS</th><th>ROE</th><th>NPM</th><th>P/E</th><th>P/BV</th></tr>
  <tr><td>2566</td><td>3,145,000</td><td>112,000</td><td>3.92</td><td>38.10</td><td>10.5</td><td>3.56</td><td>9.1</td><td>0.95</td></tr>
  <tr><td>2565</td><td>3,367,000</td><td>91,000</td><td>3.10</td><td>36.40</td><td>8.2</td><td>2.90</td><td>10.4</td><td>1.01</td></tr>
</table></body></html>`

// RightsPayload holds one dividend and one unrelated right
const RightsPayload = `{"data": [
  {"rightsType": "เงินปันผล", "entitlementYear": 2024, "benefitType": "เงินสด", "xdDate": "2024-03-01", "paymentDate": "2024-04-25", "amount": 1.4},
  {"rightsType": "ประชุมผู้ถือหุ้น", "entitlementYear": 2024}
]}`

// StatementsPage lists two statement documents for PTT
const StatementsPage = `<html><body>
<a href="/files/ptt_2023_q2_en.pdf">Q2</a>
<a href="/files/ptt_yearly_th.xlsx">Yearly</a>
</body></html>`

// PricesPayload holds two monthly price points
const PricesPayload = `{"price": [
  {"date": "2025-01-31", "open": 34.0, "high": 34.75, "low": 33.5, "close": 34.5, "volume": 1200000, "value": 41400000},
  {"date": "2025-02-28", "open": 34.5, "high": 35.25, "low": 34.0, "close": 35.0, "volume": 980000, "value": 34300000}
]}`
