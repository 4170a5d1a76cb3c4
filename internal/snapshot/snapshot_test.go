package snapshot

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"github.com/spf13/afero"

	"setfetch/internal/record"
	"setfetch/internal/source"
	"setfetch/internal/testutil"
)

var capturedAt = time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)

func sampleRecord(symbol record.Symbol, price float64) record.Aggregated {
	return record.NewAggregated(symbol, capturedAt, []record.Partial{
		record.FactSheet{
			Symbol:       symbol,
			CompanyName:  null.StringFrom("บริษัท ปตท. จำกัด (มหาชน)"),
			Price:        null.FloatFrom(price),
			MarketCap:    null.FloatFrom(982_834_120_000),
			Table:        map[string]string{"สูงสุด 52 สัปดาห์": "38.25", "Note": "<b>&</b>"},
			Ratios:       map[string]float64{"สูงสุด 52 สัปดาห์": 38.25},
			DividendInfo: map[string]string{},
		},
		record.CompanyHighlights{Symbol: symbol, Financials: []record.FinancialYear{
			{Year: null.IntFrom(2566), Revenue: null.FloatFrom(3145000.5)},
		}},
		record.RightsAndBenefits{Symbol: symbol, Dividends: []record.Dividend{
			{Year: null.IntFrom(2024), XDDate: null.StringFrom("2024-03-01"), AmountPerShare: null.FloatFrom(1.4)},
		}},
		record.FinancialStatementIndex{Symbol: symbol, Statements: []record.StatementFile{
			{URL: "https://www.set.or.th/files/ptt_2023_q2_en.pdf", Year: null.StringFrom("2023"), Period: "Q2", Language: "en", Type: "PDF"},
		}},
		record.Empty(source.HistoricalTrading, symbol, &record.SourceError{Kind: record.ErrorKindTransient, Message: "server error", Attempts: 3}),
	})
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"json", FormatJSON, false},
		{"", FormatJSON, false},
		{"YAML", FormatYAML, false},
		{"yml", FormatYAML, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	for _, format := range []Format{FormatJSON, FormatYAML} {
		t.Run(string(format), func(t *testing.T) {
			fsys := afero.NewMemMapFs()
			store := NewFileStore(fsys, "out/snapshots", format, testutil.QuietLogger())
			ctx := context.Background()
			rec := sampleRecord("PTT", 34.5)

			if err := store.Save(ctx, rec); err != nil {
				t.Fatalf("Save() returned unexpected error: %v", err)
			}

			got, err := store.Load(ctx, "PTT")
			if err != nil {
				t.Fatalf("Load() returned unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, rec) {
				t.Errorf("Load() = %+v\nwant %+v", got, rec)
			}

			if ok, _ := afero.Exists(fsys, "out/snapshots/PTT"+format.Ext()); !ok {
				t.Error("snapshot file not at the expected path")
			}
			entries, err := afero.ReadDir(fsys, "out/snapshots")
			if err != nil {
				t.Fatalf("ReadDir() error: %v", err)
			}
			if len(entries) != 1 {
				t.Errorf("directory has %d entries, want only the snapshot", len(entries))
			}
		})
	}
}

func TestFileStore_LastWriteWins(t *testing.T) {
	store := NewFileStore(afero.NewMemMapFs(), "snap", FormatJSON, testutil.QuietLogger())
	ctx := context.Background()

	if err := store.Save(ctx, sampleRecord("PTT", 34.5)); err != nil {
		t.Fatalf("first Save() error: %v", err)
	}
	if err := store.Save(ctx, sampleRecord("PTT", 36.0)); err != nil {
		t.Fatalf("second Save() error: %v", err)
	}

	got, err := store.Load(ctx, "PTT")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got.Factsheet.Price.Float64 != 36.0 {
		t.Errorf("Price = %v, want the latest value 36", got.Factsheet.Price)
	}
}

func TestFileStore_NotFound(t *testing.T) {
	store := NewFileStore(afero.NewMemMapFs(), "snap", FormatJSON, nil)

	_, err := store.Load(context.Background(), "NONE")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}
}

func TestFileStore_InvalidSymbol(t *testing.T) {
	store := NewFileStore(afero.NewMemMapFs(), "snap", FormatJSON, nil)

	for _, sym := range []record.Symbol{"", "..", "A/B"} {
		if err := store.Save(context.Background(), record.Aggregated{Symbol: sym}); err == nil {
			t.Errorf("Save(%q) succeeded, want error", sym)
		}
	}
}

func TestEncode_HumanReadable(t *testing.T) {
	rec := sampleRecord("PTT", 34.5)

	data, err := Encode(rec, FormatJSON)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	if !bytes.Contains(data, []byte("บริษัท ปตท.")) {
		t.Error("non-ASCII text was escaped")
	}
	if !bytes.Contains(data, []byte("<b>&</b>")) {
		t.Error("markup characters were escaped")
	}
	if !bytes.Contains(data, []byte("\n  \"symbol\": \"PTT\"")) {
		t.Error("JSON output is not indented")
	}

	yml, err := Encode(rec, FormatYAML)
	if err != nil {
		t.Fatalf("Encode(yaml) error: %v", err)
	}
	text := string(yml)
	if !strings.Contains(text, "symbol: PTT") {
		t.Errorf("YAML output is not block style:\n%s", text)
	}
	if !strings.Contains(text, "failed_sources:\n  - historical_trading") {
		t.Errorf("failed_sources not rendered as a block list:\n%s", text)
	}
}

func TestSQLiteStore(t *testing.T) {
	store, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite() error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	if _, err := store.Load(ctx, "PTT"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() on empty store error = %v, want ErrNotFound", err)
	}

	first := sampleRecord("PTT", 34.5)
	if err := store.Save(ctx, first); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	got, err := store.Load(ctx, "PTT")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !reflect.DeepEqual(got, first) {
		t.Errorf("Load() = %+v\nwant %+v", got, first)
	}

	if err := store.Save(ctx, sampleRecord("PTT", 36.0)); err != nil {
		t.Fatalf("second Save() error: %v", err)
	}
	got, err = store.Load(ctx, "PTT")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got.Factsheet.Price.Float64 != 36.0 {
		t.Errorf("Price = %v, want 36 after upsert", got.Factsheet.Price)
	}

	var rows int
	if err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM snapshots").Scan(&rows); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if rows != 1 {
		t.Errorf("snapshots has %d rows, want 1", rows)
	}
}
