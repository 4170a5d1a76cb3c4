package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"setfetch/internal/batch"
	"setfetch/internal/coordinator"
	"setfetch/internal/extract"
	"setfetch/internal/fetcher"
	"setfetch/internal/ratelimit"
	"setfetch/internal/record"
	"setfetch/internal/snapshot"
	"setfetch/internal/source"
	"setfetch/internal/testutil"
)

// newUpstream serves the fixture pages for every symbol. Symbols listed in
// noPrices get a 404 from the price chart API.
func newUpstream(t *testing.T, noPrices ...string) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		switch {
		case strings.HasSuffix(path, "/factsheet"):
			writeBody(w, "text/html; charset=utf-8", testutil.FactsheetPage)
		case strings.HasSuffix(path, "/company-highlights"):
			writeBody(w, "text/html; charset=utf-8", testutil.HighlightsPage)
		case strings.HasSuffix(path, "/financial-position"):
			writeBody(w, "text/html; charset=utf-8", testutil.StatementsPage)
		case strings.HasPrefix(path, "/api/set/company-rights-and-benefits/"):
			writeBody(w, "application/json", testutil.RightsPayload)
		case path == "/api/set/stock/price-chart":
			for _, sym := range noPrices {
				if r.URL.Query().Get("symbol") == sym {
					http.NotFound(w, r)
					return
				}
			}
			writeBody(w, "application/json", testutil.PricesPayload)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func writeBody(w http.ResponseWriter, contentType, body string) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

// TestIntegration_BatchToSnapshots runs the full pipeline against a mock
// upstream and checks what ends up in the snapshot store
func TestIntegration_BatchToSnapshots(t *testing.T) {
	server := newUpstream(t, "AOT")
	logger := testutil.QuietLogger()

	transport := fetcher.NewHTTPTransport(
		fetcher.WithRetryPolicy(fetcher.RetryPolicy{MaxRetries: 2, Timeout: 5 * time.Second, BackoffBase: time.Millisecond}),
		fetcher.WithLogger(logger),
	)
	defer transport.Close()

	limiter := ratelimit.New(ratelimit.Delays{Rendered: time.Millisecond, API: time.Millisecond}, logger)
	coord, err := coordinator.New(
		coordinator.Transports{HTTP: transport},
		limiter,
		extract.Defaults(server.URL),
		coordinator.Options{BaseURL: server.URL},
		logger,
	)
	if err != nil {
		t.Fatalf("coordinator.New() error: %v", err)
	}

	fsys := afero.NewMemMapFs()
	store := snapshot.NewFileStore(fsys, "snapshots", snapshot.FormatJSON, logger)
	runner := batch.New(coord, store, batch.Options{}, logger)

	result, err := runner.Run(context.Background(), []string{"ptt", " aot ", "PTT"})
	if err != nil {
		t.Fatalf("Run() returned unexpected error: %v", err)
	}

	if !reflect.DeepEqual(result.Symbols, []record.Symbol{"PTT", "AOT"}) {
		t.Errorf("Symbols = %v, want [PTT AOT]", result.Symbols)
	}
	if !reflect.DeepEqual(result.Failed, []record.Symbol{"AOT"}) {
		t.Errorf("Failed = %v, want [AOT]", result.Failed)
	}

	ptt, err := store.Load(context.Background(), "PTT")
	if err != nil {
		t.Fatalf("Load(PTT) error: %v", err)
	}
	if ptt.Status != record.StatusOK {
		t.Errorf("PTT status = %q, failed sources %v", ptt.Status, ptt.FailedSources)
	}
	if ptt.Factsheet.CompanyName.String != "PTT PUBLIC COMPANY LIMITED" {
		t.Errorf("company name = %v", ptt.Factsheet.CompanyName)
	}
	if ptt.Factsheet.Price.Float64 != 34.5 {
		t.Errorf("price = %v, want 34.5", ptt.Factsheet.Price)
	}
	if got := len(ptt.CompanyHighlights.Financials); got != 2 {
		t.Errorf("highlights has %d years, want 2", got)
	}
	if got := len(ptt.RightsBenefits.Dividends); got != 1 {
		t.Errorf("dividends = %d, want 1", got)
	}
	if got := len(ptt.FinancialStatements.Statements); got != 2 {
		t.Errorf("statements = %d, want 2", got)
	}
	if got := len(ptt.HistoricalTrading.Prices); got != 2 {
		t.Errorf("prices = %d, want 2", got)
	}

	aot, err := store.Load(context.Background(), "AOT")
	if err != nil {
		t.Fatalf("Load(AOT) error: %v", err)
	}
	if aot.Status != record.StatusPartial {
		t.Errorf("AOT status = %q, want partial", aot.Status)
	}
	if !reflect.DeepEqual(aot.FailedSources, []source.Source{source.HistoricalTrading}) {
		t.Errorf("AOT failed sources = %v", aot.FailedSources)
	}
	if aot.HistoricalTrading.Error == nil || aot.HistoricalTrading.Error.Kind != record.ErrorKindPermanent {
		t.Errorf("AOT historical error = %+v, want a permanent failure", aot.HistoricalTrading.Error)
	}
	if len(aot.CompanyHighlights.Financials) != 2 {
		t.Error("a failed source discarded data from the other sources")
	}
}

// isolateRun keeps run away from real config files and slows nothing down
func isolateRun(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Setenv("SETFETCH_DELAYS_API", "1ms")
	t.Setenv("SETFETCH_DELAYS_RENDERED", "1ms")
	return dir
}

func TestRun_ExitCodes(t *testing.T) {
	server := newUpstream(t, "AOT")

	tests := []struct {
		name       string
		args       []string
		wantCode   int
		wantOutput []string
	}{
		{
			name:       "all symbols complete",
			args:       []string{"--store", "none", "PTT"},
			wantCode:   exitOK,
			wantOutput: []string{"PTT", "ok", "1 symbols, 0 failed"},
		},
		{
			name:       "one symbol partial",
			args:       []string{"--store", "none", "--symbols", "PTT,AOT"},
			wantCode:   exitPartial,
			wantOutput: []string{"AOT", "partial", "historical_trading", "2 symbols, 1 failed"},
		},
		{
			name:     "no symbols",
			args:     []string{"--store", "none"},
			wantCode: exitError,
		},
		{
			name:     "invalid store",
			args:     []string{"--store", "s3", "PTT"},
			wantCode: exitError,
		},
		{
			name:     "unknown flag",
			args:     []string{"--bogus"},
			wantCode: exitError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateRun(t)

			args := append([]string{
				"--base-url", server.URL,
				"--no-render",
				"--inter-symbol-delay", "0s",
				"--log-level", "error",
			}, tt.args...)

			var stdout, stderr bytes.Buffer
			code := run(context.Background(), args, &stdout, &stderr)
			if code != tt.wantCode {
				t.Fatalf("run() = %d, want %d\nstdout: %s\nstderr: %s", code, tt.wantCode, stdout.String(), stderr.String())
			}
			for _, want := range tt.wantOutput {
				if !strings.Contains(stdout.String(), want) {
					t.Errorf("output missing %q:\n%s", want, stdout.String())
				}
			}
		})
	}
}

func TestRun_WritesSnapshots(t *testing.T) {
	server := newUpstream(t)
	dir := isolateRun(t)
	out := filepath.Join(dir, "out")

	args := []string{
		"--base-url", server.URL,
		"--no-render",
		"--inter-symbol-delay", "0s",
		"--out", out,
		"--format", "yaml",
		"--log-level", "error",
		"PTT",
	}

	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), args, &stdout, &stderr); code != exitOK {
		t.Fatalf("run() = %d\nstderr: %s", code, stderr.String())
	}

	data, err := os.ReadFile(filepath.Join(out, "PTT.yaml"))
	if err != nil {
		t.Fatalf("snapshot not written: %v", err)
	}
	rec, err := snapshot.Decode(data, snapshot.FormatYAML)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if rec.Symbol != "PTT" || rec.Status != record.StatusOK {
		t.Errorf("snapshot = %s %s, want PTT ok", rec.Symbol, rec.Status)
	}
}

func TestRun_SQLiteStore(t *testing.T) {
	server := newUpstream(t)
	dir := isolateRun(t)
	dbPath := filepath.Join(dir, "snapshots.db")

	args := []string{
		"--base-url", server.URL,
		"--no-render",
		"--inter-symbol-delay", "0s",
		"--store", "sqlite",
		"--sqlite-path", dbPath,
		"--log-level", "error",
		"PTT",
	}

	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), args, &stdout, &stderr); code != exitOK {
		t.Fatalf("run() = %d\nstderr: %s", code, stderr.String())
	}

	db, err := snapshot.OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("OpenSQLite() error: %v", err)
	}
	defer db.Close()

	rec, err := db.Load(context.Background(), "PTT")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if rec.Status != record.StatusOK {
		t.Errorf("status = %q, want ok", rec.Status)
	}
}
