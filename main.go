package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"

	"setfetch/internal/batch"
	"setfetch/internal/browser"
	"setfetch/internal/config"
	"setfetch/internal/coordinator"
	"setfetch/internal/extract"
	"setfetch/internal/fetcher"
	"setfetch/internal/ratelimit"
	"setfetch/internal/snapshot"
)

// Exit codes
const (
	exitOK      = 0
	exitError   = 1
	exitPartial = 2
)

func main() {
	// Handle interrupt signals for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one batch and returns the process exit code
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags := config.Flags()
	flags.SetOutput(stderr)
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitError
	}

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load configuration: %v\n", err)
		return exitError
	}
	logger := newLogger(cfg.Log, stderr)

	httpTransport := fetcher.NewHTTPTransport(
		fetcher.WithRetryPolicy(cfg.RetryPolicy()),
		fetcher.WithUserAgent(cfg.UserAgent),
		fetcher.WithLogger(logger),
	)
	defer httpTransport.Close()

	transports := coordinator.Transports{HTTP: httpTransport}
	if cfg.Render.Enabled {
		chrome := browser.New(browser.Options{
			ExecPath:  cfg.Render.ChromePath,
			Headful:   cfg.Render.Headful,
			UserAgent: cfg.UserAgent,
			NoSandbox: cfg.Render.NoSandbox,
		}, logger)
		defer chrome.Close()
		transports.Rendered = fetcher.NewRenderedTransport(chrome, cfg.RenderedOptions(), logger)
	} else {
		logger.Info("rendering disabled, rendered sources use plain HTTP")
	}

	coord, err := coordinator.New(
		transports,
		ratelimit.New(cfg.RateDelays(), logger),
		extract.Defaults(cfg.BaseURL),
		coordinator.Options{
			BaseURL:       cfg.BaseURL,
			HistoryMonths: cfg.HistoryMonths,
			Granularity:   cfg.Granularity,
		},
		logger,
	)
	if err != nil {
		logger.Error("failed to create coordinator", "error", err)
		return exitError
	}

	store, closeStore, err := openStore(cfg.Snapshot, logger)
	if err != nil {
		logger.Error("failed to open snapshot store", "error", err)
		return exitError
	}
	defer closeStore()

	runner := batch.New(coord, store, cfg.BatchOptions(), logger)
	result, err := runner.Run(ctx, cfg.Symbols)
	if err != nil {
		logger.Error("batch rejected", "error", err)
		return exitError
	}

	printSummary(stdout, result)
	if !result.OK() {
		return exitPartial
	}
	return exitOK
}

// openStore returns the configured store, or nil when persistence is off
func openStore(cfg config.SnapshotConfig, logger *slog.Logger) (batch.Saver, func(), error) {
	noop := func() {}

	switch cfg.Store {
	case config.StoreNone:
		return nil, noop, nil
	case config.StoreSQLite:
		db, err := snapshot.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, noop, err
		}
		logger.Info("saving snapshots to sqlite", "path", cfg.SQLitePath)
		return db, func() { _ = db.Close() }, nil
	default:
		format, err := snapshot.ParseFormat(cfg.Format)
		if err != nil {
			return nil, noop, err
		}
		logger.Info("saving snapshots to files", "dir", cfg.Dir, "format", format)
		return snapshot.NewFileStore(afero.NewOsFs(), cfg.Dir, format, logger), noop, nil
	}
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func printSummary(w io.Writer, result batch.Result) {
	fmt.Fprintln(w, "================================================")
	for _, rec := range result.Ordered() {
		line := fmt.Sprintf("%-8s %s", rec.Symbol, rec.Status)
		if len(rec.FailedSources) > 0 {
			line += fmt.Sprintf("  failed: %v", rec.FailedSources)
		}
		if err, ok := result.PersistErrors[rec.Symbol]; ok {
			line += fmt.Sprintf("  not saved: %v", err)
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintln(w, "================================================")
	fmt.Fprintf(w, "%d symbols, %d failed (run %s, %s)\n",
		len(result.Symbols), len(result.Failed), result.RunID,
		result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond))
}
