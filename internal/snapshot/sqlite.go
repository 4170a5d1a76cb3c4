package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Register sqlite driver

	"setfetch/internal/record"
)

const schema = `CREATE TABLE IF NOT EXISTS snapshots (
	symbol      TEXT PRIMARY KEY,
	captured_at TEXT NOT NULL,
	status      TEXT NOT NULL,
	document    TEXT NOT NULL
)`

// SQLiteStore keeps one row per symbol holding the JSON document
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and if needed creates) the snapshot database at dsn
func OpenSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// every connection to :memory: is a separate database
	if dsn == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		schema,
	} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %q: %w", stmt, err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save upserts the snapshot; the latest save wins
func (s *SQLiteStore) Save(ctx context.Context, rec record.Aggregated) error {
	if err := validSymbol(rec.Symbol); err != nil {
		return err
	}

	doc, err := encodeJSON(rec)
	if err != nil {
		return err
	}

	const query = `INSERT INTO snapshots (symbol, captured_at, status, document)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			captured_at = excluded.captured_at,
			status = excluded.status,
			document = excluded.document`

	_, err = s.db.ExecContext(ctx, query,
		rec.Symbol.String(),
		rec.Timestamp.UTC().Format(time.RFC3339Nano),
		string(rec.Status),
		string(doc),
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Load returns the stored snapshot for symbol
func (s *SQLiteStore) Load(ctx context.Context, symbol record.Symbol) (record.Aggregated, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM snapshots WHERE symbol = ?`, symbol.String()).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return record.Aggregated{}, fmt.Errorf("%s: %w", symbol, ErrNotFound)
	}
	if err != nil {
		return record.Aggregated{}, fmt.Errorf("load snapshot: %w", err)
	}
	return Decode([]byte(doc), FormatJSON)
}
