package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/spf13/afero"

	"setfetch/internal/record"
)

// FileStore writes <dir>/<SYMBOL>.<ext> documents
type FileStore struct {
	fs     afero.Fs
	dir    string
	format Format
	logger *slog.Logger
}

// NewFileStore creates a store rooted at dir on the given filesystem. The
// directory is created on first save.
func NewFileStore(fsys afero.Fs, dir string, format Format, logger *slog.Logger) *FileStore {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if format == "" {
		format = FormatJSON
	}
	return &FileStore{fs: fsys, dir: dir, format: format, logger: logger}
}

// Path returns where the snapshot for symbol lives
func (s *FileStore) Path(symbol record.Symbol) string {
	return filepath.Join(s.dir, symbol.String()+s.format.Ext())
}

// Save writes the snapshot to a temporary file and renames it into place so
// readers never see a half-written document.
func (s *FileStore) Save(ctx context.Context, rec record.Aggregated) error {
	if err := validSymbol(rec.Symbol); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := Encode(rec, s.format)
	if err != nil {
		return err
	}

	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tmp, err := afero.TempFile(s.fs, s.dir, "."+rec.Symbol.String()+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	path := s.Path(rec.Symbol)
	if err := s.fs.Rename(tmpName, path); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}

	s.logger.Debug("snapshot saved", "symbol", rec.Symbol, "path", path, "bytes", len(data))
	return nil
}

// Load reads the snapshot for symbol
func (s *FileStore) Load(ctx context.Context, symbol record.Symbol) (record.Aggregated, error) {
	if err := validSymbol(symbol); err != nil {
		return record.Aggregated{}, err
	}
	if err := ctx.Err(); err != nil {
		return record.Aggregated{}, err
	}

	data, err := afero.ReadFile(s.fs, s.Path(symbol))
	if errors.Is(err, fs.ErrNotExist) {
		return record.Aggregated{}, fmt.Errorf("%s: %w", symbol, ErrNotFound)
	}
	if err != nil {
		return record.Aggregated{}, fmt.Errorf("failed to read snapshot: %w", err)
	}

	return Decode(data, s.format)
}
