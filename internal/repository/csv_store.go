package repository

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"ai-server/internal/domain"
)

// CSVStore appends invoice records to a flat CSV file, creating it with a
// header row on first use. Rows are RFC-4180 quoted so fields may contain
// commas and newlines.
type CSVStore struct {
	path string

	// mu serializes appends within this process so a row is never
	// interleaved with another writer's.
	mu sync.Mutex
}

// NewCSVStore creates the parent directory if missing. The file itself is
// created lazily on the first append.
func NewCSVStore(path string) (*CSVStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("repository: csv path must not be empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("repository: create csv dir: %w", err)
		}
	}
	return &CSVStore{path: path}, nil
}

// AppendRecord writes one record as a single CSV row. The header and row are
// encoded into memory first and written with one syscall, so a failed append
// leaves no partial line behind.
func (s *CSVStore) AppendRecord(_ context.Context, record domain.InvoiceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("repository: open csv: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("repository: stat csv: %w", err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if info.Size() == 0 {
		if err := w.Write(domain.InvoiceFields); err != nil {
			return fmt.Errorf("repository: encode csv header: %w", err)
		}
	}
	if err := w.Write(record.Columns()); err != nil {
		return fmt.Errorf("repository: encode csv row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("repository: encode csv row: %w", err)
	}

	if _, err := f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("repository: append csv row: %w", err)
	}
	return nil
}
