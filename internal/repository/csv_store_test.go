package repository

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"ai-server/internal/domain"
)

func newTestStore(t *testing.T) (*CSVStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	store, err := NewCSVStore(path)
	require.NoError(t, err)
	return store, path
}

func readAll(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestNewCSVStore_Validation(t *testing.T) {
	_, err := NewCSVStore("  ")
	require.Error(t, err)
}

func TestNewCSVStore_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out", "data.csv")
	_, err := NewCSVStore(path)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Dir(path))
	require.NoError(t, err)
}

func TestAppendRecord_WritesHeaderOnFirstAppend(t *testing.T) {
	store, path := newTestStore(t)

	// File does not exist until the first append.
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))

	err = store.AppendRecord(context.Background(), domain.InvoiceRecord{
		Amount:   "500",
		Currency: "USD",
		DueDate:  "2025-08-31",
		Contact:  "billing@acme.com",
	})
	require.NoError(t, err)

	rows := readAll(t, path)
	require.Len(t, rows, 2)
	require.Equal(t, []string{"amount", "currency", "due_date", "description", "company", "contact"}, rows[0])
	require.Equal(t, []string{"500", "USD", "2025-08-31", "", "", "billing@acme.com"}, rows[1])
}

func TestAppendRecord_NoDuplicateHeader(t *testing.T) {
	store, path := newTestStore(t)

	require.NoError(t, store.AppendRecord(context.Background(), domain.InvoiceRecord{Amount: "1"}))
	require.NoError(t, store.AppendRecord(context.Background(), domain.InvoiceRecord{Amount: "2"}))

	rows := readAll(t, path)
	require.Len(t, rows, 3)
	require.Equal(t, "1", rows[1][0])
	require.Equal(t, "2", rows[2][0])
}

func TestAppendRecord_RoundTripQuoting(t *testing.T) {
	store, path := newTestStore(t)

	record := domain.InvoiceRecord{
		Amount:      "123.45",
		Currency:    "EUR",
		DueDate:     "2025-08-31",
		Description: "August invoice, cloud services\nsecond line",
		Company:     `Acme "International" GmbH`,
		Contact:     "billing@acme.com",
	}
	require.NoError(t, store.AppendRecord(context.Background(), record))

	rows := readAll(t, path)
	require.Len(t, rows, 2)
	require.Equal(t, record.Columns(), rows[1])
}

func TestAppendRecord_AppendsToExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte("amount,currency,due_date,description,company,contact\n9,USD,,,,\n"), 0o644))

	store, err := NewCSVStore(path)
	require.NoError(t, err)
	require.NoError(t, store.AppendRecord(context.Background(), domain.InvoiceRecord{Amount: "10", Currency: "EUR"}))

	rows := readAll(t, path)
	require.Len(t, rows, 3)
	require.Equal(t, "9", rows[1][0])
	require.Equal(t, "10", rows[2][0])
}

func TestAppendRecord_OpenFailure(t *testing.T) {
	dir := t.TempDir()
	// The path is a directory, so the open fails and no row is written.
	store, err := NewCSVStore(filepath.Join(dir, "sub"))
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))

	err = store.AppendRecord(context.Background(), domain.InvoiceRecord{Amount: "1"})
	require.Error(t, err)
}
