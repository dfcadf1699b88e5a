// Package ledger mirrors committed signup transitions into an external
// tabular store: an append-only signup log and a schedule grid with one row
// per run.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrOutOfRange is returned for row numbers or cells outside the table.
var ErrOutOfRange = errors.New("ledger: row out of range")

// Table is the tabular store boundary. Rows are numbered from 1, the way
// spreadsheet users see them.
type Table interface {
	AppendRow(ctx context.Context, sheet string, row []string) error
	ReadRows(ctx context.Context, sheet string) ([][]string, error)
	DeleteRow(ctx context.Context, sheet string, row int) error
	ReadCell(ctx context.Context, sheet, column string, row int) (string, error)
	WriteCell(ctx context.Context, sheet, column string, row int, value string) error
}

// FindRow returns the 1-based number of the first row match accepts, or 0.
func FindRow(rows [][]string, match func([]string) bool) int {
	for i, row := range rows {
		if match(row) {
			return i + 1
		}
	}
	return 0
}

// FindLastRow returns the 1-based number of the last row match accepts, or 0.
func FindLastRow(rows [][]string, match func([]string) bool) int {
	for i := len(rows) - 1; i >= 0; i-- {
		if match(rows[i]) {
			return i + 1
		}
	}
	return 0
}

// Cell returns row[i] or "" when the row is short.
func Cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

// ColumnIndex converts a column letter ("A", "K", "AB") to a 0-based index.
func ColumnIndex(column string) (int, error) {
	column = strings.ToUpper(strings.TrimSpace(column))
	if column == "" {
		return 0, fmt.Errorf("ledger: empty column")
	}
	n := 0
	for _, r := range column {
		if r < 'A' || r > 'Z' {
			return 0, fmt.Errorf("ledger: invalid column %q", column)
		}
		n = n*26 + int(r-'A'+1)
	}
	return n - 1, nil
}

// ColumnLetter converts a 0-based index to a column letter.
func ColumnLetter(index int) string {
	var b []byte
	for n := index + 1; n > 0; n = (n - 1) / 26 {
		b = append([]byte{byte('A' + (n-1)%26)}, b...)
	}
	return string(b)
}
