package ledger

import (
	"context"
	"fmt"
	"sync"
)

// MemoryTable is an in-process Table. It backs the "memory" ledger backend
// and the tests.
type MemoryTable struct {
	mu     sync.Mutex
	sheets map[string][][]string
}

// NewMemoryTable returns an empty table.
func NewMemoryTable() *MemoryTable {
	return &MemoryTable{sheets: make(map[string][][]string)}
}

// Seed replaces the contents of sheet.
func (m *MemoryTable) Seed(sheet string, rows [][]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sheets[sheet] = cloneRows(rows)
}

func (m *MemoryTable) AppendRow(_ context.Context, sheet string, row []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sheets[sheet] = append(m.sheets[sheet], append([]string(nil), row...))
	return nil
}

func (m *MemoryTable) ReadRows(_ context.Context, sheet string) ([][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneRows(m.sheets[sheet]), nil
}

func (m *MemoryTable) DeleteRow(_ context.Context, sheet string, row int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.sheets[sheet]
	if row < 1 || row > len(rows) {
		return fmt.Errorf("%w: %s row %d", ErrOutOfRange, sheet, row)
	}
	m.sheets[sheet] = append(rows[:row-1:row-1], rows[row:]...)
	return nil
}

func (m *MemoryTable) ReadCell(_ context.Context, sheet, column string, row int) (string, error) {
	col, err := ColumnIndex(column)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.sheets[sheet]
	if row < 1 || row > len(rows) {
		return "", nil
	}
	return Cell(rows[row-1], col), nil
}

func (m *MemoryTable) WriteCell(_ context.Context, sheet, column string, row int, value string) error {
	col, err := ColumnIndex(column)
	if err != nil {
		return err
	}
	if row < 1 {
		return fmt.Errorf("%w: %s row %d", ErrOutOfRange, sheet, row)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.sheets[sheet]
	for len(rows) < row {
		rows = append(rows, nil)
	}
	for len(rows[row-1]) <= col {
		rows[row-1] = append(rows[row-1], "")
	}
	rows[row-1][col] = value
	m.sheets[sheet] = rows
	return nil
}

func cloneRows(rows [][]string) [][]string {
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = append([]string(nil), r...)
	}
	return out
}
