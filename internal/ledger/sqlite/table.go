// Package sqlite is a local ledger.Table for deployments without a shared
// spreadsheet. Each sheet is an ordered list of rows stored as JSON arrays.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/galdahar56/raid-logger-bot-2/internal/ledger"
	store "github.com/galdahar56/raid-logger-bot-2/internal/persistence/sqlite"
)

const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS ledger_rows (
	id    INTEGER PRIMARY KEY AUTOINCREMENT,
	sheet TEXT NOT NULL,
	cells TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ledger_rows_sheet ON ledger_rows(sheet, id);
`

// Table implements ledger.Table on SQLite.
type Table struct {
	db *sql.DB
}

// Open opens (and migrates) the database at path.
func Open(ctx context.Context, path string) (*Table, error) {
	db, err := store.Open(path, store.DefaultConfig())
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx, db, schemaVersion, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ledger sqlite: %w", err)
	}
	return &Table{db: db}, nil
}

// DB exposes the handle for integrity checks.
func (t *Table) DB() *sql.DB { return t.db }

// Close closes the database.
func (t *Table) Close() error { return t.db.Close() }

func (t *Table) AppendRow(ctx context.Context, sheet string, row []string) error {
	cells, err := encodeCells(row)
	if err != nil {
		return err
	}
	_, err = t.db.ExecContext(ctx, `INSERT INTO ledger_rows (sheet, cells) VALUES (?, ?)`, sheet, cells)
	return err
}

func (t *Table) ReadRows(ctx context.Context, sheet string) ([][]string, error) {
	rows, err := t.db.QueryContext(ctx, `SELECT cells FROM ledger_rows WHERE sheet = ? ORDER BY id`, sheet)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][]string
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		row, err := decodeCells(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (t *Table) DeleteRow(ctx context.Context, sheet string, row int) error {
	if row < 1 {
		return fmt.Errorf("%w: %s row %d", ledger.ErrOutOfRange, sheet, row)
	}
	res, err := t.db.ExecContext(ctx, `
		DELETE FROM ledger_rows WHERE id = (
			SELECT id FROM ledger_rows WHERE sheet = ? ORDER BY id LIMIT 1 OFFSET ?
		)`, sheet, row-1)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s row %d", ledger.ErrOutOfRange, sheet, row)
	}
	return nil
}

func (t *Table) ReadCell(ctx context.Context, sheet, column string, row int) (string, error) {
	col, err := ledger.ColumnIndex(column)
	if err != nil {
		return "", err
	}
	_, cells, err := rowAt(ctx, t.db, sheet, row)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return ledger.Cell(cells, col), nil
}

func (t *Table) WriteCell(ctx context.Context, sheet, column string, row int, value string) error {
	col, err := ledger.ColumnIndex(column)
	if err != nil {
		return err
	}
	if row < 1 {
		return fmt.Errorf("%w: %s row %d", ledger.ErrOutOfRange, sheet, row)
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM ledger_rows WHERE sheet = ?`, sheet).Scan(&count); err != nil {
		return err
	}
	for ; count < row; count++ {
		if _, err := tx.ExecContext(ctx, `INSERT INTO ledger_rows (sheet, cells) VALUES (?, '[]')`, sheet); err != nil {
			return err
		}
	}

	id, cells, err := rowAt(ctx, tx, sheet, row)
	if err != nil {
		return err
	}
	for len(cells) <= col {
		cells = append(cells, "")
	}
	cells[col] = value
	encoded, err := encodeCells(cells)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE ledger_rows SET cells = ? WHERE id = ?`, encoded, id); err != nil {
		return err
	}
	return tx.Commit()
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func rowAt(ctx context.Context, q querier, sheet string, row int) (int64, []string, error) {
	if row < 1 {
		return 0, nil, sql.ErrNoRows
	}
	var (
		id  int64
		raw string
	)
	err := q.QueryRowContext(ctx,
		`SELECT id, cells FROM ledger_rows WHERE sheet = ? ORDER BY id LIMIT 1 OFFSET ?`,
		sheet, row-1,
	).Scan(&id, &raw)
	if err != nil {
		return 0, nil, err
	}
	cells, err := decodeCells(raw)
	return id, cells, err
}

func encodeCells(row []string) (string, error) {
	if row == nil {
		row = []string{}
	}
	b, err := json.Marshal(row)
	return string(b), err
}

func decodeCells(raw string) ([]string, error) {
	var cells []string
	if err := json.Unmarshal([]byte(raw), &cells); err != nil {
		return nil, fmt.Errorf("ledger sqlite: corrupt row: %w", err)
	}
	return cells, nil
}
