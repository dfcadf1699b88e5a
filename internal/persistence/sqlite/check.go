package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ErrCorrupt wraps the diagnostics reported by a failed integrity check.
var ErrCorrupt = errors.New("sqlite: integrity check failed")

// QuickCheck runs PRAGMA quick_check and returns ErrCorrupt, wrapped with
// every diagnostic row, unless SQLite answers a single "ok".
func QuickCheck(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, "PRAGMA quick_check")
	if err != nil {
		return fmt.Errorf("sqlite: quick_check: %w", err)
	}
	defer rows.Close()

	var lines []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return fmt.Errorf("sqlite: quick_check row: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(lines) == 1 && strings.EqualFold(lines[0], "ok") {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrCorrupt, strings.Join(lines, "; "))
}
