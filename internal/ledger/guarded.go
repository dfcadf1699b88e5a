package ledger

import (
	"context"

	"github.com/galdahar56/raid-logger-bot-2/internal/resilience"
)

// GuardedTable routes every call through a circuit breaker so a failing
// store is not hammered by every signup.
type GuardedTable struct {
	next    Table
	breaker *resilience.CircuitBreaker
}

// NewGuardedTable wraps next with breaker.
func NewGuardedTable(next Table, breaker *resilience.CircuitBreaker) *GuardedTable {
	return &GuardedTable{next: next, breaker: breaker}
}

// Breaker exposes the breaker for health reporting.
func (g *GuardedTable) Breaker() *resilience.CircuitBreaker { return g.breaker }

func (g *GuardedTable) AppendRow(ctx context.Context, sheet string, row []string) error {
	return g.breaker.Execute(ctx, func(ctx context.Context) error {
		return g.next.AppendRow(ctx, sheet, row)
	})
}

func (g *GuardedTable) ReadRows(ctx context.Context, sheet string) ([][]string, error) {
	var rows [][]string
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		rows, err = g.next.ReadRows(ctx, sheet)
		return err
	})
	return rows, err
}

func (g *GuardedTable) DeleteRow(ctx context.Context, sheet string, row int) error {
	return g.breaker.Execute(ctx, func(ctx context.Context) error {
		return g.next.DeleteRow(ctx, sheet, row)
	})
}

func (g *GuardedTable) ReadCell(ctx context.Context, sheet, column string, row int) (string, error) {
	var v string
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		v, err = g.next.ReadCell(ctx, sheet, column, row)
		return err
	})
	return v, err
}

func (g *GuardedTable) WriteCell(ctx context.Context, sheet, column string, row int, value string) error {
	return g.breaker.Execute(ctx, func(ctx context.Context) error {
		return g.next.WriteCell(ctx, sheet, column, row, value)
	})
}
