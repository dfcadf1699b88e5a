package health

import (
	"context"
	"database/sql"
	"errors"

	"github.com/galdahar56/raid-logger-bot-2/internal/persistence/sqlite"
	"github.com/galdahar56/raid-logger-bot-2/internal/resilience"
)

// BreakerChecker reports the ledger circuit breaker. An open breaker means
// signups still commit but the sheet is not being updated.
type BreakerChecker struct {
	breaker *resilience.CircuitBreaker
}

func NewBreakerChecker(b *resilience.CircuitBreaker) *BreakerChecker {
	return &BreakerChecker{breaker: b}
}

func (c *BreakerChecker) Name() string { return "breaker_" + c.breaker.Name() }

func (c *BreakerChecker) Check(context.Context) CheckResult {
	switch st := c.breaker.State(); st {
	case resilience.StateClosed:
		return CheckResult{Status: StatusHealthy, Message: string(st)}
	case resilience.StateHalfOpen:
		return CheckResult{Status: StatusDegraded, Message: string(st)}
	default:
		return CheckResult{Status: StatusDegraded, Message: string(st), Error: "ledger writes are being skipped"}
	}
}

// PingChecker wraps a reachability probe such as a Redis PING.
type PingChecker struct {
	name string
	ping func(ctx context.Context) error
	// critical marks the dependency as required for readiness.
	critical bool
}

// NewPingChecker returns a checker calling ping. A failing non-critical
// dependency reports degraded instead of unhealthy.
func NewPingChecker(name string, critical bool, ping func(ctx context.Context) error) *PingChecker {
	return &PingChecker{name: name, ping: ping, critical: critical}
}

func (c *PingChecker) Name() string { return c.name }

func (c *PingChecker) Check(ctx context.Context) CheckResult {
	if err := c.ping(ctx); err != nil {
		status := StatusDegraded
		if c.critical {
			status = StatusUnhealthy
		}
		return CheckResult{Status: status, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy, Message: "reachable"}
}

// SQLiteChecker runs a quick integrity check on the local ledger database.
type SQLiteChecker struct {
	db *sql.DB
}

func NewSQLiteChecker(db *sql.DB) *SQLiteChecker {
	return &SQLiteChecker{db: db}
}

func (c *SQLiteChecker) Name() string { return "sqlite" }

func (c *SQLiteChecker) Check(ctx context.Context) CheckResult {
	if err := sqlite.QuickCheck(ctx, c.db); err != nil {
		res := CheckResult{Status: StatusUnhealthy, Error: err.Error()}
		if errors.Is(err, sqlite.ErrCorrupt) {
			res.Message = "integrity check failed"
		}
		return res
	}
	return CheckResult{Status: StatusHealthy, Message: "ok"}
}

// FuncChecker adapts a boolean probe, e.g. whether the chat gateway is
// connected.
type FuncChecker struct {
	name    string
	ok      func() bool
	failMsg string
}

func NewFuncChecker(name, failMsg string, ok func() bool) *FuncChecker {
	return &FuncChecker{name: name, ok: ok, failMsg: failMsg}
}

func (c *FuncChecker) Name() string { return c.name }

func (c *FuncChecker) Check(context.Context) CheckResult {
	if c.ok() {
		return CheckResult{Status: StatusHealthy}
	}
	return CheckResult{Status: StatusUnhealthy, Error: c.failMsg}
}
