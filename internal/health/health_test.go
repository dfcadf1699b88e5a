package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/galdahar56/raid-logger-bot-2/internal/config"
	"github.com/galdahar56/raid-logger-bot-2/internal/persistence/sqlite"
	"github.com/galdahar56/raid-logger-bot-2/internal/resilience"
)

type mockChecker struct {
	name   string
	status Status
}

func (m *mockChecker) Name() string { return m.name }

func (m *mockChecker) Check(context.Context) CheckResult {
	return CheckResult{Status: m.status}
}

func TestManager_Health(t *testing.T) {
	m := NewManager("v1.0.0")
	m.RegisterChecker(&mockChecker{name: "healthy", status: StatusHealthy})
	m.RegisterChecker(&mockChecker{name: "degraded", status: StatusDegraded})

	resp := m.Health(context.Background(), false)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "v1.0.0", resp.Version)
	assert.GreaterOrEqual(t, resp.Uptime, int64(0))
	assert.Nil(t, resp.Checks)

	resp = m.Health(context.Background(), true)
	assert.Equal(t, StatusDegraded, resp.Status)
	assert.Len(t, resp.Checks, 2)
}

func TestManager_Ready(t *testing.T) {
	tests := []struct {
		name     string
		checkers []Checker
		ready    bool
		status   Status
	}{
		{name: "no checkers", ready: true, status: StatusHealthy},
		{name: "degraded is ready", checkers: []Checker{&mockChecker{"a", StatusHealthy}, &mockChecker{"b", StatusDegraded}}, ready: true, status: StatusDegraded},
		{name: "unhealthy wins", checkers: []Checker{&mockChecker{"a", StatusUnhealthy}, &mockChecker{"b", StatusDegraded}}, ready: false, status: StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager("v1")
			for _, c := range tt.checkers {
				m.RegisterChecker(c)
			}
			resp := m.Ready(context.Background())
			assert.Equal(t, tt.ready, resp.Ready)
			assert.Equal(t, tt.status, resp.Status)
		})
	}
}

func TestManager_ServeReady(t *testing.T) {
	m := NewManager("v1")
	m.RegisterChecker(&mockChecker{name: "gateway", status: StatusUnhealthy})

	w := httptest.NewRecorder()
	m.ServeReady(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp ReadinessResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.False(t, resp.Ready)
	assert.Equal(t, StatusUnhealthy, resp.Checks["gateway"].Status)
}

func TestManager_ServeHealth_AlwaysOK(t *testing.T) {
	m := NewManager("v1")
	m.RegisterChecker(&mockChecker{name: "gateway", status: StatusUnhealthy})

	w := httptest.NewRecorder()
	m.ServeHealth(w, httptest.NewRequest(http.MethodGet, "/healthz?verbose=true", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, StatusUnhealthy, resp.Status)
	assert.Len(t, resp.Checks, 1)
}

func TestBreakerChecker(t *testing.T) {
	b := resilience.NewCircuitBreaker("ledger", 1, time.Hour)
	c := NewBreakerChecker(b)
	assert.Equal(t, "breaker_ledger", c.Name())
	assert.Equal(t, StatusHealthy, c.Check(context.Background()).Status)

	_ = b.Execute(context.Background(), func(context.Context) error { return errors.New("quota exceeded") })
	res := c.Check(context.Background())
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Equal(t, string(resilience.StateOpen), res.Message)
}

func TestPingChecker_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ping := func(ctx context.Context) error { return client.Ping(ctx).Err() }
	c := NewPingChecker("redis", false, ping)
	assert.Equal(t, StatusHealthy, c.Check(context.Background()).Status)

	mr.Close()
	res := c.Check(context.Background())
	assert.Equal(t, StatusDegraded, res.Status)
	assert.NotEmpty(t, res.Error)

	critical := NewPingChecker("redis", true, ping)
	assert.Equal(t, StatusUnhealthy, critical.Check(context.Background()).Status)
}

func TestSQLiteChecker(t *testing.T) {
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "ledger.db"), sqlite.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	c := NewSQLiteChecker(db)
	assert.Equal(t, StatusHealthy, c.Check(context.Background()).Status)

	require.NoError(t, db.Close())
	assert.Equal(t, StatusUnhealthy, c.Check(context.Background()).Status)
}

func TestFuncChecker(t *testing.T) {
	up := false
	c := NewFuncChecker("gateway", "not connected", func() bool { return up })
	assert.Equal(t, StatusUnhealthy, c.Check(context.Background()).Status)
	up = true
	assert.Equal(t, StatusHealthy, c.Check(context.Background()).Status)
}

func TestPerformStartupChecks(t *testing.T) {
	dir := t.TempDir()

	cfg := config.Defaults()
	cfg.Ledger.Backend = config.LedgerSQLite
	cfg.Ledger.SQLitePath = filepath.Join(dir, "ledger.db")
	require.NoError(t, PerformStartupChecks(context.Background(), cfg))

	cfg.Ledger.SQLitePath = filepath.Join(dir, "missing", "ledger.db")
	assert.Error(t, PerformStartupChecks(context.Background(), cfg))

	cfg.Ledger.Backend = config.LedgerSheets
	cfg.Ledger.CredentialsFile = filepath.Join(dir, "nope.json")
	assert.Error(t, PerformStartupChecks(context.Background(), cfg))

	creds := filepath.Join(dir, "sa.json")
	require.NoError(t, os.WriteFile(creds, []byte("{}"), 0600))
	cfg.Ledger.CredentialsFile = creds
	cfg.HTTP.ListenAddr = "not-an-addr"
	assert.Error(t, PerformStartupChecks(context.Background(), cfg))

	cfg.HTTP.ListenAddr = ":8080"
	assert.NoError(t, PerformStartupChecks(context.Background(), cfg))
}
