// SPDX-License-Identifier: MIT

// Package ratelimit throttles signup interactions per user.
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/galdahar56/raid-logger-bot-2/internal/metrics"
)

// Config holds rate limiting configuration.
type Config struct {
	// GlobalRate caps all interactions together.
	GlobalRate  rate.Limit
	GlobalBurst int

	// PerUserRate caps a single user across every event.
	PerUserRate  rate.Limit
	PerUserBurst int

	// IdleTTL is how long an unused per-user limiter is kept.
	IdleTTL time.Duration
}

// DefaultConfig returns defaults suited to a single guild.
func DefaultConfig() Config {
	return Config{
		GlobalRate:   50,
		GlobalBurst:  100,
		PerUserRate:  1,
		PerUserBurst: 5,
		IdleTTL:      10 * time.Minute,
	}
}

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter applies a global bucket and one bucket per user.
type Limiter struct {
	config Config
	global *rate.Limiter
	now    func() time.Time

	mu          sync.Mutex
	users       map[string]*userLimiter
	lastCleanup time.Time
}

// New creates a limiter. A zero rate disables that tier.
func New(config Config) *Limiter {
	l := &Limiter{
		config:      config,
		now:         time.Now,
		users:       make(map[string]*userLimiter),
		lastCleanup: time.Now(),
	}
	if config.GlobalRate > 0 {
		l.global = rate.NewLimiter(config.GlobalRate, config.GlobalBurst)
	}
	return l
}

// Allow reports whether userID may act now.
func (l *Limiter) Allow(userID string) bool {
	if l.global != nil && !l.global.Allow() {
		metrics.IncRateLimited("global")
		return false
	}
	if l.config.PerUserRate <= 0 {
		return true
	}

	l.mu.Lock()
	now := l.now()
	u, ok := l.users[userID]
	if !ok {
		u = &userLimiter{limiter: rate.NewLimiter(l.config.PerUserRate, l.config.PerUserBurst)}
		l.users[userID] = u
	}
	u.lastSeen = now
	l.cleanupLocked(now)
	l.mu.Unlock()

	if !u.limiter.AllowN(now, 1) {
		metrics.IncRateLimited("user")
		return false
	}
	return true
}

// Tracked returns the number of per-user limiters held.
func (l *Limiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.users)
}

// cleanupLocked drops limiters idle longer than IdleTTL. Caller holds mu.
func (l *Limiter) cleanupLocked(now time.Time) {
	if l.config.IdleTTL <= 0 || now.Sub(l.lastCleanup) < l.config.IdleTTL {
		return
	}
	for id, u := range l.users {
		if now.Sub(u.lastSeen) > l.config.IdleTTL {
			delete(l.users, id)
		}
	}
	l.lastCleanup = now
}

// ClientIP extracts the caller address, honouring X-Forwarded-For and
// X-Real-IP from a reverse proxy.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
