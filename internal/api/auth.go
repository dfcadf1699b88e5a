package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/galdahar56/raid-logger-bot-2/internal/log"
)

func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// requireAdmin enforces the bearer token. Without a configured token the
// admin routes are closed.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := log.WithComponentFromContext(r.Context(), "auth")
		if s.cfg.AdminToken == "" {
			logger.Warn().Str("event", "auth.fail_closed").Msg("admin token not configured, denying access")
			writeError(w, http.StatusForbidden, "admin api disabled")
			return
		}
		token := extractToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AdminToken)) != 1 {
			logger.Warn().Str("event", "auth.invalid_token").Msg("invalid admin token")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
