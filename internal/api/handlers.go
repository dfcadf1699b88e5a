package api

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/galdahar56/raid-logger-bot-2/internal/log"
	"github.com/galdahar56/raid-logger-bot-2/internal/signup"
)

type eventsResponse struct {
	Events []signup.Snapshot `json:"events"`
}

// GET /api/events
func (s *Server) handleListEvents(w http.ResponseWriter, _ *http.Request) {
	snaps := s.cfg.Registry.Snapshots()
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Ref.MessageID < snaps[j].Ref.MessageID })
	writeJSON(w, http.StatusOK, eventsResponse{Events: snaps})
}

// GET /api/events/{key}
func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.cfg.Registry.Snapshot(chi.URLParam(r, "key"))
	if !ok {
		writeError(w, http.StatusNotFound, "event not in memory")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// DELETE /api/events/{key}
func (s *Server) handleEvictEvent(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if !s.cfg.Registry.Evict(key) {
		writeError(w, http.StatusNotFound, "event not in memory")
		return
	}
	if s.cfg.Controls != nil {
		s.cfg.Controls.Forget(key)
	}
	logger := log.WithComponentFromContext(r.Context(), "api")
	logger.Info().
		Str("event", "admin.evict").
		Str("event_key", key).
		Msg("event evicted by operator")
	w.WriteHeader(http.StatusNoContent)
}

// DELETE /api/runs/{runID}/notified
func (s *Server) handleResetNotified(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Notifier == nil {
		writeError(w, http.StatusServiceUnavailable, "notifier not configured")
		return
	}
	runID := chi.URLParam(r, "runID")
	if err := s.cfg.Notifier.Reset(r.Context(), runID); err != nil {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).Str("run_id", runID).Msg("failed to reset notified mark")
		writeError(w, http.StatusInternalServerError, "reset failed")
		return
	}
	logger := log.WithComponentFromContext(r.Context(), "api")
	logger.Info().
		Str("event", "admin.reset_notified").
		Str("run_id", runID).
		Msg("formed notice re-armed by operator")
	w.WriteHeader(http.StatusNoContent)
}
