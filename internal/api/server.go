// Package api serves the operator HTTP surface: probes, metrics and a small
// admin API over the live signup state.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/galdahar56/raid-logger-bot-2/internal/health"
	"github.com/galdahar56/raid-logger-bot-2/internal/log"
	"github.com/galdahar56/raid-logger-bot-2/internal/signup"
)

// NotifiedResetter clears the formed-notice mark for a run.
type NotifiedResetter interface {
	Reset(ctx context.Context, runID string) error
}

// ControlForgetter drops render bookkeeping for an evicted event.
type ControlForgetter interface {
	Forget(key string)
}

// Config wires the server. Registry and Health are required.
type Config struct {
	Registry *signup.Registry
	Notifier NotifiedResetter
	Controls ControlForgetter
	Health   *health.Manager
	// AdminToken guards /api. An empty token disables the admin routes.
	AdminToken string
	// AdminRateLimit is requests per minute per client on /api.
	AdminRateLimit int
}

// Server is the operator HTTP server.
type Server struct {
	cfg    Config
	router chi.Router
	logger zerolog.Logger
}

// New builds the router.
func New(cfg Config) (*Server, error) {
	if cfg.Registry == nil {
		return nil, errors.New("api: registry is required")
	}
	if cfg.Health == nil {
		return nil, errors.New("api: health manager is required")
	}
	if cfg.AdminRateLimit <= 0 {
		cfg.AdminRateLimit = 30
	}
	s := &Server{cfg: cfg, logger: log.WithComponent("api")}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(recoverer, requestID, httpMetrics, accessLog)

	r.Get("/healthz", s.cfg.Health.ServeHealth)
	r.Get("/readyz", s.cfg.Health.ServeReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(adminRateLimit(s.cfg.AdminRateLimit, time.Minute))
		r.Use(s.requireAdmin)
		r.Get("/events", s.handleListEvents)
		r.Get("/events/{key}", s.handleGetEvent)
		r.Delete("/events/{key}", s.handleEvictEvent)
		r.Delete("/runs/{runID}/notified", s.handleResetNotified)
	})
	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api: listen %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api: shutdown: %w", err)
	}
	s.logger.Info().Msg("http server stopped")
	return nil
}
