// Package daemon owns the bot's runtime: it builds every component from the
// configuration and runs the gateway, the HTTP server, the idle sweeper and
// config hot reload until shutdown.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/galdahar56/raid-logger-bot-2/internal/api"
	"github.com/galdahar56/raid-logger-bot-2/internal/config"
	"github.com/galdahar56/raid-logger-bot-2/internal/coordinator"
	"github.com/galdahar56/raid-logger-bot-2/internal/health"
	"github.com/galdahar56/raid-logger-bot-2/internal/notify"
	"github.com/galdahar56/raid-logger-bot-2/internal/signup"
)

// App is the assembled bot.
type App struct {
	cfg    config.AppConfig
	holder *config.ConfigHolder
	logger zerolog.Logger

	gateway   Gateway
	handlers  []interface{}
	connected *atomic.Bool

	registry    *signup.Registry
	coordinator *coordinator.Coordinator
	notifier    *notify.Notifier
	server      *api.Server
	health      *health.Manager
	sweeper     *sweeper

	reloadSignal os.Signal
	hooks        []namedHook
}

// Coordinator exposes the request pipeline.
func (a *App) Coordinator() *coordinator.Coordinator { return a.coordinator }

// Registry exposes the event registry.
func (a *App) Registry() *signup.Registry { return a.registry }

// Run connects to the gateway and blocks until ctx is cancelled or a
// component fails. Resources are released before it returns.
func (a *App) Run(ctx context.Context) error {
	for _, h := range a.handlers {
		remove := a.gateway.AddHandler(h)
		a.registerShutdownHook("handler", func(context.Context) error {
			remove()
			return nil
		})
	}
	if err := a.gateway.Open(); err != nil {
		shutdownErr := a.shutdown(ctx)
		return fmt.Errorf("open gateway: %w", errors.Join(err, shutdownErr))
	}
	a.registerShutdownHook("gateway", func(context.Context) error { return a.gateway.Close() })
	a.logger.Info().Msg("gateway connection opened")

	g, gctx := errgroup.WithContext(ctx)

	// Config watcher is best-effort: startup should not fail if watcher cannot be started.
	if a.holder != nil {
		if err := a.holder.StartWatcher(gctx); err != nil {
			a.logger.Warn().Err(err).Str("event", "config.watcher_start_failed").Msg("failed to start config watcher")
		}
		a.registerShutdownHook("config-watcher", func(context.Context) error {
			a.holder.Stop()
			return nil
		})

		applyCh := make(chan config.AppConfig, 1)
		a.holder.RegisterListener(applyCh)
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case next := <-applyCh:
					a.applyConfig(next)
				}
			}
		})

		if a.reloadSignal == nil {
			a.reloadSignal = syscall.SIGHUP
		}
		g.Go(func() error {
			hupChan := make(chan os.Signal, 1)
			signal.Notify(hupChan, a.reloadSignal)
			defer signal.Stop(hupChan)

			for {
				select {
				case <-gctx.Done():
					return nil
				case <-hupChan:
					a.logger.Info().
						Str("event", "config.reload_signal").
						Str("signal", a.reloadSignal.String()).
						Msg("received reload signal, reloading config")
					if err := a.holder.Reload(gctx); err != nil {
						a.logger.Warn().Err(err).Str("event", "config.reload_failed").Msg("config reload failed")
					}
				}
			}
		})
	}

	if a.cfg.Signup.EvictionSchedule != "" && a.cfg.Signup.IdleTTL > 0 {
		g.Go(func() error { return a.sweeper.run(gctx, a.cfg.Signup.EvictionSchedule) })
	}

	if a.cfg.HTTP.ListenAddr != "" {
		g.Go(func() error { return a.server.ListenAndServe(gctx, a.cfg.HTTP.ListenAddr) })
	}

	runErr := g.Wait()
	if runErr != nil {
		a.logger.Error().Err(runErr).Msg("component failed, shutting down")
	} else {
		a.logger.Info().Msg("shutdown signal received")
	}
	return errors.Join(runErr, a.shutdown(ctx))
}

func (a *App) shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	return a.runShutdownHooks(shutdownCtx)
}

// applyConfig applies the settings that take effect without a restart.
func (a *App) applyConfig(next config.AppConfig) {
	a.coordinator.SetOverrides(next.Signup.OverrideIDs)
	if next.Discord.Token != a.cfg.Discord.Token || next.Ledger.Backend != a.cfg.Ledger.Backend {
		a.logger.Warn().Str("event", "config.restart_required").Msg("connection settings changed; restart required to apply")
	}
}
