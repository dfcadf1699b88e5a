package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/galdahar56/raid-logger-bot-2/internal/config"
	"github.com/galdahar56/raid-logger-bot-2/internal/daemon"
	"github.com/galdahar56/raid-logger-bot-2/internal/health"
	"github.com/galdahar56/raid-logger-bot-2/internal/log"
	"github.com/galdahar56/raid-logger-bot-2/internal/version"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Connect to the chat platform and run the bot (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}
}

func runServe(cmd *cobra.Command, opts *rootOptions) error {
	// Safe defaults until the config is loaded.
	log.Configure(log.Config{Level: "info", Service: "raidbot", Version: version.Resolved()})
	logger := log.WithComponent("main")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(opts.configPath, version.Resolved())
	cfg, err := loader.Load()
	if err != nil {
		logger.Error().Err(err).Str("event", "config.load_failed").Str("config_path", opts.configPath).Msg("failed to load configuration")
		return err
	}

	log.Configure(log.Config{Level: cfg.Log.Level, Service: cfg.Log.Service, Version: cfg.Version})
	logger = log.WithComponent("main")
	if opts.configPath != "" {
		logger.Info().Str("event", "config.loaded").Str("source", "file").Str("path", opts.configPath).Msg("loaded configuration from file")
	} else {
		logger.Info().Str("event", "config.loaded").Str("source", "env+defaults").Msg("loaded configuration from environment and defaults")
	}

	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		return fmt.Errorf("startup checks: %w", err)
	}

	app, err := daemon.Build(ctx, cfg, daemon.Options{Holder: config.NewConfigHolder(cfg, loader)})
	if err != nil {
		return fmt.Errorf("build: %w", err)
	}
	if err := app.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info().Msg("raidbot stopped")
	return nil
}
