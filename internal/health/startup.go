package health

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/galdahar56/raid-logger-bot-2/internal/config"
	"github.com/galdahar56/raid-logger-bot-2/internal/log"
)

// PerformStartupChecks validates the environment before the bot connects.
func PerformStartupChecks(ctx context.Context, cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("running pre-flight startup checks")

	if err := ctx.Err(); err != nil {
		return err
	}

	switch cfg.Ledger.Backend {
	case config.LedgerSQLite:
		if err := checkDataDir(logger, filepath.Dir(cfg.Ledger.SQLitePath)); err != nil {
			return fmt.Errorf("ledger directory check failed: %w", err)
		}
	case config.LedgerSheets:
		if cfg.Ledger.CredentialsJSON == "" && cfg.Ledger.CredentialsFile != "" {
			if err := checkFileReadable(cfg.Ledger.CredentialsFile); err != nil {
				return fmt.Errorf("ledger credentials: %w", err)
			}
		}
	case config.LedgerMemory:
		logger.Warn().Msg("ledger uses the in-memory backend; signup records are lost on restart")
	}

	if cfg.HTTP.ListenAddr != "" {
		_, port, err := net.SplitHostPort(cfg.HTTP.ListenAddr)
		if err != nil {
			return fmt.Errorf("invalid HTTP listen address %q: %w", cfg.HTTP.ListenAddr, err)
		}
		if n, err := strconv.Atoi(port); err != nil || n < 0 || n > 65535 {
			return fmt.Errorf("invalid HTTP listen port %q in %q", port, cfg.HTTP.ListenAddr)
		}
	}

	if cfg.Redis.Addr == "" {
		logger.Warn().Msg("redis not configured; formed-group marks do not survive restarts")
	}

	logger.Info().Msg("startup checks passed")
	return nil
}

func checkDataDir(logger zerolog.Logger, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory does not exist: %s", path)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	testFile := filepath.Join(path, ".write_test")
	if err := os.WriteFile(testFile, []byte("ok"), 0600); err != nil {
		return fmt.Errorf("directory is not writable: %s (error: %v)", path, err)
	}
	_ = os.Remove(testFile)

	logger.Info().Str("path", path).Msg("ledger directory is writable")
	return nil
}

func checkFileReadable(path string) error {
	f, err := os.Open(path) // #nosec G304 -- path comes from operator config
	if err != nil {
		return err
	}
	return f.Close()
}
