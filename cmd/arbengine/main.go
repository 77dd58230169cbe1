// Command arbengine is the entry point for the cross-venue arbitrage engine.
// It loads configuration, validates it, sets up signal handling, and runs
// the engine in dry-run or live mode.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alanyoungcy/arbengine/internal/app"
	"github.com/alanyoungcy/arbengine/internal/config"
	"github.com/alanyoungcy/arbengine/internal/crypto"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	logLevel := flag.String("log-level", "", "override log.level (debug, info, warn, error)")
	sealKey := flag.String("seal-key", "", "encrypt polymarket.private_key with polymarket.key_password into this file and exit")
	tail := flag.String("tail", "", "follow a running engine's events at or above this severity (info, warning, critical) and exit on Ctrl-C")
	flag.Parse()

	// Setup structured JSON logger.
	logger := newLogger("info")
	slog.SetDefault(logger)

	// Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	logger = newLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	if *sealKey != "" {
		if err := sealWalletKey(cfg, *sealKey); err != nil {
			fmt.Fprintf(os.Stderr, "seal-key: %v\n", err)
			os.Exit(1)
		}
		logger.Info("wallet key sealed", slog.String("path", *sealKey))
		return
	}

	if *tail != "" {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		if err := app.Tail(ctx, cfg.Redis, *tail, os.Stdout, logger); err != nil && !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "tail: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Validate configuration.
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("arbengine starting",
		slog.Bool("dry_run", cfg.Mode.DryRun),
		slog.Bool("kalshi_only", cfg.Mode.KalshiOnly),
		slog.String("config", *configPath),
	)

	application := app.New(cfg, logger)
	defer application.Close()

	// Setup signal handling for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		// context.Canceled is expected on clean shutdown.
		if errors.Is(err, context.Canceled) {
			logger.Info("application shut down gracefully")
		} else {
			logger.Error("application exited with error",
				slog.String("error", err.Error()),
			)
			application.Close()
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
	}

	logger.Info("arbengine stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// sealWalletKey writes the encrypted key file read back through
// polymarket.encrypted_key_path.
func sealWalletKey(cfg *config.Config, path string) error {
	if cfg.Polymarket.PrivateKey == "" || cfg.Polymarket.KeyPassword == "" {
		return errors.New("polymarket.private_key and polymarket.key_password must be set")
	}
	data, err := crypto.SealWalletKey(cfg.Polymarket.PrivateKey, cfg.Polymarket.KeyPassword)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
