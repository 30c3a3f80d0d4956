// Package cli provides common CLI initialization utilities.
// This package consolidates the start-up steps shared by cmd/profitdash,
// cmd/profitdash-worker and cmd/profitdash-cli.
package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"profitdash/internal/backend"
	"profitdash/internal/config"
	"profitdash/internal/log"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger and installs it as the slog default.
func SetupLogger(level slog.Level, component string) *log.Logger {
	logger := log.New(log.Config{Level: level, Component: component, Writer: os.Stdout})
	log.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads configuration and runs Validate plus any extra
// checks. It exits the process when the configuration is unusable.
func LoadAndValidateConfig(checks ...func(*config.Config) error) *config.Config {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	checks = append([]func(*config.Config) error{(*config.Config).Validate}, checks...)
	for _, check := range checks {
		if err := check(cfg); err != nil {
			slog.Error("Configuration validation failed", "error", err)
			os.Exit(1)
		}
	}
	return cfg
}

// InitBackend opens the storage and event backends named by cfg.
// Returns the backend or exits the process on failure.
func InitBackend(ctx context.Context, logger *log.Logger, cfg *config.Config) *backend.BackendResult {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	return res
}

// GracefulShutdown returns a context cancelled on SIGINT or SIGTERM.
func GracefulShutdown(logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
