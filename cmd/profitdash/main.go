package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"profitdash/internal/analytics"
	"profitdash/internal/auth"
	"profitdash/internal/cache"
	"profitdash/internal/chatbot"
	"profitdash/internal/cli"
	"profitdash/internal/config"
	apphttp "profitdash/internal/http"
	"profitdash/internal/integrations"
	"profitdash/internal/log"
	"profitdash/internal/metrics"
	"profitdash/internal/middleware/ratelimit"
)

const (
	shutdownTimeout      = 30 * time.Second
	sessionPurgeInterval = time.Hour
	cacheSweepInterval   = 10 * time.Minute
	reportCacheSize      = 256
	reportCacheTTL       = 30 * time.Minute
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg.SlogLevel(), log.ComponentApp)

	ctx, stop := cli.GracefulShutdown(logger)
	defer stop()

	res := cli.InitBackend(ctx, logger, cfg)
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	}()

	m := metrics.New()
	caches := cache.NewManager(logger)
	reporter := analytics.NewReporter(reportCacheSize, reportCacheTTL, cache.WithObserver(m))
	caches.Register(reporter.Cache())
	caches.StartCleanup(ctx, cacheSweepInterval)
	defer caches.Stop()

	registry := integrations.NewRegistry(logger)
	bot := chatbot.NewBot(cfg.ChatTypingDelay, logger, m)

	var google *auth.GoogleProvider
	if cfg.AuthProvider == config.AuthGoogle {
		google = auth.NewGoogleProvider(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.OAuthRedirectURL)
	}
	authSvc := auth.NewService(res.Repo, res.Products, auth.Options{
		Google:       google,
		DevLogin:     cfg.AuthProvider == config.AuthDev,
		SessionTTL:   cfg.SessionTTL,
		CookieSecure: cfg.CookieSecure,
		Logger:       logger,
		OnSignOut: func(userID string) {
			reporter.Forget(userID)
			bot.Reset(userID)
			registry.Forget(userID)
		},
	})

	// A nil *amqp.Client must not become a non-nil interface.
	var events apphttp.EventPublisher
	if res.Events != nil {
		events = res.Events
	}

	srv, err := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Products:     res.Products,
		Ready:        res.Repo,
		Auth:         authSvc,
		Reporter:     reporter,
		Integrations: registry,
		Bot:          bot,
		Events:       events,
		Metrics:      m,
		Logger:       logger,
	}, apphttp.Options{
		UploadMaxBytes: cfg.UploadMaxBytes,
		UploadMaxRows:  cfg.UploadMaxRows,
		RateLimit: ratelimit.Config{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
		},
	})
	if err != nil {
		logger.Error("Failed to create HTTP server", log.FieldError, err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting profitdash server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"auth", cfg.AuthProvider,
			"events", events != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return authSvc.PurgeExpired(gctx, sessionPurgeInterval)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("Shutting down server", log.FieldOperation, log.OpShutdown)
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
