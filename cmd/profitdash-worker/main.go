package main

import (
	"context"
	"errors"
	"os"

	"profitdash/internal/cli"
	"profitdash/internal/config"
	"profitdash/internal/log"
	"profitdash/internal/sheets/google"
	"profitdash/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig((*config.Config).ValidateWorker)
	logger := cli.SetupLogger(cfg.SlogLevel(), log.ComponentWorker)

	logger.Info("Starting profitdash-worker",
		"backend", cfg.DataBackend,
		"exchange", cfg.AMQPExchange,
		"queue", cfg.AMQPQueue)

	ctx, stop := cli.GracefulShutdown(logger)
	defer stop()

	res := cli.InitBackend(ctx, logger, cfg)
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	}()

	if res.Events == nil {
		logger.Error("AMQP broker unreachable, nothing to consume", "amqp_url_set", cfg.AMQPURL != "")
		os.Exit(1)
	}

	exporter, err := google.New(ctx, cfg.GoogleSpreadsheetID, google.Credentials{
		JSON: cfg.GoogleServiceAccountJSON,
		File: cfg.GoogleServiceAccountFile,
	}, logger)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	w := worker.NewExportWorker(res.Products, exporter, logger)

	err = res.Events.ConsumeProductsUploaded(ctx, w.HandleProductsUploaded)
	stats := w.Stats()
	logger.Info("Worker stopped",
		"exported", stats.Exported,
		"skipped", stats.Skipped,
		"failed", stats.Failed)

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", log.FieldError, err)
		os.Exit(1)
	}
}
