// Package worker turns upload events into spreadsheet exports.
package worker

import (
	"context"
	"fmt"
	"sync/atomic"

	"profitdash/internal/amqp"
	"profitdash/internal/core"
	"profitdash/internal/log"
	"profitdash/internal/sheets"
)

// SnapshotReader is the part of the product store the worker needs.
type SnapshotReader interface {
	Snapshot(ctx context.Context, userID string) (core.Snapshot, error)
}

// Stats counts what the worker did since start.
type Stats struct {
	Exported int64
	Skipped  int64
	Failed   int64
}

// ExportWorker exports the snapshot named by each ProductsUploaded message.
type ExportWorker struct {
	store    SnapshotReader
	exporter sheets.SnapshotExporter
	logger   *log.Logger

	exported atomic.Int64
	skipped  atomic.Int64
	failed   atomic.Int64
}

func NewExportWorker(store SnapshotReader, exporter sheets.SnapshotExporter, logger *log.Logger) *ExportWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &ExportWorker{
		store:    store,
		exporter: exporter,
		logger:   logger.WithComponent(log.ComponentWorker),
	}
}

// HandleProductsUploaded exports the user's current snapshot. A message for an
// upload that has since been replaced or cleared is acknowledged without
// exporting; the newer upload has its own message.
func (w *ExportWorker) HandleProductsUploaded(ctx context.Context, msg *amqp.ProductsUploadedMessage) error {
	logger := w.logger.With(log.FieldUserID, msg.UserID, log.FieldUploadID, msg.UploadID)
	logger.InfoContext(ctx, "Processing products uploaded message", log.FieldProductCount, msg.ProductCount)

	snap, err := w.store.Snapshot(ctx, msg.UserID)
	if err != nil {
		w.failed.Add(1)
		return fmt.Errorf("load snapshot: %w", err)
	}

	if snap.UploadID != msg.UploadID {
		w.skipped.Add(1)
		logger.InfoContext(ctx, "Skipping stale upload", "current_upload_id", snap.UploadID)
		return nil
	}

	ref, err := w.exporter.ExportSnapshot(ctx, snap)
	if err != nil {
		w.failed.Add(1)
		return fmt.Errorf("export snapshot: %w", err)
	}

	w.exported.Add(1)
	logger.InfoContext(ctx, "Exported snapshot",
		log.FieldOperation, log.OpExport,
		log.FieldProductCount, len(snap.Products),
		log.FieldSheetsRef, ref)
	return nil
}

func (w *ExportWorker) Stats() Stats {
	return Stats{
		Exported: w.exported.Load(),
		Skipped:  w.skipped.Load(),
		Failed:   w.failed.Load(),
	}
}
