// Package worker consumes queued receipt sync messages and runs the
// periodic reconciliation that catches anything the queue missed.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ricevute/internal/amqp"
	"ricevute/internal/core"
	"ricevute/internal/services"
)

// SingleSyncer relays one file by URL.
type SingleSyncer interface {
	Run(ctx context.Context, fileURL string) (services.SingleResult, error)
}

// BulkSyncer reconciles the whole store.
type BulkSyncer interface {
	Run(ctx context.Context) (core.Report, error)
}

// RunJournal records completed sync runs.
type RunJournal interface {
	RecordRun(ctx context.Context, mode string, report core.Report) (int64, error)
}

// ReceiptWorker drives syncs from two sides: AMQP messages for freshly
// uploaded receipts and a reconciliation loop for everything else.
type ReceiptWorker struct {
	single  SingleSyncer
	bulk    BulkSyncer
	journal RunJournal
}

func NewReceiptWorker(single SingleSyncer, bulk BulkSyncer, journal RunJournal) *ReceiptWorker {
	return &ReceiptWorker{
		single:  single,
		bulk:    bulk,
		journal: journal,
	}
}

// HandleSyncMessage processes a single receipt sync message from AMQP.
// Validation errors are logged and swallowed so a bad message is not
// requeued forever; everything else propagates for a nack with requeue.
func (w *ReceiptWorker) HandleSyncMessage(ctx context.Context, msg *amqp.ReceiptSyncMessage) error {
	slog.InfoContext(ctx, "Processing sync message", "url", msg.FileURL)

	result, err := w.single.Run(ctx, msg.FileURL)
	if err != nil {
		if services.IsTerminal(err) {
			slog.WarnContext(ctx, "Dropping unprocessable sync message",
				"url", msg.FileURL, "error", err)
			w.journalOutcome(ctx, msg.FileURL, core.StatusError, err.Error())
			return nil
		}
		return fmt.Errorf("sync receipt: %w", err)
	}

	w.journalOutcome(ctx, msg.FileURL, core.StatusSuccess, result.WebViewLink)

	slog.InfoContext(ctx, "Successfully synced receipt",
		"url", msg.FileURL,
		"file_id", result.FileID)

	return nil
}

// RunReconciliation performs one bulk reconciliation pass and journals it.
func (w *ReceiptWorker) RunReconciliation(ctx context.Context) error {
	report, err := w.bulk.Run(ctx)
	if err != nil {
		return fmt.Errorf("bulk reconciliation: %w", err)
	}

	if w.journal != nil {
		if _, err := w.journal.RecordRun(ctx, "bulk", report); err != nil {
			slog.ErrorContext(ctx, "Failed to journal reconciliation run", "error", err)
		}
	}

	slog.InfoContext(ctx, "Reconciliation pass completed",
		"success", report.Success,
		"skipped", report.Skipped,
		"errors", report.Errors)

	return nil
}

// RunPeriodicReconciliation runs reconciliation on a fixed interval until
// the context ends. The first pass runs immediately.
func (w *ReceiptWorker) RunPeriodicReconciliation(ctx context.Context, interval time.Duration) error {
	if err := w.RunReconciliation(ctx); err != nil {
		slog.ErrorContext(ctx, "Startup reconciliation failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping periodic reconciliation", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			if err := w.RunReconciliation(ctx); err != nil {
				slog.ErrorContext(ctx, "Reconciliation pass failed", "error", err)
			}
		}
	}
}

func (w *ReceiptWorker) journalOutcome(ctx context.Context, fileURL string, status core.SyncStatus, detail string) {
	if w.journal == nil {
		return
	}
	message := "Single sync completed"
	if status == core.StatusError {
		message = "Single sync failed"
	}
	report := core.NewReport([]core.Outcome{{File: fileURL, Status: status, Detail: detail}}, 0, message)
	if _, err := w.journal.RecordRun(ctx, "single", report); err != nil {
		slog.ErrorContext(ctx, "Failed to journal sync outcome", "url", fileURL, "error", err)
	}
}
