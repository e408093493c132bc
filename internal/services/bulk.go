package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"ricevute/internal/core"
	"ricevute/internal/transport"
)

// BulkConfig tunes one reconciliation run.
type BulkConfig struct {
	// FolderID is the destination Drive folder.
	FolderID string

	// BatchSize bounds in-flight files; batches run strictly in sequence.
	BatchSize int

	// BatchPause is inserted between batches, not after the last.
	BatchPause time.Duration

	// DownloadTimeout bounds each per-file source fetch.
	DownloadTimeout time.Duration
}

// DefaultBulkConfig returns the production batching parameters.
func DefaultBulkConfig(folderID string) BulkConfig {
	return BulkConfig{
		FolderID:        folderID,
		BatchSize:       5,
		BatchPause:      500 * time.Millisecond,
		DownloadTimeout: 20 * time.Second,
	}
}

// BulkSync reconciles the whole receipt store against the destination
// folder: everything not already present remotely (by name) is uploaded,
// in fixed-size batches with per-file failure isolation.
type BulkSync struct {
	http     *transport.Client
	tokens   TokenSource
	uploader Uploader
	remote   RemoteIndexer
	store    StorageLister
	cfg      BulkConfig

	// sleepFunc waits between batches. Tests override it.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

func NewBulkSync(hc *transport.Client, tokens TokenSource, uploader Uploader, remote RemoteIndexer, store StorageLister, cfg BulkConfig) *BulkSync {
	return &BulkSync{
		http:     hc,
		tokens:   tokens,
		uploader: uploader,
		remote:   remote,
		store:    store,
		cfg:      cfg,
		sleepFunc: func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				return nil
			}
		},
	}
}

// SetSleep overrides the inter-batch pause. Intended for tests.
func (b *BulkSync) SetSleep(fn func(ctx context.Context, d time.Duration) error) {
	if fn != nil {
		b.sleepFunc = fn
	}
}

// Run executes one reconciliation. Only enumeration and authentication
// failures are fatal; every per-file failure is recorded as an outcome and
// never stops the run.
func (b *BulkSync) Run(ctx context.Context) (core.Report, error) {
	start := time.Now()
	slog.InfoContext(ctx, "Bulk reconciliation started")

	files, err := b.enumerate(ctx)
	if err != nil {
		return core.Report{}, fmt.Errorf("enumerate storage: %w", err)
	}
	if len(files) == 0 {
		slog.InfoContext(ctx, "Bulk reconciliation found no files")
		return core.NewReport(nil, time.Since(start), "No files found to sync"), nil
	}
	slog.InfoContext(ctx, "Enumerated stored files", "count", len(files))

	// One token for the entire run; it is never reused past it.
	token, err := b.tokens.AccessToken(ctx)
	if err != nil {
		return core.Report{}, err
	}

	index, err := b.remote.ListNames(ctx, token)
	if err != nil {
		// Availability over strictness: an unreadable index must not
		// block uploads. Worst case we re-upload files that exist.
		slog.WarnContext(ctx, "Remote listing failed, proceeding with empty index", "error", err)
		index = map[string]struct{}{}
	}

	outcomes := make([]core.Outcome, 0, len(files))
	batches := 0
	for offset := 0; offset < len(files); offset += b.cfg.BatchSize {
		if batches > 0 {
			if err := b.sleepFunc(ctx, b.cfg.BatchPause); err != nil {
				return core.NewReport(outcomes, time.Since(start), "Sync interrupted"), err
			}
		}
		end := offset + b.cfg.BatchSize
		if end > len(files) {
			end = len(files)
		}
		outcomes = append(outcomes, b.processBatch(ctx, token, index, files[offset:end])...)
		batches++
	}

	report := core.NewReport(outcomes, time.Since(start), "Sync completed")
	slog.InfoContext(ctx, "Bulk reconciliation completed",
		"files", len(files),
		"batches", batches,
		"success", report.Success,
		"skipped", report.Skipped,
		"errors", report.Errors,
		"duration_ms", report.Elapsed.Milliseconds())
	return report, nil
}

// enumerate flattens the store into receipt files. Top-level folders are
// per-user prefixes; their contents are listed recursively.
func (b *BulkSync) enumerate(ctx context.Context) ([]core.ReceiptFile, error) {
	return b.walk(ctx, "")
}

func (b *BulkSync) walk(ctx context.Context, prefix string) ([]core.ReceiptFile, error) {
	entries, err := b.store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	var files []core.ReceiptFile
	for _, e := range entries {
		full := e.Name
		if prefix != "" {
			full = prefix + "/" + e.Name
		}
		switch e.Kind {
		case core.EntryFolder:
			children, err := b.walk(ctx, full)
			if err != nil {
				return nil, err
			}
			files = append(files, children...)
		case core.EntryFile:
			files = append(files, core.ReceiptFile{Path: full, Name: e.Name, Size: e.Size})
		}
	}
	return files, nil
}

// processBatch fans the batch out concurrently and joins before returning.
// Outcome order matches the batch's file order. A file's failure never
// affects its siblings.
func (b *BulkSync) processBatch(ctx context.Context, token string, index map[string]struct{}, batch []core.ReceiptFile) []core.Outcome {
	outcomes := make([]core.Outcome, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.BatchSize)
	for i, f := range batch {
		g.Go(func() error {
			outcomes[i] = b.processFile(gctx, token, index, f)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (b *BulkSync) processFile(ctx context.Context, token string, index map[string]struct{}, f core.ReceiptFile) core.Outcome {
	if _, exists := index[f.Name]; exists {
		slog.DebugContext(ctx, "Skipping already-synced file", "path", f.Path)
		return core.Outcome{File: f.Path, Status: core.StatusSkipped, Detail: "already synced"}
	}

	dctx, cancel := context.WithTimeout(ctx, b.cfg.DownloadTimeout)
	data, err := fetchFile(dctx, b.http, b.store.PublicURL(f.Path), 0)
	cancel()
	if err != nil {
		slog.WarnContext(ctx, "File download failed", "path", f.Path, "error", err)
		return core.Outcome{File: f.Path, Status: core.StatusError, Detail: err.Error()}
	}

	_, link, err := b.uploader.Upload(ctx, token, data, f.Name, b.cfg.FolderID)
	if err != nil {
		slog.WarnContext(ctx, "File upload failed", "path", f.Path, "error", err)
		return core.Outcome{File: f.Path, Status: core.StatusError, Detail: err.Error()}
	}

	return core.Outcome{File: f.Path, Status: core.StatusSuccess, Detail: link}
}
