package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"ricevute/internal/amqp"
	"ricevute/internal/bucket"
	"ricevute/internal/config"
	"ricevute/internal/drive"
	"ricevute/internal/services"
	"ricevute/internal/storage"
	"ricevute/internal/transport"
	"ricevute/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting ricevute-worker")

	// Load configuration
	cfg := config.Load()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	creds, err := drive.ParseCredentials(cfg.DriveCredentialsJSON)
	if err != nil {
		logger.Error("Failed to parse Drive credentials", "error", err)
		os.Exit(1)
	}

	hc := transport.NewClient(&http.Client{})
	tokens := drive.NewTokenProvider(hc, creds)
	uploader := drive.NewUploader(hc)
	lister := drive.NewLister(cfg.DriveFolderID)
	store := bucket.NewClient(hc, cfg.StorageURL, cfg.StorageBucket, cfg.StorageServiceKey)

	single := services.NewSingleSync(hc, tokens, uploader, services.SingleConfig{
		FolderID:        cfg.DriveFolderID,
		DownloadTimeout: cfg.SingleDownloadTimeout,
		MaxBytes:        cfg.MaxFileSizeBytes,
	})
	bulk := services.NewBulkSync(hc, tokens, uploader, lister, store, services.BulkConfig{
		FolderID:        cfg.DriveFolderID,
		BatchSize:       cfg.SyncBatchSize,
		BatchPause:      cfg.SyncBatchPause,
		DownloadTimeout: cfg.DownloadTimeout,
	})

	// Initialize SQLite journal shared with the API server
	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	// Initialize AMQP client for consuming messages
	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	receiptWorker := worker.NewReceiptWorker(single, bulk, repo)

	// Consume queued single-file syncs
	go func() {
		handler := func(msg *amqp.ReceiptSyncMessage) error {
			return receiptWorker.HandleSyncMessage(ctx, msg)
		}
		if err := amqpClient.ConsumeReceiptSync(ctx, handler); err != nil {
			if err != context.Canceled {
				logger.Error("Message consumption failed", "error", err)
			}
			cancel()
		}
	}()

	// Periodic reconciliation catches receipts whose messages were lost
	go func() {
		if err := receiptWorker.RunPeriodicReconciliation(ctx, cfg.SyncInterval); err != nil {
			if err != context.Canceled {
				logger.Error("Periodic reconciliation stopped", "error", err)
			}
		}
	}()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	// Give worker time to finish current operations
	logger.Info("Shutting down worker...")
	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("Worker shutdown complete")
}
