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
	apphttp "ricevute/internal/http"
	"ricevute/internal/services"
	"ricevute/internal/storage"
	"ricevute/internal/transport"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg := config.Load()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	// Bad credentials must surface at startup, not on the first sync.
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

	singleCfg := services.SingleConfig{
		FolderID:        cfg.DriveFolderID,
		DownloadTimeout: cfg.SingleDownloadTimeout,
		MaxBytes:        cfg.MaxFileSizeBytes,
	}
	single := services.NewSingleSync(hc, tokens, uploader, singleCfg)

	bulkCfg := services.BulkConfig{
		FolderID:        cfg.DriveFolderID,
		BatchSize:       cfg.SyncBatchSize,
		BatchPause:      cfg.SyncBatchPause,
		DownloadTimeout: cfg.DownloadTimeout,
	}
	bulk := services.NewBulkSync(hc, tokens, uploader, lister, store, bulkCfg)

	// Initialize SQLite journal for sync run history
	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	// AMQP is optional: without it the enqueue endpoint degrades to 503.
	var publisher apphttp.SyncPublisher
	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Warn("AMQP unavailable, async enqueue disabled", "error", err)
	} else {
		defer amqpClient.Close()
		publisher = amqpClient
	}

	srv := apphttp.NewServer(":"+cfg.Port, single, bulk, repo, publisher)

	// Configure server timeouts and limits
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 15 * time.Minute // bulk runs answer on this connection
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	// Graceful shutdown handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting ricevute server", "port", cfg.Port, "bucket", cfg.StorageBucket)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
