package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ricevute/internal/transport"
)

// SingleConfig tunes one single-file sync pipeline.
type SingleConfig struct {
	// FolderID is the destination Drive folder.
	FolderID string

	// DownloadTimeout bounds the source fetch (default 30s).
	DownloadTimeout time.Duration

	// MaxBytes caps the payload size (default 10MB).
	MaxBytes int64
}

// DefaultSingleConfig returns the production limits.
func DefaultSingleConfig(folderID string) SingleConfig {
	return SingleConfig{
		FolderID:        folderID,
		DownloadTimeout: 30 * time.Second,
		MaxBytes:        10 << 20,
	}
}

// SingleResult is the externally visible outcome of a successful sync.
type SingleResult struct {
	FileID      string
	WebViewLink string
}

// SingleSync relays one uploaded receipt to the remote drive:
// validate, download, enforce the size cap, authenticate, upload.
// Invocations are independent; each mints its own token and shares no
// mutable state with concurrent runs.
type SingleSync struct {
	http     *transport.Client
	tokens   TokenSource
	uploader Uploader
	cfg      SingleConfig
}

func NewSingleSync(hc *transport.Client, tokens TokenSource, uploader Uploader, cfg SingleConfig) *SingleSync {
	return &SingleSync{
		http:     hc,
		tokens:   tokens,
		uploader: uploader,
		cfg:      cfg,
	}
}

// Run executes the pipeline for one source URL. Any failure aborts the
// whole operation; there is never partial success.
func (s *SingleSync) Run(ctx context.Context, fileURL string) (SingleResult, error) {
	fileURL = strings.TrimSpace(fileURL)
	if fileURL == "" {
		return SingleResult{}, ErrValidation
	}

	start := time.Now()
	slog.InfoContext(ctx, "Single-file sync started", "url", fileURL)

	dctx, cancel := context.WithTimeout(ctx, s.cfg.DownloadTimeout)
	data, err := fetchFile(dctx, s.http, fileURL, s.cfg.MaxBytes)
	cancel()
	if err != nil {
		return SingleResult{}, err
	}

	fileName := fileNameFromURL(fileURL)
	slog.DebugContext(ctx, "Source file downloaded", "name", fileName, "size", len(data))

	token, err := s.tokens.AccessToken(ctx)
	if err != nil {
		return SingleResult{}, err
	}

	fileID, link, err := s.uploader.Upload(ctx, token, data, fileName, s.cfg.FolderID)
	if err != nil {
		return SingleResult{}, fmt.Errorf("upload %s: %w", fileName, err)
	}

	slog.InfoContext(ctx, "Single-file sync completed",
		"name", fileName,
		"file_id", fileID,
		"duration_ms", time.Since(start).Milliseconds())

	return SingleResult{FileID: fileID, WebViewLink: link}, nil
}
