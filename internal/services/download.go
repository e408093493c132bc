package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"ricevute/internal/transport"
)

var (
	// ErrValidation marks bad or missing input; nothing was attempted.
	ErrValidation = errors.New("sync: no file URL provided")

	// ErrDownload marks a failed or timed-out source fetch.
	ErrDownload = errors.New("sync: download failed")

	// ErrTooLarge marks a payload over the size cap, detected before any
	// authentication or upload cost is incurred.
	ErrTooLarge = errors.New("sync: file too large")
)

// IsTerminal reports whether retrying the same input can never succeed.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrTooLarge)
}

// fetchFile downloads a source file through the retrying client. maxBytes
// of zero or less means uncapped. A deadline expiry is reported as a
// download failure without further retries.
func fetchFile(ctx context.Context, hc *transport.Client, fileURL string, maxBytes int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownload, err)
	}

	resp, err := hc.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: timed out: %v", ErrDownload, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrDownload, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: HTTP %d", ErrDownload, resp.StatusCode)
	}

	reader := io.Reader(resp.Body)
	if maxBytes > 0 {
		reader = io.LimitReader(resp.Body, maxBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return nil, fmt.Errorf("%w: timed out reading body", ErrDownload)
		}
		return nil, fmt.Errorf("%w: read body: %v", ErrDownload, err)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrTooLarge, maxBytes)
	}
	return data, nil
}

// fileNameFromURL derives the destination filename from the trailing path
// segment of the source URL, percent-decoded.
func fileNameFromURL(fileURL string) string {
	raw := fileURL
	if u, err := url.Parse(fileURL); err == nil && u.Path != "" {
		raw = u.Path
	}
	name := path.Base(raw)
	if decoded, err := url.PathUnescape(name); err == nil {
		name = decoded
	}
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == "/" {
		return "receipt"
	}
	return name
}
