// Package bucket is the client for the managed storage backend holding the
// uploaded receipt files. The relay only needs two of its capabilities:
// listing entries under a prefix and building a file's public URL.
package bucket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"ricevute/internal/core"
	"ricevute/internal/transport"
)

// listLimit bounds a single listing call; receipt folders stay far below it.
const listLimit = 1000

// Client talks to the storage REST API with the shared retrying transport.
type Client struct {
	http       *transport.Client
	baseURL    string
	bucket     string
	serviceKey string
}

// NewClient creates a storage client for one bucket. serviceKey is the
// backend service-role key; it authorizes listing calls.
func NewClient(hc *transport.Client, baseURL, bucketName, serviceKey string) *Client {
	return &Client{
		http:       hc,
		baseURL:    strings.TrimRight(baseURL, "/"),
		bucket:     bucketName,
		serviceKey: serviceKey,
	}
}

// listRow is the wire shape of one listing entry. Folders come back
// without file metadata; files always carry it, even at size zero.
type listRow struct {
	Name     string `json:"name"`
	Metadata *struct {
		Size int64 `json:"size"`
	} `json:"metadata"`
}

// List returns the entries directly under prefix. The folder/file
// distinction is made explicit here so callers never have to probe for a
// missing size attribute.
func (c *Client) List(ctx context.Context, prefix string) ([]core.Entry, error) {
	payload, err := json.Marshal(map[string]any{
		"prefix": prefix,
		"limit":  listLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("bucket: marshal list request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/storage/v1/object/list/%s", c.baseURL, c.bucket)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("bucket: build list request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("apikey", c.serviceKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bucket: list %q: %w", prefix, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("bucket: list %q: HTTP %d: %s", prefix, resp.StatusCode, body)
	}

	var rows []listRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("bucket: decode list response: %w", err)
	}

	entries := make([]core.Entry, 0, len(rows))
	for _, row := range rows {
		if row.Name == "" {
			continue
		}
		if row.Metadata == nil {
			entries = append(entries, core.Entry{Name: row.Name, Kind: core.EntryFolder})
			continue
		}
		entries = append(entries, core.Entry{Name: row.Name, Kind: core.EntryFile, Size: row.Metadata.Size})
	}
	return entries, nil
}

// PublicURL builds the retrievable URL for a stored file path. Each path
// segment is escaped individually so user-prefixed paths keep their slashes.
func (c *Client) PublicURL(path string) string {
	segments := strings.Split(strings.TrimLeft(path, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", c.baseURL, c.bucket, strings.Join(segments, "/"))
}
