// Package transport provides the retrying HTTP client shared by every
// outbound call of the receipt-sync relay: retry on transient failures with
// a fixed backoff schedule, immediate return of client errors, and no retry
// across an expired deadline.
package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const maxAttempts = 3

// Fixed backoff schedule, indexed by the attempt that just failed.
var retryDelays = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// Client wraps an http.Client with bounded retries. Only network-level
// failures and HTTP 5xx/429 responses are retried; any other status is
// returned to the caller as-is for classification. A canceled or expired
// context is terminal and never retried here.
type Client struct {
	httpClient *http.Client

	// sleepFunc waits between attempts. Tests override it to assert the
	// schedule without real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewClient creates a retrying client. A nil httpClient falls back to
// http.DefaultClient.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient: httpClient,
		sleepFunc:  sleepContext,
	}
}

// SetSleep overrides the wait between attempts. Tests use it to assert the
// backoff schedule without real delays.
func (c *Client) SetSleep(fn func(ctx context.Context, d time.Duration) error) {
	if fn != nil {
		c.sleepFunc = fn
	}
}

// Do executes the request with up to three attempts. Requests carrying a
// body must be built with http.NewRequestWithContext from a rewindable
// reader so GetBody can replay it on retry.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if err := rewindBody(req); err != nil {
				return nil, fmt.Errorf("transport: rewind request body: %w", err)
			}
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				// Deadline expiry or cancellation: the caller owns
				// the decision to retry at a higher level.
				return nil, fmt.Errorf("transport: request canceled: %w", ctx.Err())
			}
			lastErr = err
			if attempt < maxAttempts-1 {
				if serr := c.wait(ctx, req, attempt, 0); serr != nil {
					return nil, serr
				}
				continue
			}
			return nil, &Error{Attempts: maxAttempts, Err: ErrExhausted, Cause: lastErr}
		}

		if !retryableStatus(resp.StatusCode) {
			// Success and non-retryable client errors alike are the
			// caller's to interpret.
			return resp, nil
		}

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		lastErr = &Error{
			Attempts:   attempt + 1,
			StatusCode: resp.StatusCode,
			Body:       string(body),
			Err:        ErrExhausted,
		}

		if attempt < maxAttempts-1 {
			if serr := c.wait(ctx, req, attempt, resp.StatusCode); serr != nil {
				return nil, serr
			}
			continue
		}
	}

	if terr, ok := lastErr.(*Error); ok {
		terr.Attempts = maxAttempts
		return nil, terr
	}
	return nil, &Error{Attempts: maxAttempts, Err: ErrExhausted, Cause: lastErr}
}

func (c *Client) wait(ctx context.Context, req *http.Request, attempt, status int) error {
	delay := retryDelays[len(retryDelays)-1]
	if attempt < len(retryDelays) {
		delay = retryDelays[attempt]
	}
	slog.WarnContext(ctx, "Retrying request",
		"method", req.Method,
		"url", req.URL.String(),
		"attempt", attempt+1,
		"status", status,
		"delay", delay)
	if err := c.sleepFunc(ctx, delay); err != nil {
		return fmt.Errorf("transport: request canceled: %w", err)
	}
	return nil
}

// retryableStatus reports whether a response status warrants another
// attempt: server-side failures and rate limiting only.
func retryableStatus(code int) bool {
	return code >= http.StatusInternalServerError || code == http.StatusTooManyRequests
}

func rewindBody(req *http.Request) error {
	if req.Body == nil || req.GetBody == nil {
		return nil
	}
	body, err := req.GetBody()
	if err != nil {
		return err
	}
	req.Body = body
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
