package transport

import (
	"errors"
	"fmt"
)

// ErrExhausted marks a request that failed after the full retry budget.
// Check with errors.Is(err, transport.ErrExhausted).
var ErrExhausted = errors.New("transport: retry attempts exhausted")

// Error carries the last observed failure when the retry budget runs out:
// either the final retryable HTTP status with its body, or the final
// network-level error.
type Error struct {
	Attempts   int
	StatusCode int
	Body       string
	Err        error // sentinel, for errors.Is()
	Cause      error // underlying network error, if any
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport: HTTP %d after %d attempts: %s", e.StatusCode, e.Attempts, e.Body)
	}
	if e.Cause != nil {
		return fmt.Sprintf("transport: request failed after %d attempts: %v", e.Attempts, e.Cause)
	}
	return fmt.Sprintf("transport: request failed after %d attempts", e.Attempts)
}

func (e *Error) Unwrap() error {
	return e.Err
}
