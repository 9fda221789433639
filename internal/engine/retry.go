package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const maxAttempts = 2

// apiError represents an error from a model API that may or may not be retryable.
type apiError struct {
	StatusCode int
	Body       string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// isRetryable returns true for transient errors (rate limit, server errors).
func (e *apiError) isRetryable() bool {
	return e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= http.StatusInternalServerError
}

// withRetry runs do up to maxAttempts times, backing off between transient
// failures. Errors are prefixed with the provider name.
func withRetry(ctx context.Context, provider string, backoff time.Duration, do func() (string, error)) (string, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		result, err := do()
		if err == nil {
			return result, nil
		}
		lastErr = err

		// Only retry on transient/retryable errors.
		var ae *apiError
		if errors.As(err, &ae) && !ae.isRetryable() {
			return "", fmt.Errorf("%s: %w", provider, err)
		}

		// Backoff before retry (skip on last attempt).
		if attempt < maxAttempts-1 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt+1) * backoff):
			}
		}
	}
	return "", fmt.Errorf("%s: %w", provider, lastErr)
}
