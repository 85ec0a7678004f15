package backoff

import (
	"context"
	"errors"
	"fmt"
)

// ErrAttemptsExhausted wraps the last failure once every attempt is spent.
var ErrAttemptsExhausted = errors.New("retry attempts exhausted")

// Retry runs op up to attempts times, sleeping per policy between failures.
// retryable decides whether a failure is worth another attempt; a nil
// retryable treats every error as transient. The last error is returned
// wrapped in ErrAttemptsExhausted when the budget runs out, or as-is when
// retryable rejects it.
func Retry(ctx context.Context, policy Policy, attempts int, retryable func(error) bool, op func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	b := New(policy)

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if retryable != nil && !retryable(lastErr) {
			return lastErr
		}
		if attempt == attempts-1 {
			break
		}
		if err := Sleep(ctx, b.Next()); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: %w", ErrAttemptsExhausted, lastErr)
}
