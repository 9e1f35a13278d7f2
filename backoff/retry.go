package backoff

import (
	"context"
	"fmt"
	"time"
)

// Retry runs fn up to attempts times, sleeping strategy.Delay between
// failures. The first call counts as attempt 0; strategy.Delay(1) is the
// wait before the first retry. A nil strategy disables delays.
//
// If timeout is non-zero, each attempt runs under its own deadline so a
// hung upstream call cannot stall the whole retry loop. Retry stops early
// when ctx is cancelled and returns ctx.Err().
func Retry[T any](ctx context.Context, attempts int, timeout time.Duration, strategy Strategy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 && strategy != nil {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(strategy.Delay(attempt)):
			}
		}

		out, err := runAttempt(ctx, timeout, fn)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
	}

	return zero, fmt.Errorf("all %d attempts failed: %w", attempts, lastErr)
}

func runAttempt[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return fn(ctx)
}
