package datasource

import (
	"context"
	"time"
)

// Default retry policy for flaky data backends: three attempts in
// total, delay doubling from one second.
const (
	defaultRetryAttempts = 3
	defaultRetryBackoff  = time.Second
)

// withRetry runs fn up to maxAttempts times, doubling the delay
// between attempts and honoring context cancellation while waiting.
// Non-positive inputs fall back to the default policy.
func withRetry(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func(context.Context) error) error {
	if maxAttempts <= 0 {
		maxAttempts = defaultRetryAttempts
	}
	if baseDelay <= 0 {
		baseDelay = defaultRetryBackoff
	}

	delay := baseDelay
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= maxAttempts {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
	}
}
