package coordinator

import (
	"context"
	"time"
)

// withRetry runs fn up to attempts times, sleeping delay*attempt between
// failures (linear backoff). It returns the number of attempts made and
// the last error, nil once fn succeeds. Context cancellation aborts the
// backoff sleep and is returned as the final error.
func withRetry(ctx context.Context, attempts int, delay time.Duration, fn func(context.Context) error) (int, error) {
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return attempt, nil
		}

		if attempt < attempts {
			if err := sleepContext(ctx, delay*time.Duration(attempt)); err != nil {
				return attempt, err
			}
		}
	}
	return attempts, lastErr
}
