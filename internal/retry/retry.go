// Package retry provides a bounded retry combinator for idempotent calls.
package retry

import (
	"context"
	"time"
)

// BackoffFunc returns how long to wait after a failed attempt. attempt is
// 1-based: the wait inserted between attempt n and attempt n+1 is
// backoff(n).
type BackoffFunc func(attempt int) time.Duration

// Linear grows the wait by a fixed step per attempt: step, 2*step, 3*step...
func Linear(step time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		return time.Duration(attempt) * step
	}
}

var sleep = func(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do calls fn up to attempts times, waiting backoff(attempt) between
// failures. The first successful result stops the loop immediately. The last
// error is returned when every attempt fails or the context is cancelled
// during a wait.
func Do[T any](ctx context.Context, attempts int, backoff BackoffFunc, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == attempts {
			break
		}
		if err := sleep(ctx, backoff(attempt)); err != nil {
			return zero, err
		}
	}
	return zero, lastErr
}
