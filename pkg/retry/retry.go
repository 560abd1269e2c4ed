package retry

import (
	"context"
	"errors"
	"time"
)

// Policy bounds a retry loop around an operation that can fail with a
// retryable error. Backoff grows linearly with the attempt number.
type Policy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultPolicy mirrors the bounded retry recommended for transaction
// conflicts: three attempts with a short backoff.
var DefaultPolicy = Policy{MaxAttempts: 3, Backoff: 50 * time.Millisecond}

// Do runs op until it succeeds, fails with a non-retryable error, the
// attempt budget is exhausted, or the context is cancelled. retryable
// decides which errors warrant another attempt; op must re-read any
// state it depends on, since stale values from a failed attempt must
// never be reused.
func Do(ctx context.Context, policy Policy, retryable func(error) bool, op func(ctx context.Context) error) error {
	attempts := policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if retryable == nil || !retryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		if policy.Backoff > 0 {
			timer := time.NewTimer(time.Duration(attempt) * policy.Backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return errors.Join(ctx.Err(), lastErr)
			case <-timer.C:
			}
		}
	}

	return lastErr
}
