package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errRetryable = errors.New("retryable")

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), DefaultPolicy, func(error) bool { return true }, func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	policy := Policy{MaxAttempts: 3, Backoff: time.Millisecond}
	err := Do(context.Background(), policy, func(err error) bool { return errors.Is(err, errRetryable) }, func(context.Context) error {
		calls++
		if calls < 3 {
			return errRetryable
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	policy := Policy{MaxAttempts: 3, Backoff: time.Millisecond}
	err := Do(context.Background(), policy, func(error) bool { return true }, func(context.Context) error {
		calls++
		return errRetryable
	})
	require.ErrorIs(t, err, errRetryable)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	fatal := errors.New("fatal")
	calls := 0
	err := Do(context.Background(), DefaultPolicy, func(err error) bool { return errors.Is(err, errRetryable) }, func(context.Context) error {
		calls++
		return fatal
	})
	require.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestDoHonoursContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, DefaultPolicy, func(error) bool { return true }, func(context.Context) error {
		t.Fatal("op should not run after cancellation")
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
}
