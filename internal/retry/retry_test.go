package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLinearBackoff(t *testing.T) {
	backoff := Linear(350 * time.Millisecond)
	require.Equal(t, 350*time.Millisecond, backoff(1))
	require.Equal(t, 700*time.Millisecond, backoff(2))
}

func TestDoStopsOnFirstSuccess(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), 3, Linear(time.Millisecond), func(ctx context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", got)
	require.Equal(t, 1, calls)
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), 3, Linear(time.Millisecond), func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("boom")
		}
		return 42, nil
	})
	require.NoError(t, err)
	require.Equal(t, 42, got)
	require.Equal(t, 3, calls)
}

func TestDoExhaustsAttemptsWithBackoffSchedule(t *testing.T) {
	origSleep := sleep
	defer func() { sleep = origSleep }()

	var waits []time.Duration
	sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	calls := 0
	wantErr := errors.New("gateway down")
	_, err := Do(context.Background(), 3, Linear(350*time.Millisecond), func(ctx context.Context) (*struct{}, error) {
		calls++
		return nil, wantErr
	})

	require.ErrorIs(t, err, wantErr)
	require.Equal(t, 3, calls)
	// No wait before the first attempt, none after the last.
	require.Equal(t, []time.Duration{350 * time.Millisecond, 700 * time.Millisecond}, waits)
}

func TestDoCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := Do(ctx, 3, Linear(time.Hour), func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("boom")
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}
