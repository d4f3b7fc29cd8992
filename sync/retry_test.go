package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetry_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := fastRetry().Do(context.Background(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_RetriesTransportErrors(t *testing.T) {
	calls := 0
	err := fastRetry().Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return &TransportError{Op: "download", URL: "http://x", Err: errors.New("reset")}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_ExhaustsBudget(t *testing.T) {
	calls := 0
	boom := &TransportError{Op: "download", URL: "http://x", Err: errors.New("down")}
	err := fastRetry().Do(context.Background(), func() error {
		calls++
		return boom
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)

	var te *TransportError
	assert.ErrorAs(t, err, &te)
}

func TestRetry_NonRetryableReturnsImmediately(t *testing.T) {
	calls := 0
	err := fastRetry().Do(context.Background(), func() error {
		calls++
		return errors.New("structural")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "only transport failures are retried")
}

func TestRetry_ContextCancelStopsBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := RetryPolicy{
		MaxAttempts: 3,
		Backoff:     func(int) time.Duration { return time.Hour },
	}

	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := p.Do(ctx, func() error {
		calls++
		return &TransportError{Op: "download", URL: "http://x", Err: errors.New("slow")}
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDefaultRetryPolicy_Backoff(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, 2*time.Second, p.Backoff(1))
	assert.Equal(t, 4*time.Second, p.Backoff(2))
	assert.Equal(t, 8*time.Second, p.Backoff(3))
}
