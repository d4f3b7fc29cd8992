package sync

import (
	"context"
	"time"
)

// RetryPolicy is the single bounded-attempt policy shared by the listing
// fetch and each file download. Backoff computes the wait before attempt n
// (1-based, called after the n-th failure).
type RetryPolicy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
}

// DefaultRetryPolicy retries three times with exponential backoff: 2s, 4s, 8s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff: func(attempt int) time.Duration {
			return time.Duration(1<<attempt) * time.Second
		},
	}
}

// Do runs fn up to p.MaxAttempts times, sleeping p.Backoff between attempts.
// Non-retryable errors and context cancellation return immediately. The last
// error is returned once attempts are exhausted.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !retryable(err) || attempt == p.MaxAttempts {
			return err
		}
		sub("retry").Info("attempt failed, backing off", "attempt", attempt, "err", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Backoff(attempt)):
		}
	}
	return err
}
