package infra

import (
	"context"
	"time"
)

const (
	backoffBase = 1 * time.Second
	backoffMax  = 60 * time.Second
)

// Backoff returns the exponential backoff delay for a given attempt number:
// base 1s doubled per attempt, capped at 60s. Attempt 0 waits 1s.
func Backoff(attempt int) time.Duration {
	if attempt < 0 {
		return backoffBase
	}
	// 2^30 seconds already exceeds the cap.
	if attempt > 30 {
		return backoffMax
	}
	d := backoffBase * time.Duration(1<<attempt)
	if d > backoffMax {
		return backoffMax
	}
	return d
}

// SleepBackoff sleeps for Backoff(attempt) or until ctx is cancelled,
// returning ctx.Err() in the latter case.
func SleepBackoff(ctx context.Context, attempt int) error {
	t := time.NewTimer(Backoff(attempt))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
