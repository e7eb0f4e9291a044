// Package retry provides the single retry policy shared by the crawler
// (network failures) and the ingestion merger (persistence failures).
package retry

import (
	"context"
	"errors"
	"time"
)

// Policy bounds retry attempts with an exponential backoff curve.
// MaxRetries counts retries after the first attempt; the wait before retry
// n is Backoff << (n-1), capped at BackoffMax.
type Policy struct {
	MaxRetries int
	Backoff    time.Duration
	BackoffMax time.Duration
}

type permanentError struct {
	err error
}

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying; Do returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// Do runs attempt until it succeeds, returns a permanent error, or the
// retry budget is exhausted. The context cancels waits between attempts.
func (p Policy) Do(ctx context.Context, attempt func() error) error {
	var err error
	for try := 0; ; try++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		err = attempt()
		if err == nil {
			return nil
		}
		var perm permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if try >= p.MaxRetries {
			return err
		}
		if waitErr := sleep(ctx, p.wait(try+1)); waitErr != nil {
			return waitErr
		}
	}
}

func (p Policy) wait(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	base := p.Backoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	delay := base * time.Duration(1<<(attempt-1))
	if max := p.BackoffMax; max > 0 && delay > max {
		delay = max
	}
	return delay
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
