// Package retry runs an operation until it succeeds, with exponential
// backoff between attempts.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// maxDelay caps the backoff so late attempts keep probing at a useful
// rate while a broker restarts.
const maxDelay = 30 * time.Second

// PermanentError marks a failure that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so Do returns it immediately instead of retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Do invokes fn until it returns nil, a permanent error, the context is
// done, or maxAttempts calls have failed. The wait between attempts
// starts at baseDelay and doubles each round with +-25% jitter, so a
// fleet of restarting consumers does not reconnect in lockstep.
func Do(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		var perm *PermanentError
		if errors.As(lastErr, &perm) {
			return perm.Err
		}

		if attempt == maxAttempts {
			break
		}

		timer := time.NewTimer(backoff(attempt, baseDelay))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}

// backoff returns baseDelay doubled attempt-1 times, jittered into
// [0.75d, 1.25d] and capped at maxDelay.
func backoff(attempt int, baseDelay time.Duration) time.Duration {
	d := baseDelay << (attempt - 1)
	if d <= 0 || d > maxDelay {
		d = maxDelay
	}
	jitter := time.Duration(rand.Int64N(int64(d)/2 + 1))
	return d - d/4 + jitter
}
