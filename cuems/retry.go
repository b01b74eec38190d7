package cuems

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrRetryExhausted is returned when a RetryPolicy runs out of attempts
var ErrRetryExhausted = errors.New("retry attempts exhausted")

// DelayFunc returns how long to wait after the given failed attempt (1-based)
type DelayFunc func(attempt int) time.Duration

// Fixed waits the same delay after every attempt
func Fixed(d time.Duration) DelayFunc {
	return func(int) time.Duration { return d }
}

// Linear waits attempt*step after each attempt
func Linear(step time.Duration) DelayFunc {
	return func(attempt int) time.Duration { return time.Duration(attempt) * step }
}

// RetryPolicy bounds how often and how far apart an operation is retried.
// MaxAttempts of zero means unlimited.
type RetryPolicy struct {
	MaxAttempts int
	Delay       DelayFunc
}

// NextDelay returns the wait before the attempt following the given failed
// attempt, and false when no further attempt is allowed.
func (p RetryPolicy) NextDelay(attempt int) (time.Duration, bool) {
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		return 0, false
	}
	if p.Delay == nil {
		return 0, true
	}
	return p.Delay(attempt), true
}

// Do calls fn until it succeeds, the policy is exhausted or ctx is done
func (p RetryPolicy) Do(ctx context.Context, fn func(attempt int) error) error {
	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}

		delay, ok := p.NextDelay(attempt)
		if !ok {
			return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempt, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
