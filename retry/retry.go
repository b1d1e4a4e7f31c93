// Package retry runs an operation with bounded attempts and exponential
// backoff. It carries no timeout of its own; wrap the operation's context
// if one is needed.
package retry

import (
	"context"
	"errors"
	"time"
)

type Options struct {
	MaxAttempts int
	Delay       time.Duration
	Backoff     float64
	// ShouldRetry decides whether a failure is worth another attempt.
	// A nil predicate retries everything.
	ShouldRetry func(error) bool
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.Delay <= 0 {
		o.Delay = time.Second
	}
	if o.Backoff <= 0 {
		o.Backoff = 2
	}
	if o.ShouldRetry == nil {
		o.ShouldRetry = func(error) bool { return true }
	}
	return o
}

// Do executes op until it succeeds, the attempt budget runs out, or the
// predicate rejects the failure. The last error is returned as-is so
// callers can still unwrap it.
func Do(ctx context.Context, op func(context.Context) error, opts Options) error {
	o := opts.withDefaults()

	var lastErr error
	delay := o.Delay
	for attempt := 1; attempt <= o.MaxAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == o.MaxAttempts || !o.ShouldRetry(lastErr) {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay = time.Duration(float64(delay) * o.Backoff)
	}
	if lastErr == nil {
		lastErr = errors.New("operation failed after multiple attempts")
	}
	return lastErr
}
