// Package retry provides a generic exponential-backoff wrapper for
// transient external calls (secret retrieval, Slack delivery).
package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy bounds the attempts of a retried operation. The delay before
// attempt n (n >= 2) is BaseDelay * 2^(n-2).
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultPolicy matches the defaults used by the secrets loader and the
// Slack notifier.
var DefaultPolicy = Policy{MaxAttempts: 3, BaseDelay: 250 * time.Millisecond}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultPolicy.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultPolicy.BaseDelay
	}
	return p
}

// ExhaustedError reports that every attempt failed. It wraps the last
// failure so callers can still errors.Is/As against the underlying cause.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Do runs fn up to p.MaxAttempts times, sleeping with exponential backoff
// between attempts. The wait is timer-based and honors ctx cancellation.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	p = p.withDefaults()

	var lastErr error
	delay := p.BaseDelay
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
			delay *= 2
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if lastErr = fn(ctx); lastErr == nil {
			return nil
		}
	}
	return &ExhaustedError{Attempts: p.MaxAttempts, Err: lastErr}
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := Do(ctx, p, func(ctx context.Context) error {
		var innerErr error
		out, innerErr = fn(ctx)
		return innerErr
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
