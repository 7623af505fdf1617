// Package retry runs operations with bounded attempts and exponential
// backoff. Only errors the caller's classifier marks transient are retried;
// everything else propagates immediately.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"time"
)

// Policy bounds a retried operation. Policies are plain parameters, never
// persisted.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      bool
}

// ExhaustedError wraps the final error after all attempts failed.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

type options struct {
	retryIf func(error) bool
}

// Option configures one Do call.
type Option func(*options)

// WithRetryIf replaces the transient-error classifier.
func WithRetryIf(retryIf func(error) bool) Option {
	return func(o *options) { o.retryIf = retryIf }
}

// Transient is the default classifier: network and timeout class errors are
// worth another attempt, anything else (validation, business errors) is not.
func Transient(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// Do runs fn up to policy.MaxAttempts times, sleeping between attempts per
// the backoff schedule. Context cancellation aborts the wait and returns the
// context's error. Exhausting attempts returns an *ExhaustedError wrapping
// the last failure.
func Do(ctx context.Context, policy Policy, fn func(context.Context) error, opts ...Option) error {
	o := options{retryIf: Transient}
	for _, opt := range opts {
		opt(&o)
	}

	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !o.retryIf(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}
		if err := sleep(ctx, delayFor(policy, attempt)); err != nil {
			return err
		}
	}

	return &ExhaustedError{Attempts: attempts, Err: lastErr}
}

// delayFor computes the wait after the given 1-based attempt:
// min(base * 2^(attempt-1), max), plus jitter in [0, delay) when enabled.
func delayFor(policy Policy, attempt int) time.Duration {
	delay := policy.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if policy.MaxDelay > 0 && delay >= policy.MaxDelay {
			delay = policy.MaxDelay
			break
		}
	}
	if policy.MaxDelay > 0 && delay > policy.MaxDelay {
		delay = policy.MaxDelay
	}
	if policy.Jitter && delay > 0 {
		delay += time.Duration(rand.Int63n(int64(delay)))
	}
	return delay
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
