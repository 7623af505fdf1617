package store

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// FailoverStore serves from a primary Store and fails open to a process-local
// fallback when the primary is unreachable. It never fails closed: a counter
// store outage must not block all traffic. Every call still probes the
// primary first, so recovery needs no extra machinery.
type FailoverStore struct {
	primary  Store
	fallback Store
	logger   *zap.Logger
	logLimit *rate.Limiter
	degraded atomic.Bool
}

// NewFailoverStore wires primary and fallback. Outage logging is throttled so
// a hard redis outage does not turn every request into a warn line.
func NewFailoverStore(primary, fallback Store, logger *zap.Logger) *FailoverStore {
	return &FailoverStore{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		logLimit: rate.NewLimiter(rate.Every(10*time.Second), 1),
	}
}

// Incr implements Store.
func (f *FailoverStore) Incr(ctx context.Context, key string, windowStart time.Time, window time.Duration) (Counter, error) {
	c, err := f.primary.Incr(ctx, key, windowStart, window)
	if err == nil {
		if f.degraded.CompareAndSwap(true, false) {
			f.logger.Info("counter store recovered, leaving degraded mode")
		}
		return c, nil
	}

	f.markDegraded(err)
	return f.fallback.Incr(ctx, key, windowStart, window)
}

// Peek implements Store.
func (f *FailoverStore) Peek(ctx context.Context, key string) (Counter, bool, error) {
	c, ok, err := f.primary.Peek(ctx, key)
	if err == nil {
		return c, ok, nil
	}

	f.markDegraded(err)
	return f.fallback.Peek(ctx, key)
}

// Degraded reports whether the last primary call failed.
func (f *FailoverStore) Degraded() bool {
	return f.degraded.Load()
}

func (f *FailoverStore) markDegraded(err error) {
	f.degraded.Store(true)
	if f.logLimit.Allow() {
		f.logger.Warn("counter store unavailable, serving limits from in-process fallback",
			zap.Error(err))
	}
}
