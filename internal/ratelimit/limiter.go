// Package ratelimit implements named fixed-window rate limit policies over a
// pluggable counter store.
//
// The fixed-window scheme admits up to 2x the configured rate across a window
// boundary. That is a deliberate trade: the window key maps 1:1 onto the
// store's atomic increment-with-expiry primitive, which keeps multi-replica
// counting exact without extra round trips.
package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lumenchat/governor/internal/ratelimit/store"
)

// Decision is the outcome of checking one policy for one identity.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	Policy    Policy
}

// Limiter evaluates policies against the counter store. Checking a request
// always consumes quota, including the request that trips the limit; there is
// no separate reserve/commit step.
type Limiter struct {
	policies *PolicySet
	counters store.Store
	clock    func() time.Time
	logger   *zap.Logger
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(l *Limiter) { l.clock = clock }
}

// NewLimiter builds a Limiter over the given policy registry and store.
func NewLimiter(policies *PolicySet, counters store.Store, logger *zap.Logger, opts ...Option) *Limiter {
	l := &Limiter{
		policies: policies,
		counters: counters,
		clock:    func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Policies exposes the registry, for route-rule scope lookups.
func (l *Limiter) Policies() *PolicySet {
	return l.policies
}

// Check charges one request against policyName for identity and decides
// whether it is allowed. An unknown policy name is a configuration error and
// is returned as such. A store failure past the failover layer fails open:
// the request is allowed and the degradation is logged, never propagated as a
// denial.
func (l *Limiter) Check(ctx context.Context, policyName, identity string) (Decision, error) {
	policy, err := l.policies.Get(policyName)
	if err != nil {
		return Decision{}, err
	}

	now := l.clock()
	windowStart := now.Truncate(policy.Window)
	key := store.Key(policy.Name, identity, windowStart)

	counter, err := l.counters.Incr(ctx, key, windowStart, policy.Window)
	if err != nil {
		l.logger.Warn("rate limit check failed open",
			zap.String("policy", policy.Name),
			zap.String("identity", identity),
			zap.Error(err))
		return Decision{
			Allowed:   true,
			Limit:     policy.MaxRequests,
			Remaining: policy.MaxRequests,
			ResetAt:   windowStart.Add(policy.Window),
			Policy:    policy,
		}, nil
	}

	remaining := policy.MaxRequests - int(counter.Count)
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:   counter.Count <= int64(policy.MaxRequests),
		Limit:     policy.MaxRequests,
		Remaining: remaining,
		ResetAt:   counter.ResetAt,
		Policy:    policy,
	}, nil
}
