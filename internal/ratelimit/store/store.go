// Package store provides window counter storage for the rate limiter. The
// distributed implementation is redis; an in-process implementation serves
// tests and the fail-open fallback when redis is unreachable.
package store

import (
	"context"
	"fmt"
	"time"
)

// Counter is the observable state of one window counter.
type Counter struct {
	Count   int64
	ResetAt time.Time
}

// Store tracks request counts per window key. Incr must be atomic: a single
// create-or-increment, never a read-then-write.
type Store interface {
	// Incr increments the counter for key, creating it with an expiry of
	// windowStart+window on first use, and returns the post-increment state.
	Incr(ctx context.Context, key string, windowStart time.Time, window time.Duration) (Counter, error)

	// Peek returns the counter for key without incrementing it. The second
	// return is false when no counter exists.
	Peek(ctx context.Context, key string) (Counter, bool, error)
}

// Key computes the window key for an (identity, policy) pair. The window
// start is part of the key, so a new window always lands on a fresh counter
// and stale ones simply expire.
func Key(policy, identity string, windowStart time.Time) string {
	return fmt.Sprintf("rl:%s:%s:%d", policy, identity, windowStart.UnixMilli())
}
