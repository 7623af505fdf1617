package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local Store. It backs tests and the fail-open
// fallback; counts are per process, so under a redis outage a multi-replica
// deployment enforces limits per replica rather than globally.
type MemoryStore struct {
	mu         sync.Mutex
	entries    map[string]*memoryEntry
	clock      func() time.Time
	lastSweep  time.Time
	sweepEvery time.Duration
}

type memoryEntry struct {
	count   int64
	resetAt time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.clock = clock }
}

// WithSweepInterval sets how often expired counters are evicted.
func WithSweepInterval(d time.Duration) MemoryOption {
	return func(s *MemoryStore) { s.sweepEvery = d }
}

// NewMemoryStore creates an empty in-process counter store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries:    make(map[string]*memoryEntry),
		clock:      func() time.Time { return time.Now().UTC() },
		sweepEvery: time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Incr implements Store.
func (s *MemoryStore) Incr(_ context.Context, key string, windowStart time.Time, window time.Duration) (Counter, error) {
	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.maybeSweep(now)

	ent, ok := s.entries[key]
	if !ok || !ent.resetAt.After(now) {
		ent = &memoryEntry{resetAt: windowStart.Add(window)}
		s.entries[key] = ent
	}
	ent.count++
	return Counter{Count: ent.count, ResetAt: ent.resetAt}, nil
}

// Peek implements Store.
func (s *MemoryStore) Peek(_ context.Context, key string) (Counter, bool, error) {
	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[key]
	if !ok || !ent.resetAt.After(now) {
		return Counter{}, false, nil
	}
	return Counter{Count: ent.count, ResetAt: ent.resetAt}, true, nil
}

// maybeSweep drops expired counters. Callers hold s.mu.
func (s *MemoryStore) maybeSweep(now time.Time) {
	if now.Sub(s.lastSweep) < s.sweepEvery {
		return
	}
	s.lastSweep = now
	for key, ent := range s.entries {
		if !ent.resetAt.After(now) {
			delete(s.entries, key)
		}
	}
}

// Len reports the number of live counters, for the admin surface and tests.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
