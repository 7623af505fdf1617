// Package breaker implements a per-dependency circuit breaker. A breaker
// wraps calls to one named external dependency (the database, the AI
// provider) and sheds load during outages by rejecting calls outright until a
// cooldown elapses.
package breaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the breaker's position in its lifecycle.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitOpenError is returned when a call is rejected without being invoked.
// It is retryable after NextAttempt and must not be retried internally; the
// retry executor composes with the breaker from the outside.
type CircuitOpenError struct {
	Name        string
	NextAttempt time.Time
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit %q open until %s", e.Name, e.NextAttempt.Format(time.RFC3339))
}

// Settings configures one breaker.
type Settings struct {
	// Name identifies the wrapped dependency in logs and errors.
	Name string
	// FailureThreshold is the consecutive-failure count that trips the
	// breaker while closed. A success resets the count.
	FailureThreshold int
	// Cooldown is how long the breaker stays open before admitting a
	// half-open trial.
	Cooldown time.Duration
}

func (s Settings) validate() error {
	if s.Name == "" {
		return fmt.Errorf("breaker missing name")
	}
	if s.FailureThreshold <= 0 {
		return fmt.Errorf("breaker %q: failure threshold must be positive, got %d", s.Name, s.FailureThreshold)
	}
	if s.Cooldown <= 0 {
		return fmt.Errorf("breaker %q: cooldown must be positive, got %s", s.Name, s.Cooldown)
	}
	return nil
}

// Breaker is the three-state machine guarding one dependency. All transitions
// happen under one mutex so concurrent callers cannot both claim the
// half-open trial slot.
type Breaker struct {
	settings Settings
	clock    func() time.Time
	logger   *zap.Logger

	mu            sync.Mutex
	state         State
	failureCount  int
	lastFailure   time.Time
	nextAttempt   time.Time
	trialInFlight bool
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(b *Breaker) { b.clock = clock }
}

// New builds a closed breaker from settings.
func New(settings Settings, logger *zap.Logger, opts ...Option) (*Breaker, error) {
	if err := settings.validate(); err != nil {
		return nil, err
	}
	b := &Breaker{
		settings: settings,
		clock:    func() time.Time { return time.Now().UTC() },
		logger:   logger.With(zap.String("breaker", settings.Name)),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Execute runs fn under the breaker. While open it returns *CircuitOpenError
// without invoking fn; otherwise fn's own error or nil propagates unchanged
// and drives the state machine. Any non-nil error counts as a failure:
// classifying errors is the caller's job, not the breaker's.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := b.beforeCall(); err != nil {
		return err
	}

	err := fn(ctx)
	b.afterCall(err == nil)
	return err
}

// State returns the breaker's current state, advancing OPEN to the rejection
// view only; the OPEN→HALF_OPEN transition happens on a call attempt.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Name returns the wrapped dependency's name.
func (b *Breaker) Name() string {
	return b.settings.Name
}

func (b *Breaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil

	case StateOpen:
		if b.clock().Before(b.nextAttempt) {
			return &CircuitOpenError{Name: b.settings.Name, NextAttempt: b.nextAttempt}
		}
		// Cooldown elapsed: this caller becomes the half-open trial.
		b.state = StateHalfOpen
		b.trialInFlight = true
		b.logger.Info("circuit half-open, admitting trial call")
		return nil

	case StateHalfOpen:
		if b.trialInFlight {
			return &CircuitOpenError{Name: b.settings.Name, NextAttempt: b.nextAttempt}
		}
		b.trialInFlight = true
		return nil

	default:
		return &CircuitOpenError{Name: b.settings.Name, NextAttempt: b.nextAttempt}
	}
}

func (b *Breaker) afterCall(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		if success {
			b.failureCount = 0
			return
		}
		b.failureCount++
		b.lastFailure = b.clock()
		if b.failureCount >= b.settings.FailureThreshold {
			b.trip()
		}

	case StateHalfOpen:
		b.trialInFlight = false
		if success {
			b.state = StateClosed
			b.failureCount = 0
			b.logger.Info("circuit closed after successful trial")
			return
		}
		b.lastFailure = b.clock()
		b.trip()
	}
}

// trip moves to OPEN and schedules the next trial. Callers hold b.mu.
func (b *Breaker) trip() {
	b.state = StateOpen
	b.trialInFlight = false
	b.nextAttempt = b.clock().Add(b.settings.Cooldown)
	b.logger.Warn("circuit opened",
		zap.Int("failures", b.failureCount),
		zap.Time("next_attempt", b.nextAttempt))
}
