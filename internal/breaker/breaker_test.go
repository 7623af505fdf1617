package breaker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errUpstream = errors.New("upstream down")

func newTestBreaker(t *testing.T, now *time.Time, threshold int, cooldown time.Duration) *Breaker {
	t.Helper()
	b, err := New(Settings{
		Name:             "ai-provider",
		FailureThreshold: threshold,
		Cooldown:         cooldown,
	}, zap.NewNop(), WithClock(func() time.Time { return *now }))
	require.NoError(t, err)
	return b
}

func fail(context.Context) error { return errUpstream }
func ok(context.Context) error   { return nil }

func trip(t *testing.T, b *Breaker, threshold int) {
	t.Helper()
	for i := 0; i < threshold; i++ {
		err := b.Execute(context.Background(), fail)
		require.ErrorIs(t, err, errUpstream)
	}
	require.Equal(t, StateOpen, b.State())
}

func TestBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := newTestBreaker(t, &now, 3, 10*time.Second)
	ctx := context.Background()

	// Two failures then a success: the success resets the count.
	require.ErrorIs(t, b.Execute(ctx, fail), errUpstream)
	require.ErrorIs(t, b.Execute(ctx, fail), errUpstream)
	require.NoError(t, b.Execute(ctx, ok))
	assert.Equal(t, StateClosed, b.State())

	trip(t, b, 3)
}

func TestOpenBreakerRejectsWithoutInvoking(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := newTestBreaker(t, &now, 3, 10*time.Second)
	trip(t, b, 3)

	var invoked bool
	err := b.Execute(context.Background(), func(context.Context) error {
		invoked = true
		return nil
	})

	var open *CircuitOpenError
	require.ErrorAs(t, err, &open)
	assert.False(t, invoked, "open breaker must not call the operation")
	assert.Equal(t, "ai-provider", open.Name)
	assert.Equal(t, now.Add(10*time.Second), open.NextAttempt)
}

func TestBreakerStaysOpenUntilCooldown(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := newTestBreaker(t, &now, 3, 10*time.Second)
	trip(t, b, 3)

	now = now.Add(5 * time.Second)
	var open *CircuitOpenError
	require.ErrorAs(t, b.Execute(context.Background(), ok), &open)

	now = now.Add(6 * time.Second) // t+11s, past the cooldown
	require.NoError(t, b.Execute(context.Background(), ok))
	assert.Equal(t, StateClosed, b.State())
}

func TestSuccessfulTrialClosesAndResets(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := newTestBreaker(t, &now, 3, 10*time.Second)
	ctx := context.Background()
	trip(t, b, 3)

	now = now.Add(11 * time.Second)
	require.NoError(t, b.Execute(ctx, ok))
	require.Equal(t, StateClosed, b.State())

	// The failure count was reset: it takes a full threshold of fresh
	// failures to trip again.
	require.ErrorIs(t, b.Execute(ctx, fail), errUpstream)
	require.ErrorIs(t, b.Execute(ctx, fail), errUpstream)
	assert.Equal(t, StateClosed, b.State())
}

func TestFailedTrialReopens(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := newTestBreaker(t, &now, 3, 10*time.Second)
	ctx := context.Background()
	trip(t, b, 3)

	now = now.Add(11 * time.Second)
	require.ErrorIs(t, b.Execute(ctx, fail), errUpstream)
	require.Equal(t, StateOpen, b.State())

	// The cooldown restarts from the failed trial.
	var open *CircuitOpenError
	require.ErrorAs(t, b.Execute(ctx, ok), &open)
	assert.Equal(t, now.Add(10*time.Second), open.NextAttempt)
}

func TestHalfOpenAdmitsExactlyOneConcurrentTrial(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := newTestBreaker(t, &now, 3, 10*time.Second)
	trip(t, b, 3)

	now = now.Add(11 * time.Second)

	const callers = 20
	release := make(chan struct{})
	var invocations atomic.Int64
	var rejections atomic.Int64

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := b.Execute(context.Background(), func(context.Context) error {
				invocations.Add(1)
				<-release // hold the trial slot while the others arrive
				return nil
			})
			var open *CircuitOpenError
			if errors.As(err, &open) {
				rejections.Add(1)
			}
		}()
	}

	// Give every caller a chance to hit beforeCall, then release the trial.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int64(1), invocations.Load(), "exactly one caller is the trial")
	assert.Equal(t, int64(callers-1), rejections.Load())
	assert.Equal(t, StateClosed, b.State(), "the successful trial closed the circuit")
}

func TestRegistryLookup(t *testing.T) {
	reg, err := NewRegistry([]Settings{
		{Name: "database", FailureThreshold: 5, Cooldown: 30 * time.Second},
		{Name: "ai-provider", FailureThreshold: 3, Cooldown: 10 * time.Second},
	}, zap.NewNop())
	require.NoError(t, err)

	b, err := reg.Get("database")
	require.NoError(t, err)
	assert.Equal(t, "database", b.Name())

	_, err = reg.Get("billing")
	assert.Error(t, err, "undeclared dependencies are configuration errors")

	states := reg.States()
	assert.Equal(t, map[string]string{"database": "closed", "ai-provider": "closed"}, states)
}

func TestRegistryRejectsDuplicatesAndBadSettings(t *testing.T) {
	_, err := NewRegistry([]Settings{
		{Name: "database", FailureThreshold: 5, Cooldown: time.Second},
		{Name: "database", FailureThreshold: 5, Cooldown: time.Second},
	}, zap.NewNop())
	assert.Error(t, err)

	_, err = NewRegistry([]Settings{{Name: "database", Cooldown: time.Second}}, zap.NewNop())
	assert.Error(t, err)

	_, err = NewRegistry([]Settings{{Name: "database", FailureThreshold: 1}}, zap.NewNop())
	assert.Error(t, err)
}
