package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxardolabs/luxanalytics-go/internal/clock"
)

func TestCircuitBreaker_OpensAfterFailureThreshold(t *testing.T) {
	c := clock.NewFrozen(time.Unix(0, 0))
	cb := New(Params{FailureThreshold: 5, ResetTimeout: 60 * time.Second, Clock: c})

	for i := 0; i < 4; i++ {
		require.True(t, cb.Allow())
		cb.RecordFailure()
		require.Equal(t, Closed, cb.State())
	}

	require.True(t, cb.Allow())
	cb.RecordFailure()
	require.Equal(t, Open, cb.State())
}

func TestCircuitBreaker_RejectsWhileOpen(t *testing.T) {
	c := clock.NewFrozen(time.Unix(0, 0))
	cb := New(Params{FailureThreshold: 1, ResetTimeout: 60 * time.Second, Clock: c})

	cb.RecordFailure()
	require.Equal(t, Open, cb.State())
	require.False(t, cb.Allow())
}

func TestCircuitBreaker_TransitionsToHalfOpenAfterResetTimeout(t *testing.T) {
	c := clock.NewFrozen(time.Unix(0, 0))
	cb := New(Params{FailureThreshold: 1, ResetTimeout: 60 * time.Second, Clock: c})

	cb.RecordFailure()
	require.Equal(t, Open, cb.State())

	c.Advance(59 * time.Second)
	require.False(t, cb.Allow())

	c.Advance(2 * time.Second)
	require.True(t, cb.Allow())
	require.Equal(t, HalfOpen, cb.State())
}

func TestCircuitBreaker_HalfOpenClosesAfterSuccesses(t *testing.T) {
	c := clock.NewFrozen(time.Unix(0, 0))
	cb := New(Params{FailureThreshold: 1, ResetTimeout: 60 * time.Second, HalfOpenMaxAttempts: 3, Clock: c})

	cb.RecordFailure()
	c.Advance(61 * time.Second)
	require.True(t, cb.Allow())
	require.Equal(t, HalfOpen, cb.State())

	cb.RecordSuccess()
	cb.RecordSuccess()
	require.Equal(t, HalfOpen, cb.State())
	cb.RecordSuccess()
	require.Equal(t, Closed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReturnsToOpen(t *testing.T) {
	c := clock.NewFrozen(time.Unix(0, 0))
	cb := New(Params{FailureThreshold: 1, ResetTimeout: 60 * time.Second, HalfOpenMaxAttempts: 3, Clock: c})

	cb.RecordFailure()
	c.Advance(61 * time.Second)
	require.True(t, cb.Allow())

	cb.RecordSuccess()
	cb.RecordFailure()
	require.Equal(t, Open, cb.State())
}

func TestCircuitBreaker_SuccessResetsFailureCountWhenClosed(t *testing.T) {
	c := clock.NewFrozen(time.Unix(0, 0))
	cb := New(Params{FailureThreshold: 5, Clock: c})

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()

	snap := cb.Snapshot()
	require.Equal(t, 0, snap.FailureCount)
}

func TestCircuitBreaker_HalfOpenRespectsMaxAttempts(t *testing.T) {
	c := clock.NewFrozen(time.Unix(0, 0))
	cb := New(Params{FailureThreshold: 1, ResetTimeout: 60 * time.Second, HalfOpenMaxAttempts: 1, Clock: c})

	cb.RecordFailure()
	c.Advance(61 * time.Second)
	require.True(t, cb.Allow())
	require.False(t, cb.Allow() && cb.State() != HalfOpen)
}

func TestGlobalCircuitBreaker_LazyCreatesPerEndpoint(t *testing.T) {
	g := NewGlobal(Params{})

	a := g.For("https://a.example.com")
	b := g.For("https://b.example.com")
	aAgain := g.For("https://a.example.com")

	require.Same(t, a, aAgain)
	require.NotSame(t, a, b)
}

func TestGlobalCircuitBreaker_Snapshot(t *testing.T) {
	g := NewGlobal(Params{})
	cb := g.For("https://a.example.com")
	cb.RecordFailure()

	snap := g.Snapshot()
	require.Contains(t, snap, "https://a.example.com")
	require.Equal(t, int64(1), snap["https://a.example.com"].TotalFailures)
}
