// Package breaker implements a per-endpoint circuit breaker that gates
// Transport.send attempts and tracks closed/open/half-open transitions.
package breaker

import (
	"sync"
	"time"

	"github.com/luxardolabs/luxanalytics-go/internal/clock"
)

// State is one of the three circuit breaker states.
type State string

// Recognized states.
const (
	Closed   State = "closed"
	Open     State = "open"
	HalfOpen State = "half_open"
)

// Metrics is a point-in-time snapshot of a CircuitBreaker.
type Metrics struct {
	State             State
	FailureCount      int
	TotalSuccesses    int64
	TotalFailures     int64
	LastFailureAt     time.Time
	StateEnteredAt    time.Time
	RecentTransitions []Transition
}

// Transition records a single state change for diagnostics.
type Transition struct {
	From State
	To   State
	At   time.Time
}

const recentTransitionsCap = 10

// CircuitBreaker gates requests to a single endpoint.
type CircuitBreaker struct {
	mu sync.Mutex

	failureThreshold    int
	resetTimeout        time.Duration
	halfOpenMaxAttempts int

	clock clock.Clock

	state             State
	failureCount      int
	halfOpenAttempts  int
	totalSuccesses    int64
	totalFailures     int64
	lastFailureAt     time.Time
	stateEnteredAt    time.Time
	recentTransitions []Transition
}

// Params configures a CircuitBreaker. Zero values fall back to spec defaults.
type Params struct {
	FailureThreshold    int
	ResetTimeout        time.Duration
	HalfOpenMaxAttempts int
	Clock               clock.Clock
}

// New constructs a CircuitBreaker in the Closed state.
func New(p Params) *CircuitBreaker {
	if p.FailureThreshold <= 0 {
		p.FailureThreshold = 5
	}
	if p.ResetTimeout <= 0 {
		p.ResetTimeout = 60 * time.Second
	}
	if p.HalfOpenMaxAttempts <= 0 {
		p.HalfOpenMaxAttempts = 3
	}
	if p.Clock == nil {
		p.Clock = clock.RealClock{}
	}
	return &CircuitBreaker{
		failureThreshold:    p.FailureThreshold,
		resetTimeout:        p.ResetTimeout,
		halfOpenMaxAttempts: p.HalfOpenMaxAttempts,
		clock:               p.Clock,
		state:               Closed,
		stateEnteredAt:      p.Clock.Now(),
	}
}

func (cb *CircuitBreaker) transitionLocked(to State) {
	from := cb.state
	if from == to {
		return
	}
	now := cb.clock.Now()
	cb.state = to
	cb.stateEnteredAt = now
	cb.recentTransitions = append(cb.recentTransitions, Transition{From: from, To: to, At: now})
	if len(cb.recentTransitions) > recentTransitionsCap {
		cb.recentTransitions = cb.recentTransitions[len(cb.recentTransitions)-recentTransitionsCap:]
	}
}

// Allow reports whether a request may proceed, advancing Open to HalfOpen
// when reset_timeout has elapsed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case Closed:
		return true
	case HalfOpen:
		return cb.halfOpenAttempts < cb.halfOpenMaxAttempts
	case Open:
		if cb.clock.Now().Sub(cb.stateEnteredAt) >= cb.resetTimeout {
			cb.transitionLocked(HalfOpen)
			cb.halfOpenAttempts = 0
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess reports a successful request.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalSuccesses++

	switch cb.state {
	case Closed:
		cb.failureCount = 0
	case HalfOpen:
		cb.halfOpenAttempts++
		if cb.halfOpenAttempts >= cb.halfOpenMaxAttempts {
			cb.transitionLocked(Closed)
			cb.failureCount = 0
			cb.halfOpenAttempts = 0
		}
	}
}

// RecordFailure reports a failed request.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalFailures++
	cb.lastFailureAt = cb.clock.Now()

	switch cb.state {
	case Closed:
		cb.failureCount++
		if cb.failureCount >= cb.failureThreshold {
			cb.transitionLocked(Open)
		}
	case HalfOpen:
		cb.transitionLocked(Open)
		cb.halfOpenAttempts = 0
	}
}

// Reset returns the breaker to Closed with all counters cleared.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.transitionLocked(Closed)
	cb.failureCount = 0
	cb.halfOpenAttempts = 0
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Snapshot returns a point-in-time Metrics snapshot.
func (cb *CircuitBreaker) Snapshot() Metrics {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Metrics{
		State:             cb.state,
		FailureCount:      cb.failureCount,
		TotalSuccesses:    cb.totalSuccesses,
		TotalFailures:     cb.totalFailures,
		LastFailureAt:     cb.lastFailureAt,
		StateEnteredAt:    cb.stateEnteredAt,
		RecentTransitions: append([]Transition(nil), cb.recentTransitions...),
	}
}
