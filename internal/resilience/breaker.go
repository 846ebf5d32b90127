// Package resilience implements the circuit breaker guarding outbound
// fetches. The breaker sheds load from a failing upstream and probes for
// recovery without a human in the loop.
package resilience

import (
	"sync"
	"time"

	"github.com/statforge/statscrape/internal/clock"
)

// State is the admission-control state of the breaker.
type State int

// Breaker states.
const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String returns the lowercase state name used in logs.
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

// halfOpenSuccessTarget is the number of consecutive successes required to
// close the breaker again after a trial period.
const halfOpenSuccessTarget = 3

// TripRecorder receives a notification each time the breaker opens.
type TripRecorder interface {
	RecordBreakerTrip()
}

// Breaker is a three-state circuit breaker. Callers must check CanProceed
// before attempting a network operation and must report exactly one of
// RecordSuccess/RecordFailure for each attempt that was allowed through.
type Breaker struct {
	mu sync.Mutex

	state            State
	failureCount     int
	failureThreshold int
	resetTimeout     time.Duration
	lastFailure      time.Time
	tripCount        int
	halfOpenSuccess  int
	halfOpenFailure  int

	trips TripRecorder
	clock clock.Clock
}

// Option customizes a Breaker.
type Option func(*Breaker)

// WithTripRecorder attaches a recorder that observes breaker trips, typically
// the shared health metrics.
func WithTripRecorder(r TripRecorder) Option {
	return func(b *Breaker) { b.trips = r }
}

// WithClock overrides the wall clock, for tests.
func WithClock(c clock.Clock) Option {
	return func(b *Breaker) { b.clock = c }
}

// New constructs a closed Breaker that opens after threshold consecutive-ish
// failures and probes again after resetTimeout.
func New(threshold int, resetTimeout time.Duration, opts ...Option) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if resetTimeout <= 0 {
		resetTimeout = 60 * time.Second
	}
	b := &Breaker{
		state:            StateClosed,
		failureThreshold: threshold,
		resetTimeout:     resetTimeout,
		clock:            clock.System{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// CanProceed reports whether a network attempt is currently admitted. When
// the breaker is open and the reset timeout has elapsed it transitions to
// half-open and admits this call as trial traffic.
func (b *Breaker) CanProceed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if b.clock.Now().Sub(b.lastFailure) > b.resetTimeout {
			b.state = StateHalfOpen
			b.halfOpenSuccess = 0
			b.halfOpenFailure = 0
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess reports a successful attempt. In the closed state it decays
// the failure count by one; in half-open it counts toward the successes
// required to close the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		if b.failureCount > 0 {
			b.failureCount--
		}
	case StateHalfOpen:
		b.halfOpenSuccess++
		if b.halfOpenSuccess >= halfOpenSuccessTarget {
			b.state = StateClosed
			b.failureCount = 0
			b.halfOpenSuccess = 0
			b.halfOpenFailure = 0
		}
	}
}

// RecordFailure reports a failed attempt. Reaching the threshold in the
// closed state opens the breaker; any failure during the half-open trial
// reopens it immediately.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailure = b.clock.Now()

	switch b.state {
	case StateClosed:
		b.failureCount++
		if b.failureCount >= b.failureThreshold {
			b.trip()
		}
	case StateHalfOpen:
		b.halfOpenFailure++
		b.state = StateOpen
	}
}

// trip opens the breaker. Caller must hold b.mu.
func (b *Breaker) trip() {
	b.state = StateOpen
	b.tripCount++
	if b.trips != nil {
		b.trips.RecordBreakerTrip()
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// TripCount returns how many times the breaker has opened from closed.
func (b *Breaker) TripCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tripCount
}

// FailureCount returns the current closed-state failure tally.
func (b *Breaker) FailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount
}
