// Package resilience provides the failure-isolation primitives used around
// optional backends: a three-state circuit breaker (wrapped around the LLM
// punctuator) and an ordered recognizer engine chain tried at session build.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] when the breaker is
// open and the reset timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the current operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed is the normal operating state; all calls are forwarded.
	StateClosed State = iota

	// StateOpen indicates the breaker has tripped; calls are rejected with
	// [ErrCircuitOpen] until the reset timeout elapses.
	StateOpen

	// StateHalfOpen is the probe state: exactly one call is allowed through.
	// Its success closes the breaker, its failure re-opens it.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

const (
	defaultMaxFailures  = 5
	defaultResetTimeout = 30 * time.Second
)

// BreakerOption is a functional option for configuring a [CircuitBreaker].
type BreakerOption func(*CircuitBreaker)

// WithMaxFailures sets the number of consecutive failures that trips the
// breaker. Default: 5.
func WithMaxFailures(n int) BreakerOption {
	return func(cb *CircuitBreaker) {
		if n > 0 {
			cb.maxFailures = n
		}
	}
}

// WithResetTimeout sets how long the breaker stays open before allowing a
// half-open probe. Default: 30s.
func WithResetTimeout(d time.Duration) BreakerOption {
	return func(cb *CircuitBreaker) {
		if d > 0 {
			cb.resetTimeout = d
		}
	}
}

// CircuitBreaker implements the three-state circuit breaker pattern with a
// single half-open probe: after the reset timeout one call is let through,
// and that call alone decides whether the breaker closes or re-opens.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
}

// NewBreaker creates a [CircuitBreaker]. name labels the breaker in log
// messages.
func NewBreaker(name string, opts ...BreakerOption) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:         name,
		maxFailures:  defaultMaxFailures,
		resetTimeout: defaultResetTimeout,
		state:        StateClosed,
	}
	for _, o := range opts {
		o(cb)
	}
	return cb
}

// Execute runs fn if the breaker allows it. In the open state it returns
// [ErrCircuitOpen] without calling fn; in the half-open state only the probe
// call that triggered the transition runs, everything else is rejected.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, allowed := cb.allow()
	if !allowed {
		return ErrCircuitOpen
	}
	err := fn()
	cb.record(probe, err)
	return err
}

// allow decides whether a call may proceed. probe reports whether the call
// is the half-open probe.
func (cb *CircuitBreaker) allow() (probe bool, allowed bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return false, true
	case StateOpen:
		if time.Since(cb.openedAt) < cb.resetTimeout {
			return false, false
		}
		cb.state = StateHalfOpen
		slog.Info("circuit breaker probing", "name", cb.name)
		return true, true
	default: // StateHalfOpen: a probe is already in flight.
		return false, false
	}
}

// record applies the outcome of a permitted call.
func (cb *CircuitBreaker) record(probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		if probe {
			slog.Info("circuit breaker closed after successful probe", "name", cb.name)
		}
		cb.state = StateClosed
		cb.failures = 0
		return
	}

	if probe {
		cb.state = StateOpen
		cb.openedAt = time.Now()
		slog.Warn("circuit breaker re-opened, probe failed", "name", cb.name)
		return
	}

	cb.failures++
	if cb.failures >= cb.maxFailures {
		cb.state = StateOpen
		cb.openedAt = time.Now()
		slog.Warn("circuit breaker opened",
			"name", cb.name,
			"consecutive_failures", cb.failures)
	}
}

// State returns the current [State]. If the breaker is open and the reset
// timeout has elapsed, [StateHalfOpen] is reported (the actual transition
// happens on the next [CircuitBreaker.Execute] call).
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && time.Since(cb.openedAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker back to [StateClosed], clearing all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.failures = 0
	slog.Info("circuit breaker manually reset", "name", cb.name)
}
