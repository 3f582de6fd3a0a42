package redis

import (
	"errors"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = 0 // calls pass through
	StateOpen     State = 1 // calls rejected until the cool-down ends
	StateHalfOpen State = 2 // one probe call in flight
)

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

// ErrCircuitOpen is returned when the breaker rejects a call.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerStats is a point-in-time view of a breaker.
type BreakerStats struct {
	State     State  `json:"-"`
	StateName string `json:"state"`
	Failures  int    `json:"consecutive_failures"`
	Trips     int    `json:"trips"`
	Rejected  int    `json:"rejected"`
}

// CircuitBreaker guards calls to Redis.
//
// After maxFailures consecutive failures it opens for coolDown. The first
// call after the cool-down runs as a probe while every other call is still
// rejected; the probe's result closes or reopens the breaker.
type CircuitBreaker struct {
	mu          sync.Mutex
	state       State
	failures    int
	maxFailures int
	coolDown    time.Duration
	openedAt    time.Time
	probing     bool
	trips       int
	rejected    int

	now func() time.Time

	// OnStateChange is called under the breaker lock; it must not call back
	// into the breaker.
	OnStateChange func(from, to State)
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(maxFailures int, coolDown time.Duration) *CircuitBreaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	return &CircuitBreaker{
		maxFailures: maxFailures,
		coolDown:    coolDown,
		state:       StateClosed,
		now:         time.Now,
	}
}

// Execute runs fn unless the breaker is open.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn()
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.coolDown {
			cb.rejected++
			return ErrCircuitOpen
		}
		cb.transition(StateHalfOpen)
		cb.probing = true
	case StateHalfOpen:
		if cb.probing {
			cb.rejected++
			return ErrCircuitOpen
		}
		cb.probing = true
	}
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	wasProbe := cb.state == StateHalfOpen
	cb.probing = false
	if err == nil {
		cb.failures = 0
		if wasProbe {
			cb.transition(StateClosed)
		}
		return
	}

	cb.failures++
	if wasProbe || cb.failures >= cb.maxFailures {
		cb.openedAt = cb.now()
		if cb.state != StateOpen {
			cb.trips++
			cb.transition(StateOpen)
		}
	}
}

// CurrentState returns the breaker state.
func (cb *CircuitBreaker) CurrentState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats returns counters for health reporting.
func (cb *CircuitBreaker) Stats() BreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return BreakerStats{
		State:     cb.state,
		StateName: cb.state.String(),
		Failures:  cb.failures,
		Trips:     cb.trips,
		Rejected:  cb.rejected,
	}
}

func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	cb.state = to
	if to == StateClosed {
		cb.failures = 0
	}
	if cb.OnStateChange != nil && from != to {
		cb.OnStateChange(from, to)
	}
}
