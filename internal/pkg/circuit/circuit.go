package circuit

import (
	"sync"
	"time"

	"talon/internal/logger"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF-OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreaker guards a market data category against a flapping provider.
// After threshold consecutive failures the category fails fast. Once the
// cooldown elapses the breaker goes half-open and admits a single probe call
// per cooldown window; the probe's outcome closes the circuit or reopens it.
type CircuitBreaker struct {
	mu          sync.Mutex
	state       State
	failures    int
	threshold   int
	cooldown    time.Duration
	lastFailure time.Time
	probeAt     time.Time
	name        string
	nowFn       func() time.Time
}

func NewCircuitBreaker(name string, threshold int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		name:      name,
		threshold: threshold,
		cooldown:  cooldown,
		state:     StateClosed,
		nowFn:     time.Now,
	}
}

// SetNowFunc overrides the clock. Test hook.
func (cb *CircuitBreaker) SetNowFunc(fn func() time.Time) {
	if fn == nil {
		return
	}
	cb.mu.Lock()
	cb.nowFn = fn
	cb.mu.Unlock()
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Allow reports whether a call may go out. While half-open it admits one
// probe per cooldown window, so a probe that never reports back cannot wedge
// the breaker shut.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.nowFn()
	switch cb.state {
	case StateOpen:
		if now.Sub(cb.lastFailure) > cb.cooldown {
			cb.transition(StateHalfOpen)
			cb.probeAt = now
			return true
		}
		return false
	case StateHalfOpen:
		if now.Sub(cb.probeAt) >= cb.cooldown {
			cb.probeAt = now
			return true
		}
		return false
	default:
		return true
	}
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateHalfOpen:
		cb.transition(StateClosed)
		cb.failures = 0
	case StateClosed:
		cb.failures = 0
	}
}

func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailure = cb.nowFn()

	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.threshold {
			cb.transition(StateOpen)
		}
	case StateHalfOpen:
		cb.transition(StateOpen)
	}
}

func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	cb.state = to
	logger.Warnf("circuit %s: %s -> %s (failures=%d/%d cooldown=%s)",
		cb.name, from, to, cb.failures, cb.threshold, cb.cooldown)
}
