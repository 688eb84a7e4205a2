package chainrpc

import (
	"errors"
	"sync"
	"time"
)

// CircuitState is one of closed/open/half-open.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half-open"
)

// ErrCircuitOpen is returned by Call when the breaker is rejecting requests.
var ErrCircuitOpen = errors.New("chainrpc: circuit breaker is open")

// CircuitBreaker trips after a run of consecutive submission failures and
// holds the RPC client closed until Timeout has elapsed, at which point it
// allows a probe call through before fully recovering.
type CircuitBreaker struct {
	mu sync.Mutex

	failureThreshold int
	successThreshold int
	timeout          time.Duration

	state           CircuitState
	failures        int
	successes       int
	lastFailureTime time.Time
	trips           int64
}

// NewCircuitBreaker builds a breaker that opens after failureThreshold
// consecutive failures and closes again after successThreshold consecutive
// half-open successes.
func NewCircuitBreaker(failureThreshold, successThreshold int, timeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		timeout:          timeout,
		state:            CircuitClosed,
	}
}

// Call runs fn under circuit-breaker protection.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if err := cb.beforeCall(); err != nil {
		return err
	}
	err := fn()
	cb.afterCall(err)
	return err
}

func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitOpen:
		if time.Since(cb.lastFailureTime) > cb.timeout {
			cb.state = CircuitHalfOpen
			cb.successes = 0
			return nil
		}
		return ErrCircuitOpen
	default:
		return nil
	}
}

func (cb *CircuitBreaker) afterCall(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failures++
		cb.lastFailureTime = time.Now()
		cb.successes = 0
		switch cb.state {
		case CircuitClosed:
			if cb.failures >= cb.failureThreshold {
				cb.state = CircuitOpen
				cb.trips++
			}
		case CircuitHalfOpen:
			cb.state = CircuitOpen
			cb.trips++
		}
		return
	}

	cb.failures = 0
	cb.successes++
	if cb.state == CircuitHalfOpen && cb.successes >= cb.successThreshold {
		cb.state = CircuitClosed
	}
}

// State returns the breaker's current state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Trips returns how many times the breaker has opened since creation.
func (cb *CircuitBreaker) Trips() int64 {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.trips
}

// Reset forces the breaker back to closed, discarding failure history.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = CircuitClosed
	cb.failures = 0
	cb.successes = 0
}
