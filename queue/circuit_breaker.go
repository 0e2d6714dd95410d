package queue

import (
	"sync"
	"time"
)

// CircuitBreakerState is the state of a CircuitBreaker.
type CircuitBreakerState int

const (
	CircuitBreakerClosed CircuitBreakerState = iota
	CircuitBreakerOpen
	CircuitBreakerHalfOpen
)

func (s CircuitBreakerState) String() string {
	switch s {
	case CircuitBreakerClosed:
		return "closed"
	case CircuitBreakerOpen:
		return "open"
	case CircuitBreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker stops calling a failing operation after FailureThreshold
// consecutive failures. With a zero timeout an open breaker stays open.
type CircuitBreaker struct {
	mu                sync.Mutex
	state             CircuitBreakerState
	failureCount      int
	lastFailureTime   time.Time
	lastErr           error
	failureThreshold  int
	timeout           time.Duration
	halfOpenSuccesses int
	maxHalfOpenTries  int
	now               func() time.Time
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(failureThreshold int, timeout time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 1
	}
	return &CircuitBreaker{
		state:            CircuitBreakerClosed,
		failureThreshold: failureThreshold,
		timeout:          timeout,
		maxHalfOpenTries: 3,
		now:              time.Now,
	}
}

// Call runs fn unless the breaker is open.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if !cb.allowCall() {
		return ErrCircuitBreakerOpen
	}

	err := fn()
	cb.recordResult(err)
	return err
}

func (cb *CircuitBreaker) allowCall() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitBreakerClosed:
		return true
	case CircuitBreakerOpen:
		if cb.timeout > 0 && cb.now().Sub(cb.lastFailureTime) >= cb.timeout {
			cb.state = CircuitBreakerHalfOpen
			cb.halfOpenSuccesses = 0
			return true
		}
		return false
	case CircuitBreakerHalfOpen:
		return cb.halfOpenSuccesses < cb.maxHalfOpenTries
	default:
		return false
	}
}

func (cb *CircuitBreaker) recordResult(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failureCount++
		cb.lastFailureTime = cb.now()
		cb.lastErr = err

		if cb.state == CircuitBreakerHalfOpen || cb.failureCount >= cb.failureThreshold {
			cb.state = CircuitBreakerOpen
		}
		return
	}

	cb.failureCount = 0
	if cb.state == CircuitBreakerHalfOpen {
		cb.halfOpenSuccesses++
		if cb.halfOpenSuccesses >= cb.maxHalfOpenTries {
			cb.state = CircuitBreakerClosed
		}
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// LastError returns the most recent failure recorded by the breaker.
func (cb *CircuitBreaker) LastError() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.lastErr
}
