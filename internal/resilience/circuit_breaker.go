package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Call while the circuit rejects requests
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitState represents the state of a circuit breaker
type CircuitState int

const (
	StateClosed   CircuitState = iota // Normal operation
	StateOpen                         // Circuit is open, requests fail immediately
	StateHalfOpen                     // Testing if service has recovered
)

func (s CircuitState) String() string {
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

// StateChangeFunc is called after the breaker moves between states
type StateChangeFunc func(name string, from, to CircuitState)

// Option configures a CircuitBreaker
type Option func(*CircuitBreaker)

// WithHalfOpenMax sets how many probes are admitted, and must succeed, while half-open
func WithHalfOpenMax(n int) Option {
	return func(cb *CircuitBreaker) {
		if n > 0 {
			cb.halfOpenMax = n
		}
	}
}

// WithStateChange registers a state transition observer
func WithStateChange(fn StateChangeFunc) Option {
	return func(cb *CircuitBreaker) {
		cb.onStateChange = fn
	}
}

// WithFailureObserver registers a callback for every recorded failure
func WithFailureObserver(fn func(name string)) Option {
	return func(cb *CircuitBreaker) {
		cb.onFailure = fn
	}
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(cb *CircuitBreaker) {
		cb.now = now
	}
}

// CircuitBreaker implements the circuit breaker pattern
type CircuitBreaker struct {
	name          string
	maxFailures   int           // Number of failures before opening circuit
	resetTimeout  time.Duration // Time to wait before attempting half-open
	halfOpenMax   int           // Max requests in half-open state
	onStateChange StateChangeFunc
	onFailure     func(name string)
	now           func() time.Time

	mu                sync.Mutex
	state             CircuitState
	halfOpenCount     int // Probes admitted in half-open state
	failureCount      int
	successCount      int
	lastFailTime      time.Time
	requestCount      int64
	failureCountTotal int64
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(name string, maxFailures int, resetTimeout time.Duration, opts ...Option) *CircuitBreaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	cb := &CircuitBreaker{
		name:         name,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		halfOpenMax:  1,
		now:          time.Now,
		state:        StateClosed,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// Name returns the protected service name
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Call executes fn with circuit breaker protection.
// Only errors for which counts returns true are recorded as failures; a nil counts records every error.
func (cb *CircuitBreaker) Call(fn func() error, counts func(error) bool) error {
	if !cb.Allow() {
		return ErrCircuitOpen
	}

	err := fn()

	failed := err != nil && (counts == nil || counts(err))
	cb.RecordResult(!failed)

	return err
}

// Allow reports whether a request may proceed, admitting half-open probes
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	allowed, change := cb.allowLocked()
	cb.mu.Unlock()

	cb.notify(change)
	return allowed
}

func (cb *CircuitBreaker) allowLocked() (bool, *transition) {
	switch cb.state {
	case StateClosed:
		return true, nil

	case StateOpen:
		// Circuit is open - check if we should transition to half-open
		if cb.now().Sub(cb.lastFailTime) < cb.resetTimeout {
			return false, nil
		}
		change := cb.setState(StateHalfOpen)
		cb.halfOpenCount = 1
		return true, change

	case StateHalfOpen:
		if cb.halfOpenCount < cb.halfOpenMax {
			cb.halfOpenCount++
			return true, nil
		}
		return false, nil
	}

	return false, nil
}

// RecordResult records the outcome of a request admitted by Allow
func (cb *CircuitBreaker) RecordResult(success bool) {
	cb.mu.Lock()
	cb.requestCount++

	var change *transition
	if success {
		change = cb.recordSuccess()
	} else {
		change = cb.recordFailure()
	}
	cb.mu.Unlock()

	if !success && cb.onFailure != nil {
		cb.onFailure(cb.name)
	}
	cb.notify(change)
}

func (cb *CircuitBreaker) recordSuccess() *transition {
	switch cb.state {
	case StateClosed:
		cb.failureCount = 0

	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.halfOpenMax {
			return cb.setState(StateClosed)
		}
	}
	return nil
}

func (cb *CircuitBreaker) recordFailure() *transition {
	cb.failureCountTotal++
	cb.lastFailTime = cb.now()

	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.maxFailures {
			return cb.setState(StateOpen)
		}

	case StateHalfOpen:
		// Any failure in half-open immediately opens the circuit
		return cb.setState(StateOpen)
	}
	return nil
}

type transition struct {
	from, to CircuitState
}

// setState resets the per-state counters; callers hold mu
func (cb *CircuitBreaker) setState(to CircuitState) *transition {
	from := cb.state
	cb.state = to
	cb.failureCount = 0
	cb.halfOpenCount = 0
	cb.successCount = 0
	if from == to {
		return nil
	}
	return &transition{from: from, to: to}
}

func (cb *CircuitBreaker) notify(t *transition) {
	if t != nil && cb.onStateChange != nil {
		cb.onStateChange(cb.name, t.from, t.to)
	}
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// GetStats returns statistics about the circuit breaker
func (cb *CircuitBreaker) GetStats() (state CircuitState, requestCount, failureCount int64, failureRate float64) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	state = cb.state
	requestCount = cb.requestCount
	failureCount = cb.failureCountTotal

	if requestCount > 0 {
		failureRate = float64(failureCount) / float64(requestCount) * 100.0
	}

	return
}

// Abandon gives back a request admitted by Allow without recording an outcome,
// for calls the caller cancelled before the service answered
func (cb *CircuitBreaker) Abandon() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateHalfOpen && cb.halfOpenCount > 0 {
		cb.halfOpenCount--
	}
}

// Reset manually resets the circuit breaker to closed state
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	change := cb.setState(StateClosed)
	cb.requestCount = 0
	cb.failureCountTotal = 0
	cb.mu.Unlock()

	cb.notify(change)
}
