package channel

import (
	"sync"
	"time"
)

// CircuitBreaker stops forward sends while the downstream pipeline is failing.
// After threshold consecutive failures it opens for cooldown. Once the cooldown has
// passed a single trial call is let through; its success closes the circuit and its
// failure reopens it for another cooldown.
type CircuitBreaker struct {
	mu sync.Mutex

	threshold int
	cooldown  time.Duration
	clock     func() time.Time

	failures  int
	openUntil time.Time
	isOpen    bool
	trial     bool
}

// NewCircuitBreaker creates a circuit breaker. Non-positive arguments fall back to
// 5 failures and one minute.
func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	return &CircuitBreaker{
		threshold: threshold,
		cooldown:  cooldown,
		clock:     time.Now,
	}
}

// Allow reports whether a call may proceed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !cb.isOpen {
		return true
	}
	if !cb.trial && cb.clock().After(cb.openUntil) {
		cb.trial = true
		return true
	}
	return false
}

// RecordSuccess closes the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.isOpen = false
	cb.trial = false
}

// RecordFailure counts a failure and opens the circuit at the threshold.
// It returns true when this failure opened it.
func (cb *CircuitBreaker) RecordFailure() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.trial {
		cb.trial = false
		cb.openUntil = cb.clock().Add(cb.cooldown)
		return true
	}
	cb.failures++
	if cb.failures >= cb.threshold && !cb.isOpen {
		cb.isOpen = true
		cb.openUntil = cb.clock().Add(cb.cooldown)
		return true
	}
	return false
}

// IsOpen reports whether the circuit is open.
func (cb *CircuitBreaker) IsOpen() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.isOpen
}
