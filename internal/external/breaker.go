package external

import (
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type breakerState int

const (
	stateClosed breakerState = iota
	stateHalfOpen
	stateOpen
)

// CircuitBreaker stops calling a dependency after consecutive failures and
// lets a single probe through once the cool-down has passed.
type CircuitBreaker struct {
	name        string
	maxFailures uint32
	timeout     time.Duration
	now         func() time.Time

	mu          sync.Mutex
	state       breakerState
	failures    uint32
	probing     bool
	openedUntil time.Time
}

func NewCircuitBreaker(name string, maxFailures uint32, timeout time.Duration) *CircuitBreaker {
	if maxFailures == 0 {
		maxFailures = 5
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CircuitBreaker{
		name:        name,
		maxFailures: maxFailures,
		timeout:     timeout,
		now:         time.Now,
	}
}

// Execute runs req unless the breaker is open. Only errors for which
// countable returns true trip the breaker.
func (cb *CircuitBreaker) Execute(req func() error, countable func(error) bool) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}

	err := req()
	cb.afterRequest(err != nil && countable(err))
	return err
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == stateOpen && !cb.now().Before(cb.openedUntil) {
		cb.state = stateHalfOpen
		cb.probing = false
	}

	switch cb.state {
	case stateOpen:
		return ErrCircuitOpen
	case stateHalfOpen:
		if cb.probing {
			return ErrCircuitOpen
		}
		cb.probing = true
	}
	return nil
}

func (cb *CircuitBreaker) afterRequest(failed bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !failed {
		cb.state = stateClosed
		cb.failures = 0
		cb.probing = false
		return
	}

	cb.failures++
	if cb.state == stateHalfOpen || cb.failures >= cb.maxFailures {
		cb.state = stateOpen
		cb.openedUntil = cb.now().Add(cb.timeout)
		cb.probing = false
	}
}

// Open reports whether calls are currently short-circuited
func (cb *CircuitBreaker) Open() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state == stateOpen && cb.now().Before(cb.openedUntil)
}
