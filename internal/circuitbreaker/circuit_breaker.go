package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the breaker position. Closed admits everything, open rejects
// everything, half-open admits a bounded probe window.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

var (
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")
	ErrTooManyRequests    = errors.New("too many requests in half-open state")
)

// Config holds circuit breaker tuning.
type Config struct {
	MaxRequests      uint32        // probe budget while half-open
	Interval         time.Duration // closed-state counting window
	Timeout          time.Duration // open duration before probing
	FailureThreshold uint32        // consecutive failures that trip the breaker
	SuccessThreshold uint32        // consecutive probe successes that close it
	OnStateChange    func(name string, from State, to State)
}

// DefaultConfig returns sensible defaults for a dependency breaker.
func DefaultConfig() Config {
	return Config{
		MaxRequests:      3,
		Interval:         60 * time.Second,
		Timeout:          10 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
	}
}

// Counts holds per-window request statistics.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// CircuitBreaker guards one downstream dependency. Counting windows are
// tracked by generation so a late result from a previous window never
// influences the current one.
type CircuitBreaker struct {
	name   string
	config Config
	logger *zap.Logger

	mutex      sync.RWMutex
	state      State
	generation uint64
	counts     Counts
	expiry     time.Time
}

// NewCircuitBreaker creates a breaker in the closed state.
func NewCircuitBreaker(name string, config Config, logger *zap.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		name:   name,
		config: config,
		logger: logger,
		state:  StateClosed,
		expiry: time.Now().Add(config.Interval),
	}
}

// Name returns the breaker's registered name.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Execute runs fn under the breaker. A panic in fn counts as a failure and
// is re-raised.
func (cb *CircuitBreaker) Execute(_ context.Context, fn func() error) error {
	generation, err := cb.admit()
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			cb.settle(generation, false)
			panic(r)
		}
	}()

	err = fn()
	cb.settle(generation, err == nil)
	return err
}

// State returns the current breaker position.
func (cb *CircuitBreaker) State() State {
	cb.mutex.RLock()
	defer cb.mutex.RUnlock()
	return cb.state
}

// Counts returns the current window's statistics.
func (cb *CircuitBreaker) Counts() Counts {
	cb.mutex.RLock()
	defer cb.mutex.RUnlock()
	return cb.counts
}

func (cb *CircuitBreaker) admit() (uint64, error) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	now := time.Now()
	state, generation := cb.currentState(now)

	switch {
	case state == StateOpen:
		return generation, ErrCircuitBreakerOpen
	case state == StateHalfOpen && cb.counts.Requests >= cb.config.MaxRequests:
		return generation, ErrTooManyRequests
	}

	cb.counts.Requests++
	return generation, nil
}

func (cb *CircuitBreaker) settle(before uint64, success bool) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	now := time.Now()
	state, generation := cb.currentState(now)
	if generation != before {
		// Result belongs to a window that has already rolled over.
		return
	}

	if success {
		cb.onSuccess(state, now)
	} else {
		cb.onFailure(state, now)
	}
}

func (cb *CircuitBreaker) currentState(now time.Time) (State, uint64) {
	switch cb.state {
	case StateClosed:
		if !cb.expiry.IsZero() && cb.expiry.Before(now) {
			cb.newWindow(now)
		}
	case StateOpen:
		if cb.expiry.Before(now) {
			cb.setState(StateHalfOpen, now)
		}
	}
	return cb.state, cb.generation
}

func (cb *CircuitBreaker) onSuccess(state State, now time.Time) {
	switch state {
	case StateClosed:
		cb.counts.TotalSuccesses++
		cb.counts.ConsecutiveFailures = 0
	case StateHalfOpen:
		cb.counts.TotalSuccesses++
		cb.counts.ConsecutiveSuccesses++
		if cb.counts.ConsecutiveSuccesses >= cb.config.SuccessThreshold {
			cb.setState(StateClosed, now)
		}
	}
}

func (cb *CircuitBreaker) onFailure(state State, now time.Time) {
	switch state {
	case StateClosed:
		cb.counts.TotalFailures++
		cb.counts.ConsecutiveFailures++
		if cb.counts.ConsecutiveFailures >= cb.config.FailureThreshold {
			cb.setState(StateOpen, now)
		}
	case StateHalfOpen:
		// Any probe failure reopens immediately.
		cb.setState(StateOpen, now)
	}
}

func (cb *CircuitBreaker) setState(state State, now time.Time) {
	if cb.state == state {
		return
	}

	prev := cb.state
	cb.state = state
	cb.newWindow(now)

	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.name, prev, state)
	}

	cb.logger.Info("Circuit breaker state changed",
		zap.String("name", cb.name),
		zap.String("from", prev.String()),
		zap.String("to", state.String()),
	)
}

// newWindow resets counters and bumps the generation.
func (cb *CircuitBreaker) newWindow(now time.Time) {
	cb.generation++
	cb.counts = Counts{}

	switch cb.state {
	case StateClosed:
		if cb.config.Interval == 0 {
			cb.expiry = time.Time{}
		} else {
			cb.expiry = now.Add(cb.config.Interval)
		}
	case StateOpen:
		cb.expiry = now.Add(cb.config.Timeout)
	default: // half-open has no expiry; it resolves via probe outcomes
		cb.expiry = time.Time{}
	}
}
