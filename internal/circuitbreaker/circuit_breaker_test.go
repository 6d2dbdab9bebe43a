package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestBreaker(t *testing.T, cfg Config) *CircuitBreaker {
	t.Helper()
	return NewCircuitBreaker("test", cfg, zap.NewNop())
}

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 3
	cb := newTestBreaker(t, cfg)

	fail := errors.New("boom")
	for i := 0; i < 3; i++ {
		err := cb.Execute(context.Background(), func() error { return fail })
		require.ErrorIs(t, err, fail)
	}

	assert.Equal(t, StateOpen, cb.State())

	// Requests are rejected while open.
	err := cb.Execute(context.Background(), func() error { return nil })
	assert.ErrorIs(t, err, ErrCircuitBreakerOpen)
}

func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 1
	cfg.SuccessThreshold = 2
	cfg.Timeout = 10 * time.Millisecond
	cb := newTestBreaker(t, cfg)

	_ = cb.Execute(context.Background(), func() error { return errors.New("boom") })
	require.Equal(t, StateOpen, cb.State())

	// Wait for open -> half-open transition window.
	time.Sleep(20 * time.Millisecond)

	for i := 0; i < 2; i++ {
		err := cb.Execute(context.Background(), func() error { return nil })
		require.NoError(t, err)
	}
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 1
	cfg.Timeout = 10 * time.Millisecond
	cb := newTestBreaker(t, cfg)

	_ = cb.Execute(context.Background(), func() error { return errors.New("boom") })
	time.Sleep(20 * time.Millisecond)

	_ = cb.Execute(context.Background(), func() error { return errors.New("still down") })
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreakerHalfOpenRequestLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 1
	cfg.MaxRequests = 1
	cfg.SuccessThreshold = 5 // stay half-open during the test
	cfg.Timeout = 10 * time.Millisecond
	cb := newTestBreaker(t, cfg)

	_ = cb.Execute(context.Background(), func() error { return errors.New("boom") })
	time.Sleep(20 * time.Millisecond)

	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = cb.Execute(context.Background(), func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	err := cb.Execute(context.Background(), func() error { return nil })
	assert.ErrorIs(t, err, ErrTooManyRequests)
	close(release)
}

func TestCircuitBreakerStateChangeCallback(t *testing.T) {
	var transitions []string
	cfg := DefaultConfig()
	cfg.FailureThreshold = 1
	cfg.OnStateChange = func(name string, from State, to State) {
		transitions = append(transitions, from.String()+"->"+to.String())
	}
	cb := newTestBreaker(t, cfg)

	_ = cb.Execute(context.Background(), func() error { return errors.New("boom") })
	require.Equal(t, []string{"closed->open"}, transitions)
}

func TestCircuitBreakerCounts(t *testing.T) {
	cb := newTestBreaker(t, DefaultConfig())

	require.NoError(t, cb.Execute(context.Background(), func() error { return nil }))
	_ = cb.Execute(context.Background(), func() error { return errors.New("boom") })

	counts := cb.Counts()
	assert.Equal(t, uint32(1), counts.TotalSuccesses)
	assert.Equal(t, uint32(1), counts.TotalFailures)
}
