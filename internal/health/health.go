package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CheckStatus represents the result of a health check.
type CheckStatus int

const (
	StatusHealthy CheckStatus = iota
	StatusDegraded
	StatusUnhealthy
	StatusUnknown
)

func (s CheckStatus) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// CheckResult contains the result of one component check.
type CheckResult struct {
	Status    CheckStatus `json:"status"`
	Message   string      `json:"message,omitempty"`
	Error     string      `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time   `json:"timestamp"`
	Component string      `json:"component"`
	Critical  bool        `json:"critical"`
}

// Checker defines the interface for health checks.
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
	// IsCritical reports whether failure should mark the service not ready.
	IsCritical() bool
	Timeout() time.Duration
}

// OverallHealth summarizes the service's health.
type OverallHealth struct {
	Status    CheckStatus `json:"status"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Ready     bool        `json:"ready"`
	Live      bool        `json:"live"`
}

// DetailedHealth is the full per-component report.
type DetailedHealth struct {
	Overall    OverallHealth          `json:"overall"`
	Components map[string]CheckResult `json:"components"`
	Timestamp  time.Time              `json:"timestamp"`
}

// Manager runs registered checkers on an interval and caches their results.
type Manager struct {
	mu          sync.RWMutex
	checkers    map[string]Checker
	lastResults map[string]CheckResult
	interval    time.Duration
	started     bool
	stopCh      chan struct{}
	logger      *zap.Logger
}

// NewManager creates a health manager checking every 30 seconds.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		checkers:    make(map[string]Checker),
		lastResults: make(map[string]CheckResult),
		interval:    30 * time.Second,
		stopCh:      make(chan struct{}),
		logger:      logger,
	}
}

// RegisterChecker registers a health check by its name.
func (m *Manager) RegisterChecker(c Checker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	name := c.Name()
	if name == "" {
		return fmt.Errorf("checker name cannot be empty")
	}
	if _, exists := m.checkers[name]; exists {
		return fmt.Errorf("checker %s already registered", name)
	}
	m.checkers[name] = c
	m.logger.Info("Health checker registered",
		zap.String("checker", name),
		zap.Bool("critical", c.IsCritical()),
	)
	return nil
}

// Start begins background checking. The first pass runs immediately so
// readiness reflects reality before the first interval elapses.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return fmt.Errorf("health manager already started")
	}
	m.started = true
	m.mu.Unlock()

	m.runChecks(ctx)
	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.runChecks(ctx)
			case <-m.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// Stop halts background checking.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		close(m.stopCh)
		m.started = false
	}
}

func (m *Manager) runChecks(ctx context.Context) {
	m.mu.RLock()
	checkers := make([]Checker, 0, len(m.checkers))
	for _, c := range m.checkers {
		checkers = append(checkers, c)
	}
	m.mu.RUnlock()

	for _, c := range checkers {
		cctx, cancel := context.WithTimeout(ctx, c.Timeout())
		start := time.Now()
		result := c.Check(cctx)
		cancel()

		result.Component = c.Name()
		result.Critical = c.IsCritical()
		result.Duration = time.Since(start)
		result.Timestamp = time.Now()

		m.mu.Lock()
		m.lastResults[c.Name()] = result
		m.mu.Unlock()

		if result.Status == StatusUnhealthy {
			m.logger.Warn("Health check failed",
				zap.String("checker", c.Name()),
				zap.String("error", result.Error),
			)
		}
	}
}

// GetOverallHealth returns the service-wide health rollup.
func (m *Manager) GetOverallHealth(ctx context.Context) OverallHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	overall := OverallHealth{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Ready:     true,
		Live:      true,
	}
	for _, result := range m.lastResults {
		switch result.Status {
		case StatusUnhealthy:
			if result.Critical {
				overall.Status = StatusUnhealthy
				overall.Ready = false
				overall.Message = result.Component + " unhealthy"
			} else if overall.Status == StatusHealthy {
				overall.Status = StatusDegraded
			}
		case StatusDegraded:
			if overall.Status == StatusHealthy {
				overall.Status = StatusDegraded
			}
		}
	}
	return overall
}

// GetDetailedHealth returns the per-component report.
func (m *Manager) GetDetailedHealth(ctx context.Context) DetailedHealth {
	overall := m.GetOverallHealth(ctx)

	m.mu.RLock()
	defer m.mu.RUnlock()
	components := make(map[string]CheckResult, len(m.lastResults))
	for name, result := range m.lastResults {
		components[name] = result
	}
	return DetailedHealth{
		Overall:    overall,
		Components: components,
		Timestamp:  time.Now(),
	}
}

// IsReady reports whether all critical dependencies are healthy.
func (m *Manager) IsReady(ctx context.Context) bool {
	return m.GetOverallHealth(ctx).Ready
}

// IsLive reports process liveness.
func (m *Manager) IsLive(ctx context.Context) bool {
	return true
}
