package circuitbreaker

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	circuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kestrel_circuit_breaker_state",
			Help: "Current breaker position (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name", "service"},
	)

	circuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kestrel_circuit_breaker_requests_total",
			Help: "Requests admitted through a circuit breaker",
		},
		[]string{"name", "service", "state", "result"},
	)

	circuitBreakerFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kestrel_circuit_breaker_failures_total",
			Help: "Failed requests observed by a circuit breaker",
		},
		[]string{"name", "service"},
	)

	circuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kestrel_circuit_breaker_state_changes_total",
			Help: "Breaker state transitions",
		},
		[]string{"name", "service", "from_state", "to_state"},
	)

	circuitBreakerOpenSince = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kestrel_circuit_breaker_open_since_seconds",
			Help: "Unix time the breaker entered the open state (0 when not open)",
		},
		[]string{"name", "service"},
	)
)

// MetricsCollector tracks registered breakers and exports their state. Each
// wrapper registers itself at construction.
type MetricsCollector struct {
	breakers map[string]*CircuitBreaker
	mutex    sync.RWMutex
}

// NewMetricsCollector creates an empty collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		breakers: make(map[string]*CircuitBreaker),
	}
}

// RegisterCircuitBreaker adds a breaker to the collector and hooks its state
// change callback so transitions reach Prometheus immediately.
func (mc *MetricsCollector) RegisterCircuitBreaker(name, service string, cb *CircuitBreaker) {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	mc.breakers[service+":"+name] = cb

	previous := cb.config.OnStateChange
	cb.config.OnStateChange = func(cbName string, from State, to State) {
		if previous != nil {
			previous(cbName, from, to)
		}

		circuitBreakerStateChanges.WithLabelValues(name, service, from.String(), to.String()).Inc()
		circuitBreakerState.WithLabelValues(name, service).Set(float64(to))

		if to == StateOpen {
			circuitBreakerOpenSince.WithLabelValues(name, service).SetToCurrentTime()
		} else if from == StateOpen {
			circuitBreakerOpenSince.WithLabelValues(name, service).Set(0)
		}
	}
}

// RecordRequest records one request outcome through a breaker.
func (mc *MetricsCollector) RecordRequest(name, service string, state State, success bool) {
	result := "success"
	if !success {
		result = "failure"
		circuitBreakerFailures.WithLabelValues(name, service).Inc()
	}
	circuitBreakerRequests.WithLabelValues(name, service, state.String(), result).Inc()
}

// UpdateMetrics refreshes the state gauge for every registered breaker.
// Transitions are pushed by the callback; this catches gauge resets after a
// scrape target restart.
func (mc *MetricsCollector) UpdateMetrics() {
	mc.mutex.RLock()
	defer mc.mutex.RUnlock()

	for key, cb := range mc.breakers {
		service, name, ok := strings.Cut(key, ":")
		if !ok {
			continue
		}
		circuitBreakerState.WithLabelValues(name, service).Set(float64(cb.State()))
	}
}

// GlobalMetricsCollector is shared by all wrappers in the process.
var GlobalMetricsCollector = NewMetricsCollector()

// StartMetricsCollection starts the background gauge refresh loop.
func StartMetricsCollection() {
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()

		for range ticker.C {
			GlobalMetricsCollector.UpdateMetrics()
		}
	}()
}
