package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Investigation metrics
	InvestigationsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kestrel_investigations_started_total",
			Help: "Total number of investigations started",
		},
		[]string{"mode"},
	)

	InvestigationsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kestrel_investigations_completed_total",
			Help: "Total number of investigations completed",
		},
		[]string{"mode", "status"},
	)

	InvestigationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kestrel_investigation_duration_seconds",
			Help:    "Investigation execution duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"mode"},
	)

	// Planner metrics
	PlansCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kestrel_plans_created_total",
			Help: "Total number of investigation plans created",
		},
		[]string{"complexity", "source"}, // source: llm, fallback
	)

	PlanSteps = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kestrel_plan_steps",
			Help:    "Number of steps per investigation plan",
			Buckets: []float64{1, 2, 3, 4, 5, 7, 10},
		},
	)

	PlansAwaitingApproval = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kestrel_plans_awaiting_approval_total",
			Help: "Total number of plans gated on human approval",
		},
	)

	// Specialist agent metrics
	SpecialistExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kestrel_specialist_executions_total",
			Help: "Total number of specialist agent executions",
		},
		[]string{"agent", "status"},
	)

	SpecialistDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kestrel_specialist_duration_ms",
			Help:    "Specialist agent execution duration in milliseconds",
			Buckets: []float64{100, 500, 1000, 2000, 5000, 10000, 30000, 60000, 120000},
		},
		[]string{"agent"},
	)

	SpecialistTimeouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kestrel_specialist_timeouts_total",
			Help: "Total number of specialist agent timeouts",
		},
		[]string{"agent"},
	)

	RouterLoopAversions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kestrel_router_loop_aversions_total",
			Help: "Times the router finished early to avoid re-invoking an agent",
		},
	)

	// Memory store metrics
	MemorySaves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kestrel_memory_saves_total",
			Help: "Total number of memory store save calls",
		},
		[]string{"memory_type", "status"},
	)

	MemoryFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kestrel_memory_fetches_total",
			Help: "Total number of memory store retrieve calls",
		},
		[]string{"memory_type", "scope", "status"}, // scope: session, cross_session
	)

	MemoryItemsRetrieved = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kestrel_memory_items_retrieved",
			Help:    "Number of records returned per memory retrieve",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
		[]string{"memory_type"},
	)

	// Aggregator metrics
	AggregationFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kestrel_aggregation_fallbacks_total",
			Help: "Aggregation path degradations (template->llm, llm->static)",
		},
		[]string{"stage"},
	)

	// LLM client metrics
	LLMRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kestrel_llm_requests_total",
			Help: "Total number of LLM service requests",
		},
		[]string{"purpose", "status"}, // purpose: planning, specialist, synthesis, summary
	)

	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kestrel_llm_request_duration_seconds",
			Help:    "LLM request duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"purpose"},
	)

	LLMTokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kestrel_llm_tokens_used_total",
			Help: "Total tokens consumed by LLM requests",
		},
		[]string{"purpose"},
	)

	// Session metrics
	SessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kestrel_sessions_created_total",
			Help: "Total number of sessions created",
		},
	)

	SessionCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kestrel_session_cache_hits_total",
			Help: "Total number of session cache hits",
		},
	)

	SessionCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kestrel_session_cache_misses_total",
			Help: "Total number of session cache misses",
		},
	)

	SessionCacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kestrel_session_cache_size",
			Help: "Current number of sessions in local cache",
		},
	)

	SessionCacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kestrel_session_cache_evictions_total",
			Help: "Total number of sessions evicted from cache",
		},
	)

	// Policy metrics
	ApprovalDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kestrel_approval_decisions_total",
			Help: "Plan approval policy decisions",
		},
		[]string{"decision"}, // auto_approve, require_approval, error
	)
)

// RecordInvestigationMetrics records metrics for a completed investigation.
func RecordInvestigationMetrics(mode, status string, durationSeconds float64) {
	InvestigationsCompleted.WithLabelValues(mode, status).Inc()
	InvestigationDuration.WithLabelValues(mode).Observe(durationSeconds)
}

// RecordSpecialistMetrics records metrics for a specialist agent execution.
func RecordSpecialistMetrics(agent, status string, durationMs float64) {
	SpecialistExecutions.WithLabelValues(agent, status).Inc()
	SpecialistDuration.WithLabelValues(agent).Observe(durationMs)
}

// RecordMemoryFetch records a memory retrieve with its scope and outcome.
func RecordMemoryFetch(memoryType, scope, status string, items int) {
	MemoryFetches.WithLabelValues(memoryType, scope, status).Inc()
	if status == "hit" {
		MemoryItemsRetrieved.WithLabelValues(memoryType).Observe(float64(items))
	}
}

// RecordLLMMetrics records an LLM request outcome.
func RecordLLMMetrics(purpose, status string, durationSeconds float64, tokens int) {
	LLMRequests.WithLabelValues(purpose, status).Inc()
	if durationSeconds > 0 {
		LLMRequestDuration.WithLabelValues(purpose).Observe(durationSeconds)
	}
	if tokens > 0 {
		LLMTokensUsed.WithLabelValues(purpose).Add(float64(tokens))
	}
}
