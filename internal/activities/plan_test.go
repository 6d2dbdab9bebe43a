package activities

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-ops/kestrel/internal/llm"
	"github.com/kestrel-ops/kestrel/internal/planner"
)

const simplePlanJSON = `{
	"steps": ["Check pod status in the checkout namespace", "Search recent error logs"],
	"agentsSequence": ["kubernetes_agent", "logs_agent"],
	"complexity": "simple",
	"autoExecute": true,
	"reasoning": "standard latency triage"
}`

const complexPlanJSON = `{
	"steps": ["Audit node pressure", "Correlate logs", "Review runbooks"],
	"agentsSequence": ["kubernetes_agent", "logs_agent", "runbooks_agent"],
	"complexity": "complex",
	"autoExecute": false,
	"reasoning": "cross-cutting incident"
}`

func TestPlanInvestigation_SimplePlanAutoApproves(t *testing.T) {
	env := newTestEnv(t)
	env.llm.responses = []*llm.Response{{Content: simplePlanJSON}}

	result, err := env.acts.PlanInvestigation(context.Background(), PlanInvestigationInput{
		Query:  "why is checkout slow",
		UserID: "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, planner.ComplexitySimple, result.Plan.Complexity)
	assert.Equal(t, []string{"kubernetes_agent", "logs_agent"}, result.Plan.AgentsSequence)
	assert.False(t, result.RequiresApproval)
}

func TestPlanInvestigation_ComplexPlanRequiresApproval(t *testing.T) {
	env := newTestEnv(t)
	env.llm.responses = []*llm.Response{{Content: complexPlanJSON}}

	result, err := env.acts.PlanInvestigation(context.Background(), PlanInvestigationInput{
		Query:  "intermittent 502s across three services",
		UserID: "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, planner.ComplexityComplex, result.Plan.Complexity)
	assert.True(t, result.RequiresApproval)
}

func TestPlanInvestigation_AutoApproveOverridesGate(t *testing.T) {
	env := newTestEnv(t)
	env.llm.responses = []*llm.Response{{Content: complexPlanJSON}}

	result, err := env.acts.PlanInvestigation(context.Background(), PlanInvestigationInput{
		Query:       "intermittent 502s",
		UserID:      "alice",
		AutoApprove: true,
	})
	require.NoError(t, err)
	assert.False(t, result.RequiresApproval)
}

func TestPlanInvestigation_ProseFallsBackToDegeneratePlan(t *testing.T) {
	env := newTestEnv(t)
	// Neither attempt yields JSON; the planner must fall back.
	env.llm.responses = []*llm.Response{
		{Content: "Sure! I would start by looking at the dashboards."},
		{Content: "Let me think about this step by step."},
	}

	result, err := env.acts.PlanInvestigation(context.Background(), PlanInvestigationInput{
		Query:  "why is checkout slow",
		UserID: "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, planner.SourceFallback, result.Plan.Source)
	assert.Equal(t, []string{"metrics_agent", "logs_agent"}, result.Plan.AgentsSequence)
	assert.Equal(t, planner.ComplexitySimple, result.Plan.Complexity)
	assert.True(t, result.Plan.AutoExecute)
	assert.False(t, result.RequiresApproval)
}

func TestRenderPlanTextToleratesEmptyAgentSequence(t *testing.T) {
	text := renderPlanText(&PlanInvestigationResult{
		Plan: planner.InvestigationPlan{
			Steps:      []string{"check dashboards", "scan error logs"},
			Complexity: planner.ComplexitySimple,
		},
	})
	assert.Contains(t, text, "check dashboards")
	assert.Contains(t, text, "scan error logs")
}
