package activities

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-ops/kestrel/internal/formatting"
	"github.com/kestrel-ops/kestrel/internal/llm"
	"github.com/kestrel-ops/kestrel/internal/planner"
)

func twoAgentResults() []ExecuteSpecialistResult {
	return []ExecuteSpecialistResult{
		{
			AgentID: "kubernetes_agent", DisplayName: "Kubernetes Agent",
			Response: "Pod checkout-7d4 is CrashLoopBackOff, OOMKilled at 14:02.",
		},
		{
			AgentID: "logs_agent", DisplayName: "Logs Agent",
			Response: "Error rate spiked after the 13:55 deploy.",
		},
	}
}

func TestAggregateResults_ApprovalTakesPrecedence(t *testing.T) {
	env := newTestEnv(t)

	// Results are present in state; the pending approval must still win and
	// none of them may leak into the response.
	result, err := env.acts.AggregateResults(context.Background(), AggregateInput{
		Query: "why is checkout slow",
		Plan: planner.InvestigationPlan{
			Steps:          []string{"Audit nodes", "Correlate logs"},
			AgentsSequence: []string{"kubernetes_agent", "logs_agent"},
			Complexity:     planner.ComplexityComplex,
			Reasoning:      "cross-cutting incident",
		},
		PendingApproval: true,
		Results:         twoAgentResults(),
	})
	require.NoError(t, err)
	assert.Equal(t, "approval", result.Path)
	assert.Contains(t, result.Response, "approve")
	assert.Contains(t, result.Response, "Audit nodes")
	assert.NotContains(t, result.Response, "CrashLoopBackOff")
	// No model call happens on the approval path.
	assert.Empty(t, env.llm.requests)
}

func TestAggregateResults_TemplatePath(t *testing.T) {
	env := newTestEnv(t)
	env.llm.responses = []*llm.Response{
		{Content: "Checkout latency traces to an OOMKilled pod after the 13:55 deploy."},
	}

	result, err := env.acts.AggregateResults(context.Background(), AggregateInput{
		Query:   "why is checkout slow",
		Results: twoAgentResults(),
	})
	require.NoError(t, err)
	assert.Equal(t, "template", result.Path)
	assert.Contains(t, result.Response, "OOMKilled pod after the 13:55 deploy")
	assert.Contains(t, result.Response, "Kubernetes Agent")
	assert.Contains(t, result.Response, "Logs Agent")
	assert.Contains(t, result.Response, "CrashLoopBackOff")

	// Exactly one model call: the executive summary.
	require.Len(t, env.llm.requests, 1)
	assert.Equal(t, "summary", env.llm.requests[0].Purpose)
}

func TestAggregateResults_SummaryFailureDegradesToGeneric(t *testing.T) {
	env := newTestEnv(t)
	env.llm.errs = []error{fmt.Errorf("llm service returned status 503")}

	result, err := env.acts.AggregateResults(context.Background(), AggregateInput{
		Query:   "why is checkout slow",
		Results: twoAgentResults(),
	})
	require.NoError(t, err)
	assert.Equal(t, "template", result.Path)
	assert.Contains(t, result.Response, formatting.GenericExecutiveSummary)
	assert.Contains(t, result.Response, "CrashLoopBackOff")
}

func TestAggregateResults_NoResultsFallsBackToSynthesis(t *testing.T) {
	env := newTestEnv(t)
	env.llm.responses = []*llm.Response{
		{Content: "No specialists completed; the investigation produced no findings."},
	}

	result, err := env.acts.AggregateResults(context.Background(), AggregateInput{
		Query: "why is checkout slow",
	})
	require.NoError(t, err)
	assert.Equal(t, "llm", result.Path)
	assert.Contains(t, result.Response, "no findings")
	require.Len(t, env.llm.requests, 1)
	assert.Equal(t, "synthesis", env.llm.requests[0].Purpose)
}

func TestAggregateResults_StaticFallbackWhenEverythingFails(t *testing.T) {
	env := newTestEnv(t)
	env.llm.errs = []error{fmt.Errorf("llm service returned status 503")}

	result, err := env.acts.AggregateResults(context.Background(), AggregateInput{
		Query: "why is checkout slow",
	})
	require.NoError(t, err)
	assert.Equal(t, "static", result.Path)
	assert.Contains(t, result.Response, "why is checkout slow")
	assert.NotEmpty(t, result.Response)
}
