package activities

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-ops/kestrel/internal/memory"
)

const finalReport = `# Investigation Results

Checkout latency was caused by memory pressure.

14:02 UTC pod checkout-7d4 OOMKilled
14:05 UTC error rate peaked at 12%

Root cause identified: the latest deploy halved the memory limit.

1. Restart the checkout deployment with the previous limits
2. Increase the memory limit to 512Mi

The incident is resolved.`

func TestStoreInvestigationSummary_ExtractsStructure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.acts.StoreInvestigationSummary(ctx, StoreSummaryInput{
		Query:         "why is checkout slow",
		FinalResponse: finalReport,
		AgentIDs:      []string{"kubernetes_agent", "logs_agent"},
		UserID:        "alice",
		ActorID:       "alice",
		SessionID:     "sess-1",
	})
	require.NoError(t, err)
	assert.True(t, result.Saved)

	records := env.store.Retrieve(ctx, memory.TypeInvestigations, "alice", "checkout", 5, "")
	require.Len(t, records, 1)
	payload := records[0].Payload

	assert.Equal(t, "investigation_summary", payload["kind"])
	assert.Equal(t, "why is checkout slow", payload["query"])
	assert.Equal(t, "resolved", payload["resolution_status"])

	timeline, ok := payload["timeline"].([]interface{})
	require.True(t, ok)
	assert.Len(t, timeline, 2)

	actions, ok := payload["actions_taken"].([]interface{})
	require.True(t, ok)
	require.NotEmpty(t, actions)
	assert.Contains(t, actions[0], "Restart the checkout deployment")

	findings, ok := payload["key_findings"].([]interface{})
	require.True(t, ok)
	require.NotEmpty(t, findings)
	assert.Contains(t, findings[0], "caused by memory pressure")
}

func TestStoreInvestigationSummary_SaveFailureIsReported(t *testing.T) {
	env := newTestEnv(t)
	env.redis.SetError("connection refused")

	result, err := env.acts.StoreInvestigationSummary(context.Background(), StoreSummaryInput{
		Query:         "why is checkout slow",
		FinalResponse: "nothing conclusive",
		UserID:        "alice",
		ActorID:       "alice",
		SessionID:     "sess-1",
	})
	require.NoError(t, err)
	assert.False(t, result.Saved)
}

func TestResolutionStatus(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"The incident is resolved.", "resolved"},
		{"Latency was fixed by the rollback.", "resolved"},
		{"Applied a workaround pending a proper fix next sprint.", "mitigated"},
		{"The metrics agent did not complete within the allotted time.", "incomplete"},
		{"Findings collected; no conclusion yet.", "investigated"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, resolutionStatus(tc.text), tc.text)
	}
}

func TestStoreInvestigationSummary_RotatesSessionOnSaveReport(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sess, err := env.sessions.GetOrCreate(ctx, "", "alice", "alice")
	require.NoError(t, err)

	result, err := env.acts.StoreInvestigationSummary(ctx, StoreSummaryInput{
		Query:         "save a report of this investigation",
		FinalResponse: finalReport,
		AgentIDs:      []string{"kubernetes_agent"},
		UserID:        "alice",
		ActorID:       "alice",
		SessionID:     sess.ID,
	})
	require.NoError(t, err)
	assert.True(t, result.Saved)
	require.NotEmpty(t, result.RotatedSessionID)
	assert.NotEqual(t, sess.ID, result.RotatedSessionID)

	fresh, err := env.sessions.Get(ctx, result.RotatedSessionID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, fresh.RotatedFrom)
	assert.Empty(t, fresh.History)
}

func TestStoreInvestigationSummary_OrdinaryQueryKeepsSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sess, err := env.sessions.GetOrCreate(ctx, "", "alice", "alice")
	require.NoError(t, err)

	result, err := env.acts.StoreInvestigationSummary(ctx, StoreSummaryInput{
		Query:         "why is checkout slow",
		FinalResponse: finalReport,
		UserID:        "alice",
		ActorID:       "alice",
		SessionID:     sess.ID,
	})
	require.NoError(t, err)
	assert.True(t, result.Saved)
	assert.Empty(t, result.RotatedSessionID)
}
