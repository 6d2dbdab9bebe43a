package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseType(t *testing.T) {
	cases := []struct {
		in   string
		want Type
	}{
		{"kubernetes_agent", TypeKubernetes},
		{"Kubernetes", TypeKubernetes},
		{"k8s", TypeKubernetes},
		{"logs_agent", TypeLogs},
		{"log", TypeLogs},
		{"metrics_agent", TypeMetrics},
		{"Metrics Agent", TypeMetrics},
		{"runbooks_agent", TypeRunbooks},
		{"runbook", TypeRunbooks},
	}
	for _, tc := range cases {
		got, err := ParseType(tc.in)
		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}

func TestParseTypeUnknown(t *testing.T) {
	_, err := ParseType("database_agent")
	assert.Error(t, err)

	_, err = ParseType("")
	assert.Error(t, err)
}

func TestRegistryResolvesAllVariants(t *testing.T) {
	r := NewRegistry(nil)
	for _, typ := range AllTypes() {
		s, err := r.Get(typ)
		require.NoError(t, err)
		assert.Equal(t, typ, s.Type())
		assert.NotEmpty(t, s.DisplayName())
		assert.NotEmpty(t, s.SystemPrompt())
		assert.NotEmpty(t, s.AllowedTools())
	}
}

func TestRegistryResolveByPlanID(t *testing.T) {
	r := NewRegistry(nil)
	s, err := r.Resolve("metrics_agent")
	require.NoError(t, err)
	assert.Equal(t, TypeMetrics, s.Type())
	assert.Equal(t, "Metrics Agent", s.DisplayName())
}

func TestBareToolName(t *testing.T) {
	assert.Equal(t, "get_pod_status", BareToolName("gateway___get_pod_status"))
	assert.Equal(t, "get_pod_status", BareToolName("mcp__k8s__get_pod_status"))
	assert.Equal(t, "get_pod_status", BareToolName("get_pod_status"))
}

func TestFilterTools(t *testing.T) {
	r := NewRegistry([]string{"report_finding"})
	s, err := r.Get(TypeKubernetes)
	require.NoError(t, err)

	offered := []string{
		"gateway___get_pod_status",
		"gateway___search_logs",
		"get_recent_events",
		"mcp__shared__report_finding",
		"query_metrics",
	}
	got := r.FilterTools(s, offered)

	assert.Equal(t, []string{
		"gateway___get_pod_status",
		"get_recent_events",
		"mcp__shared__report_finding",
	}, got)
}

func TestAllowedToolsCopied(t *testing.T) {
	r := NewRegistry(nil)
	s, err := r.Get(TypeLogs)
	require.NoError(t, err)

	tools := s.AllowedTools()
	tools[0] = "mutated"

	again, _ := r.Get(TypeLogs)
	assert.NotEqual(t, "mutated", again.AllowedTools()[0])
}
