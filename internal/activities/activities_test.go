package activities

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kestrel-ops/kestrel/internal/agents"
	"github.com/kestrel-ops/kestrel/internal/circuitbreaker"
	"github.com/kestrel-ops/kestrel/internal/llm"
	"github.com/kestrel-ops/kestrel/internal/memory"
	"github.com/kestrel-ops/kestrel/internal/planner"
	"github.com/kestrel-ops/kestrel/internal/policy"
	"github.com/kestrel-ops/kestrel/internal/session"
	"github.com/kestrel-ops/kestrel/internal/streaming"
	"github.com/kestrel-ops/kestrel/internal/tools"
)

// scriptedLLM returns canned responses in order; errors take precedence.
type scriptedLLM struct {
	responses []*llm.Response
	errs      []error
	calls     int
	requests  []llm.Request
}

func (s *scriptedLLM) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	i := s.calls
	s.calls++
	s.requests = append(s.requests, req)
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return &llm.Response{Content: "done"}, nil
}

// fakeGateway serves a fixed catalog and scripted tool results.
type fakeGateway struct {
	catalog []tools.Info
	results map[string]string
	invoked []string
}

func (f *fakeGateway) ListTools(context.Context) ([]tools.Info, error) {
	return f.catalog, nil
}

func (f *fakeGateway) Invoke(_ context.Context, name string, _ json.RawMessage) (string, error) {
	f.invoked = append(f.invoked, name)
	if r, ok := f.results[name]; ok {
		return r, nil
	}
	return "", fmt.Errorf("unknown tool %s", name)
}

type testEnv struct {
	acts     *Activities
	llm      *scriptedLLM
	gateway  *fakeGateway
	redis    *miniredis.Miniredis
	store    *memory.Store
	sessions *session.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	wrapper := circuitbreaker.NewRedisWrapper(client, "activities-test", zap.NewNop())

	store := memory.NewStore(wrapper, zap.NewNop())
	convo := memory.NewConversationManager(store, 8192, zap.NewNop())
	sessions := session.NewManager(wrapper, zap.NewNop())

	scripted := &scriptedLLM{}
	gateway := &fakeGateway{
		catalog: []tools.Info{
			{Name: "get_pod_status", Description: "Pod status"},
			{Name: "search_logs", Description: "Log search"},
			{Name: "query_metrics", Description: "Metric queries"},
		},
		results: map[string]string{
			"get_pod_status": "3 pods Running, 1 CrashLoopBackOff in checkout",
			"search_logs":    "OOMKilled at 14:02",
			"query_metrics":  "p99 latency 2.3s",
		},
	}

	eng, err := policy.NewOPAEngine(&policy.Config{Enabled: false}, zap.NewNop())
	require.NoError(t, err)

	acts := New(Dependencies{
		Logger:       zap.NewNop(),
		MemoryStore:  store,
		Conversation: convo,
		Sessions:     sessions,
		LLM:          scripted,
		Planner:      planner.New(scripted, zap.NewNop()),
		Registry:     agents.NewRegistry(nil),
		Tools:        gateway,
		Policy:       eng,
		Streams:      streaming.NewManager(16),
	})
	return &testEnv{acts: acts, llm: scripted, gateway: gateway, redis: mr, store: store, sessions: sessions}
}
