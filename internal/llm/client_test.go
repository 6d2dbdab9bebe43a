package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCompleteParsesContent(t *testing.T) {
	var captured chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"choices": [{"message": {"content": "three pods are CrashLooping"}, "finish_reason": "stop"}],
			"usage": {"total_tokens": 42}
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", zap.NewNop())
	resp, err := c.Complete(context.Background(), Request{
		System:   "You are a planner.",
		Messages: []Message{{Role: "user", Content: "why is checkout down"}},
		Purpose:  "planning",
	})
	require.NoError(t, err)
	assert.Equal(t, "three pods are CrashLooping", resp.Content)
	assert.Equal(t, 42, resp.TokensUsed)
	assert.Equal(t, "stop", resp.FinishReason)

	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, "user", captured.Messages[1].Role)
}

func TestCompleteParsesToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"choices": [{"message": {"content": "", "tool_calls": [
				{"id": "call_1", "function": {"name": "get_pod_status", "arguments": {"namespace": "checkout"}}}
			]}, "finish_reason": "tool_calls"}],
			"usage": {"total_tokens": 10}
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", zap.NewNop())
	resp, err := c.Complete(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "check pods"}},
	})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "get_pod_status", resp.ToolCalls[0].Name)
	assert.JSONEq(t, `{"namespace":"checkout"}`, string(resp.ToolCalls[0].Arguments))
}

func TestCompleteServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", zap.NewNop())
	_, err := c.Complete(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestCompleteEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": [], "usage": {"total_tokens": 0}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", zap.NewNop())
	_, err := c.Complete(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}
