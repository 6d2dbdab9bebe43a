package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestListTools(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tools", r.URL.Path)
		w.Write([]byte(`{"tools": [
			{"name": "get_pod_status", "description": "Pod status by namespace"},
			{"name": "search_logs"}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zap.NewNop())
	tools, err := c.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 2)
	assert.Equal(t, "get_pod_status", tools[0].Name)
}

func TestListToolsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"tools": [{"name": "query_metrics"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zap.NewNop())
	tools, err := c.ListTools(context.Background())
	require.NoError(t, err)
	assert.Len(t, tools, 1)
	assert.EqualValues(t, 3, calls.Load())
}

func TestInvoke(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tools/invoke", r.URL.Path)
		var body struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "get_pod_status", body.Name)
		w.Write([]byte(`{"result": "3 pods Running, 1 CrashLoopBackOff"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zap.NewNop())
	result, err := c.Invoke(context.Background(), "get_pod_status", json.RawMessage(`{"namespace":"checkout"}`))
	require.NoError(t, err)
	assert.Equal(t, "3 pods Running, 1 CrashLoopBackOff", result)
}

func TestInvokeBareTextResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("plain text output"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zap.NewNop())
	result, err := c.Invoke(context.Background(), "search_logs", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain text output", result)
}

func TestInvokeErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown tool", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zap.NewNop())
	_, err := c.Invoke(context.Background(), "bogus", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
