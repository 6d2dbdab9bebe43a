package httpapi

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/kestrel-ops/kestrel/internal/streaming"
)

func TestSSE_RequiresInvestigationID(t *testing.T) {
	h := NewStreamingHandler(streaming.NewManager(16), zap.NewNop())
	rec := httptest.NewRecorder()
	h.handleSSE(rec, httptest.NewRequest("GET", "/stream/sse", nil))
	assert.Equal(t, 400, rec.Code)
}

func TestSSE_ReplayAndLiveEvents(t *testing.T) {
	mgr := streaming.NewManager(16)
	for i := 0; i < 3; i++ {
		mgr.Publish("inv-1", streaming.Event{
			InvestigationID: "inv-1",
			Type:            streaming.EventAgentStarted,
			Message:         fmt.Sprintf("step %d", i),
		})
	}
	h := NewStreamingHandler(mgr, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest("GET", "/stream/sse?investigation_id=inv-1&last_event_id=1", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.handleSSE(rec, req)
	}()

	time.Sleep(50 * time.Millisecond)
	mgr.Publish("inv-1", streaming.Event{
		InvestigationID: "inv-1",
		Type:            streaming.EventInvestigationCompleted,
		Message:         "synthesis ready",
	})
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	body := rec.Body.String()
	assert.Contains(t, body, ": connected to investigation inv-1")
	assert.NotContains(t, body, "step 0")
	assert.NotContains(t, body, "step 1")
	assert.Contains(t, body, "step 2")
	assert.Contains(t, body, "id: 3")
	assert.Contains(t, body, "event: investigation_completed")
	assert.Contains(t, body, "synthesis ready")
}

func TestSSE_TypeFilter(t *testing.T) {
	mgr := streaming.NewManager(16)
	h := NewStreamingHandler(mgr, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest("GET",
		"/stream/sse?investigation_id=inv-2&types=agent_completed", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.handleSSE(rec, req)
	}()

	time.Sleep(50 * time.Millisecond)
	mgr.Publish("inv-2", streaming.Event{Type: streaming.EventAgentStarted, Message: "metrics scan"})
	mgr.Publish("inv-2", streaming.Event{Type: streaming.EventAgentCompleted, Message: "metrics done"})
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	body := rec.Body.String()
	assert.NotContains(t, body, "metrics scan")
	assert.Contains(t, body, "metrics done")
}
