package streaming

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToSubscribers(t *testing.T) {
	m := NewManager(16)
	ch := m.Subscribe("inv-1", 4)
	defer m.Unsubscribe("inv-1", ch)

	m.Publish("inv-1", Event{Type: EventAgentStarted, AgentID: "kubernetes_agent"})

	select {
	case evt := <-ch:
		assert.Equal(t, EventAgentStarted, evt.Type)
		assert.Equal(t, "inv-1", evt.InvestigationID)
		assert.Equal(t, "kubernetes_agent", evt.AgentID)
		assert.False(t, evt.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestPublishIsolatedPerInvestigation(t *testing.T) {
	m := NewManager(16)
	ch := m.Subscribe("inv-1", 4)
	defer m.Unsubscribe("inv-1", ch)

	m.Publish("inv-2", Event{Type: EventPlanCreated})

	select {
	case <-ch:
		t.Fatal("received event from another investigation")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSlowSubscriberDropsEvents(t *testing.T) {
	m := NewManager(16)
	ch := m.Subscribe("inv-1", 1)
	defer m.Unsubscribe("inv-1", ch)

	// Second publish must not block even though the buffer is full.
	done := make(chan struct{})
	go func() {
		m.Publish("inv-1", Event{Type: EventAgentStarted})
		m.Publish("inv-1", Event{Type: EventAgentCompleted})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on slow subscriber")
	}
}

func TestReplaySince(t *testing.T) {
	m := NewManager(16)
	for i := 0; i < 5; i++ {
		m.Publish("inv-1", Event{Type: EventAgentCompleted})
	}

	all := m.ReplaySince("inv-1", 0)
	require.Len(t, all, 4, "seq 0 itself is excluded")

	later := m.ReplaySince("inv-1", 2)
	require.Len(t, later, 2)
	assert.EqualValues(t, 3, later[0].Seq)
	assert.EqualValues(t, 4, later[1].Seq)

	assert.Nil(t, m.ReplaySince("unknown", 0))
}

func TestReplayRingOverwrite(t *testing.T) {
	m := NewManager(3)
	for i := 0; i < 10; i++ {
		m.Publish("inv-1", Event{Type: EventAgentCompleted})
	}

	events := m.ReplaySince("inv-1", 0)
	require.Len(t, events, 3)
	assert.EqualValues(t, 7, events[0].Seq)
	assert.EqualValues(t, 9, events[2].Seq)
}

func TestForgetDropsHistory(t *testing.T) {
	m := NewManager(16)
	m.Publish("inv-1", Event{Type: EventPlanCreated})
	m.Forget("inv-1")
	assert.Nil(t, m.ReplaySince("inv-1", 0))
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	m := NewManager(16)
	ch := m.Subscribe("inv-1", 1)
	m.Unsubscribe("inv-1", ch)

	_, open := <-ch
	assert.False(t, open)

	// Double unsubscribe must not panic.
	m.Unsubscribe("inv-1", ch)
}
