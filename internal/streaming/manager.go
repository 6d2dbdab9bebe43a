package streaming

import (
	"encoding/json"
	"sync"
	"time"
)

// Event types emitted over one investigation's stream.
const (
	EventInvestigationStarted   = "investigation_started"
	EventPlanCreated            = "plan_created"
	EventAwaitingApproval       = "awaiting_approval"
	EventPlanApproved           = "plan_approved"
	EventAgentStarted           = "agent_started"
	EventAgentCompleted         = "agent_completed"
	EventAgentTimeout           = "agent_timeout"
	EventAggregationStarted     = "aggregation_started"
	EventInvestigationCompleted = "investigation_completed"
	EventError                  = "error"
)

// Event is a minimal streaming event used by SSE and websocket consumers.
type Event struct {
	InvestigationID string    `json:"investigation_id"`
	Type            string    `json:"type"`
	AgentID         string    `json:"agent_id,omitempty"`
	Message         string    `json:"message,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
	Seq             uint64    `json:"seq"`
}

// Marshal returns JSON for event payloads in SSE frames or logs.
func (e Event) Marshal() []byte {
	b, _ := json.Marshal(e)
	return b
}

// Manager provides in-memory pub/sub for investigation events with a
// per-investigation replay ring. It is constructed explicitly and injected;
// there is no process-wide instance.
type Manager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
	history     map[string]*ring
	capacity    int
}

// NewManager creates a streaming manager. capacity bounds each
// investigation's replay ring.
func NewManager(capacity int) *Manager {
	if capacity <= 0 {
		capacity = 256
	}
	return &Manager{
		subscribers: make(map[string]map[chan Event]struct{}),
		history:     make(map[string]*ring),
		capacity:    capacity,
	}
}

// Subscribe adds a subscriber channel for an investigation; the caller must
// drain it and call Unsubscribe.
func (m *Manager) Subscribe(investigationID string, buffer int) chan Event {
	ch := make(chan Event, buffer)
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subscribers[investigationID]
	if subs == nil {
		subs = make(map[chan Event]struct{})
		m.subscribers[investigationID] = subs
	}
	subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes the subscriber channel and closes it.
func (m *Manager) Unsubscribe(investigationID string, ch chan Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if subs, ok := m.subscribers[investigationID]; ok {
		if _, present := subs[ch]; !present {
			return
		}
		delete(subs, ch)
		close(ch)
		if len(subs) == 0 {
			delete(m.subscribers, investigationID)
		}
	}
}

// Publish sends an event to all subscribers (non-blocking; slow subscribers
// drop events) and records it in the replay ring.
func (m *Manager) Publish(investigationID string, evt Event) {
	evt.InvestigationID = investigationID
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	m.mu.Lock()
	rg := m.history[investigationID]
	if rg == nil {
		rg = newRing(m.capacity)
		m.history[investigationID] = rg
	}
	evt.Seq = rg.nextSeq
	rg.nextSeq++
	rg.push(evt)
	subs := m.subscribers[investigationID]
	m.mu.Unlock()

	for ch := range subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

// ReplaySince returns events with Seq > since, best-effort within the ring
// capacity. Supports SSE Last-Event-ID resumption.
func (m *Manager) ReplaySince(investigationID string, since uint64) []Event {
	m.mu.RLock()
	rg := m.history[investigationID]
	m.mu.RUnlock()
	if rg == nil {
		return nil
	}
	return rg.since(since)
}

// Forget drops the replay ring for a finished investigation.
func (m *Manager) Forget(investigationID string) {
	m.mu.Lock()
	delete(m.history, investigationID)
	m.mu.Unlock()
}

// ring is a fixed-capacity ring buffer of events
type ring struct {
	buf     []Event
	start   int
	count   int
	nextSeq uint64
}

func newRing(capacity int) *ring { return &ring{buf: make([]Event, capacity)} }

func (r *ring) push(e Event) {
	if len(r.buf) == 0 {
		return
	}
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = e
		r.count++
		return
	}
	r.buf[r.start] = e
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) since(seq uint64) []Event {
	if r.count == 0 {
		return nil
	}
	out := make([]Event, 0, r.count)
	for i := 0; i < r.count; i++ {
		ev := r.buf[(r.start+i)%len(r.buf)]
		if ev.Seq > seq {
			out = append(out, ev)
		}
	}
	return out
}
