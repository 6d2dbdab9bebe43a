package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kestrel-ops/kestrel/internal/streaming"
)

// StreamingHandler serves live investigation events over SSE and websocket.
type StreamingHandler struct {
	mgr    *streaming.Manager
	logger *zap.Logger
}

func NewStreamingHandler(mgr *streaming.Manager, logger *zap.Logger) *StreamingHandler {
	return &StreamingHandler{mgr: mgr, logger: logger}
}

// RegisterRoutes registers the streaming routes on the provided mux.
func (h *StreamingHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/stream/sse", h.handleSSE)
	mux.HandleFunc("/stream/ws", h.handleWS)
}

// handleSSE streams events for one investigation via Server-Sent Events.
// GET /stream/sse?investigation_id=<id>
func (h *StreamingHandler) handleSSE(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("investigation_id")
	if id == "" {
		http.Error(w, `{"error":"investigation_id required"}`, http.StatusBadRequest)
		return
	}
	typeFilter := parseTypeFilter(r.URL.Query().Get("types"))
	lastID := parseLastEventID(r)

	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ch := h.mgr.Subscribe(id, 256)
	defer h.mgr.Unsubscribe(id, ch)

	fmt.Fprintf(w, ": connected to investigation %s\n\n", id)
	flusher.Flush()

	// Replay backlog from the ring, best-effort.
	if lastID > 0 {
		for _, ev := range h.mgr.ReplaySince(id, lastID) {
			if skipEvent(typeFilter, ev.Type) {
				continue
			}
			writeSSE(w, ev)
		}
		flusher.Flush()
	}

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("SSE client disconnected", zap.String("investigation_id", id))
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			if skipEvent(typeFilter, ev.Type) {
				continue
			}
			writeSSE(w, ev)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev streaming.Event) {
	if ev.Seq > 0 {
		fmt.Fprintf(w, "id: %d\n", ev.Seq)
	}
	if ev.Type != "" {
		fmt.Fprintf(w, "event: %s\n", ev.Type)
	}
	fmt.Fprintf(w, "data: %s\n\n", ev.Marshal())
}

func parseTypeFilter(s string) map[string]struct{} {
	filter := map[string]struct{}{}
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			filter[t] = struct{}{}
		}
	}
	return filter
}

func skipEvent(filter map[string]struct{}, eventType string) bool {
	if len(filter) == 0 {
		return false
	}
	_, ok := filter[eventType]
	return !ok
}

func parseLastEventID(r *http.Request) uint64 {
	if lei := r.Header.Get("Last-Event-ID"); lei != "" {
		if n, err := strconv.ParseUint(lei, 10, 64); err == nil {
			return n
		}
	}
	if q := r.URL.Query().Get("last_event_id"); q != "" {
		if n, err := strconv.ParseUint(q, 10, 64); err == nil {
			return n
		}
	}
	return 0
}
