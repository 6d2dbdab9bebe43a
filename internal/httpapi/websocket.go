package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin checks belong to the fronting proxy in production.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWS streams events for one investigation over a websocket.
// GET /stream/ws?investigation_id=<id>
func (h *StreamingHandler) handleWS(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("investigation_id")
	if id == "" {
		http.Error(w, "investigation_id required", http.StatusBadRequest)
		return
	}
	typeFilter := parseTypeFilter(r.URL.Query().Get("types"))
	lastID := parseLastEventID(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("Websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ch := h.mgr.Subscribe(id, 256)
	defer h.mgr.Unsubscribe(id, ch)

	if lastID > 0 {
		for _, ev := range h.mgr.ReplaySince(id, lastID) {
			if skipEvent(typeFilter, ev.Type) {
				continue
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	// Reader pump, discarding client messages.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(20 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			if skipEvent(typeFilter, ev.Type) {
				continue
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(10*time.Second)); err != nil {
				return
			}
		}
	}
}
