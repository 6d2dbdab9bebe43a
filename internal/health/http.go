package health

import (
	"encoding/json"
	"net/http"
)

// Handler exposes liveness, readiness, and detailed health over HTTP.
type Handler struct {
	manager *Manager
}

func NewHandler(manager *Manager) *Handler {
	return &Handler{manager: manager}
}

// Register mounts the health endpoints on the given mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", h.Liveness)
	mux.HandleFunc("/readyz", h.Readiness)
	mux.HandleFunc("/health", h.Detailed)
}

// Liveness answers kubelet liveness probes.
func (h *Handler) Liveness(w http.ResponseWriter, r *http.Request) {
	if !h.manager.IsLive(r.Context()) {
		http.Error(w, "not live", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Readiness answers readiness probes: 200 only when every critical
// dependency is healthy.
func (h *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	overall := h.manager.GetOverallHealth(r.Context())
	w.Header().Set("Content-Type", "application/json")
	if !overall.Ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(overall)
}

// Detailed returns the full per-component report.
func (h *Handler) Detailed(w http.ResponseWriter, r *http.Request) {
	detailed := h.manager.GetDetailedHealth(r.Context())
	w.Header().Set("Content-Type", "application/json")
	if !detailed.Overall.Ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(detailed)
}
