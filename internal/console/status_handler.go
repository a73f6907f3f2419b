package console

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// SessionStateResponse is the ops view of the session mirror.
type SessionStateResponse struct {
	SessionSnapshot
	TimeRemainingSec *int `json:"time_remaining_sec,omitempty"`
	QueueSize        int  `json:"queue_size"`
}

// StatusHandler serves read-only ops endpoints over the sync core. It never
// mutates the mirror.
type StatusHandler struct {
	service *Service
}

// NewStatusHandler builds a status handler over svc.
func NewStatusHandler(svc *Service) *StatusHandler {
	return &StatusHandler{service: svc}
}

// HandleSessionState handles GET /api/session/state.
func (h *StatusHandler) HandleSessionState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := h.service.Snapshot()
	resp := SessionStateResponse{
		SessionSnapshot: snap,
		QueueSize:       len(snap.Queue),
	}
	if snap.CountdownDeadline != nil {
		remaining := int(snap.CountdownDeadline.Sub(h.service.clock.Now()).Seconds())
		if remaining < 0 {
			remaining = 0
		}
		resp.TimeRemainingSec = &remaining
	}

	writeJSON(w, resp)
}

// HandleSessionDeltas handles GET /api/session/deltas.
func (h *StatusHandler) HandleSessionDeltas(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	deltas := h.service.LastDeltas()
	if deltas == nil {
		deltas = []PayoutDelta{}
	}
	writeJSON(w, deltas)
}

// HandleConnection handles GET /api/connection.
func (h *StatusHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, h.service.ConnStats())
}

// RegisterRoutes registers the ops routes with an HTTP mux.
func (h *StatusHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/session/state", h.HandleSessionState)
	mux.HandleFunc("/api/session/deltas", h.HandleSessionDeltas)
	mux.HandleFunc("/api/connection", h.HandleConnection)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
