package api

import (
	"net/http"
	"strings"

	"github.com/ayusman/fastcheck/internal/screening"
)

// Screening is the part of the application the screening endpoints drive.
type Screening interface {
	Start(flow screening.Flow) error
	Stop()
	Trigger() error
	Running() bool
	Flow() screening.Flow
	Overlay() screening.Overlay
	Last() *screening.Result
}

// ScreeningHandler starts, stops and reports the screening flows.
type ScreeningHandler struct {
	app Screening
}

// NewScreeningHandler creates a new ScreeningHandler.
func NewScreeningHandler(app Screening) *ScreeningHandler {
	return &ScreeningHandler{app: app}
}

type statusResponse struct {
	Running bool               `json:"running"`
	Flow    screening.Flow     `json:"flow,omitempty"`
	Overlay *screening.Overlay `json:"overlay,omitempty"`
	Last    *screening.Result  `json:"last,omitempty"`
}

// ServeHTTP routes
//
//	GET  /api/screening
//	POST /api/screening/{arm|face}/start
//	POST /api/screening/stop
//	POST /api/screening/trigger
func (h *ScreeningHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/screening")
	path = strings.Trim(path, "/")

	if path == "" {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.status(w)
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 1 && parts[0] == "stop":
		h.app.Stop()
		h.status(w)
	case len(parts) == 1 && parts[0] == "trigger":
		h.trigger(w)
	case len(parts) == 2 && parts[1] == "start":
		h.start(w, parts[0])
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

func (h *ScreeningHandler) status(w http.ResponseWriter) {
	resp := statusResponse{
		Running: h.app.Running(),
		Flow:    h.app.Flow(),
		Last:    h.app.Last(),
	}
	if resp.Running {
		ov := h.app.Overlay()
		resp.Overlay = &ov
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *ScreeningHandler) start(w http.ResponseWriter, name string) {
	flow, err := screening.ParseFlow(name)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.app.Start(flow); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	h.status(w)
}

func (h *ScreeningHandler) trigger(w http.ResponseWriter) {
	// ErrBusy, ErrStopped and "not running" all conflict with the current
	// state of the flow.
	if err := h.app.Trigger(); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": string(screening.StateCapturing)})
}
