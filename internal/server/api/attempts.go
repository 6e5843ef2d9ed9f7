package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ayusman/fastcheck/internal/store"
)

// AttemptsHandler serves the local attempt history.
type AttemptsHandler struct {
	store *store.Store
}

// NewAttemptsHandler creates a new AttemptsHandler with the given store.
func NewAttemptsHandler(s *store.Store) *AttemptsHandler {
	return &AttemptsHandler{store: s}
}

// ServeHTTP routes
//
//	GET    /api/attempts?flow=arm&limit=20
//	GET    /api/attempts/{id}
//	DELETE /api/attempts/{id}
//	GET    /api/attempts/{id}/frames/{seq}
func (h *AttemptsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/attempts")
	path = strings.Trim(path, "/")

	if path == "" {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.list(w, r)
		return
	}

	parts := strings.Split(path, "/")
	id := parts[0]

	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			h.get(w, id)
		case http.MethodDelete:
			h.delete(w, id)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case len(parts) == 3 && parts[1] == "frames":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		seq, err := strconv.Atoi(parts[2])
		if err != nil || seq < 0 {
			writeError(w, http.StatusBadRequest, "Invalid frame number")
			return
		}
		h.frame(w, id, seq)
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

type attemptResponse struct {
	*store.Attempt
	FrameURLs []string `json:"frame_urls"`
}

type listAttemptsResponse struct {
	Attempts []attemptResponse `json:"attempts"`
}

func toResponse(a *store.Attempt) attemptResponse {
	urls := make([]string, a.Frames)
	for i := range urls {
		urls[i] = "/api/attempts/" + a.ID + "/frames/" + strconv.Itoa(i)
	}
	return attemptResponse{Attempt: a, FrameURLs: urls}
}

// list handles GET /api/attempts.
func (h *AttemptsHandler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	flow := q.Get("flow")
	if flow != "" && flow != "arm" && flow != "face" {
		writeError(w, http.StatusBadRequest, "Invalid flow")
		return
	}

	limit := 50
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	attempts, err := h.store.Attempts().List(flow, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list attempts")
		return
	}

	response := listAttemptsResponse{Attempts: make([]attemptResponse, 0, len(attempts))}
	for _, a := range attempts {
		response.Attempts = append(response.Attempts, toResponse(a))
	}
	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/attempts/{id}.
func (h *AttemptsHandler) get(w http.ResponseWriter, id string) {
	a, err := h.store.Attempts().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Attempt not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get attempt")
		return
	}
	writeJSON(w, http.StatusOK, toResponse(a))
}

// delete handles DELETE /api/attempts/{id}.
func (h *AttemptsHandler) delete(w http.ResponseWriter, id string) {
	if err := h.store.Attempts().Delete(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Attempt not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete attempt")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// frame handles GET /api/attempts/{id}/frames/{seq} and returns the image.
func (h *AttemptsHandler) frame(w http.ResponseWriter, id string, seq int) {
	f, err := h.store.Attempts().Frame(id, seq)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Frame not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get frame")
		return
	}
	w.Header().Set("Content-Type", f.ContentType)
	w.Header().Set("Content-Disposition", `inline; filename="`+f.Filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(f.Data)))
	w.WriteHeader(http.StatusOK)
	w.Write(f.Data)
}
