package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
)

// ArmImages fetches the stills the backend kept for an arm result.
type ArmImages interface {
	ArmImage(ctx context.Context, id int64, which string) ([]byte, string, error)
}

// ArmImageHandler serves GET /api/arm/{id}/image/{start|end} from the
// backend so the history page can show stills of results recorded elsewhere.
type ArmImageHandler struct {
	images ArmImages
}

// NewArmImageHandler creates a new ArmImageHandler.
func NewArmImageHandler(images ArmImages) *ArmImageHandler {
	return &ArmImageHandler{images: images}
}

func (h *ArmImageHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/arm"), "/"), "/")
	if len(parts) != 3 || parts[1] != "image" {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid result id")
		return
	}
	which := parts[2]
	if which != "start" && which != "end" {
		writeError(w, http.StatusBadRequest, "Image must be start or end")
		return
	}

	data, contentType, err := h.images.ArmImage(r.Context(), id, which)
	if err != nil {
		writeBackendError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
