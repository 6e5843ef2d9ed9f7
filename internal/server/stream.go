package server

import (
	"fmt"
	"net/http"
	"time"
)

// PreviewSource provides the latest rendered preview JPEG.
type PreviewSource interface {
	Preview() ([]byte, bool)
}

// StreamHandler serves the rendered preview as MJPEG.
type StreamHandler struct {
	source   PreviewSource
	interval time.Duration
	quit     <-chan struct{}
}

// NewStreamHandler creates a StreamHandler emitting at most fps frames per
// second. Streams end when quit is closed.
func NewStreamHandler(source PreviewSource, fps int, quit <-chan struct{}) *StreamHandler {
	if fps <= 0 {
		fps = 15
	}
	return &StreamHandler{
		source:   source,
		interval: time.Second / time.Duration(fps),
		quit:     quit,
	}
}

// ServeHTTP streams MJPEG frames to connected clients.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	var last []byte
	for {
		select {
		case <-r.Context().Done():
			return
		case <-h.quit:
			return
		case <-ticker.C:
		}

		frame, ok := h.source.Preview()
		// The app replaces the preview slice on every frame; the same slice
		// means no new frame yet.
		if !ok || (len(last) > 0 && len(frame) > 0 && &frame[0] == &last[0]) {
			continue
		}
		last = frame

		fmt.Fprintf(w, "--frame\r\n")
		fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
		fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(frame))
		if _, err := w.Write(frame); err != nil {
			return
		}
		fmt.Fprintf(w, "\r\n")

		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}
