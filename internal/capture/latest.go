package capture

import (
	"errors"
	"sync"

	"gocv.io/x/gocv"
)

// ErrNoFrame is returned by Snapshot before the first frame arrives.
var ErrNoFrame = errors.New("no frame captured yet")

// LatestFrame holds a copy of the most recent camera frame so that capture
// pipelines can take stills without reading the camera themselves.
type LatestFrame struct {
	mu    sync.Mutex
	frame gocv.Mat
	ok    bool
}

// Store replaces the held frame with a copy of frame.
func (l *LatestFrame) Store(frame *gocv.Mat) {
	if frame == nil || frame.Empty() {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.ok {
		l.frame = gocv.NewMat()
		l.ok = true
	}
	frame.CopyTo(&l.frame)
}

// Snapshot returns a copy of the held frame. The caller must Close it.
func (l *LatestFrame) Snapshot() (gocv.Mat, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.ok || l.frame.Empty() {
		return gocv.Mat{}, ErrNoFrame
	}
	return l.frame.Clone(), nil
}

// Shoot implements the still source used by the screening pipelines.
func (l *LatestFrame) Shoot() (gocv.Mat, error) {
	return l.Snapshot()
}

// Close releases the held frame.
func (l *LatestFrame) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ok {
		l.ok = false
		return l.frame.Close()
	}
	return nil
}
