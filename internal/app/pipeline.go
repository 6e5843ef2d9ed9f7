package app

import (
	"image"
	"time"

	"github.com/ayusman/fastcheck/internal/capture"
	"github.com/ayusman/fastcheck/internal/detector"
	"github.com/ayusman/fastcheck/internal/pose"
	"github.com/ayusman/fastcheck/internal/screening"
)

// runPipeline is the frame loop of a running flow. Each tick it reads a
// frame, publishes it as the latest still source, runs the detector, feeds
// the controller and renders the preview. Capture runs happen on the
// controller's own goroutine and never block this loop.
func (a *App) runPipeline(ctrl *screening.Controller, camera capture.Camera, det detector.Detector,
	latest *capture.LatestFrame, stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	fps := camera.FPS()
	if fps <= 0 {
		fps = a.config.Camera.FPS
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	misses := 0

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			frame, err := camera.ReadFrame()
			if err != nil {
				misses++
				// Log the first miss and then once per second of misses.
				if misses == 1 || misses%fps == 0 {
					a.log.Warn().Err(err).Int("misses", misses).Msg("error reading frame")
				}
				continue
			}
			misses = 0

			latest.Store(frame)

			now := a.deps.Now()
			// Wall clock milliseconds, the same base the face pipeline uses
			// for its capture-time detection.
			sets, err := det.Detect(frame, time.Duration(now.UnixMilli())*time.Millisecond)
			if err != nil {
				a.log.Debug().Err(err).Msg("error detecting landmarks")
				sets = nil
			}

			size := camera.Size()
			if size.X <= 0 || size.Y <= 0 {
				size = image.Pt(frame.Cols(), frame.Rows())
			}
			view := pose.View(size.X, size.Y)
			overlay := ctrl.Tick(now, sets, view)

			preview, err := renderPreview(frame, overlay, a.config.Screening.Mirrored)
			frame.Close()
			if err != nil {
				a.log.Debug().Err(err).Msg("error rendering preview")
			}

			a.mu.Lock()
			if a.ctrl == ctrl {
				a.overlay = overlay
				if preview != nil {
					a.preview = preview
				}
			}
			a.mu.Unlock()

			a.publishOverlay(overlay)
		}
	}
}
