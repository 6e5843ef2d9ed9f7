package app

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"

	"github.com/ayusman/fastcheck/internal/pose"
	"github.com/ayusman/fastcheck/internal/screening"
)

var (
	colorIdle  = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	colorReady = color.RGBA{G: 220, A: 255}
	colorWarn  = color.RGBA{R: 255, G: 160, A: 255}
	colorTip   = color.RGBA{R: 255, G: 64, B: 64, A: 255}
)

func rect(r pose.Rect) image.Rectangle {
	return image.Rect(int(r.MinX), int(r.MinY), int(r.MaxX), int(r.MaxY))
}

func boxColor(in bool) color.RGBA {
	if in {
		return colorReady
	}
	return colorIdle
}

// renderPreview draws the overlay on a copy of frame, mirrored when the
// preview is shown as a mirror, and returns it as JPEG. Overlay geometry is
// already in preview coordinates.
func renderPreview(frame *gocv.Mat, ov screening.Overlay, mirrored bool) ([]byte, error) {
	if frame == nil || frame.Empty() {
		return nil, errors.New("empty frame")
	}

	img := gocv.NewMat()
	defer img.Close()
	if mirrored {
		gocv.Flip(*frame, &img, 1)
	} else {
		frame.CopyTo(&img)
	}

	r := ov.Readiness
	if h := r.Hands; h != nil {
		gocv.Rectangle(&img, rect(h.LeftBox), boxColor(h.InLeft), 3)
		gocv.Rectangle(&img, rect(h.RightBox), boxColor(h.InRight), 3)
		for _, tip := range h.Tips {
			gocv.Circle(&img, image.Pt(int(tip.X), int(tip.Y)), 8, colorTip, -1)
		}
	}
	if f := r.Face; f != nil && f.Found {
		c := colorReady
		if !r.Ready {
			c = colorWarn
		}
		angles := fmt.Sprintf("roll %.1f  yaw %.1f  pitch %.1f", f.Angles.Roll, f.Angles.Yaw, f.Angles.Pitch)
		gocv.PutText(&img, angles, image.Pt(16, img.Rows()-48), gocv.FontHersheySimplex, 0.7, c, 2)
	}

	status := string(ov.State)
	switch {
	case ov.Busy:
	case ov.CooldownMS > 0:
		status = fmt.Sprintf("cooldown %.1fs", float64(ov.CooldownMS)/1000)
	case r.Ready:
		status = fmt.Sprintf("hold %d", int(math.Ceil(float64(ov.RemainingMS)/1000)))
	}
	gocv.PutText(&img, status, image.Pt(16, 40), gocv.FontHersheySimplex, 1.1, colorIdle, 2)

	if len(r.Hints) > 0 && !ov.Busy {
		gocv.PutText(&img, r.Hints[0], image.Pt(16, img.Rows()-16), gocv.FontHersheySimplex, 0.7, colorIdle, 2)
	}

	if ov.Progress > 0 && !ov.Busy {
		w := int(float64(img.Cols()) * ov.Progress)
		gocv.Rectangle(&img, image.Rect(0, 0, w, 8), colorReady, -1)
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		return nil, fmt.Errorf("encode preview: %w", err)
	}
	defer buf.Close()

	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())
	return data, nil
}
