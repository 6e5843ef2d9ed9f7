package capture

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"time"

	"gocv.io/x/gocv"
)

// Format is the encoding of a captured still.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
)

// DefaultJPEGQuality matches the quality the face model was trained on.
const DefaultJPEGQuality = 90

// Still is one encoded capture ready for upload.
type Still struct {
	Data        []byte    `json:"-"`
	ContentType string    `json:"content_type"`
	Filename    string    `json:"filename"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	TakenAt     time.Time `json:"taken_at"`
}

// Mark is a point to draw on a still, in normalized unmirrored frame
// coordinates.
type Mark struct {
	X, Y float64
}

// Encoder turns a raw camera frame into a Still.
type Encoder struct {
	// Mirror flips the frame horizontally so the still matches the mirrored
	// preview the user saw.
	Mirror  bool
	Format  Format
	Quality int

	// MarkRadius and MarkColor style annotation points.
	MarkRadius int
	MarkColor  color.RGBA
}

// Encode copies frame, optionally mirrors it, draws marks and encodes it.
// filename is the part name the backend receives.
func (e Encoder) Encode(frame *gocv.Mat, filename string, marks []Mark) (Still, error) {
	if frame == nil || frame.Empty() {
		return Still{}, errors.New("empty frame")
	}

	img := gocv.NewMat()
	defer img.Close()

	if e.Mirror {
		gocv.Flip(*frame, &img, 1)
	} else {
		frame.CopyTo(&img)
	}

	w, h := img.Cols(), img.Rows()
	if len(marks) > 0 {
		radius := e.MarkRadius
		if radius <= 0 {
			radius = 2
		}
		c := e.MarkColor
		if c == (color.RGBA{}) {
			c = color.RGBA{G: 255, A: 255}
		}
		for _, m := range marks {
			x := m.X
			if e.Mirror {
				x = 1 - x
			}
			gocv.Circle(&img, image.Pt(int(x*float64(w)), int(m.Y*float64(h))), radius, c, -1)
		}
	}

	ext, params, contentType := e.encoding()
	buf, err := gocv.IMEncodeWithParams(ext, img, params)
	if err != nil {
		return Still{}, fmt.Errorf("encode still: %w", err)
	}
	defer buf.Close()

	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())

	return Still{
		Data:        data,
		ContentType: contentType,
		Filename:    filename,
		Width:       w,
		Height:      h,
		TakenAt:     time.Now(),
	}, nil
}

func (e Encoder) encoding() (gocv.FileExt, []int, string) {
	if e.Format == FormatJPEG {
		q := e.Quality
		if q <= 0 || q > 100 {
			q = DefaultJPEGQuality
		}
		return gocv.JPEGFileExt, []int{gocv.IMWriteJpegQuality, q}, "image/jpeg"
	}
	return gocv.PNGFileExt, []int{gocv.IMWritePngCompression, 3}, "image/png"
}
