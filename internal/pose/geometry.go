// Package pose turns raw landmarks into per-frame readiness signals for the
// screening flows: hands inside their guide boxes, or a level, frontal head.
package pose

import (
	"github.com/ayusman/fastcheck/internal/detector"
)

// Point is a position in screen (preview pixel) coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is an axis-aligned rectangle in screen coordinates. Edges are
// inclusive.
type Rect struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// View returns the rectangle of a w x h preview anchored at the origin.
func View(w, h int) Rect {
	return Rect{MaxX: float64(w), MaxY: float64(h)}
}

func (r Rect) Width() float64  { return r.MaxX - r.MinX }
func (r Rect) Height() float64 { return r.MaxY - r.MinY }

// CenterX returns the horizontal midpoint.
func (r Rect) CenterX() float64 { return (r.MinX + r.MaxX) / 2 }

// Contains reports whether p lies inside r, edges included.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.MinX && p.X <= r.MaxX && p.Y >= r.MinY && p.Y <= r.MaxY
}

// FracRect is a rectangle expressed as fractions of a view.
type FracRect struct {
	X float64 `json:"x" mapstructure:"x"`
	Y float64 `json:"y" mapstructure:"y"`
	W float64 `json:"w" mapstructure:"w"`
	H float64 `json:"h" mapstructure:"h"`
}

// In resolves the fractional rectangle against view.
func (f FracRect) In(view Rect) Rect {
	w, h := view.Width(), view.Height()
	return Rect{
		MinX: view.MinX + f.X*w,
		MinY: view.MinY + f.Y*h,
		MaxX: view.MinX + (f.X+f.W)*w,
		MaxY: view.MinY + (f.Y+f.H)*h,
	}
}

// MapToScreen converts a normalized detector point to screen coordinates.
//
// The detector sees the raw camera frame while the preview is drawn flipped,
// so with mirrored set the x axis is reversed: x=0.2 on a 1000px view lands
// at 800px.
func MapToScreen(p detector.Point3D, view Rect, mirrored bool) Point {
	x := p.X
	if mirrored {
		x = 1 - x
	}
	return Point{
		X: view.MinX + x*view.Width(),
		Y: view.MinY + p.Y*view.Height(),
	}
}
