package pose

import (
	"math"

	"github.com/ayusman/fastcheck/internal/detector"
)

const rad2deg = 180 / math.Pi

// DefaultSmoothing is the EMA factor applied to head angles.
const DefaultSmoothing = 0.25

// Angles are head rotation angles in degrees.
type Angles struct {
	Roll  float64 `json:"roll"`
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
}

// EulerFromMatrix extracts roll, pitch and yaw from a face transformation
// matrix. m[0..2], m[4..6] and m[8..10] hold the rotation rows.
func EulerFromMatrix(m []float64) Angles {
	r00, r10 := m[0], m[4]
	r11, r12 := m[5], m[6]
	r20, r21, r22 := m[8], m[9], m[10]

	sy := math.Hypot(r00, r10)
	var roll, pitch, yaw float64
	if sy > 1e-6 {
		roll = math.Atan2(r21, r22)
		pitch = math.Atan2(-r20, sy)
		yaw = math.Atan2(r10, r00)
	} else {
		// Gimbal lock: yaw is folded into roll.
		roll = math.Atan2(-r12, r11)
		pitch = math.Atan2(-r20, sy)
	}
	return Angles{Roll: roll * rad2deg, Yaw: yaw * rad2deg, Pitch: pitch * rad2deg}
}

// ApproxAngles estimates head angles from the outer eye corners, the nose tip
// and the chin, measured on a w x h pixel frame. It returns false when the
// mesh lacks any of them.
func ApproxAngles(face detector.LandmarkSet, w, h float64) (Angles, bool) {
	l, okL := face.Point(detector.FaceLeftEyeOuter)
	r, okR := face.Point(detector.FaceRightEyeOuter)
	n, okN := face.Point(detector.FaceNoseTip)
	c, okC := face.Point(detector.FaceChin)
	if !okL || !okR || !okN || !okC {
		return Angles{}, false
	}

	lx, ly := l.X*w, l.Y*h
	rx, ry := r.X*w, r.Y*h
	nx, ny := n.X*w, n.Y*h
	cx, cy := c.X*w, c.Y*h

	eyeDx, eyeDy := rx-lx, ry-ly
	interEye := math.Hypot(eyeDx, eyeDy)
	if interEye == 0 {
		interEye = 1
	}
	roll := math.Atan2(eyeDy, eyeDx) * rad2deg

	midEyeX := (lx + rx) / 2
	yaw := math.Asin(clamp((nx-midEyeX)/(interEye*0.5), -1, 1)) * rad2deg

	pitch := math.Atan2(cx-nx, cy-ny) * rad2deg

	return Angles{Roll: roll, Yaw: yaw, Pitch: pitch}, true
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Smoother is an exponential moving average over Angles. The first sample
// passes through unchanged.
type Smoother struct {
	Alpha  float64
	prev   Angles
	primed bool
}

// Update folds a new sample in and returns the smoothed value.
func (s *Smoother) Update(next Angles) Angles {
	if !s.primed {
		s.prev = next
		s.primed = true
		return next
	}
	a := s.Alpha
	s.prev = Angles{
		Roll:  s.prev.Roll + a*(next.Roll-s.prev.Roll),
		Yaw:   s.prev.Yaw + a*(next.Yaw-s.prev.Yaw),
		Pitch: s.prev.Pitch + a*(next.Pitch-s.prev.Pitch),
	}
	return s.prev
}

// Reset forgets the running average.
func (s *Smoother) Reset() {
	s.prev = Angles{}
	s.primed = false
}

// Tolerances are the maximum absolute angles, in degrees, for a ready pose.
// A zero tolerance disables that axis.
type Tolerances struct {
	Roll  float64 `json:"roll" mapstructure:"roll"`
	Yaw   float64 `json:"yaw" mapstructure:"yaw"`
	Pitch float64 `json:"pitch" mapstructure:"pitch"`
}

// DefaultTolerances gates on roll and yaw only.
func DefaultTolerances() Tolerances {
	return Tolerances{Roll: 3, Yaw: 5}
}

// FaceReadiness carries the smoothed angles and how far each axis is past
// its tolerance (negative means inside).
type FaceReadiness struct {
	Found   bool   `json:"found"`
	Angles  Angles `json:"angles"`
	Excess  Angles `json:"excess"`
	RollOK  bool   `json:"roll_ok"`
	YawOK   bool   `json:"yaw_ok"`
	PitchOK bool   `json:"pitch_ok"`
}

// FaceGate is ready when the smoothed head angles are within tolerance.
// It keeps smoothing state between frames and must not be shared between
// controllers.
type FaceGate struct {
	Tolerances Tolerances
	smoother   Smoother
}

// NewFaceGate creates a gate with the given tolerances and EMA factor.
func NewFaceGate(tol Tolerances, alpha float64) *FaceGate {
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultSmoothing
	}
	return &FaceGate{Tolerances: tol, smoother: Smoother{Alpha: alpha}}
}

// Evaluate implements Gate. Only the first face is considered.
func (g *FaceGate) Evaluate(sets []detector.LandmarkSet, view Rect) Readiness {
	faces := detector.Faces(sets)
	if len(faces) == 0 {
		return Readiness{Face: &FaceReadiness{}, Hints: []string{HintNoFace}}
	}
	face := faces[0]

	var raw Angles
	if face.HasTransform() {
		raw = EulerFromMatrix(face.Transform)
	} else {
		var ok bool
		raw, ok = ApproxAngles(face, view.Width(), view.Height())
		if !ok {
			return Readiness{Face: &FaceReadiness{}, Hints: []string{HintNoFace}}
		}
	}

	m := g.smoother.Update(raw)
	fr := &FaceReadiness{
		Found:  true,
		Angles: m,
		Excess: Angles{
			Roll:  excess(m.Roll, g.Tolerances.Roll),
			Yaw:   excess(m.Yaw, g.Tolerances.Yaw),
			Pitch: excess(m.Pitch, g.Tolerances.Pitch),
		},
	}
	fr.RollOK = g.Tolerances.Roll <= 0 || fr.Excess.Roll <= 0
	fr.YawOK = g.Tolerances.Yaw <= 0 || fr.Excess.Yaw <= 0
	fr.PitchOK = g.Tolerances.Pitch <= 0 || fr.Excess.Pitch <= 0

	r := Readiness{Face: fr, Ready: fr.RollOK && fr.YawOK && fr.PitchOK}
	if !fr.RollOK {
		r.Hints = append(r.Hints, HintRoll)
	}
	if !fr.YawOK {
		r.Hints = append(r.Hints, HintYaw)
	}
	if !fr.PitchOK {
		r.Hints = append(r.Hints, HintPitch)
	}
	if r.Ready {
		r.Hints = []string{HintHoldFace}
	}
	return r
}

// Reset clears the smoothing history.
func (g *FaceGate) Reset() {
	g.smoother.Reset()
}

func excess(angle, tol float64) float64 {
	if tol <= 0 {
		return 0
	}
	return math.Abs(angle) - tol
}
