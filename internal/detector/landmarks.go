// Package detector provides landmark detection interfaces and types for the
// hand and face screening flows.
package detector

// Hand landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
const (
	Wrist            = 0
	ThumbTip         = 4
	IndexTip         = 8
	MiddleMCP        = 9
	MiddleTip        = 12
	RingTip          = 16
	PinkyTip         = 20
	NumHandLandmarks = 21
)

// Face mesh landmark indices used for pose estimation.
const (
	FaceNoseTip       = 1
	FaceLeftEyeOuter  = 33
	FaceChin          = 152
	FaceRightEyeOuter = 263
	NumFaceLandmarks  = 468
)

// Labels reported for hands.
const (
	LabelLeft  = "Left"
	LabelRight = "Right"
)

// Kind tells which detector model produced a landmark set.
type Kind string

const (
	KindHand Kind = "hand"
	KindFace Kind = "face"
)

// Point3D represents a normalized landmark position. X and Y are in [0,1]
// relative to the frame, Z is depth relative to the model's origin.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// LandmarkSet is one detected hand or face.
type LandmarkSet struct {
	Kind   Kind      `json:"kind"`
	Points []Point3D `json:"points"`
	Label  string    `json:"label,omitempty"` // "Left" or "Right" for hands
	Score  float64   `json:"score,omitempty"`

	// Transform is the 4x4 facial transformation matrix (16 values) when the
	// face model was asked to output it.
	Transform []float64 `json:"transform,omitempty"`
}

// Point returns the landmark at index i and whether it exists.
func (s *LandmarkSet) Point(i int) (Point3D, bool) {
	if s == nil || i < 0 || i >= len(s.Points) {
		return Point3D{}, false
	}
	return s.Points[i], true
}

// HasTransform reports whether a full transformation matrix is available.
func (s *LandmarkSet) HasTransform() bool {
	return s != nil && len(s.Transform) >= 16
}

// Hands filters sets down to hand detections.
func Hands(sets []LandmarkSet) []LandmarkSet {
	return filterKind(sets, KindHand)
}

// Faces filters sets down to face detections.
func Faces(sets []LandmarkSet) []LandmarkSet {
	return filterKind(sets, KindFace)
}

func filterKind(sets []LandmarkSet, kind Kind) []LandmarkSet {
	var out []LandmarkSet
	for _, s := range sets {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}
