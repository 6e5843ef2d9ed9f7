package detector

import (
	"math"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu     sync.Mutex
	sets   []LandmarkSet
	err    error
	calls  int
	closed bool
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetSets sets the landmark sets that will be returned by Detect.
func (m *MockDetector) SetSets(sets []LandmarkSet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets = sets
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Detect returns the pre-configured sets or error.
func (m *MockDetector) Detect(frame *gocv.Mat, ts time.Duration) ([]LandmarkSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.sets, nil
}

// Calls returns how many times Detect ran.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Close marks the mock closed.
func (m *MockDetector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockDetector) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// HandAt returns an open hand whose middle fingertip sits at (tipX, tipY)
// in normalized detector coordinates. An empty label leaves the side unknown.
func HandAt(label string, tipX, tipY float64) LandmarkSet {
	points := make([]Point3D, NumHandLandmarks)
	wrist := Point3D{X: tipX, Y: tipY + 0.25}
	for i := range points {
		// Spread the joints along the wrist-to-tip line.
		f := float64(i%4+1) / 4
		points[i] = Point3D{
			X: wrist.X + (tipX-wrist.X)*f,
			Y: wrist.Y + (tipY-wrist.Y)*f,
		}
	}
	points[Wrist] = wrist
	points[MiddleTip] = Point3D{X: tipX, Y: tipY}

	return LandmarkSet{Kind: KindHand, Points: points, Label: label, Score: 0.95}
}

// FaceWithRoll returns a frontal face mesh whose eye line is tilted by
// rollDeg when drawn on a w x h frame. Yaw and pitch are zero.
func FaceWithRoll(rollDeg float64, w, h int) LandmarkSet {
	points := make([]Point3D, NumFaceLandmarks)
	cx, cy := float64(w)/2, float64(h)*0.45
	half := float64(w) * 0.08
	r := rollDeg * math.Pi / 180

	toNorm := func(px, py float64) Point3D {
		return Point3D{X: px / float64(w), Y: py / float64(h)}
	}
	for i := range points {
		points[i] = toNorm(cx, cy)
	}

	points[FaceLeftEyeOuter] = toNorm(cx-half*math.Cos(r), cy-half*math.Sin(r))
	points[FaceRightEyeOuter] = toNorm(cx+half*math.Cos(r), cy+half*math.Sin(r))
	// Nose and chin sit on the perpendicular through the eye midpoint.
	nose := half * 0.9
	chin := half * 2.2
	points[FaceNoseTip] = toNorm(cx-nose*math.Sin(r), cy+nose*math.Cos(r))
	points[FaceChin] = toNorm(cx-chin*math.Sin(r), cy+chin*math.Cos(r))

	return LandmarkSet{Kind: KindFace, Points: points}
}

// FaceWithTransform returns a face mesh carrying a transformation matrix
// built from the given Euler angles in degrees.
func FaceWithTransform(rollDeg, pitchDeg, yawDeg float64) LandmarkSet {
	set := FaceWithRoll(0, 640, 480)
	set.Transform = RotationMatrix(rollDeg, pitchDeg, yawDeg)
	return set
}

// RotationMatrix builds a 4x4 matrix, laid out as the face landmarker emits
// it, whose rotation part is Rz(yaw) * Ry(pitch) * Rx(roll).
func RotationMatrix(rollDeg, pitchDeg, yawDeg float64) []float64 {
	const d2r = math.Pi / 180
	a, b, c := rollDeg*d2r, pitchDeg*d2r, yawDeg*d2r
	ca, sa := math.Cos(a), math.Sin(a)
	cb, sb := math.Cos(b), math.Sin(b)
	cc, sc := math.Cos(c), math.Sin(c)

	// r[row][col]
	r := [3][3]float64{
		{cc * cb, cc*sb*sa - sc*ca, cc*sb*ca + sc*sa},
		{sc * cb, sc*sb*sa + cc*ca, sc*sb*ca - cc*sa},
		{-sb, cb * sa, cb * ca},
	}

	// m[0..2] is the first row, m[4..6] the second, m[8..10] the third.
	return []float64{
		r[0][0], r[0][1], r[0][2], 0,
		r[1][0], r[1][1], r[1][2], 0,
		r[2][0], r[2][1], r[2][2], 0,
		0, 0, 0, 1,
	}
}
