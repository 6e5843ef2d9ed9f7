package pose

import (
	"github.com/ayusman/fastcheck/internal/detector"
)

// Readiness is the per-frame output of a gate. Exactly one of Hands and
// Face is set.
type Readiness struct {
	Ready bool           `json:"ready"`
	Hands *HandReadiness `json:"hands,omitempty"`
	Face  *FaceReadiness `json:"face,omitempty"`
	Hints []string       `json:"hints,omitempty"`
}

// Gate evaluates one frame of landmarks against a view.
type Gate interface {
	Evaluate(sets []detector.LandmarkSet, view Rect) Readiness
}

// Guides are the left and right hand boxes as fractions of the view.
type Guides struct {
	Left  FracRect `json:"left" mapstructure:"left"`
	Right FracRect `json:"right" mapstructure:"right"`
}

// DefaultGuides places two tall boxes 8% in from each side.
func DefaultGuides() Guides {
	return Guides{
		Left:  FracRect{X: 0.08, Y: 0.20, W: 0.26, H: 0.60},
		Right: FracRect{X: 0.66, Y: 0.20, W: 0.26, H: 0.60},
	}
}

// HandReadiness reports which guide boxes hold the matching hand.
type HandReadiness struct {
	InLeft   bool    `json:"in_left"`
	InRight  bool    `json:"in_right"`
	Tips     []Point `json:"tips,omitempty"`
	LeftBox  Rect    `json:"left_box"`
	RightBox Rect    `json:"right_box"`
}

// HandGate is ready when a left hand's tracked landmark is inside the left
// box and a right hand's is inside the right box, in the same frame.
type HandGate struct {
	Guides   Guides
	Mirrored bool
	// Landmark is the tracked hand landmark (default: middle fingertip).
	Landmark int
}

// NewHandGate returns a gate with the default guides tracking the middle
// fingertip.
func NewHandGate(mirrored bool) HandGate {
	return HandGate{
		Guides:   DefaultGuides(),
		Mirrored: mirrored,
		Landmark: detector.MiddleTip,
	}
}

// Side resolves which side a hand belongs to. The detector label wins; an
// unlabeled hand counts as Left when its mapped tip is left of the view
// center.
func Side(label string, tip Point, view Rect) string {
	switch label {
	case detector.LabelLeft, detector.LabelRight:
		return label
	}
	if tip.X < view.CenterX() {
		return detector.LabelLeft
	}
	return detector.LabelRight
}

// Evaluate implements Gate.
func (g HandGate) Evaluate(sets []detector.LandmarkSet, view Rect) Readiness {
	hr := &HandReadiness{
		LeftBox:  g.Guides.Left.In(view),
		RightBox: g.Guides.Right.In(view),
	}

	landmark := g.Landmark
	if landmark == 0 {
		landmark = detector.MiddleTip
	}

	for _, hand := range detector.Hands(sets) {
		p, ok := hand.Point(landmark)
		if !ok {
			continue
		}
		tip := MapToScreen(p, view, g.Mirrored)
		hr.Tips = append(hr.Tips, tip)

		switch Side(hand.Label, tip, view) {
		case detector.LabelLeft:
			if hr.LeftBox.Contains(tip) {
				hr.InLeft = true
			}
		case detector.LabelRight:
			if hr.RightBox.Contains(tip) {
				hr.InRight = true
			}
		}
	}

	r := Readiness{Ready: hr.InLeft && hr.InRight, Hands: hr}
	if !hr.InLeft {
		r.Hints = append(r.Hints, HintLeftHand)
	}
	if !hr.InRight {
		r.Hints = append(r.Hints, HintRightHand)
	}
	if r.Ready {
		r.Hints = []string{HintHoldArms}
	}
	return r
}

// User-facing hints.
const (
	HintLeftHand  = "Raise your left hand into the left box."
	HintRightHand = "Raise your right hand into the right box."
	HintHoldArms  = "Good. Keep both arms up, the test starts automatically."
	HintNoFace    = "Center your face in the frame."
	HintRoll      = "Your head is tilted. Keep it level."
	HintYaw       = "Turn your head to face the camera."
	HintPitch     = "Keep your chin level."
	HintHoldFace  = "Good. Hold still and smile, capturing automatically."
)
