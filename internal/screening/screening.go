// Package screening runs the gesture-gated capture flows of the arm and face
// tests: a held pose arms a one-shot trigger that captures stills, submits
// them to the backend and then cools down.
package screening

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/ayusman/fastcheck/internal/capture"
)

// Flow identifies a screening test.
type Flow string

const (
	FlowArm  Flow = "arm"
	FlowFace Flow = "face"
)

// ParseFlow validates a flow name.
func ParseFlow(s string) (Flow, error) {
	switch Flow(s) {
	case FlowArm, FlowFace:
		return Flow(s), nil
	}
	return "", fmt.Errorf("unknown flow %q", s)
}

// Hold and cooldown defaults.
const (
	ArmDwell        = 3 * time.Second
	FaceDwell       = 5 * time.Second
	DefaultCooldown = 3 * time.Second
)

// DefaultDwell returns the hold time that arms the trigger for flow.
func DefaultDwell(flow Flow) time.Duration {
	if flow == FlowFace {
		return FaceDwell
	}
	return ArmDwell
}

// State is the capture pipeline state.
type State string

const (
	StateIdle       State = "idle"
	StateCapturing  State = "capturing"
	StateSubmitting State = "submitting"
	StateSuccess    State = "success"
	StateFailure    State = "failure"
	StateCooldown   State = "cooldown"
)

var (
	// ErrBusy is returned when a run is already in flight.
	ErrBusy = errors.New("capture already in progress")
	// ErrStopped is returned by a controller after Stop.
	ErrStopped = errors.New("controller stopped")
	// ErrNoFace means the face detector found nothing in the captured still.
	ErrNoFace = errors.New("face not detected")
)

// Shooter hands out a copy of the current camera frame. The caller closes
// the returned Mat.
type Shooter interface {
	Shoot() (gocv.Mat, error)
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the real Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Output is what a pipeline produces on success.
type Output struct {
	Frames   []capture.Still
	Response json.RawMessage
	Text     string
}

// Pipeline captures and submits one attempt. report is called on internal
// state changes (Submitting).
type Pipeline interface {
	Run(ctx context.Context, report func(State)) (Output, error)
}

// Result is one finished attempt.
type Result struct {
	ID         uuid.UUID       `json:"id"`
	Flow       Flow            `json:"flow"`
	Outcome    State           `json:"outcome"`
	Frames     []capture.Still `json:"frames"`
	Response   json.RawMessage `json:"response,omitempty"`
	Text       string          `json:"text,omitempty"`
	Error      string          `json:"error,omitempty"`
	Canceled   bool            `json:"canceled,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
}

// Event is emitted on every state change. Result is set for the terminal
// Success and Failure events.
type Event struct {
	Flow   Flow
	State  State
	Result *Result
}
