package detector

import (
	"time"

	"gocv.io/x/gocv"
)

// Detector defines the interface for landmark detection implementations.
type Detector interface {
	// Detect analyzes a video frame and returns the detected landmark sets.
	// ts is the frame's position on the monotonic clock of the video stream;
	// tracking models require it to increase between calls.
	// Returns an empty slice if nothing is detected.
	Detect(frame *gocv.Mat, ts time.Duration) ([]LandmarkSet, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Mode selects the model the detector runs.
type Mode string

const (
	ModeHands Mode = "hands"
	ModeFace  Mode = "face"
)

// Config holds configuration options for landmark detection.
type Config struct {
	Mode Mode

	// MaxHands is the maximum number of hands to detect (default: 2).
	MaxHands int

	// MaxFaces is the maximum number of faces to detect (default: 1).
	MaxFaces int

	// MinConfidence is the minimum detection confidence threshold (0.0-1.0).
	MinConfidence float64

	// MinTrackingConf is the minimum tracking confidence threshold (0.0-1.0).
	MinTrackingConf float64

	// OutputTransform asks the face model for its transformation matrix.
	OutputTransform bool

	// Script and Python override the detector service location.
	Script string
	Python string

	// IdleTimeout shuts the service down after this long without a frame.
	IdleTimeout time.Duration
}

// DefaultConfig returns a Config with sensible default values for mode.
func DefaultConfig(mode Mode) Config {
	return Config{
		Mode:            mode,
		MaxHands:        2,
		MaxFaces:        1,
		MinConfidence:   0.5,
		MinTrackingConf: 0.5,
		OutputTransform: true,
		IdleTimeout:     30 * time.Second,
	}
}
