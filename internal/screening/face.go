package screening

import (
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"

	"github.com/ayusman/fastcheck/internal/backend"
	"github.com/ayusman/fastcheck/internal/capture"
	"github.com/ayusman/fastcheck/internal/detector"
)

// FaceFilename is the still name the backend expects.
const FaceFilename = "frame.jpg"

// FaceSubmitter runs the face model and stores the annotated still.
type FaceSubmitter interface {
	PredictFace(ctx context.Context, frame backend.Part) (backend.FacePrediction, error)
	UploadFace(ctx context.Context, frame backend.Part, predLabel *int, features map[string]float64) (backend.FaceRecord, error)
}

// FacePipeline captures one still, re-detects the face on it, predicts and
// then uploads the still with the prediction.
type FacePipeline struct {
	Shooter   Shooter
	Detector  detector.Detector
	Encoder   capture.Encoder
	Submitter FaceSubmitter
	// Annotate draws the feature landmarks onto the uploaded still.
	Annotate bool
	Log      zerolog.Logger
	Now      func() time.Time
}

// NewFacePipeline wires a face pipeline with mirrored JPEG stills.
func NewFacePipeline(shooter Shooter, det detector.Detector, submitter FaceSubmitter, mirror, annotate bool, log zerolog.Logger) *FacePipeline {
	return &FacePipeline{
		Shooter:   shooter,
		Detector:  det,
		Encoder:   capture.Encoder{Mirror: mirror, Format: capture.FormatJPEG, Quality: capture.DefaultJPEGQuality, MarkRadius: 2},
		Submitter: submitter,
		Annotate:  annotate,
		Log:       log,
		Now:       time.Now,
	}
}

type faceResponse struct {
	Prediction backend.FacePrediction `json:"prediction"`
	Record     backend.FaceRecord     `json:"record"`
}

// Run implements Pipeline.
func (p *FacePipeline) Run(ctx context.Context, report func(State)) (Output, error) {
	frame, err := p.Shooter.Shoot()
	if err != nil {
		return Output{}, fmt.Errorf("capture %s: %w", FaceFilename, err)
	}
	defer frame.Close()

	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	sets, err := p.Detector.Detect(&frame, time.Duration(now().UnixMilli())*time.Millisecond)
	if err != nil {
		return Output{}, fmt.Errorf("detect face: %w", err)
	}
	faces := detector.Faces(sets)
	if len(faces) == 0 {
		return Output{}, ErrNoFace
	}
	face := faces[0]
	features := detector.FaceFeatures(face)

	var marks []capture.Mark
	if p.Annotate {
		for _, i := range detector.FeaturePointIndexes() {
			if pt, ok := face.Point(i); ok {
				marks = append(marks, capture.Mark{X: pt.X, Y: pt.Y})
			}
		}
	}

	still, err := p.Encoder.Encode(&frame, FaceFilename, marks)
	if err != nil {
		return Output{}, fmt.Errorf("capture %s: %w", FaceFilename, err)
	}
	frames := []capture.Still{still}

	report(StateSubmitting)

	pred, err := p.Submitter.PredictFace(ctx, part(still))
	if err != nil {
		return Output{Frames: frames}, err
	}
	p.Log.Debug().Int("label", pred.PredLabel).Float64("proba", pred.PredProba).Msg("face predicted")

	label := pred.PredLabel
	rec, err := p.Submitter.UploadFace(ctx, part(still), &label, features)
	if err != nil {
		return Output{Frames: frames}, err
	}

	raw, err := jsoniter.Marshal(faceResponse{Prediction: pred, Record: rec})
	if err != nil {
		return Output{Frames: frames}, fmt.Errorf("encode face result: %w", err)
	}
	return Output{Frames: frames, Response: raw, Text: FaceText(pred, rec)}, nil
}

// FaceText renders a face verdict for display. The backend's stored text
// wins when present.
func FaceText(pred backend.FacePrediction, rec backend.FaceRecord) string {
	if rec.ResultText != "" {
		return rec.ResultText
	}
	if pred.PredLabel == 1 {
		return fmt.Sprintf("Facial asymmetry detected (probability %.2f)", pred.PredProba)
	}
	return fmt.Sprintf("No facial asymmetry detected (probability %.2f)", pred.PredProba)
}
