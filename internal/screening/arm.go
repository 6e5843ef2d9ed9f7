package screening

import (
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"

	"github.com/ayusman/fastcheck/internal/backend"
	"github.com/ayusman/fastcheck/internal/capture"
)

// Arm drift timing: the first still is taken 2.5s after the trigger, the
// second 8s later (10.5s in).
const (
	ArmFirstDelay  = 2500 * time.Millisecond
	ArmSecondDelay = 8 * time.Second
)

// Still names the backend expects.
const (
	ArmStartFilename = "t025.png"
	ArmEndFilename   = "t105.png"
)

// ArmSubmitter sends the two arm stills for inference.
type ArmSubmitter interface {
	PredictArm(ctx context.Context, start, end backend.Part) (backend.ArmResult, error)
}

// ArmPipeline captures the start and end stills of the arm drift test and
// submits them together.
type ArmPipeline struct {
	Shooter   Shooter
	Encoder   capture.Encoder
	Submitter ArmSubmitter
	Sleep     Sleeper
	Log       zerolog.Logger

	FirstDelay  time.Duration
	SecondDelay time.Duration
}

// NewArmPipeline wires an arm pipeline with mirrored PNG stills and the
// default delays.
func NewArmPipeline(shooter Shooter, submitter ArmSubmitter, mirror bool, log zerolog.Logger) *ArmPipeline {
	return &ArmPipeline{
		Shooter:     shooter,
		Encoder:     capture.Encoder{Mirror: mirror, Format: capture.FormatPNG},
		Submitter:   submitter,
		Sleep:       Sleep,
		Log:         log,
		FirstDelay:  ArmFirstDelay,
		SecondDelay: ArmSecondDelay,
	}
}

// Run implements Pipeline.
func (p *ArmPipeline) Run(ctx context.Context, report func(State)) (Output, error) {
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	p.Log.Debug().Dur("delay", p.FirstDelay).Msg("waiting for start still")
	if err := sleep(ctx, p.FirstDelay); err != nil {
		return Output{}, err
	}
	start, err := p.shoot(ArmStartFilename)
	if err != nil {
		return Output{}, err
	}

	p.Log.Debug().Dur("delay", p.SecondDelay).Msg("waiting for end still")
	if err := sleep(ctx, p.SecondDelay); err != nil {
		return Output{Frames: []capture.Still{start}}, err
	}
	end, err := p.shoot(ArmEndFilename)
	if err != nil {
		return Output{Frames: []capture.Still{start}}, err
	}

	frames := []capture.Still{start, end}
	report(StateSubmitting)

	res, err := p.Submitter.PredictArm(ctx, part(start), part(end))
	if err != nil {
		return Output{Frames: frames}, err
	}

	raw, err := jsoniter.Marshal(res)
	if err != nil {
		return Output{Frames: frames}, fmt.Errorf("encode arm result: %w", err)
	}
	return Output{Frames: frames, Response: raw, Text: ArmText(res)}, nil
}

func (p *ArmPipeline) shoot(filename string) (capture.Still, error) {
	frame, err := p.Shooter.Shoot()
	if err != nil {
		return capture.Still{}, fmt.Errorf("capture %s: %w", filename, err)
	}
	defer frame.Close()

	still, err := p.Encoder.Encode(&frame, filename, nil)
	if err != nil {
		return capture.Still{}, fmt.Errorf("capture %s: %w", filename, err)
	}
	return still, nil
}

// ArmText renders an arm verdict for display.
func ArmText(res backend.ArmResult) string {
	text := "No arm drift detected"
	if res.Label == "detected" {
		text = "Arm drift detected"
	}
	if res.Confidence != nil {
		text += fmt.Sprintf(" (confidence %.2f)", *res.Confidence)
	}
	return text
}

func part(s capture.Still) backend.Part {
	return backend.Part{Filename: s.Filename, ContentType: s.ContentType, Data: s.Data}
}
