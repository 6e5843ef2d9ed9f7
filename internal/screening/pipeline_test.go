package screening

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/fastcheck/internal/backend"
	"github.com/ayusman/fastcheck/internal/detector"
)

func noReport(State) {}

func TestArmPipeline_Run(t *testing.T) {
	shooter := &fakeShooter{}
	submitter := &fakeArmSubmitter{result: backend.ArmResult{ID: 3, Label: "normal"}}
	sleeper := &sleepRecorder{}

	p := NewArmPipeline(shooter, submitter, true, zerolog.Nop())
	p.Sleep = sleeper.Sleep

	var reported []State
	out, err := p.Run(context.Background(), func(s State) { reported = append(reported, s) })
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{ArmFirstDelay, ArmSecondDelay}, sleeper.Waits())
	assert.Equal(t, 2, shooter.Shots())
	assert.Equal(t, []State{StateSubmitting}, reported)
	require.Len(t, out.Frames, 2)
	assert.Equal(t, ArmStartFilename, out.Frames[0].Filename)
	assert.Equal(t, ArmEndFilename, out.Frames[1].Filename)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, submitter.start.Data[:4])
	assert.Equal(t, "No arm drift detected", out.Text)
}

func TestArmPipeline_SubmitError(t *testing.T) {
	submitter := &fakeArmSubmitter{err: &backend.APIError{Status: 400, Message: "start_file, end_file required"}}
	p := NewArmPipeline(&fakeShooter{}, submitter, true, zerolog.Nop())
	p.Sleep = (&sleepRecorder{}).Sleep

	out, err := p.Run(context.Background(), noReport)
	require.Error(t, err)
	assert.Equal(t, "start_file, end_file required", err.Error())
	assert.Len(t, out.Frames, 2, "stills are kept for the attempt record")
}

func TestArmPipeline_ShooterError(t *testing.T) {
	submitter := &fakeArmSubmitter{}
	p := NewArmPipeline(&fakeShooter{err: errors.New("no frame captured yet")}, submitter, true, zerolog.Nop())
	p.Sleep = (&sleepRecorder{}).Sleep

	_, err := p.Run(context.Background(), noReport)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ArmStartFilename)
	assert.Zero(t, submitter.Calls())
}

func TestArmPipeline_CanceledDuringWait(t *testing.T) {
	submitter := &fakeArmSubmitter{}
	shooter := &fakeShooter{}
	p := NewArmPipeline(shooter, submitter, true, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx, noReport)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, shooter.Shots())
	assert.Zero(t, submitter.Calls())
}

func TestArmText(t *testing.T) {
	c := 0.5
	assert.Equal(t, "Arm drift detected (confidence 0.50)", ArmText(backend.ArmResult{Label: "detected", Confidence: &c}))
	assert.Equal(t, "No arm drift detected", ArmText(backend.ArmResult{Label: "normal"}))
}

func TestFacePipeline_Run(t *testing.T) {
	det := detector.NewMockDetector()
	det.SetSets([]detector.LandmarkSet{detector.FaceWithRoll(0, 64, 48)})

	submitter := &fakeFaceSubmitter{
		prediction: backend.FacePrediction{Modality: "face", PredProba: 0.2, PredLabel: 0},
		record:     backend.FaceRecord{FaceID: 9, ResultText: "normal"},
	}
	p := NewFacePipeline(&fakeShooter{}, det, submitter, true, true, zerolog.Nop())

	var reported []State
	out, err := p.Run(context.Background(), func(s State) { reported = append(reported, s) })
	require.NoError(t, err)

	assert.Equal(t, 1, det.Calls())
	assert.Equal(t, []State{StateSubmitting}, reported)
	require.Len(t, submitter.predicted, 1)
	require.Len(t, submitter.uploaded, 1)
	assert.Equal(t, FaceFilename, submitter.predicted[0].Filename)
	assert.Equal(t, "image/jpeg", submitter.uploaded[0].ContentType)
	assert.Equal(t, []byte{0xFF, 0xD8}, submitter.uploaded[0].Data[:2])
	require.NotNil(t, submitter.label)
	assert.Equal(t, 0, *submitter.label)
	assert.Contains(t, submitter.features, "angle_33_263")

	assert.Equal(t, "normal", out.Text)
	assert.JSONEq(t, `{"prediction":{"modality":"face","pred_proba":0.2,"pred_label":0,"features":null},
		"record":{"face_id":9,"user_id":"","result_text":"normal","created_at":""}}`, string(out.Response))
}

func TestFacePipeline_NoFace(t *testing.T) {
	det := detector.NewMockDetector()
	submitter := &fakeFaceSubmitter{}
	p := NewFacePipeline(&fakeShooter{}, det, submitter, true, false, zerolog.Nop())

	_, err := p.Run(context.Background(), noReport)
	assert.ErrorIs(t, err, ErrNoFace)
	assert.Empty(t, submitter.predicted)
}

func TestFacePipeline_DetectorError(t *testing.T) {
	det := detector.NewMockDetector()
	det.SetError(errors.New("detector exited"))
	p := NewFacePipeline(&fakeShooter{}, det, &fakeFaceSubmitter{}, true, false, zerolog.Nop())

	_, err := p.Run(context.Background(), noReport)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "detector exited")
}

func TestFacePipeline_PredictErrorSkipsUpload(t *testing.T) {
	det := detector.NewMockDetector()
	det.SetSets([]detector.LandmarkSet{detector.FaceWithRoll(0, 64, 48)})
	submitter := &fakeFaceSubmitter{predictErr: errBackendDown}
	p := NewFacePipeline(&fakeShooter{}, det, submitter, true, false, zerolog.Nop())

	out, err := p.Run(context.Background(), noReport)
	assert.ErrorIs(t, err, errBackendDown)
	assert.Len(t, out.Frames, 1)
	assert.Empty(t, submitter.uploaded)
}

func TestFaceText(t *testing.T) {
	assert.Equal(t, "stored text", FaceText(backend.FacePrediction{PredLabel: 1}, backend.FaceRecord{ResultText: "stored text"}))
	assert.Equal(t, "Facial asymmetry detected (probability 0.90)", FaceText(backend.FacePrediction{PredLabel: 1, PredProba: 0.9}, backend.FaceRecord{}))
	assert.Equal(t, "No facial asymmetry detected (probability 0.10)", FaceText(backend.FacePrediction{PredProba: 0.1}, backend.FaceRecord{}))
}

func TestSleep(t *testing.T) {
	require.NoError(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}
