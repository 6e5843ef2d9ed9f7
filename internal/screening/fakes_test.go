package screening

import (
	"context"
	"errors"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/fastcheck/internal/backend"
	"github.com/ayusman/fastcheck/internal/detector"
	"github.com/ayusman/fastcheck/internal/pose"
)

var t0 = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

func at(ms int) time.Time {
	return t0.Add(time.Duration(ms) * time.Millisecond)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: t0} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// sleepRecorder returns immediately and remembers what it was asked to wait.
type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) Waits() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.waits...)
}

type fakeShooter struct {
	mu    sync.Mutex
	shots int
	err   error
}

func (s *fakeShooter) Shoot() (gocv.Mat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return gocv.Mat{}, s.err
	}
	s.shots++
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(40, 80, 120, 0), 48, 64, gocv.MatTypeCV8UC3), nil
}

func (s *fakeShooter) Shots() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shots
}

type fakeArmSubmitter struct {
	mu     sync.Mutex
	calls  int
	start  backend.Part
	end    backend.Part
	result backend.ArmResult
	err    error
}

func (f *fakeArmSubmitter) PredictArm(ctx context.Context, start, end backend.Part) (backend.ArmResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.start, f.end = start, end
	return f.result, f.err
}

func (f *fakeArmSubmitter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeFaceSubmitter struct {
	mu         sync.Mutex
	predicted  []backend.Part
	uploaded   []backend.Part
	label      *int
	features   map[string]float64
	prediction backend.FacePrediction
	record     backend.FaceRecord
	predictErr error
	uploadErr  error
}

func (f *fakeFaceSubmitter) PredictFace(ctx context.Context, frame backend.Part) (backend.FacePrediction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.predicted = append(f.predicted, frame)
	return f.prediction, f.predictErr
}

func (f *fakeFaceSubmitter) UploadFace(ctx context.Context, frame backend.Part, predLabel *int, features map[string]float64) (backend.FaceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploaded = append(f.uploaded, frame)
	f.label = predLabel
	f.features = features
	return f.record, f.uploadErr
}

// countingPipeline succeeds or fails immediately.
type countingPipeline struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (p *countingPipeline) Run(ctx context.Context, report func(State)) (Output, error) {
	p.mu.Lock()
	p.calls++
	err := p.err
	p.mu.Unlock()
	report(StateSubmitting)
	if err != nil {
		return Output{}, err
	}
	return Output{Text: "ok", Response: []byte(`{"ok":true}`)}, nil
}

func (p *countingPipeline) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// blockingPipeline holds each run until released or canceled.
type blockingPipeline struct {
	mu      sync.Mutex
	calls   int
	entered chan struct{}
	release chan struct{}
}

func newBlockingPipeline() *blockingPipeline {
	return &blockingPipeline{entered: make(chan struct{}, 16), release: make(chan struct{})}
}

func (p *blockingPipeline) Run(ctx context.Context, report func(State)) (Output, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	p.entered <- struct{}{}

	select {
	case <-p.release:
		return Output{Text: "done"}, nil
	case <-ctx.Done():
		return Output{}, ctx.Err()
	}
}

func (p *blockingPipeline) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// switchGate reports a fixed readiness.
type switchGate struct {
	mu    sync.Mutex
	ready bool
}

func (g *switchGate) Set(ready bool) {
	g.mu.Lock()
	g.ready = ready
	g.mu.Unlock()
}

func (g *switchGate) Evaluate(sets []detector.LandmarkSet, view pose.Rect) pose.Readiness {
	g.mu.Lock()
	defer g.mu.Unlock()
	return pose.Readiness{Ready: g.ready}
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Record(e Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) States() []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]State, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.State)
	}
	return out
}

var errBackendDown = errors.New("HTTP 503")
