// Package app runs the camera loop that feeds the screening controllers.
package app

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ayusman/fastcheck/internal/capture"
	"github.com/ayusman/fastcheck/internal/config"
	"github.com/ayusman/fastcheck/internal/detector"
	"github.com/ayusman/fastcheck/internal/pose"
	"github.com/ayusman/fastcheck/internal/screening"
	"github.com/ayusman/fastcheck/internal/store"
)

// ErrNotRunning is returned by operations that need an active flow.
var ErrNotRunning = errors.New("no screening flow is running")

// Submitter sends stills of both flows to the backend.
type Submitter interface {
	screening.ArmSubmitter
	screening.FaceSubmitter
}

// Config holds configuration options for the application.
type Config struct {
	Camera      capture.Config
	Detector    detector.Config
	Screening   config.ScreeningConfig
	HistoryKeep int
}

// Deps are the collaborators of an App. NewCamera and NewDetector default to
// the GoCV camera and the MediaPipe service.
type Deps struct {
	Store       *store.Store
	Submitter   Submitter
	NewCamera   func(capture.Config) capture.Camera
	NewDetector func(detector.Config, zerolog.Logger) (detector.Detector, error)
	Now         func() time.Time
}

// App owns the camera, the detector and the controller of the running flow.
type App struct {
	config Config
	deps   Deps
	log    zerolog.Logger

	// lifecycle serializes Start, Stop and the face to arm advance so only
	// one set of camera, detector and frame loop exists at a time.
	lifecycle sync.Mutex

	mu       sync.RWMutex
	flow     screening.Flow
	camera   capture.Camera
	detector detector.Detector
	latest   *capture.LatestFrame
	ctrl     *screening.Controller
	stopCh   chan struct{}
	done     chan struct{}
	preview  []byte
	overlay  screening.Overlay
	last     *screening.Result

	sinkMu   sync.RWMutex
	overlays []func(screening.Overlay)
	results  []func(*screening.Result)
}

// New creates a new App instance with the given configuration.
func New(cfg Config, deps Deps, log zerolog.Logger) *App {
	if deps.NewCamera == nil {
		deps.NewCamera = capture.NewCamera
	}
	if deps.NewDetector == nil {
		deps.NewDetector = newMediaPipe
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if cfg.Camera.FPS <= 0 {
		cfg.Camera.FPS = capture.DefaultFPS
	}
	return &App{
		config: cfg,
		deps:   deps,
		log:    log.With().Str("component", "app").Logger(),
	}
}

func newMediaPipe(cfg detector.Config, log zerolog.Logger) (detector.Detector, error) {
	mp, err := detector.NewMediaPipeDetector(cfg, log)
	if err != nil {
		return nil, err
	}
	if err := mp.Start(); err != nil {
		mp.Close()
		return nil, err
	}
	return mp, nil
}

// OnOverlay registers fn to receive the overlay of every processed frame.
func (a *App) OnOverlay(fn func(screening.Overlay)) {
	a.sinkMu.Lock()
	defer a.sinkMu.Unlock()
	a.overlays = append(a.overlays, fn)
}

// OnResult registers fn to receive every finished attempt.
func (a *App) OnResult(fn func(*screening.Result)) {
	a.sinkMu.Lock()
	defer a.sinkMu.Unlock()
	a.results = append(a.results, fn)
}

func detectorMode(flow screening.Flow) detector.Mode {
	if flow == screening.FlowFace {
		return detector.ModeFace
	}
	return detector.ModeHands
}

func (a *App) gate(flow screening.Flow) pose.Gate {
	sc := a.config.Screening
	if flow == screening.FlowFace {
		return pose.NewFaceGate(sc.Face.Tolerances, sc.Face.Smoothing)
	}
	g := pose.NewHandGate(sc.Mirrored)
	if sc.Guides != (pose.Guides{}) {
		g.Guides = sc.Guides
	}
	return g
}

func (a *App) dwell(flow screening.Flow) time.Duration {
	if flow == screening.FlowFace {
		return a.config.Screening.FaceDwell
	}
	return a.config.Screening.ArmDwell
}

// Start opens the camera and the detector for flow and starts the frame
// loop. A running flow is stopped first. On error every resource acquired so
// far is released.
func (a *App) Start(flow screening.Flow) error {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()
	a.stop()
	return a.start(flow)
}

// start requires the lifecycle lock and a stopped App.
func (a *App) start(flow screening.Flow) error {
	camera := a.deps.NewCamera(a.config.Camera)
	if err := camera.Open(); err != nil {
		return fmt.Errorf("open camera: %w", err)
	}
	camera.SetFPS(a.config.Camera.FPS)

	detCfg := a.config.Detector
	detCfg.Mode = detectorMode(flow)
	det, err := a.deps.NewDetector(detCfg, a.log)
	if err != nil {
		camera.Close()
		return fmt.Errorf("start detector: %w", err)
	}

	latest := &capture.LatestFrame{}
	sc := a.config.Screening

	var pipeline screening.Pipeline
	switch flow {
	case screening.FlowArm:
		pipeline = screening.NewArmPipeline(latest, a.deps.Submitter, sc.Mirrored, a.log)
	case screening.FlowFace:
		pipeline = screening.NewFacePipeline(latest, det, a.deps.Submitter, sc.Mirrored, sc.Face.Annotate, a.log)
	default:
		det.Close()
		camera.Close()
		return fmt.Errorf("unknown flow %q", flow)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.flow = flow
	a.camera = camera
	a.detector = det
	a.latest = latest
	a.ctrl = screening.NewController(screening.Options{
		Flow:     flow,
		Gate:     a.gate(flow),
		Pipeline: pipeline,
		Dwell:    a.dwell(flow),
		Cooldown: sc.Cooldown,
		Now:      a.deps.Now,
		OnEvent:  a.handleEvent,
	}, a.log)
	a.stopCh = make(chan struct{})
	a.done = make(chan struct{})
	go a.runPipeline(a.ctrl, camera, det, latest, a.stopCh, a.done)

	a.log.Info().Str("flow", string(flow)).Msg("screening started")
	return nil
}

// Stop cancels any in-flight attempt, halts the frame loop and releases the
// camera and the detector. Stopping an idle App is a no-op.
func (a *App) Stop() {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()
	a.stop()
}

// stop requires the lifecycle lock.
func (a *App) stop() {
	a.mu.Lock()
	ctrl, stopCh, done := a.ctrl, a.stopCh, a.done
	camera, det, latest := a.camera, a.detector, a.latest
	flow := a.flow
	a.ctrl, a.stopCh, a.done = nil, nil, nil
	a.camera, a.detector, a.latest = nil, nil, nil
	a.flow = ""
	a.preview = nil
	a.mu.Unlock()

	if stopCh == nil {
		return
	}

	// The controller first so a run blocked in a wait is canceled before
	// the loop and the camera go away.
	ctrl.Stop()
	close(stopCh)
	<-done

	if err := det.Close(); err != nil {
		a.log.Warn().Err(err).Msg("error closing detector")
	}
	if err := camera.Close(); err != nil {
		a.log.Warn().Err(err).Msg("error closing camera")
	}
	latest.Close()

	a.log.Info().Str("flow", string(flow)).Msg("screening stopped")
}

// Trigger starts an attempt of the running flow without waiting for the
// dwell.
func (a *App) Trigger() error {
	a.mu.RLock()
	ctrl := a.ctrl
	a.mu.RUnlock()
	if ctrl == nil {
		return ErrNotRunning
	}
	return ctrl.Trigger()
}

// Running reports whether a flow is active.
func (a *App) Running() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ctrl != nil
}

// Flow returns the running flow, or "" when stopped.
func (a *App) Flow() screening.Flow {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.flow
}

// Overlay returns the overlay of the most recently processed frame.
func (a *App) Overlay() screening.Overlay {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.overlay
}

// Preview returns the latest rendered preview JPEG.
func (a *App) Preview() ([]byte, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.preview, a.preview != nil
}

// Last returns the most recent finished attempt of any flow.
func (a *App) Last() *screening.Result {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.last
}

// Wait blocks until the in-flight attempt of the running flow, if any, has
// finished.
func (a *App) Wait() {
	a.mu.RLock()
	ctrl := a.ctrl
	a.mu.RUnlock()
	if ctrl != nil {
		ctrl.Wait()
	}
}

func (a *App) publishOverlay(ov screening.Overlay) {
	a.sinkMu.RLock()
	sinks := a.overlays
	a.sinkMu.RUnlock()
	for _, fn := range sinks {
		fn(ov)
	}
}
