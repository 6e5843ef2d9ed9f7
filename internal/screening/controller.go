package screening

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ayusman/fastcheck/internal/detector"
	"github.com/ayusman/fastcheck/internal/dwell"
	"github.com/ayusman/fastcheck/internal/pose"
)

// Overlay is the per-frame view of a controller for the presentation layer.
type Overlay struct {
	Flow        Flow           `json:"flow"`
	State       State          `json:"state"`
	Readiness   pose.Readiness `json:"readiness"`
	HoldMS      int64          `json:"hold_ms"`
	RemainingMS int64          `json:"remaining_ms"`
	Progress    float64        `json:"progress"`
	Busy        bool           `json:"busy"`
	CooldownMS  int64          `json:"cooldown_ms"`
	Error       string         `json:"error,omitempty"`
	ResultText  string         `json:"result_text,omitempty"`
	At          time.Time      `json:"at"`
}

// Options configure a Controller.
type Options struct {
	Flow     Flow
	Gate     pose.Gate
	Pipeline Pipeline
	// Dwell defaults to DefaultDwell(Flow), Cooldown to DefaultCooldown.
	Dwell    time.Duration
	Cooldown time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
	// OnEvent is called, outside the controller lock, on every state change.
	OnEvent func(Event)
}

// Controller gates one flow's pipeline on a held readiness condition. Tick
// is driven by the frame loop; the pipeline runs in its own goroutine so the
// loop keeps updating while stills are taken and submitted.
type Controller struct {
	flow     Flow
	gate     pose.Gate
	pipeline Pipeline
	cooldown time.Duration
	now      func() time.Time
	onEvent  func(Event)
	log      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu            sync.Mutex
	timer         *dwell.Timer
	state         State
	started       bool
	stopped       bool
	cooldownUntil time.Time
	last          *Result
	overlay       Overlay
}

// NewController creates a controller in the Idle state.
func NewController(opts Options, log zerolog.Logger) *Controller {
	hold := opts.Dwell
	if hold <= 0 {
		hold = DefaultDwell(opts.Flow)
	}
	cooldown := opts.Cooldown
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		flow:     opts.Flow,
		gate:     opts.Gate,
		pipeline: opts.Pipeline,
		cooldown: cooldown,
		now:      now,
		onEvent:  opts.OnEvent,
		log:      log.With().Str("flow", string(opts.Flow)).Logger(),
		ctx:      ctx,
		cancel:   cancel,
		timer:    dwell.New(hold),
		state:    StateIdle,
	}
	c.overlay = Overlay{Flow: c.flow, State: StateIdle, HoldMS: hold.Milliseconds(), RemainingMS: hold.Milliseconds()}
	return c
}

// Flow returns the controlled flow.
func (c *Controller) Flow() Flow { return c.flow }

// Tick evaluates one frame of landmarks. The dwell timer only sees true
// while the gate is ready, no run is in flight and the cooldown has elapsed,
// so a completed hold fires at most once per attempt.
func (c *Controller) Tick(now time.Time, sets []detector.LandmarkSet, view pose.Rect) Overlay {
	c.mu.Lock()
	if c.stopped {
		o := c.overlay
		c.mu.Unlock()
		return o
	}

	readiness := c.gate.Evaluate(sets, view)
	coolingDown := now.Before(c.cooldownUntil)
	eligible := readiness.Ready && !c.started && !coolingDown
	reading := c.timer.Observe(now, eligible)

	var events []Event
	switch {
	case c.started:
	case coolingDown:
		if c.state != StateCooldown {
			c.state = StateCooldown
			events = append(events, Event{Flow: c.flow, State: StateCooldown})
		}
	case c.state != StateIdle:
		c.state = StateIdle
		events = append(events, Event{Flow: c.flow, State: StateIdle})
	}

	fired := reading.Fired
	if fired {
		c.beginLocked()
		events = append(events, Event{Flow: c.flow, State: StateCapturing})
		c.log.Info().Dur("held", reading.Elapsed).Msg("hold complete, capturing")
	}

	o := c.overlay
	o.State = c.state
	o.Readiness = readiness
	o.RemainingMS = reading.Remaining.Milliseconds()
	o.Progress = reading.Progress()
	o.Busy = c.started
	o.CooldownMS = 0
	if coolingDown {
		o.CooldownMS = c.cooldownUntil.Sub(now).Milliseconds()
	}
	o.At = now
	c.overlay = o
	c.mu.Unlock()

	c.emit(events...)
	if fired {
		c.launch()
	}
	return o
}

// Trigger starts a run immediately, skipping the hold and the cooldown. It
// returns ErrBusy while a run is in flight.
func (c *Controller) Trigger() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return ErrStopped
	}
	if c.started {
		c.mu.Unlock()
		return ErrBusy
	}
	c.beginLocked()
	c.mu.Unlock()

	c.log.Info().Msg("manual trigger, capturing")
	c.emit(Event{Flow: c.flow, State: StateCapturing})
	c.launch()
	return nil
}

func (c *Controller) beginLocked() {
	c.started = true
	c.timer.Reset()
	c.state = StateCapturing
	c.overlay.State = StateCapturing
	c.overlay.Busy = true
	c.overlay.Error = ""
	c.wg.Add(1)
}

func (c *Controller) launch() {
	go c.run()
}

func (c *Controller) run() {
	defer c.wg.Done()

	startedAt := c.now()
	out, err := c.pipeline.Run(c.ctx, c.setState)
	finishedAt := c.now()

	res := &Result{
		ID:         uuid.New(),
		Flow:       c.flow,
		Frames:     out.Frames,
		Response:   out.Response,
		Text:       out.Text,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
	}
	if err != nil {
		res.Outcome = StateFailure
		res.Error = err.Error()
		res.Canceled = Canceled(err)
		c.log.Warn().Err(err).Dur("took", finishedAt.Sub(startedAt)).Msg("capture failed")
	} else {
		res.Outcome = StateSuccess
		c.log.Info().Str("result", out.Text).Dur("took", finishedAt.Sub(startedAt)).Msg("capture succeeded")
	}

	c.mu.Lock()
	c.cooldownUntil = finishedAt.Add(c.cooldown)
	c.started = false
	c.timer.Reset()
	c.state = res.Outcome
	c.last = res
	c.overlay.State = res.Outcome
	c.overlay.Busy = false
	c.overlay.Error = res.Error
	if err == nil {
		c.overlay.ResultText = res.Text
	}
	c.mu.Unlock()

	c.emit(Event{Flow: c.flow, State: res.Outcome, Result: res})
}

// setState records a pipeline-reported state while a run is in flight.
func (c *Controller) setState(s State) {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.overlay.State = s
	c.mu.Unlock()
	c.emit(Event{Flow: c.flow, State: s})
}

func (c *Controller) emit(events ...Event) {
	if c.onEvent == nil {
		return
	}
	for _, e := range events {
		c.onEvent(e)
	}
}

// State returns the current pipeline state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Busy reports whether a run is in flight.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

// Last returns the most recent finished attempt, or nil.
func (c *Controller) Last() *Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Overlay returns the overlay computed by the latest Tick, updated with any
// state change since.
func (c *Controller) Overlay() Overlay {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.overlay
}

// Wait blocks until no run is in flight.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Stop cancels an in-flight run, waits for it to unwind and disables the
// controller. It is safe to call more than once.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()

	c.mu.Lock()
	c.timer.Reset()
	c.mu.Unlock()
}

// Canceled reports whether err came from Stop interrupting a run.
func Canceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
