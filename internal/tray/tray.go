// Package tray provides the system tray menu of fastcheck.
package tray

import (
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/fastcheck/internal/screening"
)

// Action is a tray menu command.
type Action int

const (
	ActionStartFace Action = iota
	ActionStartArm
	ActionStop
	ActionTrigger
	ActionOpen
	ActionQuit
)

// Tray represents the system tray application.
type Tray struct {
	mu       sync.RWMutex
	onStart  func(flow screening.Flow)
	onStop   func()
	onTrig   func()
	onOpen   func()
	onQuit   func()
	status   string
	lastText string

	// Menu items stored for later updates
	menuStatus *systray.MenuItem
	menuLast   *systray.MenuItem
}

// New creates a new Tray instance.
func New() *Tray {
	return &Tray{status: "Idle", lastText: LastTitle(nil)}
}

// OnStart sets the callback for the start menu items.
func (t *Tray) OnStart(fn func(flow screening.Flow)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onStart = fn
}

// OnStop sets the callback for the stop menu item.
func (t *Tray) OnStop(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onStop = fn
}

// OnTrigger sets the callback for the manual trigger menu item.
func (t *Tray) OnTrigger(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onTrig = fn
}

// OnOpen sets the callback for the status page menu item.
func (t *Tray) OnOpen(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onOpen = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until Quit is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, func() {})
}

// Quit removes the tray icon and makes Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("F.A.S.T.")
	systray.SetTooltip("fastcheck stroke screening")

	t.mu.Lock()
	t.menuStatus = systray.AddMenuItem(t.status, "Current screening")
	t.menuStatus.Disable()
	t.menuLast = systray.AddMenuItem(t.lastText, "Last screening result")
	t.menuLast.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuFace := systray.AddMenuItem("Start face screening", "Hold a level, frontal pose")
	menuArm := systray.AddMenuItem("Start arm screening", "Raise both hands into the guides")
	menuStop := systray.AddMenuItem("Stop", "Stop the running screening")
	menuTrigger := systray.AddMenuItem("Trigger now", "Capture without waiting for the pose")
	systray.AddSeparator()

	menuOpen := systray.AddMenuItem("Open status page...", "Open the status page in a browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit fastcheck")

	go func() {
		for {
			select {
			case <-menuFace.ClickedCh:
				t.Handle(ActionStartFace)
			case <-menuArm.ClickedCh:
				t.Handle(ActionStartArm)
			case <-menuStop.ClickedCh:
				t.Handle(ActionStop)
			case <-menuTrigger.ClickedCh:
				t.Handle(ActionTrigger)
			case <-menuOpen.ClickedCh:
				t.Handle(ActionOpen)
			case <-menuQuit.ClickedCh:
				t.Handle(ActionQuit)
				systray.Quit()
				return
			}
		}
	}()
}

// Handle dispatches a menu action to its callback. Callbacks run outside
// the lock.
func (t *Tray) Handle(a Action) {
	t.mu.RLock()
	onStart, onStop, onTrig, onOpen, onQuit := t.onStart, t.onStop, t.onTrig, t.onOpen, t.onQuit
	t.mu.RUnlock()

	switch a {
	case ActionStartFace:
		if onStart != nil {
			onStart(screening.FlowFace)
		}
	case ActionStartArm:
		if onStart != nil {
			onStart(screening.FlowArm)
		}
	case ActionStop:
		if onStop != nil {
			onStop()
		}
	case ActionTrigger:
		if onTrig != nil {
			onTrig()
		}
	case ActionOpen:
		if onOpen != nil {
			onOpen()
		}
	case ActionQuit:
		if onQuit != nil {
			onQuit()
		}
	}
}

// SetStatus updates the status line, e.g. "Face: capturing".
func (t *Tray) SetStatus(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = s
	if t.menuStatus != nil {
		t.menuStatus.SetTitle(s)
	}
}

// SetLastResult updates the last result display in the menu.
func (t *Tray) SetLastResult(res *screening.Result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastText = LastTitle(res)
	if t.menuLast != nil {
		t.menuLast.SetTitle(t.lastText)
	}
}

// Status returns the current status line.
func (t *Tray) Status() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// LastText returns the current last result line.
func (t *Tray) LastText() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastText
}

// LastTitle formats a result for the menu.
func LastTitle(res *screening.Result) string {
	if res == nil {
		return "Last: none"
	}
	title := "Last: " + string(res.Flow) + " " + string(res.Outcome)
	switch {
	case res.Outcome == screening.StateSuccess && res.Text != "":
		title += " (" + res.Text + ")"
	case res.Outcome == screening.StateFailure && res.Error != "":
		title += " (" + res.Error + ")"
	}
	return title
}
