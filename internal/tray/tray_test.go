package tray

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ayusman/fastcheck/internal/screening"
)

func TestHandle(t *testing.T) {
	tr := New()

	var started []screening.Flow
	var stops, triggers, opens, quits int
	tr.OnStart(func(flow screening.Flow) { started = append(started, flow) })
	tr.OnStop(func() { stops++ })
	tr.OnTrigger(func() { triggers++ })
	tr.OnOpen(func() { opens++ })
	tr.OnQuit(func() { quits++ })

	tr.Handle(ActionStartFace)
	tr.Handle(ActionStartArm)
	tr.Handle(ActionTrigger)
	tr.Handle(ActionStop)
	tr.Handle(ActionOpen)
	tr.Handle(ActionQuit)

	assert.Equal(t, []screening.Flow{screening.FlowFace, screening.FlowArm}, started)
	assert.Equal(t, 1, stops)
	assert.Equal(t, 1, triggers)
	assert.Equal(t, 1, opens)
	assert.Equal(t, 1, quits)
}

func TestHandle_NoCallbacks(t *testing.T) {
	tr := New()
	assert.NotPanics(t, func() {
		for a := ActionStartFace; a <= ActionQuit; a++ {
			tr.Handle(a)
		}
	})
}

func TestStatusBeforeMenu(t *testing.T) {
	tr := New()
	assert.Equal(t, "Idle", tr.Status())
	assert.Equal(t, "Last: none", tr.LastText())

	tr.SetStatus("Arm: cooldown")
	tr.SetLastResult(&screening.Result{Flow: screening.FlowArm, Outcome: screening.StateFailure, Error: "timeout"})

	assert.Equal(t, "Arm: cooldown", tr.Status())
	assert.Equal(t, "Last: arm failure (timeout)", tr.LastText())
}

func TestLastTitle(t *testing.T) {
	tests := []struct {
		name string
		res  *screening.Result
		want string
	}{
		{"none", nil, "Last: none"},
		{"face success", &screening.Result{Flow: screening.FlowFace, Outcome: screening.StateSuccess, Text: "normal"}, "Last: face success (normal)"},
		{"success without text", &screening.Result{Flow: screening.FlowArm, Outcome: screening.StateSuccess}, "Last: arm success"},
		{"failure", &screening.Result{Flow: screening.FlowFace, Outcome: screening.StateFailure, Error: "face not detected"}, "Last: face failure (face not detected)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LastTitle(tt.res))
		})
	}
}
