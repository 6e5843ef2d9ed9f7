// Package dwell implements a hold-to-confirm timer: a condition must stay
// true for an uninterrupted period before it fires.
package dwell

import "time"

// Reading is the timer state after one observation.
type Reading struct {
	Elapsed   time.Duration `json:"elapsed"`
	Remaining time.Duration `json:"remaining"`
	// Fired is set on exactly the observation that completed the hold.
	Fired bool `json:"fired"`
}

// Progress returns the completed fraction in [0, 1].
func (r Reading) Progress() float64 {
	total := r.Elapsed + r.Remaining
	if total <= 0 {
		return 0
	}
	return float64(r.Elapsed) / float64(total)
}

// Timer measures how long a condition has held. It is not safe for
// concurrent use.
type Timer struct {
	threshold time.Duration
	start     time.Time
	running   bool
}

// New creates a timer that fires after threshold of continuous truth.
func New(threshold time.Duration) *Timer {
	return &Timer{threshold: threshold}
}

// Threshold returns the configured hold duration.
func (t *Timer) Threshold() time.Duration { return t.threshold }

// Observe records one sample. A false sample resets the hold. Once the
// condition has held for the threshold the timer fires and resets, so the
// next fire needs a fresh full hold.
func (t *Timer) Observe(now time.Time, ok bool) Reading {
	if !ok {
		t.Reset()
		return Reading{Remaining: t.threshold}
	}
	if !t.running {
		t.start = now
		t.running = true
	}

	elapsed := now.Sub(t.start)
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed >= t.threshold {
		t.Reset()
		return Reading{Elapsed: t.threshold, Fired: true}
	}
	return Reading{Elapsed: elapsed, Remaining: t.threshold - elapsed}
}

// Reset abandons the current hold.
func (t *Timer) Reset() {
	t.running = false
	t.start = time.Time{}
}

// Running reports whether a hold is in progress.
func (t *Timer) Running() bool { return t.running }
