package app

import (
	"time"

	"github.com/ayusman/fastcheck/internal/screening"
	"github.com/ayusman/fastcheck/internal/store"
)

// handleEvent runs on the controller's goroutines. It must not call Stop or
// Start directly: Stop waits for the run that is emitting the event.
func (a *App) handleEvent(e screening.Event) {
	a.log.Debug().Str("flow", string(e.Flow)).Str("state", string(e.State)).Msg("state changed")

	res := e.Result
	if res == nil {
		return
	}

	a.mu.Lock()
	a.last = res
	stopCh := a.stopCh
	a.mu.Unlock()

	if res.Canceled {
		a.log.Info().Str("flow", string(res.Flow)).Msg("attempt canceled, not recorded")
		return
	}

	a.record(res)

	a.sinkMu.RLock()
	sinks := a.results
	a.sinkMu.RUnlock()
	for _, fn := range sinks {
		fn(res)
	}

	if res.Flow == screening.FlowFace && res.Outcome == screening.StateSuccess && a.config.Screening.AutoAdvance {
		go a.advance(stopCh, a.config.Screening.Cooldown)
	}
}

// advance switches from the face flow to the arm flow once the result has
// been on screen for delay, unless the flow was stopped or changed meanwhile.
func (a *App) advance(stopCh chan struct{}, delay time.Duration) {
	if stopCh == nil {
		return
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-stopCh:
		return
	case <-t.C:
	}

	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()

	a.mu.RLock()
	current := a.stopCh
	a.mu.RUnlock()
	if current != stopCh {
		return
	}

	a.log.Info().Msg("face screening passed, advancing to arm screening")
	a.stop()
	if err := a.start(screening.FlowArm); err != nil {
		a.log.Error().Err(err).Msg("failed to start arm screening")
	}
}

// record stores a finished attempt with its stills and trims old history.
func (a *App) record(res *screening.Result) {
	if a.deps.Store == nil {
		return
	}

	attempt := &store.Attempt{
		ID:         res.ID.String(),
		Flow:       string(res.Flow),
		Outcome:    string(res.Outcome),
		ResultText: res.Text,
		Response:   res.Response,
		Error:      res.Error,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
	}
	frames := make([]store.Frame, 0, len(res.Frames))
	for _, s := range res.Frames {
		frames = append(frames, store.Frame{
			Filename:    s.Filename,
			ContentType: s.ContentType,
			Width:       s.Width,
			Height:      s.Height,
			Data:        s.Data,
		})
	}

	repo := a.deps.Store.Attempts()
	if err := repo.Create(attempt, frames); err != nil {
		a.log.Error().Err(err).Str("attempt", attempt.ID).Msg("failed to record attempt")
		return
	}

	if keep := a.config.HistoryKeep; keep > 0 {
		if n, err := repo.Prune(keep); err != nil {
			a.log.Warn().Err(err).Msg("failed to prune history")
		} else if n > 0 {
			a.log.Debug().Int64("removed", n).Msg("pruned history")
		}
	}
}
