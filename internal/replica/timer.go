package replica

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mcoot/matchsync/internal/model"
)

// Pauser pauses the authoritative match timer
type Pauser interface {
	PauseTimer(ctx context.Context, matchID model.MatchID) (*model.Match, error)
}

// Tick is the outcome of one display tick
type Tick struct {
	RemainingSeconds int
	State            model.TimerState
	// Expired is set on the one tick that first sees the running checkpoint run out
	Expired bool
}

// TimerWatch re-evaluates the replica's timer once per tick. When a running
// timer runs out it pauses the match once per checkpoint.
type TimerWatch struct {
	replica *Replica
	pauser  Pauser
	logger  *slog.Logger

	announced *time.Time
	paused    *time.Time
}

// NewTimerWatch creates a watch over r's timer
func NewTimerWatch(r *Replica, pauser Pauser, logger *slog.Logger) *TimerWatch {
	return &TimerWatch{
		replica: r,
		pauser:  pauser,
		logger:  logger.With(slog.String("component", "timer_watch"), slog.String("match_id", string(r.MatchID()))),
	}
}

// Tick evaluates the timer at now. A pause that failed is retried on the
// next tick without announcing expiry again. A peer that paused first makes
// our pause a no-op, which is not an error.
func (w *TimerWatch) Tick(ctx context.Context, now time.Time) (Tick, error) {
	timer, ok := w.replica.Timer()
	if !ok {
		return Tick{}, nil
	}
	tick := Tick{RemainingSeconds: timer.Effective(now), State: timer.State}
	if timer.State != model.TimerRunning || timer.CheckpointAt == nil || tick.RemainingSeconds > 0 {
		return tick, nil
	}

	checkpoint := *timer.CheckpointAt
	if !sameInstant(w.announced, checkpoint) {
		w.announced = &checkpoint
		tick.Expired = true
		w.logger.Info("match time expired")
	}
	if sameInstant(w.paused, checkpoint) {
		return tick, nil
	}

	m, err := w.pauser.PauseTimer(ctx, w.replica.MatchID())
	switch {
	case err == nil:
		w.replica.ApplyMatch(m)
	case errors.Is(err, model.ErrTimerNotRunning):
		w.logger.Debug("timer already stopped by a peer")
	default:
		return tick, err
	}
	w.paused = &checkpoint
	return tick, nil
}

func sameInstant(held *time.Time, t time.Time) bool {
	return held != nil && held.Equal(t)
}
