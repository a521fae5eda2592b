package timer

import (
	"context"
	"log/slog"
	"time"

	"github.com/mcoot/matchsync/internal/dependencies/clock"
	"github.com/mcoot/matchsync/internal/model"
	"github.com/mcoot/matchsync/internal/storage"
)

// Controller drives the match clock. The stored checkpoint is the only
// authority; every reader derives remaining time from it.
type Controller struct {
	storage storage.Storage
	clock   clock.Clock
	logger  *slog.Logger
}

// NewController creates a new TimerController
func NewController(storage storage.Storage, clock clock.Clock, logger *slog.Logger) *Controller {
	return &Controller{
		storage: storage,
		clock:   clock,
		logger:  logger.With(slog.String("component", "timer")),
	}
}

// Status is the clock as observed at a point in time
type Status struct {
	Timer            model.Timer `json:"timer"`
	EffectiveSeconds int         `json:"effective_seconds"`
	ObservedAt       time.Time   `json:"observed_at"`
}

// load fetches the match and checks that caller is the host or holds a slot
func (c *Controller) load(ctx context.Context, matchID model.MatchID, caller model.ParticipantID) (*model.Match, error) {
	match, err := c.storage.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if match.HostID == caller {
		return match, nil
	}

	players, err := c.storage.ListPlayers(ctx, matchID)
	if err != nil {
		return nil, err
	}
	for _, p := range players {
		if p.Seated() && p.ParticipantID == caller {
			return match, nil
		}
	}

	spectators, err := c.storage.ListSpectators(ctx, matchID)
	if err != nil {
		return nil, err
	}
	for _, sp := range spectators {
		if sp.ParticipantID == caller {
			return nil, model.ErrSpectatorsRead
		}
	}
	return nil, model.ErrNotParticipant
}

// Start runs the clock from its effective remaining time
func (c *Controller) Start(ctx context.Context, matchID model.MatchID, caller model.ParticipantID) (*model.Match, error) {
	match, err := c.load(ctx, matchID, caller)
	if err != nil {
		return nil, err
	}
	now := c.clock.Now()
	if match.Timer.State == model.TimerRunning {
		return nil, model.ErrTimerRunning
	}
	remaining := match.Timer.Effective(now)
	if remaining == 0 {
		return nil, model.ErrTimerExhausted
	}

	updated, err := c.storage.UpdateMatchTimer(ctx, matchID, model.Timer{
		State:           model.TimerRunning,
		RemainingSecs:   remaining,
		CheckpointAt:    &now,
		DurationSeconds: match.Timer.DurationSeconds,
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("timer started",
		slog.String("match_id", string(matchID)),
		slog.String("participant_id", string(caller)),
		slog.Int("remaining_seconds", remaining))
	return updated, nil
}

// Pause freezes the clock at its effective remaining time. Pausing a paused
// clock returns it unchanged so racing expiry observers all succeed.
func (c *Controller) Pause(ctx context.Context, matchID model.MatchID, caller model.ParticipantID) (*model.Match, error) {
	match, err := c.load(ctx, matchID, caller)
	if err != nil {
		return nil, err
	}
	switch match.Timer.State {
	case model.TimerPaused:
		return match, nil
	case model.TimerStopped:
		return nil, model.ErrTimerNotRunning
	}

	remaining := match.Timer.Effective(c.clock.Now())
	updated, err := c.storage.UpdateMatchTimer(ctx, matchID, model.Timer{
		State:           model.TimerPaused,
		RemainingSecs:   remaining,
		DurationSeconds: match.Timer.DurationSeconds,
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("timer paused",
		slog.String("match_id", string(matchID)),
		slog.String("participant_id", string(caller)),
		slog.Int("remaining_seconds", remaining))
	return updated, nil
}

// Reset stops the clock at its full duration from any state
func (c *Controller) Reset(ctx context.Context, matchID model.MatchID, caller model.ParticipantID) (*model.Match, error) {
	match, err := c.load(ctx, matchID, caller)
	if err != nil {
		return nil, err
	}
	updated, err := c.storage.UpdateMatchTimer(ctx, matchID, model.NewTimer(match.Timer.DurationSeconds))
	if err != nil {
		return nil, err
	}
	c.logger.Info("timer reset",
		slog.String("match_id", string(matchID)),
		slog.String("participant_id", string(caller)))
	return updated, nil
}

// Get reports the clock as of now. Anyone may read it.
func (c *Controller) Get(ctx context.Context, matchID model.MatchID) (*Status, error) {
	match, err := c.storage.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	now := c.clock.Now()
	return &Status{
		Timer:            match.Timer,
		EffectiveSeconds: match.Timer.Effective(now),
		ObservedAt:       now,
	}, nil
}

// Interface for dependency injection
type ControllerInterface interface {
	Start(ctx context.Context, matchID model.MatchID, caller model.ParticipantID) (*model.Match, error)
	Pause(ctx context.Context, matchID model.MatchID, caller model.ParticipantID) (*model.Match, error)
	Reset(ctx context.Context, matchID model.MatchID, caller model.ParticipantID) (*model.Match, error)
	Get(ctx context.Context, matchID model.MatchID) (*Status, error)
}

var _ ControllerInterface = (*Controller)(nil)
