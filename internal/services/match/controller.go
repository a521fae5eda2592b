package match

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/matchsync/internal/dependencies/clock"
	"github.com/mcoot/matchsync/internal/dependencies/random"
	"github.com/mcoot/matchsync/internal/model"
	"github.com/mcoot/matchsync/internal/services/scoring"
	"github.com/mcoot/matchsync/internal/storage"
)

// VacatePolicy decides what happens to a slot's row when its participant leaves
type VacatePolicy string

const (
	// VacateFreeze keeps the row, score and roster, with no participant bound
	VacateFreeze VacatePolicy = "freeze"
	// VacateClear removes the row and the slot's units
	VacateClear VacatePolicy = "clear"
)

// ParseVacatePolicy accepts "freeze" or "clear"; empty means freeze
func ParseVacatePolicy(s string) (VacatePolicy, error) {
	switch VacatePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", VacateFreeze:
		return VacateFreeze, nil
	case VacateClear:
		return VacateClear, nil
	}
	return "", fmt.Errorf("unknown vacate policy %q", s)
}

// Config holds configuration for the match controller
type Config struct {
	TimerSeconds int          `env:"TIMER_SECONDS" envDefault:"3000"`
	VacatePolicy VacatePolicy `env:"VACATE_POLICY" envDefault:"freeze"`
}

// DefaultConfig returns default match configuration
func DefaultConfig() Config {
	return Config{
		TimerSeconds: model.DefaultTimerSeconds,
		VacatePolicy: VacateFreeze,
	}
}

// CreateRequest describes a new match
type CreateRequest struct {
	Name   string `json:"name"`
	Public bool   `json:"public"`
	Secret string `json:"secret,omitempty"`
}

// Controller manages the match lifecycle and who takes part in it
type Controller struct {
	storage storage.Storage
	scoring scoring.ServiceInterface
	clock   clock.Clock
	random  random.Random
	logger  *slog.Logger
	cfg     Config
}

// NewController creates a new MatchController
func NewController(
	storage storage.Storage,
	scoring scoring.ServiceInterface,
	clock clock.Clock,
	random random.Random,
	logger *slog.Logger,
	cfg Config,
) *Controller {
	defaults := DefaultConfig()
	if cfg.TimerSeconds <= 0 {
		cfg.TimerSeconds = defaults.TimerSeconds
	}
	if cfg.VacatePolicy == "" {
		cfg.VacatePolicy = defaults.VacatePolicy
	}
	return &Controller{
		storage: storage,
		scoring: scoring,
		clock:   clock,
		random:  random,
		logger:  logger.With(slog.String("component", "match")),
		cfg:     cfg,
	}
}

// CreateMatch creates a waiting match hosted by host. Private matches need a
// secret, which is stored only as a bcrypt hash.
func (c *Controller) CreateMatch(ctx context.Context, host model.ParticipantID, req CreateRequest) (*model.Match, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, model.ErrInvalidMatchName
	}
	if _, err := c.storage.GetParticipant(ctx, host); err != nil {
		return nil, err
	}

	var secretHash string
	if !req.Public {
		if req.Secret == "" {
			return nil, model.ErrSecretRequired
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Secret), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		secretHash = string(hash)
	}

	now := c.clock.Now()
	match := &model.Match{
		ID:         model.MatchID(c.random.ID()),
		Name:       name,
		HostID:     host,
		IsPublic:   req.Public,
		SecretHash: secretHash,
		Status:     model.MatchStatusWaiting,
		Timer:      model.NewTimer(c.cfg.TimerSeconds),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := c.storage.CreateMatch(ctx, match); err != nil {
		return nil, err
	}

	c.logger.Info("match created",
		slog.String("match_id", string(match.ID)),
		slog.String("host_id", string(host)),
		slog.Bool("public", match.IsPublic))
	return match, nil
}

// GetMatch retrieves a match by id
func (c *Controller) GetMatch(ctx context.Context, id model.MatchID) (*model.Match, error) {
	return c.storage.GetMatch(ctx, id)
}

// Snapshot reads the match and every row it owns
func (c *Controller) Snapshot(ctx context.Context, id model.MatchID) (*model.Snapshot, error) {
	match, err := c.storage.GetMatch(ctx, id)
	if err != nil {
		return nil, err
	}
	players, err := c.storage.ListPlayers(ctx, id)
	if err != nil {
		return nil, err
	}
	units, err := c.storage.ListUnits(ctx, id)
	if err != nil {
		return nil, err
	}
	spectators, err := c.storage.ListSpectators(ctx, id)
	if err != nil {
		return nil, err
	}
	return &model.Snapshot{Match: match, Players: players, Units: units, Spectators: spectators}, nil
}

// DeleteMatch destroys the match and everything it owns. Host only.
func (c *Controller) DeleteMatch(ctx context.Context, id model.MatchID, caller model.ParticipantID) error {
	if _, err := c.hostOnly(ctx, id, caller); err != nil {
		return err
	}
	if err := c.storage.DeleteMatch(ctx, id); err != nil {
		return err
	}
	c.logger.Info("match deleted", slog.String("match_id", string(id)))
	return nil
}

// SetStatus records a status chosen by the host. Other operations do not
// consult it.
func (c *Controller) SetStatus(ctx context.Context, id model.MatchID, caller model.ParticipantID, status model.MatchStatus) (*model.Match, error) {
	if !status.Valid() {
		return nil, model.ErrInvalidStatus
	}
	if _, err := c.hostOnly(ctx, id, caller); err != nil {
		return nil, err
	}
	return c.storage.UpdateMatchStatus(ctx, id, status)
}

// Repair rebuilds both ledgers from the units. Host only.
func (c *Controller) Repair(ctx context.Context, id model.MatchID, caller model.ParticipantID) (*scoring.RepairReport, error) {
	if _, err := c.hostOnly(ctx, id, caller); err != nil {
		return nil, err
	}
	return c.scoring.Recompute(ctx, id)
}

func (c *Controller) hostOnly(ctx context.Context, id model.MatchID, caller model.ParticipantID) (*model.Match, error) {
	match, err := c.storage.GetMatch(ctx, id)
	if err != nil {
		return nil, err
	}
	if match.HostID != caller {
		return nil, model.ErrNotHost
	}
	return match, nil
}

// ClaimSlot seats caller in an empty slot. The claimant's ledger is rebuilt
// from the units so KOs scored while the slot was empty are credited.
func (c *Controller) ClaimSlot(ctx context.Context, id model.MatchID, slot model.Slot, caller model.ParticipantID, displayName, secret string) (*model.MatchPlayer, error) {
	if !slot.Valid() {
		return nil, model.ErrInvalidSlot
	}
	match, err := c.storage.GetMatch(ctx, id)
	if err != nil {
		return nil, err
	}
	if !match.IsPublic && match.HostID != caller {
		if err := bcrypt.CompareHashAndPassword([]byte(match.SecretHash), []byte(secret)); err != nil {
			return nil, model.ErrInvalidSecret
		}
	}

	name := strings.TrimSpace(displayName)
	if name == "" {
		participant, err := c.storage.GetParticipant(ctx, caller)
		if err != nil {
			return nil, err
		}
		name = participant.DisplayName
	}

	player, changed, err := c.storage.ClaimSlot(ctx, id, slot, caller, name)
	if err != nil {
		return nil, err
	}
	if !changed {
		return player, nil
	}

	if err := c.storage.RemoveSpectator(ctx, id, caller); err != nil && !errors.Is(err, model.ErrSpectatorNotFound) {
		return nil, err
	}
	if reconciled, err := c.scoring.ReconcileSlot(ctx, id, slot); err != nil {
		return nil, err
	} else if reconciled != nil {
		player = reconciled
	}
	if err := c.activateIfFull(ctx, match); err != nil {
		return nil, err
	}

	c.logger.Info("slot claimed",
		slog.String("match_id", string(id)),
		slog.Int("slot", int(slot)),
		slog.String("participant_id", string(caller)),
		slog.Int("victory_points", player.VictoryPoints))
	return player, nil
}

func (c *Controller) activateIfFull(ctx context.Context, match *model.Match) error {
	if match.Status != model.MatchStatusWaiting {
		return nil
	}
	players, err := c.storage.ListPlayers(ctx, match.ID)
	if err != nil {
		return err
	}
	seated := 0
	for _, p := range players {
		if p.Seated() {
			seated++
		}
	}
	if seated < len(model.Slots) {
		return nil
	}
	_, err = c.storage.UpdateMatchStatus(ctx, match.ID, model.MatchStatusActive)
	return err
}

// LeaveSlot unbinds caller from their slot according to the vacate policy
func (c *Controller) LeaveSlot(ctx context.Context, id model.MatchID, caller model.ParticipantID) error {
	player, err := c.seatOf(ctx, id, caller)
	if err != nil {
		return err
	}

	switch c.cfg.VacatePolicy {
	case VacateClear:
		if _, err := c.storage.DeleteUnitsForSlot(ctx, id, player.Slot); err != nil {
			return err
		}
		if err := c.storage.DeletePlayer(ctx, id, player.Slot); err != nil {
			return err
		}
		if _, err := c.scoring.ReconcileSlot(ctx, id, player.Slot.Opponent()); err != nil {
			return err
		}
	default:
		vacated := *player
		vacated.ParticipantID = ""
		if _, err := c.storage.SavePlayer(ctx, &vacated); err != nil {
			return err
		}
		// The row was written from a read; a transfer that landed in between is restored here
		if _, err := c.scoring.ReconcileSlot(ctx, id, player.Slot); err != nil {
			return err
		}
	}

	c.logger.Info("slot vacated",
		slog.String("match_id", string(id)),
		slog.Int("slot", int(player.Slot)),
		slog.String("participant_id", string(caller)),
		slog.String("policy", string(c.cfg.VacatePolicy)))
	return nil
}

func (c *Controller) seatOf(ctx context.Context, id model.MatchID, caller model.ParticipantID) (*model.MatchPlayer, error) {
	if _, err := c.storage.GetMatch(ctx, id); err != nil {
		return nil, err
	}
	players, err := c.storage.ListPlayers(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, p := range players {
		if p.Seated() && p.ParticipantID == caller {
			return p, nil
		}
	}
	return nil, model.ErrNotSeated
}

// Spectate adds caller to the match's spectators. Players cannot spectate
// their own match; spectating twice is harmless.
func (c *Controller) Spectate(ctx context.Context, id model.MatchID, caller model.ParticipantID) (*model.Spectator, error) {
	if _, err := c.seatOf(ctx, id, caller); err == nil {
		return nil, model.ErrAlreadySeated
	} else if !errors.Is(err, model.ErrNotSeated) {
		return nil, err
	}

	spectator := &model.Spectator{MatchID: id, ParticipantID: caller, CreatedAt: c.clock.Now()}
	if _, err := c.storage.AddSpectator(ctx, spectator); err != nil {
		return nil, err
	}
	return spectator, nil
}

// LeaveSpectating removes caller from the spectators
func (c *Controller) LeaveSpectating(ctx context.Context, id model.MatchID, caller model.ParticipantID) error {
	if _, err := c.storage.GetMatch(ctx, id); err != nil {
		return err
	}
	return c.storage.RemoveSpectator(ctx, id, caller)
}

// Role reports how caller relates to the match
func (c *Controller) Role(ctx context.Context, id model.MatchID, caller model.ParticipantID) (model.Role, model.Slot, error) {
	snapshot, err := c.Snapshot(ctx, id)
	if err != nil {
		return model.RoleNone, 0, err
	}
	role, slot := snapshot.RoleOf(caller)
	return role, slot, nil
}

// Interface for dependency injection
type ControllerInterface interface {
	CreateMatch(ctx context.Context, host model.ParticipantID, req CreateRequest) (*model.Match, error)
	GetMatch(ctx context.Context, id model.MatchID) (*model.Match, error)
	Snapshot(ctx context.Context, id model.MatchID) (*model.Snapshot, error)
	DeleteMatch(ctx context.Context, id model.MatchID, caller model.ParticipantID) error
	SetStatus(ctx context.Context, id model.MatchID, caller model.ParticipantID, status model.MatchStatus) (*model.Match, error)
	Repair(ctx context.Context, id model.MatchID, caller model.ParticipantID) (*scoring.RepairReport, error)
	ClaimSlot(ctx context.Context, id model.MatchID, slot model.Slot, caller model.ParticipantID, displayName, secret string) (*model.MatchPlayer, error)
	LeaveSlot(ctx context.Context, id model.MatchID, caller model.ParticipantID) error
	Spectate(ctx context.Context, id model.MatchID, caller model.ParticipantID) (*model.Spectator, error)
	LeaveSpectating(ctx context.Context, id model.MatchID, caller model.ParticipantID) error
	Role(ctx context.Context, id model.MatchID, caller model.ParticipantID) (model.Role, model.Slot, error)
}

var _ ControllerInterface = (*Controller)(nil)
