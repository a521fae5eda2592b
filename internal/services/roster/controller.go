package roster

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mcoot/matchsync/internal/dependencies/clock"
	"github.com/mcoot/matchsync/internal/dependencies/random"
	"github.com/mcoot/matchsync/internal/model"
	"github.com/mcoot/matchsync/internal/services/importer"
	"github.com/mcoot/matchsync/internal/services/scoring"
	"github.com/mcoot/matchsync/internal/storage"
)

// Controller owns the units of a match: adding, knocking out and reviving,
// and the one-level attachment graph between them.
type Controller struct {
	storage  storage.Storage
	scoring  scoring.ServiceInterface
	importer importer.Importer
	clock    clock.Clock
	random   random.Random
	logger   *slog.Logger
}

// NewController creates a new RosterController
func NewController(
	storage storage.Storage,
	scoring scoring.ServiceInterface,
	importer importer.Importer,
	clock clock.Clock,
	random random.Random,
	logger *slog.Logger,
) *Controller {
	return &Controller{
		storage:  storage,
		scoring:  scoring,
		importer: importer,
		clock:    clock,
		random:   random,
		logger:   logger.With(slog.String("component", "roster")),
	}
}

// KOResult is what a KO toggle changed
type KOResult struct {
	Unit     *model.Unit        `json:"unit"`
	Changed  bool               `json:"changed"`
	Detached []*model.Unit      `json:"detached"`
	Ledger   *model.MatchPlayer `json:"ledger,omitempty"`
}

// ImportResult is the outcome of importing a team into a slot
type ImportResult struct {
	TeamName string        `json:"team_name"`
	Units    []*model.Unit `json:"units"`
}

// authorize checks that caller holds the slot. Spectators and the opponent
// are refused.
func (c *Controller) authorize(ctx context.Context, matchID model.MatchID, caller model.ParticipantID, slot model.Slot) error {
	if _, err := c.storage.GetMatch(ctx, matchID); err != nil {
		return err
	}
	player, err := c.storage.GetPlayer(ctx, matchID, slot)
	if err != nil && !errors.Is(err, model.ErrSlotNotFound) {
		return err
	}
	if player.Seated() && player.ParticipantID == caller {
		return nil
	}

	spectators, err := c.storage.ListSpectators(ctx, matchID)
	if err != nil {
		return err
	}
	for _, sp := range spectators {
		if sp.ParticipantID == caller {
			return model.ErrSpectatorsRead
		}
	}
	return model.ErrNotSlotOwner
}

// AddUnit adds a unit to the caller's slot. An initial attachment is
// validated like Attach.
func (c *Controller) AddUnit(ctx context.Context, matchID model.MatchID, caller model.ParticipantID, slot model.Slot, in model.UnitInput) (*model.Unit, error) {
	if !slot.Valid() {
		return nil, model.ErrInvalidSlot
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if err := c.authorize(ctx, matchID, caller, slot); err != nil {
		return nil, err
	}

	unit := c.newUnit(matchID, slot, in)
	if unit.IsAttached() {
		units, err := c.storage.ListUnits(ctx, matchID)
		if err != nil {
			return nil, err
		}
		graph := model.BuildAttachmentGraph(append(units, unit))
		if err := graph.ValidateTarget(unit.ID, *unit.AttachedTo); err != nil {
			return nil, err
		}
	}

	saved, err := c.storage.SaveUnit(ctx, unit)
	if err != nil {
		return nil, err
	}
	if _, err := c.scoring.RefreshTotal(ctx, matchID, slot); err != nil {
		return nil, err
	}

	c.logger.Info("unit added",
		slog.String("match_id", string(matchID)),
		slog.String("unit_id", string(saved.ID)),
		slog.Int("slot", int(slot)),
		slog.Int("points", saved.Points))
	return saved, nil
}

func (c *Controller) newUnit(matchID model.MatchID, slot model.Slot, in model.UnitInput) *model.Unit {
	unit := &model.Unit{
		ID:         model.UnitID(c.random.ID()),
		MatchID:    matchID,
		Slot:       slot,
		Collection: in.Collection,
		Number:     in.Number,
		Name:       in.Name,
		Points:     in.Points,
		IsSideline: in.IsSideline,
		CreatedAt:  c.clock.Now(),
	}
	if in.AttachedTo != nil && *in.AttachedTo != "" {
		target := *in.AttachedTo
		unit.AttachedTo = &target
		unit.AttachmentKind = attachmentKind(in.AttachmentKind)
	}
	return unit
}

func attachmentKind(kind string) string {
	if kind == "" {
		return model.AttachmentOther
	}
	return kind
}

// ImportTeam fetches a team from the catalog and adds all of its units to
// the caller's slot
func (c *Controller) ImportTeam(ctx context.Context, matchID model.MatchID, caller model.ParticipantID, slot model.Slot, teamRef string) (*ImportResult, error) {
	if !slot.Valid() {
		return nil, model.ErrInvalidSlot
	}
	if err := c.authorize(ctx, matchID, caller, slot); err != nil {
		return nil, err
	}

	team, err := c.importer.ImportTeam(ctx, teamRef)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{TeamName: team.Name, Units: make([]*model.Unit, 0, len(team.Units))}
	for _, in := range team.Units {
		in.AttachedTo = nil
		in.AttachmentKind = ""
		saved, err := c.storage.SaveUnit(ctx, c.newUnit(matchID, slot, in))
		if err != nil {
			// Units saved so far stay; the total must still count them
			if _, refreshErr := c.scoring.RefreshTotal(ctx, matchID, slot); refreshErr != nil {
				c.logger.Warn("failed to refresh total after partial import",
					slog.String("match_id", string(matchID)),
					slog.Int("slot", int(slot)),
					slog.Any("error", refreshErr))
			}
			c.logger.Warn("team import stopped",
				slog.String("match_id", string(matchID)),
				slog.Int("slot", int(slot)),
				slog.Int("saved", len(result.Units)),
				slog.Any("error", err))
			return nil, err
		}
		result.Units = append(result.Units, saved)
	}
	if _, err := c.scoring.RefreshTotal(ctx, matchID, slot); err != nil {
		return nil, err
	}

	c.logger.Info("team imported",
		slog.String("match_id", string(matchID)),
		slog.Int("slot", int(slot)),
		slog.String("team", team.Name),
		slog.Int("units", len(result.Units)))
	return result, nil
}

// SetKO writes the unit's KO flag. Only a real change moves points: a KO
// credits the opponent and a revive debits them and also frees every unit
// riding on the revived one. Knocking out a carrier leaves its cargo attached.
// Freed cargo that is already knocked out becomes eligible and is credited
// then, so its own revive later debits what it was credited.
func (c *Controller) SetKO(ctx context.Context, matchID model.MatchID, caller model.ParticipantID, unitID model.UnitID, ko bool) (*KOResult, error) {
	unit, err := c.storage.GetUnit(ctx, matchID, unitID)
	if err != nil {
		return nil, err
	}
	if err := c.authorize(ctx, matchID, caller, unit.Slot); err != nil {
		return nil, err
	}

	updated, changed, err := c.storage.SetKO(ctx, matchID, unitID, ko)
	if err != nil {
		return nil, err
	}
	result := &KOResult{Unit: updated, Changed: changed, Detached: []*model.Unit{}}
	if !changed {
		return result, nil
	}

	// Eligibility is judged on the row as it stood when the flag flipped
	if result.Ledger, err = c.scoring.OnKOTransition(ctx, updated, !ko, ko); err != nil {
		return nil, err
	}

	if !ko {
		detached, err := c.storage.DetachDependents(ctx, matchID, unitID)
		if err != nil {
			return nil, err
		}
		if len(detached) > 0 {
			result.Detached = detached
			for _, d := range detached {
				if !d.IsKO {
					continue
				}
				ledger, err := c.scoring.OnKOTransition(ctx, d, false, true)
				if err != nil {
					return nil, err
				}
				if ledger != nil {
					result.Ledger = ledger
				}
			}
			if _, err := c.scoring.RefreshTotal(ctx, matchID, unit.Slot); err != nil {
				return nil, err
			}
		}
	}

	c.logger.Info("unit ko changed",
		slog.String("match_id", string(matchID)),
		slog.String("unit_id", string(unitID)),
		slog.Bool("ko", ko),
		slog.Int("detached", len(result.Detached)))
	return result, nil
}

// Attach makes unit ride on target
func (c *Controller) Attach(ctx context.Context, matchID model.MatchID, caller model.ParticipantID, unitID, targetID model.UnitID, kind string) (*model.Unit, error) {
	unit, err := c.storage.GetUnit(ctx, matchID, unitID)
	if err != nil {
		return nil, err
	}
	if err := c.authorize(ctx, matchID, caller, unit.Slot); err != nil {
		return nil, err
	}

	units, err := c.storage.ListUnits(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if err := model.BuildAttachmentGraph(units).ValidateTarget(unitID, targetID); err != nil {
		return nil, err
	}

	attached, err := c.storage.SetAttachment(ctx, matchID, unitID, &targetID, attachmentKind(kind))
	if err != nil {
		return nil, err
	}
	if _, err := c.scoring.RefreshTotal(ctx, matchID, unit.Slot); err != nil {
		return nil, err
	}
	return attached, nil
}

// Detach frees the unit from whatever it rides on. Detaching a free unit
// returns it unchanged.
func (c *Controller) Detach(ctx context.Context, matchID model.MatchID, caller model.ParticipantID, unitID model.UnitID) (*model.Unit, error) {
	unit, err := c.storage.GetUnit(ctx, matchID, unitID)
	if err != nil {
		return nil, err
	}
	if err := c.authorize(ctx, matchID, caller, unit.Slot); err != nil {
		return nil, err
	}
	if !unit.IsAttached() {
		return unit, nil
	}

	detached, err := c.storage.SetAttachment(ctx, matchID, unitID, nil, "")
	if err != nil {
		return nil, err
	}
	if _, err := c.scoring.RefreshTotal(ctx, matchID, unit.Slot); err != nil {
		return nil, err
	}
	return detached, nil
}

// ListUnits returns a slot's units in creation order
func (c *Controller) ListUnits(ctx context.Context, matchID model.MatchID, slot model.Slot) ([]*model.Unit, error) {
	if !slot.Valid() {
		return nil, model.ErrInvalidSlot
	}
	if _, err := c.storage.GetMatch(ctx, matchID); err != nil {
		return nil, err
	}
	units, err := c.storage.ListUnits(ctx, matchID)
	if err != nil {
		return nil, err
	}
	slotUnits := make([]*model.Unit, 0, len(units))
	for _, u := range units {
		if u.Slot == slot {
			slotUnits = append(slotUnits, u)
		}
	}
	return slotUnits, nil
}

// Interface for dependency injection
type ControllerInterface interface {
	AddUnit(ctx context.Context, matchID model.MatchID, caller model.ParticipantID, slot model.Slot, in model.UnitInput) (*model.Unit, error)
	ImportTeam(ctx context.Context, matchID model.MatchID, caller model.ParticipantID, slot model.Slot, teamRef string) (*ImportResult, error)
	SetKO(ctx context.Context, matchID model.MatchID, caller model.ParticipantID, unitID model.UnitID, ko bool) (*KOResult, error)
	Attach(ctx context.Context, matchID model.MatchID, caller model.ParticipantID, unitID, targetID model.UnitID, kind string) (*model.Unit, error)
	Detach(ctx context.Context, matchID model.MatchID, caller model.ParticipantID, unitID model.UnitID) (*model.Unit, error)
	ListUnits(ctx context.Context, matchID model.MatchID, slot model.Slot) ([]*model.Unit, error)
}

var _ ControllerInterface = (*Controller)(nil)
