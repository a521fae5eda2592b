package scoring

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mcoot/matchsync/internal/model"
	"github.com/mcoot/matchsync/internal/storage"
)

// Service keeps the victory point and roster total ledgers in step with
// the units they are derived from.
type Service struct {
	storage storage.Storage
	logger  *slog.Logger
}

// New creates a new ScoringService
func New(storage storage.Storage, logger *slog.Logger) *Service {
	return &Service{
		storage: storage,
		logger:  logger.With(slog.String("component", "scoring")),
	}
}

// OnKOTransition moves the unit's points into the opponent's victory points
// when it is knocked out and back out when it is revived. It does nothing
// when the state did not change or the unit is not eligible to score.
// With no opponent row to credit the transfer is skipped; ReconcileSlot
// credits it when the slot is claimed.
func (s *Service) OnKOTransition(ctx context.Context, unit *model.Unit, previousKO, newKO bool) (*model.MatchPlayer, error) {
	if previousKO == newKO {
		return nil, nil
	}
	if !unit.Scores() {
		s.logger.Debug("ko transition not scored",
			slog.String("match_id", string(unit.MatchID)),
			slog.String("unit_id", string(unit.ID)),
			slog.Bool("sideline", unit.IsSideline),
			slog.Bool("attached", unit.IsAttached()))
		return nil, nil
	}

	delta := unit.Points
	if !newKO {
		delta = -delta
	}
	opponent := unit.Slot.Opponent()

	ledger, err := s.storage.AdjustVictoryPoints(ctx, unit.MatchID, opponent, delta)
	if errors.Is(err, model.ErrSlotNotFound) {
		s.logger.Debug("ko transfer deferred, opponent slot unclaimed",
			slog.String("match_id", string(unit.MatchID)),
			slog.Int("slot", int(opponent)),
			slog.Int("delta", delta))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("victory points transferred",
		slog.String("match_id", string(unit.MatchID)),
		slog.String("unit_id", string(unit.ID)),
		slog.Int("slot", int(opponent)),
		slog.Int("delta", delta),
		slog.Int("victory_points", ledger.VictoryPoints))
	return ledger, nil
}

// RefreshTotal rewrites the slot's roster total from its units. Victory
// points are left alone: attaching or detaching never revises past transfers.
func (s *Service) RefreshTotal(ctx context.Context, matchID model.MatchID, slot model.Slot) (*model.MatchPlayer, error) {
	units, err := s.storage.ListUnits(ctx, matchID)
	if err != nil {
		return nil, err
	}
	player, err := s.storage.GetPlayer(ctx, matchID, slot)
	if errors.Is(err, model.ErrSlotNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	total := model.TotalPointsFor(slot, units)
	if player.TotalPoints == total {
		return player, nil
	}
	return s.storage.SetTotalPoints(ctx, matchID, slot, total)
}

// ReconcileSlot rewrites both ledgers of one slot from the units. It returns
// nil when the slot has no row.
func (s *Service) ReconcileSlot(ctx context.Context, matchID model.MatchID, slot model.Slot) (*model.MatchPlayer, error) {
	units, err := s.storage.ListUnits(ctx, matchID)
	if err != nil {
		return nil, err
	}
	player, err := s.storage.GetPlayer(ctx, matchID, slot)
	if errors.Is(err, model.ErrSlotNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	player, _, err = s.reconcile(ctx, player, units)
	return player, err
}

// Correction records one ledger value that Recompute rewrote
type Correction struct {
	Slot  model.Slot `json:"slot"`
	Field string     `json:"field"`
	Was   int        `json:"was"`
	Now   int        `json:"now"`
}

// RepairReport is the outcome of Recompute
type RepairReport struct {
	MatchID     model.MatchID        `json:"match_id"`
	Players     []*model.MatchPlayer `json:"players"`
	Corrections []Correction         `json:"corrections"`
}

// Recompute rebuilds every present ledger of the match from its units and
// reports the drift it corrected.
func (s *Service) Recompute(ctx context.Context, matchID model.MatchID) (*RepairReport, error) {
	if _, err := s.storage.GetMatch(ctx, matchID); err != nil {
		return nil, err
	}
	units, err := s.storage.ListUnits(ctx, matchID)
	if err != nil {
		return nil, err
	}
	players, err := s.storage.ListPlayers(ctx, matchID)
	if err != nil {
		return nil, err
	}

	report := &RepairReport{MatchID: matchID, Players: []*model.MatchPlayer{}, Corrections: []Correction{}}
	for _, p := range players {
		fixed, corrections, err := s.reconcile(ctx, p, units)
		if err != nil {
			return nil, err
		}
		report.Players = append(report.Players, fixed)
		report.Corrections = append(report.Corrections, corrections...)
	}

	if len(report.Corrections) > 0 {
		s.logger.Warn("ledger drift repaired",
			slog.String("match_id", string(matchID)),
			slog.Int("corrections", len(report.Corrections)))
	}
	return report, nil
}

func (s *Service) reconcile(ctx context.Context, p *model.MatchPlayer, units []*model.Unit) (*model.MatchPlayer, []Correction, error) {
	var corrections []Correction
	var err error

	if vp := model.VictoryPointsFor(p.Slot, units); vp != p.VictoryPoints {
		corrections = append(corrections, Correction{Slot: p.Slot, Field: "victory_points", Was: p.VictoryPoints, Now: vp})
		if p, err = s.storage.SetVictoryPoints(ctx, p.MatchID, p.Slot, vp); err != nil {
			return nil, nil, err
		}
	}
	if total := model.TotalPointsFor(p.Slot, units); total != p.TotalPoints {
		corrections = append(corrections, Correction{Slot: p.Slot, Field: "total_points", Was: p.TotalPoints, Now: total})
		if p, err = s.storage.SetTotalPoints(ctx, p.MatchID, p.Slot, total); err != nil {
			return nil, nil, err
		}
	}
	return p, corrections, nil
}

// Interface for dependency injection
type ServiceInterface interface {
	OnKOTransition(ctx context.Context, unit *model.Unit, previousKO, newKO bool) (*model.MatchPlayer, error)
	RefreshTotal(ctx context.Context, matchID model.MatchID, slot model.Slot) (*model.MatchPlayer, error)
	ReconcileSlot(ctx context.Context, matchID model.MatchID, slot model.Slot) (*model.MatchPlayer, error)
	Recompute(ctx context.Context, matchID model.MatchID) (*RepairReport, error)
}

var _ ServiceInterface = (*Service)(nil)
