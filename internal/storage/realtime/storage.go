package realtime

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mcoot/matchsync/internal/dependencies/clock"
	"github.com/mcoot/matchsync/internal/model"
	"github.com/mcoot/matchsync/internal/storage"
)

// Publisher fans change events out to subscribers of a match
type Publisher interface {
	Publish(ctx context.Context, event model.ChangeEvent) error
}

// Storage wraps a backend and publishes a change event for every committed
// write. Reads pass straight through to the backend.
type Storage struct {
	storage.Storage
	publisher Publisher
	clock     clock.Clock
	logger    *slog.Logger
}

// New wraps inner so that its writes are broadcast through publisher
func New(inner storage.Storage, publisher Publisher, clk clock.Clock, logger *slog.Logger) *Storage {
	return &Storage{
		Storage:   inner,
		publisher: publisher,
		clock:     clk,
		logger:    logger.With(slog.String("component", "realtime")),
	}
}

var _ storage.Storage = (*Storage)(nil)

// Unwrap returns the backend being decorated
func (s *Storage) Unwrap() storage.Storage {
	return s.Storage
}

// publish never fails the write it reports on: the row is already committed
// and subscribers recover from a missed event on their next snapshot.
func (s *Storage) publish(ctx context.Context, matchID model.MatchID, entity model.Entity, op model.Operation, row any) {
	event, err := model.NewChangeEvent(matchID, entity, op, row, s.clock.Now())
	if err != nil {
		s.logger.Error("failed to encode change event",
			slog.String("match_id", string(matchID)),
			slog.String("entity", string(entity)),
			slog.Any("error", err))
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish change event",
			slog.String("match_id", string(matchID)),
			slog.String("entity", string(entity)),
			slog.String("operation", string(op)),
			slog.Any("error", err))
	}
}

func versionOp(version int64) model.Operation {
	if version <= 1 {
		return model.OpInsert
	}
	return model.OpUpdate
}

// Match operations

func (s *Storage) CreateMatch(ctx context.Context, m *model.Match) error {
	if err := s.Storage.CreateMatch(ctx, m); err != nil {
		return err
	}
	s.publish(ctx, m.ID, model.EntityMatch, model.OpInsert, m)
	return nil
}

func (s *Storage) UpdateMatchTimer(ctx context.Context, id model.MatchID, timer model.Timer) (*model.Match, error) {
	m, err := s.Storage.UpdateMatchTimer(ctx, id, timer)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, id, model.EntityMatch, model.OpUpdate, m)
	return m, nil
}

func (s *Storage) UpdateMatchStatus(ctx context.Context, id model.MatchID, status model.MatchStatus) (*model.Match, error) {
	m, err := s.Storage.UpdateMatchStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, id, model.EntityMatch, model.OpUpdate, m)
	return m, nil
}

func (s *Storage) DeleteMatch(ctx context.Context, id model.MatchID) error {
	m, err := s.Storage.GetMatch(ctx, id)
	if err != nil {
		return err
	}
	if err := s.Storage.DeleteMatch(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, id, model.EntityMatch, model.OpDelete, m)
	return nil
}

// Player operations

func (s *Storage) SavePlayer(ctx context.Context, p *model.MatchPlayer) (*model.MatchPlayer, error) {
	saved, err := s.Storage.SavePlayer(ctx, p)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, saved.MatchID, model.EntityPlayer, versionOp(saved.Version), saved)
	return saved, nil
}

func (s *Storage) ClaimSlot(ctx context.Context, matchID model.MatchID, slot model.Slot, participantID model.ParticipantID, name string) (*model.MatchPlayer, bool, error) {
	p, changed, err := s.Storage.ClaimSlot(ctx, matchID, slot, participantID, name)
	if err != nil {
		return nil, false, err
	}
	if changed {
		s.publish(ctx, matchID, model.EntityPlayer, versionOp(p.Version), p)
	}
	return p, changed, nil
}

func (s *Storage) DeletePlayer(ctx context.Context, matchID model.MatchID, slot model.Slot) error {
	existing, err := s.Storage.GetPlayer(ctx, matchID, slot)
	if err != nil {
		if errors.Is(err, model.ErrSlotNotFound) {
			return nil
		}
		return err
	}
	if err := s.Storage.DeletePlayer(ctx, matchID, slot); err != nil {
		return err
	}
	s.publish(ctx, matchID, model.EntityPlayer, model.OpDelete, existing)
	return nil
}

func (s *Storage) AdjustVictoryPoints(ctx context.Context, matchID model.MatchID, slot model.Slot, delta int) (*model.MatchPlayer, error) {
	return s.playerUpdated(ctx, matchID)(s.Storage.AdjustVictoryPoints(ctx, matchID, slot, delta))
}

func (s *Storage) SetVictoryPoints(ctx context.Context, matchID model.MatchID, slot model.Slot, points int) (*model.MatchPlayer, error) {
	return s.playerUpdated(ctx, matchID)(s.Storage.SetVictoryPoints(ctx, matchID, slot, points))
}

func (s *Storage) SetTotalPoints(ctx context.Context, matchID model.MatchID, slot model.Slot, points int) (*model.MatchPlayer, error) {
	return s.playerUpdated(ctx, matchID)(s.Storage.SetTotalPoints(ctx, matchID, slot, points))
}

func (s *Storage) playerUpdated(ctx context.Context, matchID model.MatchID) func(*model.MatchPlayer, error) (*model.MatchPlayer, error) {
	return func(p *model.MatchPlayer, err error) (*model.MatchPlayer, error) {
		if err != nil {
			return nil, err
		}
		s.publish(ctx, matchID, model.EntityPlayer, model.OpUpdate, p)
		return p, nil
	}
}

// Unit operations

func (s *Storage) SaveUnit(ctx context.Context, u *model.Unit) (*model.Unit, error) {
	saved, err := s.Storage.SaveUnit(ctx, u)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, saved.MatchID, model.EntityUnit, versionOp(saved.Version), saved)
	return saved, nil
}

func (s *Storage) SetKO(ctx context.Context, matchID model.MatchID, id model.UnitID, ko bool) (*model.Unit, bool, error) {
	u, changed, err := s.Storage.SetKO(ctx, matchID, id, ko)
	if err != nil {
		return nil, false, err
	}
	if changed {
		s.publish(ctx, matchID, model.EntityUnit, model.OpUpdate, u)
	}
	return u, changed, nil
}

func (s *Storage) SetAttachment(ctx context.Context, matchID model.MatchID, id model.UnitID, target *model.UnitID, kind string) (*model.Unit, error) {
	u, err := s.Storage.SetAttachment(ctx, matchID, id, target, kind)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, matchID, model.EntityUnit, model.OpUpdate, u)
	return u, nil
}

func (s *Storage) DetachDependents(ctx context.Context, matchID model.MatchID, carrier model.UnitID) ([]*model.Unit, error) {
	units, err := s.Storage.DetachDependents(ctx, matchID, carrier)
	for _, u := range units {
		s.publish(ctx, matchID, model.EntityUnit, model.OpUpdate, u)
	}
	return units, err
}

func (s *Storage) DeleteUnitsForSlot(ctx context.Context, matchID model.MatchID, slot model.Slot) ([]*model.Unit, error) {
	units, err := s.Storage.DeleteUnitsForSlot(ctx, matchID, slot)
	if err != nil {
		return nil, err
	}
	for _, u := range units {
		s.publish(ctx, matchID, model.EntityUnit, model.OpDelete, u)
	}
	return units, nil
}

// Spectator operations

func (s *Storage) AddSpectator(ctx context.Context, sp *model.Spectator) (bool, error) {
	created, err := s.Storage.AddSpectator(ctx, sp)
	if err != nil {
		return false, err
	}
	if created {
		row := *sp
		if row.CreatedAt.IsZero() {
			row.CreatedAt = s.clock.Now()
		}
		s.publish(ctx, sp.MatchID, model.EntitySpectator, model.OpInsert, &row)
	}
	return created, nil
}

func (s *Storage) RemoveSpectator(ctx context.Context, matchID model.MatchID, id model.ParticipantID) error {
	if err := s.Storage.RemoveSpectator(ctx, matchID, id); err != nil {
		return err
	}
	s.publish(ctx, matchID, model.EntitySpectator, model.OpDelete, &model.Spectator{MatchID: matchID, ParticipantID: id})
	return nil
}
