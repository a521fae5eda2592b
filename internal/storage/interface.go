package storage

import (
	"context"

	"github.com/mcoot/matchsync/internal/model"
)

// Storage is the authoritative store for matches and everything they own.
// Every write bumps the row version and returns the row as persisted so
// callers and the change feed always work from what the store holds.
type Storage interface {
	// Participant operations
	SaveParticipant(ctx context.Context, p *model.Participant) error
	GetParticipant(ctx context.Context, id model.ParticipantID) (*model.Participant, error)

	// Match operations
	CreateMatch(ctx context.Context, m *model.Match) error
	GetMatch(ctx context.Context, id model.MatchID) (*model.Match, error)
	UpdateMatchTimer(ctx context.Context, id model.MatchID, timer model.Timer) (*model.Match, error)
	UpdateMatchStatus(ctx context.Context, id model.MatchID, status model.MatchStatus) (*model.Match, error)
	// DeleteMatch removes the match with its players, units and spectators
	DeleteMatch(ctx context.Context, id model.MatchID) error

	// Player operations
	SavePlayer(ctx context.Context, p *model.MatchPlayer) (*model.MatchPlayer, error)
	// ClaimSlot atomically binds participantID to the slot, creating the row
	// if needed and keeping the ledger of a vacated row. It fails with
	// ErrSlotTaken if someone else holds the slot and ErrAlreadySeated if the
	// participant holds the other slot. Reclaiming one's own slot reports no change.
	ClaimSlot(ctx context.Context, matchID model.MatchID, slot model.Slot, participantID model.ParticipantID, name string) (*model.MatchPlayer, bool, error)
	GetPlayer(ctx context.Context, matchID model.MatchID, slot model.Slot) (*model.MatchPlayer, error)
	ListPlayers(ctx context.Context, matchID model.MatchID) ([]*model.MatchPlayer, error)
	DeletePlayer(ctx context.Context, matchID model.MatchID, slot model.Slot) error
	// AdjustVictoryPoints atomically adds delta, flooring the result at zero
	AdjustVictoryPoints(ctx context.Context, matchID model.MatchID, slot model.Slot, delta int) (*model.MatchPlayer, error)
	SetVictoryPoints(ctx context.Context, matchID model.MatchID, slot model.Slot, points int) (*model.MatchPlayer, error)
	SetTotalPoints(ctx context.Context, matchID model.MatchID, slot model.Slot, points int) (*model.MatchPlayer, error)

	// Unit operations
	SaveUnit(ctx context.Context, u *model.Unit) (*model.Unit, error)
	GetUnit(ctx context.Context, matchID model.MatchID, id model.UnitID) (*model.Unit, error)
	ListUnits(ctx context.Context, matchID model.MatchID) ([]*model.Unit, error)
	// SetKO atomically writes the KO flag and reports whether it changed
	SetKO(ctx context.Context, matchID model.MatchID, id model.UnitID, ko bool) (*model.Unit, bool, error)
	// SetAttachment attaches the unit to target, or detaches it when target is nil
	SetAttachment(ctx context.Context, matchID model.MatchID, id model.UnitID, target *model.UnitID, kind string) (*model.Unit, error)
	// DetachDependents clears the attachment of every unit riding on carrier
	DetachDependents(ctx context.Context, matchID model.MatchID, carrier model.UnitID) ([]*model.Unit, error)
	DeleteUnitsForSlot(ctx context.Context, matchID model.MatchID, slot model.Slot) ([]*model.Unit, error)

	// Spectator operations
	// AddSpectator is idempotent and reports whether a row was created
	AddSpectator(ctx context.Context, s *model.Spectator) (bool, error)
	ListSpectators(ctx context.Context, matchID model.MatchID) ([]*model.Spectator, error)
	RemoveSpectator(ctx context.Context, matchID model.MatchID, id model.ParticipantID) error
}

// Closer is implemented by backends holding connections
type Closer interface {
	Close() error
}
