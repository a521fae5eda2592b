package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/mcoot/matchsync/internal/dependencies/clock"
	"github.com/mcoot/matchsync/internal/model"
	"github.com/mcoot/matchsync/internal/storage"
)

// Storage is an in-memory implementation of the storage interface.
// Rows are copied on the way in and out so callers never share memory with the store.
type Storage struct {
	mu    sync.RWMutex
	clock clock.Clock

	participants map[model.ParticipantID]*model.Participant
	matches      map[model.MatchID]*model.Match
	players      map[playerKey]*model.MatchPlayer
	units        map[model.UnitID]*model.Unit
	spectators   map[spectatorKey]*model.Spectator
}

type playerKey struct {
	matchID model.MatchID
	slot    model.Slot
}

type spectatorKey struct {
	matchID       model.MatchID
	participantID model.ParticipantID
}

// New creates a new in-memory storage instance
func New(clk clock.Clock) *Storage {
	return &Storage{
		clock:        clk,
		participants: make(map[model.ParticipantID]*model.Participant),
		matches:      make(map[model.MatchID]*model.Match),
		players:      make(map[playerKey]*model.MatchPlayer),
		units:        make(map[model.UnitID]*model.Unit),
		spectators:   make(map[spectatorKey]*model.Spectator),
	}
}

var _ storage.Storage = (*Storage)(nil)

// Participant operations

func (s *Storage) SaveParticipant(ctx context.Context, p *model.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.participants[p.ID] = &cp
	return nil
}

func (s *Storage) GetParticipant(ctx context.Context, id model.ParticipantID) (*model.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[id]
	if !ok {
		return nil, model.ErrParticipantNotFound
	}
	cp := *p
	return &cp, nil
}

// Match operations

func (s *Storage) CreateMatch(ctx context.Context, m *model.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	m.Version = 1
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	s.matches[m.ID] = copyMatch(m)
	return nil
}

func (s *Storage) GetMatch(ctx context.Context, id model.MatchID) (*model.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.matches[id]
	if !ok {
		return nil, model.ErrMatchNotFound
	}
	return copyMatch(m), nil
}

func (s *Storage) UpdateMatchTimer(ctx context.Context, id model.MatchID, timer model.Timer) (*model.Match, error) {
	return s.updateMatch(id, func(m *model.Match) { m.Timer = timer })
}

func (s *Storage) UpdateMatchStatus(ctx context.Context, id model.MatchID, status model.MatchStatus) (*model.Match, error) {
	return s.updateMatch(id, func(m *model.Match) { m.Status = status })
}

func (s *Storage) updateMatch(id model.MatchID, mutate func(*model.Match)) (*model.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[id]
	if !ok {
		return nil, model.ErrMatchNotFound
	}
	mutate(m)
	m.Version++
	m.UpdatedAt = s.clock.Now()
	return copyMatch(m), nil
}

func (s *Storage) DeleteMatch(ctx context.Context, id model.MatchID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.matches[id]; !ok {
		return model.ErrMatchNotFound
	}
	delete(s.matches, id)
	for key := range s.players {
		if key.matchID == id {
			delete(s.players, key)
		}
	}
	for unitID, u := range s.units {
		if u.MatchID == id {
			delete(s.units, unitID)
		}
	}
	for key := range s.spectators {
		if key.matchID == id {
			delete(s.spectators, key)
		}
	}
	return nil
}

// Player operations

func (s *Storage) SavePlayer(ctx context.Context, p *model.MatchPlayer) (*model.MatchPlayer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.matches[p.MatchID]; !ok {
		return nil, model.ErrMatchNotFound
	}
	now := s.clock.Now()
	row := *p
	key := playerKey{matchID: p.MatchID, slot: p.Slot}
	if existing, ok := s.players[key]; ok {
		row.Version = existing.Version + 1
		row.CreatedAt = existing.CreatedAt
	} else {
		row.Version = 1
		row.CreatedAt = now
	}
	row.UpdatedAt = now
	s.players[key] = &row
	cp := row
	return &cp, nil
}

func (s *Storage) ClaimSlot(ctx context.Context, matchID model.MatchID, slot model.Slot, participantID model.ParticipantID, name string) (*model.MatchPlayer, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.matches[matchID]; !ok {
		return nil, false, model.ErrMatchNotFound
	}
	if other, ok := s.players[playerKey{matchID: matchID, slot: slot.Opponent()}]; ok && other.ParticipantID == participantID {
		return nil, false, model.ErrAlreadySeated
	}

	now := s.clock.Now()
	key := playerKey{matchID: matchID, slot: slot}
	row, ok := s.players[key]
	switch {
	case !ok:
		row = &model.MatchPlayer{MatchID: matchID, Slot: slot, CreatedAt: now}
		s.players[key] = row
	case row.ParticipantID == participantID:
		cp := *row
		return &cp, false, nil
	case row.Seated():
		return nil, false, model.ErrSlotTaken
	}
	row.ParticipantID = participantID
	row.PlayerName = name
	row.Version++
	row.UpdatedAt = now
	cp := *row
	return &cp, true, nil
}

func (s *Storage) GetPlayer(ctx context.Context, matchID model.MatchID, slot model.Slot) (*model.MatchPlayer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[playerKey{matchID: matchID, slot: slot}]
	if !ok {
		return nil, model.ErrSlotNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Storage) ListPlayers(ctx context.Context, matchID model.MatchID) ([]*model.MatchPlayer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var players []*model.MatchPlayer
	for _, slot := range model.Slots {
		if p, ok := s.players[playerKey{matchID: matchID, slot: slot}]; ok {
			cp := *p
			players = append(players, &cp)
		}
	}
	return players, nil
}

func (s *Storage) DeletePlayer(ctx context.Context, matchID model.MatchID, slot model.Slot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.players, playerKey{matchID: matchID, slot: slot})
	return nil
}

func (s *Storage) AdjustVictoryPoints(ctx context.Context, matchID model.MatchID, slot model.Slot, delta int) (*model.MatchPlayer, error) {
	return s.updatePlayer(matchID, slot, func(p *model.MatchPlayer) {
		p.VictoryPoints = max(0, p.VictoryPoints+delta)
	})
}

func (s *Storage) SetVictoryPoints(ctx context.Context, matchID model.MatchID, slot model.Slot, points int) (*model.MatchPlayer, error) {
	return s.updatePlayer(matchID, slot, func(p *model.MatchPlayer) { p.VictoryPoints = max(0, points) })
}

func (s *Storage) SetTotalPoints(ctx context.Context, matchID model.MatchID, slot model.Slot, points int) (*model.MatchPlayer, error) {
	return s.updatePlayer(matchID, slot, func(p *model.MatchPlayer) { p.TotalPoints = max(0, points) })
}

func (s *Storage) updatePlayer(matchID model.MatchID, slot model.Slot, mutate func(*model.MatchPlayer)) (*model.MatchPlayer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[playerKey{matchID: matchID, slot: slot}]
	if !ok {
		return nil, model.ErrSlotNotFound
	}
	mutate(p)
	p.Version++
	p.UpdatedAt = s.clock.Now()
	cp := *p
	return &cp, nil
}

// Unit operations

func (s *Storage) SaveUnit(ctx context.Context, u *model.Unit) (*model.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.matches[u.MatchID]; !ok {
		return nil, model.ErrMatchNotFound
	}
	if err := storage.CheckAttachment(s.unitsLocked(u.MatchID), u); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	row := copyUnit(u)
	if existing, ok := s.units[u.ID]; ok {
		row.Version = existing.Version + 1
		row.CreatedAt = existing.CreatedAt
	} else {
		row.Version = 1
		row.CreatedAt = now
	}
	row.UpdatedAt = now
	s.units[u.ID] = row
	return copyUnit(row), nil
}

func (s *Storage) GetUnit(ctx context.Context, matchID model.MatchID, id model.UnitID) (*model.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.units[id]
	if !ok || u.MatchID != matchID {
		return nil, model.ErrUnitNotFound
	}
	return copyUnit(u), nil
}

func (s *Storage) ListUnits(ctx context.Context, matchID model.MatchID) ([]*model.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var units []*model.Unit
	for _, u := range s.units {
		if u.MatchID == matchID {
			units = append(units, copyUnit(u))
		}
	}
	storage.SortUnits(units)
	return units, nil
}

func (s *Storage) SetKO(ctx context.Context, matchID model.MatchID, id model.UnitID, ko bool) (*model.Unit, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.units[id]
	if !ok || u.MatchID != matchID {
		return nil, false, model.ErrUnitNotFound
	}
	if u.IsKO == ko {
		return copyUnit(u), false, nil
	}
	u.IsKO = ko
	s.touchUnit(u)
	return copyUnit(u), true, nil
}

func (s *Storage) SetAttachment(ctx context.Context, matchID model.MatchID, id model.UnitID, target *model.UnitID, kind string) (*model.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.units[id]
	if !ok || u.MatchID != matchID {
		return nil, model.ErrUnitNotFound
	}
	row := copyUnit(u)
	if target == nil {
		row.AttachedTo = nil
		row.AttachmentKind = ""
	} else {
		t := *target
		row.AttachedTo = &t
		row.AttachmentKind = kind
	}
	if err := storage.CheckAttachment(s.unitsLocked(matchID), row); err != nil {
		return nil, err
	}
	u.AttachedTo = row.AttachedTo
	u.AttachmentKind = row.AttachmentKind
	s.touchUnit(u)
	return copyUnit(u), nil
}

// unitsLocked returns the match's stored rows. The caller holds the lock
// and must not modify them.
func (s *Storage) unitsLocked(matchID model.MatchID) []*model.Unit {
	var units []*model.Unit
	for _, u := range s.units {
		if u.MatchID == matchID {
			units = append(units, u)
		}
	}
	return units
}

func (s *Storage) DetachDependents(ctx context.Context, matchID model.MatchID, carrier model.UnitID) ([]*model.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var detached []*model.Unit
	for _, u := range s.units {
		if u.MatchID == matchID && u.AttachedTo != nil && *u.AttachedTo == carrier {
			u.AttachedTo = nil
			u.AttachmentKind = ""
			s.touchUnit(u)
			detached = append(detached, copyUnit(u))
		}
	}
	storage.SortUnits(detached)
	return detached, nil
}

func (s *Storage) DeleteUnitsForSlot(ctx context.Context, matchID model.MatchID, slot model.Slot) ([]*model.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted []*model.Unit
	for id, u := range s.units {
		if u.MatchID == matchID && u.Slot == slot {
			deleted = append(deleted, copyUnit(u))
			delete(s.units, id)
		}
	}
	storage.SortUnits(deleted)
	return deleted, nil
}

// touchUnit must be called with the write lock held
func (s *Storage) touchUnit(u *model.Unit) {
	u.Version++
	u.UpdatedAt = s.clock.Now()
}

// Spectator operations

func (s *Storage) AddSpectator(ctx context.Context, sp *model.Spectator) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.matches[sp.MatchID]; !ok {
		return false, model.ErrMatchNotFound
	}
	key := spectatorKey{matchID: sp.MatchID, participantID: sp.ParticipantID}
	if _, ok := s.spectators[key]; ok {
		return false, nil
	}
	cp := *sp
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = s.clock.Now()
	}
	s.spectators[key] = &cp
	return true, nil
}

func (s *Storage) ListSpectators(ctx context.Context, matchID model.MatchID) ([]*model.Spectator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var spectators []*model.Spectator
	for key, sp := range s.spectators {
		if key.matchID == matchID {
			cp := *sp
			spectators = append(spectators, &cp)
		}
	}
	sort.Slice(spectators, func(i, j int) bool {
		if !spectators[i].CreatedAt.Equal(spectators[j].CreatedAt) {
			return spectators[i].CreatedAt.Before(spectators[j].CreatedAt)
		}
		return spectators[i].ParticipantID < spectators[j].ParticipantID
	})
	return spectators, nil
}

func (s *Storage) RemoveSpectator(ctx context.Context, matchID model.MatchID, id model.ParticipantID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.spectators, spectatorKey{matchID: matchID, participantID: id})
	return nil
}

func copyMatch(m *model.Match) *model.Match {
	cp := *m
	if m.Timer.CheckpointAt != nil {
		t := *m.Timer.CheckpointAt
		cp.Timer.CheckpointAt = &t
	}
	return &cp
}

func copyUnit(u *model.Unit) *model.Unit {
	cp := *u
	if u.AttachedTo != nil {
		t := *u.AttachedTo
		cp.AttachedTo = &t
	}
	return &cp
}
