// Package replica keeps a participant's local copy of one match, rebuilt
// only from rows delivered by the change feed or returned by writes.
package replica

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/mcoot/matchsync/internal/model"
	"github.com/mcoot/matchsync/internal/storage"
)

// stamp orders incarnations of one row. A row deleted and created again
// gets a later CreatedAt, so it outranks every version of the old row.
type stamp struct {
	createdAt time.Time
	version   int64
}

func (s stamp) before(o stamp) bool {
	if !s.createdAt.Equal(o.createdAt) {
		return s.createdAt.Before(o.createdAt)
	}
	return s.version < o.version
}

type rowKey struct {
	entity model.Entity
	id     string
}

// Replica merges change events for a single match. Rows are only replaced
// by rows at least as new, and deletes leave a tombstone so a late update
// cannot resurrect the row. Applying the same event twice is a no-op.
type Replica struct {
	mu         sync.RWMutex
	matchID    model.MatchID
	match      *model.Match
	deleted    bool
	players    map[model.Slot]*model.MatchPlayer
	units      map[model.UnitID]*model.Unit
	spectators map[model.ParticipantID]*model.Spectator
	seen       map[rowKey]stamp
	tombstones map[rowKey]stamp
}

// New creates an empty replica for matchID
func New(matchID model.MatchID) *Replica {
	r := &Replica{matchID: matchID}
	r.reset()
	return r
}

func (r *Replica) reset() {
	r.match = nil
	r.deleted = false
	r.players = make(map[model.Slot]*model.MatchPlayer)
	r.units = make(map[model.UnitID]*model.Unit)
	r.spectators = make(map[model.ParticipantID]*model.Spectator)
	r.seen = make(map[rowKey]stamp)
	if r.tombstones == nil {
		r.tombstones = make(map[rowKey]stamp)
	}
}

// MatchID returns the match this replica follows
func (r *Replica) MatchID() model.MatchID {
	return r.matchID
}

// LoadSnapshot replaces every row with the snapshot's. Tombstones survive
// for rows the snapshot does not contain.
func (r *Replica) LoadSnapshot(snap *model.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.reset()
	if snap == nil || snap.Match == nil {
		return
	}
	r.putMatch(snap.Match)
	for _, p := range snap.Players {
		r.putPlayer(p)
	}
	for _, u := range snap.Units {
		r.putUnit(u)
	}
	for _, sp := range snap.Spectators {
		r.putSpectator(sp, sp.CreatedAt)
	}
}

func (r *Replica) putMatch(m *model.Match) {
	key := rowKey{model.EntityMatch, string(m.ID)}
	cp := *m
	r.match = &cp
	r.seen[key] = stamp{m.CreatedAt, m.Version}
	delete(r.tombstones, key)
}

func (r *Replica) putPlayer(p *model.MatchPlayer) {
	key := playerKey(p.Slot)
	cp := *p
	r.players[p.Slot] = &cp
	r.seen[key] = stamp{p.CreatedAt, p.Version}
	delete(r.tombstones, key)
}

func (r *Replica) putUnit(u *model.Unit) {
	key := rowKey{model.EntityUnit, string(u.ID)}
	cp := *u
	if u.AttachedTo != nil {
		target := *u.AttachedTo
		cp.AttachedTo = &target
	}
	r.units[u.ID] = &cp
	r.seen[key] = stamp{u.CreatedAt, u.Version}
	delete(r.tombstones, key)
}

func (r *Replica) putSpectator(sp *model.Spectator, at time.Time) {
	key := rowKey{model.EntitySpectator, string(sp.ParticipantID)}
	cp := *sp
	r.spectators[sp.ParticipantID] = &cp
	r.seen[key] = stamp{createdAt: at}
	delete(r.tombstones, key)
}

func playerKey(slot model.Slot) rowKey {
	return rowKey{model.EntityPlayer, strconv.Itoa(int(slot))}
}

// accepts reports whether a row stamped s may replace what is held for key
func (r *Replica) accepts(key rowKey, s stamp) bool {
	if tomb, ok := r.tombstones[key]; ok && !tomb.before(s) {
		return false
	}
	if held, ok := r.seen[key]; ok && s.before(held) {
		return false
	}
	return true
}

// bury records a delete of the row stamped s. It reports false when a newer
// incarnation is already held.
func (r *Replica) bury(key rowKey, s stamp) bool {
	if held, ok := r.seen[key]; ok && s.before(held) {
		return false
	}
	if tomb, ok := r.tombstones[key]; ok && s.before(tomb) {
		return false
	}
	r.tombstones[key] = s
	delete(r.seen, key)
	return true
}

// Apply merges one change event. It reports whether the replica changed.
// Events for other matches and rows that cannot be decoded are ignored.
func (r *Replica) Apply(event model.ChangeEvent) (bool, error) {
	if event.MatchID != r.matchID {
		return false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch event.Entity {
	case model.EntityMatch:
		var m model.Match
		if err := event.DecodeRow(&m); err != nil {
			return false, err
		}
		return r.applyMatch(event.Operation, &m), nil
	case model.EntityPlayer:
		var p model.MatchPlayer
		if err := event.DecodeRow(&p); err != nil {
			return false, err
		}
		return r.applyPlayer(event.Operation, &p), nil
	case model.EntityUnit:
		var u model.Unit
		if err := event.DecodeRow(&u); err != nil {
			return false, err
		}
		return r.applyUnit(event.Operation, &u), nil
	case model.EntitySpectator:
		var sp model.Spectator
		if err := event.DecodeRow(&sp); err != nil {
			return false, err
		}
		return r.applySpectator(event.Operation, &sp, event.At), nil
	}
	return false, nil
}

func (r *Replica) applyMatch(op model.Operation, m *model.Match) bool {
	key := rowKey{model.EntityMatch, string(m.ID)}
	s := stamp{m.CreatedAt, m.Version}
	if op == model.OpDelete {
		if !r.bury(key, s) {
			return false
		}
		r.match = nil
		r.deleted = true
		return true
	}
	if !r.accepts(key, s) {
		return false
	}
	changed := r.match == nil || r.match.Version != m.Version || !r.match.CreatedAt.Equal(m.CreatedAt)
	r.putMatch(m)
	r.deleted = false
	return changed
}

func (r *Replica) applyPlayer(op model.Operation, p *model.MatchPlayer) bool {
	key := playerKey(p.Slot)
	s := stamp{p.CreatedAt, p.Version}
	if op == model.OpDelete {
		if !r.bury(key, s) {
			return false
		}
		_, had := r.players[p.Slot]
		delete(r.players, p.Slot)
		return had
	}
	if !r.accepts(key, s) {
		return false
	}
	held, had := r.players[p.Slot]
	changed := !had || held.Version != p.Version || !held.CreatedAt.Equal(p.CreatedAt)
	r.putPlayer(p)
	return changed
}

func (r *Replica) applyUnit(op model.Operation, u *model.Unit) bool {
	key := rowKey{model.EntityUnit, string(u.ID)}
	s := stamp{u.CreatedAt, u.Version}
	if op == model.OpDelete {
		if !r.bury(key, s) {
			return false
		}
		_, had := r.units[u.ID]
		delete(r.units, u.ID)
		return had
	}
	if !r.accepts(key, s) {
		return false
	}
	held, had := r.units[u.ID]
	changed := !had || held.Version != u.Version
	r.putUnit(u)
	return changed
}

// Spectator rows carry no version, so they are ordered by event time
func (r *Replica) applySpectator(op model.Operation, sp *model.Spectator, at time.Time) bool {
	key := rowKey{model.EntitySpectator, string(sp.ParticipantID)}
	s := stamp{createdAt: at}
	if op == model.OpDelete {
		if !r.bury(key, s) {
			return false
		}
		_, had := r.spectators[sp.ParticipantID]
		delete(r.spectators, sp.ParticipantID)
		return had
	}
	if !r.accepts(key, s) {
		return false
	}
	_, had := r.spectators[sp.ParticipantID]
	r.putSpectator(sp, at)
	return !had
}

// ApplyMatch merges a match row returned by one of our own writes
func (r *Replica) ApplyMatch(m *model.Match) bool {
	if m == nil || m.ID != r.matchID {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.applyMatch(model.OpUpdate, m)
}

// ApplyPlayer merges a player row returned by one of our own writes
func (r *Replica) ApplyPlayer(p *model.MatchPlayer) bool {
	if p == nil || p.MatchID != r.matchID {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.applyPlayer(model.OpUpdate, p)
}

// ApplyUnit merges a unit row returned by one of our own writes
func (r *Replica) ApplyUnit(u *model.Unit) bool {
	if u == nil || u.MatchID != r.matchID {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.applyUnit(model.OpUpdate, u)
}

// Snapshot copies the rows currently held, in store order
func (r *Replica) Snapshot() *model.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := &model.Snapshot{
		Players:    []*model.MatchPlayer{},
		Units:      []*model.Unit{},
		Spectators: []*model.Spectator{},
	}
	if r.match != nil {
		cp := *r.match
		snap.Match = &cp
	}
	for _, slot := range model.Slots {
		if p, ok := r.players[slot]; ok {
			cp := *p
			snap.Players = append(snap.Players, &cp)
		}
	}
	for _, u := range r.units {
		cp := *u
		snap.Units = append(snap.Units, &cp)
	}
	storage.SortUnits(snap.Units)
	for _, sp := range r.spectators {
		cp := *sp
		snap.Spectators = append(snap.Spectators, &cp)
	}
	sort.Slice(snap.Spectators, func(i, j int) bool {
		return snap.Spectators[i].ParticipantID < snap.Spectators[j].ParticipantID
	})
	return snap
}

// Deleted reports whether the match itself has been deleted
func (r *Replica) Deleted() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.deleted
}

// Timer returns the held timer, if the match row has arrived
func (r *Replica) Timer() (model.Timer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.match == nil {
		return model.Timer{}, false
	}
	return r.match.Timer, true
}
