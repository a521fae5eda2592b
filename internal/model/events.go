package model

import (
	"encoding/json"
	"time"
)

// Entity names the table a change event refers to
type Entity string

const (
	EntityMatch     Entity = "match"
	EntityPlayer    Entity = "player"
	EntityUnit      Entity = "unit"
	EntitySpectator Entity = "spectator"
)

// Operation is the kind of row change
type Operation string

const (
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// ChangeEvent tells subscribers that a row of a match changed.
// Row always carries the full row as written (or as last seen, for deletes);
// receivers refetch or merge it, never apply it as a delta.
type ChangeEvent struct {
	MatchID   MatchID         `json:"match_id"`
	Entity    Entity          `json:"entity"`
	Operation Operation       `json:"operation"`
	Row       json.RawMessage `json:"row"`
	Origin    string          `json:"origin,omitempty"`
	At        time.Time       `json:"at"`
}

// NewChangeEvent encodes row into an event
func NewChangeEvent(matchID MatchID, entity Entity, op Operation, row any, at time.Time) (ChangeEvent, error) {
	data, err := json.Marshal(row)
	if err != nil {
		return ChangeEvent{}, err
	}
	return ChangeEvent{
		MatchID:   matchID,
		Entity:    entity,
		Operation: op,
		Row:       data,
		At:        at,
	}, nil
}

// DecodeRow unmarshals the row into dst
func (e ChangeEvent) DecodeRow(dst any) error {
	return json.Unmarshal(e.Row, dst)
}
