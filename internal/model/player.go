package model

import "time"

// Slot identifies one of the two sides of a match
type Slot int

const (
	SlotOne Slot = 1
	SlotTwo Slot = 2
)

// Slots lists both sides in order
var Slots = []Slot{SlotOne, SlotTwo}

// Valid reports whether s is 1 or 2
func (s Slot) Valid() bool {
	return s == SlotOne || s == SlotTwo
}

// Opponent returns the other side
func (s Slot) Opponent() Slot {
	if s == SlotOne {
		return SlotTwo
	}
	return SlotOne
}

// MatchPlayer is the scoring ledger row for one side of a match.
// ParticipantID is empty while the slot is vacated but its row is kept.
type MatchPlayer struct {
	MatchID       MatchID       `json:"match_id"`
	Slot          Slot          `json:"slot"`
	ParticipantID ParticipantID `json:"participant_id"`
	PlayerName    string        `json:"player_name"`
	VictoryPoints int           `json:"victory_points"`
	TotalPoints   int           `json:"total_points"`
	Version       int64         `json:"version"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Seated reports whether a participant currently holds this slot
func (p *MatchPlayer) Seated() bool {
	return p != nil && p.ParticipantID != ""
}
