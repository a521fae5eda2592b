package model

// Snapshot is the full authoritative state of one match
type Snapshot struct {
	Match      *Match         `json:"match"`
	Players    []*MatchPlayer `json:"players"`
	Units      []*Unit        `json:"units"`
	Spectators []*Spectator   `json:"spectators"`
}

// Player returns the row for slot, or nil if it is absent
func (s *Snapshot) Player(slot Slot) *MatchPlayer {
	for _, p := range s.Players {
		if p.Slot == slot {
			return p
		}
	}
	return nil
}

// SlotUnits returns the units of one slot in snapshot order
func (s *Snapshot) SlotUnits(slot Slot) []*Unit {
	var units []*Unit
	for _, u := range s.Units {
		if u.Slot == slot {
			units = append(units, u)
		}
	}
	return units
}

// RoleOf reports how the participant relates to the match
func (s *Snapshot) RoleOf(id ParticipantID) (Role, Slot) {
	for _, p := range s.Players {
		if p.ParticipantID == id && id != "" {
			return RolePlayer, p.Slot
		}
	}
	for _, sp := range s.Spectators {
		if sp.ParticipantID == id {
			return RoleSpectator, 0
		}
	}
	return RoleNone, 0
}
