package response

import (
	"time"

	"github.com/mcoot/matchsync/internal/model"
	"github.com/mcoot/matchsync/internal/services/auth"
)

// AuthResponse is the response for identity issuance
type AuthResponse struct {
	Participant  model.Participant `json:"participant"`
	SessionToken string            `json:"session_token"`
	ExpiresAt    time.Time         `json:"expires_at"`
}

// AuthResponseFromSession creates an AuthResponse from a session
func AuthResponseFromSession(s *auth.Session) AuthResponse {
	return AuthResponse{
		Participant:  s.Participant,
		SessionToken: s.Token,
		ExpiresAt:    s.ExpiresAt,
	}
}

// Match is a match row with its timer evaluated at response time
type Match struct {
	*model.Match
	RemainingSeconds int `json:"remaining_seconds"`
}

// MatchFromModel evaluates the timer of m at now
func MatchFromModel(m *model.Match, now time.Time) Match {
	return Match{Match: m, RemainingSeconds: m.Timer.Effective(now)}
}

// MatchState is the full match as seen by one participant
type MatchState struct {
	Match      Match                `json:"match"`
	Players    []*model.MatchPlayer `json:"players"`
	Units      []*model.Unit        `json:"units"`
	Spectators []*model.Spectator   `json:"spectators"`
	Role       model.Role           `json:"role"`
	Slot       model.Slot           `json:"slot,omitempty"`
}

// MatchStateFromSnapshot builds the state shown to viewer
func MatchStateFromSnapshot(snap *model.Snapshot, viewer model.ParticipantID, now time.Time) MatchState {
	role, slot := snap.RoleOf(viewer)
	return MatchState{
		Match:      MatchFromModel(snap.Match, now),
		Players:    nonNil(snap.Players),
		Units:      nonNil(snap.Units),
		Spectators: nonNil(snap.Spectators),
		Role:       role,
		Slot:       slot,
	}
}

// Units wraps a unit listing
type Units struct {
	Units []*model.Unit `json:"units"`
}

// UnitsFrom wraps units, never encoding null
func UnitsFrom(units []*model.Unit) Units {
	return Units{Units: nonNil(units)}
}

// Health is the response of the health check
type Health struct {
	Status string `json:"status"`
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
