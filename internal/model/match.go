package model

import (
	"encoding/json"
	"time"
)

// MatchID identifies a match
type MatchID string

// MatchStatus is the lifecycle state of a match
type MatchStatus string

const (
	MatchStatusWaiting  MatchStatus = "waiting"
	MatchStatusActive   MatchStatus = "active"
	MatchStatusFinished MatchStatus = "finished"
)

// Valid reports whether s is a known status
func (s MatchStatus) Valid() bool {
	switch s {
	case MatchStatusWaiting, MatchStatusActive, MatchStatusFinished:
		return true
	}
	return false
}

// TimerState is the run state of the match clock
type TimerState string

const (
	TimerStopped TimerState = "stopped"
	TimerPaused  TimerState = "paused"
	TimerRunning TimerState = "running"
)

// DefaultTimerSeconds is the length of a standard match (50 minutes)
const DefaultTimerSeconds = 3000

// Timer is the authoritative clock checkpoint stored on the match row.
// CheckpointAt is non-nil only while running.
type Timer struct {
	State           TimerState `json:"state"`
	RemainingSecs   int        `json:"remaining_seconds"`
	CheckpointAt    *time.Time `json:"checkpoint_at"`
	DurationSeconds int        `json:"duration_seconds"`
}

// NewTimer returns a stopped timer holding the full duration
func NewTimer(durationSeconds int) Timer {
	if durationSeconds <= 0 {
		durationSeconds = DefaultTimerSeconds
	}
	return Timer{
		State:           TimerStopped,
		RemainingSecs:   durationSeconds,
		DurationSeconds: durationSeconds,
	}
}

// Effective returns the remaining seconds as observed at now.
// Elapsed time is counted in whole seconds; a checkpoint in the future
// (clock skew between writers) counts as no time elapsed.
func (t Timer) Effective(now time.Time) int {
	if t.State != TimerRunning || t.CheckpointAt == nil {
		return max(0, t.RemainingSecs)
	}
	elapsed := int(now.Sub(*t.CheckpointAt) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	return max(0, t.RemainingSecs-elapsed)
}

// Exhausted reports whether no time remains at now
func (t Timer) Exhausted(now time.Time) bool {
	return t.Effective(now) == 0
}

// Match is the shared match record
type Match struct {
	ID         MatchID       `json:"id"`
	Name       string        `json:"name"`
	HostID     ParticipantID `json:"host_id"`
	IsPublic   bool          `json:"is_public"`
	SecretHash string        `json:"-"`
	Status     MatchStatus   `json:"status"`
	Timer      Timer         `json:"timer"`
	Version    int64         `json:"version"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// matchRow is the persisted form of Match, which keeps the secret hash
type matchRow struct {
	Match
	SecretHash string `json:"secret_hash,omitempty"`
}

// MarshalStored encodes a match for backends that persist it as JSON,
// including fields that are never sent to participants.
func MarshalStored(m *Match) ([]byte, error) {
	return json.Marshal(matchRow{Match: *m, SecretHash: m.SecretHash})
}

// UnmarshalStored is the inverse of MarshalStored
func UnmarshalStored(data []byte) (*Match, error) {
	var row matchRow
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, err
	}
	m := row.Match
	m.SecretHash = row.SecretHash
	return &m, nil
}

// Role is how a participant relates to a match
type Role string

const (
	RolePlayer    Role = "player"
	RoleSpectator Role = "spectator"
	RoleNone      Role = "none"
)

// Spectator is an identity observing a match without a slot
type Spectator struct {
	MatchID       MatchID       `json:"match_id"`
	ParticipantID ParticipantID `json:"participant_id"`
	CreatedAt     time.Time     `json:"created_at"`
}
