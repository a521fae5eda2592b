package model

import "time"

// ParticipantID uniquely identifies a participant across the system
type ParticipantID string

// Participant is an identity that can hold a slot or spectate.
// Identity issuance is deliberately thin: account management lives elsewhere.
type Participant struct {
	ID          ParticipantID `json:"id"`
	DisplayName string        `json:"display_name"`
	CreatedAt   time.Time     `json:"created_at"`
}
