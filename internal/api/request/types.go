package request

import "github.com/mcoot/matchsync/internal/model"

// CreateGuestRequest is the request body for creating a guest participant
type CreateGuestRequest struct {
	DisplayName string `json:"display_name"`
}

// CreateMatchRequest is the request body for creating a match
type CreateMatchRequest struct {
	Name   string `json:"name"`
	Public bool   `json:"public"`
	Secret string `json:"secret,omitempty"`
}

// SetStatusRequest is the request body for recording a match status
type SetStatusRequest struct {
	Status model.MatchStatus `json:"status"`
}

// ClaimSlotRequest is the request body for claiming a slot
type ClaimSlotRequest struct {
	DisplayName string `json:"display_name,omitempty"`
	Secret      string `json:"secret,omitempty"`
}

// AddUnitRequest is the request body for adding a unit to a roster
type AddUnitRequest = model.UnitInput

// ImportTeamRequest is the request body for importing a remote team
type ImportTeamRequest struct {
	Team string `json:"team"`
}

// SetKORequest is the request body for toggling a unit's KO flag.
// KO is a pointer so a missing field is an error rather than a revive.
type SetKORequest struct {
	KO *bool `json:"ko"`
}

// AttachRequest is the request body for attaching a unit to a carrier
type AttachRequest struct {
	Target model.UnitID `json:"target"`
	Kind   string       `json:"kind,omitempty"`
}
