package model

import (
	"strings"
	"time"
)

// UnitID identifies a unit
type UnitID string

// Common attachment kinds. The kind is a free-form tag; these are the
// values the roster screens offer.
const (
	AttachmentEquipment = "Equipment"
	AttachmentAvatar    = "Avatar"
	AttachmentOther     = "Other"
)

// Unit is one figure on a player's roster
type Unit struct {
	ID             UnitID    `json:"id"`
	MatchID        MatchID   `json:"match_id"`
	Slot           Slot      `json:"slot"`
	Collection     string    `json:"collection"`
	Number         string    `json:"number"`
	Name           string    `json:"name"`
	Points         int       `json:"points"`
	IsKO           bool      `json:"is_ko"`
	IsSideline     bool      `json:"is_sideline"`
	AttachedTo     *UnitID   `json:"attached_to"`
	AttachmentKind string    `json:"attachment_kind"`
	Version        int64     `json:"version"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// IsAttached reports whether the unit rides on another unit
func (u *Unit) IsAttached() bool {
	return u.AttachedTo != nil && *u.AttachedTo != ""
}

// Scores reports whether the unit counts towards either ledger:
// sidelined and attached units never do.
func (u *Unit) Scores() bool {
	return !u.IsSideline && !u.IsAttached()
}

// UnitInput is the data needed to add a unit to a roster
type UnitInput struct {
	Collection     string  `json:"collection"`
	Number         string  `json:"number"`
	Name           string  `json:"name"`
	Points         int     `json:"points"`
	IsSideline     bool    `json:"is_sideline"`
	AttachedTo     *UnitID `json:"attached_to,omitempty"`
	AttachmentKind string  `json:"attachment_kind,omitempty"`
}

// Validate checks the fields that make a unit well-formed
func (in UnitInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return ErrInvalidUnit
	}
	if in.Points <= 0 {
		return ErrInvalidPoints
	}
	return nil
}

// ImportedTeam is a roster fetched from the team import service
type ImportedTeam struct {
	Name  string      `json:"name"`
	Units []UnitInput `json:"units"`
}
