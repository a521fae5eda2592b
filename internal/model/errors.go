package model

import "errors"

// Error kinds. Every concrete error below wraps exactly one of these so
// callers can branch on the kind with errors.Is.
var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidTarget = errors.New("invalid attachment target")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrTransientIO   = errors.New("store unavailable")
	ErrValidation    = errors.New("invalid request")
	ErrConflict      = errors.New("conflict")
)

// Common errors used across the application
var (
	// Participant errors
	ErrParticipantNotFound = kinded(ErrNotFound, "participant not found")
	ErrInvalidSession      = kinded(ErrUnauthorized, "invalid session")

	// Match errors
	ErrMatchNotFound     = kinded(ErrNotFound, "match not found")
	ErrNotHost           = kinded(ErrUnauthorized, "participant is not the host")
	ErrNotParticipant    = kinded(ErrUnauthorized, "participant takes no part in this match")
	ErrInvalidSecret     = kinded(ErrUnauthorized, "match secret does not match")
	ErrSecretRequired    = kinded(ErrValidation, "private matches require a secret")
	ErrInvalidMatchName  = kinded(ErrValidation, "match name must not be empty")
	ErrInvalidStatus     = kinded(ErrValidation, "invalid match status")
	ErrSpectatorNotFound = kinded(ErrNotFound, "spectator not found")

	// Slot errors
	ErrInvalidSlot    = kinded(ErrValidation, "slot must be 1 or 2")
	ErrSlotNotFound   = kinded(ErrNotFound, "player slot not found")
	ErrSlotTaken      = kinded(ErrConflict, "slot is already claimed")
	ErrAlreadySeated  = kinded(ErrConflict, "participant already holds a slot")
	ErrNotSeated      = kinded(ErrNotFound, "participant does not hold a slot")
	ErrNotSlotOwner   = kinded(ErrUnauthorized, "slot belongs to another participant")
	ErrSpectatorsRead = kinded(ErrUnauthorized, "spectators may only read")
	ErrInvalidName    = kinded(ErrValidation, "display name must not be empty")

	// Unit errors
	ErrUnitNotFound   = kinded(ErrNotFound, "unit not found")
	ErrInvalidPoints  = kinded(ErrValidation, "unit points must be positive")
	ErrInvalidUnit    = kinded(ErrValidation, "unit name must not be empty")
	ErrTargetMissing  = kinded(ErrInvalidTarget, "attachment target does not exist")
	ErrTargetSlot     = kinded(ErrInvalidTarget, "attachment target belongs to another slot")
	ErrTargetAttached = kinded(ErrInvalidTarget, "attachment target is itself attached")
	ErrTargetSideline = kinded(ErrInvalidTarget, "attachment target is sidelined")
	ErrTargetSelf     = kinded(ErrInvalidTarget, "a unit cannot attach to itself")
	ErrUnitIsCarrier  = kinded(ErrInvalidTarget, "unit carries attachments and cannot be attached")
	ErrUnitKnockedOut = kinded(ErrInvalidTarget, "a knocked out unit cannot be attached or detached")

	// Timer errors
	ErrTimerRunning    = kinded(ErrConflict, "timer is already running")
	ErrTimerNotRunning = kinded(ErrConflict, "timer is not running")
	ErrTimerExhausted  = kinded(ErrConflict, "timer has no time remaining")

	// Import errors
	ErrTeamNotFound   = kinded(ErrNotFound, "remote team not found")
	ErrMalformedTeam  = kinded(ErrValidation, "remote team response is malformed")
	ErrInvalidTeamRef = kinded(ErrValidation, "team reference is not a team id or link")
)

type kindError struct {
	kind error
	msg  string
}

func kinded(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.kind }

// Transient marks err as a store failure that is safe to retry.
func Transient(err error) error {
	if err == nil || errors.Is(err, ErrTransientIO) {
		return err
	}
	return &transientError{err: err}
}

type transientError struct {
	err error
}

func (e *transientError) Error() string { return "store unavailable: " + e.err.Error() }

func (e *transientError) Unwrap() []error { return []error{ErrTransientIO, e.err} }
