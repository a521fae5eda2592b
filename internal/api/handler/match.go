package handler

import (
	"net/http"

	"github.com/mcoot/matchsync/internal/api/middleware"
	"github.com/mcoot/matchsync/internal/api/request"
	"github.com/mcoot/matchsync/internal/api/response"
	"github.com/mcoot/matchsync/internal/dependencies/clock"
	"github.com/mcoot/matchsync/internal/services/match"
)

// MatchHandler handles match lifecycle and membership endpoints
type MatchHandler struct {
	matches match.ControllerInterface
	clock   clock.Clock
}

// NewMatchHandler creates a new match handler
func NewMatchHandler(matches match.ControllerInterface, clock clock.Clock) *MatchHandler {
	return &MatchHandler{
		matches: matches,
		clock:   clock,
	}
}

// Create handles POST /api/v1/matches
func (h *MatchHandler) Create(w http.ResponseWriter, r *http.Request) {
	participant := middleware.MustGetParticipant(r.Context())

	var req request.CreateMatchRequest
	if err := decode(r, &req, false); err != nil {
		WriteError(w, err)
		return
	}

	m, err := h.matches.CreateMatch(r.Context(), participant.ID, match.CreateRequest{
		Name:   req.Name,
		Public: req.Public,
		Secret: req.Secret,
	})
	if err != nil {
		WriteError(w, err)
		return
	}

	response.Created(w, response.MatchFromModel(m, h.clock.Now()))
}

// Get handles GET /api/v1/matches/{id}
func (h *MatchHandler) Get(w http.ResponseWriter, r *http.Request) {
	participant := middleware.MustGetParticipant(r.Context())

	snap, err := h.matches.Snapshot(r.Context(), matchID(r))
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.MatchStateFromSnapshot(snap, participant.ID, h.clock.Now()))
}

// Delete handles DELETE /api/v1/matches/{id}
func (h *MatchHandler) Delete(w http.ResponseWriter, r *http.Request) {
	participant := middleware.MustGetParticipant(r.Context())

	if err := h.matches.DeleteMatch(r.Context(), matchID(r), participant.ID); err != nil {
		WriteError(w, err)
		return
	}

	response.NoContent(w)
}

// SetStatus handles PATCH /api/v1/matches/{id}/status
func (h *MatchHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	participant := middleware.MustGetParticipant(r.Context())

	var req request.SetStatusRequest
	if err := decode(r, &req, false); err != nil {
		WriteError(w, err)
		return
	}

	m, err := h.matches.SetStatus(r.Context(), matchID(r), participant.ID, req.Status)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.MatchFromModel(m, h.clock.Now()))
}

// Repair handles POST /api/v1/matches/{id}/repair
func (h *MatchHandler) Repair(w http.ResponseWriter, r *http.Request) {
	participant := middleware.MustGetParticipant(r.Context())

	report, err := h.matches.Repair(r.Context(), matchID(r), participant.ID)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, report)
}

// Claim handles POST /api/v1/matches/{id}/slots/{slot}/claim
func (h *MatchHandler) Claim(w http.ResponseWriter, r *http.Request) {
	participant := middleware.MustGetParticipant(r.Context())
	slot, err := slotParam(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	var req request.ClaimSlotRequest
	if err := decode(r, &req, true); err != nil {
		WriteError(w, err)
		return
	}

	player, err := h.matches.ClaimSlot(r.Context(), matchID(r), slot, participant.ID, req.DisplayName, req.Secret)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, player)
}

// Leave handles POST /api/v1/matches/{id}/leave
func (h *MatchHandler) Leave(w http.ResponseWriter, r *http.Request) {
	participant := middleware.MustGetParticipant(r.Context())

	if err := h.matches.LeaveSlot(r.Context(), matchID(r), participant.ID); err != nil {
		WriteError(w, err)
		return
	}

	response.NoContent(w)
}

// Spectate handles POST /api/v1/matches/{id}/spectate
func (h *MatchHandler) Spectate(w http.ResponseWriter, r *http.Request) {
	participant := middleware.MustGetParticipant(r.Context())

	spectator, err := h.matches.Spectate(r.Context(), matchID(r), participant.ID)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, spectator)
}

// StopSpectating handles DELETE /api/v1/matches/{id}/spectate
func (h *MatchHandler) StopSpectating(w http.ResponseWriter, r *http.Request) {
	participant := middleware.MustGetParticipant(r.Context())

	if err := h.matches.LeaveSpectating(r.Context(), matchID(r), participant.ID); err != nil {
		WriteError(w, err)
		return
	}

	response.NoContent(w)
}
