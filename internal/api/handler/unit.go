package handler

import (
	"net/http"

	"github.com/mcoot/matchsync/internal/api/middleware"
	"github.com/mcoot/matchsync/internal/api/request"
	"github.com/mcoot/matchsync/internal/api/response"
	"github.com/mcoot/matchsync/internal/services/roster"
)

// UnitHandler handles roster endpoints
type UnitHandler struct {
	roster roster.ControllerInterface
}

// NewUnitHandler creates a new unit handler
func NewUnitHandler(roster roster.ControllerInterface) *UnitHandler {
	return &UnitHandler{
		roster: roster,
	}
}

// Add handles POST /api/v1/matches/{id}/slots/{slot}/units
func (h *UnitHandler) Add(w http.ResponseWriter, r *http.Request) {
	participant := middleware.MustGetParticipant(r.Context())
	slot, err := slotParam(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	var req request.AddUnitRequest
	if err := decode(r, &req, false); err != nil {
		WriteError(w, err)
		return
	}

	unit, err := h.roster.AddUnit(r.Context(), matchID(r), participant.ID, slot, req)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.Created(w, unit)
}

// Import handles POST /api/v1/matches/{id}/slots/{slot}/import
func (h *UnitHandler) Import(w http.ResponseWriter, r *http.Request) {
	participant := middleware.MustGetParticipant(r.Context())
	slot, err := slotParam(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	var req request.ImportTeamRequest
	if err := decode(r, &req, false); err != nil {
		WriteError(w, err)
		return
	}
	if req.Team == "" {
		WriteError(w, NewInvalidRequestError("team is required"))
		return
	}

	result, err := h.roster.ImportTeam(r.Context(), matchID(r), participant.ID, slot, req.Team)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.Created(w, result)
}

// List handles GET /api/v1/matches/{id}/slots/{slot}/units
func (h *UnitHandler) List(w http.ResponseWriter, r *http.Request) {
	slot, err := slotParam(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	units, err := h.roster.ListUnits(r.Context(), matchID(r), slot)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.UnitsFrom(units))
}

// SetKO handles POST /api/v1/matches/{id}/units/{unit}/ko
func (h *UnitHandler) SetKO(w http.ResponseWriter, r *http.Request) {
	participant := middleware.MustGetParticipant(r.Context())

	var req request.SetKORequest
	if err := decode(r, &req, false); err != nil {
		WriteError(w, err)
		return
	}
	if req.KO == nil {
		WriteError(w, NewInvalidRequestError("ko is required"))
		return
	}

	result, err := h.roster.SetKO(r.Context(), matchID(r), participant.ID, unitID(r), *req.KO)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, result)
}

// Attach handles POST /api/v1/matches/{id}/units/{unit}/attach
func (h *UnitHandler) Attach(w http.ResponseWriter, r *http.Request) {
	participant := middleware.MustGetParticipant(r.Context())

	var req request.AttachRequest
	if err := decode(r, &req, false); err != nil {
		WriteError(w, err)
		return
	}
	if req.Target == "" {
		WriteError(w, NewInvalidRequestError("target is required"))
		return
	}

	unit, err := h.roster.Attach(r.Context(), matchID(r), participant.ID, unitID(r), req.Target, req.Kind)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, unit)
}

// Detach handles POST /api/v1/matches/{id}/units/{unit}/detach
func (h *UnitHandler) Detach(w http.ResponseWriter, r *http.Request) {
	participant := middleware.MustGetParticipant(r.Context())

	unit, err := h.roster.Detach(r.Context(), matchID(r), participant.ID, unitID(r))
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, unit)
}
