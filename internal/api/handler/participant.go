package handler

import (
	"net/http"
	"strings"

	"github.com/mcoot/matchsync/internal/api/middleware"
	"github.com/mcoot/matchsync/internal/api/request"
	"github.com/mcoot/matchsync/internal/api/response"
	"github.com/mcoot/matchsync/internal/services/auth"
)

// ParticipantHandler handles identity endpoints
type ParticipantHandler struct {
	authService *auth.Service
}

// NewParticipantHandler creates a new participant handler
func NewParticipantHandler(authService *auth.Service) *ParticipantHandler {
	return &ParticipantHandler{
		authService: authService,
	}
}

// CreateGuest handles POST /api/v1/participants/guest
func (h *ParticipantHandler) CreateGuest(w http.ResponseWriter, r *http.Request) {
	var req request.CreateGuestRequest
	if err := decode(r, &req, false); err != nil {
		WriteError(w, err)
		return
	}

	if strings.TrimSpace(req.DisplayName) == "" {
		WriteError(w, NewInvalidRequestError("display_name is required"))
		return
	}

	session, err := h.authService.CreateGuest(r.Context(), req.DisplayName)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.Created(w, response.AuthResponseFromSession(session))
}

// GetMe handles GET /api/v1/participants/me
func (h *ParticipantHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	participant := middleware.MustGetParticipant(r.Context())
	response.JSON(w, http.StatusOK, participant)
}

// Logout handles POST /api/v1/participants/logout
func (h *ParticipantHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if session := middleware.GetSession(r.Context()); session != nil {
		h.authService.InvalidateSession(session.Token)
	}
	response.NoContent(w)
}
