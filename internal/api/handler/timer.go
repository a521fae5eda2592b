package handler

import (
	"context"
	"net/http"

	"github.com/mcoot/matchsync/internal/api/middleware"
	"github.com/mcoot/matchsync/internal/api/response"
	"github.com/mcoot/matchsync/internal/dependencies/clock"
	"github.com/mcoot/matchsync/internal/model"
	"github.com/mcoot/matchsync/internal/services/timer"
)

// TimerHandler handles match clock endpoints
type TimerHandler struct {
	timer timer.ControllerInterface
	clock clock.Clock
}

// NewTimerHandler creates a new timer handler
func NewTimerHandler(timer timer.ControllerInterface, clock clock.Clock) *TimerHandler {
	return &TimerHandler{
		timer: timer,
		clock: clock,
	}
}

type timerAction func(ctx context.Context, matchID model.MatchID, caller model.ParticipantID) (*model.Match, error)

// run answers with the written match row so the caller can merge its own
// write before the feed echoes it
func (h *TimerHandler) run(action timerAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		participant := middleware.MustGetParticipant(r.Context())

		m, err := action(r.Context(), matchID(r), participant.ID)
		if err != nil {
			WriteError(w, err)
			return
		}
		response.JSON(w, http.StatusOK, response.MatchFromModel(m, h.clock.Now()))
	}
}

// Start handles POST /api/v1/matches/{id}/timer/start
func (h *TimerHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.run(h.timer.Start)(w, r)
}

// Pause handles POST /api/v1/matches/{id}/timer/pause
func (h *TimerHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.run(h.timer.Pause)(w, r)
}

// Reset handles POST /api/v1/matches/{id}/timer/reset
func (h *TimerHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.run(h.timer.Reset)(w, r)
}

// Get handles GET /api/v1/matches/{id}/timer
func (h *TimerHandler) Get(w http.ResponseWriter, r *http.Request) {
	status, err := h.timer.Get(r.Context(), matchID(r))
	if err != nil {
		WriteError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, status)
}
