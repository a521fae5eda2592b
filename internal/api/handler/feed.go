package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mcoot/matchsync/internal/api/middleware"
	"github.com/mcoot/matchsync/internal/feed"
	"github.com/mcoot/matchsync/internal/model"
	"github.com/mcoot/matchsync/internal/services/match"
)

// Subscriber joins a match's change feed
type Subscriber interface {
	Subscribe(matchID model.MatchID, participantID model.ParticipantID) *feed.Subscription
}

// FeedHandler streams match changes over SSE and WebSocket
type FeedHandler struct {
	matches match.ControllerInterface
	hubs    Subscriber
	logger  *slog.Logger
}

// NewFeedHandler creates a new feed handler
func NewFeedHandler(matches match.ControllerInterface, hubs Subscriber, logger *slog.Logger) *FeedHandler {
	return &FeedHandler{
		matches: matches,
		hubs:    hubs,
		logger:  logger.With(slog.String("component", "feed_handler")),
	}
}

// Events handles GET /api/v1/matches/{id}/events
func (h *FeedHandler) Events(w http.ResponseWriter, r *http.Request) {
	sub, load, ok := h.open(w, r)
	if !ok {
		return
	}
	defer sub.Close()
	feed.ServeSSE(w, r, sub, load, h.logger)
}

// WebSocket handles GET /api/v1/matches/{id}/ws
func (h *FeedHandler) WebSocket(w http.ResponseWriter, r *http.Request) {
	sub, load, ok := h.open(w, r)
	if !ok {
		return
	}
	defer sub.Close()
	feed.ServeWS(w, r, sub, load, h.logger)
}

// open registers an observer who is neither player nor spectator as a
// spectator, then subscribes before the first snapshot is read so no
// change falls between the two.
func (h *FeedHandler) open(w http.ResponseWriter, r *http.Request) (*feed.Subscription, feed.SnapshotLoader, bool) {
	participant := middleware.MustGetParticipant(r.Context())
	id := matchID(r)

	role, _, err := h.matches.Role(r.Context(), id, participant.ID)
	if err != nil {
		WriteError(w, err)
		return nil, nil, false
	}
	if role == model.RoleNone {
		if _, err := h.matches.Spectate(r.Context(), id, participant.ID); err != nil && !errors.Is(err, model.ErrAlreadySeated) {
			WriteError(w, err)
			return nil, nil, false
		}
	}

	sub := h.hubs.Subscribe(id, participant.ID)
	load := func(ctx context.Context) (*model.Snapshot, error) {
		return h.matches.Snapshot(ctx, id)
	}
	return sub, load, true
}
