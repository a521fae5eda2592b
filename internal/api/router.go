package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/matchsync/internal/api/handler"
	"github.com/mcoot/matchsync/internal/api/middleware"
	"github.com/mcoot/matchsync/internal/api/response"
	"github.com/mcoot/matchsync/internal/dependencies/clock"
	"github.com/mcoot/matchsync/internal/services/auth"
	"github.com/mcoot/matchsync/internal/services/match"
	"github.com/mcoot/matchsync/internal/services/roster"
	"github.com/mcoot/matchsync/internal/services/timer"
)

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger           *slog.Logger
	Clock            clock.Clock
	AuthService      *auth.Service
	MatchController  match.ControllerInterface
	RosterController roster.ControllerInterface
	TimerController  timer.ControllerInterface
	Feed             handler.Subscriber
}

// NewRouter creates a new API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	// Create handlers
	participantHandler := handler.NewParticipantHandler(cfg.AuthService)
	matchHandler := handler.NewMatchHandler(cfg.MatchController, cfg.Clock)
	unitHandler := handler.NewUnitHandler(cfg.RosterController)
	timerHandler := handler.NewTimerHandler(cfg.TimerController, cfg.Clock)
	feedHandler := handler.NewFeedHandler(cfg.MatchController, cfg.Feed, cfg.Logger)

	// Create middleware
	authMiddleware := middleware.Auth(cfg.AuthService)
	loggingMiddleware := middleware.Logging(cfg.Logger)
	recoveryMiddleware := middleware.Recovery(cfg.Logger)

	// API subrouter with common middleware
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(recoveryMiddleware)
	api.Use(loggingMiddleware)

	// Identity issuance needs no session
	api.HandleFunc("/participants/guest", participantHandler.CreateGuest).Methods(http.MethodPost)

	participants := api.PathPrefix("/participants").Subrouter()
	participants.Use(authMiddleware)
	participants.HandleFunc("/me", participantHandler.GetMe).Methods(http.MethodGet)
	participants.HandleFunc("/logout", participantHandler.Logout).Methods(http.MethodPost)

	// Match routes (all require auth)
	matches := api.PathPrefix("/matches").Subrouter()
	matches.Use(authMiddleware)
	matches.HandleFunc("", matchHandler.Create).Methods(http.MethodPost)
	matches.HandleFunc("/{id}", matchHandler.Get).Methods(http.MethodGet)
	matches.HandleFunc("/{id}", matchHandler.Delete).Methods(http.MethodDelete)
	matches.HandleFunc("/{id}/status", matchHandler.SetStatus).Methods(http.MethodPatch)
	matches.HandleFunc("/{id}/repair", matchHandler.Repair).Methods(http.MethodPost)
	matches.HandleFunc("/{id}/slots/{slot}/claim", matchHandler.Claim).Methods(http.MethodPost)
	matches.HandleFunc("/{id}/leave", matchHandler.Leave).Methods(http.MethodPost)
	matches.HandleFunc("/{id}/spectate", matchHandler.Spectate).Methods(http.MethodPost)
	matches.HandleFunc("/{id}/spectate", matchHandler.StopSpectating).Methods(http.MethodDelete)

	// Roster routes
	matches.HandleFunc("/{id}/slots/{slot}/units", unitHandler.Add).Methods(http.MethodPost)
	matches.HandleFunc("/{id}/slots/{slot}/units", unitHandler.List).Methods(http.MethodGet)
	matches.HandleFunc("/{id}/slots/{slot}/import", unitHandler.Import).Methods(http.MethodPost)
	matches.HandleFunc("/{id}/units/{unit}/ko", unitHandler.SetKO).Methods(http.MethodPost)
	matches.HandleFunc("/{id}/units/{unit}/attach", unitHandler.Attach).Methods(http.MethodPost)
	matches.HandleFunc("/{id}/units/{unit}/detach", unitHandler.Detach).Methods(http.MethodPost)

	// Timer routes
	matches.HandleFunc("/{id}/timer", timerHandler.Get).Methods(http.MethodGet)
	matches.HandleFunc("/{id}/timer/start", timerHandler.Start).Methods(http.MethodPost)
	matches.HandleFunc("/{id}/timer/pause", timerHandler.Pause).Methods(http.MethodPost)
	matches.HandleFunc("/{id}/timer/reset", timerHandler.Reset).Methods(http.MethodPost)

	// Change feed
	matches.HandleFunc("/{id}/events", feedHandler.Events).Methods(http.MethodGet)
	matches.HandleFunc("/{id}/ws", feedHandler.WebSocket).Methods(http.MethodGet)

	// Health check endpoint (no auth)
	api.HandleFunc("/health", healthHandler).Methods(http.MethodGet)

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, response.Health{Status: "ok"})
}
