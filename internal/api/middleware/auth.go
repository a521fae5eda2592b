package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/mcoot/matchsync/internal/api/apierr"
	"github.com/mcoot/matchsync/internal/model"
	"github.com/mcoot/matchsync/internal/services/auth"
)

type contextKey string

const (
	participantContextKey contextKey = "participant"
	sessionContextKey     contextKey = "session"
)

// SessionValidator resolves a session token
type SessionValidator interface {
	ValidateSession(token string) (*auth.Session, error)
}

// Auth creates authentication middleware
func Auth(sessions SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				apierr.WriteError(w, apierr.NewUnauthorizedError())
				return
			}

			session, err := sessions.ValidateSession(token)
			if err != nil {
				apierr.WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(withSession(r.Context(), session)))
		})
	}
}

func withSession(ctx context.Context, session *auth.Session) context.Context {
	ctx = context.WithValue(ctx, sessionContextKey, session)
	return context.WithValue(ctx, participantContextKey, &session.Participant)
}

// extractToken extracts the session token from the request. EventSource and
// browser WebSocket clients cannot set headers, so the query string is
// accepted as a last resort.
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	if cookie, err := r.Cookie("session"); err == nil {
		return cookie.Value
	}

	return r.URL.Query().Get("token")
}

// GetParticipant returns the authenticated participant from the request context
func GetParticipant(ctx context.Context) *model.Participant {
	participant, _ := ctx.Value(participantContextKey).(*model.Participant)
	return participant
}

// GetSession returns the session from the request context
func GetSession(ctx context.Context) *auth.Session {
	session, _ := ctx.Value(sessionContextKey).(*auth.Session)
	return session
}

// MustGetParticipant returns the authenticated participant or panics
func MustGetParticipant(ctx context.Context) *model.Participant {
	participant := GetParticipant(ctx)
	if participant == nil {
		panic("no participant in context - auth middleware not applied?")
	}
	return participant
}
