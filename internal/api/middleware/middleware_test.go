package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/matchsync/internal/api/apierr"
	"github.com/mcoot/matchsync/internal/model"
	"github.com/mcoot/matchsync/internal/services/auth"
	"github.com/mcoot/matchsync/internal/testutil"
)

type staticSessions map[string]*auth.Session

func (s staticSessions) ValidateSession(token string) (*auth.Session, error) {
	if session, ok := s[token]; ok {
		return session, nil
	}
	return nil, model.ErrInvalidSession
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apierr.APIError {
	t.Helper()
	var body apierr.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Error
}

func TestRecoveryWritesInternalError(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))

	r := mux.NewRouter()
	r.Use(Recovery(logger))
	r.HandleFunc("/matches/{id}", func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/matches/m-1", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, apierr.CodeInternalError, decodeError(t, rec).Code)
	assert.Contains(t, logs.String(), `"match_id":"m-1"`)
	assert.Contains(t, logs.String(), "panic recovered")
}

func TestLoggingRecordsStatus(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))

	r := mux.NewRouter()
	r.Use(Logging(logger))
	r.HandleFunc("/matches/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("hi"))
		// Streaming handlers need the flusher to survive wrapping
		_, ok := w.(http.Flusher)
		assert.True(t, ok)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/matches/m-9", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Contains(t, logs.String(), `"status":418`)
	assert.Contains(t, logs.String(), `"size":2`)
	assert.Contains(t, logs.String(), `"match_id":"m-9"`)
}

func TestAuth(t *testing.T) {
	session := &auth.Session{Token: "tok", Participant: model.Participant{ID: "p-1", DisplayName: "Alice"}}
	mw := Auth(staticSessions{"tok": session})

	var seen *model.Participant
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = MustGetParticipant(r.Context())
		assert.Same(t, session, GetSession(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		setup  func(r *http.Request)
		status int
	}{
		{"bearer header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer tok") }, http.StatusNoContent},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "session", Value: "tok"}) }, http.StatusNoContent},
		{"query string", func(r *http.Request) { r.URL.RawQuery = "token=tok" }, http.StatusNoContent},
		{"missing", func(*http.Request) {}, http.StatusUnauthorized},
		{"unknown token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusNoContent {
				require.NotNil(t, seen)
				assert.Equal(t, model.ParticipantID("p-1"), seen.ID)
			} else {
				assert.Nil(t, seen)
				assert.Equal(t, apierr.CodeUnauthorized, decodeError(t, rec).Code)
			}
		})
	}
}

func TestMustGetParticipantPanicsWithoutAuth(t *testing.T) {
	logger := testutil.NopLogger()
	handler := Recovery(logger)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		MustGetParticipant(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
