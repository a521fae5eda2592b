package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/matchsync/internal/model"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"match not found", model.ErrMatchNotFound, http.StatusNotFound, CodeMatchNotFound},
		{"slot row not found", model.ErrSlotNotFound, http.StatusNotFound, CodeNotFound},
		{"wrapped not found", fmt.Errorf("loading: %w", model.ErrUnitNotFound), http.StatusNotFound, CodeUnitNotFound},
		{"invalid target", model.ErrTargetSideline, http.StatusUnprocessableEntity, CodeInvalidTarget},
		{"knocked out unit", model.ErrUnitKnockedOut, http.StatusUnprocessableEntity, CodeUnitKnockedOut},
		{"not host", model.ErrNotHost, http.StatusForbidden, CodeNotHost},
		{"opponent slot", model.ErrNotSlotOwner, http.StatusForbidden, CodeForbidden},
		{"spectator write", model.ErrSpectatorsRead, http.StatusForbidden, CodeSpectatorsRead},
		{"bad session", model.ErrInvalidSession, http.StatusUnauthorized, CodeUnauthorized},
		{"validation", model.ErrInvalidPoints, http.StatusBadRequest, CodeInvalidRequest},
		{"slot taken", model.ErrSlotTaken, http.StatusConflict, CodeSlotTaken},
		{"timer running", model.ErrTimerRunning, http.StatusConflict, CodeTimerRunning},
		{"transient", model.Transient(errors.New("dial tcp: refused")), http.StatusServiceUnavailable, CodeUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, CodeInternalError},
		{"explicit", NewInvalidRequestError("slot must be a number"), http.StatusBadRequest, CodeInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, tt.err)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			var body ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.code, body.Error.Code)
			assert.NotEmpty(t, body.Error.Message)
		})
	}
}

func TestInternalErrorsHideDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, errors.New("pq: password authentication failed"))

	assert.NotContains(t, rec.Body.String(), "password")
}

func TestKindOf(t *testing.T) {
	assert.ErrorIs(t, KindOf(CodeTimerNotRunning), model.ErrTimerNotRunning)
	assert.ErrorIs(t, KindOf(CodeTimerNotRunning), model.ErrConflict)
	assert.ErrorIs(t, KindOf(CodeUnavailable), model.ErrTransientIO)
	assert.ErrorIs(t, KindOf(CodeForbidden), model.ErrUnauthorized)
	assert.NoError(t, KindOf("SOMETHING_ELSE"))
}
