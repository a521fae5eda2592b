package apierr

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mcoot/matchsync/internal/model"
)

// APIError represents an API error response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps an APIError
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// Common error codes
const (
	CodeInvalidRequest  = "INVALID_REQUEST"
	CodeNotFound        = "NOT_FOUND"
	CodeInvalidTarget   = "INVALID_TARGET"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeForbidden       = "FORBIDDEN"
	CodeConflict        = "CONFLICT"
	CodeUnavailable     = "STORE_UNAVAILABLE"
	CodeMatchNotFound   = "MATCH_NOT_FOUND"
	CodeUnitNotFound    = "UNIT_NOT_FOUND"
	CodeTeamNotFound    = "TEAM_NOT_FOUND"
	CodeNotHost         = "NOT_HOST"
	CodeInvalidSecret   = "INVALID_SECRET"
	CodeSlotTaken       = "SLOT_TAKEN"
	CodeAlreadySeated   = "ALREADY_SEATED"
	CodeNotSeated       = "NOT_SEATED"
	CodeSpectatorsRead  = "SPECTATORS_READ_ONLY"
	CodeUnitKnockedOut  = "UNIT_KNOCKED_OUT"
	CodeTimerRunning    = "TIMER_RUNNING"
	CodeTimerNotRunning = "TIMER_NOT_RUNNING"
	CodeTimerExhausted  = "TIMER_EXHAUSTED"
	CodeInternalError   = "INTERNAL_ERROR"
)

// httpError combines an HTTP status code with an APIError
type httpError struct {
	status   int
	apiError APIError
}

// Error implements error interface
func (e *httpError) Error() string {
	return e.apiError.Message
}

// Errors with a code of their own. Everything else is mapped by kind.
var specificCodes = []struct {
	err  error
	code string
}{
	{model.ErrMatchNotFound, CodeMatchNotFound},
	{model.ErrUnitNotFound, CodeUnitNotFound},
	{model.ErrTeamNotFound, CodeTeamNotFound},
	{model.ErrNotSeated, CodeNotSeated},
	{model.ErrNotHost, CodeNotHost},
	{model.ErrInvalidSecret, CodeInvalidSecret},
	{model.ErrSpectatorsRead, CodeSpectatorsRead},
	{model.ErrSlotTaken, CodeSlotTaken},
	{model.ErrAlreadySeated, CodeAlreadySeated},
	{model.ErrUnitKnockedOut, CodeUnitKnockedOut},
	{model.ErrTimerRunning, CodeTimerRunning},
	{model.ErrTimerNotRunning, CodeTimerNotRunning},
	{model.ErrTimerExhausted, CodeTimerExhausted},
}

// Status returns the HTTP status err is reported with
func Status(err error) int {
	return toHTTPError(err).status
}

// WriteError writes an error response to the response writer
func WriteError(w http.ResponseWriter, err error) {
	he := toHTTPError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(he.status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: he.apiError})
}

// toHTTPError converts an error to an httpError
func toHTTPError(err error) *httpError {
	var he *httpError
	if errors.As(err, &he) {
		return he
	}

	// Transient first: a wrapped driver error may also carry another kind
	if errors.Is(err, model.ErrTransientIO) {
		return &httpError{http.StatusServiceUnavailable, APIError{CodeUnavailable, "Store unavailable, retry later"}}
	}
	if errors.Is(err, model.ErrInvalidSession) {
		return &httpError{http.StatusUnauthorized, APIError{CodeUnauthorized, "Invalid or expired session"}}
	}

	status, code := kindStatus(err)
	if status == http.StatusInternalServerError {
		return &httpError{status, APIError{code, "Internal server error"}}
	}
	for _, sc := range specificCodes {
		if errors.Is(err, sc.err) {
			code = sc.code
			break
		}
	}
	return &httpError{status, APIError{code, err.Error()}}
}

func kindStatus(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, model.ErrInvalidTarget):
		return http.StatusUnprocessableEntity, CodeInvalidTarget
	case errors.Is(err, model.ErrUnauthorized):
		return http.StatusForbidden, CodeForbidden
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest, CodeInvalidRequest
	case errors.Is(err, model.ErrConflict):
		return http.StatusConflict, CodeConflict
	}
	return http.StatusInternalServerError, CodeInternalError
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) error {
	return &httpError{http.StatusBadRequest, APIError{CodeInvalidRequest, message}}
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError() error {
	return &httpError{http.StatusUnauthorized, APIError{CodeUnauthorized, "Authentication required"}}
}

// NewInternalError creates an internal server error
func NewInternalError() error {
	return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "Internal server error"}}
}

// KindOf maps a response code back to the error it was written for, so
// clients can branch with errors.Is. Unknown codes map to nil.
func KindOf(code string) error {
	for _, sc := range specificCodes {
		if sc.code == code {
			return sc.err
		}
	}
	switch code {
	case CodeUnavailable:
		return model.ErrTransientIO
	case CodeNotFound:
		return model.ErrNotFound
	case CodeInvalidTarget:
		return model.ErrInvalidTarget
	case CodeForbidden:
		return model.ErrUnauthorized
	case CodeUnauthorized:
		return model.ErrInvalidSession
	case CodeInvalidRequest:
		return model.ErrValidation
	case CodeConflict:
		return model.ErrConflict
	}
	return nil
}
