package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/mcoot/matchsync/internal/api/apierr"
	"github.com/mcoot/matchsync/internal/model"
)

// WriteError writes an error response to the response writer
func WriteError(w http.ResponseWriter, err error) {
	apierr.WriteError(w, err)
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) error {
	return apierr.NewInvalidRequestError(message)
}

// decode reads a JSON body into dst. An empty body leaves dst untouched
// when optional is set.
func decode(r *http.Request, dst any, optional bool) error {
	if r.Body == nil || r.ContentLength == 0 && optional {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return NewInvalidRequestError("invalid request body")
	}
	return nil
}

func matchID(r *http.Request) model.MatchID {
	return model.MatchID(mux.Vars(r)["id"])
}

func unitID(r *http.Request) model.UnitID {
	return model.UnitID(mux.Vars(r)["unit"])
}

func slotParam(r *http.Request) (model.Slot, error) {
	n, err := strconv.Atoi(mux.Vars(r)["slot"])
	if err != nil {
		return 0, NewInvalidRequestError("slot must be 1 or 2")
	}
	slot := model.Slot(n)
	if !slot.Valid() {
		return 0, model.ErrInvalidSlot
	}
	return slot, nil
}
