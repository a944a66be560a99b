package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/YadneshTeli/TaskForge-sub000/logging"
	"github.com/YadneshTeli/TaskForge-sub000/middleware"
	"github.com/YadneshTeli/TaskForge-sub000/services"
)

type errorBody struct {
	Error  string                `json:"error"`
	Fields []services.FieldError `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Logger.Errorf("Event ID: RESPONSE_ENCODE_FAILED, Description: %v", err)
	}
}

// writeError maps the service error taxonomy onto HTTP status codes.
// Database errors are logged and answered with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve *services.ValidationError
		nf *services.NotFoundError
		pe *services.PermissionError
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation failed", Fields: ve.Fields})
	case errors.As(err, &nf):
		writeJSON(w, http.StatusNotFound, errorBody{Error: nf.Error()})
	case errors.As(err, &pe):
		logging.Logger.Warnf("Event ID: ACCESS_DENIED, Description: %s %s: %v", r.Method, r.URL.Path, err)
		writeJSON(w, http.StatusForbidden, errorBody{Error: pe.Error()})
	default:
		cause := err
		var de *services.DatabaseError
		if errors.As(err, &de) && de.Err != nil {
			cause = de.Err
		}
		logging.Logger.Errorf("Event ID: REQUEST_FAILED, Description: %s %s: %v", r.Method, r.URL.Path, cause)
		if de == nil {
			err = &services.DatabaseError{Op: "request", Err: err}
		}
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
	}
}

func badRequest(w http.ResponseWriter, field, message string) {
	writeJSON(w, http.StatusBadRequest, errorBody{
		Error:  "validation failed",
		Fields: []services.FieldError{{Field: field, Message: message}},
	})
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, "body", fmt.Sprintf("invalid request payload: %v", err))
		return false
	}
	return true
}

// actor returns the authenticated caller. Routes are mounted behind
// middleware.JWTAuth, so a missing actor is a wiring error.
func actor(w http.ResponseWriter, r *http.Request) (services.Actor, bool) {
	a, ok := middleware.ActorFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	}
	return a, ok
}

func queryInt(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		badRequest(w, name, "must be an integer")
		return 0, false
	}
	return n, true
}

func queryBool(r *http.Request, name string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return b
}

func queryTime(w http.ResponseWriter, r *http.Request, name string, required bool) (*time.Time, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		if required {
			badRequest(w, name, "is required")
			return nil, false
		}
		return nil, true
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		badRequest(w, name, "must be an RFC 3339 timestamp")
		return nil, false
	}
	return &t, true
}
