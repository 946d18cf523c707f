// Package handlers provides HTTP handlers for the voice agent API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/axmen-recycling/voice-agent/internal/observability"
)

var errBadID = errors.New("invalid id")

// base carries what every handler needs to answer a request.
type base struct {
	logger *observability.Logger
}

func (b base) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		b.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

// writeError writes {error, message}. message is omitted when empty.
func (b base) writeError(w http.ResponseWriter, status int, errMsg, message string) {
	resp := map[string]string{"error": errMsg}
	if message != "" {
		resp["message"] = message
	}
	b.writeJSON(w, status, resp)
}

func (b base) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		b.writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return false
	}
	return true
}

func idParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, errBadID
	}
	return id, nil
}

// MethodNotAllowed answers unsupported methods on the voice endpoints.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusMethodNotAllowed)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":           "Method not allowed",
		"received_method": r.Method,
	})
}
