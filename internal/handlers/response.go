package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"roshamble/internal/logger"
	"roshamble/internal/matchmaking"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, ErrorResponse{Error: message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		logger.Error("failed to marshal response", "error", err)
		code = http.StatusInternalServerError
		response = []byte(`{"error":"internal error"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// matchmakingErrors maps core errors onto HTTP statuses and stable codes.
var matchmakingErrors = []struct {
	err    error
	status int
	code   string
}{
	{matchmaking.ErrUnknownMode, http.StatusBadRequest, "unknown_mode"},
	{matchmaking.ErrAlreadyQueued, http.StatusConflict, "already_queued"},
	{matchmaking.ErrAlreadyInMatch, http.StatusConflict, "already_in_match"},
	{matchmaking.ErrNoShowCooldown, http.StatusTooManyRequests, "no_show_cooldown"},
	{matchmaking.ErrNotQueued, http.StatusNotFound, "not_queued"},
	{matchmaking.ErrMatchNotFound, http.StatusNotFound, "match_not_found"},
	{matchmaking.ErrWrongMatch, http.StatusConflict, "wrong_match"},
	{matchmaking.ErrMatchExpired, http.StatusGone, "match_expired"},
}

func respondWithMatchmakingError(w http.ResponseWriter, err error) {
	for _, m := range matchmakingErrors {
		if errors.Is(err, m.err) {
			respondWithJSON(w, m.status, ErrorResponse{Error: m.err.Error(), Code: m.code})
			return
		}
	}
	logger.Error("matchmaking request failed", "error", err)
	respondWithJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error", Code: "internal"})
}
