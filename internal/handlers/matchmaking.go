package handlers

import (
	"net/http"
	"time"

	"roshamble/internal/logger"
	"roshamble/internal/matchmaking"
	"roshamble/internal/middleware"
	"roshamble/internal/models"
	"roshamble/internal/utils"

	"github.com/gorilla/mux"
)

type MatchmakingHandler struct {
	svc *matchmaking.Service
}

func NewMatchmakingHandler(svc *matchmaking.Service) *MatchmakingHandler {
	return &MatchmakingHandler{svc: svc}
}

// WaitStateResponse is what the waiting page renders after a successful enqueue.
type WaitStateResponse struct {
	Mode       models.GameMode `json:"mode"`
	Title      string          `json:"title"`
	PlayerID   string          `json:"playerId"`
	Status     string          `json:"status"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
	Queued     int             `json:"queued"`
}

type CountResponse struct {
	Mode  models.GameMode `json:"mode"`
	Count int             `json:"count"`
}

type QueueEntryResponse struct {
	PlayerID     string    `json:"playerId"`
	Username     string    `json:"username"`
	SkillRating  int       `json:"skillRating"`
	WaitingSince time.Time `json:"waitingSince"`
}

type QueueResponse struct {
	Mode    models.GameMode      `json:"mode"`
	Entries []QueueEntryResponse `json:"entries"`
}

// modeFromPath parses {mode}, writing a 400 when it is not a known mode.
func modeFromPath(w http.ResponseWriter, r *http.Request) (models.GameMode, bool) {
	mode, ok := models.ParseGameMode(mux.Vars(r)["mode"])
	if !ok {
		respondWithMatchmakingError(w, matchmaking.ErrUnknownMode)
		return "", false
	}
	return mode, true
}

// selfFromPath returns the authenticated player, insisting that it is the
// player named by {player_id}.
func selfFromPath(w http.ResponseWriter, r *http.Request) (*models.PlayerIdentity, bool) {
	player, ok := middleware.GetPlayerFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Authorization required")
		return nil, false
	}
	if mux.Vars(r)["player_id"] != player.ID {
		respondWithError(w, http.StatusForbidden, "Cannot act on behalf of another player")
		return nil, false
	}
	return player, true
}

// Enqueue puts the authenticated player into the mode's queue
func (h *MatchmakingHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	mode, ok := modeFromPath(w, r)
	if !ok {
		return
	}
	player, ok := selfFromPath(w, r)
	if !ok {
		return
	}

	entry, err := h.svc.Enqueue(mode, *player)
	if err != nil {
		respondWithMatchmakingError(w, err)
		return
	}

	logger.Debug("player enqueued", "player_id", player.ID, "mode", string(mode), "skill", player.SkillRating)

	respondWithJSON(w, http.StatusOK, WaitStateResponse{
		Mode:       mode,
		Title:      mode.Title(),
		PlayerID:   player.ID,
		Status:     "waiting",
		EnqueuedAt: entry.EnqueuedAt,
		Queued:     h.svc.Count(mode),
	})
}

// Cancel takes the authenticated player out of the mode's queue
func (h *MatchmakingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	mode, ok := modeFromPath(w, r)
	if !ok {
		return
	}
	player, ok := selfFromPath(w, r)
	if !ok {
		return
	}

	if err := h.svc.Cancel(player.ID, mode); err != nil {
		respondWithMatchmakingError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"status": "left", "mode": string(mode)})
}

// Poll reports whether the player's match is found, ready or expired
func (h *MatchmakingHandler) Poll(w http.ResponseWriter, r *http.Request) {
	player, ok := selfFromPath(w, r)
	if !ok {
		return
	}

	result, err := h.svc.Poll(player.ID)
	if err != nil {
		respondWithMatchmakingError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

// Acknowledge confirms the ready-check for a found match
func (h *MatchmakingHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	player, ok := selfFromPath(w, r)
	if !ok {
		return
	}
	matchID := mux.Vars(r)["match_id"]

	if err := h.svc.Acknowledge(player.ID, matchID); err != nil {
		respondWithMatchmakingError(w, err)
		return
	}

	// Report the post-acknowledgement state so the client need not poll again.
	result, err := h.svc.Poll(player.ID)
	if err != nil {
		respondWithMatchmakingError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

// Count returns the presence count shown on the mode's lobby
func (h *MatchmakingHandler) Count(w http.ResponseWriter, r *http.Request) {
	mode, ok := modeFromPath(w, r)
	if !ok {
		return
	}
	respondWithJSON(w, http.StatusOK, CountResponse{Mode: mode, Count: h.svc.Count(mode)})
}

// Queue lists the players waiting in a mode, oldest first
func (h *MatchmakingHandler) Queue(w http.ResponseWriter, r *http.Request) {
	mode, ok := modeFromPath(w, r)
	if !ok {
		return
	}

	snapshot := h.svc.Snapshot(mode)
	entries := make([]QueueEntryResponse, 0, len(snapshot))
	for _, e := range snapshot {
		entries = append(entries, QueueEntryResponse{
			PlayerID:     e.Player.ID,
			Username:     utils.DisplayName(e.Player.Username, e.Player.ID),
			SkillRating:  e.Player.SkillRating,
			WaitingSince: e.EnqueuedAt,
		})
	}
	respondWithJSON(w, http.StatusOK, QueueResponse{Mode: mode, Entries: entries})
}

func Health(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
