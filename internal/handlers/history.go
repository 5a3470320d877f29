package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"roshamble/internal/models"
)

// MatchArchive is the read side of the resolved-match archive.
type MatchArchive interface {
	ArchivedMatchesForPlayer(ctx context.Context, playerID string, limit int64) ([]models.Match, error)
}

type HistoryHandler struct {
	archive MatchArchive
}

func NewHistoryHandler(archive MatchArchive) *HistoryHandler {
	return &HistoryHandler{archive: archive}
}

type HistoryEntry struct {
	MatchID    string             `json:"matchId"`
	Mode       models.GameMode    `json:"mode"`
	Status     models.MatchStatus `json:"status"`
	Opponents  []string           `json:"opponents"`
	CreatedAt  time.Time          `json:"createdAt"`
	ResolvedAt *time.Time         `json:"resolvedAt,omitempty"`
}

// GetHistory returns the player's recently resolved matches.
// GET /matchmaking/history/{player_id}?limit=20
func (h *HistoryHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	player, ok := selfFromPath(w, r)
	if !ok {
		return
	}

	limit := int64(20)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 1 || n > 100 {
			respondWithError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	matches, err := h.archive.ArchivedMatchesForPlayer(ctx, player.ID, limit)
	if err != nil {
		respondWithMatchmakingError(w, err)
		return
	}

	entries := make([]HistoryEntry, 0, len(matches))
	for i := range matches {
		m := &matches[i]
		entries = append(entries, HistoryEntry{
			MatchID:    m.ID,
			Mode:       m.Mode,
			Status:     m.Status,
			Opponents:  m.Opponents(player.ID),
			CreatedAt:  m.CreatedAt,
			ResolvedAt: m.ResolvedAt,
		})
	}
	respondWithJSON(w, http.StatusOK, entries)
}
