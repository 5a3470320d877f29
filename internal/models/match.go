package models

import (
	"strings"
	"time"
)

type GameMode string

const (
	GameModeRanked     GameMode = "ranked"
	GameModeCasual     GameMode = "casual"
	GameModeTournament GameMode = "tournament"
)

// AllGameModes lists every mode the service runs a pool for.
var AllGameModes = []GameMode{GameModeRanked, GameModeCasual, GameModeTournament}

// ParseGameMode maps a path segment onto a GameMode. The second return is
// false for anything that is not a known mode.
func ParseGameMode(s string) (GameMode, bool) {
	mode := GameMode(strings.ToLower(strings.TrimSpace(s)))
	switch mode {
	case GameModeRanked, GameModeCasual, GameModeTournament:
		return mode, true
	}
	return "", false
}

// SkillBased reports whether pairing in this mode is constrained by skill rating.
func (m GameMode) SkillBased() bool {
	return m == GameModeRanked || m == GameModeTournament
}

// Title is the display name used by the waiting page.
func (m GameMode) Title() string {
	switch m {
	case GameModeRanked:
		return "Ranked"
	case GameModeCasual:
		return "Casual"
	case GameModeTournament:
		return "Tournament"
	}
	return string(m)
}

// PlayerIdentity is what the identity provider hands us for an authenticated request.
type PlayerIdentity struct {
	ID          string `json:"id" bson:"id"`
	Username    string `json:"username,omitempty" bson:"username,omitempty"`
	SkillRating int    `json:"skillRating" bson:"skillRating"`
}

type QueueEntry struct {
	Player     PlayerIdentity `json:"player" bson:"player"`
	Mode       GameMode       `json:"mode" bson:"mode"`
	EnqueuedAt time.Time      `json:"enqueuedAt" bson:"enqueuedAt"`
}

// WaitTime returns how long the entry has been waiting at the given instant.
func (e QueueEntry) WaitTime(now time.Time) time.Duration {
	if now.Before(e.EnqueuedAt) {
		return 0
	}
	return now.Sub(e.EnqueuedAt)
}

type MatchStatus string

const (
	MatchStatusPending MatchStatus = "pending" // Waiting on ready-check acknowledgements
	MatchStatusReady   MatchStatus = "ready"   // Every player acknowledged
	MatchStatusExpired MatchStatus = "expired" // Ready-check timed out
)

// Terminal reports whether no further transitions are possible.
func (s MatchStatus) Terminal() bool {
	return s == MatchStatusReady || s == MatchStatusExpired
}

type Match struct {
	ID            string           `json:"matchId" bson:"_id"`
	Mode          GameMode         `json:"mode" bson:"mode"`
	Players       []PlayerIdentity `json:"players" bson:"players"`
	Status        MatchStatus      `json:"status" bson:"status"`
	Tolerance     int              `json:"tolerance" bson:"tolerance"` // skill window in effect at formation, 0 for casual
	Acknowledged  []string         `json:"acknowledged" bson:"acknowledged"`
	CreatedAt     time.Time        `json:"createdAt" bson:"createdAt"`
	ReadyDeadline time.Time        `json:"readyDeadline" bson:"readyDeadline"`
	ResolvedAt    *time.Time       `json:"resolvedAt,omitempty" bson:"resolvedAt,omitempty"`

	// Queue entries the players were matched from, kept so acknowledging
	// players can be re-enqueued at their original position.
	Entries []QueueEntry `json:"entries,omitempty" bson:"entries"`
}

// HasPlayer reports whether playerID belongs to the match.
func (m *Match) HasPlayer(playerID string) bool {
	for _, p := range m.Players {
		if p.ID == playerID {
			return true
		}
	}
	return false
}

// HasAcknowledged reports whether playerID already confirmed the ready-check.
func (m *Match) HasAcknowledged(playerID string) bool {
	for _, id := range m.Acknowledged {
		if id == playerID {
			return true
		}
	}
	return false
}

// Opponents returns the ids of every other player in the match.
func (m *Match) Opponents(playerID string) []string {
	ids := make([]string, 0, len(m.Players)-1)
	for _, p := range m.Players {
		if p.ID != playerID {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// Clone returns a deep copy safe to hand out of the tracker's lock.
func (m *Match) Clone() *Match {
	c := *m
	c.Players = append([]PlayerIdentity(nil), m.Players...)
	c.Acknowledged = append([]string(nil), m.Acknowledged...)
	c.Entries = append([]QueueEntry(nil), m.Entries...)
	if m.ResolvedAt != nil {
		t := *m.ResolvedAt
		c.ResolvedAt = &t
	}
	return &c
}

type PollState string

const (
	PollStateWaiting        PollState = "waiting"
	PollStateFound          PollState = "found"
	PollStateReadyConfirmed PollState = "ready_confirmed"
	PollStateExpired        PollState = "expired"
)

// PollResult is what a polling client sees for its player.
type PollResult struct {
	State         PollState  `json:"state"`
	Mode          GameMode   `json:"mode,omitempty"`
	MatchID       string     `json:"matchId,omitempty"`
	Opponents     []string   `json:"opponents,omitempty"`
	Acknowledged  bool       `json:"acknowledged,omitempty"`
	ReadyDeadline *time.Time `json:"readyDeadline,omitempty"`
}

// Default values
const (
	DefaultPartySize = 2
)
