package matchmaking

import (
	"sync"
	"time"

	"roshamble/internal/models"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const (
	defaultReadyTimeout = 30 * time.Second
	defaultRetention    = 2 * time.Minute
)

// Tracker owns formed matches and their ready-checks. Every operation on a
// match runs under one mutex, so the transition to ready or expired fires once.
type Tracker struct {
	clock        clockwork.Clock
	events       *dispatcher
	readyTimeout time.Duration
	retention    time.Duration

	mu       sync.Mutex
	matches  map[string]*models.Match
	byPlayer map[string]string // player id -> id of the player's latest match
	// requeued players whose expired match has not been reported by Poll yet
	unseenExpiry map[string]string
}

func newTracker(clock clockwork.Clock, events *dispatcher, readyTimeout, retention time.Duration) *Tracker {
	if readyTimeout <= 0 {
		readyTimeout = defaultReadyTimeout
	}
	if retention <= 0 {
		retention = defaultRetention
	}
	return &Tracker{
		clock:        clock,
		events:       events,
		readyTimeout: readyTimeout,
		retention:    retention,
		matches:      make(map[string]*models.Match),
		byPlayer:     make(map[string]string),
		unseenExpiry: make(map[string]string),
	}
}

// create registers a pending match for the claimed entries. The event is
// stamped here and emitted by the caller once the pool lock is released.
func (t *Tracker) create(mode models.GameMode, entries []models.QueueEntry, tolerance int) (*models.Match, models.Event) {
	now := t.clock.Now()
	match := &models.Match{
		ID:            uuid.NewString(),
		Mode:          mode,
		Players:       make([]models.PlayerIdentity, len(entries)),
		Status:        models.MatchStatusPending,
		Tolerance:     tolerance,
		Acknowledged:  []string{},
		CreatedAt:     now,
		ReadyDeadline: now.Add(t.readyTimeout),
		Entries:       append([]models.QueueEntry(nil), entries...),
	}
	for i, entry := range entries {
		match.Players[i] = entry.Player
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.matches[match.ID] = match
	for _, p := range match.Players {
		t.byPlayer[p.ID] = match.ID
		delete(t.unseenExpiry, p.ID)
	}
	snapshot := match.Clone()
	return snapshot, t.events.stamp(models.Event{Type: models.EventMatched, Mode: mode, Match: snapshot}, now)
}

// admit reports whether the player is free of active matches, forgetting a
// finished match so the player's next poll reflects the new queue entry.
func (t *Tracker) admit(playerID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	matchID, ok := t.byPlayer[playerID]
	if !ok {
		return true
	}
	match, ok := t.matches[matchID]
	if ok && !match.Status.Terminal() {
		return false
	}
	delete(t.byPlayer, playerID)
	return true
}

// poll returns the player's view of their latest match. A pending match past
// its deadline is expired on the way; those matches come back in expired.
func (t *Tracker) poll(playerID string) (result models.PollResult, found bool, expired []*models.Match, events []models.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	matchID, ok := t.byPlayer[playerID]
	if !ok {
		return models.PollResult{}, false, nil, nil
	}
	match, ok := t.matches[matchID]
	if !ok {
		return models.PollResult{}, false, nil, nil
	}

	now := t.clock.Now()
	if ev, ok := t.expireLocked(match, now); ok {
		expired = append(expired, match.Clone())
		events = append(events, ev)
	}

	result = models.PollResult{Mode: match.Mode, MatchID: match.ID}
	switch match.Status {
	case models.MatchStatusPending:
		deadline := match.ReadyDeadline
		result.State = models.PollStateFound
		result.Opponents = match.Opponents(playerID)
		result.Acknowledged = match.HasAcknowledged(playerID)
		result.ReadyDeadline = &deadline
	case models.MatchStatusReady:
		result.State = models.PollStateReadyConfirmed
		result.Opponents = match.Opponents(playerID)
		result.Acknowledged = true
	case models.MatchStatusExpired:
		result.State = models.PollStateExpired
		result.Acknowledged = match.HasAcknowledged(playerID)
	}
	return result, true, expired, events
}

// noteRequeued remembers that the player was put back in the queue after
// matchID expired, so their next poll still reports the expiry once.
func (t *Tracker) noteRequeued(playerID, matchID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.unseenExpiry[playerID] = matchID
}

func (t *Tracker) forgetRequeued(playerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.unseenExpiry, playerID)
}

// takeUnseenExpiry returns the expired result owed to a requeued player and
// clears it.
func (t *Tracker) takeUnseenExpiry(playerID string) (models.PollResult, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	matchID, ok := t.unseenExpiry[playerID]
	if !ok {
		return models.PollResult{}, false
	}
	delete(t.unseenExpiry, playerID)
	match, ok := t.matches[matchID]
	if !ok {
		return models.PollResult{}, false
	}
	return models.PollResult{
		State:        models.PollStateExpired,
		Mode:         match.Mode,
		MatchID:      match.ID,
		Acknowledged: match.HasAcknowledged(playerID),
	}, true
}

// acknowledge records the player's ready confirmation.
func (t *Tracker) acknowledge(playerID, matchID string) (expired []*models.Match, events []models.Event, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	match, ok := t.matches[matchID]
	if !ok {
		return nil, nil, ErrMatchNotFound
	}
	if !match.HasPlayer(playerID) {
		return nil, nil, ErrWrongMatch
	}

	now := t.clock.Now()
	if ev, ok := t.expireLocked(match, now); ok {
		return []*models.Match{match.Clone()}, []models.Event{ev}, ErrMatchExpired
	}

	switch match.Status {
	case models.MatchStatusExpired:
		return nil, nil, ErrMatchExpired
	case models.MatchStatusReady:
		return nil, nil, nil
	}
	if match.HasAcknowledged(playerID) {
		return nil, nil, nil
	}

	match.Acknowledged = append(match.Acknowledged, playerID)
	events = append(events, t.events.stamp(models.Event{
		Type:     models.EventAcknowledged,
		Mode:     match.Mode,
		Match:    match.Clone(),
		PlayerID: playerID,
	}, now))

	if len(match.Acknowledged) == len(match.Players) {
		match.Status = models.MatchStatusReady
		match.ResolvedAt = &now
		events = append(events, t.events.stamp(models.Event{Type: models.EventReady, Mode: match.Mode, Match: match.Clone()}, now))
	}
	return nil, events, nil
}

// expireDue expires every pending match whose ready-check deadline has passed.
func (t *Tracker) expireDue() ([]*models.Match, []models.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	var expired []*models.Match
	var events []models.Event
	for _, match := range t.matches {
		if ev, ok := t.expireLocked(match, now); ok {
			expired = append(expired, match.Clone())
			events = append(events, ev)
		}
	}
	return expired, events
}

func (t *Tracker) expireLocked(match *models.Match, now time.Time) (models.Event, bool) {
	if match.Status != models.MatchStatusPending || now.Before(match.ReadyDeadline) {
		return models.Event{}, false
	}
	match.Status = models.MatchStatusExpired
	match.ResolvedAt = &now
	return t.events.stamp(models.Event{Type: models.EventExpired, Mode: match.Mode, Match: match.Clone()}, now), true
}

// prune forgets terminal matches resolved longer than the retention period ago.
func (t *Tracker) prune() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	pruned := 0
	for id, match := range t.matches {
		if !match.Status.Terminal() || match.ResolvedAt == nil || now.Sub(*match.ResolvedAt) < t.retention {
			continue
		}
		for _, p := range match.Players {
			if t.byPlayer[p.ID] == id {
				delete(t.byPlayer, p.ID)
			}
			if t.unseenExpiry[p.ID] == id {
				delete(t.unseenExpiry, p.ID)
			}
		}
		delete(t.matches, id)
		pruned++
	}
	return pruned
}

// activePlayers counts players in pending or ready matches of the mode.
// A player who has since re-enqueued no longer points at the match and is
// left to the queue's count.
func (t *Tracker) activePlayers(mode models.GameMode) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	count := 0
	for id, match := range t.matches {
		if match.Mode != mode || match.Status == models.MatchStatusExpired {
			continue
		}
		for _, p := range match.Players {
			if t.byPlayer[p.ID] == id {
				count++
			}
		}
	}
	return count
}

// Match returns a copy of the match with the given id.
func (t *Tracker) Match(matchID string) (*models.Match, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	match, ok := t.matches[matchID]
	if !ok {
		return nil, false
	}
	return match.Clone(), true
}

// restore installs a match snapshot from the journal without emitting events.
func (t *Tracker) restore(match *models.Match) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m := match.Clone()
	t.matches[m.ID] = m
	for _, p := range m.Players {
		t.byPlayer[p.ID] = m.ID
	}
}
