package matchmaking

import (
	"sort"
	"sync"
	"time"

	"roshamble/internal/models"

	"github.com/jonboulle/clockwork"
)

// AdmitFunc decides whether a player outside every queue may enqueue. It
// returns false while the player belongs to a pending or ready match.
type AdmitFunc func(playerID string) bool

// PickFunc selects groups of entries to match. It receives the mode's
// waiting entries oldest first and returns groups of indices into that slice.
type PickFunc func(entries []models.QueueEntry) [][]int

// CommitFunc turns one picked group into a match. It runs inside the mode's
// critical section, before any other pass can observe the pool again.
type CommitFunc func(group []models.QueueEntry)

type pool struct {
	mu      sync.Mutex
	entries []models.QueueEntry // ordered by EnqueuedAt
}

func (p *pool) indexOf(playerID string) int {
	for i := range p.entries {
		if p.entries[i].Player.ID == playerID {
			return i
		}
	}
	return -1
}

// insert keeps entries ordered by EnqueuedAt; equal times keep arrival order.
func (p *pool) insert(entry models.QueueEntry) {
	i := sort.Search(len(p.entries), func(i int) bool {
		return p.entries[i].EnqueuedAt.After(entry.EnqueuedAt)
	})
	p.entries = append(p.entries, models.QueueEntry{})
	copy(p.entries[i+1:], p.entries[i:])
	p.entries[i] = entry
}

func (p *pool) removeAt(i int) {
	p.entries = append(p.entries[:i], p.entries[i+1:]...)
}

// Queue holds one ordered pool per game mode. A player holds at most one
// entry across all pools.
//
// Lock order: Queue.mu, then a pool's mu, then anything reached through
// admit or a CommitFunc. Pools are independent of each other.
type Queue struct {
	clock  clockwork.Clock
	events *dispatcher

	mu        sync.Mutex
	members   map[string]models.GameMode
	cooldowns map[string]time.Time
	admit     AdmitFunc

	pools map[models.GameMode]*pool
}

func newQueue(clock clockwork.Clock, events *dispatcher) *Queue {
	q := &Queue{
		clock:     clock,
		events:    events,
		members:   make(map[string]models.GameMode),
		cooldowns: make(map[string]time.Time),
		pools:     make(map[models.GameMode]*pool, len(models.AllGameModes)),
	}
	for _, mode := range models.AllGameModes {
		q.pools[mode] = &pool{}
	}
	return q
}

// SetAdmitFunc registers the check consulted on every enqueue.
func (q *Queue) SetAdmitFunc(fn AdmitFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.admit = fn
}

// Enqueue inserts the player into the mode's pool.
func (q *Queue) Enqueue(mode models.GameMode, player models.PlayerIdentity) (models.QueueEntry, error) {
	p, ok := q.pools[mode]
	if !ok {
		return models.QueueEntry{}, ErrUnknownMode
	}

	q.mu.Lock()
	now := q.clock.Now()
	if _, queued := q.members[player.ID]; queued {
		q.mu.Unlock()
		return models.QueueEntry{}, ErrAlreadyQueued
	}
	if until, cooling := q.cooldowns[player.ID]; cooling {
		if now.Before(until) {
			q.mu.Unlock()
			return models.QueueEntry{}, ErrNoShowCooldown
		}
		delete(q.cooldowns, player.ID)
	}
	if q.admit != nil && !q.admit(player.ID) {
		q.mu.Unlock()
		return models.QueueEntry{}, ErrAlreadyInMatch
	}

	entry := models.QueueEntry{Player: player, Mode: mode, EnqueuedAt: now}
	p.mu.Lock()
	p.insert(entry)
	ev := q.events.stamp(models.Event{Type: models.EventEnqueued, Mode: mode, Entry: &entry}, now)
	p.mu.Unlock()
	q.members[player.ID] = mode
	q.mu.Unlock()

	q.events.emit(ev)
	return entry, nil
}

// Cancel removes a waiting entry. Entries already claimed by a match cannot
// be cancelled and report ErrNotQueued.
func (q *Queue) Cancel(playerID string, mode models.GameMode) error {
	p, ok := q.pools[mode]
	if !ok {
		return ErrUnknownMode
	}

	q.mu.Lock()
	if queuedMode, queued := q.members[playerID]; !queued || queuedMode != mode {
		q.mu.Unlock()
		return ErrNotQueued
	}

	p.mu.Lock()
	i := p.indexOf(playerID)
	if i < 0 {
		p.mu.Unlock()
		q.mu.Unlock()
		return ErrNotQueued
	}
	entry := p.entries[i]
	p.removeAt(i)
	ev := q.events.stamp(models.Event{Type: models.EventCancelled, Mode: mode, Entry: &entry}, q.clock.Now())
	p.mu.Unlock()
	delete(q.members, playerID)
	q.mu.Unlock()

	q.events.emit(ev)
	return nil
}

// Snapshot returns a point-in-time copy of the mode's entries, oldest first.
func (q *Queue) Snapshot(mode models.GameMode) []models.QueueEntry {
	p, ok := q.pools[mode]
	if !ok {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.QueueEntry(nil), p.entries...)
}

// Count returns the number of entries waiting in the mode's pool.
func (q *Queue) Count(mode models.GameMode) int {
	p, ok := q.pools[mode]
	if !ok {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// QueuedMode reports the mode the player is waiting in, if any.
func (q *Queue) QueuedMode(playerID string) (models.GameMode, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	mode, ok := q.members[playerID]
	return mode, ok
}

// Claim runs pick over the mode's entries and removes every picked group,
// handing each to commit, all inside the pool's critical section. It
// returns the number of groups claimed.
func (q *Queue) Claim(mode models.GameMode, pick PickFunc, commit CommitFunc) int {
	p, ok := q.pools[mode]
	if !ok {
		return 0
	}

	p.mu.Lock()
	groups := pick(p.entries)
	if len(groups) == 0 {
		p.mu.Unlock()
		return 0
	}

	taken := make(map[int]bool)
	var claimed []string
	for _, group := range groups {
		entries := make([]models.QueueEntry, 0, len(group))
		for _, i := range group {
			if i < 0 || i >= len(p.entries) || taken[i] {
				panic("matchmaking: pick returned an invalid or repeated entry index")
			}
			taken[i] = true
			entries = append(entries, p.entries[i])
			claimed = append(claimed, p.entries[i].Player.ID)
		}
		commit(entries)
	}

	kept := p.entries[:0]
	for i, entry := range p.entries {
		if !taken[i] {
			kept = append(kept, entry)
		}
	}
	for i := len(kept); i < len(p.entries); i++ {
		p.entries[i] = models.QueueEntry{}
	}
	p.entries = kept
	p.mu.Unlock()

	// The match is registered before membership is cleared, so a concurrent
	// Enqueue sees either the membership or the match.
	q.mu.Lock()
	for _, id := range claimed {
		delete(q.members, id)
	}
	q.mu.Unlock()

	return len(groups)
}

// EvictStale drops entries that have waited longer than maxWait.
func (q *Queue) EvictStale(maxWait time.Duration) int {
	if maxWait <= 0 {
		return 0
	}

	var evicted []models.Event
	q.mu.Lock()
	now := q.clock.Now()
	for _, mode := range models.AllGameModes {
		p := q.pools[mode]
		p.mu.Lock()
		kept := p.entries[:0]
		for _, entry := range p.entries {
			if entry.WaitTime(now) <= maxWait {
				kept = append(kept, entry)
				continue
			}
			entry := entry
			delete(q.members, entry.Player.ID)
			evicted = append(evicted, q.events.stamp(models.Event{Type: models.EventEvicted, Mode: mode, Entry: &entry}, now))
		}
		for i := len(kept); i < len(p.entries); i++ {
			p.entries[i] = models.QueueEntry{}
		}
		p.entries = kept
		p.mu.Unlock()
	}
	q.mu.Unlock()

	q.events.emit(evicted...)
	return len(evicted)
}

// requeue puts an entry back at its original position. Cooldowns do not
// apply; the admit check does.
func (q *Queue) requeue(entry models.QueueEntry) error {
	p, ok := q.pools[entry.Mode]
	if !ok {
		return ErrUnknownMode
	}

	q.mu.Lock()
	if _, queued := q.members[entry.Player.ID]; queued {
		q.mu.Unlock()
		return ErrAlreadyQueued
	}
	if q.admit != nil && !q.admit(entry.Player.ID) {
		q.mu.Unlock()
		return ErrAlreadyInMatch
	}
	p.mu.Lock()
	p.insert(entry)
	ev := q.events.stamp(models.Event{Type: models.EventEnqueued, Mode: entry.Mode, Entry: &entry}, q.clock.Now())
	p.mu.Unlock()
	q.members[entry.Player.ID] = entry.Mode
	q.mu.Unlock()

	q.events.emit(ev)
	return nil
}

// penalize blocks the player from enqueueing until the given time.
func (q *Queue) penalize(playerID string, until time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cooldowns[playerID] = until
}

// restore and drop rebuild state from a journal without emitting events.
func (q *Queue) restore(entry models.QueueEntry) {
	p, ok := q.pools[entry.Mode]
	if !ok {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, queued := q.members[entry.Player.ID]; queued {
		return
	}
	p.mu.Lock()
	p.insert(entry)
	p.mu.Unlock()
	q.members[entry.Player.ID] = entry.Mode
}

func (q *Queue) drop(playerID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	mode, queued := q.members[playerID]
	if !queued {
		return
	}
	p := q.pools[mode]
	p.mu.Lock()
	if i := p.indexOf(playerID); i >= 0 {
		p.removeAt(i)
	}
	p.mu.Unlock()
	delete(q.members, playerID)
}
