package matchmaking

import (
	"sort"
	"sync"
	"time"

	"roshamble/internal/logger"
	"roshamble/internal/models"

	"github.com/jonboulle/clockwork"
)

const defaultTickInterval = 250 * time.Millisecond

// Engine runs one pairing loop per game mode. Each pass claims groups from
// the mode's pool and registers them with the tracker in a single critical
// section, so an entry can never end up in two matches.
type Engine struct {
	queue      *Queue
	tracker    *Tracker
	events     *dispatcher
	clock      clockwork.Clock
	tick       time.Duration
	tolerance  Tolerance
	partySizes map[models.GameMode]int

	mu      sync.Mutex
	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
}

func newEngine(queue *Queue, tracker *Tracker, events *dispatcher, clock clockwork.Clock, tick time.Duration, tolerance Tolerance, partySizes map[models.GameMode]int) *Engine {
	if tick <= 0 {
		tick = defaultTickInterval
	}
	return &Engine{
		queue:      queue,
		tracker:    tracker,
		events:     events,
		clock:      clock,
		tick:       tick,
		tolerance:  tolerance,
		partySizes: partySizes,
	}
}

// Start begins the background pairing loops
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}
	e.running = true
	e.stopCh = make(chan struct{})

	for _, mode := range models.AllGameModes {
		e.wg.Add(1)
		go e.processLoop(mode)
	}
	logger.Info("pairing engine started", "tick", e.tick.String())
}

// Stop halts the pairing loops and waits for in-flight passes to finish.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.stopCh)
	e.mu.Unlock()

	e.wg.Wait()
	logger.Info("pairing engine stopped")
}

func (e *Engine) processLoop(mode models.GameMode) {
	defer e.wg.Done()

	ticker := e.clock.NewTicker(e.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			e.Tick(mode)
		case <-e.stopCh:
			return
		}
	}
}

// Tick runs one pairing pass over the mode's pool and returns the matches it formed.
func (e *Engine) Tick(mode models.GameMode) []*models.Match {
	now := e.clock.Now()
	size := e.partySize(mode)

	var windows []int
	var formed []*models.Match
	var events []models.Event

	pick := func(entries []models.QueueEntry) [][]int {
		var groups [][]int
		if mode.SkillBased() {
			groups, windows = pickBySkill(entries, size, now, e.tolerance)
		} else {
			groups = pickOldest(entries, size)
			windows = make([]int, len(groups))
		}
		return groups
	}
	commit := func(group []models.QueueEntry) {
		match, ev := e.tracker.create(mode, group, windows[len(formed)])
		formed = append(formed, match)
		events = append(events, ev)
	}

	if e.queue.Claim(mode, pick, commit) == 0 {
		return nil
	}
	e.events.emit(events...)

	for _, m := range formed {
		logger.Info("matched players",
			"match_id", m.ID,
			"mode", string(m.Mode),
			"players", playerIDs(m.Players),
			"tolerance", m.Tolerance,
		)
	}
	return formed
}

func (e *Engine) partySize(mode models.GameMode) int {
	if size, ok := e.partySizes[mode]; ok && size >= 2 {
		return size
	}
	return models.DefaultPartySize
}

// pickOldest groups entries in arrival order with no skill constraint.
func pickOldest(entries []models.QueueEntry, size int) [][]int {
	var groups [][]int
	for start := 0; start+size <= len(entries); start += size {
		group := make([]int, size)
		for k := range group {
			group[k] = start + k
		}
		groups = append(groups, group)
	}
	return groups
}

// pickBySkill walks entries oldest first. Each unmatched entry anchors a
// group and takes the nearest-skill later entries that keep the group's
// skill spread within the anchor's window. The anchor is the oldest member,
// so its window is the widest in the group. Equal distances keep arrival order.
func pickBySkill(entries []models.QueueEntry, size int, now time.Time, tol Tolerance) ([][]int, []int) {
	var groups [][]int
	var windows []int
	used := make([]bool, len(entries))

	for i := range entries {
		if used[i] {
			continue
		}
		anchor := entries[i].Player.SkillRating
		window := tol.At(entries[i].WaitTime(now))

		var candidates []int
		for j := i + 1; j < len(entries); j++ {
			if used[j] {
				continue
			}
			if abs(entries[j].Player.SkillRating-anchor) <= window {
				candidates = append(candidates, j)
			}
		}
		if len(candidates) < size-1 {
			continue
		}
		sort.SliceStable(candidates, func(a, b int) bool {
			return abs(entries[candidates[a]].Player.SkillRating-anchor) < abs(entries[candidates[b]].Player.SkillRating-anchor)
		})

		group := []int{i}
		lo, hi := anchor, anchor
		for _, j := range candidates {
			if len(group) == size {
				break
			}
			skill := entries[j].Player.SkillRating
			nlo, nhi := min(lo, skill), max(hi, skill)
			if nhi-nlo > window {
				continue
			}
			group = append(group, j)
			lo, hi = nlo, nhi
		}
		if len(group) < size {
			continue
		}

		for _, j := range group {
			used[j] = true
		}
		groups = append(groups, group)
		windows = append(windows, window)
	}
	return groups, windows
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func playerIDs(players []models.PlayerIdentity) []string {
	ids := make([]string, len(players))
	for i, p := range players {
		ids[i] = p.ID
	}
	return ids
}
