package matchmaking

import (
	"errors"
	"sort"
	"time"

	"roshamble/internal/logger"
	"roshamble/internal/models"

	"github.com/jonboulle/clockwork"
)

// Options configures a Service. Zero values fall back to the defaults noted
// on each field.
type Options struct {
	Clock           clockwork.Clock         // real clock
	TickInterval    time.Duration           // 250ms
	Tolerance       Tolerance               // see DefaultOptions
	PartySizes      map[models.GameMode]int // 2 for every mode
	ReadyTimeout    time.Duration           // 30s
	Retention       time.Duration           // 2m
	NoShowCooldown  time.Duration           // no penalty
	MaxQueueWait    time.Duration           // entries never go stale
	RequeueOnExpiry bool
	IncludeMatched  bool
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		TickInterval:   defaultTickInterval,
		Tolerance:      Tolerance{Base: 50, GrowthPerSecond: 10},
		ReadyTimeout:   defaultReadyTimeout,
		Retention:      defaultRetention,
		IncludeMatched: true,
	}
}

// Service wires the queue, pairing engine, session tracker and presence
// counter together. One Service is built at startup and shared by every handler.
type Service struct {
	clock          clockwork.Clock
	events         *dispatcher
	queue          *Queue
	tracker        *Tracker
	engine         *Engine
	presence       *Presence
	noShowCooldown time.Duration
	maxQueueWait   time.Duration
	requeue        bool
}

func NewService(opts Options) *Service {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	events := &dispatcher{}
	// Seeded from the clock so sequence numbers keep increasing across
	// restarts even when the journal has been trimmed to nothing.
	events.resume(uint64(clock.Now().UnixNano()))
	queue := newQueue(clock, events)
	tracker := newTracker(clock, events, opts.ReadyTimeout, opts.Retention)
	queue.SetAdmitFunc(tracker.admit)

	return &Service{
		clock:          clock,
		events:         events,
		queue:          queue,
		tracker:        tracker,
		engine:         newEngine(queue, tracker, events, clock, opts.TickInterval, opts.Tolerance, opts.PartySizes),
		presence:       &Presence{queue: queue, tracker: tracker, includeMatched: opts.IncludeMatched},
		noShowCooldown: opts.NoShowCooldown,
		maxQueueWait:   opts.MaxQueueWait,
		requeue:        opts.RequeueOnExpiry,
	}
}

// Subscribe registers a handler for every subsequent state change.
func (s *Service) Subscribe(h EventHandler) {
	s.events.subscribe(h)
}

// Start launches the pairing loops.
func (s *Service) Start() {
	s.engine.Start()
}

// Stop halts the pairing loops.
func (s *Service) Stop() {
	s.engine.Stop()
}

func (s *Service) Queue() *Queue {
	return s.queue
}

func (s *Service) Tracker() *Tracker {
	return s.tracker
}

func (s *Service) Engine() *Engine {
	return s.engine
}

// Enqueue puts the player into the mode's pool.
func (s *Service) Enqueue(mode models.GameMode, player models.PlayerIdentity) (models.QueueEntry, error) {
	return s.queue.Enqueue(mode, player)
}

// Cancel takes a waiting player out of the mode's pool.
func (s *Service) Cancel(playerID string, mode models.GameMode) error {
	return s.queue.Cancel(playerID, mode)
}

// Snapshot lists the mode's waiting entries, oldest first.
func (s *Service) Snapshot(mode models.GameMode) []models.QueueEntry {
	return s.queue.Snapshot(mode)
}

// Count is the presence count for the mode.
func (s *Service) Count(mode models.GameMode) int {
	return s.presence.Count(mode)
}

// Poll reports the player's matchmaking state. It returns ErrNotQueued for a
// player that is neither waiting nor linked to a match.
func (s *Service) Poll(playerID string) (models.PollResult, error) {
	// Queue first: a claimed entry's match is registered before its queue
	// membership is cleared, so one of the two lookups always sees the player.
	// A player requeued after an expired ready-check hears about the expiry
	// once before seeing the wait state.
	if result, ok := s.tracker.takeUnseenExpiry(playerID); ok {
		return result, nil
	}
	if mode, queued := s.queue.QueuedMode(playerID); queued {
		return models.PollResult{State: models.PollStateWaiting, Mode: mode}, nil
	}

	result, found, expired, events := s.tracker.poll(playerID)
	s.events.emit(events...)
	s.settle(expired)
	if !found {
		return models.PollResult{}, ErrNotQueued
	}
	return result, nil
}

// Acknowledge confirms the player's participation in matchID.
func (s *Service) Acknowledge(playerID, matchID string) error {
	expired, events, err := s.tracker.acknowledge(playerID, matchID)
	s.events.emit(events...)
	s.settle(expired)
	return err
}

// Tick runs one pairing pass for the mode.
func (s *Service) Tick(mode models.GameMode) []*models.Match {
	return s.engine.Tick(mode)
}

// MaintenanceReport summarises one Maintain pass.
type MaintenanceReport struct {
	Expired int
	Evicted int
	Pruned  int
}

// Maintain expires overdue ready-checks, evicts stale queue entries and
// forgets old finished matches.
func (s *Service) Maintain() MaintenanceReport {
	expired, events := s.tracker.expireDue()
	s.events.emit(events...)
	s.settle(expired)

	return MaintenanceReport{
		Expired: len(expired),
		Evicted: s.queue.EvictStale(s.maxQueueWait),
		Pruned:  s.tracker.prune(),
	}
}

// settle applies the expiry policy: acknowledging players are released or
// re-enqueued at their original position, the others may be penalised.
func (s *Service) settle(expired []*models.Match) {
	for _, match := range expired {
		logger.Info("ready-check expired",
			"match_id", match.ID,
			"mode", string(match.Mode),
			"acknowledged", match.Acknowledged,
		)
		for _, entry := range match.Entries {
			id := entry.Player.ID
			if !match.HasAcknowledged(id) {
				if s.noShowCooldown > 0 {
					s.queue.penalize(id, s.clock.Now().Add(s.noShowCooldown))
				}
				continue
			}
			if !s.requeue {
				continue
			}
			// Noted before requeueing so a match formed right after the
			// requeue clears the note rather than being shadowed by it.
			s.tracker.noteRequeued(id, match.ID)
			if err := s.queue.requeue(entry); err != nil {
				s.tracker.forgetRequeued(id)
				if !errors.Is(err, ErrAlreadyQueued) {
					logger.Warn("failed to requeue player after expired ready-check", "player_id", id, "match_id", match.ID, "error", err)
				}
			}
		}
	}
}

// Restore rebuilds queue and match state from journalled events. Call it
// before Start; events may arrive in any order.
func (s *Service) Restore(events []models.Event) int {
	sorted := append([]models.Event(nil), events...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Seq < sorted[j].Seq })

	applied := 0
	for _, ev := range sorted {
		switch ev.Type {
		case models.EventEnqueued:
			if ev.Entry == nil {
				continue
			}
			s.queue.restore(*ev.Entry)
		case models.EventCancelled, models.EventEvicted:
			if ev.Entry == nil {
				continue
			}
			s.queue.drop(ev.Entry.Player.ID)
		case models.EventMatched, models.EventAcknowledged, models.EventReady, models.EventExpired:
			if ev.Match == nil {
				continue
			}
			if ev.Type == models.EventMatched {
				for _, p := range ev.Match.Players {
					s.queue.drop(p.ID)
				}
			}
			s.tracker.restore(ev.Match)
		default:
			continue
		}
		s.events.resume(ev.Seq)
		applied++
	}
	return applied
}
