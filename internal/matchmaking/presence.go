package matchmaking

import "roshamble/internal/models"

// Presence reports how many players are online in a mode. It aggregates the
// queue and tracker and keeps no state of its own.
type Presence struct {
	queue          *Queue
	tracker        *Tracker
	includeMatched bool
}

// Count returns waiting players, plus players in pending or ready matches
// when matched players are included.
func (p *Presence) Count(mode models.GameMode) int {
	count := p.queue.Count(mode)
	if p.includeMatched {
		count += p.tracker.activePlayers(mode)
	}
	return count
}
