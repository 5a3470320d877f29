package services

import (
	"context"
	"sync"
	"time"

	"roshamble/internal/logger"
	"roshamble/internal/models"
)

// Archiver stores resolved matches.
type Archiver interface {
	ArchiveMatch(ctx context.Context, match *models.Match) error
}

// MatchArchiver copies every match that reaches a terminal state into the
// archive. Writes are fire-and-forget so the matchmaking core never waits on storage.
type MatchArchiver struct {
	archive Archiver
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewMatchArchiver(archive Archiver) *MatchArchiver {
	return &MatchArchiver{archive: archive, timeout: 5 * time.Second}
}

// HandleEvent is registered as a matchmaking event subscriber.
func (a *MatchArchiver) HandleEvent(ev models.Event) {
	if ev.Match == nil || !ev.Match.Status.Terminal() {
		return
	}
	if ev.Type != models.EventReady && ev.Type != models.EventExpired {
		return
	}

	match := ev.Match.Clone()
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		if err := a.archive.ArchiveMatch(ctx, match); err != nil {
			logger.Error("match archive write failed", "match_id", match.ID, "status", string(match.Status), "error", err)
		}
	}()
}

// Wait blocks until in-flight archive writes finish.
func (a *MatchArchiver) Wait() {
	a.wg.Wait()
}
