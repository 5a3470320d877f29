package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"roshamble/internal/matchmaking"
	"roshamble/internal/models"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingMaintainer struct {
	calls atomic.Int32
}

func (m *countingMaintainer) Maintain() matchmaking.MaintenanceReport {
	m.calls.Add(1)
	return matchmaking.MaintenanceReport{Pruned: 1}
}

func TestMaintenanceService_RunsPeriodically(t *testing.T) {
	target := &countingMaintainer{}
	svc, err := NewMaintenanceService(target, 20*time.Millisecond, clockwork.NewRealClock())
	require.NoError(t, err)

	svc.Start()
	require.Eventually(t, func() bool { return target.calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	svc.Stop()

	after := target.calls.Load()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, after, target.calls.Load(), "no passes after Stop")
}

func TestMaintenanceService_ExpiresReadyChecks(t *testing.T) {
	clock := clockwork.NewFakeClock()
	opts := matchmaking.DefaultOptions()
	opts.Clock = clock
	core := matchmaking.NewService(opts)

	var expired []models.Event
	core.Subscribe(func(ev models.Event) {
		if ev.Type == models.EventExpired {
			expired = append(expired, ev)
		}
	})

	for _, id := range []string{"a", "b"} {
		_, err := core.Enqueue(models.GameModeCasual, models.PlayerIdentity{ID: id, SkillRating: 1000})
		require.NoError(t, err)
	}
	require.Len(t, core.Tick(models.GameModeCasual), 1)

	svc, err := NewMaintenanceService(core, time.Hour, nil)
	require.NoError(t, err)
	defer svc.Stop()

	svc.RunOnce()
	assert.Empty(t, expired)

	clock.Advance(31 * time.Second)
	svc.RunOnce()
	require.Len(t, expired, 1)
	assert.Equal(t, models.MatchStatusExpired, expired[0].Match.Status)
}

type fakeArchiver struct {
	mu      sync.Mutex
	matches []*models.Match
	err     error
}

func (f *fakeArchiver) ArchiveMatch(_ context.Context, m *models.Match) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.matches = append(f.matches, m)
	return nil
}

func TestMatchArchiver_ArchivesTerminalMatches(t *testing.T) {
	store := &fakeArchiver{}
	archiver := NewMatchArchiver(store)

	pending := &models.Match{ID: "m-1", Status: models.MatchStatusPending}
	ready := &models.Match{ID: "m-1", Status: models.MatchStatusReady}
	expired := &models.Match{ID: "m-2", Status: models.MatchStatusExpired}

	archiver.HandleEvent(models.Event{Type: models.EventMatched, Match: pending})
	archiver.HandleEvent(models.Event{Type: models.EventAcknowledged, Match: pending})
	archiver.HandleEvent(models.Event{Type: models.EventEnqueued, Entry: &models.QueueEntry{}})
	archiver.HandleEvent(models.Event{Type: models.EventReady, Match: ready})
	archiver.HandleEvent(models.Event{Type: models.EventExpired, Match: expired})
	archiver.Wait()

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.matches, 2)
	ids := []string{store.matches[0].ID, store.matches[1].ID}
	assert.ElementsMatch(t, []string{"m-1", "m-2"}, ids)
}

func TestMatchArchiver_FailureIsLogged(t *testing.T) {
	store := &fakeArchiver{err: errors.New("archive offline")}
	archiver := NewMatchArchiver(store)

	archiver.HandleEvent(models.Event{Type: models.EventReady, Match: &models.Match{ID: "m-3", Status: models.MatchStatusReady}})
	archiver.Wait()

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Empty(t, store.matches)
}
