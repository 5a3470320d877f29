package journal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"roshamble/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleEvents() []models.Event {
	entry := &models.QueueEntry{
		Player:     models.PlayerIdentity{ID: "alice", Username: "Alice", SkillRating: 1200},
		Mode:       models.GameModeRanked,
		EnqueuedAt: t0,
	}
	match := &models.Match{
		ID:            "m-1",
		Mode:          models.GameModeRanked,
		Players:       []models.PlayerIdentity{entry.Player, {ID: "bob", SkillRating: 1210}},
		Status:        models.MatchStatusPending,
		Tolerance:     50,
		Acknowledged:  []string{},
		CreatedAt:     t0.Add(time.Second),
		ReadyDeadline: t0.Add(31 * time.Second),
		Entries:       []models.QueueEntry{*entry},
	}
	return []models.Event{
		{Seq: 1, Type: models.EventEnqueued, Mode: models.GameModeRanked, Entry: entry, PlayerID: "alice", At: t0},
		{Seq: 2, Type: models.EventMatched, Mode: models.GameModeRanked, Match: match, At: t0.Add(time.Second)},
		{Seq: 3, Type: models.EventAcknowledged, Mode: models.GameModeRanked, Match: match, PlayerID: "alice", At: t0.Add(2 * time.Second)},
	}
}

// recordingSink counts appends and can be told to fail.
type recordingSink struct {
	MemorySink
	mu      sync.Mutex
	batches int
	fail    bool
}

func (s *recordingSink) Append(ctx context.Context, events []models.Event) error {
	s.mu.Lock()
	s.batches++
	fail := s.fail
	s.mu.Unlock()
	if fail {
		return errors.New("store unavailable")
	}
	return s.MemorySink.Append(ctx, events)
}

func TestMemorySink_LoadSortsBySeq(t *testing.T) {
	sink := NewMemorySink()
	events := sampleEvents()
	ctx := context.Background()

	require.NoError(t, sink.Append(ctx, []models.Event{events[2], events[0]}))
	require.NoError(t, sink.Append(ctx, []models.Event{events[1]}))

	loaded, err := sink.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 3)
	for i, ev := range loaded {
		assert.Equal(t, uint64(i+1), ev.Seq)
	}
}

func TestWriter_StopFlushesBufferedEvents(t *testing.T) {
	sink := NewMemorySink()
	w := NewWriter(sink, 16)

	for _, ev := range sampleEvents() {
		w.Record(ev)
	}
	w.Start()
	w.Stop()

	loaded, err := sink.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, loaded, 3)
	assert.Zero(t, w.Dropped())
}

func TestWriter_DropsWhenBufferFull(t *testing.T) {
	sink := NewMemorySink()
	w := NewWriter(sink, 2)

	// Not started, so nothing drains the buffer.
	for _, ev := range sampleEvents() {
		w.Record(ev)
	}
	assert.Equal(t, 1, w.Dropped())

	w.Start()
	w.Stop()
	loaded, err := sink.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, loaded, 2)
}

func TestWriter_AppendFailureDoesNotStopWriter(t *testing.T) {
	sink := &recordingSink{fail: true}
	w := NewWriter(sink, 16)
	w.Start()

	events := sampleEvents()
	w.Record(events[0])
	require.Eventually(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return sink.batches >= 1
	}, 2*time.Second, 5*time.Millisecond)

	sink.mu.Lock()
	sink.fail = false
	sink.mu.Unlock()

	w.Record(events[1])
	w.Stop()

	loaded, err := sink.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, uint64(2), loaded[0].Seq)
}

func TestWriter_StartStopIdempotent(t *testing.T) {
	w := NewWriter(NewMemorySink(), 0)
	w.Stop()
	w.Start()
	w.Start()
	w.Stop()
	w.Stop()
}

func TestRedisSink_RoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sink := NewRedisSinkWithClient(client, "matchmaking:events", 0)
	defer sink.Close(context.Background())

	ctx := context.Background()
	events := sampleEvents()
	require.NoError(t, sink.Append(ctx, events[:2]))
	require.NoError(t, sink.Append(ctx, events[2:]))

	loaded, err := sink.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, len(events))

	for i, want := range events {
		got := loaded[i]
		assert.Equal(t, want.Seq, got.Seq)
		assert.Equal(t, want.Type, got.Type)
		assert.Equal(t, want.PlayerID, got.PlayerID)
		assert.True(t, want.At.Equal(got.At))
	}

	require.NotNil(t, loaded[0].Entry)
	assert.Equal(t, "alice", loaded[0].Entry.Player.ID)
	assert.True(t, loaded[0].Entry.EnqueuedAt.Equal(t0))

	require.NotNil(t, loaded[1].Match)
	assert.Equal(t, "m-1", loaded[1].Match.ID)
	assert.Len(t, loaded[1].Match.Players, 2)
	assert.True(t, loaded[1].Match.ReadyDeadline.Equal(t0.Add(31*time.Second)))
}

func TestRedisSink_EmptyStream(t *testing.T) {
	mr := miniredis.RunT(t)
	sink := NewRedisSinkWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "empty", 0)

	loaded, err := sink.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestNewRedisSink_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := NewRedisSink(ctx, "redis://"+addr+"/0", "events", 0)
	assert.Error(t, err)
}

func TestNewRedisSink_BadURL(t *testing.T) {
	_, err := NewRedisSink(context.Background(), "not a url", "events", 0)
	assert.Error(t, err)
}
