package matchmaking

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"roshamble/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTolerance_At(t *testing.T) {
	tests := []struct {
		name string
		tol  Tolerance
		wait time.Duration
		want int
	}{
		{name: "base at zero wait", tol: Tolerance{Base: 50, GrowthPerSecond: 10}, wait: 0, want: 50},
		{name: "grows linearly", tol: Tolerance{Base: 50, GrowthPerSecond: 10}, wait: 15 * time.Second, want: 200},
		{name: "partial seconds round down", tol: Tolerance{Base: 50, GrowthPerSecond: 10}, wait: 1500 * time.Millisecond, want: 65},
		{name: "clamped to max", tol: Tolerance{Base: 50, GrowthPerSecond: 10, Max: 120}, wait: time.Minute, want: 120},
		{name: "negative wait treated as zero", tol: Tolerance{Base: 50, GrowthPerSecond: 10}, wait: -time.Second, want: 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.tol.At(tt.wait))
		})
	}
}

func TestTolerance_Monotonic(t *testing.T) {
	tol := Tolerance{Base: 50, GrowthPerSecond: 7.5, Max: 400}
	prev := tol.At(0)
	for wait := time.Duration(0); wait < 2*time.Minute; wait += 100 * time.Millisecond {
		cur := tol.At(wait)
		assert.GreaterOrEqual(t, cur, prev)
		prev = cur
	}
}

func TestEngine_RankedClosePlayersMatchOnNextTick(t *testing.T) {
	svc, clock := newTestService(t, nil)

	_, err := svc.Enqueue(models.GameModeRanked, player("a", 1000))
	require.NoError(t, err)
	clock.Advance(800 * time.Millisecond)
	_, err = svc.Enqueue(models.GameModeRanked, player("b", 1005))
	require.NoError(t, err)

	matches := svc.Tick(models.GameModeRanked)
	require.Len(t, matches, 1)
	m := matches[0]
	assert.Equal(t, models.MatchStatusPending, m.Status)
	assert.Equal(t, models.GameModeRanked, m.Mode)
	assert.ElementsMatch(t, []string{"a", "b"}, playerIDs(m.Players))
	assert.Equal(t, 0, svc.Queue().Count(models.GameModeRanked))
}

func TestEngine_WindowWidensWithWait(t *testing.T) {
	svc, clock := newTestService(t, nil)

	_, err := svc.Enqueue(models.GameModeRanked, player("low", 1000))
	require.NoError(t, err)
	_, err = svc.Enqueue(models.GameModeRanked, player("high", 1200))
	require.NoError(t, err)

	assert.Empty(t, svc.Tick(models.GameModeRanked), "200 apart exceeds the base window")

	clock.Advance(10 * time.Second)
	assert.Empty(t, svc.Tick(models.GameModeRanked), "window is 150 after 10s")

	clock.Advance(5 * time.Second)
	matches := svc.Tick(models.GameModeRanked)
	require.Len(t, matches, 1)
	assert.Equal(t, 200, matches[0].Tolerance)
}

func TestEngine_PrefersNearestSkill(t *testing.T) {
	svc, clock := newTestService(t, nil)

	for _, p := range []models.PlayerIdentity{player("anchor", 1000), player("far", 1040), player("near", 1010)} {
		_, err := svc.Enqueue(models.GameModeRanked, p)
		require.NoError(t, err)
		clock.Advance(100 * time.Millisecond)
	}

	matches := svc.Tick(models.GameModeRanked)
	require.Len(t, matches, 1)
	assert.ElementsMatch(t, []string{"anchor", "near"}, playerIDs(matches[0].Players))

	snap := svc.Snapshot(models.GameModeRanked)
	require.Len(t, snap, 1)
	assert.Equal(t, "far", snap[0].Player.ID)
}

func TestEngine_EqualDistanceFavoursEarliest(t *testing.T) {
	svc, clock := newTestService(t, nil)

	for _, p := range []models.PlayerIdentity{player("anchor", 1000), player("first", 1020), player("second", 980)} {
		_, err := svc.Enqueue(models.GameModeRanked, p)
		require.NoError(t, err)
		clock.Advance(100 * time.Millisecond)
	}

	matches := svc.Tick(models.GameModeRanked)
	require.Len(t, matches, 1)
	assert.ElementsMatch(t, []string{"anchor", "first"}, playerIDs(matches[0].Players))
}

func TestEngine_CasualPairsOldestIgnoringSkill(t *testing.T) {
	svc, clock := newTestService(t, nil)

	for _, p := range []models.PlayerIdentity{player("a", 100), player("b", 2900), player("c", 1500)} {
		_, err := svc.Enqueue(models.GameModeCasual, p)
		require.NoError(t, err)
		clock.Advance(time.Second)
	}

	matches := svc.Tick(models.GameModeCasual)
	require.Len(t, matches, 1)
	assert.Equal(t, []string{"a", "b"}, playerIDs(matches[0].Players))
	assert.Equal(t, 0, matches[0].Tolerance)
	assert.Equal(t, 1, svc.Queue().Count(models.GameModeCasual))
}

func TestEngine_TooFewPlayers(t *testing.T) {
	svc, _ := newTestService(t, nil)

	_, err := svc.Enqueue(models.GameModeTournament, player("solo", 1000))
	require.NoError(t, err)

	assert.Empty(t, svc.Tick(models.GameModeTournament))
	assert.Empty(t, svc.Tick(models.GameModeCasual))
	assert.Equal(t, 1, svc.Queue().Count(models.GameModeTournament))
}

func TestEngine_LargerPartyKeepsSpreadInWindow(t *testing.T) {
	svc, clock := newTestService(t, func(o *Options) {
		o.PartySizes = map[models.GameMode]int{models.GameModeTournament: 3}
	})

	// 1000 anchors; 1045 and 955 are each within 50 of it but 90 apart from
	// each other, so only one of them may join.
	for _, p := range []models.PlayerIdentity{player("a", 1000), player("b", 1045), player("c", 955), player("d", 1030)} {
		_, err := svc.Enqueue(models.GameModeTournament, p)
		require.NoError(t, err)
		clock.Advance(10 * time.Millisecond)
	}

	matches := svc.Tick(models.GameModeTournament)
	require.Len(t, matches, 1)
	ids := playerIDs(matches[0].Players)
	assert.Len(t, ids, 3)
	assert.ElementsMatch(t, []string{"a", "b", "d"}, ids)
}

func TestEngine_FormedMatchesRespectTolerance(t *testing.T) {
	tol := Tolerance{Base: 50, GrowthPerSecond: 10}
	svc, clock := newTestService(t, func(o *Options) { o.Tolerance = tol })
	rng := rand.New(rand.NewSource(42))

	var formed []*models.Match
	next := 0
	for round := 0; round < 200; round++ {
		for k := rng.Intn(3); k > 0; k-- {
			_, err := svc.Enqueue(models.GameModeRanked, player(fmt.Sprintf("p%d", next), 800+rng.Intn(800)))
			require.NoError(t, err)
			next++
		}
		clock.Advance(time.Duration(rng.Intn(1500)) * time.Millisecond)
		formed = append(formed, svc.Tick(models.GameModeRanked)...)
	}
	require.NotEmpty(t, formed)

	for _, m := range formed {
		oldest := m.Entries[0].EnqueuedAt
		for _, e := range m.Entries {
			if e.EnqueuedAt.Before(oldest) {
				oldest = e.EnqueuedAt
			}
		}
		window := tol.At(m.CreatedAt.Sub(oldest))
		assert.Equal(t, window, m.Tolerance)
		for i := range m.Players {
			for j := i + 1; j < len(m.Players); j++ {
				diff := abs(m.Players[i].SkillRating - m.Players[j].SkillRating)
				assert.LessOrEqual(t, diff, m.Tolerance, "match %s", m.ID)
				assert.NotEqual(t, m.Players[i].ID, m.Players[j].ID)
			}
		}
	}
}

func TestEngine_EveryPlayerEventuallyMatched(t *testing.T) {
	svc, clock := newTestService(t, nil)

	skills := []int{0, 700, 1400, 2100, 2800, 3500}
	for i, skill := range skills {
		_, err := svc.Enqueue(models.GameModeRanked, player(fmt.Sprintf("p%d", i), skill))
		require.NoError(t, err)
	}

	matched := 0
	for tick := 0; tick < 1000 && matched < len(skills); tick++ {
		matched += 2 * len(svc.Tick(models.GameModeRanked))
		clock.Advance(250 * time.Millisecond)
	}
	assert.Equal(t, len(skills), matched)
	assert.Equal(t, 0, svc.Queue().Count(models.GameModeRanked))
}

func TestEngine_StartRunsPairingLoops(t *testing.T) {
	svc, clock := newTestService(t, nil)

	for _, id := range []string{"a", "b"} {
		_, err := svc.Enqueue(models.GameModeCasual, player(id, 1000))
		require.NoError(t, err)
	}

	svc.Start()
	defer svc.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, len(models.AllGameModes)))

	clock.Advance(defaultTickInterval)
	require.Eventually(t, func() bool {
		res, err := svc.Poll("a")
		return err == nil && res.State == models.PollStateFound
	}, 2*time.Second, 10*time.Millisecond)
}
