// ABOUTME: Tests for event tracking, engagement scoring, flags, A/B bucketing and analytics
// ABOUTME: Backed by in-memory SQLite; failure paths use stub repositories
package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/harper/companion-engine/internal/models"
	"github.com/harper/companion-engine/internal/storage/sqlite"
	"github.com/harper/companion-engine/internal/testutil"
)

var noon = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

var cadenceTest = models.ABTest{
	Name:   "game_cadence",
	Active: true,
	Variants: []models.Variant{
		{Name: "control", Traffic: 50},
		{Name: "quiet", Traffic: 50, Flags: map[string]bool{FlagMicroGames: false}},
	},
}

func newTestStore(t *testing.T, tests ...models.ABTest) (*Store, *sqlite.Storage, *testutil.Clock) {
	t.Helper()
	st, err := sqlite.NewStorageInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	clock := testutil.NewClock(noon)
	return NewStore(st.Events, st.Daily, st.Flags, st.Sessions, tests, clock, nil), st, clock
}

func TestEngagementScore(t *testing.T) {
	full := map[string]int{
		"interaction":       10,
		"voice_interaction": 5,
		"game_started":      3,
		"story_played":      1,
		"song_played":       1,
	}
	assert.InDelta(t, 1.0, EngagementScore(full), 1e-9)

	penalized := map[string]int{"interaction": 5, "error": 2, "safety_violation": 1}
	assert.InDelta(t, 0.3, EngagementScore(penalized), 1e-9)

	assert.Zero(t, EngagementScore(map[string]int{"safety_violation": 10}))
	assert.Zero(t, EngagementScore(nil))
	assert.InDelta(t, 0.2, EngagementScore(map[string]int{"error": 100, "interaction": 4}), 1e-9)
}

func TestTrack_UpdatesAggregateAndDaily(t *testing.T) {
	store, st, clock := newTestStore(t)
	ctx := context.Background()
	agg := models.NewSessionAggregate("s1", "u1", noon)

	store.Track(ctx, &agg, "u1", "s1", models.EventInteraction, nil)
	clock.Advance(90 * time.Second)
	store.Track(ctx, &agg, "u1", "s1", models.EventVoiceInteraction, nil)
	store.Track(ctx, &agg, "u1", "s1", models.EventGameStarted, map[string]any{"game_type": "riddle"})

	assert.Equal(t, map[string]int{"interaction": 1, "voice_interaction": 1, "game_started": 1}, agg.Counters)
	assert.InDelta(t, 90, agg.SessionDurationSeconds, 1e-9)
	assert.InDelta(t, 0.1+0.2+0.15, agg.EngagementScore, 1e-9)

	events, err := st.Events.ListByUser(ctx, "u1", noon.Add(-time.Hour), noon.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.NotEmpty(t, events[0].EventID)
	assert.Equal(t, "s1", events[0].SessionID)

	records, err := st.Daily.ListRange(ctx, "u1", "2026-03-14", "2026-03-14")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 1, records[0].Counters["game_started"])
	assert.Equal(t, map[string]int{"voice": 1, "game:riddle": 1}, records[0].FeatureUsage)
}

func TestTrack_UnknownTypeWarns(t *testing.T) {
	st, err := sqlite.NewStorageInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	core, logs := observer.New(zapcore.WarnLevel)
	store := NewStore(st.Events, st.Daily, st.Flags, st.Sessions, nil, testutil.NewClock(noon), zap.New(core))

	agg := models.NewSessionAggregate("s1", "u1", noon)
	store.Track(context.Background(), &agg, "u1", "s1", models.EventType("confetti"), nil)

	assert.Equal(t, 1, agg.Counters["confetti"])
	assert.Equal(t, 1, logs.FilterMessage("unknown telemetry event type").Len())
}

type failingRepo struct{}

func (failingRepo) Append(context.Context, *models.TelemetryEvent) error { return testutil.ErrFake }
func (failingRepo) DeleteBefore(context.Context, time.Time) (int64, error) {
	return 0, testutil.ErrFake
}

type failingDaily struct{}

func (failingDaily) Merge(context.Context, string, string, map[string]int, map[string]int, time.Time) (*models.DailyTelemetryRecord, error) {
	return nil, testutil.ErrFake
}
func (failingDaily) ListRange(context.Context, string, string, string) ([]models.DailyTelemetryRecord, error) {
	return nil, testutil.ErrFake
}
func (failingDaily) DeleteBefore(context.Context, string) (int64, error) { return 0, testutil.ErrFake }

func TestTrack_SwallowsStorageFailures(t *testing.T) {
	st, err := sqlite.NewStorageInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	core, logs := observer.New(zapcore.WarnLevel)
	store := NewStore(failingRepo{}, failingDaily{}, st.Flags, st.Sessions, nil, testutil.NewClock(noon), zap.New(core))

	agg := models.NewSessionAggregate("s1", "u1", noon)
	assert.NotPanics(t, func() {
		store.Track(context.Background(), &agg, "u1", "s1", models.EventInteraction, nil)
	})
	assert.Equal(t, 1, agg.Counters["interaction"])
	assert.Equal(t, 2, logs.Len())

	_, err = store.GetAnalytics(context.Background(), noon, noon, "u1")
	assert.ErrorIs(t, err, testutil.ErrFake)
}

func TestFlags_DefaultsAndUpdates(t *testing.T) {
	store, st, _ := newTestStore(t)
	ctx := context.Background()

	flags := store.ResolveFlags(ctx, "u1")
	assert.Len(t, flags, 18)
	for _, name := range FlagNames() {
		assert.True(t, flags.Enabled(name), name)
	}

	_, err := store.UpdateFlags(ctx, "u1", map[string]bool{"time_travel": true})
	assert.ErrorIs(t, err, ErrUnknownFlag)
	overrides, err := st.Flags.GetOverrides(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, overrides)

	flags, err = store.UpdateFlags(ctx, "u1", map[string]bool{FlagMicroGames: false})
	require.NoError(t, err)
	assert.False(t, flags.Enabled(FlagMicroGames))

	flags, err = store.UpdateFlags(ctx, "u1", map[string]bool{FlagVoiceEnabled: false})
	require.NoError(t, err)
	assert.False(t, flags.Enabled(FlagMicroGames))
	assert.False(t, flags.Enabled(FlagVoiceEnabled))

	assert.True(t, store.ResolveFlags(ctx, "someone-else").Enabled(FlagMicroGames))
}

func TestPickVariant(t *testing.T) {
	name, ok := PickVariant(cadenceTest, 49)
	assert.True(t, ok)
	assert.Equal(t, "control", name)

	name, ok = PickVariant(cadenceTest, 50)
	assert.True(t, ok)
	assert.Equal(t, "quiet", name)

	partial := models.ABTest{Name: "p", Variants: []models.Variant{{Name: "a", Traffic: 20}, {Name: "b", Traffic: 30}}}
	_, ok = PickVariant(partial, 60)
	assert.False(t, ok)
}

func TestAssignVariant_Deterministic(t *testing.T) {
	ctx := context.Background()
	users := []string{"alice", "bob", "chandra", "deepa", "eli"}

	first, _, _ := newTestStore(t, cadenceTest)
	second, _, _ := newTestStore(t, cadenceTest)
	for _, user := range users {
		want, _ := PickVariant(cadenceTest, Bucket(user))
		for i := 0; i < 3; i++ {
			got, err := first.AssignVariant(ctx, cadenceTest.Name, user)
			require.NoError(t, err)
			assert.Equal(t, want, got, user)
		}
		got, err := second.AssignVariant(ctx, cadenceTest.Name, user)
		require.NoError(t, err)
		assert.Equal(t, want, got, user)
	}

	_, err := first.AssignVariant(ctx, "missing", "alice")
	assert.Error(t, err)
}

func TestResolveFlags_ABOverlay(t *testing.T) {
	store, st, _ := newTestStore(t, cadenceTest)
	ctx := context.Background()

	// a recorded assignment wins over the hash
	_, err := st.Flags.AssignVariant(ctx, cadenceTest.Name, "u1", "quiet", noon)
	require.NoError(t, err)
	got, err := store.AssignVariant(ctx, cadenceTest.Name, "u1")
	require.NoError(t, err)
	assert.Equal(t, "quiet", got)

	assert.False(t, store.ResolveFlags(ctx, "u1").Enabled(FlagMicroGames))

	_, err = store.UpdateFlags(ctx, "u1", map[string]bool{FlagABTesting: false})
	require.NoError(t, err)
	assert.True(t, store.ResolveFlags(ctx, "u1").Enabled(FlagMicroGames))
}

func TestGetAnalytics(t *testing.T) {
	store, st, _ := newTestStore(t)
	ctx := context.Background()

	_, err := st.Daily.Merge(ctx, "u1", "2026-03-13", map[string]int{"interaction": 2}, map[string]int{"stories": 3, "jokes": 1}, noon)
	require.NoError(t, err)
	_, err = st.Daily.Merge(ctx, "u1", "2026-03-14", map[string]int{"interaction": 10, "voice_interaction": 5},
		map[string]int{"stories": 1, "songs": 2, "voice": 5, "text": 1, "facts": 1, "game:riddle": 1}, noon)
	require.NoError(t, err)
	_, err = st.Daily.Merge(ctx, "u2", "2026-03-14", map[string]int{"interaction": 4}, nil, noon)
	require.NoError(t, err)

	a, err := store.GetAnalytics(ctx, noon.AddDate(0, 0, -1), noon, "")
	require.NoError(t, err)

	assert.Equal(t, "2026-03-13", a.From)
	assert.Equal(t, 16, a.Totals["interaction"])
	assert.Equal(t, 4, a.FeatureUsage["stories"])
	require.Len(t, a.Daily, 2)
	assert.Equal(t, "2026-03-13", a.Daily[0].Date)
	assert.InDelta(t, 0.2, a.Daily[0].EngagementScore, 1e-9)
	assert.InDelta(t, 0.7, a.Daily[1].EngagementScore, 1e-9)
	assert.Equal(t, 14, a.Daily[1].Counters["interaction"])
	assert.Equal(t, models.TrendIncreasing, a.Trend)
	assert.Equal(t, []models.FeatureCount{
		{Feature: "voice", Count: 5},
		{Feature: "stories", Count: 4},
		{Feature: "songs", Count: 2},
		{Feature: "facts", Count: 1},
		{Feature: "game:riddle", Count: 1},
	}, a.TopFeatures)

	single, err := store.GetAnalytics(ctx, noon, noon.AddDate(0, 0, -1), "u2")
	require.NoError(t, err)
	assert.Equal(t, 4, single.Totals["interaction"])
	assert.Equal(t, models.TrendStable, single.Trend)
}

func TestEngagementTrend(t *testing.T) {
	days := func(scores ...float64) []models.DailyBreakdown {
		out := make([]models.DailyBreakdown, len(scores))
		for i, s := range scores {
			out[i].EngagementScore = s
		}
		return out
	}
	assert.Equal(t, models.TrendDecreasing, engagementTrend(days(0.9, 0.8, 0.3, 0.2)))
	assert.Equal(t, models.TrendStable, engagementTrend(days(0.5, 0.55, 0.5, 0.58)))
	assert.Equal(t, models.TrendIncreasing, engagementTrend(days(0.1, 0.2, 0.6)))
	assert.Equal(t, models.TrendStable, engagementTrend(days(0.9)))
}

func TestCloseSessionAndCleanup(t *testing.T) {
	store, st, clock := newTestStore(t)
	ctx := context.Background()

	agg := models.NewSessionAggregate("s1", "u1", noon)
	store.Track(ctx, &agg, "u1", "s1", models.EventInteraction, nil)
	clock.Advance(10 * time.Minute)
	store.CloseSession(ctx, &agg)

	saved, err := st.Sessions.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.InDelta(t, 600, saved.SessionDurationSeconds, 1e-9)
	assert.InDelta(t, 0.1, saved.EngagementScore, 1e-9)

	clock.Advance(91 * 24 * time.Hour)
	res, err := store.Cleanup(ctx, 90)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Events)
	assert.Equal(t, int64(1), res.Daily)
	assert.Equal(t, int64(1), res.Sessions)
}
