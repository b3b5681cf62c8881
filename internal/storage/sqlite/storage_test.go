// ABOUTME: Tests for the SQLite stores
// ABOUTME: Each test opens a fresh in-memory database

package sqlite

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harper/companion-engine/internal/models"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	st, err := NewStorageInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

var day = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func TestProfileStore_RoundTrip(t *testing.T) {
	st := newTestStorage(t)
	ctx := context.Background()

	got, err := st.Profiles.Get(ctx, "kid-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	profile := &models.UserProfile{
		UserID:      "kid-1",
		Name:        "Asha",
		Age:         7,
		Location:    "Pune, India",
		Timezone:    "Asia/Kolkata",
		Language:    "en",
		Interests:   []string{"space", "dinosaurs"},
		LastUpdated: day,
	}
	require.NoError(t, st.Profiles.Save(ctx, profile))

	got, err = st.Profiles.Get(ctx, "kid-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Asha", got.Name)
	assert.Equal(t, 7, got.Age)
	assert.Equal(t, []string{"space", "dinosaurs"}, got.Interests)
	assert.Equal(t, []string{}, got.Preferences)
	assert.True(t, got.LastUpdated.Equal(day))

	profile.Interests = append(profile.Interests, "music")
	require.NoError(t, st.Profiles.Save(ctx, profile))
	got, err = st.Profiles.Get(ctx, "kid-1")
	require.NoError(t, err)
	assert.Len(t, got.Interests, 3)
}

func TestProfileStore_RequiresUserID(t *testing.T) {
	st := newTestStorage(t)
	assert.Error(t, st.Profiles.Save(context.Background(), &models.UserProfile{Name: "x"}))
}

func TestTurnStore_AppendAndList(t *testing.T) {
	st := newTestStorage(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		turn, err := models.NewTurn("kid-1", "s1", fmt.Sprintf("hello %d", i), "hi", day.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		turn.Mode = models.ModeStory
		turn.ContentType = models.ContentStory
		turn.Emotion = models.EmotionalState{Mood: models.MoodHappy, Sentiment: models.SentimentPositive}
		require.NoError(t, st.Turns.Append(ctx, turn))
		// duplicate append is ignored
		require.NoError(t, st.Turns.Append(ctx, turn))
	}
	other, err := models.NewTurn("kid-2", "s2", "yo", "hey", day)
	require.NoError(t, err)
	require.NoError(t, st.Turns.Append(ctx, other))

	turns, err := st.Turns.ListByUser(ctx, "kid-1", day, day.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, "hello 0", turns[0].UserInput)
	assert.Equal(t, models.ModeStory, turns[0].Mode)
	assert.Equal(t, models.ContentStory, turns[0].ContentType)
	assert.Equal(t, models.MoodHappy, turns[0].Emotion.Mood)

	users, err := st.Turns.UsersActiveBetween(ctx, day, day.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"kid-1", "kid-2"}, users)

	n, err := st.Turns.DeleteBefore(ctx, day.Add(90*time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestSnapshotStore_UpsertAndList(t *testing.T) {
	st := newTestStorage(t)
	ctx := context.Background()

	for _, date := range []string{"2026-03-10", "2026-03-12", "2026-03-14"} {
		require.NoError(t, st.Snapshots.Upsert(ctx, &models.MemorySnapshot{
			UserID: "kid-1", Date: date, TotalInteractions: 1, Summary: "day " + date, CreatedAt: day,
		}))
	}
	// replacing keeps one row per day
	require.NoError(t, st.Snapshots.Upsert(ctx, &models.MemorySnapshot{
		UserID: "kid-1", Date: "2026-03-14", TotalInteractions: 9, Summary: "updated", CreatedAt: day,
	}))

	snaps, err := st.Snapshots.ListSince(ctx, "kid-1", "2026-03-11")
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "2026-03-14", snaps[0].Date)
	assert.Equal(t, "updated", snaps[0].Summary)
	assert.Equal(t, 9, snaps[0].TotalInteractions)

	got, err := st.Snapshots.Get(ctx, "kid-1", "2026-03-10")
	require.NoError(t, err)
	require.NotNil(t, got)
	missing, err := st.Snapshots.Get(ctx, "kid-1", "2020-01-01")
	require.NoError(t, err)
	assert.Nil(t, missing)

	n, err := st.Snapshots.DeleteBefore(ctx, "2026-03-12")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestEventStore_AppendAndList(t *testing.T) {
	st := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, st.Events.Append(ctx, &models.TelemetryEvent{
		EventID: "e1", Type: models.EventInteraction, UserID: "kid-1", SessionID: "s1",
		Timestamp: day, Payload: map[string]any{"mode": "chat"},
	}))
	require.NoError(t, st.Events.Append(ctx, &models.TelemetryEvent{
		EventID: "e2", Type: models.EventType("custom_thing"), UserID: "kid-1", Timestamp: day.Add(time.Second),
	}))

	events, err := st.Events.ListByUser(ctx, "kid-1", day, day.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "chat", events[0].Payload["mode"])
	assert.Equal(t, models.EventType("custom_thing"), events[1].Type)
	assert.Nil(t, events[1].Payload)
}

func TestDailyStore_MergeAccumulates(t *testing.T) {
	st := newTestStorage(t)
	ctx := context.Background()

	_, err := st.Daily.Merge(ctx, "kid-1", "2026-03-14", map[string]int{"interaction": 1}, map[string]int{"chat": 1}, day)
	require.NoError(t, err)
	rec, err := st.Daily.Merge(ctx, "kid-1", "2026-03-14", map[string]int{"interaction": 2, "error": 1}, map[string]int{"chat": 1, "story": 1}, day)
	require.NoError(t, err)

	assert.Equal(t, 3, rec.Counters["interaction"])
	assert.Equal(t, 1, rec.Counters["error"])
	assert.Equal(t, 2, rec.FeatureUsage["chat"])

	records, err := st.Daily.ListRange(ctx, "", "2026-03-01", "2026-03-31")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 1, records[0].FeatureUsage["story"])
}

func TestDailyStore_ConcurrentMergesDoNotLoseUpdates(t *testing.T) {
	st := newTestStorage(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := st.Daily.Merge(ctx, "kid-1", "2026-03-14", map[string]int{"interaction": 1}, nil, day)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	records, err := st.Daily.ListRange(ctx, "kid-1", "2026-03-14", "2026-03-14")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 20, records[0].Counters["interaction"])
}

func TestFlagStore_OverridesAndAssignments(t *testing.T) {
	st := newTestStorage(t)
	ctx := context.Background()

	flags, err := st.Flags.GetOverrides(ctx, "kid-1")
	require.NoError(t, err)
	assert.Empty(t, flags)

	require.NoError(t, st.Flags.SaveOverrides(ctx, "kid-1", map[string]bool{"jokes_enabled": false}, day))
	flags, err = st.Flags.GetOverrides(ctx, "kid-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"jokes_enabled": false}, flags)

	v, err := st.Flags.AssignVariant(ctx, "cadence", "kid-1", "control", day)
	require.NoError(t, err)
	assert.Equal(t, "control", v)

	// first assignment wins
	v, err = st.Flags.AssignVariant(ctx, "cadence", "kid-1", "eager", day)
	require.NoError(t, err)
	assert.Equal(t, "control", v)
}

func TestSessionSummaryStore(t *testing.T) {
	st := newTestStorage(t)
	ctx := context.Background()

	agg := models.NewSessionAggregate("s1", "kid-1", day)
	agg.Counters["interaction"] = 4
	agg.EndedAt = day.Add(10 * time.Minute)
	agg.SessionDurationSeconds = 600
	agg.EngagementScore = 0.4
	require.NoError(t, st.Sessions.Save(ctx, &agg))

	got, err := st.Sessions.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 4, got.Counters["interaction"])
	assert.InDelta(t, 0.4, got.EngagementScore, 1e-9)

	counts, err := st.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts["session_summaries"])
}
