// ABOUTME: Tests for session aggregation, daily snapshots, memory context and cleanup
// ABOUTME: Uses in-memory SQLite stores with a fixed clock and a scripted generator
package memory

import (
	"context"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harper/companion-engine/internal/models"
	"github.com/harper/companion-engine/internal/storage/sqlite"
	"github.com/harper/companion-engine/internal/testutil"
)

var evening = time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)

type fixture struct {
	st    *sqlite.Storage
	gen   *testutil.Generator
	clock *testutil.Clock
	store *Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := sqlite.NewStorageInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	f := &fixture{
		st:    st,
		gen:   &testutil.Generator{Reply: "Sam had a wonderful day full of dinosaurs."},
		clock: testutil.NewClock(evening),
	}
	f.store = NewStore(st.Turns, st.Snapshots, st.Profiles, f.gen, f.clock, nil, DefaultConfig())
	return f
}

func turnAt(t *testing.T, at time.Time, input string, mood models.Mood) models.Turn {
	t.Helper()
	turn, err := models.NewTurn("u1", "s1", input, "That sounds fun!", at)
	require.NoError(t, err)
	turn.Emotion = models.EmotionalState{Mood: mood, Energy: models.EnergyMedium, Sentiment: models.SentimentNeutral}
	return *turn
}

func TestExtractPreferences(t *testing.T) {
	tests := []struct {
		text string
		want map[string]string
	}{
		{"I love dinosaurs so much", map[string]string{"dinosaurs so much": Likes}},
		{"I don't like broccoli.", map[string]string{"broccoli": Dislikes}},
		{"my favorite is blue, and i hate rain", map[string]string{"blue": Likes, "rain": Dislikes}},
		{"I really like cats!", map[string]string{"cats": Likes}},
		{"what do you like", map[string]string{}},
		{"hi like that", map[string]string{}},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractPreferences(tt.text))
		})
	}
}

func TestRecord_UpdatesAggregatesAndPersists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mem := models.NewSessionMemory()

	first := turnAt(t, evening, "I love my dog", models.MoodHappy)
	second := turnAt(t, evening.Add(time.Minute), "the moon is big and my dog barks", models.MoodHappy)
	second.Achievement = "Completed Color Hunt"
	third := turnAt(t, evening.Add(2*time.Minute), "i am sad now", models.MoodSad)

	for _, turn := range []models.Turn{first, second, third} {
		require.NoError(t, f.store.Record(ctx, &mem, turn))
	}

	assert.Len(t, mem.Turns, 3)
	assert.Equal(t, map[string]int{"animals": 2, "space": 1}, mem.Topics)
	assert.Equal(t, Likes, mem.Preferences["my dog"])
	assert.Equal(t, []string{"Completed Color Hunt"}, mem.Achievements)
	assert.Equal(t, []string{"happy (medium energy)", "sad (medium energy)"}, mem.EmotionalPatterns)

	from, to := DayBounds(evening)
	stored, err := f.st.Turns.ListByUser(ctx, "u1", from, to)
	require.NoError(t, err)
	assert.Len(t, stored, 3)
}

func seedDay(t *testing.T, f *fixture) {
	t.Helper()
	ctx := context.Background()
	morning := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	mem := models.NewSessionMemory()
	turns := []models.Turn{
		turnAt(t, morning, "I love dinosaurs", models.MoodHappy),
		turnAt(t, morning.Add(5*time.Minute), "the t-rex dinosaur is huge", models.MoodHappy),
		turnAt(t, morning.Add(10*time.Minute), "why did the dinosaurs go away?", models.MoodSad),
		turnAt(t, morning.Add(15*time.Minute), "can we go to space", models.MoodNeutral),
		// yesterday, excluded
		turnAt(t, time.Date(2026, 3, 13, 23, 59, 0, 0, time.UTC), "dinosaur dinosaur dinosaur", models.MoodHappy),
	}
	turns[2].Mode = models.ModeTeaching
	turns[3].Achievement = "Completed Memory Challenge"
	for _, turn := range turns {
		require.NoError(t, f.store.Record(ctx, &mem, turn))
	}
	require.NoError(t, f.st.Profiles.Save(ctx, &models.UserProfile{UserID: "u1", Name: "Sam", Age: 6, Interests: []string{"Music"}}))
}

func TestGenerateDailySnapshot(t *testing.T) {
	f := newFixture(t)
	seedDay(t, f)
	ctx := context.Background()

	snap, err := f.store.GenerateDailySnapshot(ctx, "u1", evening)
	require.NoError(t, err)

	assert.Equal(t, "2026-03-14", snap.Date)
	assert.Equal(t, 4, snap.TotalInteractions)
	assert.Equal(t, "Sam had a wonderful day full of dinosaurs.", snap.Summary)
	assert.Equal(t, []string{"dinosaurs", "space"}, snap.TopicsDiscussed)
	assert.Equal(t, []string{"dinosaurs", "space"}, snap.Insights.FavoriteTopics)
	assert.Equal(t, models.MoodHappy, snap.Insights.DominantMood)
	assert.Equal(t, []string{"happy x2", "sad x1", "neutral x1"}, snap.MoodPatterns)
	assert.Equal(t, 1, snap.Insights.LearningMoments)
	assert.Equal(t, 10, snap.Insights.MostActiveHour)
	assert.Equal(t, 1, snap.Insights.GamesCompleted)
	assert.Equal(t, Likes, snap.PreferencesDiscovered["dinosaurs"])
	assert.Equal(t, []string{"Completed Memory Challenge"}, snap.Achievements)
	assert.InDelta(t, 15, snap.Engagement.DurationMinutes, 1e-9)
	assert.InDelta(t, 0.4, snap.Engagement.Score, 1e-9)
	assert.Contains(t, snap.ParentSummary, "Sam chatted 4 times today")
	assert.Contains(t, snap.ParentSummary, "Completed Memory Challenge")

	req, ok := f.gen.LastRequest()
	require.True(t, ok)
	assert.Contains(t, req.UserMessage, "Child: I love dinosaurs")
	assert.NotContains(t, req.UserMessage, "dinosaur dinosaur dinosaur")

	stored, err := f.st.Snapshots.Get(ctx, "u1", "2026-03-14")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, snap.Summary, stored.Summary)

	profile, err := f.st.Profiles.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Music", "dinosaurs"}, profile.Interests)
}

func TestGenerateDailySnapshot_Idempotent(t *testing.T) {
	f := newFixture(t)
	seedDay(t, f)
	ctx := context.Background()

	_, err := f.store.GenerateDailySnapshot(ctx, "u1", evening)
	require.NoError(t, err)
	_, err = f.store.GenerateDailySnapshot(ctx, "u1", evening)
	require.NoError(t, err)

	profile, err := f.st.Profiles.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Music", "dinosaurs"}, profile.Interests)

	snaps, err := f.st.Snapshots.ListSince(ctx, "u1", "2026-03-01")
	require.NoError(t, err)
	assert.Len(t, snaps, 1)
}

func TestGenerateDailySnapshot_SummaryFallback(t *testing.T) {
	f := newFixture(t)
	f.gen.Err = testutil.ErrFake
	seedDay(t, f)

	snap, err := f.store.GenerateDailySnapshot(context.Background(), "u1", evening)
	require.NoError(t, err)
	assert.Equal(t, "Sam had 4 conversations today and talked about dinosaurs and space.", snap.Summary)
}

func TestGenerateDailySnapshot_EmptyDayNotPersisted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	snap, err := f.store.GenerateDailySnapshot(ctx, "nobody", evening)
	require.NoError(t, err)
	assert.Zero(t, snap.TotalInteractions)
	assert.Empty(t, snap.TopicsDiscussed)
	assert.Zero(t, f.gen.Calls())

	stored, err := f.st.Snapshots.Get(ctx, "nobody", "2026-03-14")
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestBuildTranscript_Limit(t *testing.T) {
	turns := []models.Turn{
		{UserInput: "one two three", AIResponse: "four five six"},
		{UserInput: "seven eight nine", AIResponse: "ten"},
	}
	out := buildTranscript(turns, 30)
	assert.Equal(t, 30, utf8.RuneCountInString(out))
	assert.True(t, len(buildTranscript(turns, 5000)) > 30)
}

func TestGetMemoryContext(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	snaps := []models.MemorySnapshot{
		{UserID: "u1", Date: "2026-03-13", Summary: "newest", TopicsDiscussed: []string{"food"},
			PreferencesDiscovered: map[string]string{"pizza": Likes}, Achievements: []string{"Completed Riddle Me This"}, MoodPatterns: []string{"happy x3"}},
		{UserID: "u1", Date: "2026-03-11", Summary: "older", TopicsDiscussed: []string{"animals", "food"},
			PreferencesDiscovered: map[string]string{"pizza": Dislikes, "cats": Likes}, MoodPatterns: []string{"sad x1"}},
		{UserID: "u1", Date: "2026-03-01", Summary: "too old", TopicsDiscussed: []string{"space"}},
	}
	for i := range snaps {
		require.NoError(t, f.st.Snapshots.Upsert(ctx, &snaps[i]))
	}

	mc, err := f.store.GetMemoryContext(ctx, "u1", 7)
	require.NoError(t, err)

	want := models.MemoryContext{
		UserID:          "u1",
		LookbackDays:    7,
		SnapshotCount:   2,
		Preferences:     map[string]string{"pizza": Likes, "cats": Likes},
		Topics:          []string{"food", "animals"},
		Achievements:    []string{"Completed Riddle Me This"},
		MoodPatterns:    []string{"happy x3", "sad x1"},
		RecentSummaries: []string{"newest", "older"},
	}
	if diff := cmp.Diff(want, mc); diff != "" {
		t.Errorf("GetMemoryContext() mismatch (-want +got):\n%s", diff)
	}
}

func TestGetMemoryContext_UnknownUser(t *testing.T) {
	f := newFixture(t)
	mc, err := f.store.GetMemoryContext(context.Background(), "ghost", 0)
	require.NoError(t, err)
	assert.True(t, mc.IsEmpty())
	assert.Equal(t, 7, mc.LookbackDays)
	assert.Empty(t, mc.Preferences)
}

func TestCleanup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, date := range []string{"2026-01-20", "2026-03-10"} {
		require.NoError(t, f.st.Snapshots.Upsert(ctx, &models.MemorySnapshot{UserID: "u1", Date: date}))
	}
	mem := models.NewSessionMemory()
	require.NoError(t, f.store.Record(ctx, &mem, turnAt(t, time.Date(2026, 1, 20, 12, 0, 0, 0, time.UTC), "old news", models.MoodNeutral)))
	require.NoError(t, f.store.Record(ctx, &mem, turnAt(t, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC), "recent news", models.MoodNeutral)))

	res, err := f.store.Cleanup(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Snapshots)
	assert.Equal(t, int64(1), res.Turns)

	left, err := f.st.Snapshots.ListSince(ctx, "u1", "2000-01-01")
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "2026-03-10", left[0].Date)
}
