// ABOUTME: End-to-end tests of the turn pipeline over in-memory SQLite and fake capabilities
// ABOUTME: Covers the gates, short-circuits, degraded capabilities and the exposed operations
package companion

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/harper/companion-engine/internal/capability"
	"github.com/harper/companion-engine/internal/config"
	"github.com/harper/companion-engine/internal/llm"
	"github.com/harper/companion-engine/internal/models"
	"github.com/harper/companion-engine/internal/safety"
	"github.com/harper/companion-engine/internal/session"
	"github.com/harper/companion-engine/internal/storage/sqlite"
	"github.com/harper/companion-engine/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	sid   = "session-1"
	uid   = "kid-1"
	happy = "I love playing with my puppy"
)

type fixture struct {
	engine *Engine
	store  *sqlite.Storage
	clock  *testutil.Clock
	gen    *testutil.Generator
	speech *testutil.Speech
	guard  *testutil.Safety
}

func newFixture(t *testing.T, tweak func(*config.Config), opts ...Option) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Debug = true
	if tweak != nil {
		tweak(cfg)
	}

	store, err := sqlite.NewStorageInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	f := &fixture{
		store:  store,
		clock:  testutil.NewClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)),
		gen:    &testutil.Generator{Reply: "That sounds like so much fun!"},
		speech: &testutil.Speech{Audio: []byte("mp3")},
		guard:  &testutil.Safety{},
	}
	providers := &llm.Providers{Name: "fake", Generator: f.gen, STT: f.speech, TTS: f.speech}
	base := []Option{
		WithClock(f.clock),
		WithRNG(&testutil.RNG{}),
		WithSafety(f.guard),
		WithLibrary(&testutil.Library{}),
	}
	f.engine, err = New(cfg, store, providers, append(base, opts...)...)
	require.NoError(t, err)
	return f
}

func (f *fixture) turn(t *testing.T, utterance string) *TurnResult {
	t.Helper()
	res, err := f.engine.HandleTurn(context.Background(), TurnRequest{SessionID: sid, UserID: uid, Utterance: utterance})
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

// inspect runs fn under the session lock.
func (f *fixture) inspect(t *testing.T, fn func(s *session.Session)) {
	t.Helper()
	err := f.engine.sessions.WithSession(context.Background(), sid, uid, func(s *session.Session, _ bool) error {
		fn(s)
		return nil
	})
	require.NoError(t, err)
}

func TestHandleTurn_GeneratesReply(t *testing.T) {
	f := newFixture(t, nil)

	res := f.turn(t, happy)
	assert.Equal(t, "That sounds like so much fun!", res.Text)
	assert.Equal(t, []byte("mp3"), res.Audio)
	assert.Equal(t, models.ContentConversation, res.ContentType)
	assert.Equal(t, models.ModeChat, res.Metadata.Mode)
	assert.Empty(t, res.Metadata.Degraded)
	require.NotNil(t, res.Metadata.Emotion)
	assert.Equal(t, models.MoodHappy, res.Metadata.Emotion.Mood)

	req, ok := f.gen.LastRequest()
	require.True(t, ok)
	assert.Equal(t, happy, req.UserMessage)
	assert.Positive(t, req.TokenBudget)
	assert.Contains(t, req.SystemPrompt, "Buddy")
	assert.Empty(t, req.History)

	f.turn(t, "my puppy likes to run around the park")
	req, _ = f.gen.LastRequest()
	require.Len(t, req.History, 2)
	assert.Equal(t, happy, req.History[0].Content)

	f.inspect(t, func(s *session.Session) {
		assert.Equal(t, 2, s.InteractionCount)
		assert.Len(t, s.Memory.Turns, 2)
		assert.Equal(t, "That sounds like so much fun!", s.LastAIResponse)
		assert.Equal(t, 1, s.Telemetry.Counters[string(models.EventSessionStart)])
		assert.Equal(t, 2, s.Telemetry.Counters[string(models.EventInteraction)])
		assert.Equal(t, 2, s.Telemetry.Counters[string(models.EventTextInteraction)])
	})
}

func TestHandleTurn_Validation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	tooHigh, negative := 1.5, -0.1

	for name, req := range map[string]TurnRequest{
		"no session":     {UserID: uid, Utterance: happy},
		"no user":        {SessionID: sid, Utterance: happy},
		"blank":          {SessionID: sid, UserID: uid, Utterance: "   "},
		"bad confidence": {SessionID: sid, UserID: uid, Utterance: happy, STTConfidence: &tooHigh},
		"negative":       {SessionID: sid, UserID: uid, Utterance: happy, STTConfidence: &negative},
	} {
		_, err := f.engine.HandleTurn(ctx, req)
		assert.ErrorIs(t, err, ErrInvalidInput, name)
	}
	assert.Zero(t, f.engine.sessions.Len())

	f.turn(t, happy)
	_, err := f.engine.HandleTurn(ctx, TurnRequest{SessionID: sid, UserID: "someone-else", Utterance: happy})
	var ie *InputError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "session_id", ie.Field)
}

func TestHandleTurn_RateLimitThenListening(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.RateLimitPerHour = 2 })

	for range 3 {
		assert.Equal(t, models.ContentConversation, f.turn(t, happy).ContentType)
	}

	res := f.turn(t, happy)
	assert.Equal(t, models.ContentThrottle, res.ContentType)
	assert.Equal(t, throttleReply, res.Text)

	res = f.turn(t, happy)
	assert.Equal(t, models.ContentListening, res.ContentType)
	assert.Equal(t, listeningReply, res.Text)
	assert.Equal(t, 3, f.gen.Calls())

	f.inspect(t, func(s *session.Session) {
		assert.Equal(t, 3, s.InteractionCount)
		assert.Equal(t, f.clock.Now().Add(30*time.Second), s.MicLockedUntil)
		assert.Equal(t, 1, s.Telemetry.Counters[string(models.EventRateLimited)])
	})
}

func TestHandleTurn_BreakSuggestion(t *testing.T) {
	f := newFixture(t, nil)
	f.turn(t, happy)

	f.clock.Advance(21 * time.Minute)
	res := f.turn(t, happy)
	assert.Equal(t, models.ContentBreak, res.ContentType)
	assert.Equal(t, breakReply, res.Text)

	f.inspect(t, func(s *session.Session) {
		assert.Equal(t, 1, s.InteractionCount)
		assert.Equal(t, f.clock.Now(), s.LastBreakSuggestion)
		assert.Equal(t, 1, s.Telemetry.Counters[string(models.EventBreakSuggested)])
	})
}

func TestHandleTurn_GameFlow(t *testing.T) {
	f := newFixture(t, nil)

	res := f.turn(t, "I am so bored right now")
	assert.Equal(t, models.ContentGame, res.ContentType)
	assert.Equal(t, models.ModeGame, res.Metadata.Mode)
	require.NotNil(t, res.Metadata.Game)
	assert.Equal(t, models.GameAnimalSounds, res.Metadata.Game.Type)
	assert.Equal(t, models.TriggerBoredom, res.Metadata.Game.Trigger)
	assert.Contains(t, res.Text, "What sound does a cow make?")
	assert.Zero(t, f.gen.Calls())

	for i := 1; i <= 3; i++ {
		res = f.turn(t, "I think the cow says moo")
		require.NotNil(t, res.Metadata.Game)
		assert.True(t, res.Metadata.Game.Correct)
		assert.Equal(t, i, res.Metadata.Game.Score)
	}
	assert.True(t, res.Metadata.Game.Ended)
	assert.Equal(t, models.GameCompleted, res.Metadata.Game.EndReason)
	assert.Equal(t, "Completed Animal Sounds", res.Metadata.Achievement)

	f.inspect(t, func(s *session.Session) {
		assert.Nil(t, s.ActiveGame)
		assert.Equal(t, models.ModeChat, s.Dialogue.Current)
		assert.Equal(t, []string{"Completed Animal Sounds"}, s.Memory.Achievements)
		assert.Equal(t, 1, s.Telemetry.Counters[string(models.EventGameStarted)])
		assert.Equal(t, 3, s.Telemetry.Counters[string(models.EventGameAnswer)])
		assert.Equal(t, 1, s.Telemetry.Counters[string(models.EventGameCompleted)])
	})
}

func TestHandleTurn_GameResumesAfterRepair(t *testing.T) {
	f := newFixture(t, nil)

	res := f.turn(t, "I am so bored right now")
	require.Equal(t, models.ContentGame, res.ContentType)

	res = f.turn(t, "no no I said dinosaur")
	assert.Equal(t, models.ContentRepair, res.ContentType)
	f.inspect(t, func(s *session.Session) {
		assert.NotNil(t, s.ActiveGame)
		assert.Equal(t, models.ModeRepair, s.Dialogue.Current)
	})

	res = f.turn(t, "I think the cow says moo")
	require.NotNil(t, res.Metadata.Game)
	assert.True(t, res.Metadata.Game.Correct)
	assert.Equal(t, models.ModeGame, res.Metadata.Mode)

	f.inspect(t, func(s *session.Session) {
		assert.Equal(t, models.ModeGame, s.Dialogue.Current)
		hist := s.Dialogue.History()
		require.NotEmpty(t, hist)
		last := hist[len(hist)-1]
		assert.Equal(t, models.ModeGame, last.Mode)
		assert.Equal(t, "game_resumed", last.Reason)
	})
}

func TestHandleTurn_RepairShortCircuitStillRecords(t *testing.T) {
	f := newFixture(t, nil)

	res := f.turn(t, "no no I said dinosaur")
	assert.Equal(t, models.ContentRepair, res.ContentType)
	assert.Equal(t, models.ModeRepair, res.Metadata.Mode)
	require.NotNil(t, res.Metadata.Repair)
	assert.True(t, res.Metadata.Repair.Needed)
	assert.Equal(t, models.RepairExplicit, res.Metadata.Repair.Type)
	assert.Equal(t, res.Metadata.Repair.Response, res.Text)
	assert.Zero(t, f.gen.Calls())

	f.inspect(t, func(s *session.Session) {
		require.Len(t, s.Memory.Turns, 1)
		assert.Equal(t, models.ContentRepair, s.Memory.Turns[0].ContentType)
		assert.Equal(t, 1, s.Telemetry.Counters[string(models.EventRepairTriggered)])
		assert.Equal(t, 1, s.Telemetry.Counters[string(models.EventInteraction)])
	})
}

func TestHandleTurn_LowConfidenceTextTurn(t *testing.T) {
	f := newFixture(t, nil)
	conf := 0.3

	res, err := f.engine.HandleTurn(context.Background(), TurnRequest{
		SessionID: sid, UserID: uid, Utterance: happy, STTConfidence: &conf,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ContentRepair, res.ContentType)
	require.NotNil(t, res.Metadata.Repair)
	assert.Equal(t, models.RepairLowConfidence, res.Metadata.Repair.Type)
	assert.True(t, res.Metadata.Repair.Has(models.IndicatorLowConfidence))
	assert.Zero(t, f.gen.Calls())
	assert.Zero(t, f.speech.SynthesisCount())
}

func TestHandleTurn_ContractionsReachComfort(t *testing.T) {
	f := newFixture(t, nil)

	res := f.turn(t, "I'm sad")
	assert.Nil(t, res.Metadata.Repair)
	assert.Equal(t, models.ModeComfort, res.Metadata.Mode)
	assert.Equal(t, models.ContentConversation, res.ContentType)
	assert.Equal(t, 1, f.gen.Calls())
}

func TestHandleTurn_SafetyRedirect(t *testing.T) {
	f := newFixture(t, nil)
	f.guard.Blocked = []string{"knife"}

	res := f.turn(t, "can you tell me about a knife")
	assert.Equal(t, models.ContentSafetyRedirect, res.ContentType)
	assert.Equal(t, safety.Redirect(6), res.Text)
	assert.Zero(t, f.gen.Calls())

	f.inspect(t, func(s *session.Session) {
		assert.Empty(t, s.Memory.Turns)
		assert.Equal(t, 1, s.Telemetry.Counters[string(models.EventSafetyViolation)])
	})
}

func TestHandleTurn_SafetyFailsClosed(t *testing.T) {
	f := newFixture(t, nil)
	f.guard.Err = testutil.ErrFake

	res := f.turn(t, happy)
	assert.Equal(t, models.ContentSafetyRedirect, res.ContentType)
	assert.Contains(t, res.Metadata.Degraded, "safety")
	assert.Zero(t, f.gen.Calls())
}

func TestHandleTurn_LLMFailureFallsBack(t *testing.T) {
	f := newFixture(t, nil)
	f.gen.Err = testutil.ErrFake

	res := f.turn(t, happy)
	assert.Equal(t, fallbackReply, res.Text)
	assert.Equal(t, models.ContentFallback, res.ContentType)
	assert.Equal(t, []string{"llm"}, res.Metadata.Degraded)

	f.inspect(t, func(s *session.Session) {
		assert.Equal(t, 1, s.Telemetry.Counters[string(models.EventError)])
		assert.Len(t, s.Memory.Turns, 1)
	})
}

func TestHandleTurn_TTSFailureKeepsText(t *testing.T) {
	f := newFixture(t, nil)
	f.speech.Err = testutil.ErrFake

	res := f.turn(t, happy)
	assert.Equal(t, "That sounds like so much fun!", res.Text)
	assert.Nil(t, res.Audio)
	assert.Equal(t, []string{"tts"}, res.Metadata.Degraded)
}

func TestHandleTurn_VoiceFlagOff(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.engine.UpdateUserFlags(context.Background(), uid, map[string]bool{"voice_enabled": false})
	require.NoError(t, err)

	res := f.turn(t, happy)
	assert.Nil(t, res.Audio)
	assert.Zero(t, f.speech.SynthesisCount())
}

type panicLibrary struct{}

func (panicLibrary) Lookup(context.Context, models.ContentType, *models.UserProfile) (*models.LibraryContent, error) {
	panic("library exploded")
}

func TestHandleTurn_PanicBecomesApology(t *testing.T) {
	f := newFixture(t, nil, WithLibrary(panicLibrary{}))
	f.gen.Reply = "Once upon a time there was a brave little frog."

	res := f.turn(t, happy)
	assert.Equal(t, apologyReply, res.Text)
	assert.Equal(t, models.ContentFallback, res.ContentType)

	f.inspect(t, func(s *session.Session) {
		assert.Equal(t, 1, s.Telemetry.Counters[string(models.EventSystemError)])
	})

	f.gen.Reply = "That sounds like so much fun!"
	assert.Equal(t, "That sounds like so much fun!", f.turn(t, happy).Text)
}

func TestHandleTurn_StoryContentEvent(t *testing.T) {
	story := &models.LibraryContent{ID: "s1", Type: models.ContentStory, Title: "The Brave Frog", Body: "Once upon a time..."}
	f := newFixture(t, nil, WithLibrary(&testutil.Library{Items: map[models.ContentType]*models.LibraryContent{
		models.ContentStory: story,
	}}))
	f.gen.Reply = "Once upon a time there was a brave little frog."

	res := f.turn(t, happy)
	assert.Equal(t, models.ContentStory, res.ContentType)
	assert.Same(t, story, res.Metadata.Content)
	f.inspect(t, func(s *session.Session) {
		assert.Equal(t, 1, s.Telemetry.Counters[string(models.EventStoryPlayed)])
	})

	_, err := f.engine.UpdateUserFlags(context.Background(), uid, map[string]bool{"story_mode": false})
	require.NoError(t, err)
	res = f.turn(t, "my puppy likes to run around the park")
	assert.Equal(t, models.ContentConversation, res.ContentType)
	assert.Nil(t, res.Metadata.Content)
}

func TestHandleTurn_ConcurrentTurnsOnOneSession(t *testing.T) {
	f := newFixture(t, nil)
	const turns = 8

	var wg sync.WaitGroup
	errs := make(chan error, turns)
	for range turns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.HandleTurn(context.Background(), TurnRequest{SessionID: sid, UserID: uid, Utterance: happy})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	f.inspect(t, func(s *session.Session) {
		assert.Equal(t, turns, s.InteractionCount)
		assert.Len(t, s.Memory.Turns, turns)
		assert.Equal(t, turns, s.Telemetry.Counters[string(models.EventInteraction)])
		assert.Equal(t, 1, s.Telemetry.Counters[string(models.EventSessionStart)])
	})
}

func TestHandleVoiceTurn(t *testing.T) {
	f := newFixture(t, nil)
	f.speech.Transcript = capability.Transcript{Text: happy, Confidence: 0.95}
	ctx := context.Background()

	res, err := f.engine.HandleVoiceTurn(ctx, VoiceTurnRequest{SessionID: sid, UserID: uid, Audio: []byte("wav")})
	require.NoError(t, err)
	assert.Equal(t, "That sounds like so much fun!", res.Text)
	assert.Equal(t, []byte("mp3"), res.Audio)

	f.speech.Transcript = capability.Transcript{Text: "  "}
	res, err = f.engine.HandleVoiceTurn(ctx, VoiceTurnRequest{SessionID: sid, UserID: uid, Audio: []byte("wav")})
	require.NoError(t, err)
	assert.Equal(t, sayAgainReply, res.Text)
	assert.Equal(t, models.ContentRepair, res.ContentType)

	_, err = f.engine.HandleVoiceTurn(ctx, VoiceTurnRequest{SessionID: sid, UserID: uid})
	assert.ErrorIs(t, err, ErrInvalidInput)

	f.inspect(t, func(s *session.Session) {
		assert.Equal(t, 1, s.InteractionCount)
		assert.Equal(t, 1, s.Telemetry.Counters[string(models.EventVoiceInteraction)])
	})
}

func TestSessionLifecycleAndCleanup(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	info, err := f.engine.StartSession(ctx, sid, uid)
	require.NoError(t, err)
	assert.Equal(t, uid, info.UserID)
	assert.Zero(t, info.InteractionCount)

	ended, err := f.engine.EndSession(ctx, sid)
	require.NoError(t, err)
	assert.True(t, ended)
	ended, err = f.engine.EndSession(ctx, sid)
	require.NoError(t, err)
	assert.False(t, ended)

	f.turn(t, happy)
	f.clock.Advance(31 * time.Minute)
	report, err := f.engine.CleanupOldData(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{sid}, report.EvictedSessions)
	assert.Zero(t, f.engine.sessions.Len())

	status, err := f.engine.GetAgentStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fake", status.Provider)
	assert.Zero(t, status.ActiveSessions)
	assert.True(t, status.Components["llm"])
	assert.False(t, status.Components["moderation"])
	assert.Equal(t, 31*60.0, status.UptimeSeconds)
}

func TestFlagsAndProfiles(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.engine.UpdateUserFlags(ctx, uid, map[string]bool{"teleportation": true})
	var ie *InputError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "flags", ie.Field)

	flags, err := f.engine.UpdateUserFlags(ctx, uid, map[string]bool{"daily_snapshots": false})
	require.NoError(t, err)
	assert.False(t, flags.Enabled("daily_snapshots"))
	_, err = f.engine.GenerateDailySnapshot(ctx, uid, f.clock.Now())
	assert.ErrorIs(t, err, ErrFeatureDisabled)

	err = f.engine.SaveProfile(ctx, &models.UserProfile{UserID: uid, Name: "Maya", Age: 40})
	assert.ErrorIs(t, err, ErrInvalidInput)
	require.NoError(t, f.engine.SaveProfile(ctx, &models.UserProfile{UserID: uid, Name: "Maya", Age: 5}))

	profile, err := f.engine.GetProfile(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, "Maya", profile.Name)

	f.turn(t, happy)
	req, _ := f.gen.LastRequest()
	assert.Contains(t, req.SystemPrompt, "Name: Maya")
}

func TestGenerateAllDailySnapshots(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	for _, user := range []string{"kid-a", "kid-b"} {
		_, err := f.engine.HandleTurn(ctx, TurnRequest{SessionID: "s-" + user, UserID: user, Utterance: happy})
		require.NoError(t, err)
	}

	snaps, err := f.engine.GenerateAllDailySnapshots(ctx, f.clock.Now())
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	for user, snap := range snaps {
		assert.Equal(t, user, snap.UserID)
		assert.Equal(t, 1, snap.TotalInteractions)
	}

	mem, err := f.engine.GetMemoryContext(ctx, "kid-a", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, mem.SnapshotCount)
}

func TestGetAnalytics_RejectsInvertedRange(t *testing.T) {
	f := newFixture(t, nil)
	now := f.clock.Now()
	_, err := f.engine.GetAnalytics(context.Background(), now, now.Add(-time.Hour), "")
	assert.True(t, errors.Is(err, ErrInvalidInput))
}
