// ABOUTME: Tests for the dialogue mode state machine and plan construction
// ABOUTME: Randomness is scripted so the boredom split is deterministic
package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harper/companion-engine/internal/models"
	"github.com/harper/companion-engine/internal/testutil"
)

var afternoon = time.Date(2026, 3, 14, 14, 0, 0, 0, time.UTC)

func emotion(mood models.Mood, sentiment models.Sentiment, energy models.Energy) models.EmotionalState {
	return models.EmotionalState{Mood: mood, Sentiment: sentiment, Energy: energy, Confidence: 0.7, Source: models.SourceKeyword}
}

func newOrchestrator(floats ...float64) *DialogueOrchestrator {
	return NewDialogueOrchestrator(DefaultDialogueConfig(), &testutil.RNG{Floats: floats, DefaultFloat: 0.99})
}

func TestPlan_SadAlwaysComforts(t *testing.T) {
	for _, prev := range models.AllModes {
		t.Run(prev.String(), func(t *testing.T) {
			state := &models.DialogueState{Current: prev}
			plan := newOrchestrator().Plan(state, PlanInput{
				Utterance: "my fish died today",
				Emotion:   emotion(models.MoodSad, models.SentimentNegative, models.EnergyLow),
				Now:       afternoon,
			})

			assert.Equal(t, models.ModeComfort, plan.Mode)
			assert.Equal(t, models.ModeComfort, state.Current)
			if prev == models.ModeComfort {
				assert.Nil(t, plan.Transition)
			} else {
				require.NotNil(t, plan.Transition)
				assert.Equal(t, prev, plan.Transition.From)
				assert.Equal(t, "comfort", plan.Transition.Reason)
			}
		})
	}
}

func TestPlan_MoodRouting(t *testing.T) {
	tests := []struct {
		name string
		in   PlanInput
		want models.DialogueMode
	}{
		{"repair wins", PlanInput{Utterance: "i said blue", RepairNeeded: true, Emotion: emotion(models.MoodSad, models.SentimentNegative, models.EnergyLow)}, models.ModeRepair},
		{"angry calms", PlanInput{Utterance: "i hate this stupid thing", Emotion: emotion(models.MoodAngry, models.SentimentNegative, models.EnergyHigh)}, models.ModeCalm},
		{"confused teaches", PlanInput{Utterance: "i don't get how rain works", Emotion: emotion(models.MoodConfused, models.SentimentNeutral, models.EnergyMedium)}, models.ModeTeaching},
		{"excited plays", PlanInput{Utterance: "this is the best day ever", Emotion: emotion(models.MoodExcited, models.SentimentPositive, models.EnergyHigh)}, models.ModeGame},
		{"silence plays", PlanInput{Utterance: "tell me about the moon", Silence: 50 * time.Second, Emotion: emotion(models.MoodNeutral, models.SentimentNeutral, models.EnergyMedium)}, models.ModeGame},
		{"default chats", PlanInput{Utterance: "tell me about the moon", Silence: 10 * time.Second, Emotion: emotion(models.MoodNeutral, models.SentimentNeutral, models.EnergyMedium)}, models.ModeChat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.in.Now = afternoon
			plan := newOrchestrator().Plan(&models.DialogueState{}, tt.in)
			assert.Equal(t, tt.want, plan.Mode)
		})
	}
}

func TestPlan_TiredOutsideBedtimeFallsThrough(t *testing.T) {
	o := newOrchestrator()
	tired := emotion(models.MoodTired, models.SentimentNegative, models.EnergyLow)

	plan := o.Plan(&models.DialogueState{}, PlanInput{Utterance: "i'm really tired from the park", Emotion: tired, Now: afternoon})
	assert.Equal(t, models.ModeChat, plan.Mode)

	night := time.Date(2026, 3, 14, 21, 0, 0, 0, time.UTC)
	plan = o.Plan(&models.DialogueState{}, PlanInput{Utterance: "i'm really tired from the park", Emotion: tired, Now: night})
	assert.Equal(t, models.ModeBedtime, plan.Mode)
	assert.Equal(t, "soft", plan.Prosody.Volume)
	assert.False(t, plan.Guidelines.AskQuestion)
}

func TestPlan_BoredomSplit(t *testing.T) {
	bored := emotion(models.MoodBored, models.SentimentNeutral, models.EnergyMedium)

	plan := newOrchestrator(0.3).Plan(&models.DialogueState{}, PlanInput{Utterance: "this is so boring", Emotion: bored, Now: afternoon})
	assert.Equal(t, models.ModeGame, plan.Mode)
	require.NotNil(t, plan.Transition)
	assert.Equal(t, "boredom", plan.Transition.Reason)
	assert.Equal(t, "Want to play a quick game?", plan.Transition.Bridge)

	plan = newOrchestrator(0.9).Plan(&models.DialogueState{}, PlanInput{Utterance: "this is so boring", Emotion: bored, Now: afternoon})
	assert.Equal(t, models.ModeStory, plan.Mode)
}

func TestPlan_ContinuesStoryUntilInterrupted(t *testing.T) {
	o := newOrchestrator()
	happy := emotion(models.MoodHappy, models.SentimentPositive, models.EnergyMedium)
	state := &models.DialogueState{Current: models.ModeStory}

	plan := o.Plan(state, PlanInput{Utterance: "and then what happened to the dragon", Emotion: happy, Now: afternoon})
	assert.Equal(t, models.ModeStory, plan.Mode)
	assert.Nil(t, plan.Transition)

	plan = o.Plan(state, PlanInput{Utterance: "can we talk about something else", Emotion: happy, Now: afternoon.Add(time.Second)})
	assert.Equal(t, models.ModeChat, plan.Mode)
	require.NotNil(t, plan.Transition)
	assert.Equal(t, models.ModeStory, plan.Transition.From)

	hist := state.History()
	require.Len(t, hist, 2)
	assert.Equal(t, "continue", hist[0].Reason)
	assert.Equal(t, 1, state.Stats().Transitions)
}

func TestInBedtimeWindow(t *testing.T) {
	o := newOrchestrator()
	at := func(h, m int) time.Time { return time.Date(2026, 3, 14, h, m, 0, 0, time.UTC) }

	assert.True(t, o.InBedtimeWindow(at(23, 0), nil))
	assert.True(t, o.InBedtimeWindow(at(3, 0), nil))
	assert.True(t, o.InBedtimeWindow(at(19, 30), nil))
	assert.False(t, o.InBedtimeWindow(at(19, 29), nil))
	assert.False(t, o.InBedtimeWindow(at(6, 30), nil))
	assert.False(t, o.InBedtimeWindow(at(12, 0), nil))

	day := NewDialogueOrchestrator(DialogueConfig{BedtimeStart: 13 * 60, BedtimeEnd: 15 * 60}, &testutil.RNG{})
	assert.True(t, day.InBedtimeWindow(at(14, 0), nil))
	assert.False(t, day.InBedtimeWindow(at(15, 0), nil))
}

func TestInBedtimeWindow_ProfileTimezone(t *testing.T) {
	if _, err := time.LoadLocation("Asia/Kolkata"); err != nil {
		t.Skip("tzdata unavailable")
	}
	profile := &models.UserProfile{Timezone: "Asia/Kolkata"}
	// 15:00 UTC is 20:30 IST
	assert.True(t, newOrchestrator().InBedtimeWindow(time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC), profile))

	bogus := &models.UserProfile{Timezone: "Nowhere/Special"}
	assert.False(t, newOrchestrator().InBedtimeWindow(time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC), bogus))
}

func TestPlan_TokenBudgetAndProsody(t *testing.T) {
	o := newOrchestrator()

	plan := o.Plan(&models.DialogueState{}, PlanInput{
		Utterance: "what should we do now",
		Emotion:   emotion(models.MoodNeutral, models.SentimentNeutral, models.EnergyMedium),
		Profile:   &models.UserProfile{Age: 6},
		Now:       afternoon,
	})
	assert.Equal(t, models.ModeChat, plan.Mode)
	assert.Equal(t, 80, plan.TokenBudget)
	assert.Equal(t, "normal", plan.Prosody.Pace)

	plan = o.Plan(&models.DialogueState{}, PlanInput{
		Utterance: "i had a nice lunch at school",
		Emotion:   emotion(models.MoodHappy, models.SentimentPositive, models.EnergyLow),
		Profile:   &models.UserProfile{Age: 8},
		Now:       afternoon,
	})
	assert.Equal(t, models.ModeChat, plan.Mode)
	assert.Equal(t, 60, plan.TokenBudget)
	assert.Equal(t, "slow", plan.Prosody.Pace)

	plan = o.Plan(&models.DialogueState{Current: models.ModeStory}, PlanInput{
		Utterance: "keep going with the pirates",
		Emotion:   emotion(models.MoodHappy, models.SentimentPositive, models.EnergyMedium),
		Profile:   &models.UserProfile{Age: 11},
		Now:       afternoon,
	})
	assert.Equal(t, models.ModeStory, plan.Mode)
	assert.Equal(t, 300, plan.TokenBudget)

	plan = o.Plan(&models.DialogueState{}, PlanInput{
		Utterance:    "no i said purple",
		RepairNeeded: true,
		Emotion:      emotion(models.MoodNeutral, models.SentimentNeutral, models.EnergyMedium),
		Now:          afternoon,
	})
	assert.Equal(t, 40, plan.TokenBudget)
	assert.Equal(t, 1, plan.Guidelines.MaxSentences)
}

func TestPlan_CulturalContext(t *testing.T) {
	o := newOrchestrator()
	neutral := emotion(models.MoodNeutral, models.SentimentNeutral, models.EnergyMedium)

	plan := o.Plan(&models.DialogueState{}, PlanInput{Utterance: "what is for dinner tonight", Emotion: neutral, Profile: &models.UserProfile{Location: "Pune, Maharashtra"}, Now: afternoon})
	assert.Equal(t, "IN", plan.Cultural.Region)
	assert.True(t, plan.Cultural.Hinglish)
	assert.True(t, plan.Cultural.Colloquialisms)

	plan = o.Plan(&models.DialogueState{}, PlanInput{Utterance: "what is for dinner tonight", Emotion: neutral, Profile: &models.UserProfile{Location: "Denver"}, Now: afternoon})
	assert.Empty(t, plan.Cultural.Region)
	assert.False(t, plan.Cultural.Hinglish)
	assert.True(t, plan.Cultural.Emoji)
}

func TestIsBoredom(t *testing.T) {
	neutral := emotion(models.MoodNeutral, models.SentimentNeutral, models.EnergyMedium)
	happy := emotion(models.MoodHappy, models.SentimentPositive, models.EnergyMedium)

	assert.True(t, IsBoredom("i'm bored", happy))
	assert.True(t, IsBoredom("ok", neutral))
	assert.True(t, IsBoredom("i guess we could", emotion(models.MoodNeutral, models.SentimentNeutral, models.EnergyLow)))
	assert.False(t, IsBoredom("ok", happy))
	assert.False(t, IsBoredom("tell me about volcanoes please", neutral))
}

func TestPlan_DisabledModeFallsBackToChat(t *testing.T) {
	o := newOrchestrator(0.1)
	state := &models.DialogueState{}

	plan := o.Plan(state, PlanInput{
		Utterance: "I'm bored",
		Emotion:   emotion(models.MoodBored, models.SentimentNeutral, models.EnergyLow),
		Now:       afternoon,
		Disabled:  map[models.DialogueMode]bool{models.ModeGame: true},
	})
	assert.Equal(t, models.ModeChat, plan.Mode)
	assert.Equal(t, models.ModeChat, state.Current)
	assert.Nil(t, plan.Transition)
}
