// ABOUTME: Dialogue orchestrator: the per-session mode state machine
// ABOUTME: Produces a DialoguePlan (mode, prosody, token budget, guidelines) for every turn
package core

import (
	"strings"
	"time"

	"github.com/harper/companion-engine/internal/capability"
	"github.com/harper/companion-engine/internal/models"
)

// DialogueConfig holds the tunable parts of mode selection.
type DialogueConfig struct {
	// BedtimeStart and BedtimeEnd are minutes after local midnight. The
	// window wraps midnight when start > end.
	BedtimeStart      int
	BedtimeEnd        int
	SilenceTimeout    time.Duration
	BoredomGameWeight float64
}

// DefaultDialogueConfig is 19:30 to 06:30, 45s silence, 60% game on boredom.
func DefaultDialogueConfig() DialogueConfig {
	return DialogueConfig{
		BedtimeStart:      19*60 + 30,
		BedtimeEnd:        6*60 + 30,
		SilenceTimeout:    45 * time.Second,
		BoredomGameWeight: 0.6,
	}
}

// PlanInput is everything the orchestrator looks at for one turn.
type PlanInput struct {
	Utterance    string
	Emotion      models.EmotionalState
	RepairNeeded bool
	Profile      *models.UserProfile
	Now          time.Time
	// Silence is the gap since the previous turn; zero on the first turn.
	Silence time.Duration
	// Disabled modes fall back to Chat.
	Disabled map[models.DialogueMode]bool
}

// DialogueOrchestrator selects the conversational mode.
type DialogueOrchestrator struct {
	cfg DialogueConfig
	rng capability.RNG
}

// NewDialogueOrchestrator creates an orchestrator using rng for the boredom split.
func NewDialogueOrchestrator(cfg DialogueConfig, rng capability.RNG) *DialogueOrchestrator {
	return &DialogueOrchestrator{cfg: cfg, rng: rng}
}

// Plan picks the next mode, records it in state and builds the plan.
func (o *DialogueOrchestrator) Plan(state *models.DialogueState, in PlanInput) models.DialoguePlan {
	prev := state.Current
	mode, reason := o.selectMode(prev, in)
	if in.Disabled[mode] {
		mode, reason = models.ModeChat, "disabled"
	}

	state.Current = mode
	state.Record(models.ModeRecord{Mode: mode, At: in.Now, Reason: reason})

	plan := models.DialoguePlan{
		Mode:        mode,
		Prosody:     adjustProsody(modeProsody[mode], in.Emotion),
		TokenBudget: tokenBudget(mode, in.Emotion.Energy, in.Profile.AgeGroup()),
		Engagement:  modeEngagement[mode],
		Cultural:    culturalContext(in.Profile),
		Guidelines:  modeGuidelines[mode],
	}
	if mode != prev {
		plan.Transition = &models.TransitionPlan{
			From:   prev,
			To:     mode,
			Reason: reason,
			Bridge: modeBridges[mode],
		}
	}
	return plan
}

func (o *DialogueOrchestrator) selectMode(current models.DialogueMode, in PlanInput) (models.DialogueMode, string) {
	if in.RepairNeeded {
		return models.ModeRepair, "repair"
	}

	switch in.Emotion.Mood {
	case models.MoodSad, models.MoodUpset:
		return models.ModeComfort, "comfort"
	case models.MoodAngry:
		return models.ModeCalm, "calm"
	case models.MoodConfused:
		return models.ModeTeaching, "confused"
	case models.MoodTired:
		if o.InBedtimeWindow(in.Now, in.Profile) {
			return models.ModeBedtime, "bedtime"
		}
	case models.MoodNeutral, models.MoodHappy, models.MoodExcited, models.MoodBored, models.MoodUncertain:
	}

	if IsBoredom(in.Utterance, in.Emotion) {
		if o.rng.Float64() < o.cfg.BoredomGameWeight {
			return models.ModeGame, "boredom"
		}
		return models.ModeStory, "boredom"
	}
	if o.cfg.SilenceTimeout > 0 && in.Silence > o.cfg.SilenceTimeout {
		return models.ModeGame, "silence"
	}
	if in.Emotion.Mood == models.MoodExcited && in.Emotion.Energy == models.EnergyHigh {
		return models.ModeGame, "excited"
	}

	switch current {
	case models.ModeStory, models.ModeGame:
		if !isInterruption(in.Utterance) {
			return current, "continue"
		}
	case models.ModeChat, models.ModeCoaching, models.ModeBedtime, models.ModeRepair,
		models.ModeTeaching, models.ModeComfort, models.ModeCalm:
	}
	return models.ModeChat, "default"
}

// InBedtimeWindow reports whether now, in the profile's timezone, falls in
// the configured bedtime window.
func (o *DialogueOrchestrator) InBedtimeWindow(now time.Time, profile *models.UserProfile) bool {
	local := now.In(profileLocation(profile))
	minute := local.Hour()*60 + local.Minute()
	start, end := o.cfg.BedtimeStart, o.cfg.BedtimeEnd
	if start <= end {
		return minute >= start && minute < end
	}
	return minute >= start || minute < end
}

func profileLocation(profile *models.UserProfile) *time.Location {
	if profile == nil || profile.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(profile.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsBoredom reports the boredom signal: a boredom phrase, a one- or two-word
// neutral reply, or low energy with neutral sentiment.
func IsBoredom(utterance string, emotion models.EmotionalState) bool {
	if HasBoredomPhrase(utterance) {
		return true
	}
	if emotion.Sentiment != models.SentimentNeutral {
		return false
	}
	return len(strings.Fields(utterance)) <= 2 || emotion.Energy == models.EnergyLow
}

// HasBoredomPhrase reports whether the utterance contains a boredom phrase.
func HasBoredomPhrase(utterance string) bool {
	norm := normalize(utterance)
	for _, phrase := range boredomPhrases {
		if containsWord(norm, phrase) {
			return true
		}
	}
	return false
}

func isInterruption(utterance string) bool {
	norm := normalize(utterance)
	for _, phrase := range interruptionPhrases {
		if containsWord(norm, phrase) {
			return true
		}
	}
	return false
}

// ProsodyFor is the speech style of mode adjusted for emotion, for replies
// produced without a full plan.
func ProsodyFor(mode models.DialogueMode, emotion models.EmotionalState) models.Prosody {
	return adjustProsody(modeProsody[mode], emotion)
}

func adjustProsody(p models.Prosody, emotion models.EmotionalState) models.Prosody {
	switch emotion.Energy {
	case models.EnergyHigh:
		if p.Pace == "normal" {
			p.Pace = "fast"
		}
	case models.EnergyLow:
		if p.Pace == "normal" {
			p.Pace = "slow"
		}
	case models.EnergyMedium:
	}
	switch emotion.Mood {
	case models.MoodSad, models.MoodTired:
		p.Volume = "soft"
	case models.MoodExcited:
		p.Volume = "energetic"
	case models.MoodNeutral, models.MoodHappy, models.MoodAngry, models.MoodConfused,
		models.MoodUpset, models.MoodBored, models.MoodUncertain:
	}
	return p
}

func tokenBudget(mode models.DialogueMode, energy models.Energy, group models.AgeGroup) int {
	tier := tierMedium
	switch mode {
	case models.ModeStory, models.ModeTeaching:
		tier = tierLong
	case models.ModeRepair:
		tier = tierShort
	case models.ModeGame, models.ModeComfort, models.ModeChat, models.ModeCoaching,
		models.ModeBedtime, models.ModeCalm:
		tier = tierMedium
	}
	if tier == tierMedium && energy == models.EnergyLow {
		tier = tierShort
	}
	return tokenBudgets[group][tier]
}

func culturalContext(profile *models.UserProfile) models.CulturalContext {
	cc := models.CulturalContext{Emoji: true}
	if profile == nil {
		return cc
	}
	loc := strings.ToLower(profile.Location)
	for _, marker := range indiaMarkers {
		if strings.Contains(loc, marker) {
			cc.Region = "IN"
			cc.Hinglish = true
			cc.Colloquialisms = true
			break
		}
	}
	return cc
}
