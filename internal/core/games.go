// ABOUTME: Micro-game engine: trigger predicate, catalog selection, grading and continuation
// ABOUTME: Holds no per-session state itself; the session owns its GameState
package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/harper/companion-engine/internal/capability"
	"github.com/harper/companion-engine/internal/models"
)

const (
	maxDifficulty     = 3
	winningScore      = 3
	maxAttempts       = 3
	recallPassPercent = 0.8
)

// GameInfo is one catalog entry.
type GameInfo struct {
	Type     models.GameType
	Name     string
	MinAge   int
	MaxAge   int
	Duration time.Duration
	Intro    string
}

// Catalog lists every game in a stable order.
var Catalog = []GameInfo{
	{models.GameMathQuiz, "Math Quiz", 5, 12, 5 * time.Minute, "Let's do some quick math!"},
	{models.GameRhymeTime, "Rhyme Time", 4, 9, 4 * time.Minute, "Let's play Rhyme Time!"},
	{models.GameBreathing, "Breathing Buddy", 3, 12, 3 * time.Minute, "Let's take some calm breaths together."},
	{models.GameAnimalSounds, "Animal Sounds", 3, 7, 4 * time.Minute, "Let's play Animal Sounds!"},
	{models.GameColorHunt, "Color Hunt", 3, 7, 4 * time.Minute, "Let's go on a Color Hunt!"},
	{models.GameRiddle, "Riddle Me This", 6, 12, 5 * time.Minute, "I have a riddle for you!"},
	{models.GameStoryBuilder, "Story Builder", 4, 12, 6 * time.Minute, "Let's build a story together!"},
	{models.GameMemoryRecall, "Memory Challenge", 5, 12, 4 * time.Minute, "Let's test your super memory!"},
	{models.GameCounting, "Counting Fun", 3, 6, 3 * time.Minute, "Let's count together!"},
	{models.GameWordAssociation, "Word Link", 6, 12, 4 * time.Minute, "Let's play Word Link!"},
}

var (
	calmingGames     = []models.GameType{models.GameBreathing, models.GameStoryBuilder, models.GameColorHunt, models.GameAnimalSounds}
	challengingGames = []models.GameType{models.GameMathQuiz, models.GameRiddle, models.GameMemoryRecall, models.GameWordAssociation}
	simpleGames      = []models.GameType{models.GameAnimalSounds, models.GameCounting, models.GameColorHunt, models.GameRhymeTime}
)

// GameInfoFor returns the catalog entry for a type.
func GameInfoFor(t models.GameType) (GameInfo, bool) {
	for _, g := range Catalog {
		if g.Type == t {
			return g, true
		}
	}
	return GameInfo{}, false
}

// GameConfig holds trigger thresholds.
type GameConfig struct {
	SilenceThreshold             time.Duration
	EngagementThreshold          float64
	ConsecutiveNeutralLimit      int
	MinInteractionsForEngagement int
}

// DefaultGameConfig mirrors the configuration defaults.
func DefaultGameConfig() GameConfig {
	return GameConfig{
		SilenceThreshold:             45 * time.Second,
		EngagementThreshold:          0.3,
		ConsecutiveNeutralLimit:      3,
		MinInteractionsForEngagement: 5,
	}
}

// TriggerInput is what the trigger predicate looks at.
type TriggerInput struct {
	HasActiveGame      bool
	Silence            time.Duration
	EngagementScore    float64
	Interactions       int
	Utterance          string
	ConsecutiveNeutral int
	Emotion            models.EmotionalState
}

// GameEngine starts, grades and ends micro-games.
type GameEngine struct {
	cfg GameConfig
	rng capability.RNG
}

// NewGameEngine creates a game engine.
func NewGameEngine(cfg GameConfig, rng capability.RNG) *GameEngine {
	return &GameEngine{cfg: cfg, rng: rng}
}

// ShouldTrigger returns the first matching trigger, or TriggerNone.
func (e *GameEngine) ShouldTrigger(in TriggerInput) models.GameTrigger {
	if in.HasActiveGame {
		return models.TriggerNone
	}
	switch {
	case e.cfg.SilenceThreshold > 0 && in.Silence > e.cfg.SilenceThreshold:
		return models.TriggerSilence
	case in.Interactions >= e.cfg.MinInteractionsForEngagement && in.EngagementScore < e.cfg.EngagementThreshold:
		return models.TriggerLowEngagement
	case HasBoredomPhrase(in.Utterance):
		return models.TriggerBoredom
	case e.cfg.ConsecutiveNeutralLimit > 0 && in.ConsecutiveNeutral >= e.cfg.ConsecutiveNeutralLimit:
		return models.TriggerNeutralStreak
	case lowEnergyMood(in.Emotion):
		return models.TriggerLowEnergyMood
	default:
		return models.TriggerNone
	}
}

func lowEnergyMood(emotion models.EmotionalState) bool {
	if emotion.Energy != models.EnergyLow {
		return false
	}
	switch emotion.Mood {
	case models.MoodSad, models.MoodBored, models.MoodTired:
		return true
	default:
		return false
	}
}

// SelectGame picks a game suited to the child's age and current emotion.
func (e *GameEngine) SelectGame(age int, emotion models.EmotionalState) models.GameType {
	var eligible []models.GameType
	for _, g := range Catalog {
		if age >= g.MinAge && age <= g.MaxAge {
			eligible = append(eligible, g.Type)
		}
	}
	if len(eligible) == 0 {
		for _, g := range Catalog {
			eligible = append(eligible, g.Type)
		}
	}

	candidates := eligible
	if priority := priorityList(emotion); priority != nil {
		var filtered []models.GameType
		for _, t := range priority {
			for _, ok := range eligible {
				if t == ok {
					filtered = append(filtered, t)
					break
				}
			}
		}
		if len(filtered) > 0 {
			candidates = filtered
		}
	}
	return candidates[e.rng.IntN(len(candidates))]
}

// priorityList returns the mood/energy-specific list, or nil for the varied default.
func priorityList(emotion models.EmotionalState) []models.GameType {
	switch {
	case emotion.Mood == models.MoodSad, emotion.Mood == models.MoodUpset,
		emotion.Mood == models.MoodAngry, emotion.Mood == models.MoodTired:
		return calmingGames
	case emotion.Mood == models.MoodExcited, emotion.Energy == models.EnergyHigh:
		return challengingGames
	case emotion.Energy == models.EnergyLow, emotion.Mood == models.MoodBored:
		return simpleGames
	default:
		return nil
	}
}

// StartGame creates a fresh GameState and its introduction text.
func (e *GameEngine) StartGame(age int, emotion models.EmotionalState, now time.Time) (*models.GameState, string) {
	gameType := e.SelectGame(age, emotion)
	info, _ := GameInfoFor(gameType)
	state := &models.GameState{
		Type:       gameType,
		StartedAt:  now,
		Difficulty: 1,
		Challenge:  GenerateChallenge(gameType, 1, e.rng),
	}
	return state, info.Intro + " " + state.Challenge.Question
}

// ProcessAnswer grades an answer and advances or ends the game. The caller
// must discard state when the outcome reports Ended.
func (e *GameEngine) ProcessAnswer(state *models.GameState, answer string, now time.Time) models.GameOutcome {
	info, _ := GameInfoFor(state.Type)
	if info.Duration > 0 && now.Sub(state.StartedAt) > info.Duration {
		return models.GameOutcome{
			Text:      fmt.Sprintf("Time's up! That was fun. You got %d right!", state.Score),
			Ended:     true,
			EndReason: models.GameTimeout,
			Score:     state.Score,
		}
	}

	if GradeAnswer(state.Challenge, answer) {
		state.Score++
		state.Attempts = 0
		if state.Score >= winningScore {
			return models.GameOutcome{
				Text:        fmt.Sprintf("Yes! You did it! You finished %s with %d points. Amazing job!", info.Name, state.Score),
				Correct:     true,
				Ended:       true,
				EndReason:   models.GameCompleted,
				Score:       state.Score,
				Achievement: fmt.Sprintf("Completed %s", info.Name),
			}
		}
		state.Difficulty = clampDifficulty(state.Difficulty + 1)
		state.Challenge = GenerateChallenge(state.Type, state.Difficulty, e.rng)
		return models.GameOutcome{
			Text:    praise(state.Score) + " Next one: " + state.Challenge.Question,
			Correct: true,
			Score:   state.Score,
		}
	}

	state.Attempts++
	if state.Attempts >= maxAttempts {
		text := "Nice try! Let's play again another time."
		if state.Challenge.ExpectedAnswer != "" {
			text = fmt.Sprintf("Nice try! The answer was %s. Let's play again another time.", state.Challenge.ExpectedAnswer)
		}
		return models.GameOutcome{
			Text:      text,
			Ended:     true,
			EndReason: models.GameMaxAttempts,
			Score:     state.Score,
		}
	}
	return models.GameOutcome{
		Text:  "Not quite! Here's a hint: " + state.Challenge.Hint,
		Score: state.Score,
	}
}

// GradeAnswer checks an answer against a challenge.
func GradeAnswer(c models.Challenge, answer string) bool {
	lower := strings.ToLower(strings.TrimSpace(answer))
	switch c.Type {
	case models.GameStoryBuilder:
		return lower != ""
	case models.GameBreathing:
		norm := normalize(lower)
		for _, w := range BreathingCompletionWords {
			if containsWord(norm, w) {
				return true
			}
		}
		return false
	case models.GameMemoryRecall:
		if len(c.Items) == 0 {
			return false
		}
		matched := 0
		for _, item := range c.Items {
			if strings.Contains(lower, strings.ToLower(item)) {
				matched++
			}
		}
		return float64(matched)/float64(len(c.Items)) >= recallPassPercent
	case models.GameMathQuiz, models.GameCounting:
		norm := normalize(lower)
		for _, a := range c.Accept {
			if containsWord(norm, strings.ToLower(a)) {
				return true
			}
		}
		return false
	case models.GameRhymeTime, models.GameAnimalSounds, models.GameColorHunt,
		models.GameRiddle, models.GameWordAssociation:
		return anySubstring(lower, c)
	default:
		return anySubstring(lower, c)
	}
}

func anySubstring(lower string, c models.Challenge) bool {
	accept := c.Accept
	if len(accept) == 0 && c.ExpectedAnswer != "" {
		accept = []string{c.ExpectedAnswer}
	}
	for _, a := range accept {
		if a != "" && strings.Contains(lower, strings.ToLower(a)) {
			return true
		}
	}
	return false
}

func praise(score int) string {
	switch score {
	case 1:
		return "Great job!"
	case 2:
		return "Wow, you're on a roll!"
	default:
		return "Awesome!"
	}
}
