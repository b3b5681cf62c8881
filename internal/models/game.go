// ABOUTME: Micro-game types, challenges and per-session game state
// ABOUTME: At most one GameState exists per session; it is cleared when the game ends
package models

import "time"

// GameType identifies one of the catalog games.
type GameType string

const (
	GameMathQuiz        GameType = "math_quiz"
	GameRhymeTime       GameType = "rhyme_time"
	GameBreathing       GameType = "breathing_exercise"
	GameAnimalSounds    GameType = "animal_sounds"
	GameColorHunt       GameType = "color_hunt"
	GameRiddle          GameType = "riddle"
	GameStoryBuilder    GameType = "story_builder"
	GameMemoryRecall    GameType = "memory_recall"
	GameCounting        GameType = "counting"
	GameWordAssociation GameType = "word_association"
)

// Challenge is a single question within a game.
type Challenge struct {
	Question       string   `json:"question"`
	ExpectedAnswer string   `json:"expected_answer"`
	Accept         []string `json:"accept,omitempty"`
	Items          []string `json:"items,omitempty"`
	Type           GameType `json:"type"`
	Hint           string   `json:"hint"`
}

// GameState is the active game of a session.
type GameState struct {
	Type       GameType  `json:"type"`
	StartedAt  time.Time `json:"started_at"`
	Score      int       `json:"score"`
	Attempts   int       `json:"attempts"`
	Difficulty int       `json:"difficulty"`
	Challenge  Challenge `json:"challenge"`
}

// GameEndReason explains why a game finished.
type GameEndReason string

const (
	GameNotEnded    GameEndReason = ""
	GameCompleted   GameEndReason = "completed"
	GameMaxAttempts GameEndReason = "max_attempts"
	GameTimeout     GameEndReason = "timeout"
)

// GameOutcome is the result of routing one answer to the active game.
type GameOutcome struct {
	Text        string        `json:"text"`
	Correct     bool          `json:"correct"`
	Ended       bool          `json:"ended"`
	EndReason   GameEndReason `json:"end_reason,omitempty"`
	Score       int           `json:"score"`
	Achievement string        `json:"achievement,omitempty"`
}

// GameTrigger names the condition that started a game.
type GameTrigger string

const (
	TriggerNone          GameTrigger = ""
	TriggerSilence       GameTrigger = "silence"
	TriggerLowEngagement GameTrigger = "low_engagement"
	TriggerBoredom       GameTrigger = "boredom"
	TriggerNeutralStreak GameTrigger = "neutral_streak"
	TriggerLowEnergyMood GameTrigger = "low_energy_mood"
)
