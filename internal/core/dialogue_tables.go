// ABOUTME: Static per-mode lookup tables for the dialogue orchestrator
// ABOUTME: Prosody, engagement, guidelines, bridges, token budgets and regional markers
package core

import "github.com/harper/companion-engine/internal/models"

var modeProsody = map[models.DialogueMode]models.Prosody{
	models.ModeChat:     {Tone: "warm", Pace: "normal", Volume: "normal", Emphasis: "moderate"},
	models.ModeStory:    {Tone: "expressive", Pace: "normal", Volume: "normal", Emphasis: "dramatic"},
	models.ModeGame:     {Tone: "playful", Pace: "fast", Volume: "energetic", Emphasis: "high"},
	models.ModeCoaching: {Tone: "encouraging", Pace: "normal", Volume: "normal", Emphasis: "moderate"},
	models.ModeBedtime:  {Tone: "soothing", Pace: "slow", Volume: "soft", Emphasis: "low"},
	models.ModeRepair:   {Tone: "patient", Pace: "slow", Volume: "normal", Emphasis: "clear"},
	models.ModeTeaching: {Tone: "clear", Pace: "normal", Volume: "normal", Emphasis: "moderate"},
	models.ModeComfort:  {Tone: "gentle", Pace: "slow", Volume: "soft", Emphasis: "low"},
	models.ModeCalm:     {Tone: "calm", Pace: "slow", Volume: "soft", Emphasis: "low"},
}

type budgetTier int

const (
	tierShort budgetTier = iota
	tierMedium
	tierLong
)

// tokenBudgets is indexed by age group, then tier.
var tokenBudgets = map[models.AgeGroup][3]int{
	models.AgeGroupYoung:  {40, 80, 150},
	models.AgeGroupMiddle: {60, 120, 220},
	models.AgeGroupOlder:  {80, 160, 300},
}

var modeEngagement = map[models.DialogueMode]models.EngagementStrategy{
	models.ModeChat: {
		Approach:   "curious",
		Techniques: []string{"ask about their day", "reflect back interests", "share a small fact"},
		FollowUp:   "open question",
	},
	models.ModeStory: {
		Approach:   "immersive",
		Techniques: []string{"vivid characters", "let the child choose what happens", "sound effects"},
		FollowUp:   "what happens next?",
	},
	models.ModeGame: {
		Approach:   "playful",
		Techniques: []string{"celebrate effort", "quick rounds", "gentle hints"},
		FollowUp:   "ready for another?",
	},
	models.ModeCoaching: {
		Approach:   "encouraging",
		Techniques: []string{"break the task into steps", "praise progress", "model the skill"},
		FollowUp:   "want to try together?",
	},
	models.ModeBedtime: {
		Approach:   "winding down",
		Techniques: []string{"slow rhythm", "reassurance", "quiet imagery"},
		FollowUp:   "sweet dreams",
	},
	models.ModeRepair: {
		Approach:   "clarifying",
		Techniques: []string{"offer a guess", "keep it short", "no blame"},
		FollowUp:   "did I get that right?",
	},
	models.ModeTeaching: {
		Approach:   "explaining",
		Techniques: []string{"simple examples", "check understanding", "connect to what they know"},
		FollowUp:   "does that make sense?",
	},
	models.ModeComfort: {
		Approach:   "empathetic",
		Techniques: []string{"name the feeling", "validate", "offer a calming idea"},
		FollowUp:   "do you want to talk about it?",
	},
	models.ModeCalm: {
		Approach:   "de-escalating",
		Techniques: []string{"acknowledge frustration", "slow breathing", "give choices"},
		FollowUp:   "want to take a deep breath with me?",
	},
}

var modeGuidelines = map[models.DialogueMode]models.ResponseGuidelines{
	models.ModeChat:     {Style: "friendly and curious", MaxSentences: 3, AskQuestion: true},
	models.ModeStory:    {Style: "narrative with vivid detail", MaxSentences: 6, AskQuestion: true},
	models.ModeGame:     {Style: "upbeat and short", MaxSentences: 2, AskQuestion: true},
	models.ModeCoaching: {Style: "encouraging step by step", MaxSentences: 3, AskQuestion: true},
	models.ModeBedtime:  {Style: "soft and soothing", MaxSentences: 3, AskQuestion: false, Avoid: []string{"exciting topics", "questions that need energy"}},
	models.ModeRepair:   {Style: "short clarifying question", MaxSentences: 1, AskQuestion: true},
	models.ModeTeaching: {Style: "simple explanation with one example", MaxSentences: 4, AskQuestion: true, Avoid: []string{"jargon"}},
	models.ModeComfort:  {Style: "warm validation", MaxSentences: 3, AskQuestion: false, Avoid: []string{"dismissing feelings", "jokes"}},
	models.ModeCalm:     {Style: "calm and steady", MaxSentences: 2, AskQuestion: false, Avoid: []string{"arguing", "raised energy"}},
}

var modeBridges = map[models.DialogueMode]string{
	models.ModeChat:     "So, tell me more!",
	models.ModeStory:    "Ooh, I have a story idea!",
	models.ModeGame:     "Want to play a quick game?",
	models.ModeCoaching: "Let's try it together.",
	models.ModeBedtime:  "It's getting late, let's get cozy.",
	models.ModeRepair:   "Hmm, let me make sure I heard you.",
	models.ModeTeaching: "Let me explain that a different way.",
	models.ModeComfort:  "I'm right here with you.",
	models.ModeCalm:     "Let's slow down for a moment.",
}

var indiaMarkers = []string{
	"india", "mumbai", "delhi", "bangalore", "bengaluru", "chennai", "kolkata",
	"hyderabad", "pune", "ahmedabad", "jaipur", "lucknow",
}

var boredomPhrases = []string{
	"bored", "boring", "meh", "whatever", "nothing to do", "i don't care", "not fun", "so boring",
}

var interruptionPhrases = []string{
	"stop", "something else", "change", "different", "enough", "no more", "i'm done",
	"let's talk", "bored", "quit",
}
