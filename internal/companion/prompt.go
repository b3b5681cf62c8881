// ABOUTME: Assembles the system prompt from persona, child profile, mood, dialogue plan and memory
// ABOUTME: Sections are added in priority order until the character budget runs out
package companion

import (
	"fmt"
	"sort"
	"strings"

	"github.com/harper/companion-engine/internal/capability"
	"github.com/harper/companion-engine/internal/models"
)

const (
	// Prompt budget in characters (4 chars ≈ 1 token)
	maxPromptChars = 6000
	historyTurns   = 6
)

const persona = `You are Buddy, a warm, playful companion for young children.
Speak simply, be kind and encouraging, never scary. Keep answers short and
easy to say out loud. If the child asks about something unsafe or grown-up,
gently suggest asking a trusted grown-up and change the subject.`

// promptInput is everything the prompt builder reads for one turn.
type promptInput struct {
	Profile *models.UserProfile
	Emotion models.EmotionalState
	Plan    models.DialoguePlan
	Memory  models.MemoryContext
}

type promptSection struct {
	title string
	body  string
}

// buildSystemPrompt renders the prompt. Persona and plan are always kept;
// profile, mood and memory follow in that order while they fit.
func buildSystemPrompt(in promptInput) string {
	essential := []promptSection{
		{"SYSTEM", persona},
		{"HOW TO RESPOND", formatPlan(in.Plan)},
	}
	optional := []promptSection{
		{"CHILD", formatProfile(in.Profile)},
		{"CURRENT MOOD", formatEmotion(in.Emotion)},
		{"WHAT YOU REMEMBER", formatMemory(in.Memory)},
	}

	var sb strings.Builder
	for _, s := range essential {
		writeSection(&sb, s)
	}
	for _, s := range optional {
		if s.body == "" {
			continue
		}
		if sb.Len()+len(s.title)+len(s.body)+3 > maxPromptChars {
			continue
		}
		writeSection(&sb, s)
	}
	return strings.TrimSpace(sb.String())
}

func writeSection(sb *strings.Builder, s promptSection) {
	sb.WriteString(s.title)
	sb.WriteString(":\n")
	sb.WriteString(s.body)
	sb.WriteString("\n\n")
}

func formatProfile(p *models.UserProfile) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Name: %s\n", p.DisplayName())
	fmt.Fprintf(&sb, "Age: %d\n", p.EffectiveAge())
	if p != nil && p.Location != "" {
		fmt.Fprintf(&sb, "Lives in: %s\n", p.Location)
	}
	if p != nil && len(p.Interests) > 0 {
		fmt.Fprintf(&sb, "Interests: %s\n", strings.Join(p.Interests, ", "))
	}
	if p != nil && len(p.Preferences) > 0 {
		fmt.Fprintf(&sb, "Preferences: %s\n", strings.Join(p.Preferences, ", "))
	}
	return strings.TrimSpace(sb.String())
}

func formatEmotion(e models.EmotionalState) string {
	if e.Mood == "" {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Mood: %s (energy %s, sentiment %s)\n", e.Mood, e.Energy, e.Sentiment)
	if len(e.EmotionalNeeds) > 0 {
		fmt.Fprintf(&sb, "They may need: %s\n", strings.Join(e.EmotionalNeeds, ", "))
	}
	if e.SuggestedTone != "" {
		fmt.Fprintf(&sb, "Use a %s tone.\n", e.SuggestedTone)
	}
	return strings.TrimSpace(sb.String())
}

func formatPlan(p models.DialoguePlan) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Mode: %s\n", p.Mode)
	fmt.Fprintf(&sb, "Voice: %s tone, %s pace\n", p.Prosody.Tone, p.Prosody.Pace)
	if p.Guidelines.Style != "" {
		fmt.Fprintf(&sb, "Style: %s\n", p.Guidelines.Style)
	}
	if p.Guidelines.MaxSentences > 0 {
		fmt.Fprintf(&sb, "Use at most %d sentences.\n", p.Guidelines.MaxSentences)
	}
	if p.Guidelines.AskQuestion {
		sb.WriteString("End with a simple question.\n")
	}
	if len(p.Guidelines.Avoid) > 0 {
		fmt.Fprintf(&sb, "Avoid: %s\n", strings.Join(p.Guidelines.Avoid, ", "))
	}
	if p.Engagement.Approach != "" {
		fmt.Fprintf(&sb, "Approach: %s\n", p.Engagement.Approach)
	}
	if len(p.Engagement.Techniques) > 0 {
		fmt.Fprintf(&sb, "Try: %s\n", strings.Join(p.Engagement.Techniques, ", "))
	}
	if p.Transition != nil && p.Transition.Bridge != "" {
		fmt.Fprintf(&sb, "Start by bridging: %q\n", p.Transition.Bridge)
	}
	if p.Cultural.Hinglish {
		sb.WriteString("You may mix in simple Hindi words the way Indian families do.\n")
	}
	if p.Cultural.Colloquialisms {
		sb.WriteString("Friendly local expressions are welcome.\n")
	}
	if p.Cultural.Emoji {
		sb.WriteString("An occasional emoji is fine.\n")
	}
	return strings.TrimSpace(sb.String())
}

func formatMemory(m models.MemoryContext) string {
	if m.IsEmpty() {
		return ""
	}
	var sb strings.Builder
	if len(m.Preferences) > 0 {
		subjects := make([]string, 0, len(m.Preferences))
		for subject := range m.Preferences {
			subjects = append(subjects, subject)
		}
		sort.Strings(subjects)
		for _, subject := range subjects {
			fmt.Fprintf(&sb, "- %s %s\n", m.Preferences[subject], subject)
		}
	}
	if len(m.Topics) > 0 {
		fmt.Fprintf(&sb, "Recent topics: %s\n", strings.Join(m.Topics, ", "))
	}
	if len(m.Achievements) > 0 {
		fmt.Fprintf(&sb, "Recent achievements: %s\n", strings.Join(m.Achievements, ", "))
	}
	for _, summary := range m.RecentSummaries {
		fmt.Fprintf(&sb, "Earlier: %s\n", summary)
	}
	return strings.TrimSpace(sb.String())
}

// historyMessages converts the most recent turns into alternating messages.
func historyMessages(mem *models.SessionMemory) []capability.Message {
	turns := mem.LastTurns(historyTurns)
	out := make([]capability.Message, 0, len(turns)*2)
	for _, t := range turns {
		out = append(out,
			capability.Message{Role: capability.RoleUser, Content: t.UserInput},
			capability.Message{Role: capability.RoleAssistant, Content: t.AIResponse})
	}
	return out
}
