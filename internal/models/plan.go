// ABOUTME: DialoguePlan and its parts, recomputed for every turn
// ABOUTME: Also holds DialogueState, the per-session mode plus a 20-entry history ring
package models

import "time"

// Prosody carries speech-synthesis hints.
type Prosody struct {
	Tone     string `json:"tone"`
	Pace     string `json:"pace"`
	Volume   string `json:"volume"`
	Emphasis string `json:"emphasis"`
}

// TransitionPlan describes how to bridge from the previous mode.
type TransitionPlan struct {
	From   DialogueMode `json:"from"`
	To     DialogueMode `json:"to"`
	Reason string       `json:"reason"`
	Bridge string       `json:"bridge"`
}

// EngagementStrategy is the static per-mode bundle of engagement techniques.
type EngagementStrategy struct {
	Approach   string   `json:"approach"`
	Techniques []string `json:"techniques"`
	FollowUp   string   `json:"follow_up"`
}

// CulturalContext toggles regional language features.
type CulturalContext struct {
	Region         string `json:"region,omitempty"`
	Hinglish       bool   `json:"hinglish"`
	Colloquialisms bool   `json:"colloquialisms"`
	Emoji          bool   `json:"emoji"`
}

// ResponseGuidelines is the static per-mode bundle of reply rules.
type ResponseGuidelines struct {
	Style        string   `json:"style"`
	MaxSentences int      `json:"max_sentences"`
	AskQuestion  bool     `json:"ask_question"`
	Avoid        []string `json:"avoid,omitempty"`
}

// DialoguePlan is the per-turn output of the dialogue orchestrator.
type DialoguePlan struct {
	Mode        DialogueMode       `json:"mode"`
	Prosody     Prosody            `json:"prosody"`
	TokenBudget int                `json:"token_budget"`
	Transition  *TransitionPlan    `json:"transition,omitempty"`
	Engagement  EngagementStrategy `json:"engagement"`
	Cultural    CulturalContext    `json:"cultural"`
	Guidelines  ResponseGuidelines `json:"guidelines"`
}

// ModeHistorySize is the capacity of the mode history ring buffer.
const ModeHistorySize = 20

// ModeRecord is one entry in the mode history.
type ModeRecord struct {
	Mode   DialogueMode `json:"mode"`
	At     time.Time    `json:"at"`
	Reason string       `json:"reason"`
}

// DialogueState is the long-lived per-session mode state.
type DialogueState struct {
	Current DialogueMode
	history [ModeHistorySize]ModeRecord
	next    int
	filled  int
}

// Record appends a mode decision to the ring buffer.
func (d *DialogueState) Record(rec ModeRecord) {
	d.history[d.next] = rec
	d.next = (d.next + 1) % ModeHistorySize
	if d.filled < ModeHistorySize {
		d.filled++
	}
}

// History returns the recorded decisions oldest first.
func (d *DialogueState) History() []ModeRecord {
	out := make([]ModeRecord, 0, d.filled)
	start := (d.next - d.filled + ModeHistorySize) % ModeHistorySize
	for i := 0; i < d.filled; i++ {
		out = append(out, d.history[(start+i)%ModeHistorySize])
	}
	return out
}

// ModeStats summarizes the mode history.
type ModeStats struct {
	Counts      map[string]int `json:"counts"`
	Transitions int            `json:"transitions"`
	Current     DialogueMode   `json:"current"`
}

// Stats counts modes and transitions over the retained history.
func (d *DialogueState) Stats() ModeStats {
	stats := ModeStats{Counts: make(map[string]int), Current: d.Current}
	hist := d.History()
	for i, rec := range hist {
		stats.Counts[rec.Mode.String()]++
		if i > 0 && hist[i-1].Mode != rec.Mode {
			stats.Transitions++
		}
	}
	return stats
}
