// ABOUTME: Session memory log, daily snapshots and memory-context records
// ABOUTME: Snapshots are one per user per UTC day and are consumed by the prompt builder
package models

import "time"

// SessionMemory is the transient per-session interaction log plus aggregates.
type SessionMemory struct {
	Turns             []Turn            `json:"turns"`
	Topics            map[string]int    `json:"topics"`
	Preferences       map[string]string `json:"preferences"`
	Achievements      []string          `json:"achievements"`
	EmotionalPatterns []string          `json:"emotional_patterns"`
}

// NewSessionMemory returns an empty log with initialized maps.
func NewSessionMemory() SessionMemory {
	return SessionMemory{
		Turns:       []Turn{},
		Topics:      make(map[string]int),
		Preferences: make(map[string]string),
	}
}

// LastTurns returns up to n most recent turns, oldest first.
func (m *SessionMemory) LastTurns(n int) []Turn {
	if n <= 0 || len(m.Turns) == 0 {
		return nil
	}
	if len(m.Turns) <= n {
		return m.Turns
	}
	return m.Turns[len(m.Turns)-n:]
}

// Insights are the derived highlights of a day.
type Insights struct {
	DominantMood    Mood           `json:"dominant_mood"`
	FavoriteTopics  []string       `json:"favorite_topics"`
	FavoriteContent string         `json:"favorite_content,omitempty"`
	ContentCounts   map[string]int `json:"content_counts,omitempty"`
	LearningMoments int            `json:"learning_moments"`
	MostActiveHour  int            `json:"most_active_hour"`
	GamesCompleted  int            `json:"games_completed"`
}

// EngagementMetrics summarize how much the child interacted.
type EngagementMetrics struct {
	TotalInteractions int     `json:"total_interactions"`
	DurationMinutes   float64 `json:"duration_minutes"`
	AvgMessageLength  float64 `json:"avg_message_length"`
	Score             float64 `json:"score"`
}

// MemorySnapshot is the daily digest of a user's interactions.
type MemorySnapshot struct {
	UserID                string            `json:"user_id"`
	Date                  string            `json:"date"`
	TotalInteractions     int               `json:"total_interactions"`
	Summary               string            `json:"summary"`
	Insights              Insights          `json:"insights"`
	MoodPatterns          []string          `json:"mood_patterns"`
	TopicsDiscussed       []string          `json:"topics_discussed"`
	PreferencesDiscovered map[string]string `json:"preferences_discovered"`
	Achievements          []string          `json:"achievements"`
	Engagement            EngagementMetrics `json:"engagement_metrics"`
	ParentSummary         string            `json:"parent_summary"`
	CreatedAt             time.Time         `json:"created_at"`
}

// MemoryContext is the folded view of recent snapshots.
type MemoryContext struct {
	UserID          string            `json:"user_id"`
	LookbackDays    int               `json:"lookback_days"`
	SnapshotCount   int               `json:"snapshot_count"`
	Preferences     map[string]string `json:"preferences"`
	Topics          []string          `json:"topics"`
	Achievements    []string          `json:"achievements"`
	MoodPatterns    []string          `json:"mood_patterns"`
	RecentSummaries []string          `json:"recent_summaries"`
}

// EmptyMemoryContext is returned for users with no snapshots.
func EmptyMemoryContext(userID string, days int) MemoryContext {
	return MemoryContext{
		UserID:       userID,
		LookbackDays: days,
		Preferences:  map[string]string{},
		Topics:       []string{},
		Achievements: []string{},
		MoodPatterns: []string{},
	}
}

// IsEmpty reports whether the context carries no remembered data.
func (c MemoryContext) IsEmpty() bool {
	return c.SnapshotCount == 0
}
