// ABOUTME: Telemetry events, per-session aggregates, daily records and analytics rollups
// ABOUTME: Also defines feature flags and A/B test definitions
package models

import (
	"slices"
	"time"
)

// EventType names a telemetry event.
type EventType string

const (
	EventSessionStart     EventType = "session_start"
	EventSessionEnd       EventType = "session_end"
	EventInteraction      EventType = "interaction"
	EventVoiceInteraction EventType = "voice_interaction"
	EventTextInteraction  EventType = "text_interaction"
	EventStoryPlayed      EventType = "story_played"
	EventSongPlayed       EventType = "song_played"
	EventJokeTold         EventType = "joke_told"
	EventFactShared       EventType = "fact_shared"
	EventGameStarted      EventType = "game_started"
	EventGameAnswer       EventType = "game_answer"
	EventGameCompleted    EventType = "game_completed"
	EventRepairTriggered  EventType = "repair_triggered"
	EventBreakSuggested   EventType = "break_suggested"
	EventRateLimited      EventType = "rate_limited"
	EventModeChange       EventType = "mode_change"
	EventFeatureUsed      EventType = "feature_used"
	EventSafetyViolation  EventType = "safety_violation"
	EventError            EventType = "error"
	EventSystemError      EventType = "system_error"
)

// KnownEventTypes lists every event type the store understands.
var KnownEventTypes = []EventType{
	EventSessionStart, EventSessionEnd, EventInteraction, EventVoiceInteraction,
	EventTextInteraction, EventStoryPlayed, EventSongPlayed, EventJokeTold,
	EventFactShared, EventGameStarted, EventGameAnswer, EventGameCompleted,
	EventRepairTriggered, EventBreakSuggested, EventRateLimited, EventModeChange,
	EventFeatureUsed, EventSafetyViolation, EventError, EventSystemError,
}

// IsKnown reports whether the event type is one of KnownEventTypes.
func (t EventType) IsKnown() bool {
	return slices.Contains(KnownEventTypes, t)
}

// TelemetryEvent is one entry of the append-only event log.
type TelemetryEvent struct {
	EventID   string         `json:"event_id"`
	Type      EventType      `json:"type"`
	UserID    string         `json:"user_id"`
	SessionID string         `json:"session_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// SessionAggregate is the in-memory per-session telemetry rollup.
type SessionAggregate struct {
	SessionID              string         `json:"session_id"`
	UserID                 string         `json:"user_id"`
	StartedAt              time.Time      `json:"started_at"`
	EndedAt                time.Time      `json:"ended_at,omitempty"`
	Counters               map[string]int `json:"counters"`
	SessionDurationSeconds float64        `json:"session_duration_seconds"`
	EngagementScore        float64        `json:"engagement_score"`
}

// NewSessionAggregate returns an aggregate with an initialized counter map.
func NewSessionAggregate(sessionID, userID string, start time.Time) SessionAggregate {
	return SessionAggregate{
		SessionID: sessionID,
		UserID:    userID,
		StartedAt: start,
		Counters:  make(map[string]int),
	}
}

// DailyTelemetryRecord is the upserted per-user-per-day rollup.
type DailyTelemetryRecord struct {
	UserID       string         `json:"user_id"`
	Date         string         `json:"date"`
	Counters     map[string]int `json:"counters"`
	FeatureUsage map[string]int `json:"feature_usage"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// FeatureCount is one row of a ranked feature table.
type FeatureCount struct {
	Feature string `json:"feature"`
	Count   int    `json:"count"`
}

// DailyBreakdown is one day of an analytics rollup.
type DailyBreakdown struct {
	Date            string         `json:"date"`
	Counters        map[string]int `json:"counters"`
	EngagementScore float64        `json:"engagement_score"`
}

// EngagementTrend compares the two halves of an analytics range.
type EngagementTrend string

const (
	TrendIncreasing EngagementTrend = "increasing"
	TrendDecreasing EngagementTrend = "decreasing"
	TrendStable     EngagementTrend = "stable"
)

// Analytics is the rollup returned by GetAnalytics.
type Analytics struct {
	From         string           `json:"from"`
	To           string           `json:"to"`
	UserID       string           `json:"user_id,omitempty"`
	Totals       map[string]int   `json:"totals"`
	FeatureUsage map[string]int   `json:"feature_usage"`
	Daily        []DailyBreakdown `json:"daily"`
	TopFeatures  []FeatureCount   `json:"top_features"`
	Trend        EngagementTrend  `json:"trend"`
}

// FeatureFlags maps flag names to enabled state.
type FeatureFlags map[string]bool

// Enabled reports whether a flag is on; unknown flags are off.
func (f FeatureFlags) Enabled(name string) bool {
	return f[name]
}

// Clone returns an independent copy.
func (f FeatureFlags) Clone() FeatureFlags {
	out := make(FeatureFlags, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Variant is one arm of an A/B test.
type Variant struct {
	Name    string          `json:"name" yaml:"name"`
	Traffic int             `json:"traffic" yaml:"traffic"`
	Flags   map[string]bool `json:"flags,omitempty" yaml:"flags"`
}

// ABTest is a named experiment with ordered variants.
type ABTest struct {
	Name     string    `json:"name" yaml:"name"`
	Active   bool      `json:"active" yaml:"active"`
	Variants []Variant `json:"variants" yaml:"variants"`
}
