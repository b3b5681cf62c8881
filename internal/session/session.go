// ABOUTME: Session holds all mutable per-conversation state in one place
// ABOUTME: Only the turn holding the session's registry lock may read or write it
package session

import (
	"time"

	"github.com/harper/companion-engine/internal/models"
)

// Session is the long-lived state of one conversation.
type Session struct {
	ID                  string
	UserID              string
	StartTime           time.Time
	InteractionCount    int
	LastBreakSuggestion time.Time
	MicLockedUntil      time.Time
	LastTurnAt          time.Time

	Dialogue           models.DialogueState
	ActiveGame         *models.GameState
	ConsecutiveNeutral int
	LastAIResponse     string

	// Profile and Flags are refreshed at the start of every turn.
	Profile *models.UserProfile
	Flags   models.FeatureFlags

	Memory    models.SessionMemory
	Telemetry models.SessionAggregate
}

func newSession(id, userID string, now time.Time) *Session {
	return &Session{
		ID:        id,
		UserID:    userID,
		StartTime: now,
		Memory:    models.NewSessionMemory(),
		Telemetry: models.NewSessionAggregate(id, userID, now),
	}
}

// MicLocked reports whether the mic lock is still in force at now.
func (s *Session) MicLocked(now time.Time) bool {
	return now.Before(s.MicLockedUntil)
}

// InteractionsPerHour is the interaction count divided by the elapsed hours,
// with elapsed time floored at one hour.
func (s *Session) InteractionsPerHour(now time.Time) float64 {
	hours := now.Sub(s.StartTime).Hours()
	if hours < 1 {
		hours = 1
	}
	return float64(s.InteractionCount) / hours
}

// BreakDue reports whether more than threshold has passed since the session
// started or the last break was suggested.
func (s *Session) BreakDue(now time.Time, threshold time.Duration) bool {
	if threshold <= 0 {
		return false
	}
	since := s.StartTime
	if s.LastBreakSuggestion.After(since) {
		since = s.LastBreakSuggestion
	}
	return now.Sub(since) > threshold
}

// IdleSince returns the time of the last activity on the session.
func (s *Session) IdleSince() time.Time {
	if s.LastTurnAt.After(s.StartTime) {
		return s.LastTurnAt
	}
	return s.StartTime
}

// Info is a read-only copy of the session counters.
type Info struct {
	ID               string              `json:"session_id"`
	UserID           string              `json:"user_id"`
	StartTime        time.Time           `json:"start_time"`
	InteractionCount int                 `json:"interaction_count"`
	Mode             models.DialogueMode `json:"mode"`
	ActiveGame       models.GameType     `json:"active_game,omitempty"`
	MicLockedUntil   time.Time           `json:"mic_locked_until,omitempty"`
}

// Info copies the counters out of the session.
func (s *Session) Info() Info {
	info := Info{
		ID:               s.ID,
		UserID:           s.UserID,
		StartTime:        s.StartTime,
		InteractionCount: s.InteractionCount,
		Mode:             s.Dialogue.Current,
		MicLockedUntil:   s.MicLockedUntil,
	}
	if s.ActiveGame != nil {
		info.ActiveGame = s.ActiveGame.Type
	}
	return info
}
