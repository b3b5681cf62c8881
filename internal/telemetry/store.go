// ABOUTME: TelemetryStore records events, keeps per-session aggregates and daily rollups
// ABOUTME: Every storage failure is logged and swallowed so telemetry never breaks a turn
package telemetry

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/harper/companion-engine/internal/capability"
	"github.com/harper/companion-engine/internal/models"
)

// EventLog is the append-only event log.
type EventLog interface {
	Append(ctx context.Context, event *models.TelemetryEvent) error
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// DailyRepo holds per-user-per-day rollups.
type DailyRepo interface {
	Merge(ctx context.Context, userID, date string, counters, features map[string]int, at time.Time) (*models.DailyTelemetryRecord, error)
	ListRange(ctx context.Context, userID, fromDate, toDate string) ([]models.DailyTelemetryRecord, error)
	DeleteBefore(ctx context.Context, date string) (int64, error)
}

// FlagRepo holds per-user overrides and A/B assignments.
type FlagRepo interface {
	GetOverrides(ctx context.Context, userID string) (map[string]bool, error)
	SaveOverrides(ctx context.Context, userID string, flags map[string]bool, at time.Time) error
	AssignVariant(ctx context.Context, testName, userID, variant string, at time.Time) (string, error)
	GetAssignment(ctx context.Context, testName, userID string) (string, bool, error)
}

// SessionRepo persists frozen session aggregates.
type SessionRepo interface {
	Save(ctx context.Context, agg *models.SessionAggregate) error
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// DateLayout is the daily record date format.
const DateLayout = "2006-01-02"

// Store is the TelemetryStore.
type Store struct {
	events   EventLog
	daily    DailyRepo
	flags    FlagRepo
	sessions SessionRepo
	tests    []models.ABTest
	clock    capability.Clock
	logger   *zap.Logger
}

// NewStore wires a TelemetryStore. tests are the configured A/B tests.
func NewStore(events EventLog, daily DailyRepo, flags FlagRepo, sessions SessionRepo, tests []models.ABTest, clock capability.Clock, logger *zap.Logger) *Store {
	if clock == nil {
		clock = capability.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		events:   events,
		daily:    daily,
		flags:    flags,
		sessions: sessions,
		tests:    tests,
		clock:    clock,
		logger:   logger,
	}
}

// Tests returns the configured A/B tests.
func (s *Store) Tests() []models.ABTest {
	return s.tests
}

// Track records one event. agg is the caller's session aggregate and may be
// nil for events outside a session; the caller must hold the session lock.
// Failures are logged, never returned.
func (s *Store) Track(ctx context.Context, agg *models.SessionAggregate, userID, sessionID string, eventType models.EventType, payload map[string]any) {
	now := s.clock.Now()
	if !eventType.IsKnown() {
		s.logger.Warn("unknown telemetry event type", zap.String("type", string(eventType)))
	}

	event := &models.TelemetryEvent{
		EventID:   uuid.New().String(),
		Type:      eventType,
		UserID:    userID,
		SessionID: sessionID,
		Timestamp: now,
		Payload:   payload,
	}
	if err := s.events.Append(ctx, event); err != nil {
		s.logger.Warn("failed to append telemetry event",
			zap.String("type", string(eventType)),
			zap.String("user_id", userID),
			zap.Error(err))
	}

	if agg != nil {
		if agg.Counters == nil {
			agg.Counters = make(map[string]int)
		}
		agg.Counters[string(eventType)]++
		agg.SessionDurationSeconds = now.Sub(agg.StartedAt).Seconds()
		agg.EngagementScore = EngagementScore(agg.Counters)
	}

	if userID == "" {
		return
	}
	features := map[string]int{}
	if feature := featureFor(eventType, payload); feature != "" {
		features[feature] = 1
	}
	if _, err := s.daily.Merge(ctx, userID, now.UTC().Format(DateLayout), map[string]int{string(eventType): 1}, features, now); err != nil {
		s.logger.Warn("failed to update daily telemetry",
			zap.String("user_id", userID),
			zap.Error(err))
	}
}

// featureFor names the feature an event counts toward, if any.
func featureFor(eventType models.EventType, payload map[string]any) string {
	switch eventType {
	case models.EventStoryPlayed:
		return "stories"
	case models.EventSongPlayed:
		return "songs"
	case models.EventJokeTold:
		return "jokes"
	case models.EventFactShared:
		return "facts"
	case models.EventGameStarted:
		if game, ok := payload["game_type"].(string); ok && game != "" {
			return "game:" + game
		}
		return "games"
	case models.EventRepairTriggered:
		return "repair"
	case models.EventBreakSuggested:
		return "breaks"
	case models.EventVoiceInteraction:
		return "voice"
	case models.EventTextInteraction:
		return "text"
	case models.EventFeatureUsed:
		if feature, ok := payload["feature"].(string); ok {
			return feature
		}
		return ""
	default:
		return ""
	}
}

// EngagementScore combines interaction volume, modality mix and penalties
// into [0, 1].
func EngagementScore(counters map[string]int) float64 {
	interactions := float64(counters[string(models.EventInteraction)])
	voice := float64(counters[string(models.EventVoiceInteraction)])
	games := float64(counters[string(models.EventGameStarted)])
	media := float64(counters[string(models.EventStoryPlayed)] + counters[string(models.EventSongPlayed)])
	errs := float64(counters[string(models.EventError)] + counters[string(models.EventSystemError)])
	safety := float64(counters[string(models.EventSafetyViolation)])

	score := min(interactions/10, 1) +
		min(voice/5, 0.2) +
		min(games/3, 0.15) +
		min(media/2, 0.1) -
		min(errs*0.05, 0.2) -
		min(safety*0.1, 0.3)
	return clamp01(score)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// CloseSession freezes the aggregate and persists it.
func (s *Store) CloseSession(ctx context.Context, agg *models.SessionAggregate) {
	now := s.clock.Now()
	agg.EndedAt = now
	agg.SessionDurationSeconds = now.Sub(agg.StartedAt).Seconds()
	agg.EngagementScore = EngagementScore(agg.Counters)
	if err := s.sessions.Save(ctx, agg); err != nil {
		s.logger.Warn("failed to persist session aggregate",
			zap.String("session_id", agg.SessionID),
			zap.Error(err))
	}
}

// CleanupResult counts removed rows.
type CleanupResult struct {
	Events   int64 `json:"events"`
	Daily    int64 `json:"daily"`
	Sessions int64 `json:"sessions"`
}

// Cleanup deletes telemetry older than days days.
func (s *Store) Cleanup(ctx context.Context, days int) (CleanupResult, error) {
	if days <= 0 {
		days = 90
	}
	cutoff := s.clock.Now().UTC().AddDate(0, 0, -days)

	var res CleanupResult
	var err error
	if res.Events, err = s.events.DeleteBefore(ctx, cutoff); err != nil {
		return res, err
	}
	if res.Daily, err = s.daily.DeleteBefore(ctx, cutoff.Format(DateLayout)); err != nil {
		return res, err
	}
	if res.Sessions, err = s.sessions.DeleteBefore(ctx, cutoff); err != nil {
		return res, err
	}
	s.logger.Info("telemetry cleanup complete",
		zap.Int("days", days),
		zap.Int64("events", res.Events),
		zap.Int64("daily", res.Daily),
		zap.Int64("sessions", res.Sessions))
	return res, nil
}
