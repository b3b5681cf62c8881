// ABOUTME: Session lifecycle, snapshot, flag, analytics, cleanup and status operations
// ABOUTME: These sit beside HandleTurn and share its session registry and stores
package companion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/harper/companion-engine/internal/llm"
	"github.com/harper/companion-engine/internal/memory"
	"github.com/harper/companion-engine/internal/models"
	"github.com/harper/companion-engine/internal/session"
	"github.com/harper/companion-engine/internal/telemetry"
)

const (
	snapshotWorkers = 4
	maxProfileAge   = 18
)

// StartSession opens a session, or returns the existing one's counters.
func (e *Engine) StartSession(ctx context.Context, sessionID, userID string) (session.Info, error) {
	if err := validateIDs(sessionID, userID); err != nil {
		return session.Info{}, err
	}
	var info session.Info
	err := e.sessions.WithSession(ctx, sessionID, userID, func(s *session.Session, created bool) error {
		e.refresh(ctx, s, created)
		info = s.Info()
		return nil
	})
	if err != nil {
		return session.Info{}, sessionErr(err)
	}
	return info, nil
}

// EndSession closes a session and persists its telemetry aggregate. It
// reports false for unknown sessions.
func (e *Engine) EndSession(ctx context.Context, sessionID string) (bool, error) {
	if strings.TrimSpace(sessionID) == "" {
		return false, inputErr("session_id", "must not be empty")
	}
	return e.sessions.End(ctx, sessionID, func(s *session.Session) {
		e.closeSession(ctx, s, "ended")
	})
}

func (e *Engine) closeSession(ctx context.Context, s *session.Session, reason string) {
	e.track(ctx, s, models.EventSessionEnd, map[string]any{
		"reason":       reason,
		"interactions": s.InteractionCount,
	})
	e.telemetry.CloseSession(ctx, &s.Telemetry)
	e.logger.Info("session closed",
		zap.String("session_id", s.ID),
		zap.String("reason", reason),
		zap.Int("interactions", s.InteractionCount))
}

// GenerateDailySnapshot builds and stores the user's snapshot for the UTC day
// containing day.
func (e *Engine) GenerateDailySnapshot(ctx context.Context, userID string, day time.Time) (*models.MemorySnapshot, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, inputErr("user_id", "must not be empty")
	}
	if !e.telemetry.ResolveFlags(ctx, userID).Enabled(telemetry.FlagDailySnapshots) {
		return nil, fmt.Errorf("daily snapshots for %s: %w", userID, ErrFeatureDisabled)
	}
	return e.memory.GenerateDailySnapshot(ctx, userID, day)
}

// GenerateAllDailySnapshots snapshots every user with turns on day. Users
// with snapshots disabled are skipped.
func (e *Engine) GenerateAllDailySnapshots(ctx context.Context, day time.Time) (map[string]*models.MemorySnapshot, error) {
	from, to := memory.DayBounds(day)
	users, err := e.activity.UsersActiveBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list active users: %w", err)
	}

	var mu sync.Mutex
	out := make(map[string]*models.MemorySnapshot, len(users))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(snapshotWorkers)
	for _, userID := range users {
		g.Go(func() error {
			snap, err := e.GenerateDailySnapshot(gctx, userID, day)
			if errors.Is(err, ErrFeatureDisabled) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("user %s: %w", userID, err)
			}
			mu.Lock()
			out[userID] = snap
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}

// GetMemoryContext folds the user's recent snapshots. days <= 0 uses the
// configured lookback.
func (e *Engine) GetMemoryContext(ctx context.Context, userID string, days int) (models.MemoryContext, error) {
	if strings.TrimSpace(userID) == "" {
		return models.MemoryContext{}, inputErr("user_id", "must not be empty")
	}
	if days <= 0 {
		days = e.cfg.MemoryLookbackDays
	}
	return e.memory.GetMemoryContext(ctx, userID, days)
}

// GetUserFlags resolves the user's effective flags.
func (e *Engine) GetUserFlags(ctx context.Context, userID string) (models.FeatureFlags, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, inputErr("user_id", "must not be empty")
	}
	return e.telemetry.ResolveFlags(ctx, userID), nil
}

// UpdateUserFlags stores overrides. They apply from the user's next turn.
func (e *Engine) UpdateUserFlags(ctx context.Context, userID string, updates map[string]bool) (models.FeatureFlags, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, inputErr("user_id", "must not be empty")
	}
	if len(updates) == 0 {
		return nil, inputErr("flags", "no updates given")
	}
	flags, err := e.telemetry.UpdateFlags(ctx, userID, updates)
	if errors.Is(err, telemetry.ErrUnknownFlag) {
		return nil, inputErr("flags", err.Error())
	}
	return flags, err
}

// GetAnalytics rolls up daily telemetry between from and to. An empty userID
// covers every user.
func (e *Engine) GetAnalytics(ctx context.Context, from, to time.Time, userID string) (*models.Analytics, error) {
	if to.Before(from) {
		return nil, inputErr("range", "end is before start")
	}
	return e.telemetry.GetAnalytics(ctx, from, to, userID)
}

// CleanupReport counts what CleanupOldData removed.
type CleanupReport struct {
	Memory          memory.CleanupResult    `json:"memory"`
	Telemetry       telemetry.CleanupResult `json:"telemetry"`
	EvictedSessions []string                `json:"evicted_sessions"`
}

// CleanupOldData applies the retention windows and evicts idle sessions.
func (e *Engine) CleanupOldData(ctx context.Context) (CleanupReport, error) {
	var report CleanupReport
	report.EvictedSessions = e.sessions.EvictIdle(e.cfg.SessionIdleTimeout, func(s *session.Session) {
		e.closeSession(ctx, s, "idle")
	})

	var err error
	if report.Memory, err = e.memory.Cleanup(ctx, e.cfg.SnapshotRetentionDays); err != nil {
		return report, fmt.Errorf("failed to clean up memory: %w", err)
	}
	if report.Telemetry, err = e.telemetry.Cleanup(ctx, e.cfg.TelemetryRetentionDays); err != nil {
		return report, fmt.Errorf("failed to clean up telemetry: %w", err)
	}
	return report, nil
}

// AgentStatus is the health summary of the engine.
type AgentStatus struct {
	Provider       string           `json:"provider"`
	ActiveSessions int              `json:"active_sessions"`
	Components     map[string]bool  `json:"components"`
	Storage        map[string]int64 `json:"storage,omitempty"`
	StartedAt      time.Time        `json:"started_at"`
	UptimeSeconds  float64          `json:"uptime_seconds"`
}

// GetAgentStatus reports providers, live sessions and storage counts.
func (e *Engine) GetAgentStatus(ctx context.Context) (AgentStatus, error) {
	status := AgentStatus{
		Provider:       e.provider,
		ActiveSessions: e.sessions.Len(),
		Components: map[string]bool{
			"llm":             available(e.generator),
			"stt":             available(e.stt),
			"tts":             available(e.tts),
			"moderation":      e.upstream,
			"safety":          e.safety != nil,
			"content_library": e.library != nil,
		},
		StartedAt:     e.startedAt,
		UptimeSeconds: e.clock.Now().Sub(e.startedAt).Seconds(),
	}
	stats, err := e.stats.Stats(ctx)
	if err != nil {
		return status, fmt.Errorf("failed to read storage stats: %w", err)
	}
	status.Storage = stats
	return status, nil
}

func available(c any) bool {
	if c == nil {
		return false
	}
	_, off := c.(llm.Disabled)
	return !off
}

// SaveProfile stores a child's profile. It is read at the start of the
// user's next turn.
func (e *Engine) SaveProfile(ctx context.Context, profile *models.UserProfile) error {
	if profile == nil {
		return inputErr("profile", "must not be nil")
	}
	if strings.TrimSpace(profile.UserID) == "" {
		return inputErr("user_id", "must not be empty")
	}
	if profile.Age < 0 || profile.Age > maxProfileAge {
		return inputErr("age", fmt.Sprintf("must be between 0 and %d", maxProfileAge))
	}
	if profile.Timezone != "" {
		if _, err := time.LoadLocation(profile.Timezone); err != nil {
			return inputErr("timezone", err.Error())
		}
	}
	return e.memory.SaveProfile(ctx, profile)
}

// GetProfile returns the stored profile or a default for unknown users.
func (e *Engine) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, inputErr("user_id", "must not be empty")
	}
	return e.memory.Profile(ctx, userID)
}
