// ABOUTME: Frozen session telemetry aggregates for SQLite
// ABOUTME: Written once when a session closes, cleaned up by age
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/harper/companion-engine/internal/models"
)

// SessionSummaryStore handles closed-session aggregate persistence
type SessionSummaryStore struct {
	db *DB
}

// NewSessionSummaryStore creates a new SessionSummaryStore
func NewSessionSummaryStore(db *DB) *SessionSummaryStore {
	return &SessionSummaryStore{db: db}
}

// Save stores the final aggregate of a session
func (s *SessionSummaryStore) Save(ctx context.Context, agg *models.SessionAggregate) error {
	counters, err := encodeJSON(agg.Counters)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO session_summaries (session_id, user_id, started_at, ended_at, counters, duration_seconds, engagement_score)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			ended_at = excluded.ended_at,
			counters = excluded.counters,
			duration_seconds = excluded.duration_seconds,
			engagement_score = excluded.engagement_score
	`, agg.SessionID, agg.UserID, toUnix(agg.StartedAt), toUnix(agg.EndedAt), counters,
		agg.SessionDurationSeconds, agg.EngagementScore)
	if err != nil {
		return fmt.Errorf("failed to save session summary %s: %w", agg.SessionID, err)
	}
	return nil
}

// Get returns a stored aggregate, or nil if the session was never closed
func (s *SessionSummaryStore) Get(ctx context.Context, sessionID string) (*models.SessionAggregate, error) {
	var (
		agg            models.SessionAggregate
		started, ended int64
		countersJSON   string
	)
	err := s.db.QueryRow(ctx, `
		SELECT session_id, user_id, started_at, ended_at, counters, duration_seconds, engagement_score
		FROM session_summaries WHERE session_id = ?
	`, sessionID).Scan(&agg.SessionID, &agg.UserID, &started, &ended, &countersJSON,
		&agg.SessionDurationSeconds, &agg.EngagementScore)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session summary: %w", err)
	}
	agg.StartedAt = fromUnix(started)
	agg.EndedAt = fromUnix(ended)
	agg.Counters = decodeCounts(countersJSON)
	return &agg, nil
}

// DeleteBefore removes summaries of sessions that ended before cutoff
func (s *SessionSummaryStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(ctx, "DELETE FROM session_summaries WHERE ended_at < ?", toUnix(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to delete session summaries: %w", err)
	}
	return res.RowsAffected()
}
