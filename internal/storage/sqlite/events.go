// ABOUTME: Telemetry event log storage for SQLite
// ABOUTME: Append-only; payloads are stored as JSON objects
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/harper/companion-engine/internal/models"
)

// EventStore handles telemetry event persistence
type EventStore struct {
	db *DB
}

// NewEventStore creates a new EventStore
func NewEventStore(db *DB) *EventStore {
	return &EventStore{db: db}
}

// Append writes one event to the log
func (s *EventStore) Append(ctx context.Context, event *models.TelemetryEvent) error {
	payload := "{}"
	if len(event.Payload) > 0 {
		encoded, err := encodeJSON(event.Payload)
		if err != nil {
			return err
		}
		payload = encoded
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO events (id, type, user_id, session_id, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, event.EventID, string(event.Type), event.UserID, event.SessionID, payload, toUnix(event.Timestamp))
	if err != nil {
		return fmt.Errorf("failed to append event %s: %w", event.Type, err)
	}
	return nil
}

// ListByUser returns a user's events in [from, to), oldest first
func (s *EventStore) ListByUser(ctx context.Context, userID string, from, to time.Time) ([]models.TelemetryEvent, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, type, user_id, session_id, payload, created_at
		FROM events
		WHERE user_id = ? AND created_at >= ? AND created_at < ?
		ORDER BY created_at ASC, id ASC
	`, userID, toUnix(from), toUnix(to))
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []models.TelemetryEvent
	for rows.Next() {
		var (
			event     models.TelemetryEvent
			eventType string
			sessionID sql.NullString
			payload   sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&event.EventID, &eventType, &event.UserID, &sessionID, &payload, &createdAt); err != nil {
			return nil, err
		}
		event.Type = models.EventType(eventType)
		event.SessionID = sessionID.String
		event.Timestamp = fromUnix(createdAt)
		if payload.Valid && payload.String != "" && payload.String != "{}" {
			_ = json.Unmarshal([]byte(payload.String), &event.Payload)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// DeleteBefore removes events older than cutoff
func (s *EventStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(ctx, "DELETE FROM events WHERE created_at < ?", toUnix(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to delete events: %w", err)
	}
	return res.RowsAffected()
}
