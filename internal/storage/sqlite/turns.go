// ABOUTME: Turn storage operations for SQLite
// ABOUTME: Append-only log of exchanges, queried by user and time range for daily snapshots
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/harper/companion-engine/internal/models"
)

// TurnStore handles turn persistence
type TurnStore struct {
	db *DB
}

// NewTurnStore creates a new TurnStore
func NewTurnStore(db *DB) *TurnStore {
	return &TurnStore{db: db}
}

// Append stores a turn. Re-appending the same turn id is a no-op.
func (s *TurnStore) Append(ctx context.Context, turn *models.Turn) error {
	emotionJSON, err := encodeJSON(turn.Emotion)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO turns (id, user_id, session_id, user_input, ai_response, emotion, mode, content_type, achievement, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, turn.TurnID, turn.UserID, turn.SessionID, turn.UserInput, turn.AIResponse,
		emotionJSON, turn.Mode.String(), turn.ContentType.String(), turn.Achievement, toUnix(turn.Timestamp))
	if err != nil {
		return fmt.Errorf("failed to append turn %s: %w", turn.TurnID, err)
	}
	return nil
}

// ListByUser returns a user's turns in [from, to), oldest first
func (s *TurnStore) ListByUser(ctx context.Context, userID string, from, to time.Time) ([]models.Turn, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, session_id, user_input, ai_response, emotion, mode, content_type, achievement, created_at
		FROM turns
		WHERE user_id = ? AND created_at >= ? AND created_at < ?
		ORDER BY created_at ASC, id ASC
	`, userID, toUnix(from), toUnix(to))
	if err != nil {
		return nil, fmt.Errorf("failed to list turns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var turns []models.Turn
	for rows.Next() {
		var (
			turn                       models.Turn
			sessionID, aiResponse      sql.NullString
			emotionJSON, mode, content sql.NullString
			achievement                sql.NullString
			createdAt                  int64
		)
		if err := rows.Scan(&turn.TurnID, &turn.UserID, &sessionID, &turn.UserInput, &aiResponse,
			&emotionJSON, &mode, &content, &achievement, &createdAt); err != nil {
			return nil, err
		}

		turn.SessionID = sessionID.String
		turn.AIResponse = aiResponse.String
		turn.Achievement = achievement.String
		turn.Timestamp = fromUnix(createdAt)
		turn.Emotion = models.NeutralEmotion()
		if emotionJSON.Valid && emotionJSON.String != "" {
			_ = json.Unmarshal([]byte(emotionJSON.String), &turn.Emotion)
		}
		if m, err := models.ParseDialogueMode(mode.String); err == nil {
			turn.Mode = m
		}
		if ct, err := models.ParseContentType(content.String); err == nil {
			turn.ContentType = ct
		}

		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

// UsersActiveBetween returns the distinct users with turns in [from, to)
func (s *TurnStore) UsersActiveBetween(ctx context.Context, from, to time.Time) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT DISTINCT user_id FROM turns
		WHERE created_at >= ? AND created_at < ?
		ORDER BY user_id
	`, toUnix(from), toUnix(to))
	if err != nil {
		return nil, fmt.Errorf("failed to list active users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

// DeleteBefore removes turns older than cutoff and reports how many were removed
func (s *TurnStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(ctx, "DELETE FROM turns WHERE created_at < ?", toUnix(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to delete turns: %w", err)
	}
	return res.RowsAffected()
}
