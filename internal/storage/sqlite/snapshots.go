// ABOUTME: Daily memory snapshot storage for SQLite
// ABOUTME: Snapshots are JSON documents keyed by (user_id, date) and upserted
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/harper/companion-engine/internal/models"
)

// SnapshotStore handles memory snapshot persistence
type SnapshotStore struct {
	db *DB
}

// NewSnapshotStore creates a new SnapshotStore
func NewSnapshotStore(db *DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// Upsert saves the snapshot, replacing any existing one for the same user and date
func (s *SnapshotStore) Upsert(ctx context.Context, snap *models.MemorySnapshot) error {
	data, err := encodeJSON(snap)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO snapshots (user_id, date, data, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, date) DO UPDATE SET
			data = excluded.data,
			created_at = excluded.created_at
	`, snap.UserID, snap.Date, data, toUnix(snap.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save snapshot %s/%s: %w", snap.UserID, snap.Date, err)
	}
	return nil
}

// Get retrieves one snapshot, returning nil if not found
func (s *SnapshotStore) Get(ctx context.Context, userID, date string) (*models.MemorySnapshot, error) {
	var data string
	err := s.db.QueryRow(ctx,
		"SELECT data FROM snapshots WHERE user_id = ? AND date = ?", userID, date).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	var snap models.MemorySnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}

// ListSince returns a user's snapshots dated on or after sinceDate, newest first
func (s *SnapshotStore) ListSince(ctx context.Context, userID, sinceDate string) ([]models.MemorySnapshot, error) {
	rows, err := s.db.Query(ctx, `
		SELECT data FROM snapshots
		WHERE user_id = ? AND date >= ?
		ORDER BY date DESC
	`, userID, sinceDate)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var snaps []models.MemorySnapshot
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var snap models.MemorySnapshot
		if err := json.Unmarshal([]byte(data), &snap); err != nil {
			// skip undecodable rows
			continue
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// DeleteBefore removes snapshots dated before the given YYYY-MM-DD date
func (s *SnapshotStore) DeleteBefore(ctx context.Context, date string) (int64, error) {
	res, err := s.db.Exec(ctx, "DELETE FROM snapshots WHERE date < ?", date)
	if err != nil {
		return 0, fmt.Errorf("failed to delete snapshots: %w", err)
	}
	return res.RowsAffected()
}
