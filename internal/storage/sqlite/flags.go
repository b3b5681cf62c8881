// ABOUTME: Feature flag override and A/B assignment storage for SQLite
// ABOUTME: Assignments are insert-once so the first recorded variant always wins
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// FlagStore handles per-user flag overrides and experiment assignments
type FlagStore struct {
	db *DB
}

// NewFlagStore creates a new FlagStore
func NewFlagStore(db *DB) *FlagStore {
	return &FlagStore{db: db}
}

// GetOverrides returns a user's flag overrides; an unknown user has none
func (s *FlagStore) GetOverrides(ctx context.Context, userID string) (map[string]bool, error) {
	var raw string
	err := s.db.QueryRow(ctx, "SELECT flags FROM flag_overrides WHERE user_id = ?", userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return map[string]bool{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load flag overrides: %w", err)
	}

	flags := map[string]bool{}
	if err := json.Unmarshal([]byte(raw), &flags); err != nil {
		return nil, fmt.Errorf("failed to decode flag overrides: %w", err)
	}
	return flags, nil
}

// SaveOverrides replaces a user's flag overrides
func (s *FlagStore) SaveOverrides(ctx context.Context, userID string, flags map[string]bool, at time.Time) error {
	raw, err := json.Marshal(flags)
	if err != nil {
		return fmt.Errorf("failed to encode flag overrides: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO flag_overrides (user_id, flags, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			flags = excluded.flags,
			updated_at = excluded.updated_at
	`, userID, string(raw), toUnix(at))
	if err != nil {
		return fmt.Errorf("failed to save flag overrides: %w", err)
	}
	return nil
}

// AssignVariant records variant for (test, user) unless an assignment
// already exists, and returns whichever assignment is stored.
func (s *FlagStore) AssignVariant(ctx context.Context, testName, userID, variant string, at time.Time) (string, error) {
	_, err := s.db.Exec(ctx, `
		INSERT INTO ab_assignments (test_name, user_id, variant, assigned_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(test_name, user_id) DO NOTHING
	`, testName, userID, variant, toUnix(at))
	if err != nil {
		return "", fmt.Errorf("failed to record assignment: %w", err)
	}

	stored, ok, err := s.GetAssignment(ctx, testName, userID)
	if err != nil {
		return "", err
	}
	if !ok {
		return variant, nil
	}
	return stored, nil
}

// GetAssignment returns the stored variant for (test, user), if any
func (s *FlagStore) GetAssignment(ctx context.Context, testName, userID string) (string, bool, error) {
	var variant string
	err := s.db.QueryRow(ctx,
		"SELECT variant FROM ab_assignments WHERE test_name = ? AND user_id = ?", testName, userID).Scan(&variant)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to load assignment: %w", err)
	}
	return variant, true, nil
}
