// ABOUTME: User profile storage operations for SQLite
// ABOUTME: One row per child with interests and preferences as JSON arrays
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/harper/companion-engine/internal/models"
)

// ProfileStore handles user profile persistence
type ProfileStore struct {
	db *DB
}

// NewProfileStore creates a new ProfileStore
func NewProfileStore(db *DB) *ProfileStore {
	return &ProfileStore{db: db}
}

// Get retrieves a profile, returning nil if not found
func (s *ProfileStore) Get(ctx context.Context, userID string) (*models.UserProfile, error) {
	var (
		name, location, timezone, language sql.NullString
		interestsJSON, prefsJSON           sql.NullString
		age                                sql.NullInt64
		updatedAt                          int64
	)

	err := s.db.QueryRow(ctx, `
		SELECT name, age, location, timezone, language, interests, preferences, updated_at
		FROM profiles
		WHERE user_id = ?
	`, userID).Scan(&name, &age, &location, &timezone, &language, &interestsJSON, &prefsJSON, &updatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load profile %s: %w", userID, err)
	}

	return &models.UserProfile{
		UserID:      userID,
		Name:        name.String,
		Age:         int(age.Int64),
		Location:    location.String,
		Timezone:    timezone.String,
		Language:    language.String,
		Interests:   decodeStrings(interestsJSON),
		Preferences: decodeStrings(prefsJSON),
		LastUpdated: fromUnix(updatedAt),
	}, nil
}

// Save saves or updates a profile (upsert)
func (s *ProfileStore) Save(ctx context.Context, profile *models.UserProfile) error {
	if profile == nil || profile.UserID == "" {
		return errors.New("profile requires a user id")
	}

	interestsJSON, err := encodeJSON(nonNil(profile.Interests))
	if err != nil {
		return err
	}
	prefsJSON, err := encodeJSON(nonNil(profile.Preferences))
	if err != nil {
		return err
	}

	updatedAt := time.Now()
	if !profile.LastUpdated.IsZero() {
		updatedAt = profile.LastUpdated
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO profiles (user_id, name, age, location, timezone, language, interests, preferences, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			name = excluded.name,
			age = excluded.age,
			location = excluded.location,
			timezone = excluded.timezone,
			language = excluded.language,
			interests = excluded.interests,
			preferences = excluded.preferences,
			updated_at = excluded.updated_at
	`, profile.UserID, profile.Name, profile.Age, profile.Location, profile.Timezone,
		profile.Language, interestsJSON, prefsJSON, toUnix(updatedAt))
	if err != nil {
		return fmt.Errorf("failed to save profile %s: %w", profile.UserID, err)
	}
	return nil
}

func encodeJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode json: %w", err)
	}
	return string(data), nil
}

func decodeStrings(ns sql.NullString) []string {
	out := []string{}
	if ns.Valid && ns.String != "" {
		if err := json.Unmarshal([]byte(ns.String), &out); err != nil {
			return []string{}
		}
	}
	return out
}

func decodeCounts(raw string) map[string]int {
	out := map[string]int{}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &out); err != nil {
			return map[string]int{}
		}
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
