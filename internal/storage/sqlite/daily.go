// ABOUTME: Per-user per-day telemetry rollup storage for SQLite
// ABOUTME: Merge is a serialized read-modify-write so concurrent sessions never lose increments
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/harper/companion-engine/internal/models"
)

// DailyStore handles daily telemetry record persistence
type DailyStore struct {
	db *DB
	mu sync.Mutex
}

// NewDailyStore creates a new DailyStore
func NewDailyStore(db *DB) *DailyStore {
	return &DailyStore{db: db}
}

// Merge adds counter and feature-usage deltas to the (user, date) record,
// creating it when absent, and returns the updated record.
func (s *DailyStore) Merge(ctx context.Context, userID, date string, counters, features map[string]int, at time.Time) (*models.DailyTelemetryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var record *models.DailyTelemetryRecord
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var countersJSON, featuresJSON string
		err := tx.QueryRowContext(ctx,
			"SELECT counters, feature_usage FROM daily_telemetry WHERE user_id = ? AND date = ?",
			userID, date).Scan(&countersJSON, &featuresJSON)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		record = &models.DailyTelemetryRecord{
			UserID:       userID,
			Date:         date,
			Counters:     decodeCounts(countersJSON),
			FeatureUsage: decodeCounts(featuresJSON),
			UpdatedAt:    at.UTC(),
		}
		for k, v := range counters {
			record.Counters[k] += v
		}
		for k, v := range features {
			record.FeatureUsage[k] += v
		}

		newCounters, err := encodeJSON(record.Counters)
		if err != nil {
			return err
		}
		newFeatures, err := encodeJSON(record.FeatureUsage)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO daily_telemetry (user_id, date, counters, feature_usage, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(user_id, date) DO UPDATE SET
				counters = excluded.counters,
				feature_usage = excluded.feature_usage,
				updated_at = excluded.updated_at
		`, userID, date, newCounters, newFeatures, toUnix(at))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to merge daily telemetry %s/%s: %w", userID, date, err)
	}
	return record, nil
}

// ListRange returns daily records with fromDate <= date <= toDate, oldest first.
// An empty userID selects every user.
func (s *DailyStore) ListRange(ctx context.Context, userID, fromDate, toDate string) ([]models.DailyTelemetryRecord, error) {
	query := `
		SELECT user_id, date, counters, feature_usage, updated_at
		FROM daily_telemetry
		WHERE date >= ? AND date <= ?`
	args := []any{fromDate, toDate}
	if userID != "" {
		query += " AND user_id = ?"
		args = append(args, userID)
	}
	query += " ORDER BY date ASC, user_id ASC"

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list daily telemetry: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []models.DailyTelemetryRecord
	for rows.Next() {
		var (
			rec                    models.DailyTelemetryRecord
			countersJSON, features string
			updatedAt              int64
		)
		if err := rows.Scan(&rec.UserID, &rec.Date, &countersJSON, &features, &updatedAt); err != nil {
			return nil, err
		}
		rec.Counters = decodeCounts(countersJSON)
		rec.FeatureUsage = decodeCounts(features)
		rec.UpdatedAt = fromUnix(updatedAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// DeleteBefore removes records dated before the given YYYY-MM-DD date
func (s *DailyStore) DeleteBefore(ctx context.Context, date string) (int64, error) {
	res, err := s.db.Exec(ctx, "DELETE FROM daily_telemetry WHERE date < ?", date)
	if err != nil {
		return 0, fmt.Errorf("failed to delete daily telemetry: %w", err)
	}
	return res.RowsAffected()
}
