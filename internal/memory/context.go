// ABOUTME: Memory-context queries over recent snapshots plus age-based cleanup
// ABOUTME: Preferences fold oldest to newest so the latest value wins
package memory

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/harper/companion-engine/internal/models"
)

const recentSummaryLimit = 3

// GetMemoryContext folds the snapshots of the last days days. Users without
// snapshots get an empty context.
func (s *Store) GetMemoryContext(ctx context.Context, userID string, days int) (models.MemoryContext, error) {
	if days <= 0 {
		days = 7
	}
	out := models.EmptyMemoryContext(userID, days)
	today, _ := DayBounds(s.clock.Now())
	since := today.AddDate(0, 0, -days).Format(DateLayout)

	snaps, err := s.snapshots.ListSince(ctx, userID, since)
	if err != nil {
		return out, fmt.Errorf("failed to load snapshots: %w", err)
	}
	out.SnapshotCount = len(snaps)

	// snaps are newest first
	for i := len(snaps) - 1; i >= 0; i-- {
		for subject, polarity := range snaps[i].PreferencesDiscovered {
			out.Preferences[subject] = polarity
		}
	}
	for _, snap := range snaps {
		out.Topics = appendUnique(out.Topics, snap.TopicsDiscussed...)
		out.Achievements = append(out.Achievements, snap.Achievements...)
		out.MoodPatterns = append(out.MoodPatterns, snap.MoodPatterns...)
		if len(out.RecentSummaries) < recentSummaryLimit && snap.Summary != "" {
			out.RecentSummaries = append(out.RecentSummaries, snap.Summary)
		}
	}
	return out, nil
}

func appendUnique(list []string, items ...string) []string {
	for _, item := range items {
		if !slices.Contains(list, item) {
			list = append(list, item)
		}
	}
	return list
}

// CleanupResult counts removed rows.
type CleanupResult struct {
	Snapshots int64 `json:"snapshots"`
	Turns     int64 `json:"turns"`
}

// Cleanup deletes snapshots and raw turns older than days days.
func (s *Store) Cleanup(ctx context.Context, days int) (CleanupResult, error) {
	if days <= 0 {
		days = 30
	}
	today, _ := DayBounds(s.clock.Now())
	cutoff := today.AddDate(0, 0, -days)

	var res CleanupResult
	n, err := s.snapshots.DeleteBefore(ctx, cutoff.Format(DateLayout))
	if err != nil {
		return res, fmt.Errorf("failed to delete snapshots: %w", err)
	}
	res.Snapshots = n

	if s.turns != nil {
		n, err = s.turns.DeleteBefore(ctx, cutoff)
		if err != nil {
			return res, fmt.Errorf("failed to delete turns: %w", err)
		}
		res.Turns = n
	}

	s.logger.Info("memory cleanup complete",
		zap.Int("days", days),
		zap.Int64("snapshots", res.Snapshots),
		zap.Int64("turns", res.Turns))
	return res, nil
}
