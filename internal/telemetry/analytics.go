// ABOUTME: Analytics rollup over daily telemetry records
// ABOUTME: Totals, feature usage, per-day breakdown, top features and engagement trend
package telemetry

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/harper/companion-engine/internal/models"
)

const (
	topFeatureLimit = 5
	trendThreshold  = 0.1
)

// GetAnalytics sums the daily records between from and to (inclusive, UTC
// dates). An empty userID covers every user.
func (s *Store) GetAnalytics(ctx context.Context, from, to time.Time, userID string) (*models.Analytics, error) {
	fromDate := from.UTC().Format(DateLayout)
	toDate := to.UTC().Format(DateLayout)
	if fromDate > toDate {
		fromDate, toDate = toDate, fromDate
	}

	records, err := s.daily.ListRange(ctx, userID, fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("failed to load daily telemetry: %w", err)
	}

	out := &models.Analytics{
		From:         fromDate,
		To:           toDate,
		UserID:       userID,
		Totals:       map[string]int{},
		FeatureUsage: map[string]int{},
		Daily:        []models.DailyBreakdown{},
		TopFeatures:  []models.FeatureCount{},
		Trend:        models.TrendStable,
	}

	type dayAcc struct {
		counters map[string]int
		scoreSum float64
		n        int
	}
	days := map[string]*dayAcc{}
	var order []string
	for _, rec := range records {
		for k, v := range rec.Counters {
			out.Totals[k] += v
		}
		for k, v := range rec.FeatureUsage {
			out.FeatureUsage[k] += v
		}
		acc, ok := days[rec.Date]
		if !ok {
			acc = &dayAcc{counters: map[string]int{}}
			days[rec.Date] = acc
			order = append(order, rec.Date)
		}
		for k, v := range rec.Counters {
			acc.counters[k] += v
		}
		acc.scoreSum += EngagementScore(rec.Counters)
		acc.n++
	}

	sort.Strings(order)
	for _, date := range order {
		acc := days[date]
		out.Daily = append(out.Daily, models.DailyBreakdown{
			Date:            date,
			Counters:        acc.counters,
			EngagementScore: acc.scoreSum / float64(acc.n),
		})
	}
	out.TopFeatures = topFeatures(out.FeatureUsage, topFeatureLimit)
	out.Trend = engagementTrend(out.Daily)
	return out, nil
}

func topFeatures(usage map[string]int, limit int) []models.FeatureCount {
	ranked := make([]models.FeatureCount, 0, len(usage))
	for feature, n := range usage {
		ranked = append(ranked, models.FeatureCount{Feature: feature, Count: n})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Feature < ranked[j].Feature
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// engagementTrend compares the mean score of the first and second halves of
// the breakdown. With an odd count the middle day belongs to the second half.
func engagementTrend(daily []models.DailyBreakdown) models.EngagementTrend {
	if len(daily) < 2 {
		return models.TrendStable
	}
	mid := len(daily) / 2
	diff := meanScore(daily[mid:]) - meanScore(daily[:mid])
	switch {
	case diff > trendThreshold:
		return models.TrendIncreasing
	case diff < -trendThreshold:
		return models.TrendDecreasing
	default:
		return models.TrendStable
	}
}

func meanScore(days []models.DailyBreakdown) float64 {
	if len(days) == 0 {
		return 0
	}
	sum := 0.0
	for _, d := range days {
		sum += d.EngagementScore
	}
	return sum / float64(len(days))
}
