// ABOUTME: Feature flag resolution: defaults, then per-user overrides, then A/B overlay
// ABOUTME: A/B buckets come from xxhash(userID) mod 100 and are recorded once per test and user
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/harper/companion-engine/internal/models"
)

// Flag names.
const (
	FlagVoiceEnabled         = "voice_enabled"
	FlagEmotionalSensing     = "emotional_sensing"
	FlagLLMEmotionFallback   = "llm_emotion_fallback"
	FlagConversationalRepair = "conversational_repair"
	FlagGamesEnabled         = "games_enabled"
	FlagMicroGames           = "micro_games"
	FlagMemoryContext        = "memory_context"
	FlagDailySnapshots       = "daily_snapshots"
	FlagBreakReminders       = "break_reminders"
	FlagRateLimiting         = "rate_limiting"
	FlagSafetyFilter         = "safety_filter"
	FlagContentEnhancement   = "content_enhancement"
	FlagBedtimeMode          = "bedtime_mode"
	FlagCulturalContext      = "cultural_context"
	FlagStoryMode            = "story_mode"
	FlagSongMode             = "song_mode"
	FlagParentInsights       = "parent_insights"
	FlagABTesting            = "ab_testing"
)

var defaultFlags = models.FeatureFlags{
	FlagVoiceEnabled:         true,
	FlagEmotionalSensing:     true,
	FlagLLMEmotionFallback:   true,
	FlagConversationalRepair: true,
	FlagGamesEnabled:         true,
	FlagMicroGames:           true,
	FlagMemoryContext:        true,
	FlagDailySnapshots:       true,
	FlagBreakReminders:       true,
	FlagRateLimiting:         true,
	FlagSafetyFilter:         true,
	FlagContentEnhancement:   true,
	FlagBedtimeMode:          true,
	FlagCulturalContext:      true,
	FlagStoryMode:            true,
	FlagSongMode:             true,
	FlagParentInsights:       true,
	FlagABTesting:            true,
}

// ErrUnknownFlag is returned when an update names a flag that does not exist.
var ErrUnknownFlag = errors.New("unknown feature flag")

// DefaultFlags returns a copy of the built-in flag defaults.
func DefaultFlags() models.FeatureFlags {
	return defaultFlags.Clone()
}

// FlagNames lists every known flag in sorted order.
func FlagNames() []string {
	names := make([]string, 0, len(defaultFlags))
	for name := range defaultFlags {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsKnownFlag reports whether name is a defined flag.
func IsKnownFlag(name string) bool {
	_, ok := defaultFlags[name]
	return ok
}

// ResolveFlags layers a user's overrides and A/B variants over the defaults.
// Storage failures fall back to the layers that did load.
func (s *Store) ResolveFlags(ctx context.Context, userID string) models.FeatureFlags {
	flags := DefaultFlags()

	overrides, err := s.flags.GetOverrides(ctx, userID)
	if err != nil {
		s.logger.Warn("failed to load flag overrides", zap.String("user_id", userID), zap.Error(err))
	}
	for name, on := range overrides {
		flags[name] = on
	}

	if !flags.Enabled(FlagABTesting) {
		return flags
	}
	for _, test := range s.tests {
		if !test.Active {
			continue
		}
		variant, err := s.AssignVariant(ctx, test.Name, userID)
		if err != nil {
			s.logger.Warn("failed to assign variant",
				zap.String("test", test.Name), zap.String("user_id", userID), zap.Error(err))
			continue
		}
		for _, v := range test.Variants {
			if v.Name != variant {
				continue
			}
			for name, on := range v.Flags {
				flags[name] = on
			}
		}
	}
	return flags
}

// UpdateFlags merges updates into the user's stored overrides and returns the
// newly resolved flags. Unknown names are rejected before anything is saved.
func (s *Store) UpdateFlags(ctx context.Context, userID string, updates map[string]bool) (models.FeatureFlags, error) {
	for name := range updates {
		if !IsKnownFlag(name) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownFlag, name)
		}
	}

	overrides, err := s.flags.GetOverrides(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load overrides: %w", err)
	}
	if overrides == nil {
		overrides = make(map[string]bool, len(updates))
	}
	for name, on := range updates {
		overrides[name] = on
	}
	if err := s.flags.SaveOverrides(ctx, userID, overrides, s.clock.Now()); err != nil {
		return nil, fmt.Errorf("failed to save overrides: %w", err)
	}
	return s.ResolveFlags(ctx, userID), nil
}

// Bucket maps a user to [0, 100).
func Bucket(userID string) int {
	return int(xxhash.Sum64String(userID) % 100)
}

// PickVariant walks variants in order accumulating traffic and returns the
// first whose cumulative share exceeds bucket. Users past the total traffic
// are not enrolled.
func PickVariant(test models.ABTest, bucket int) (string, bool) {
	cumulative := 0
	for _, v := range test.Variants {
		cumulative += v.Traffic
		if bucket < cumulative {
			return v.Name, true
		}
	}
	return "", false
}

// AssignVariant returns the user's variant for the named test. A recorded
// assignment always wins; otherwise the hash bucket decides and is recorded.
// An empty result means the user is outside the test's traffic.
func (s *Store) AssignVariant(ctx context.Context, testName, userID string) (string, error) {
	idx := slices.IndexFunc(s.tests, func(t models.ABTest) bool { return t.Name == testName })
	if idx < 0 {
		return "", fmt.Errorf("unknown A/B test %q", testName)
	}

	stored, ok, err := s.flags.GetAssignment(ctx, testName, userID)
	if err != nil {
		return "", err
	}
	if ok {
		return stored, nil
	}

	variant, enrolled := PickVariant(s.tests[idx], Bucket(userID))
	if !enrolled {
		return "", nil
	}
	return s.flags.AssignVariant(ctx, testName, userID, variant, s.clock.Now())
}
