// ABOUTME: MemoryStore accumulates per-session interaction logs and their aggregates
// ABOUTME: Turns are also appended durably so daily snapshots work after a session ends
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/harper/companion-engine/internal/capability"
	"github.com/harper/companion-engine/internal/core"
	"github.com/harper/companion-engine/internal/models"
)

// TurnLog is the durable turn history.
type TurnLog interface {
	Append(ctx context.Context, turn *models.Turn) error
	ListByUser(ctx context.Context, userID string, from, to time.Time) ([]models.Turn, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SnapshotRepo persists one snapshot per user per day.
type SnapshotRepo interface {
	Upsert(ctx context.Context, snap *models.MemorySnapshot) error
	ListSince(ctx context.Context, userID, sinceDate string) ([]models.MemorySnapshot, error)
	DeleteBefore(ctx context.Context, date string) (int64, error)
}

// ProfileRepo loads and saves long-term profiles. Get returns nil for
// unknown users.
type ProfileRepo interface {
	Get(ctx context.Context, userID string) (*models.UserProfile, error)
	Save(ctx context.Context, profile *models.UserProfile) error
}

// Config tunes snapshot generation.
type Config struct {
	TranscriptCharLimit int
	SummaryTimeout      time.Duration
}

// DefaultConfig returns a 5000 character transcript and a 15s summary deadline.
func DefaultConfig() Config {
	return Config{TranscriptCharLimit: 5000, SummaryTimeout: 15 * time.Second}
}

// Store is the MemoryStore.
type Store struct {
	turns     TurnLog
	snapshots SnapshotRepo
	profiles  ProfileRepo
	generator capability.TextGenerator
	clock     capability.Clock
	logger    *zap.Logger
	cfg       Config

	// profileMu serializes read-merge-save of long-term interests.
	profileMu sync.Mutex
}

// NewStore wires a MemoryStore. generator may be nil, in which case
// summaries use the template.
func NewStore(turns TurnLog, snapshots SnapshotRepo, profiles ProfileRepo, generator capability.TextGenerator, clock capability.Clock, logger *zap.Logger, cfg Config) *Store {
	if clock == nil {
		clock = capability.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TranscriptCharLimit <= 0 {
		cfg.TranscriptCharLimit = DefaultConfig().TranscriptCharLimit
	}
	return &Store{
		turns:     turns,
		snapshots: snapshots,
		profiles:  profiles,
		generator: generator,
		clock:     clock,
		logger:    logger,
		cfg:       cfg,
	}
}

// Record appends a turn to the session log, updates the log's aggregates and
// persists the turn. The in-memory log is updated even if persistence fails.
func (s *Store) Record(ctx context.Context, mem *models.SessionMemory, turn models.Turn) error {
	mem.Turns = append(mem.Turns, turn)
	Aggregate(mem, turn)

	if s.turns == nil {
		return nil
	}
	if err := s.turns.Append(ctx, &turn); err != nil {
		return fmt.Errorf("failed to persist turn: %w", err)
	}
	return nil
}

// Aggregate folds one turn into the session aggregates.
func Aggregate(mem *models.SessionMemory, turn models.Turn) {
	if mem.Topics == nil {
		mem.Topics = make(map[string]int)
	}
	if mem.Preferences == nil {
		mem.Preferences = make(map[string]string)
	}

	for _, topic := range core.DetectTopics(turn.UserInput) {
		mem.Topics[topic]++
	}
	for subject, polarity := range ExtractPreferences(turn.UserInput) {
		mem.Preferences[subject] = polarity
	}
	if turn.Achievement != "" {
		mem.Achievements = append(mem.Achievements, turn.Achievement)
	}
	if pattern := emotionalPattern(turn.Emotion); pattern != "" {
		n := len(mem.EmotionalPatterns)
		if n == 0 || mem.EmotionalPatterns[n-1] != pattern {
			mem.EmotionalPatterns = append(mem.EmotionalPatterns, pattern)
		}
	}
}

func emotionalPattern(e models.EmotionalState) string {
	if e.Mood == "" || e.Mood == models.MoodNeutral {
		return ""
	}
	return fmt.Sprintf("%s (%s energy)", e.Mood, e.Energy)
}

// Preference polarities.
const (
	Likes    = "likes"
	Dislikes = "dislikes"
)

var dislikePrefixes = []string{"i don't like", "i dont like", "i do not like", "i hate", "i don't want", "i really don't like"}

var likePrefixes = []string{"i really like", "i really love", "i like", "i love", "i enjoy", "my favorite is", "my favourite is", "i want to be"}

// maxPreferenceWords bounds how much of the utterance after a prefix is kept.
const maxPreferenceWords = 3

// ExtractPreferences finds like/dislike statements and maps the following
// words (at most three) to their polarity.
func ExtractPreferences(text string) map[string]string {
	out := make(map[string]string)
	lower := strings.ToLower(text)
	// dislikes first so "i don't like" is not read as "i like"
	lower = scanPrefixes(lower, dislikePrefixes, Dislikes, out)
	scanPrefixes(lower, likePrefixes, Likes, out)
	return out
}

// scanPrefixes records every word-aligned occurrence of the prefixes and
// returns text with the matched prefixes blanked out.
func scanPrefixes(text string, prefixes []string, polarity string, out map[string]string) string {
	for _, prefix := range prefixes {
		from := 0
		for {
			idx := strings.Index(text[from:], prefix)
			if idx < 0 {
				break
			}
			idx += from
			from = idx + len(prefix)
			if idx > 0 && text[idx-1] != ' ' {
				continue
			}
			rest := text[from:]
			if subject := captureWords(rest, maxPreferenceWords); subject != "" {
				out[subject] = polarity
			}
			text = text[:idx] + strings.Repeat(" ", len(prefix)) + rest
		}
	}
	return text
}

func captureWords(text string, n int) string {
	var words []string
	for _, field := range strings.Fields(text) {
		word := strings.Trim(field, ".,!?;:\"'()")
		if word == "" {
			break
		}
		words = append(words, word)
		if len(words) == n || strings.ContainsAny(field, ".,!?;") {
			break
		}
	}
	return strings.Join(words, " ")
}
