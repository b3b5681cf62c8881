// ABOUTME: Daily snapshot generation: summary, insights, engagement and parent digest
// ABOUTME: Snapshots cover one UTC day and are upserted so reruns are idempotent
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/harper/companion-engine/internal/capability"
	"github.com/harper/companion-engine/internal/core"
	"github.com/harper/companion-engine/internal/models"
)

// DateLayout is the snapshot date format.
const DateLayout = "2006-01-02"

const (
	favoriteTopicLimit   = 3
	interestMentionFloor = 2
	engagementFullAt     = 10.0
	summaryTokenBudget   = 200
)

const summarySystemPrompt = `You summarize a day of conversations between a child and their AI companion for the child's parents.
Write 2-3 warm, factual sentences about what the child talked about, how they seemed to feel, and anything they learned or achieved.
Do not quote the child verbatim and do not invent details.`

// DayBounds returns the UTC midnight starting the day containing t and the
// following midnight.
func DayBounds(t time.Time) (time.Time, time.Time) {
	u := t.UTC()
	start := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

// GenerateDailySnapshot builds, persists and returns the snapshot for the UTC
// day containing day. A day without turns yields an empty snapshot that is
// not persisted.
func (s *Store) GenerateDailySnapshot(ctx context.Context, userID string, day time.Time) (*models.MemorySnapshot, error) {
	from, to := DayBounds(day)
	turns, err := s.turns.ListByUser(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load turns: %w", err)
	}

	snap := &models.MemorySnapshot{
		UserID:                userID,
		Date:                  from.Format(DateLayout),
		MoodPatterns:          []string{},
		TopicsDiscussed:       []string{},
		PreferencesDiscovered: map[string]string{},
		Achievements:          []string{},
		CreatedAt:             s.clock.Now(),
	}
	if len(turns) == 0 {
		snap.Summary = "No conversations on this day."
		snap.ParentSummary = snap.Summary
		snap.Insights.FavoriteTopics = []string{}
		return snap, nil
	}

	profile, err := s.loadProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	topicCounts := make(map[string]int)
	moodCounts := make(map[models.Mood]int)
	var moodOrder []models.Mood
	for _, turn := range turns {
		for _, topic := range core.DetectTopics(turn.UserInput) {
			topicCounts[topic]++
		}
		for subject, polarity := range ExtractPreferences(turn.UserInput) {
			snap.PreferencesDiscovered[subject] = polarity
		}
		if turn.Achievement != "" {
			snap.Achievements = append(snap.Achievements, turn.Achievement)
		}
		mood := turn.Emotion.Mood
		if mood == "" {
			mood = models.MoodNeutral
		}
		if moodCounts[mood] == 0 {
			moodOrder = append(moodOrder, mood)
		}
		moodCounts[mood]++
	}

	ranked := rankTopics(topicCounts)
	snap.TotalInteractions = len(turns)
	snap.TopicsDiscussed = ranked
	snap.MoodPatterns = moodPatterns(moodCounts, moodOrder)
	snap.Insights = insights(turns, ranked, moodCounts, moodOrder, snap.Achievements)
	snap.Engagement = engagementMetrics(turns)
	snap.Summary = s.summarize(ctx, profile, turns, ranked)
	snap.ParentSummary = parentSummary(profile, snap)

	if err := s.snapshots.Upsert(ctx, snap); err != nil {
		return nil, fmt.Errorf("failed to save snapshot: %w", err)
	}

	var frequent []string
	for _, topic := range ranked {
		if topicCounts[topic] > interestMentionFloor {
			frequent = append(frequent, topic)
		}
	}
	if err := s.mergeInterests(ctx, userID, frequent); err != nil {
		return nil, err
	}

	s.logger.Info("daily snapshot generated",
		zap.String("user_id", userID),
		zap.String("date", snap.Date),
		zap.Int("interactions", snap.TotalInteractions))
	return snap, nil
}

func (s *Store) loadProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	if s.profiles == nil {
		return models.NewUserProfile(userID), nil
	}
	profile, err := s.profiles.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	if profile == nil {
		profile = models.NewUserProfile(userID)
	}
	return profile, nil
}

// mergeInterests set-unions topics into the stored profile.
func (s *Store) mergeInterests(ctx context.Context, userID string, topics []string) error {
	if len(topics) == 0 || s.profiles == nil {
		return nil
	}
	s.profileMu.Lock()
	defer s.profileMu.Unlock()

	// reload under the lock so concurrent merges see each other
	profile, err := s.loadProfile(ctx, userID)
	if err != nil {
		return err
	}
	if profile.MergeInterests(topics) == 0 {
		return nil
	}
	profile.LastUpdated = s.clock.Now()
	if err := s.profiles.Save(ctx, profile); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

func (s *Store) summarize(ctx context.Context, profile *models.UserProfile, turns []models.Turn, topics []string) string {
	fallback := templateSummary(profile, turns, topics)
	if s.generator == nil {
		return fallback
	}
	transcript := buildTranscript(turns, s.cfg.TranscriptCharLimit)
	summary, err := capability.Call(ctx, "summary", s.cfg.SummaryTimeout, func(ctx context.Context) (string, error) {
		return s.generator.Generate(ctx, capability.GenerationRequest{
			SystemPrompt: summarySystemPrompt,
			UserMessage:  fmt.Sprintf("Child's name: %s\n\nTranscript:\n%s", profile.DisplayName(), transcript),
			TokenBudget:  summaryTokenBudget,
			Temperature:  0.3,
		})
	})
	if err != nil || strings.TrimSpace(summary) == "" {
		s.logger.Warn("summary generation failed, using template", zap.Error(err))
		return fallback
	}
	return strings.TrimSpace(summary)
}

// buildTranscript renders turns oldest first, keeping at most limit
// characters.
func buildTranscript(turns []models.Turn, limit int) string {
	var b strings.Builder
	for _, turn := range turns {
		line := fmt.Sprintf("Child: %s\nCompanion: %s\n", turn.UserInput, turn.AIResponse)
		if utf8.RuneCountInString(b.String())+utf8.RuneCountInString(line) > limit {
			remaining := limit - utf8.RuneCountInString(b.String())
			if remaining > 0 {
				b.WriteString(string([]rune(line)[:remaining]))
			}
			break
		}
		b.WriteString(line)
	}
	return b.String()
}

func templateSummary(profile *models.UserProfile, turns []models.Turn, topics []string) string {
	about := "lots of different things"
	if len(topics) > 0 {
		about = joinList(topics)
	}
	return fmt.Sprintf("%s had %d conversations today and talked about %s.", profile.DisplayName(), len(turns), about)
}

func rankTopics(counts map[string]int) []string {
	topics := make([]string, 0, len(counts))
	for topic := range counts {
		topics = append(topics, topic)
	}
	sort.Slice(topics, func(i, j int) bool {
		if counts[topics[i]] != counts[topics[j]] {
			return counts[topics[i]] > counts[topics[j]]
		}
		return topics[i] < topics[j]
	})
	return topics
}

// dominantMood is the statistical mode; ties go to the mood seen first.
func dominantMood(counts map[models.Mood]int, order []models.Mood) models.Mood {
	best := models.MoodNeutral
	bestCount := 0
	for _, mood := range order {
		if counts[mood] > bestCount {
			best, bestCount = mood, counts[mood]
		}
	}
	return best
}

func moodPatterns(counts map[models.Mood]int, order []models.Mood) []string {
	moods := append([]models.Mood(nil), order...)
	sort.SliceStable(moods, func(i, j int) bool { return counts[moods[i]] > counts[moods[j]] })
	out := make([]string, 0, len(moods))
	for _, mood := range moods {
		out = append(out, fmt.Sprintf("%s x%d", mood, counts[mood]))
	}
	return out
}

func insights(turns []models.Turn, topics []string, moods map[models.Mood]int, moodOrder []models.Mood, achievements []string) models.Insights {
	in := models.Insights{
		DominantMood:   dominantMood(moods, moodOrder),
		FavoriteTopics: topics,
		ContentCounts:  map[string]int{},
	}
	if len(in.FavoriteTopics) > favoriteTopicLimit {
		in.FavoriteTopics = in.FavoriteTopics[:favoriteTopicLimit]
	}

	hours := make(map[int]int)
	for _, turn := range turns {
		hours[turn.Timestamp.UTC().Hour()]++
		if turn.ContentType.IsMedia() {
			in.ContentCounts[turn.ContentType.String()]++
		}
		if turn.Mode == models.ModeTeaching || strings.HasSuffix(strings.TrimSpace(turn.UserInput), "?") {
			in.LearningMoments++
		}
	}
	bestHour := -1
	for hour, n := range hours {
		if bestHour < 0 || n > hours[bestHour] || (n == hours[bestHour] && hour < bestHour) {
			bestHour = hour
		}
	}
	in.MostActiveHour = bestHour

	favorite := ""
	for content, n := range in.ContentCounts {
		if favorite == "" || n > in.ContentCounts[favorite] || (n == in.ContentCounts[favorite] && content < favorite) {
			favorite = content
		}
	}
	in.FavoriteContent = favorite

	for _, a := range achievements {
		if strings.HasPrefix(a, "Completed ") {
			in.GamesCompleted++
		}
	}
	return in
}

func engagementMetrics(turns []models.Turn) models.EngagementMetrics {
	m := models.EngagementMetrics{TotalInteractions: len(turns)}
	if len(turns) == 0 {
		return m
	}
	first, last := turns[0].Timestamp, turns[0].Timestamp
	chars := 0
	for _, turn := range turns {
		if turn.Timestamp.Before(first) {
			first = turn.Timestamp
		}
		if turn.Timestamp.After(last) {
			last = turn.Timestamp
		}
		chars += utf8.RuneCountInString(turn.UserInput)
	}
	m.DurationMinutes = last.Sub(first).Minutes()
	m.AvgMessageLength = float64(chars) / float64(len(turns))
	m.Score = min(float64(len(turns))/engagementFullAt, 1)
	return m
}

func parentSummary(profile *models.UserProfile, snap *models.MemorySnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s chatted %d times today", profile.DisplayName(), snap.TotalInteractions)
	if snap.Engagement.DurationMinutes >= 1 {
		fmt.Fprintf(&b, " over about %.0f minutes", snap.Engagement.DurationMinutes)
	}
	b.WriteString(".")
	if len(snap.Insights.FavoriteTopics) > 0 {
		fmt.Fprintf(&b, " Favorite topics: %s.", joinList(snap.Insights.FavoriteTopics))
	}
	fmt.Fprintf(&b, " Overall mood: %s.", snap.Insights.DominantMood)
	if len(snap.Achievements) > 0 {
		fmt.Fprintf(&b, " Achievements: %s.", joinList(snap.Achievements))
	}
	return b.String()
}

func joinList(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	default:
		return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
	}
}

// Profile returns the stored profile, or a fresh default for unknown users.
func (s *Store) Profile(ctx context.Context, userID string) (*models.UserProfile, error) {
	return s.loadProfile(ctx, userID)
}

// SaveProfile replaces the stored profile. It shares the interest-merge lock
// so a concurrent snapshot cannot overwrite it with stale data.
func (s *Store) SaveProfile(ctx context.Context, profile *models.UserProfile) error {
	if s.profiles == nil {
		return fmt.Errorf("no profile repository configured")
	}
	s.profileMu.Lock()
	defer s.profileMu.Unlock()

	profile.LastUpdated = s.clock.Now()
	if err := s.profiles.Save(ctx, profile); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}
