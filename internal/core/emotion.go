// ABOUTME: Two-tier emotional sensor: a deterministic keyword classifier and an LLM refinement
// ABOUTME: The LLM tier only runs when the keyword tier comes back uncertain
package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/harper/companion-engine/internal/capability"
	"github.com/harper/companion-engine/internal/models"
)

const (
	keywordConfidence  = 0.7
	fallbackConfidence = 0.5
)

var positiveWords = []string{
	"happy", "great", "awesome", "love", "fun", "yay", "good", "cool", "amazing",
	"best", "like", "wonderful", "nice", "funny", "favorite", "fantastic", "glad", "excited",
}

var negativeWords = []string{
	"sad", "bad", "hate", "angry", "mad", "cry", "crying", "scared", "hurt", "boring",
	"bored", "upset", "awful", "terrible", "worst", "annoyed", "lonely", "sick", "don't like",
}

var highEnergyWords = []string{
	"wow", "yay", "excited", "awesome", "run", "jump", "play", "fast", "let's go", "super", "yippee",
}

var lowEnergyWords = []string{
	"tired", "sleepy", "bored", "boring", "meh", "whatever", "yawn", "sleep", "slow", "i guess",
}

type moodBucket struct {
	mood  models.Mood
	words []string
}

// moodBuckets are scored in declaration order; ties go to the earlier bucket.
var moodBuckets = []moodBucket{
	{models.MoodHappy, []string{"happy", "glad", "yay", "fun", "love", "great", "good", "smile", "laugh"}},
	{models.MoodExcited, []string{"excited", "wow", "awesome", "amazing", "can't wait", "cool", "super", "yippee"}},
	{models.MoodSad, []string{"sad", "cry", "crying", "miss", "lonely", "unhappy", "tears"}},
	{models.MoodAngry, []string{"angry", "mad", "hate", "furious", "annoyed", "not fair", "unfair"}},
	{models.MoodTired, []string{"tired", "sleepy", "yawn", "exhausted", "sleep"}},
	{models.MoodConfused, []string{"confused", "huh", "don't understand", "don't get it", "what do you mean", "i don't know"}},
}

// FastClassifier is the deterministic keyword tier.
type FastClassifier struct{}

// NewFastClassifier creates the keyword tier.
func NewFastClassifier() *FastClassifier {
	return &FastClassifier{}
}

// Classify scores an utterance against the fixed keyword tables.
func (f *FastClassifier) Classify(text string) models.EmotionalState {
	norm := normalize(text)
	ind := surfaceIndicators(text)

	pos := countHits(norm, positiveWords, &ind.EmotionalWords)
	neg := countHits(norm, negativeWords, &ind.EmotionalWords)

	sentiment := models.SentimentNeutral
	switch {
	case pos > neg:
		sentiment = models.SentimentPositive
	case neg > pos:
		sentiment = models.SentimentNegative
	case pos > 0:
		sentiment = models.SentimentUncertain
	}

	energy := models.EnergyMedium
	if ind.ExclamationCount > 1 || isShouting(text) {
		energy = models.EnergyHigh
	} else {
		high := countHits(norm, highEnergyWords, nil)
		low := countHits(norm, lowEnergyWords, nil)
		switch {
		case high > low:
			energy = models.EnergyHigh
		case low > high:
			energy = models.EnergyLow
		}
	}

	mood := models.MoodNeutral
	best := 0
	for _, bucket := range moodBuckets {
		if score := countHits(norm, bucket.words, nil); score > best {
			best = score
			mood = bucket.mood
		}
	}

	ind.EmotionalWords = dedupe(ind.EmotionalWords)
	return models.EmotionalState{
		Sentiment:      sentiment,
		Energy:         energy,
		Mood:           mood,
		Confidence:     keywordConfidence,
		Indicators:     ind,
		EmotionalNeeds: needsFor(mood),
		SuggestedTone:  toneFor(mood),
		Source:         models.SourceKeyword,
	}
}

// DelegatingClassifier refines inconclusive keyword results with a TextGenerator.
type DelegatingClassifier struct {
	fast    *FastClassifier
	gen     capability.TextGenerator
	timeout time.Duration
	logger  *zap.Logger
}

// NewDelegatingClassifier creates the two-tier sensor. gen may be nil, in
// which case uncertain results fall through to the fixed default.
func NewDelegatingClassifier(gen capability.TextGenerator, timeout time.Duration, logger *zap.Logger) *DelegatingClassifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DelegatingClassifier{fast: NewFastClassifier(), gen: gen, timeout: timeout, logger: logger}
}

// Classify runs the keyword tier and refines it when needed.
func (d *DelegatingClassifier) Classify(ctx context.Context, text string) models.EmotionalState {
	return d.Refine(ctx, text, d.fast.Classify(text))
}

// Fast exposes the keyword tier alone.
func (d *DelegatingClassifier) Fast(text string) models.EmotionalState {
	return d.fast.Classify(text)
}

// Refine asks the generator for a structured classification when base is
// uncertain. Energy and surface indicators always come from base.
func (d *DelegatingClassifier) Refine(ctx context.Context, text string, base models.EmotionalState) models.EmotionalState {
	if !base.NeedsFallback() {
		return base
	}
	if d.gen == nil {
		return withDefault(base)
	}

	raw, err := capability.Call(ctx, "emotion", d.timeout, func(ctx context.Context) (string, error) {
		return d.gen.GenerateStructured(ctx, emotionPrompt(text))
	})
	if err != nil {
		d.logger.Warn("emotion fallback unavailable", zap.Error(err))
		return withDefault(base)
	}

	if parsed, ok := parseEmotionJSON(raw); ok {
		return merge(base, parsed)
	}
	if scanned, ok := scanEmotionText(raw); ok {
		return merge(base, scanned)
	}
	d.logger.Debug("emotion fallback unparseable", zap.String("raw", truncate(raw, 200)))
	return withDefault(base)
}

func emotionPrompt(text string) string {
	return fmt.Sprintf(`You read messages from young children and judge how they feel.

Message: %q

Return ONLY a JSON object with these fields:
- sentiment: one of positive, neutral, negative
- mood: one of happy, excited, sad, angry, tired, confused, upset, bored, neutral
- confidence: number between 0 and 1
- emotional_needs: array of short phrases
- suggested_tone: one word`, text)
}

type emotionReply struct {
	Sentiment      string   `json:"sentiment"`
	Mood           string   `json:"mood"`
	Confidence     float64  `json:"confidence"`
	EmotionalNeeds []string `json:"emotional_needs"`
	SuggestedTone  string   `json:"suggested_tone"`
}

func parseEmotionJSON(raw string) (models.EmotionalState, bool) {
	var reply emotionReply
	if err := json.Unmarshal([]byte(stripFences(raw)), &reply); err != nil {
		return models.EmotionalState{}, false
	}
	sentiment, ok := parseSentiment(reply.Sentiment)
	if !ok {
		return models.EmotionalState{}, false
	}
	mood, ok := parseMood(reply.Mood)
	if !ok {
		mood = models.MoodNeutral
	}
	conf := reply.Confidence
	if conf <= 0 || conf > 1 {
		conf = keywordConfidence
	}
	return models.EmotionalState{
		Sentiment:      sentiment,
		Mood:           mood,
		Confidence:     conf,
		EmotionalNeeds: reply.EmotionalNeeds,
		SuggestedTone:  reply.SuggestedTone,
	}, true
}

// scanEmotionText pulls sentiment and mood words out of a non-JSON reply.
func scanEmotionText(raw string) (models.EmotionalState, bool) {
	norm := normalize(raw)
	state := models.EmotionalState{Confidence: fallbackConfidence}
	found := false
	for _, s := range []models.Sentiment{models.SentimentPositive, models.SentimentNegative, models.SentimentNeutral} {
		if containsWord(norm, string(s)) {
			state.Sentiment = s
			found = true
			break
		}
	}
	for _, m := range []models.Mood{
		models.MoodHappy, models.MoodExcited, models.MoodSad, models.MoodAngry,
		models.MoodTired, models.MoodConfused, models.MoodUpset, models.MoodBored,
	} {
		if containsWord(norm, string(m)) {
			state.Mood = m
			found = true
			break
		}
	}
	if !found {
		return models.EmotionalState{}, false
	}
	if state.Sentiment == "" {
		state.Sentiment = models.SentimentNeutral
	}
	if state.Mood == "" {
		state.Mood = models.MoodNeutral
	}
	return state, true
}

func merge(base, refined models.EmotionalState) models.EmotionalState {
	out := base
	out.Sentiment = refined.Sentiment
	out.Mood = refined.Mood
	out.Confidence = refined.Confidence
	out.EmotionalNeeds = refined.EmotionalNeeds
	if len(out.EmotionalNeeds) == 0 {
		out.EmotionalNeeds = needsFor(refined.Mood)
	}
	out.SuggestedTone = refined.SuggestedTone
	if out.SuggestedTone == "" {
		out.SuggestedTone = toneFor(refined.Mood)
	}
	out.Source = models.SourceLLM
	return out
}

func withDefault(base models.EmotionalState) models.EmotionalState {
	out := base
	out.Sentiment = models.SentimentNeutral
	out.Mood = models.MoodNeutral
	out.Confidence = fallbackConfidence
	out.EmotionalNeeds = []string{"attention"}
	out.SuggestedTone = "gentle"
	out.Source = models.SourceDefault
	return out
}

func parseSentiment(s string) (models.Sentiment, bool) {
	switch models.Sentiment(strings.ToLower(strings.TrimSpace(s))) {
	case models.SentimentPositive:
		return models.SentimentPositive, true
	case models.SentimentNegative:
		return models.SentimentNegative, true
	case models.SentimentNeutral:
		return models.SentimentNeutral, true
	default:
		return "", false
	}
}

func parseMood(s string) (models.Mood, bool) {
	m := models.Mood(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case models.MoodNeutral, models.MoodHappy, models.MoodExcited, models.MoodSad, models.MoodAngry,
		models.MoodTired, models.MoodConfused, models.MoodUpset, models.MoodBored:
		return m, true
	default:
		return "", false
	}
}

func needsFor(mood models.Mood) []string {
	switch mood {
	case models.MoodSad, models.MoodUpset:
		return []string{"comfort", "validation"}
	case models.MoodAngry:
		return []string{"calm", "validation"}
	case models.MoodTired:
		return []string{"rest", "calm"}
	case models.MoodConfused:
		return []string{"clarity", "patience"}
	case models.MoodBored:
		return []string{"stimulation"}
	case models.MoodExcited, models.MoodHappy:
		return []string{"celebration"}
	default:
		return nil
	}
}

func toneFor(mood models.Mood) string {
	switch mood {
	case models.MoodSad, models.MoodUpset, models.MoodTired:
		return "gentle"
	case models.MoodAngry:
		return "calm"
	case models.MoodConfused:
		return "patient"
	case models.MoodExcited, models.MoodHappy:
		return "enthusiastic"
	case models.MoodBored:
		return "playful"
	default:
		return "warm"
	}
}

func surfaceIndicators(text string) models.EmotionIndicators {
	ind := models.EmotionIndicators{
		ExclamationCount: strings.Count(text, "!"),
		QuestionCount:    strings.Count(text, "?"),
		WordCount:        len(strings.Fields(text)),
		RepeatedChars:    hasRepeatedRun(strings.ToLower(text), 3),
	}
	letters, upper := 0, 0
	for _, r := range text {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	if letters > 0 {
		ind.UppercaseRatio = float64(upper) / float64(letters)
	}
	return ind
}

func isShouting(text string) bool {
	letters := 0
	for _, r := range text {
		if unicode.IsLetter(r) {
			letters++
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return letters >= 2
}

// hasRepeatedRun reports whether any rune repeats n or more times in a row.
func hasRepeatedRun(s string, n int) bool {
	var prev rune
	run := 0
	for _, r := range s {
		if r == prev && unicode.IsLetter(r) {
			run++
			if run >= n {
				return true
			}
		} else {
			prev = r
			run = 1
		}
	}
	return false
}

// normalize lowercases, maps punctuation to spaces (keeping apostrophes) and
// pads with spaces so phrases can be matched on word boundaries.
func normalize(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'':
			b.WriteRune(r)
		case r == '’':
			b.WriteByte('\'')
		default:
			b.WriteByte(' ')
		}
	}
	return " " + strings.Join(strings.Fields(b.String()), " ") + " "
}

func containsWord(norm, phrase string) bool {
	return strings.Contains(norm, " "+phrase+" ")
}

// countHits counts occurrences of each table entry. Single words are matched
// per token, phrases on padded word boundaries.
func countHits(norm string, words []string, matched *[]string) int {
	toks := strings.Fields(norm)
	hits := 0
	for _, w := range words {
		n := 0
		if strings.Contains(w, " ") {
			n = strings.Count(norm, " "+w+" ")
		} else {
			for _, tok := range toks {
				if tok == w {
					n++
				}
			}
		}
		if n > 0 {
			hits += n
			if matched != nil {
				*matched = append(*matched, w)
			}
		}
	}
	return hits
}

func tokens(text string) []string {
	return strings.Fields(normalize(text))
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
