// ABOUTME: EmotionalState produced once per turn by the emotional sensor
// ABOUTME: Sentiment, energy and mood are typed string enums so they serialize as-is
package models

// Sentiment is the overall polarity of an utterance.
type Sentiment string

const (
	SentimentPositive  Sentiment = "positive"
	SentimentNeutral   Sentiment = "neutral"
	SentimentNegative  Sentiment = "negative"
	SentimentUncertain Sentiment = "uncertain"
)

// Energy is the arousal level of an utterance.
type Energy string

const (
	EnergyLow    Energy = "low"
	EnergyMedium Energy = "medium"
	EnergyHigh   Energy = "high"
)

// Mood is the dominant feeling bucket.
type Mood string

const (
	MoodNeutral   Mood = "neutral"
	MoodHappy     Mood = "happy"
	MoodExcited   Mood = "excited"
	MoodSad       Mood = "sad"
	MoodAngry     Mood = "angry"
	MoodTired     Mood = "tired"
	MoodConfused  Mood = "confused"
	MoodUpset     Mood = "upset"
	MoodBored     Mood = "bored"
	MoodUncertain Mood = "uncertain"
)

// EmotionSource records which classifier tier produced the state.
type EmotionSource string

const (
	SourceKeyword EmotionSource = "keyword"
	SourceLLM     EmotionSource = "llm"
	SourceDefault EmotionSource = "default"
)

// EmotionIndicators are the raw surface signals behind a classification.
type EmotionIndicators struct {
	ExclamationCount int      `json:"exclamation_count"`
	QuestionCount    int      `json:"question_count"`
	UppercaseRatio   float64  `json:"uppercase_ratio"`
	WordCount        int      `json:"word_count"`
	RepeatedChars    bool     `json:"repeated_chars"`
	EmotionalWords   []string `json:"emotional_words,omitempty"`
}

// EmotionalState is the per-turn classification. It is never mutated after creation.
type EmotionalState struct {
	Sentiment      Sentiment         `json:"sentiment"`
	Energy         Energy            `json:"energy"`
	Mood           Mood              `json:"mood"`
	Confidence     float64           `json:"confidence"`
	Indicators     EmotionIndicators `json:"indicators"`
	EmotionalNeeds []string          `json:"emotional_needs,omitempty"`
	SuggestedTone  string            `json:"suggested_tone,omitempty"`
	Source         EmotionSource     `json:"source"`
}

// NeutralEmotion is the state used when sensing is disabled.
func NeutralEmotion() EmotionalState {
	return EmotionalState{
		Sentiment:  SentimentNeutral,
		Energy:     EnergyMedium,
		Mood:       MoodNeutral,
		Confidence: 0.5,
		Source:     SourceDefault,
	}
}

// NeedsFallback reports whether the keyword tier was inconclusive.
func (e EmotionalState) NeedsFallback() bool {
	return e.Sentiment == SentimentUncertain || e.Mood == MoodUncertain
}
