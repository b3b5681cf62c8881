// ABOUTME: Narrow interfaces for the external collaborators the engine consumes
// ABOUTME: LLM generation, speech, safety and content are all mockable behind these
package capability

import (
	"context"

	"github.com/harper/companion-engine/internal/models"
)

// Role of a message in a generation history.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one prior exchange passed to the generator.
type Message struct {
	Role    Role
	Content string
}

// GenerationRequest is the input to free-text generation.
type GenerationRequest struct {
	SystemPrompt string
	History      []Message
	UserMessage  string
	TokenBudget  int
	Temperature  float64
}

// TextGenerator produces replies and structured records.
type TextGenerator interface {
	// Generate returns free text for a conversational turn.
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	// GenerateStructured asks for a JSON object and returns the raw text.
	// Callers parse it and fall back when parsing fails.
	GenerateStructured(ctx context.Context, prompt string) (string, error)
}

// Transcript is the result of speech recognition.
type Transcript struct {
	Text       string
	Confidence float64
}

// Empty reports whether recognition produced no usable text.
func (t Transcript) Empty() bool {
	return t.Text == ""
}

// SpeechToText transcribes audio.
type SpeechToText interface {
	Transcribe(ctx context.Context, audio []byte, childSpeech bool) (Transcript, error)
}

// TextToSpeech synthesizes audio with prosody hints.
type TextToSpeech interface {
	Synthesize(ctx context.Context, text string, prosody models.Prosody) ([]byte, error)
}

// SafetyClassifier decides whether text is appropriate for a child of a given age.
type SafetyClassifier interface {
	Check(ctx context.Context, text string, age int) (models.SafetyVerdict, error)
}

// ContentLibrary looks up curated media. A nil result with a nil error means
// nothing matched.
type ContentLibrary interface {
	Lookup(ctx context.Context, contentType models.ContentType, profile *models.UserProfile) (*models.LibraryContent, error)
}
