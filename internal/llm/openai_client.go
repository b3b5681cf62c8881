// ABOUTME: OpenAI client for chat replies, structured JSON, speech synthesis, transcription and moderation
// ABOUTME: Every call retries with exponential backoff and gives up early when the context ends
package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/harper/companion-engine/internal/capability"
	"github.com/harper/companion-engine/internal/models"
	"github.com/harper/companion-engine/internal/util"
)

const (
	// DefaultChatModel is the default model for chat completions
	DefaultChatModel = "gpt-4o-mini"
	// DefaultTTSModel is the default speech synthesis model
	DefaultTTSModel = "tts-1"
	// DefaultVoice is the default synthesis voice
	DefaultVoice = "nova"
	// DefaultSTTModel is the default transcription model
	DefaultSTTModel = openai.Whisper1

	childSpeechPrompt = "The speaker is a young child. Transcribe exactly what they say, including mispronunciations."
)

// ClientConfig holds configuration for the OpenAI client
type ClientConfig struct {
	APIKey     string
	BaseURL    string
	ChatModel  string
	TTSModel   string
	Voice      string
	STTModel   string
	MaxRetries int
	RetryDelay time.Duration
}

// DefaultConfig returns the default client configuration
func DefaultConfig(apiKey string) *ClientConfig {
	return &ClientConfig{
		APIKey:     apiKey,
		ChatModel:  DefaultChatModel,
		TTSModel:   DefaultTTSModel,
		Voice:      DefaultVoice,
		STTModel:   DefaultSTTModel,
		MaxRetries: 3,
		RetryDelay: time.Second * 2,
	}
}

// OpenAIClient wraps the OpenAI API client with retry logic. It serves as
// the TextGenerator, SpeechToText, TextToSpeech and SafetyClassifier.
type OpenAIClient struct {
	client     *openai.Client
	chatModel  string
	ttsModel   string
	voice      string
	sttModel   string
	maxRetries int
	retryDelay time.Duration
}

var (
	_ capability.TextGenerator    = (*OpenAIClient)(nil)
	_ capability.SpeechToText     = (*OpenAIClient)(nil)
	_ capability.TextToSpeech     = (*OpenAIClient)(nil)
	_ capability.SafetyClassifier = (*OpenAIClient)(nil)
)

// NewOpenAIClient creates a new OpenAI client with the given API key using default configuration
func NewOpenAIClient(apiKey string) (*OpenAIClient, error) {
	return NewOpenAIClientWithConfig(DefaultConfig(apiKey))
}

// NewOpenAIClientWithConfig creates a new OpenAI client with custom configuration
func NewOpenAIClientWithConfig(config *ClientConfig) (*OpenAIClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	oc := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		oc.BaseURL = config.BaseURL
	}

	return &OpenAIClient{
		client:     openai.NewClientWithConfig(oc),
		chatModel:  orDefault(config.ChatModel, DefaultChatModel),
		ttsModel:   orDefault(config.TTSModel, DefaultTTSModel),
		voice:      orDefault(config.Voice, DefaultVoice),
		sttModel:   orDefault(config.STTModel, DefaultSTTModel),
		maxRetries: config.MaxRetries,
		retryDelay: config.RetryDelay,
	}, nil
}

// GetClient returns the underlying OpenAI client for direct use
func (c *OpenAIClient) GetClient() *openai.Client {
	return c.client
}

// Generate returns a conversational reply.
func (c *OpenAIClient) Generate(ctx context.Context, req capability.GenerationRequest) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	for _, m := range req.History {
		role := openai.ChatMessageRoleUser
		if m.Role == capability.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.UserMessage,
	})

	text, err := c.complete(ctx, openai.ChatCompletionRequest{
		Model:       c.chatModel,
		Messages:    messages,
		MaxTokens:   req.TokenBudget,
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate reply after %d attempts: %w", c.maxRetries+1, err)
	}
	return text, nil
}

// GenerateStructured asks for a single JSON object and returns it unparsed.
func (c *OpenAIClient) GenerateStructured(ctx context.Context, prompt string) (string, error) {
	text, err := c.complete(ctx, openai.ChatCompletionRequest{
		Model: c.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "Return ONLY a JSON object. No additional text.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		Temperature: 0.1,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate structured output after %d attempts: %w", c.maxRetries+1, err)
	}
	return text, nil
}

func (c *OpenAIClient) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.wait(ctx, attempt); err != nil {
			return "", err
		}

		resp, err := c.client.CreateChatCompletion(ctx, req)
		if err != nil {
			lastErr = fmt.Errorf("attempt %d: %w", attempt+1, err)
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("attempt %d: no completion choices returned", attempt+1)
			continue
		}
		return strings.TrimSpace(resp.Choices[0].Message.Content), nil
	}

	return "", lastErr
}

// Synthesize renders text as MP3 audio. The prosody pace maps to speed.
func (c *OpenAIClient) Synthesize(ctx context.Context, text string, prosody models.Prosody) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.wait(ctx, attempt); err != nil {
			return nil, err
		}

		resp, err := c.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
			Model:          openai.SpeechModel(c.ttsModel),
			Input:          text,
			Voice:          openai.SpeechVoice(c.voice),
			ResponseFormat: openai.SpeechResponseFormatMp3,
			Speed:          SpeedForPace(prosody.Pace),
		})
		if err != nil {
			lastErr = fmt.Errorf("attempt %d: %w", attempt+1, err)
			continue
		}

		audio, err := io.ReadAll(resp)
		resp.Close()
		if err != nil {
			lastErr = fmt.Errorf("attempt %d: reading audio: %w", attempt+1, err)
			continue
		}
		return audio, nil
	}

	return nil, fmt.Errorf("failed to synthesize speech after %d attempts: %w", c.maxRetries+1, lastErr)
}

// SpeedForPace converts a prosody pace into a synthesis speed multiplier.
func SpeedForPace(pace string) float64 {
	switch pace {
	case "slow":
		return 0.85
	case "fast":
		return 1.15
	default:
		return 1.0
	}
}

// Transcribe converts audio to text. Confidence is the duration-weighted mean
// of the per-segment token probabilities.
func (c *OpenAIClient) Transcribe(ctx context.Context, audio []byte, childSpeech bool) (capability.Transcript, error) {
	req := openai.AudioRequest{
		Model:    c.sttModel,
		FilePath: "utterance.wav",
		Format:   openai.AudioResponseFormatVerboseJSON,
		Language: "en",
	}
	if childSpeech {
		req.Prompt = childSpeechPrompt
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.wait(ctx, attempt); err != nil {
			return capability.Transcript{}, err
		}

		req.Reader = bytes.NewReader(audio)
		resp, err := c.client.CreateTranscription(ctx, req)
		if err != nil {
			lastErr = fmt.Errorf("attempt %d: %w", attempt+1, err)
			continue
		}

		text := strings.TrimSpace(resp.Text)
		return capability.Transcript{Text: text, Confidence: transcriptConfidence(text, resp)}, nil
	}

	return capability.Transcript{}, fmt.Errorf("failed to transcribe audio after %d attempts: %w", c.maxRetries+1, lastErr)
}

func transcriptConfidence(text string, resp openai.AudioResponse) float64 {
	if text == "" {
		return 0
	}
	var weighted, total float64
	for _, seg := range resp.Segments {
		span := seg.End - seg.Start
		if span <= 0 {
			span = 1
		}
		weighted += math.Exp(seg.AvgLogprob) * span
		total += span
	}
	if total == 0 {
		return 0.9
	}
	return math.Max(0, math.Min(1, weighted/total))
}

// Check runs the moderation endpoint. Age is not used upstream; the safety
// package applies the age-aware rules.
func (c *OpenAIClient) Check(ctx context.Context, text string, age int) (models.SafetyVerdict, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.wait(ctx, attempt); err != nil {
			return models.SafetyVerdict{}, err
		}

		resp, err := c.client.Moderations(ctx, openai.ModerationRequest{Input: text})
		if err != nil {
			lastErr = fmt.Errorf("attempt %d: %w", attempt+1, err)
			continue
		}
		if len(resp.Results) == 0 {
			lastErr = fmt.Errorf("attempt %d: no moderation results returned", attempt+1)
			continue
		}

		result := resp.Results[0]
		if !result.Flagged {
			return models.SafetyVerdict{Safe: true}, nil
		}
		return models.SafetyVerdict{Safe: false, Reason: flaggedCategories(result.Categories)}, nil
	}

	return models.SafetyVerdict{}, fmt.Errorf("failed to moderate text after %d attempts: %w", c.maxRetries+1, lastErr)
}

func flaggedCategories(cat openai.ResultCategories) string {
	var names []string
	add := func(on bool, name string) {
		if on {
			names = append(names, name)
		}
	}
	add(cat.Hate || cat.HateThreatening, "hate")
	add(cat.Harassment || cat.HarassmentThreatening, "harassment")
	add(cat.SelfHarm || cat.SelfHarmIntent || cat.SelfHarmInstructions, "self_harm")
	add(cat.Sexual || cat.SexualMinors, "sexual")
	add(cat.Violence || cat.ViolenceGraphic, "violence")
	if len(names) == 0 {
		return "flagged"
	}
	return strings.Join(names, ",")
}

// wait sleeps the backoff for attempt, returning early if ctx ends.
func (c *OpenAIClient) wait(ctx context.Context, attempt int) error {
	return sleepBackoff(ctx, c.retryDelay, attempt)
}

func sleepBackoff(ctx context.Context, base time.Duration, attempt int) error {
	return util.Backoff(ctx, base, attempt)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
