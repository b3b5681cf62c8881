// ABOUTME: Picks the generation, speech and moderation adapters from configuration
// ABOUTME: The "none" provider answers every call with ErrDisabled so the engine uses its fallbacks
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/harper/companion-engine/internal/capability"
	"github.com/harper/companion-engine/internal/config"
	"github.com/harper/companion-engine/internal/models"
)

// ErrDisabled is returned by every Disabled method.
var ErrDisabled = errors.New("provider disabled")

// Disabled stands in for a provider that is not configured.
type Disabled struct{}

func (Disabled) Generate(context.Context, capability.GenerationRequest) (string, error) {
	return "", ErrDisabled
}

func (Disabled) GenerateStructured(context.Context, string) (string, error) {
	return "", ErrDisabled
}

func (Disabled) Transcribe(context.Context, []byte, bool) (capability.Transcript, error) {
	return capability.Transcript{}, ErrDisabled
}

func (Disabled) Synthesize(context.Context, string, models.Prosody) ([]byte, error) {
	return nil, ErrDisabled
}

// Providers bundles the adapters the engine consumes. Moderation is nil when
// no upstream classifier is configured.
type Providers struct {
	Name       string
	Generator  capability.TextGenerator
	STT        capability.SpeechToText
	TTS        capability.TextToSpeech
	Moderation capability.SafetyClassifier
}

// NewProviders builds the adapters for cfg.LLMProvider. The Anthropic
// provider still uses OpenAI for speech and moderation when a key is set.
func NewProviders(cfg *config.Config) (*Providers, error) {
	p := &Providers{
		Name:      cfg.LLMProvider,
		Generator: Disabled{},
		STT:       Disabled{},
		TTS:       Disabled{},
	}

	var oai *OpenAIClient
	if cfg.OpenAIKey != "" {
		var err error
		oai, err = NewOpenAIClientWithConfig(&ClientConfig{
			APIKey:     cfg.OpenAIKey,
			BaseURL:    cfg.OpenAIBaseURL,
			ChatModel:  cfg.ChatModel,
			TTSModel:   cfg.TTSModel,
			Voice:      cfg.TTSVoice,
			STTModel:   cfg.STTModel,
			MaxRetries: cfg.MaxRetries,
			RetryDelay: cfg.RetryDelay,
		})
		if err != nil {
			return nil, err
		}
	}

	switch cfg.LLMProvider {
	case "none":
		return p, nil
	case "openai":
		if oai == nil {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for the openai provider")
		}
		p.Generator = oai
	case "anthropic":
		ac, err := NewAnthropicClient(&AnthropicConfig{
			APIKey:     cfg.AnthropicKey,
			Model:      cfg.AnthropicModel,
			MaxRetries: cfg.MaxRetries,
			RetryDelay: cfg.RetryDelay,
		})
		if err != nil {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is required for the anthropic provider: %w", err)
		}
		p.Generator = ac
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLMProvider)
	}

	if oai != nil {
		p.STT = oai
		p.TTS = oai
		if cfg.ModerationEnabled {
			p.Moderation = oai
		}
	}
	return p, nil
}
