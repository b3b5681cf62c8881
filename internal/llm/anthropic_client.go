// ABOUTME: Anthropic Messages API client used as an alternative TextGenerator
// ABOUTME: Shares the OpenAI client's retry loop; the SDK's own retries are disabled
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/harper/companion-engine/internal/capability"
)

const (
	// DefaultAnthropicModel is the default Claude model
	DefaultAnthropicModel = "claude-3-5-haiku-latest"

	defaultAnthropicMaxTokens = 512
	structuredMaxTokens       = 1024
)

// AnthropicConfig holds configuration for the Anthropic client
type AnthropicConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxRetries int
	RetryDelay time.Duration
}

// AnthropicClient implements capability.TextGenerator over Claude.
type AnthropicClient struct {
	client     anthropic.Client
	model      anthropic.Model
	maxRetries int
	retryDelay time.Duration
}

var _ capability.TextGenerator = (*AnthropicClient)(nil)

// NewAnthropicClient builds a client from config.
func NewAnthropicClient(config *AnthropicConfig) (*AnthropicClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithMaxRetries(0),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &AnthropicClient{
		client:     anthropic.NewClient(opts...),
		model:      anthropic.Model(orDefault(config.Model, DefaultAnthropicModel)),
		maxRetries: config.MaxRetries,
		retryDelay: config.RetryDelay,
	}, nil
}

// Generate returns a conversational reply.
func (c *AnthropicClient) Generate(ctx context.Context, req capability.GenerationRequest) (string, error) {
	messages := make([]anthropic.MessageParam, 0, len(req.History)+1)
	for _, m := range req.History {
		if m.Role == capability.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
			continue
		}
		messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
	}
	messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserMessage)))

	maxTokens := int64(req.TokenBudget)
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(req.Temperature),
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}

	text, err := c.send(ctx, params)
	if err != nil {
		return "", fmt.Errorf("failed to generate reply after %d attempts: %w", c.maxRetries+1, err)
	}
	return text, nil
}

// GenerateStructured asks for a single JSON object and returns it unparsed.
// Claude has no JSON mode, so any prose around the object is cut away.
func (c *AnthropicClient) GenerateStructured(ctx context.Context, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       c.model,
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
		MaxTokens:   structuredMaxTokens,
		Temperature: anthropic.Float(0.1),
		System:      []anthropic.TextBlockParam{{Text: "Return ONLY a JSON object. No additional text."}},
	}

	text, err := c.send(ctx, params)
	if err != nil {
		return "", fmt.Errorf("failed to generate structured output after %d attempts: %w", c.maxRetries+1, err)
	}
	return ExtractJSONObject(text), nil
}

func (c *AnthropicClient) send(ctx context.Context, params anthropic.MessageNewParams) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := sleepBackoff(ctx, c.retryDelay, attempt); err != nil {
			return "", err
		}

		resp, err := c.client.Messages.New(ctx, params)
		if err != nil {
			lastErr = fmt.Errorf("attempt %d: %w", attempt+1, err)
			continue
		}

		var sb strings.Builder
		for _, block := range resp.Content {
			if block.Type == "text" {
				sb.WriteString(block.AsText().Text)
			}
		}
		if sb.Len() == 0 {
			lastErr = fmt.Errorf("attempt %d: no text content returned", attempt+1)
			continue
		}
		return strings.TrimSpace(sb.String()), nil
	}

	return "", lastErr
}

// ExtractJSONObject returns the outermost {...} span of s, or s unchanged.
func ExtractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}
