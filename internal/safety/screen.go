// ABOUTME: Age-aware keyword screen in front of an optional upstream moderation classifier
// ABOUTME: Local rules decide first; the upstream only sees text the rules let through
package safety

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/harper/companion-engine/internal/capability"
	"github.com/harper/companion-engine/internal/models"
)

// Rule blocks any of its phrases for children at or below MaxAge.
// MaxAge 0 applies to every age.
type Rule struct {
	Category string
	MaxAge   int
	Phrases  []string
}

// DefaultRules is the built-in rule set.
var DefaultRules = []Rule{
	{Category: "self_harm", Phrases: []string{"kill myself", "hurt myself", "want to die", "cut myself"}},
	{Category: "violence", Phrases: []string{"kill", "murder", "gun", "guns", "knife", "stab", "shoot", "bomb", "blood"}},
	{Category: "personal_info", Phrases: []string{"my address", "my phone number", "my password", "where i live", "my school is called"}},
	{Category: "adult", Phrases: []string{"sex", "sexy", "porn", "drugs", "beer", "alcohol", "cigarette", "vape", "drunk"}},
	{Category: "hate", Phrases: []string{"stupid idiot", "i hate you", "shut up loser"}},
	{Category: "scary", MaxAge: 7, Phrases: []string{"horror", "zombie", "dead body", "demon", "nightmare"}},
}

// Screen implements capability.SafetyClassifier.
type Screen struct {
	rules    []Rule
	upstream capability.SafetyClassifier
	logger   *zap.Logger
}

var _ capability.SafetyClassifier = (*Screen)(nil)

// NewScreen builds a screen over DefaultRules. upstream may be nil.
func NewScreen(upstream capability.SafetyClassifier, logger *zap.Logger) *Screen {
	return NewScreenWithRules(DefaultRules, upstream, logger)
}

// NewScreenWithRules builds a screen over custom rules.
func NewScreenWithRules(rules []Rule, upstream capability.SafetyClassifier, logger *zap.Logger) *Screen {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Screen{rules: rules, upstream: upstream, logger: logger}
}

// Check returns unsafe for the first matching local rule, otherwise defers
// to the upstream classifier. Upstream errors are returned so the caller
// can fail closed.
func (s *Screen) Check(ctx context.Context, text string, age int) (models.SafetyVerdict, error) {
	if category, phrase, ok := s.match(text, age); ok {
		s.logger.Info("safety rule matched",
			zap.String("category", category),
			zap.Int("age", age))
		return models.SafetyVerdict{Safe: false, Reason: fmt.Sprintf("%s: %q", category, phrase)}, nil
	}
	if s.upstream == nil {
		return models.SafetyVerdict{Safe: true}, nil
	}
	verdict, err := s.upstream.Check(ctx, text, age)
	if err != nil {
		return models.SafetyVerdict{}, fmt.Errorf("upstream safety check: %w", err)
	}
	return verdict, nil
}

func (s *Screen) match(text string, age int) (string, string, bool) {
	padded := " " + normalize(text) + " "
	for _, rule := range s.rules {
		if rule.MaxAge > 0 && age > rule.MaxAge {
			continue
		}
		for _, phrase := range rule.Phrases {
			if strings.Contains(padded, " "+phrase+" ") {
				return rule.Category, phrase, true
			}
		}
	}
	return "", "", false
}

// normalize lowercases text and collapses everything but letters, digits
// and apostrophes into single spaces.
func normalize(text string) string {
	var sb strings.Builder
	space := true
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' {
			sb.WriteRune(r)
			space = false
			continue
		}
		if !space {
			sb.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(sb.String())
}

// Redirect is the canned reply for an unsafe utterance.
func Redirect(age int) string {
	if age <= 6 {
		return "Hmm, let's talk about something else! Do you want to hear a story or play a game?"
	}
	return "That's not something I can talk about. Maybe ask a grown-up you trust about it. Want to do something fun instead, like a riddle or a story?"
}
