// ABOUTME: Dialogue modes and content types as closed enums
// ABOUTME: Every decision point switches over these exhaustively instead of comparing strings
package models

import (
	"fmt"
	"strings"
)

// DialogueMode is the conversational stance for a turn.
type DialogueMode int

const (
	// ModeChat is the default, initial mode.
	ModeChat DialogueMode = iota
	ModeStory
	ModeGame
	ModeCoaching
	ModeBedtime
	ModeRepair
	ModeTeaching
	ModeComfort
	ModeCalm
)

// AllModes lists every dialogue mode in declaration order.
var AllModes = []DialogueMode{
	ModeChat, ModeStory, ModeGame, ModeCoaching, ModeBedtime,
	ModeRepair, ModeTeaching, ModeComfort, ModeCalm,
}

func (m DialogueMode) String() string {
	switch m {
	case ModeChat:
		return "chat"
	case ModeStory:
		return "story"
	case ModeGame:
		return "game"
	case ModeCoaching:
		return "coaching"
	case ModeBedtime:
		return "bedtime"
	case ModeRepair:
		return "repair"
	case ModeTeaching:
		return "teaching"
	case ModeComfort:
		return "comfort"
	case ModeCalm:
		return "calm"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseDialogueMode converts a mode name back into a DialogueMode.
func ParseDialogueMode(s string) (DialogueMode, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, m := range AllModes {
		if m.String() == name {
			return m, nil
		}
	}
	return ModeChat, fmt.Errorf("unknown dialogue mode %q", s)
}

// MarshalText implements encoding.TextMarshaler so modes serialize by name.
func (m DialogueMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *DialogueMode) UnmarshalText(b []byte) error {
	parsed, err := ParseDialogueMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ContentType tags what kind of reply a turn produced.
type ContentType int

const (
	ContentConversation ContentType = iota
	ContentStory
	ContentSong
	ContentJoke
	ContentFact
	ContentGame
	ContentRepair
	ContentBreak
	ContentThrottle
	ContentListening
	ContentSafetyRedirect
	ContentFallback
)

var allContentTypes = []ContentType{
	ContentConversation, ContentStory, ContentSong, ContentJoke, ContentFact,
	ContentGame, ContentRepair, ContentBreak, ContentThrottle, ContentListening,
	ContentSafetyRedirect, ContentFallback,
}

func (c ContentType) String() string {
	switch c {
	case ContentConversation:
		return "conversation"
	case ContentStory:
		return "story"
	case ContentSong:
		return "song"
	case ContentJoke:
		return "joke"
	case ContentFact:
		return "fact"
	case ContentGame:
		return "game"
	case ContentRepair:
		return "repair"
	case ContentBreak:
		return "break_suggestion"
	case ContentThrottle:
		return "throttle"
	case ContentListening:
		return "listening"
	case ContentSafetyRedirect:
		return "safety_redirect"
	case ContentFallback:
		return "fallback"
	default:
		return fmt.Sprintf("content(%d)", int(c))
	}
}

// ParseContentType converts a content type name back into a ContentType.
func ParseContentType(s string) (ContentType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, c := range allContentTypes {
		if c.String() == name {
			return c, nil
		}
	}
	return ContentConversation, fmt.Errorf("unknown content type %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (c ContentType) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *ContentType) UnmarshalText(b []byte) error {
	parsed, err := ParseContentType(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// IsMedia reports whether the content type is a library-backed piece of media.
func (c ContentType) IsMedia() bool {
	switch c {
	case ContentStory, ContentSong, ContentJoke, ContentFact:
		return true
	case ContentConversation, ContentGame, ContentRepair, ContentBreak, ContentThrottle,
		ContentListening, ContentSafetyRedirect, ContentFallback:
		return false
	default:
		return false
	}
}
