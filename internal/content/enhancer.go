// ABOUTME: Detects whether a generated reply is a story, song, joke or fact
// ABOUTME: Media replies get a matching library item attached; empty replies borrow its body
package content

import (
	"context"
	"strings"

	"github.com/harper/companion-engine/internal/capability"
	"github.com/harper/companion-engine/internal/models"
)

type marker struct {
	contentType models.ContentType
	phrases     []string
}

// Checked in order; the first hit wins.
var markers = []marker{
	{models.ContentStory, []string{"once upon a time", "the end.", "happily ever after", "let me tell you a story"}},
	{models.ContentSong, []string{"♪", "♫", "la la la", "let's sing", "sing along", "here's a song"}},
	{models.ContentJoke, []string{"knock knock", "knock, knock", "why did the", "what do you call", "here's a joke", "what did the"}},
	{models.ContentFact, []string{"did you know", "fun fact", "here's a fact"}},
}

// Detect classifies a reply.
func Detect(reply string) models.ContentType {
	lower := strings.ToLower(reply)
	for _, m := range markers {
		for _, p := range m.phrases {
			if strings.Contains(lower, p) {
				return m.contentType
			}
		}
	}
	return models.ContentConversation
}

// Enhancer pairs detection with the content library.
type Enhancer struct {
	library capability.ContentLibrary
}

// NewEnhancer wraps a library. A nil library only detects.
func NewEnhancer(library capability.ContentLibrary) *Enhancer {
	return &Enhancer{library: library}
}

// Enhance detects the reply's content type. When the mode asked for media
// and the reply came back empty, the library item's body is used instead.
func (e *Enhancer) Enhance(ctx context.Context, reply string, mode models.DialogueMode, profile *models.UserProfile) (models.EnhancedReply, error) {
	reply = strings.TrimSpace(reply)
	out := models.EnhancedReply{Text: reply, ContentType: Detect(reply)}

	if reply == "" && (mode == models.ModeStory || mode == models.ModeBedtime) {
		out.ContentType = models.ContentStory
	}
	if !out.ContentType.IsMedia() || e.library == nil {
		return out, nil
	}

	item, err := e.library.Lookup(ctx, out.ContentType, profile)
	if err != nil {
		return out, err
	}
	out.Content = item
	if out.Text == "" && item != nil {
		out.Text = item.Body
	}
	return out, nil
}
