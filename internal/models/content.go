// ABOUTME: Library content, enhanced replies and safety verdicts exchanged with collaborators
// ABOUTME: Kept separate from the turn pipeline so adapters depend only on models
package models

// LibraryContent is a curated piece of media from the content library.
type LibraryContent struct {
	ID     string      `json:"id" yaml:"id"`
	Type   ContentType `json:"type" yaml:"type"`
	Title  string      `json:"title" yaml:"title"`
	Body   string      `json:"body" yaml:"body"`
	MinAge int         `json:"min_age" yaml:"min_age"`
	MaxAge int         `json:"max_age" yaml:"max_age"`
	Tags   []string    `json:"tags,omitempty" yaml:"tags"`
}

// EnhancedReply is the output of content detection on a generated reply.
type EnhancedReply struct {
	Text        string          `json:"text"`
	ContentType ContentType     `json:"content_type"`
	Content     *LibraryContent `json:"content,omitempty"`
}

// SafetyVerdict is the result of a safety classification.
type SafetyVerdict struct {
	Safe   bool   `json:"safe"`
	Reason string `json:"reason,omitempty"`
}
