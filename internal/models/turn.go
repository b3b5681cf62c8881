// ABOUTME: Turn represents a single exchange between the child and the companion
// ABOUTME: Turns are immutable once appended to a session's interaction log
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Turn represents a single conversation turn
type Turn struct {
	TurnID      string         `json:"turn_id"`
	UserID      string         `json:"user_id"`
	SessionID   string         `json:"session_id"`
	Timestamp   time.Time      `json:"timestamp"`
	UserInput   string         `json:"user_input"`
	AIResponse  string         `json:"ai_response"`
	Emotion     EmotionalState `json:"emotion"`
	Mode        DialogueMode   `json:"mode"`
	ContentType ContentType    `json:"content_type"`
	Achievement string         `json:"achievement,omitempty"`
}

// NewTurn creates a new Turn with validation
func NewTurn(userID, sessionID, userInput, aiResponse string, at time.Time) (*Turn, error) {
	if strings.TrimSpace(userInput) == "" {
		return nil, errors.New("user input cannot be empty")
	}
	if userID == "" {
		return nil, errors.New("user id cannot be empty")
	}
	return &Turn{
		TurnID:     GenerateTurnID(at),
		UserID:     userID,
		SessionID:  sessionID,
		Timestamp:  at.UTC(),
		UserInput:  userInput,
		AIResponse: aiResponse,
		Mode:       ModeChat,
	}, nil
}

// GenerateTurnID generates a unique turn identifier
func GenerateTurnID(at time.Time) string {
	return fmt.Sprintf("turn_%s_%s", at.UTC().Format("20060102_150405"), uuid.New().String()[:8])
}
