package entities

import (
	"errors"
	"strings"
	"time"
)

// MessageRole represents the role of a turn's author
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// Turn is one message within a conversation
type Turn struct {
	Role      MessageRole `json:"role"`
	Text      string      `json:"text"`
	Emotion   string      `json:"emotion,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// ConversationContext is the accumulated state of one dialogue. It lives from
// the first successful turn until a story is produced or its session ends.
type ConversationContext struct {
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	SessionID      string    `json:"session_id"`
	Turns          []Turn    `json:"turns"`
	ReadyForStory  bool      `json:"ready_for_story"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewConversationContext creates an empty context owned by a session
func NewConversationContext(conversationID, sessionID, userID string) *ConversationContext {
	now := time.Now()
	return &ConversationContext{
		ConversationID: conversationID,
		UserID:         userID,
		SessionID:      sessionID,
		Turns:          make([]Turn, 0),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// AddTurn appends a turn and bumps UpdatedAt
func (c *ConversationContext) AddTurn(turn Turn) {
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}
	c.Turns = append(c.Turns, turn)
	c.UpdatedAt = time.Now()
}

// Clone returns a deep copy safe to hand out of a store
func (c *ConversationContext) Clone() ConversationContext {
	cp := *c
	cp.Turns = make([]Turn, len(c.Turns))
	copy(cp.Turns, c.Turns)
	return cp
}

// Transcript renders the turns as "role: text" lines
func (c ConversationContext) Transcript() string {
	var b strings.Builder
	for i, t := range c.Turns {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(string(t.Role))
		b.WriteString(": ")
		b.WriteString(t.Text)
	}
	return b.String()
}

// UserTurnCount counts turns authored by the user
func (c ConversationContext) UserTurnCount() int {
	n := 0
	for _, t := range c.Turns {
		if t.Role == MessageRoleUser {
			n++
		}
	}
	return n
}

// Validate validates the context identity fields
func (c *ConversationContext) Validate() error {
	if c.ConversationID == "" {
		return errors.New("conversation_id is required")
	}
	if c.SessionID == "" {
		return errors.New("session_id is required")
	}
	for _, t := range c.Turns {
		if t.Role != MessageRoleUser && t.Role != MessageRoleAssistant {
			return errors.New("invalid turn role")
		}
	}
	return nil
}

// UserPreferences are optional hints that steer dialogue and story generation
type UserPreferences struct {
	Language        string   `json:"language,omitempty"`
	PreferredGenres []string `json:"preferred_genres,omitempty"`
}

// Emotion is the result of analysing a transcript
type Emotion struct {
	Primary    string   `json:"primary"`
	Confidence float64  `json:"confidence"`
	Intensity  float64  `json:"intensity"`
	Keywords   []string `json:"keywords,omitempty"`
}

// Story is a generated short story
type Story struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	Genre        string    `json:"genre"`
	Emotion      string    `json:"emotion"`
	EmotionalArc string    `json:"emotional_arc"`
	CreatedAt    time.Time `json:"created_at"`
}
