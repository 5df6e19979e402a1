package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a message. Roles are lowercase inside the
// service; the GraphQL layer converts to and from the uppercase enum.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// GreetingID is the id of the canonical greeting message a cleared
// conversation is reset to.
const GreetingID = "1"

// GreetingText is the content of the canonical greeting message.
const GreetingText = "Hi! I'm your AI coding assistant. How can I help you today?"

// ParseRole accepts a role in any casing ("USER", "user", "Assistant").
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleUser:
		return RoleUser, nil
	case RoleAssistant:
		return RoleAssistant, nil
	default:
		return "", fmt.Errorf("unknown message role %q", s)
	}
}

// Enum returns the uppercase GraphQL spelling of the role.
func (r Role) Enum() string {
	return strings.ToUpper(string(r))
}

// Message represents a single chat message
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage creates a message with a fresh id stamped at now.
func NewMessage(role Role, content string, now time.Time) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: now.UTC(),
	}
}

// Greeting returns the canonical greeting message.
func Greeting(now time.Time) Message {
	return Message{
		ID:        GreetingID,
		Role:      RoleAssistant,
		Content:   GreetingText,
		Timestamp: now.UTC(),
	}
}

// Conversation is an append-only, ordered message sequence.
type Conversation struct {
	ID       string    `json:"id"`
	Messages []Message `json:"messages"`
}

// Append adds messages to the end of the conversation.
func (c *Conversation) Append(msgs ...Message) {
	c.Messages = append(c.Messages, msgs...)
}

// Clear resets the conversation to the single greeting message.
func (c *Conversation) Clear(now time.Time) {
	c.Messages = []Message{Greeting(now)}
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	return len(c.Messages)
}

// WithTurn returns a copy of history with the user message appended. The
// input slice is never modified.
func WithTurn(history []Message, user Message) []Message {
	out := make([]Message, 0, len(history)+1)
	out = append(out, history...)
	return append(out, user)
}
