// Package conversation holds the ordered, append-only message model.
package conversation

import (
	"errors"
	"time"

	"invoicechat/internal/domain"
)

var (
	// ErrSystemMessage is returned when a second system message is appended.
	ErrSystemMessage = errors.New("conversation: system message must be first and unique")
	// ErrOutOfOrder is returned when a message is older than the last one.
	ErrOutOfOrder = errors.New("conversation: message timestamp precedes last message")
)

// Conversation is an immutable value. Append returns a new Conversation and
// leaves the receiver untouched, so snapshots can be shared freely.
type Conversation struct {
	id       string
	messages []domain.Message
}

// New starts a conversation whose first message is the system prompt.
func New(id, systemPrompt string, at time.Time) Conversation {
	return Conversation{
		id: id,
		messages: []domain.Message{{
			Role:      domain.RoleSystem,
			Content:   systemPrompt,
			Timestamp: at,
		}},
	}
}

func (c Conversation) ID() string { return c.id }

func (c Conversation) Len() int { return len(c.messages) }

// Append returns a copy of c with m appended.
func (c Conversation) Append(m domain.Message) (Conversation, error) {
	if m.Role == domain.RoleSystem {
		return c, ErrSystemMessage
	}
	if _, err := domain.ParseRole(string(m.Role)); err != nil {
		return c, err
	}
	if n := len(c.messages); n > 0 && m.Timestamp.Before(c.messages[n-1].Timestamp) {
		return c, ErrOutOfOrder
	}
	// Full slice expression forces a copy so earlier snapshots never share
	// the new element's slot.
	next := append(c.messages[:len(c.messages):len(c.messages)], m)
	return Conversation{id: c.id, messages: next}, nil
}

// Messages returns all messages including the system message.
func (c Conversation) Messages() []domain.Message {
	out := make([]domain.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Visible returns the messages a user sees: everything but the system prompt.
func (c Conversation) Visible() []domain.Message {
	if len(c.messages) <= 1 {
		return nil
	}
	out := make([]domain.Message, len(c.messages)-1)
	copy(out, c.messages[1:])
	return out
}

// Last returns the most recent message.
func (c Conversation) Last() (domain.Message, bool) {
	if len(c.messages) == 0 {
		return domain.Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}

// Outbound converts the transcript into the request history. Error entries
// and tool activity are transcript-only and stay local.
func (c Conversation) Outbound() []domain.WireMessage {
	out := make([]domain.WireMessage, 0, len(c.messages))
	for _, m := range c.messages {
		if m.IsError || m.Role == domain.RoleTool || m.Role == domain.RoleToolResult {
			continue
		}
		out = append(out, domain.WireMessage{Role: m.Role, Content: m.Content})
	}
	return out
}
