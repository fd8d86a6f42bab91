package domain

import (
	"fmt"
	"time"
)

// Role identifies who produced a message. The set is closed: every value is
// one of the constants below and ParseRole rejects anything else.
type Role string

const (
	RoleSystem     Role = "system"
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleTool       Role = "tool"
	RoleToolResult Role = "tool-result"
)

// ParseRole converts a wire string into a Role.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool, RoleToolResult:
		return r, nil
	}
	return "", fmt.Errorf("unknown message role %q", s)
}

func (r Role) String() string { return string(r) }

// UnmarshalText rejects roles outside the closed set.
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// RoleHandler has one method per role. Adding a role adds a method here, so
// every implementation stops compiling until it handles the new case.
type RoleHandler[T any] interface {
	System() T
	User() T
	Assistant() T
	Tool() T
	ToolResult() T
}

// DispatchRole calls the handler method matching r.
func DispatchRole[T any](r Role, h RoleHandler[T]) T {
	switch r {
	case RoleSystem:
		return h.System()
	case RoleUser:
		return h.User()
	case RoleAssistant:
		return h.Assistant()
	case RoleTool:
		return h.Tool()
	case RoleToolResult:
		return h.ToolResult()
	}
	panic(fmt.Sprintf("domain: unhandled role %q", string(r)))
}

// Metadata summarises the tool activity behind an assistant message.
type Metadata struct {
	StepCount       int    `json:"stepCount"`
	ToolResultCount int    `json:"toolResultCount"`
	ConversationID  string `json:"conversationId"`
}

// Message is one entry of a conversation. Messages are values and are never
// changed after they have been appended.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Metadata  *Metadata `json:"metadata,omitempty"`
	IsError   bool      `json:"isError,omitempty"`
}

// IDGenerator produces conversation identifiers.
type IDGenerator interface {
	NewID() string
}
