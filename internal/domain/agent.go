package domain

import (
	"context"
	"encoding/json"
	"fmt"
)

// ToolChoice tells the agent whether it may, must, or must not call tools.
type ToolChoice string

const (
	ToolChoiceAuto     ToolChoice = "auto"
	ToolChoiceNone     ToolChoice = "none"
	ToolChoiceRequired ToolChoice = "required"
)

// ParseToolChoice validates a tool choice string. Empty means auto.
func ParseToolChoice(s string) (ToolChoice, error) {
	switch tc := ToolChoice(s); tc {
	case "":
		return ToolChoiceAuto, nil
	case ToolChoiceAuto, ToolChoiceNone, ToolChoiceRequired:
		return tc, nil
	}
	return "", fmt.Errorf("unknown tool choice %q", s)
}

// AgentBackend is the remote agent. Both modes accept the same request and
// are folded into the same InvokeResponse by the caller.
type AgentBackend interface {
	Invoke(ctx context.Context, req InvokeRequest) (*InvokeResponse, error)
	Stream(ctx context.Context, req InvokeRequest) (FrameStream, error)
}

// FrameStream yields decoded stream frames until io.EOF.
type FrameStream interface {
	Next() (Frame, error)
	Close() error
}

// WireMessage is the {role, content} pair sent to the agent.
type WireMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type InvokeRequest struct {
	Messages       []WireMessage `json:"messages"`
	ToolChoice     ToolChoice    `json:"toolChoice"`
	MaxSteps       int           `json:"maxSteps"`
	ConversationID string        `json:"conversationId,omitempty"`
	Model          string        `json:"model,omitempty"`
}

type InvokeResponse struct {
	Text           string       `json:"text"`
	ToolResults    []ToolResult `json:"toolResults,omitempty"`
	Steps          *int         `json:"steps,omitempty"`
	ConversationID string       `json:"conversationId,omitempty"`
}

type ToolCall struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// ToolResult is the raw JSON a tool returned. Its shape is tool specific.
type ToolResult json.RawMessage

func (r ToolResult) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return []byte(r), nil
}

func (r *ToolResult) UnmarshalJSON(data []byte) error {
	if r == nil {
		return fmt.Errorf("domain: UnmarshalJSON on nil ToolResult")
	}
	*r = append((*r)[0:0], data...)
	return nil
}

// FrameType classifies a stream frame.
type FrameType string

const (
	FrameText       FrameType = "text"
	FrameToolCall   FrameType = "tool-call"
	FrameToolResult FrameType = "tool-result"
	FrameDone       FrameType = "done"
	FrameError      FrameType = "error"
)

// Known reports whether t is one of the frame types above.
func (t FrameType) Known() bool {
	switch t {
	case FrameText, FrameToolCall, FrameToolResult, FrameDone, FrameError:
		return true
	}
	return false
}

// Frame is one decoded `data:` line of the stream endpoint. Only the fields
// relevant to its type are set.
type Frame struct {
	Type FrameType `json:"type,omitempty"`

	// text
	Content string `json:"content,omitempty"`

	// tool-call / tool-result
	Tool   string         `json:"tool,omitempty"`
	Args   map[string]any `json:"args,omitempty"`
	Result ToolResult     `json:"result,omitempty"`

	// done
	Text           string       `json:"text,omitempty"`
	ToolResults    []ToolResult `json:"toolResults,omitempty"`
	Steps          *int         `json:"steps,omitempty"`
	ConversationID string       `json:"conversationId,omitempty"`

	// error
	Error      string `json:"error,omitempty"`
	ErrorType  string `json:"errorType,omitempty"`
	NeedsAuth  bool   `json:"needsAuth,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Kind returns the frame type, inferring it for untyped frames: terminal
// fields mean done, otherwise content means text.
func (f Frame) Kind() FrameType {
	if f.Type != "" {
		return f.Type
	}
	switch {
	case f.Error != "":
		return FrameError
	case f.Text != "" || f.Steps != nil || f.ToolResults != nil:
		return FrameDone
	default:
		return FrameText
	}
}
