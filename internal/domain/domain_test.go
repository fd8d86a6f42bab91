package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

type roleNames struct{}

func (roleNames) System() string     { return "system" }
func (roleNames) User() string       { return "user" }
func (roleNames) Assistant() string  { return "assistant" }
func (roleNames) Tool() string       { return "tool" }
func (roleNames) ToolResult() string { return "tool-result" }

func TestDispatchRole_EveryRole(t *testing.T) {
	for _, r := range []Role{RoleSystem, RoleUser, RoleAssistant, RoleTool, RoleToolResult} {
		if got := DispatchRole[string](r, roleNames{}); got != string(r) {
			t.Errorf("DispatchRole(%q) = %q", r, got)
		}
	}
}

func TestDispatchRole_UnknownPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for unknown role")
		}
	}()
	DispatchRole[string](Role("narrator"), roleNames{})
}

func TestRole_UnmarshalRejectsUnknown(t *testing.T) {
	var m Message
	if err := json.Unmarshal([]byte(`{"role":"tool-result","content":"x"}`), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m.Role != RoleToolResult {
		t.Errorf("role = %q", m.Role)
	}
	if err := json.Unmarshal([]byte(`{"role":"bot","content":"x"}`), &m); err == nil {
		t.Error("expected error for unknown role")
	}
}

func TestParseToolChoice(t *testing.T) {
	tests := []struct {
		in      string
		want    ToolChoice
		wantErr bool
	}{
		{"", ToolChoiceAuto, false},
		{"auto", ToolChoiceAuto, false},
		{"none", ToolChoiceNone, false},
		{"required", ToolChoiceRequired, false},
		{"always", "", true},
	}
	for _, tt := range tests {
		got, err := ParseToolChoice(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseToolChoice(%q) err = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseToolChoice(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRecord_String(t *testing.T) {
	r := Record{
		"Id":        json.Number("42"),
		"DocNumber": "",
		"Balance":   nil,
		"Paid":      true,
	}
	if s, ok := r.String("Id"); !ok || s != "42" {
		t.Errorf("Id = %q, %v", s, ok)
	}
	if s, ok := r.String("DocNumber"); !ok || s != "" {
		t.Errorf("empty DocNumber should be present: %q, %v", s, ok)
	}
	if _, ok := r.String("Balance"); ok {
		t.Error("null Balance should be absent")
	}
	if s, _ := r.String("Paid"); s != "true" {
		t.Errorf("Paid = %q", s)
	}
	if r.ID() != "42" || !r.HasDocNumber() {
		t.Errorf("ID = %q, HasDocNumber = %v", r.ID(), r.HasDocNumber())
	}
}

func TestRecord_Merge(t *testing.T) {
	base := Record{"Id": "1", "DocNumber": "INV-1", "Balance": "10"}
	merged := base.Merge(Record{"Balance": "0", "Status": "Paid"})

	if merged["Balance"] != "0" || merged["Status"] != "Paid" || merged["DocNumber"] != "INV-1" {
		t.Errorf("merged = %v", merged)
	}
	if base["Balance"] != "10" {
		t.Error("Merge modified the receiver")
	}
}

func TestFrame_Kind(t *testing.T) {
	steps := 2
	tests := []struct {
		name  string
		frame Frame
		want  FrameType
	}{
		{"explicit", Frame{Type: FrameToolCall}, FrameToolCall},
		{"error field", Frame{Error: "bad"}, FrameError},
		{"final text", Frame{Text: "done"}, FrameDone},
		{"steps only", Frame{Steps: &steps}, FrameDone},
		{"content", Frame{Content: "par"}, FrameText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.frame.Kind(); got != tt.want {
				t.Errorf("Kind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFrameType_Known(t *testing.T) {
	for _, k := range []FrameType{FrameText, FrameToolCall, FrameToolResult, FrameDone, FrameError} {
		if !k.Known() {
			t.Errorf("%q should be known", k)
		}
	}
	if FrameType("reasoning-delta").Known() {
		t.Error("backend-defined type should not be known")
	}
}

func TestToolResult_RoundTripsRawJSON(t *testing.T) {
	var resp InvokeResponse
	if err := json.Unmarshal([]byte(`{"text":"ok","toolResults":[{"a":1},"deleted"]}`), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.ToolResults) != 2 || string(resp.ToolResults[1]) != `"deleted"` {
		t.Errorf("toolResults = %q", resp.ToolResults)
	}
	data, err := json.Marshal(Frame{Type: FrameToolResult})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(data), `"result":`) {
		t.Errorf("empty result should be omitted: %s", data)
	}
}

func TestBackendError_Message(t *testing.T) {
	tests := []struct {
		err  *BackendError
		want string
	}{
		{&BackendError{Status: 401, Body: &ErrorBody{Error: "expired"}}, "agent backend 401: expired"},
		{&BackendError{Body: &ErrorBody{Error: "stream broke"}}, "agent backend: stream broke"},
		{&BackendError{Status: 500, Raw: "oops"}, "agent backend 500: oops"},
		{&BackendError{Status: 502}, "agent backend returned status 502"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}

	var env error = &ErrorEnvelope{Kind: ErrorAuth, Message: "no"}
	var target *ErrorEnvelope
	if !errors.As(env, &target) || target.Error() != "auth error: no" {
		t.Errorf("envelope = %v", target)
	}
}
