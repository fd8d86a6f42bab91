package agent

import "invoicechat/internal/domain"

// ToolTracker records the tool activity of a single turn, in order. Each turn
// gets a fresh tracker.
type ToolTracker struct {
	calls   []domain.ToolCall
	results []domain.ToolResult
}

func NewToolTracker() *ToolTracker { return &ToolTracker{} }

func (t *ToolTracker) RecordCall(c domain.ToolCall) { t.calls = append(t.calls, c) }

func (t *ToolTracker) RecordResult(r domain.ToolResult) { t.results = append(t.results, r) }

// ReplaceResults sets the results wholesale, as reported by a terminal
// summary.
func (t *ToolTracker) ReplaceResults(rs []domain.ToolResult) {
	t.results = append([]domain.ToolResult(nil), rs...)
}

func (t *ToolTracker) Calls() []domain.ToolCall {
	return append([]domain.ToolCall(nil), t.calls...)
}

func (t *ToolTracker) Results() []domain.ToolResult {
	return append([]domain.ToolResult(nil), t.results...)
}

// Summarize builds the metadata for the turn's assistant message. Without a
// reported step count the turn counts as one step.
func (t *ToolTracker) Summarize(steps *int, conversationID string) domain.Metadata {
	n := 1
	if steps != nil {
		n = *steps
	}
	return domain.Metadata{
		StepCount:       n,
		ToolResultCount: len(t.results),
		ConversationID:  conversationID,
	}
}
