package interpreter

import (
	"strings"

	"invoicechat/internal/domain"
)

// Accumulator folds stream frames into the same shape as a synchronous
// response. Text fragments are concatenated; tool frames are kept apart from
// the prose. A terminal frame replaces what was accumulated when it carries
// the corresponding field, so replayed or duplicated fragments are harmless
// once the summary arrives.
type Accumulator struct {
	text    strings.Builder
	results []domain.ToolResult
	steps   *int
	convID  string
	done    bool

	summaryText    string
	summaryHasText bool
	summaryResults []domain.ToolResult
}

// Add consumes one frame and reports its kind. An error frame is returned as
// a *domain.BackendError.
func (a *Accumulator) Add(f domain.Frame) (domain.FrameType, error) {
	kind := f.Kind()
	switch kind {
	case domain.FrameText:
		a.text.WriteString(f.Content)
	case domain.FrameToolCall:
		// Calls are the caller's to track; only the kind is reported.
	case domain.FrameToolResult:
		a.results = append(a.results, f.Result)
	case domain.FrameDone:
		a.done = true
		if f.Text != "" {
			a.summaryText = f.Text
			a.summaryHasText = true
		}
		if f.ToolResults != nil {
			a.summaryResults = f.ToolResults
		}
		if f.Steps != nil {
			steps := *f.Steps
			a.steps = &steps
		}
		if f.ConversationID != "" {
			a.convID = f.ConversationID
		}
	case domain.FrameError:
		return kind, &domain.BackendError{Body: &domain.ErrorBody{
			Error:      f.Error,
			ErrorType:  f.ErrorType,
			NeedsAuth:  f.NeedsAuth,
			Suggestion: f.Suggestion,
		}}
	}
	return kind, nil
}

// Done reports whether a terminal frame was seen.
func (a *Accumulator) Done() bool { return a.done }

// Response returns the folded result.
func (a *Accumulator) Response() domain.InvokeResponse {
	resp := domain.InvokeResponse{
		Text:           a.text.String(),
		ToolResults:    append([]domain.ToolResult(nil), a.results...),
		ConversationID: a.convID,
	}
	if a.summaryHasText {
		resp.Text = a.summaryText
	}
	if a.summaryResults != nil {
		resp.ToolResults = append([]domain.ToolResult(nil), a.summaryResults...)
	}
	if a.steps != nil {
		steps := *a.steps
		resp.Steps = &steps
	}
	return resp
}
