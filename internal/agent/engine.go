// Package agent runs chat turns against the invoice agent: it keeps the
// conversation, sends each turn, folds the reply, and hands structured data
// to the update publisher.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"invoicechat/internal/classify"
	"invoicechat/internal/conversation"
	"invoicechat/internal/domain"
	"invoicechat/internal/interpreter"
	"invoicechat/internal/metrics"
)

const (
	defaultMaxSteps    = 5
	defaultTurnTimeout = 120 * time.Second
	emptyReply         = "No response."
)

// Mode selects the agent endpoint used for a turn.
type Mode string

const (
	ModeStream Mode = "stream"
	ModeSync   Mode = "sync"
)

// Publisher receives the structured outcome of a successful turn.
type Publisher interface {
	PublishPayload(ctx context.Context, p *domain.ExtractedPayload) (domain.ViewUpdate, bool)
	PublishResults(ctx context.Context, rs []domain.ToolResult) (domain.ViewUpdate, bool)
}

// TurnResult describes a completed turn.
type TurnResult struct {
	Reply   domain.Message
	Payload *domain.ExtractedPayload
	Update  *domain.ViewUpdate
	Calls   []domain.ToolCall
	Results []domain.ToolResult
}

// turnState is everything owned by the turn in flight. A new one replaces the
// old under the engine mutex when a turn starts.
type turnState struct {
	busy        bool
	startedAt   time.Time
	tracker     *ToolTracker
	acc         *interpreter.Accumulator
	lastPayload *domain.ExtractedPayload
}

// Engine runs one turn at a time over a single conversation.
type Engine struct {
	client      domain.AgentBackend
	interp      *interpreter.Interpreter
	classifier  *classify.Classifier
	publisher   Publisher
	ids         domain.IDGenerator
	metrics     *metrics.Collector
	logger      *slog.Logger
	mode        Mode
	maxSteps    int
	toolChoice  domain.ToolChoice
	model       string
	prompt      string
	turnTimeout time.Duration
	now         func() time.Time
	onFrame     func(domain.Frame)

	mu   sync.Mutex
	conv conversation.Conversation
	turn *turnState
}

// EngineConfig holds the engine's collaborators and turn settings.
type EngineConfig struct {
	Client       domain.AgentBackend
	Interpreter  *interpreter.Interpreter
	Classifier   *classify.Classifier
	Publisher    Publisher // optional
	IDs          domain.IDGenerator
	Metrics      *metrics.Collector
	Logger       *slog.Logger
	Mode         Mode
	MaxSteps     int
	ToolChoice   domain.ToolChoice
	Model        string
	SystemPrompt string
	TurnTimeout  time.Duration
	Now          func() time.Time
	OnFrame      func(domain.Frame) // optional; called for every streamed frame
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Interpreter == nil {
		cfg.Interpreter = interpreter.New(interpreter.Config{Logger: cfg.Logger})
	}
	if cfg.Classifier == nil {
		cfg.Classifier = classify.New(classify.Config{Logger: cfg.Logger})
	}
	if cfg.IDs == nil {
		cfg.IDs = conversation.UUIDGenerator{}
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeStream
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = defaultMaxSteps
	}
	if cfg.ToolChoice == "" {
		cfg.ToolChoice = domain.ToolChoiceAuto
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = defaultTurnTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	e := &Engine{
		client:      cfg.Client,
		interp:      cfg.Interpreter,
		classifier:  cfg.Classifier,
		publisher:   cfg.Publisher,
		ids:         cfg.IDs,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		mode:        cfg.Mode,
		maxSteps:    cfg.MaxSteps,
		toolChoice:  cfg.ToolChoice,
		model:       cfg.Model,
		prompt:      cfg.SystemPrompt,
		turnTimeout: cfg.TurnTimeout,
		now:         cfg.Now,
		onFrame:     cfg.OnFrame,
		turn:        &turnState{tracker: NewToolTracker()},
	}
	e.conv = conversation.New(e.ids.NewID(), e.prompt, e.now())
	return e
}

// Send runs one turn. Blank input, or a call while a turn is in flight, is
// ignored and returns (nil, nil). The turn stays in flight until its view
// update has been published. A failed turn returns the classified
// *domain.ErrorEnvelope and also leaves an error message in the conversation.
func (e *Engine) Send(ctx context.Context, input string) (*TurnResult, error) {
	input = strings.TrimSpace(input)

	e.mu.Lock()
	if input == "" || e.turn.busy {
		e.mu.Unlock()
		return nil, nil
	}
	at := e.timestampLocked()
	conv, err := e.conv.Append(domain.Message{Role: domain.RoleUser, Content: input, Timestamp: at})
	if err != nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("append user message: %w", err)
	}
	e.conv = conv
	st := &turnState{
		busy:      true,
		startedAt: at,
		tracker:   NewToolTracker(),
		acc:       &interpreter.Accumulator{},
	}
	e.turn = st
	defer e.endTurn(st)
	req := domain.InvokeRequest{
		Messages:       conv.Outbound(),
		ToolChoice:     e.toolChoice,
		MaxSteps:       e.maxSteps,
		ConversationID: conv.ID(),
		Model:          e.model,
	}
	e.mu.Unlock()

	e.logger.Info("turn started",
		"conversation", req.ConversationID,
		"mode", e.mode,
		"history", len(req.Messages),
	)
	finish := e.metrics.TurnStarted(string(e.mode))

	turnCtx, cancel := context.WithTimeout(ctx, e.turnTimeout)
	defer cancel()

	resp, err := e.invoke(turnCtx, st, req)
	if err != nil {
		finish("error")
		return nil, e.fail(st, err)
	}
	finish("ok")
	return e.complete(ctx, st, resp), nil
}

func (e *Engine) invoke(ctx context.Context, st *turnState, req domain.InvokeRequest) (*domain.InvokeResponse, error) {
	if e.mode == ModeSync {
		resp, err := e.client.Invoke(ctx, req)
		if err != nil {
			return nil, withDeadline(ctx, err)
		}
		st.tracker.ReplaceResults(resp.ToolResults)
		return resp, nil
	}

	stream, err := e.client.Stream(ctx, req)
	if err != nil {
		return nil, withDeadline(ctx, err)
	}
	defer stream.Close()

	frames := 0
	for {
		f, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, withDeadline(ctx, err)
		}
		frames++

		kind, err := st.acc.Add(f)
		e.metrics.Frame(frameLabel(kind))
		if e.onFrame != nil {
			e.onFrame(f)
		}
		if err != nil {
			return nil, err
		}
		switch kind {
		case domain.FrameToolCall:
			st.tracker.RecordCall(domain.ToolCall{Tool: f.Tool, Args: f.Args})
		case domain.FrameToolResult:
			st.tracker.RecordResult(f.Result)
		}
	}

	if frames == 0 {
		return nil, fmt.Errorf("agent stream closed without frames: %w", io.ErrUnexpectedEOF)
	}
	if !st.acc.Done() {
		e.logger.Warn("agent stream ended without a summary frame", "frames", frames)
	}
	resp := st.acc.Response()
	st.tracker.ReplaceResults(resp.ToolResults)
	return &resp, nil
}

// endTurn marks st as settled.
func (e *Engine) endTurn(st *turnState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st.busy = false
}

// frameLabel bounds the frame metric to the known frame types.
func frameLabel(k domain.FrameType) string {
	if k.Known() {
		return string(k)
	}
	return "other"
}

// withDeadline reports an expired or cancelled turn as such, whatever error
// the transport surfaced for it.
func withDeadline(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		return fmt.Errorf("%w: %v", ctxErr, err)
	}
	return err
}

func (e *Engine) fail(st *turnState, err error) error {
	env := e.classifier.Classify(err)
	e.metrics.Error(string(env.Kind))
	e.logger.Warn("turn failed", "kind", env.Kind, "error", err)

	content := env.Message
	if env.Suggestion != "" {
		content += "\n\n" + env.Suggestion
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.appendLocked(domain.Message{
		Role:      domain.RoleAssistant,
		Content:   content,
		Timestamp: e.timestampLocked(),
		IsError:   true,
	})
	return env
}

func (e *Engine) complete(ctx context.Context, st *turnState, resp *domain.InvokeResponse) *TurnResult {
	res := e.interp.Interpret(resp.Text)
	switch {
	case res.Payload != nil:
		e.metrics.Payload("extracted")
	case res.Found:
		e.metrics.Payload("invalid")
	default:
		e.metrics.Payload("none")
	}

	text := res.Text
	if text == "" {
		text = emptyReply
	}

	e.mu.Lock()
	convID := resp.ConversationID
	if convID == "" {
		convID = e.conv.ID()
	}
	calls, results := st.tracker.Calls(), st.tracker.Results()
	for _, c := range calls {
		e.appendLocked(domain.Message{Role: domain.RoleTool, Content: describeCall(c), Timestamp: e.timestampLocked()})
	}
	for _, r := range results {
		e.appendLocked(domain.Message{Role: domain.RoleToolResult, Content: string(r), Timestamp: e.timestampLocked()})
	}
	meta := st.tracker.Summarize(resp.Steps, convID)
	reply := domain.Message{
		Role:      domain.RoleAssistant,
		Content:   text,
		Timestamp: e.timestampLocked(),
		Metadata:  &meta,
	}
	e.appendLocked(reply)
	st.lastPayload = res.Payload
	e.mu.Unlock()

	e.logger.Info("turn completed",
		"conversation", convID,
		"steps", meta.StepCount,
		"tool_results", meta.ToolResultCount,
		"payload", res.Payload != nil,
		"duration", e.now().Sub(st.startedAt),
	)

	out := &TurnResult{Reply: reply, Payload: res.Payload, Calls: calls, Results: results}
	if e.publisher == nil {
		return out
	}
	var (
		u  domain.ViewUpdate
		ok bool
	)
	if res.Payload != nil {
		u, ok = e.publisher.PublishPayload(ctx, res.Payload)
	}
	if !ok && len(results) > 0 {
		u, ok = e.publisher.PublishResults(ctx, results)
	}
	if ok {
		out.Update = &u
	}
	return out
}

// appendLocked appends m to the conversation. Append only fails for a
// system role or a stale timestamp, neither of which the engine produces.
func (e *Engine) appendLocked(m domain.Message) {
	conv, err := e.conv.Append(m)
	if err != nil {
		e.logger.Error("dropping message", "role", m.Role, "error", err)
		return
	}
	e.conv = conv
}

// timestampLocked returns now, clamped so it never precedes the last message.
func (e *Engine) timestampLocked() time.Time {
	now := e.now()
	if last, ok := e.conv.Last(); ok && now.Before(last.Timestamp) {
		return last.Timestamp
	}
	return now
}

func describeCall(c domain.ToolCall) string {
	if len(c.Args) == 0 {
		return c.Tool
	}
	args, err := json.Marshal(c.Args)
	if err != nil {
		return c.Tool
	}
	return c.Tool + " " + string(args)
}

// Conversation returns a snapshot of the conversation.
func (e *Engine) Conversation() conversation.Conversation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conv
}

// Visible returns the messages a user sees.
func (e *Engine) Visible() []domain.Message {
	return e.Conversation().Visible()
}

// Busy reports whether a turn is in flight.
func (e *Engine) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.turn.busy
}

// LastPayload returns the payload extracted by the most recent successful
// turn, or nil.
func (e *Engine) LastPayload() *domain.ExtractedPayload {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.turn.lastPayload
}

// Reset starts a new conversation with a fresh id. It is ignored while a
// turn is in flight and reports whether it took effect.
func (e *Engine) Reset() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.turn.busy {
		return false
	}
	e.conv = conversation.New(e.ids.NewID(), e.prompt, e.now())
	e.turn = &turnState{tracker: NewToolTracker()}
	e.logger.Info("conversation reset", "conversation", e.conv.ID())
	return true
}
