package channel

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"invoicechat/internal/agent"
	"invoicechat/internal/bus"
	"invoicechat/internal/domain"
)

// Engine is the chat engine the REPL drives.
type Engine interface {
	Send(ctx context.Context, input string) (*agent.TurnResult, error)
	Reset() bool
	Visible() []domain.Message
}

// Records loads and returns the record listing.
type Records interface {
	Refresh(ctx context.Context) ([]domain.Record, error)
	Cached(ctx context.Context) ([]domain.Record, error)
}

// listingColumns are the record fields shown in the records table.
var listingColumns = []string{
	domain.FieldID,
	domain.FieldDocNumber,
	domain.FieldCustomerName,
	domain.FieldTxnDate,
	domain.FieldDueDate,
	domain.FieldTotalAmt,
	domain.FieldBalance,
	domain.FieldStatus,
}

// CLI is an interactive terminal chat. It renders replies, streamed tool
// activity, and every view update published on the update bus.
type CLI struct {
	engine  Engine
	records Records
	updates *bus.UpdateBus
	logger  *slog.Logger
	in      io.Reader
	out     io.Writer
	theme   theme

	outMu     sync.Mutex
	thinking  bool
	thinkMu   sync.Mutex
	thinkStop chan struct{}
	thinkDone chan struct{}
	ctx       context.Context
}

type CLIConfig struct {
	Engine  Engine
	Records Records        // optional
	Updates *bus.UpdateBus // optional
	Logger  *slog.Logger
	In      io.Reader
	Out     io.Writer
}

func NewCLI(cfg CLIConfig) *CLI {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &CLI{
		engine:  cfg.Engine,
		records: cfg.Records,
		updates: cfg.Updates,
		logger:  cfg.Logger,
		in:      cfg.In,
		out:     cfg.Out,
		theme:   newTheme(lipgloss.NewRenderer(cfg.Out)),
		ctx:     context.Background(),
	}
}

func (c *CLI) Name() string { return "cli" }

// Start runs the interactive REPL and blocks until the context is cancelled,
// input ends, or the user quits.
func (c *CLI) Start(ctx context.Context) error {
	c.ctx = ctx
	if c.updates != nil {
		c.updates.Subscribe(c.Name(), c.onUpdate)
		defer c.updates.Unsubscribe(c.Name())
	}

	c.println(c.theme.help.Render("Invoice assistant. Commands: /records /history /new /quit"))
	c.prompt()

	scanner := bufio.NewScanner(c.in)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return err
			}
			return nil // EOF
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			c.prompt()
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := c.command(ctx, line); quit {
				return nil
			}
			c.prompt()
			continue
		}

		c.turn(ctx, line)
		c.prompt()
	}
}

func (c *CLI) command(ctx context.Context, line string) (quit bool) {
	switch line {
	case "/quit", "/exit", "/q":
		c.logger.Info("user requested quit")
		return true
	case "/new":
		if c.engine.Reset() {
			c.println(c.theme.help.Render("Started a new conversation."))
		}
	case "/history":
		for _, m := range c.engine.Visible() {
			c.printMessage(m)
		}
	case "/records":
		c.showListing(ctx)
	default:
		c.println(c.theme.errorText.Render("Unknown command: " + line))
	}
	return false
}

func (c *CLI) turn(ctx context.Context, line string) {
	c.startThinking()
	res, err := c.engine.Send(ctx, line)
	c.stopThinking()

	if err != nil {
		var env *domain.ErrorEnvelope
		if errors.As(err, &env) {
			c.printError(env)
			return
		}
		c.println(c.theme.errorText.Render("Error: " + err.Error()))
		return
	}
	if res == nil {
		return
	}
	c.printMessage(res.Reply)
}

// ShowFrame prints streamed tool activity as it happens.
func (c *CLI) ShowFrame(f domain.Frame) {
	switch f.Kind() {
	case domain.FrameToolCall:
		c.println(c.theme.tool.Render("  → " + f.Tool))
	case domain.FrameToolResult:
		c.println(c.theme.tool.Render("  ← result"))
	}
}

func (c *CLI) onUpdate(u domain.ViewUpdate) {
	switch u.Action {
	case domain.ActionReload:
		c.println(c.theme.help.Render("Records changed, reloading listing..."))
		c.showReloaded(c.ctx)
	case domain.ActionReplaceListing:
		c.println(c.renderTable(fmt.Sprintf("Invoices (%d)", len(u.Records)), u.Records))
	case domain.ActionReplaceWithCached, domain.ActionReplaceWithRecord:
		c.println(c.renderTable("Invoice", u.Records))
	}
}

func (c *CLI) showListing(ctx context.Context) {
	if c.records == nil {
		c.println(c.theme.errorText.Render("No records source configured."))
		return
	}
	recs, err := c.records.Refresh(ctx)
	if err != nil {
		c.logger.Warn("listing refresh failed, showing cached copy", "error", err)
		if recs, err = c.records.Cached(ctx); err != nil || len(recs) == 0 {
			c.println(c.theme.errorText.Render("Could not load invoices."))
			return
		}
	}
	c.println(c.renderTable(fmt.Sprintf("All invoices (%d)", len(recs)), recs))
}

// showReloaded renders the listing the publisher refilled on reload, and
// fetches it itself when the cache is still empty.
func (c *CLI) showReloaded(ctx context.Context) {
	if c.records == nil {
		return
	}
	recs, err := c.records.Cached(ctx)
	if err != nil || len(recs) == 0 {
		c.showListing(ctx)
		return
	}
	c.println(c.renderTable(fmt.Sprintf("All invoices (%d)", len(recs)), recs))
}

func (c *CLI) renderTable(title string, recs []domain.Record) string {
	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		row := make([]string, len(listingColumns))
		for i, col := range listingColumns {
			row[i], _ = r.String(col)
		}
		rows = append(rows, row)
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(c.theme.border).
		Headers(listingColumns...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return c.theme.header
			}
			return c.theme.cell
		})
	return c.theme.title.Render(title) + "\n" + t.String()
}

func (c *CLI) printMessage(m domain.Message) {
	tag := domain.DispatchRole[string](m.Role, roleTags{theme: c.theme, isError: m.IsError})
	body := m.Content
	if m.IsError {
		body = c.theme.errorText.Render(body)
	}
	c.println(tag + " " + body)
	if m.Metadata != nil && m.Metadata.ToolResultCount > 0 {
		c.println(c.theme.help.Render(fmt.Sprintf("  (%d steps, %d tool results)", m.Metadata.StepCount, m.Metadata.ToolResultCount)))
	}
}

func (c *CLI) printError(env *domain.ErrorEnvelope) {
	c.println(c.theme.errorTag.Render(strings.ToUpper(string(env.Kind))) + " " + c.theme.errorText.Render(env.Message))
	if env.Suggestion != "" {
		c.println(c.theme.help.Render("  " + env.Suggestion))
	}
}

func (c *CLI) prompt() {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	_, _ = fmt.Fprint(c.out, c.theme.userTag.Render("You")+"> ")
}

func (c *CLI) println(s string) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	if c.isThinking() {
		_, _ = fmt.Fprint(c.out, "\r\033[K") // Clear spinner line
	}
	_, _ = fmt.Fprintln(c.out, s)
}

func (c *CLI) isThinking() bool {
	c.thinkMu.Lock()
	defer c.thinkMu.Unlock()
	return c.thinking
}

func (c *CLI) startThinking() {
	c.thinkMu.Lock()
	defer c.thinkMu.Unlock()
	if c.thinking {
		return
	}
	c.thinking = true
	c.thinkStop = make(chan struct{})
	c.thinkDone = make(chan struct{})
	go func(stop, done chan struct{}) {
		defer close(done)
		frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
		i := 0
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.outMu.Lock()
				_, _ = fmt.Fprintf(c.out, "\r%s Thinking...", frames[i%len(frames)])
				c.outMu.Unlock()
				i++
			}
		}
	}(c.thinkStop, c.thinkDone)
}

func (c *CLI) stopThinking() {
	c.thinkMu.Lock()
	if !c.thinking {
		c.thinkMu.Unlock()
		return
	}
	c.thinking = false
	close(c.thinkStop)
	done := c.thinkDone
	c.thinkMu.Unlock()

	<-done
	c.outMu.Lock()
	_, _ = fmt.Fprint(c.out, "\r\033[K")
	c.outMu.Unlock()
}

// Stop is a no-op for CLI (we exit when Start returns).
func (c *CLI) Stop() error { return nil }
