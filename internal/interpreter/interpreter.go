// Package interpreter turns raw agent output into display text and typed
// records. The agent embeds record data in its prose between two literal
// markers; everything outside the markers is shown to the user.
package interpreter

import (
	"log/slog"
	"strings"

	"invoicechat/internal/domain"
)

// Delimiter protocol markers. These must match the agent's output convention
// byte for byte.
const (
	BeginMarker = "===INVOICE_DATA_START==="
	EndMarker   = "===INVOICE_DATA_END==="
)

// Result is the interpretation of one assistant text.
type Result struct {
	Text    string                   // display text with the marker span removed
	Payload *domain.ExtractedPayload // nil when no well-formed block was found
	Found   bool                     // a marker pair was present, even if undecodable
}

// Interpreter extracts embedded payloads from agent text.
type Interpreter struct {
	aliases *AliasTable
	logger  *slog.Logger
}

type Config struct {
	Aliases *AliasTable // nil uses DefaultAliases
	Logger  *slog.Logger
}

func New(cfg Config) *Interpreter {
	if cfg.Aliases == nil {
		cfg.Aliases = DefaultAliases()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Interpreter{aliases: cfg.Aliases, logger: cfg.Logger}
}

// Aliases returns the table used for normalisation.
func (i *Interpreter) Aliases() *AliasTable { return i.aliases }

// Interpret splits text into display text and payload. It never fails: a
// block that cannot be decoded is logged and dropped, and the display text is
// still stripped.
func (i *Interpreter) Interpret(text string) Result {
	candidate, cleaned, ok := splitMarkers(text)
	if !ok {
		return Result{Text: text}
	}

	res := Result{Text: cleaned, Found: true}
	value, err := decodeJSON(candidate)
	if err != nil {
		i.logger.Warn("discarding undecodable payload block", "error", err, "block_len", len(candidate))
		return res
	}

	payload, ok := i.toPayload(value)
	if !ok {
		i.logger.Warn("payload block is not a record or list of records")
		return res
	}
	res.Payload = payload
	return res
}

// Normalize applies the alias table to a decoded JSON value, producing a
// payload when the value is a record or an array containing records.
func (i *Interpreter) Normalize(value any) (*domain.ExtractedPayload, bool) {
	return i.toPayload(value)
}

func (i *Interpreter) toPayload(value any) (*domain.ExtractedPayload, bool) {
	switch v := value.(type) {
	case map[string]any:
		return &domain.ExtractedPayload{
			Records: []domain.Record{i.aliases.Normalize(v)},
			Single:  true,
		}, true
	case []any:
		records := make([]domain.Record, 0, len(v))
		for idx, elem := range v {
			m, ok := elem.(map[string]any)
			if !ok {
				i.logger.Debug("skipping non-record payload element", "index", idx)
				continue
			}
			records = append(records, i.aliases.Normalize(m))
		}
		return &domain.ExtractedPayload{Records: records}, true
	default:
		return nil, false
	}
}

// splitMarkers locates the first begin marker and the first end marker after
// it. It returns the text between them and the remaining text with the whole
// span removed and trimmed.
func splitMarkers(text string) (candidate, cleaned string, ok bool) {
	begin := strings.Index(text, BeginMarker)
	if begin < 0 {
		return "", "", false
	}
	bodyStart := begin + len(BeginMarker)
	rel := strings.Index(text[bodyStart:], EndMarker)
	if rel < 0 {
		return "", "", false
	}
	bodyEnd := bodyStart + rel
	spanEnd := bodyEnd + len(EndMarker)

	candidate = text[bodyStart:bodyEnd]
	cleaned = strings.TrimSpace(text[:begin] + text[spanEnd:])
	return candidate, cleaned, true
}
