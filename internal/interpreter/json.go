package interpreter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// decodeJSON parses a payload block. Numbers keep their literal text so
// amounts like "150.00" and 150.00 survive unchanged. A surrounding markdown
// code fence is tolerated, and invalid escape sequences are repaired before
// a second attempt.
func decodeJSON(raw string) (any, error) {
	text := stripCodeFence(strings.TrimSpace(raw))
	if text == "" {
		return nil, errors.New("empty payload block")
	}
	v, err := decodeStrict(text)
	if err == nil {
		return v, nil
	}
	if fixed := sanitizeJSONEscapes(text); fixed != text {
		if v, err2 := decodeStrict(fixed); err2 == nil {
			return v, nil
		}
	}
	return nil, err
}

// DecodeValue parses a raw JSON document with literal-preserving numbers.
func DecodeValue(data []byte) (any, error) {
	return decodeStrict(string(data))
}

func decodeStrict(text string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	// Trailing content means the block was not a single JSON document.
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("decode payload: trailing data after JSON value")
	}
	return v, nil
}

// stripCodeFence removes a ```json ... ``` wrapper.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) >= 3 && strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), "```") {
		return strings.TrimSpace(strings.Join(lines[1:len(lines)-1], "\n"))
	}
	return s
}

// sanitizeJSONEscapes drops the backslash from escape sequences JSON does not
// allow (e.g. \$ or \#), which some models emit inside strings.
func sanitizeJSONEscapes(s string) string {
	var buf bytes.Buffer
	buf.Grow(len(s))
	inString := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if !inString {
			if ch == '"' {
				inString = true
			}
			buf.WriteByte(ch)
			continue
		}
		switch ch {
		case '"':
			inString = false
			buf.WriteByte(ch)
		case '\\':
			if i+1 >= len(s) {
				buf.WriteByte(ch)
				continue
			}
			switch next := s[i+1]; next {
			case '"', '\\', '/', 'b', 'f', 'n', 'r', 't', 'u':
				buf.WriteByte(ch)
				buf.WriteByte(next)
				i++
			default:
				// invalid escape: keep the character, drop the backslash
			}
		default:
			buf.WriteByte(ch)
		}
	}
	return buf.String()
}
