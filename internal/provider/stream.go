package provider

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"invoicechat/internal/domain"
)

const (
	// FramePrefix marks a frame line on the stream endpoint.
	FramePrefix  = "data: "
	doneSentinel = "[DONE]"
	readChunk    = 4096
)

// LineBuffer reassembles newline-terminated lines from arbitrarily split
// reads. Consumed bytes are discarded as soon as a line is returned.
type LineBuffer struct {
	buf []byte
}

// Write appends a delivered chunk.
func (b *LineBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// Next returns the next complete line without its terminator ("\n" or
// "\r\n"). ok is false when no complete line is buffered yet.
func (b *LineBuffer) Next() (line []byte, ok bool) {
	i := bytes.IndexByte(b.buf, '\n')
	if i < 0 {
		return nil, false
	}
	line = bytes.TrimSuffix(b.buf[:i], []byte{'\r'})
	out := make([]byte, len(line))
	copy(out, line)

	// Shift the remainder down so the buffer never grows with consumed data.
	n := copy(b.buf, b.buf[i+1:])
	b.buf = b.buf[:n]
	return out, true
}

// Flush returns whatever partial line remains and empties the buffer.
func (b *LineBuffer) Flush() []byte {
	if len(b.buf) == 0 {
		return nil
	}
	out := bytes.TrimSuffix(b.buf, []byte{'\r'})
	rest := make([]byte, len(out))
	copy(rest, out)
	b.buf = b.buf[:0]
	return rest
}

// Len reports the number of buffered, unconsumed bytes.
func (b *LineBuffer) Len() int { return len(b.buf) }

// frameStream decodes `data: ` frames from a response body.
type frameStream struct {
	body   io.ReadCloser
	lines  LineBuffer
	chunk  []byte
	eof    bool
	logger *slog.Logger
}

func newFrameStream(body io.ReadCloser, logger *slog.Logger) *frameStream {
	return &frameStream{body: body, chunk: make([]byte, readChunk), logger: logger}
}

// Next returns the next decodable frame, or io.EOF once the body is drained.
// Lines without the frame prefix, the [DONE] sentinel, and undecodable frame
// bodies are skipped.
func (s *frameStream) Next() (domain.Frame, error) {
	for {
		line, ok := s.lines.Next()
		if !ok {
			if s.eof {
				rest := s.lines.Flush()
				if rest == nil {
					return domain.Frame{}, io.EOF
				}
				line = rest
			} else {
				if err := s.fill(); err != nil {
					return domain.Frame{}, err
				}
				continue
			}
		}

		frame, ok := s.decode(line)
		if ok {
			return frame, nil
		}
	}
}

func (s *frameStream) fill() error {
	n, err := s.body.Read(s.chunk)
	if n > 0 {
		_, _ = s.lines.Write(s.chunk[:n])
	}
	switch {
	case errors.Is(err, io.EOF):
		s.eof = true
	case err != nil:
		return fmt.Errorf("read agent stream: %w", err)
	}
	return nil
}

func (s *frameStream) decode(line []byte) (domain.Frame, bool) {
	payload, found := bytes.CutPrefix(line, []byte(FramePrefix))
	if !found {
		// Tolerate "data:" without the space.
		if payload, found = bytes.CutPrefix(line, []byte("data:")); !found {
			return domain.Frame{}, false
		}
	}
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 || string(payload) == doneSentinel {
		return domain.Frame{}, false
	}

	var frame domain.Frame
	if err := json.Unmarshal(payload, &frame); err != nil {
		s.logger.Warn("skipping undecodable stream frame", "error", err, "frame_len", len(payload))
		return domain.Frame{}, false
	}
	return frame, true
}

func (s *frameStream) Close() error {
	return s.body.Close()
}
