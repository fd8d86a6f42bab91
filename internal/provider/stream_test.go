package provider

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"

	"invoicechat/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// --- LineBuffer ---

func TestLineBuffer_ReassemblesSplitLine(t *testing.T) {
	var b LineBuffer
	_, _ = b.Write([]byte(`data: {"type":"te`))
	if _, ok := b.Next(); ok {
		t.Fatal("partial line must not be returned")
	}
	_, _ = b.Write([]byte("xt\",\"content\":\"hi\"}\n"))
	line, ok := b.Next()
	if !ok {
		t.Fatal("expected a complete line")
	}
	if string(line) != `data: {"type":"text","content":"hi"}` {
		t.Fatalf("unexpected line %q", line)
	}
	if b.Len() != 0 {
		t.Fatalf("consumed bytes not discarded: %d left", b.Len())
	}
}

func TestLineBuffer_MultipleLinesInOneChunk(t *testing.T) {
	var b LineBuffer
	_, _ = b.Write([]byte("a\r\nb\nc"))
	var got []string
	for {
		line, ok := b.Next()
		if !ok {
			break
		}
		got = append(got, string(line))
	}
	if strings.Join(got, ",") != "a,b" {
		t.Fatalf("unexpected lines %v", got)
	}
	if rest := b.Flush(); string(rest) != "c" {
		t.Fatalf("expected partial remainder c, got %q", rest)
	}
	if b.Flush() != nil {
		t.Fatal("flush must empty the buffer")
	}
}

func TestLineBuffer_ReturnedLineIsStable(t *testing.T) {
	var b LineBuffer
	_, _ = b.Write([]byte("first\nsecond\n"))
	first, _ := b.Next()
	_, _ = b.Write([]byte("third\n"))
	if string(first) != "first" {
		t.Fatalf("returned line was overwritten: %q", first)
	}
}

// --- frameStream ---

// chunkedReader delivers its data in fixed-size pieces to simulate frames
// split across network reads.
type chunkedReader struct {
	data []byte
	size int
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := r.size
	if n > len(r.data) {
		n = len(r.data)
	}
	if n > len(p) {
		n = len(p)
	}
	copy(p, r.data[:n])
	r.data = r.data[n:]
	return n, nil
}

func (r *chunkedReader) Close() error { return nil }

func readAllFrames(t *testing.T, s domain.FrameStream) []domain.Frame {
	t.Helper()
	var frames []domain.Frame
	for {
		f, err := s.Next()
		if errors.Is(err, io.EOF) {
			return frames
		}
		if err != nil {
			t.Fatalf("unexpected stream error: %v", err)
		}
		frames = append(frames, f)
	}
}

const sampleStream = "data: {\"type\":\"text\",\"content\":\"Hello \"}\n\n" +
	": keep-alive comment\n" +
	"data: {\"type\":\"tool-call\",\"tool\":\"list_invoices\",\"args\":{\"limit\":5}}\n" +
	"data: not json\n" +
	"data: {\"type\":\"text\",\"content\":\"world\"}\n" +
	"data: {\"type\":\"done\",\"text\":\"Hello world\",\"steps\":2}\n" +
	"data: [DONE]\n"

func TestFrameStream_SplitAcrossReads(t *testing.T) {
	for _, size := range []int{1, 3, 7, 64, 4096} {
		s := newFrameStream(&chunkedReader{data: []byte(sampleStream), size: size}, testLogger())
		frames := readAllFrames(t, s)
		if len(frames) != 4 {
			t.Fatalf("chunk %d: expected 4 frames, got %d: %+v", size, len(frames), frames)
		}
		if frames[0].Content != "Hello " || frames[2].Content != "world" {
			t.Fatalf("chunk %d: fragments corrupted: %+v", size, frames)
		}
		if frames[1].Kind() != domain.FrameToolCall || frames[1].Tool != "list_invoices" {
			t.Fatalf("chunk %d: unexpected tool frame %+v", size, frames[1])
		}
		if frames[3].Kind() != domain.FrameDone || frames[3].Steps == nil || *frames[3].Steps != 2 {
			t.Fatalf("chunk %d: unexpected terminal frame %+v", size, frames[3])
		}
	}
}

func TestFrameStream_UnterminatedLastLine(t *testing.T) {
	body := "data: {\"content\":\"a\"}\ndata: {\"type\":\"done\",\"text\":\"a\"}"
	s := newFrameStream(&chunkedReader{data: []byte(body), size: 5}, testLogger())
	frames := readAllFrames(t, s)
	if len(frames) != 2 || frames[1].Kind() != domain.FrameDone {
		t.Fatalf("expected trailing frame to be flushed, got %+v", frames)
	}
}

func TestFrameStream_PrefixWithoutSpace(t *testing.T) {
	s := newFrameStream(io.NopCloser(strings.NewReader("data:{\"content\":\"x\"}\n")), testLogger())
	frames := readAllFrames(t, s)
	if len(frames) != 1 || frames[0].Content != "x" {
		t.Fatalf("unexpected frames %+v", frames)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }
func (failingReader) Close() error             { return nil }

func TestFrameStream_ReadError(t *testing.T) {
	s := newFrameStream(failingReader{}, testLogger())
	if _, err := s.Next(); err == nil || errors.Is(err, io.EOF) {
		t.Fatalf("expected read error, got %v", err)
	}
}
