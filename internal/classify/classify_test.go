package classify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"os"
	"testing"

	"invoicechat/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newClassifier() *Classifier {
	return New(Config{Logger: testLogger()})
}

func TestClassify_Nil(t *testing.T) {
	if newClassifier().Classify(nil) != nil {
		t.Fatal("nil error must classify to nil")
	}
}

func TestClassify_NeedsAuthUsesRemediation(t *testing.T) {
	err := &domain.BackendError{Status: 500, Body: &domain.ErrorBody{Error: "token expired", NeedsAuth: true}}
	env := newClassifier().Classify(err)
	if env.Kind != domain.ErrorAuth {
		t.Fatalf("expected auth, got %s", env.Kind)
	}
	if env.Message != AuthRemediation {
		t.Fatalf("expected remediation message, got %q", env.Message)
	}
}

func TestClassify_AuthErrorTypeAndStatus(t *testing.T) {
	tests := []struct {
		name string
		err  *domain.BackendError
	}{
		{"errorType", &domain.BackendError{Status: 400, Body: &domain.ErrorBody{Error: "bad token", ErrorType: "auth"}}},
		{"401", &domain.BackendError{Status: 401, Raw: "unauthorized"}},
		{"403 with body", &domain.BackendError{Status: 403, Body: &domain.ErrorBody{Error: "nope", ErrorType: "general"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newClassifier().Classify(tt.err)
			if env.Kind != domain.ErrorAuth || env.Message != AuthRemediation {
				t.Fatalf("expected auth remediation, got %+v", env)
			}
		})
	}
}

func TestClassify_BodyKindAndSuggestion(t *testing.T) {
	err := fmt.Errorf("agent request: %w", &domain.BackendError{
		Status: 502,
		Body:   &domain.ErrorBody{Error: "accounting API timed out", ErrorType: "network", Suggestion: "Try again in a minute."},
	})
	env := newClassifier().Classify(err)
	if env.Kind != domain.ErrorNetwork {
		t.Fatalf("expected network, got %s", env.Kind)
	}
	if env.Message != "accounting API timed out" || env.Suggestion != "Try again in a minute." {
		t.Fatalf("unexpected envelope %+v", env)
	}
}

func TestClassify_UnknownErrorTypeIsGeneral(t *testing.T) {
	env := newClassifier().Classify(&domain.BackendError{Status: 500, Body: &domain.ErrorBody{Error: "boom", ErrorType: "weird"}})
	if env.Kind != domain.ErrorGeneral || env.Message != "boom" {
		t.Fatalf("unexpected envelope %+v", env)
	}
}

func TestClassify_StatusFallbackMessage(t *testing.T) {
	env := newClassifier().Classify(&domain.BackendError{Status: 500})
	if env.Kind != domain.ErrorGeneral || env.Message == "" {
		t.Fatalf("expected general with fallback message, got %+v", env)
	}
	if env.Suggestion != "" {
		t.Fatalf("unexpected suggestion %q", env.Suggestion)
	}
}

func TestClassify_Network(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"deadline", fmt.Errorf("turn: %w", context.DeadlineExceeded)},
		{"truncated", fmt.Errorf("read agent stream: %w", io.ErrUnexpectedEOF)},
		{"dial", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}},
		{"url", &url.Error{Op: "Post", URL: "http://localhost:3000/ai/invoke", Err: errors.New("EOF")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newClassifier().Classify(tt.err)
			if env.Kind != domain.ErrorNetwork {
				t.Fatalf("expected network, got %s", env.Kind)
			}
			if env.Message != tt.err.Error() || env.Suggestion != "" {
				t.Fatalf("unexpected envelope %+v", env)
			}
		})
	}
}

func TestClassify_General(t *testing.T) {
	env := newClassifier().Classify(errors.New("decode agent response: invalid character"))
	if env.Kind != domain.ErrorGeneral || env.Message != "decode agent response: invalid character" {
		t.Fatalf("unexpected envelope %+v", env)
	}
}

func TestClassify_EnvelopePassesThrough(t *testing.T) {
	in := &domain.ErrorEnvelope{Kind: domain.ErrorNetwork, Message: "offline", Suggestion: "check wifi"}
	if got := newClassifier().Classify(in); got != in {
		t.Fatalf("envelope must pass through, got %+v", got)
	}
}
