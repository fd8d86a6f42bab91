// Package classify maps request failures onto the auth/network/general
// taxonomy shown to users.
package classify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"syscall"

	"invoicechat/internal/domain"
)

// AuthRemediation replaces the backend message whenever a failure is an
// authorization problem.
const AuthRemediation = "The accounting connection needs to be re-authorized. Reconnect your account and try again."

type Config struct {
	Logger *slog.Logger
}

type Classifier struct {
	logger *slog.Logger
}

func New(cfg Config) *Classifier {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Classifier{logger: cfg.Logger}
}

// Classify turns any request failure into an envelope. A nil error yields nil.
func (c *Classifier) Classify(err error) *domain.ErrorEnvelope {
	if err == nil {
		return nil
	}

	var env *domain.ErrorEnvelope
	if errors.As(err, &env) {
		return env
	}

	var be *domain.BackendError
	if errors.As(err, &be) {
		out := fromBackend(be)
		c.logger.Debug("classified backend error", "kind", out.Kind, "status", be.Status)
		return out
	}

	kind := domain.ErrorGeneral
	if isNetwork(err) {
		kind = domain.ErrorNetwork
	}
	c.logger.Debug("classified error", "kind", kind, "error", err)
	return &domain.ErrorEnvelope{Kind: kind, Message: err.Error()}
}

func fromBackend(be *domain.BackendError) *domain.ErrorEnvelope {
	out := &domain.ErrorEnvelope{Kind: domain.ErrorGeneral}

	if be.Body != nil {
		out.Message = be.Body.Error
		out.Suggestion = be.Body.Suggestion
		switch k := domain.ErrorKind(be.Body.ErrorType); k {
		case domain.ErrorAuth, domain.ErrorNetwork, domain.ErrorGeneral:
			out.Kind = k
		}
		if be.Body.NeedsAuth {
			out.Kind = domain.ErrorAuth
		}
	} else if be.Raw != "" {
		out.Message = be.Raw
	}

	if be.Status == http.StatusUnauthorized || be.Status == http.StatusForbidden {
		out.Kind = domain.ErrorAuth
	}
	if out.Kind == domain.ErrorAuth {
		out.Message = AuthRemediation
		return out
	}

	if out.Message == "" {
		out.Message = statusMessage(be.Status)
	}
	return out
}

func statusMessage(status int) string {
	if status == 0 {
		return "The agent reported an error."
	}
	if text := http.StatusText(status); text != "" {
		return fmt.Sprintf("The agent returned %d %s.", status, text)
	}
	return fmt.Sprintf("The agent returned status %d.", status)
}

// isNetwork reports transport-level failures: the request could not be
// delivered, the response was cut short, or the turn ran out of time.
func isNetwork(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
