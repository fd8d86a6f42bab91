package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"time"
)

const defaultMaxRetries = 2

// retryBaseDelay is the unit of the quadratic backoff. Tests shrink it.
var retryBaseDelay = time.Second

// retryableError indicates a transient failure that can be retried.
type retryableError struct {
	statusCode int
	body       string
}

func (e *retryableError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.statusCode, e.body)
}

// doWithRetry executes an HTTP request with exponential backoff for failures
// that cannot have reached the agent: dial errors and gateway/rate-limit
// statuses. Anything else is returned as is, because an agent turn may have
// already run tools with side effects.
func doWithRetry(ctx context.Context, client *http.Client, maxRetries int, buildReq func() (*http.Request, error), logger *slog.Logger) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff with jitter to prevent thundering herd.
			base := time.Duration(attempt*attempt) * retryBaseDelay
			jitter := time.Duration(rand.Int63n(int64(base/2 + 1)))
			backoff := base + jitter
			logger.Warn("retrying agent request", "attempt", attempt+1, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := buildReq()
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			if isDialError(err) && attempt < maxRetries {
				logger.Warn("agent unreachable, will retry", "error", err)
				continue
			}
			return nil, err
		}

		if isRetryableStatus(resp.StatusCode) {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			resp.Body.Close()
			lastErr = &retryableError{statusCode: resp.StatusCode, body: string(body)}
			if attempt < maxRetries {
				logger.Warn("agent busy, will retry", "status", resp.StatusCode)
				continue
			}
			// Out of retries: hand the last response back so the caller can
			// decode its structured error body.
			return replayResponse(resp, body), nil
		}

		return resp, nil
	}

	return nil, lastErr
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// isDialError reports whether the request failed before a connection existed.
func isDialError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

type replayBody struct{ io.Reader }

func (replayBody) Close() error { return nil }

func replayResponse(resp *http.Response, body []byte) *http.Response {
	clone := *resp
	clone.Body = replayBody{Reader: bytesReader(body)}
	return &clone
}
