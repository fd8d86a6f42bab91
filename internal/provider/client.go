// Package provider talks to the remote invoice agent over HTTP.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"invoicechat/internal/domain"
)

const (
	defaultInvokePath = "/ai/invoke"
	defaultStreamPath = "/ai/stream"
	maxErrorBody      = 64 << 10
)

// HTTPClient implements domain.AgentBackend against the agent's invoke and
// stream endpoints.
type HTTPClient struct {
	apiBase    string
	apiKey     string
	invokePath string
	streamPath string
	maxRetries int
	client     *http.Client
	logger     *slog.Logger
}

type HTTPClientConfig struct {
	APIBase    string
	APIKey     string // sent as a bearer token when set
	InvokePath string
	StreamPath string
	Timeout    time.Duration
	MaxRetries int // negative disables retries
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	if cfg.APIBase == "" {
		cfg.APIBase = "http://localhost:3000"
	}
	if cfg.InvokePath == "" {
		cfg.InvokePath = defaultInvokePath
	}
	if cfg.StreamPath == "" {
		cfg.StreamPath = defaultStreamPath
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = SharedHTTPClient(cfg.Timeout)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &HTTPClient{
		apiBase:    strings.TrimRight(cfg.APIBase, "/"),
		apiKey:     cfg.APIKey,
		invokePath: cfg.InvokePath,
		streamPath: cfg.StreamPath,
		maxRetries: cfg.MaxRetries,
		client:     cfg.HTTPClient,
		logger:     cfg.Logger,
	}
}

// Invoke runs one synchronous agent turn.
func (c *HTTPClient) Invoke(ctx context.Context, req domain.InvokeRequest) (*domain.InvokeResponse, error) {
	resp, err := c.post(ctx, c.client, c.invokePath, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out domain.InvokeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode agent response: %w", err)
	}
	return &out, nil
}

// Stream opens a streaming agent turn. The caller must Close the stream.
func (c *HTTPClient) Stream(ctx context.Context, req domain.InvokeRequest) (domain.FrameStream, error) {
	resp, err := c.post(ctx, streamingClient(c.client), c.streamPath, req)
	if err != nil {
		return nil, err
	}
	return newFrameStream(resp.Body, c.logger), nil
}

// Ping sends a minimal tool-free turn to check the agent end to end.
func (c *HTTPClient) Ping(ctx context.Context) error {
	_, err := c.Invoke(ctx, domain.InvokeRequest{
		Messages:   []domain.WireMessage{{Role: domain.RoleUser, Content: "Hello"}},
		ToolChoice: domain.ToolChoiceNone,
		MaxSteps:   1,
	})
	if err != nil {
		return fmt.Errorf("agent not reachable at %s: %w", c.apiBase, err)
	}
	return nil
}

func (c *HTTPClient) post(ctx context.Context, client *http.Client, path string, req domain.InvokeRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	url := c.apiBase + path

	c.logger.Debug("agent request",
		"url", url,
		"messages", len(req.Messages),
		"tool_choice", req.ToolChoice,
		"conversation", req.ConversationID,
	)

	resp, err := doWithRetry(ctx, client, c.maxRetries, func() (*http.Request, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		}
		return httpReq, nil
	}, c.logger)
	if err != nil {
		return nil, fmt.Errorf("agent request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, decodeBackendError(resp)
	}
	return resp, nil
}

// decodeBackendError builds a BackendError from a non-2xx response, keeping
// the structured body when it decodes and the raw text otherwise.
func decodeBackendError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	be := &domain.BackendError{Status: resp.StatusCode}

	var body domain.ErrorBody
	if err := json.Unmarshal(raw, &body); err == nil && (body.Error != "" || body.ErrorType != "" || body.NeedsAuth || body.Suggestion != "") {
		be.Body = &body
	} else {
		be.Raw = strings.TrimSpace(string(raw))
	}
	return be
}
