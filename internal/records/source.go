package records

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"invoicechat/internal/domain"
	"invoicechat/internal/interpreter"
)

const maxListingBody = 16 << 20

// HTTPSource loads the listing with GET {base}{path}. The response is a JSON
// array of records in any alias shape; each is normalised on the way in.
type HTTPSource struct {
	url     string
	apiKey  string
	client  *http.Client
	aliases *interpreter.AliasTable
	logger  *slog.Logger
}

type HTTPSourceConfig struct {
	APIBase    string
	APIKey     string
	Path       string
	HTTPClient *http.Client
	Aliases    *interpreter.AliasTable
	Logger     *slog.Logger
}

func NewHTTPSource(cfg HTTPSourceConfig) *HTTPSource {
	if cfg.Path == "" {
		cfg.Path = "/invoices"
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Aliases == nil {
		cfg.Aliases = interpreter.DefaultAliases()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &HTTPSource{
		url:     strings.TrimRight(cfg.APIBase, "/") + cfg.Path,
		apiKey:  cfg.APIKey,
		client:  cfg.HTTPClient,
		aliases: cfg.Aliases,
		logger:  cfg.Logger,
	}
}

func (s *HTTPSource) List(ctx context.Context) ([]domain.Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build listing request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch listing: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxListingBody))
	if err != nil {
		return nil, fmt.Errorf("read listing: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listing returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	v, err := interpreter.DecodeValue(body)
	if err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("decode listing: expected a JSON array, got %T", v)
	}

	out := make([]domain.Record, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, s.aliases.Normalize(m))
	}
	s.logger.Debug("listing loaded", "records", len(out))
	return out, nil
}
