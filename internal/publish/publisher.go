// Package publish decides what a records view should do after a turn and
// announces it on the update bus.
package publish

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"invoicechat/internal/bus"
	"invoicechat/internal/domain"
	"invoicechat/internal/interpreter"
	"invoicechat/internal/metrics"
	"invoicechat/internal/records"
)

// completionPhrase matches human-readable confirmations of a deletion or a
// delivery.
var completionPhrase = regexp.MustCompile(`(?i)\b(deleted|removed|sent|emailed|delivered)\b`)

type Config struct {
	Interpreter *interpreter.Interpreter
	Cache       records.Cache
	Source      records.Source // optional; Refresh fails without it
	Bus         *bus.UpdateBus
	Metrics     *metrics.Collector
	Logger      *slog.Logger
}

type Publisher struct {
	interp  *interpreter.Interpreter
	cache   records.Cache
	source  records.Source
	bus     *bus.UpdateBus
	metrics *metrics.Collector
	logger  *slog.Logger
}

func New(cfg Config) *Publisher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Interpreter == nil {
		cfg.Interpreter = interpreter.New(interpreter.Config{Logger: cfg.Logger})
	}
	if cfg.Cache == nil {
		cfg.Cache = records.NewMemoryCache()
	}
	return &Publisher{
		interp:  cfg.Interpreter,
		cache:   cfg.Cache,
		source:  cfg.Source,
		bus:     cfg.Bus,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}
}

// PublishPayload judges an extracted payload and publishes the resulting
// update. It reports false when the payload is informational only.
func (p *Publisher) PublishPayload(ctx context.Context, payload *domain.ExtractedPayload) (domain.ViewUpdate, bool) {
	if payload == nil {
		return domain.ViewUpdate{}, false
	}
	u, ok := p.judge(ctx, payload, nil)
	if !ok {
		return domain.ViewUpdate{}, false
	}
	p.apply(ctx, u)
	return u, true
}

// PublishResults judges raw tool results. When several are decisive the
// latest one wins.
func (p *Publisher) PublishResults(ctx context.Context, results []domain.ToolResult) (domain.ViewUpdate, bool) {
	for i := len(results) - 1; i >= 0; i-- {
		u, ok := p.judgeResult(ctx, results[i])
		if ok {
			p.apply(ctx, u)
			return u, true
		}
	}
	return domain.ViewUpdate{}, false
}

// Refresh reloads the full listing from the source into the cache.
func (p *Publisher) Refresh(ctx context.Context) ([]domain.Record, error) {
	if p.source == nil {
		return nil, fmt.Errorf("no records source configured")
	}
	recs, err := p.source.List(ctx)
	p.metrics.CacheRefresh(err)
	if err != nil {
		return nil, fmt.Errorf("refresh listing: %w", err)
	}
	if err := p.cache.Replace(ctx, recs); err != nil {
		return nil, fmt.Errorf("cache listing: %w", err)
	}
	return recs, nil
}

// Cached returns the cached listing.
func (p *Publisher) Cached(ctx context.Context) ([]domain.Record, error) {
	return p.cache.All(ctx)
}

func (p *Publisher) judgeResult(ctx context.Context, raw domain.ToolResult) (domain.ViewUpdate, bool) {
	if len(raw) == 0 {
		return domain.ViewUpdate{}, false
	}
	v, err := interpreter.DecodeValue(raw)
	if err != nil {
		p.logger.Debug("skipping undecodable tool result", "error", err)
		return domain.ViewUpdate{}, false
	}
	v = unwrapEnvelope(v)

	if s, ok := v.(string); ok {
		if completionPhrase.MatchString(s) {
			return reload(), true
		}
		return domain.ViewUpdate{}, false
	}

	payload, ok := p.interp.Normalize(v)
	if !ok {
		return domain.ViewUpdate{}, false
	}
	rawMap, _ := v.(map[string]any)
	return p.judge(ctx, payload, rawMap)
}

// judge applies the decision rules in order. raw is the undecoded single
// record when one is available, so phrases in non-canonical fields count.
func (p *Publisher) judge(ctx context.Context, payload *domain.ExtractedPayload, raw map[string]any) (domain.ViewUpdate, bool) {
	recs := payload.Records

	if !payload.Single && len(recs) > 0 && allHaveDocNumber(recs) {
		return domain.ViewUpdate{Action: domain.ActionReplaceListing, Records: recs}, true
	}

	if payload.Single && len(recs) == 1 && recs[0].HasDocNumber() {
		partial := recs[0]
		if id := partial.ID(); id != "" {
			cached, found, err := p.cache.Get(ctx, id)
			if err != nil {
				p.logger.Warn("cache lookup failed", "id", id, "error", err)
			}
			if found {
				return domain.ViewUpdate{
					Action:  domain.ActionReplaceWithCached,
					Records: []domain.Record{cached.Merge(partial)},
				}, true
			}
		}
		return domain.ViewUpdate{Action: domain.ActionReplaceWithRecord, Records: []domain.Record{partial}}, true
	}

	for _, r := range recs {
		if r.ID() != "" && !r.HasDocNumber() {
			return reload(), true
		}
		if hasPhrase(r) {
			return reload(), true
		}
	}
	if raw != nil && hasPhrase(raw) {
		return reload(), true
	}
	return domain.ViewUpdate{}, false
}

// apply performs the cache side effects of u and publishes it.
func (p *Publisher) apply(ctx context.Context, u domain.ViewUpdate) {
	switch u.Action {
	case domain.ActionReplaceListing:
		if err := p.cache.Upsert(ctx, u.Records); err != nil {
			p.logger.Warn("cache upsert failed", "error", err)
		}
	case domain.ActionReload:
		if err := p.cache.Invalidate(ctx); err != nil {
			p.logger.Warn("cache invalidate failed", "error", err)
		}
		// Refill before subscribers see the reload so they can read the cache.
		if p.source != nil {
			if _, err := p.Refresh(ctx); err != nil {
				p.logger.Warn("listing reload failed", "error", err)
			}
		}
	}

	p.logger.Debug("publishing view update", "action", u.Action, "records", len(u.Records), "show_all", u.ShowAll)
	p.metrics.Update(string(u.Action))
	if p.bus != nil {
		p.bus.Publish(u)
	}
}

func reload() domain.ViewUpdate {
	return domain.ViewUpdate{Action: domain.ActionReload, ShowAll: true}
}

func allHaveDocNumber(recs []domain.Record) bool {
	for _, r := range recs {
		if !r.HasDocNumber() {
			return false
		}
	}
	return true
}

func hasPhrase[M ~map[string]any](m M) bool {
	for _, v := range m {
		if s, ok := v.(string); ok && completionPhrase.MatchString(s) {
			return true
		}
	}
	return false
}

// unwrapEnvelope returns the inner result of a {toolName, result} envelope.
func unwrapEnvelope(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	if _, named := m["toolName"]; !named {
		return v
	}
	if inner, ok := m["result"]; ok {
		return inner
	}
	return v
}
