// Package records keeps the last full record listing so partial records
// returned by the agent can be reconciled against it.
package records

import (
	"context"
	"errors"
	"sync"

	"invoicechat/internal/domain"
)

// ErrClosed is returned by a cache after Close.
var ErrClosed = errors.New("records: cache closed")

// Cache holds the full listing keyed by record Id. Records without an Id are
// not cached. All returns records in listing order.
type Cache interface {
	Replace(ctx context.Context, recs []domain.Record) error
	Upsert(ctx context.Context, recs []domain.Record) error
	Get(ctx context.Context, id string) (domain.Record, bool, error)
	All(ctx context.Context) ([]domain.Record, error)
	Invalidate(ctx context.Context) error
	Close() error
}

// Source loads the full listing from the system of record.
type Source interface {
	List(ctx context.Context) ([]domain.Record, error)
}

// MemoryCache is an in-process Cache.
type MemoryCache struct {
	mu     sync.RWMutex
	order  []string
	byID   map[string]domain.Record
	closed bool
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{byID: make(map[string]domain.Record)}
}

func (c *MemoryCache) Replace(_ context.Context, recs []domain.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.order = c.order[:0]
	c.byID = make(map[string]domain.Record, len(recs))
	c.putLocked(recs)
	return nil
}

func (c *MemoryCache) Upsert(_ context.Context, recs []domain.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.putLocked(recs)
	return nil
}

func (c *MemoryCache) putLocked(recs []domain.Record) {
	for _, r := range recs {
		id := r.ID()
		if id == "" {
			continue
		}
		if _, ok := c.byID[id]; !ok {
			c.order = append(c.order, id)
		}
		c.byID[id] = r.Merge(nil)
	}
}

func (c *MemoryCache) Get(_ context.Context, id string) (domain.Record, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, false, ErrClosed
	}
	r, ok := c.byID[id]
	if !ok {
		return nil, false, nil
	}
	return r.Merge(nil), true, nil
}

func (c *MemoryCache) All(_ context.Context) ([]domain.Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, ErrClosed
	}
	out := make([]domain.Record, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id].Merge(nil))
	}
	return out, nil
}

func (c *MemoryCache) Invalidate(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.order = nil
	c.byID = make(map[string]domain.Record)
	return nil
}

func (c *MemoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
