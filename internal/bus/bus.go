// Package bus fans view updates out to every records view in the process.
package bus

import (
	"log/slog"
	"sync"
	"time"

	"invoicechat/internal/domain"
)

const defaultHistory = 32

// Event is a published view update with its publication time.
type Event struct {
	Update    domain.ViewUpdate
	Timestamp time.Time
}

// Handler receives updates. Handlers run synchronously on the publishing
// goroutine, in subscription order.
type Handler func(domain.ViewUpdate)

type namedHandler struct {
	name    string
	handler Handler
}

// UpdateBus is an in-process publish/subscribe bus for view updates. It keeps
// a bounded history so a view opened late can catch up.
type UpdateBus struct {
	mu         sync.RWMutex
	handlers   []namedHandler
	history    []Event
	maxHistory int
	closed     bool
	now        func() time.Time
	logger     *slog.Logger
}

type Config struct {
	MaxHistory int
	Logger     *slog.Logger
	Now        func() time.Time
}

func New(cfg Config) *UpdateBus {
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = defaultHistory
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &UpdateBus{
		maxHistory: cfg.MaxHistory,
		now:        cfg.Now,
		logger:     cfg.Logger,
	}
}

// Subscribe registers a handler under name, replacing any handler already
// registered under that name.
func (b *UpdateBus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.handlers {
		if b.handlers[i].name == name {
			b.handlers[i].handler = h
			return
		}
	}
	b.handlers = append(b.handlers, namedHandler{name: name, handler: h})
}

// Unsubscribe removes the handler registered under name.
func (b *UpdateBus) Unsubscribe(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, h := range b.handlers {
		if h.name == name {
			b.handlers = append(b.handlers[:i:i], b.handlers[i+1:]...)
			return
		}
	}
}

// Publish records the update and delivers it to every subscriber. A panicking
// handler is logged and does not stop delivery to the others.
func (b *UpdateBus) Publish(u domain.ViewUpdate) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.logger.Warn("attempted to publish to closed update bus", "action", u.Action)
		return
	}
	if len(b.history) >= b.maxHistory {
		b.history = append(b.history[:0:0], b.history[1:]...)
	}
	b.history = append(b.history, Event{Update: u, Timestamp: b.now()})
	handlers := append([]namedHandler(nil), b.handlers...)
	b.mu.Unlock()

	for _, h := range handlers {
		b.deliver(h, u)
	}
}

func (b *UpdateBus) deliver(h namedHandler, u domain.ViewUpdate) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("update handler panic", "handler", h.name, "action", u.Action, "panic", r)
		}
	}()
	h.handler(u)
}

// Replay returns the retained updates published at or after since.
func (b *UpdateBus) Replay(since time.Time) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []Event
	for _, e := range b.history {
		if !e.Timestamp.Before(since) {
			out = append(out, e)
		}
	}
	return out
}

// Last returns the most recent update, if any.
func (b *UpdateBus) Last() (domain.ViewUpdate, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.history) == 0 {
		return domain.ViewUpdate{}, false
	}
	return b.history[len(b.history)-1].Update, true
}

// Close stops delivery. Later publications are dropped.
func (b *UpdateBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.handlers = nil
}
