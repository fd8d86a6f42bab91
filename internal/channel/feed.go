package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"invoicechat/internal/bus"
	"invoicechat/internal/domain"
)

const feedWriteTimeout = 5 * time.Second

// FeedConfig configures the WebSocket update feed.
type FeedConfig struct {
	Addr    string // listen address (default: 127.0.0.1:8465)
	Path    string // WebSocket endpoint path (default: /updates)
	Updates *bus.UpdateBus
	Logger  *slog.Logger
}

// UpdateFeed streams view updates to external records views over WebSocket.
// A client connecting with ?since=<RFC3339> first receives the retained
// updates published since then; without it, all retained updates.
type UpdateFeed struct {
	addr    string
	path    string
	updates *bus.UpdateBus
	logger  *slog.Logger
	server  *http.Server

	mu      sync.RWMutex
	clients map[string]*feedClient
}

type feedClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// FeedMessage is the JSON protocol of the feed.
type FeedMessage struct {
	Type      string              `json:"type"` // "status" | "update"
	Content   string              `json:"content,omitempty"`
	Action    domain.UpdateAction `json:"action,omitempty"`
	Records   []domain.Record     `json:"records,omitempty"`
	ShowAll   bool                `json:"showAll,omitempty"`
	Timestamp *time.Time          `json:"timestamp,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // Local viewers only; the default listen address is loopback
	},
}

func NewUpdateFeed(cfg FeedConfig) *UpdateFeed {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8465"
	}
	if cfg.Path == "" {
		cfg.Path = "/updates"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &UpdateFeed{
		addr:    cfg.Addr,
		path:    cfg.Path,
		updates: cfg.Updates,
		logger:  cfg.Logger,
		clients: make(map[string]*feedClient),
	}
}

func (f *UpdateFeed) Name() string { return "update-feed" }

// Handler returns the feed's HTTP handler and subscribes it to the bus.
func (f *UpdateFeed) Handler() http.Handler {
	f.updates.Subscribe(f.Name(), func(u domain.ViewUpdate) {
		f.broadcast(updateMessage(u, time.Now()))
	})
	mux := http.NewServeMux()
	mux.HandleFunc(f.path, f.handleUpgrade)
	return mux
}

// Start serves the feed until ctx is cancelled.
func (f *UpdateFeed) Start(ctx context.Context) error {
	f.server = &http.Server{
		Addr:              f.addr,
		Handler:           f.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	defer f.updates.Unsubscribe(f.Name())

	f.logger.Info("update feed starting", "addr", f.addr, "path", f.path)

	errCh := make(chan error, 1)
	go func() {
		if err := f.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		f.closeAllClients()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return f.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("update feed: %w", err)
	}
}

func (f *UpdateFeed) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if s := r.URL.Query().Get("since"); s != "" {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			http.Error(w, "invalid since: "+err.Error(), http.StatusBadRequest)
			return
		}
		since = t
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Error("update feed upgrade failed", "err", err)
		return
	}
	client := &feedClient{conn: conn}
	clientID := fmt.Sprintf("%s-%p", r.RemoteAddr, conn)

	// Hold the client lock until the catch-up is written so live updates
	// queue behind it.
	client.mu.Lock()
	f.mu.Lock()
	backlog := f.updates.Replay(since)
	f.clients[clientID] = client
	f.mu.Unlock()

	f.logger.Info("update feed client connected", "client_id", clientID, "backlog", len(backlog))
	client.writeLocked(FeedMessage{Type: "status", Content: "connected"})
	for _, e := range backlog {
		client.writeLocked(updateMessage(e.Update, e.Timestamp))
	}
	client.mu.Unlock()

	defer func() {
		f.mu.Lock()
		delete(f.clients, clientID)
		f.mu.Unlock()
		conn.Close()
		f.logger.Info("update feed client disconnected", "client_id", clientID)
	}()

	// Clients never send anything meaningful; reading detects disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				f.logger.Debug("update feed read error", "err", err)
			}
			return
		}
	}
}

func updateMessage(u domain.ViewUpdate, at time.Time) FeedMessage {
	return FeedMessage{
		Type:      "update",
		Action:    u.Action,
		Records:   u.Records,
		ShowAll:   u.ShowAll,
		Timestamp: &at,
	}
}

func (f *UpdateFeed) broadcast(msg FeedMessage) {
	f.mu.RLock()
	clients := make([]*feedClient, 0, len(f.clients))
	for _, c := range f.clients {
		clients = append(clients, c)
	}
	f.mu.RUnlock()

	for _, c := range clients {
		c.mu.Lock()
		if err := c.writeLocked(msg); err != nil {
			f.logger.Debug("update feed write failed", "err", err)
		}
		c.mu.Unlock()
	}
}

func (c *feedClient) writeLocked(msg FeedMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (f *UpdateFeed) closeAllClients() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, client := range f.clients {
		client.conn.Close()
		delete(f.clients, id)
	}
}

// Clients returns the number of connected clients.
func (f *UpdateFeed) Clients() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.clients)
}
