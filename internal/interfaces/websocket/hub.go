// Package websocket streams feed events to browsers.
package websocket

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"lens-backend/internal/feed"
	"lens-backend/pkg/observer"
)

// Feed is the event source each connection subscribes to.
type Feed interface {
	SubscribeWithSnapshot(fn func(feed.Event)) observer.Subscription
}

// Hub upgrades feed-stream requests and tracks live connections. Every
// connection receives a reset snapshot followed by each feed change.
type Hub struct {
	feed     Feed
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu      sync.Mutex
	clients map[*Client]struct{}
	closed  bool
	wg      sync.WaitGroup
}

// NewHub creates a Hub. An empty allowedOrigins or one containing "*"
// accepts any origin.
func NewHub(f Feed, allowedOrigins []string, logger *zap.Logger) *Hub {
	h := &Hub{
		feed:    f,
		logger:  logger,
		clients: make(map[*Client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

// ServeHTTP handles GET /feed/stream
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		h.logger.Debug("WebSocket upgrade failed", zap.Error(err))
		return
	}

	c := newClient(conn, h.logger)
	if !h.add(c) {
		conn.Close()
		return
	}

	sub := h.feed.SubscribeWithSnapshot(c.enqueue)
	go func() {
		defer h.wg.Done()
		c.run()
		sub.Close()
		h.remove(c)
	}()
}

// Len returns the number of open connections.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and waits for their goroutines.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.kill()
	}
	h.wg.Wait()
	h.logger.Info("All feed streams closed", zap.Int("count", len(clients)))
}

func (h *Hub) add(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.wg.Add(1)
	h.logger.Info("Feed stream opened",
		zap.String("connectionID", c.id),
		zap.Int("connections", len(h.clients)),
	)
	return true
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
	h.logger.Info("Feed stream closed",
		zap.String("connectionID", c.id),
		zap.Int("connections", len(h.clients)),
	)
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}
