// Package realtime is a client for Supabase Realtime postgres_changes
// channels. The connection heals itself: drops are logged and retried with
// exponential backoff, never reported to subscribers.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"lens-backend/pkg/observer"
)

const (
	writeWait   = 10 * time.Second
	stableAfter = 30 * time.Second
	protocolVsn = "1.0.0"
)

// Config configures a Client.
type Config struct {
	// URL is the project URL, e.g. https://abc.supabase.co.
	URL        string
	APIKey     string
	Heartbeat  time.Duration
	MinBackoff time.Duration
	MaxBackoff time.Duration
	Dialer     *websocket.Dialer
}

// Filter selects row changes on one table.
type Filter struct {
	Event  string `json:"event"`
	Schema string `json:"schema"`
	Table  string `json:"table"`
}

func (f Filter) topic() string {
	return "realtime:" + f.Schema + ":" + f.Table + ":" + strings.ToLower(f.Event)
}

// Change is one row change delivered by the server.
type Change struct {
	Schema          string          `json:"schema"`
	Table           string          `json:"table"`
	Type            string          `json:"type"`
	CommitTimestamp string          `json:"commit_timestamp"`
	Record          json.RawMessage `json:"record"`
}

type message struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref,omitempty"`
}

type binding struct {
	filter   Filter
	handlers *observer.Registry[Change]
}

// Client multiplexes channel subscriptions over one websocket.
type Client struct {
	cfg    Config
	logger *zap.Logger

	mu       sync.Mutex
	bindings map[string]*binding
	conn     *websocket.Conn

	writeMu sync.Mutex
	ref     atomic.Uint64

	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewClient creates a Client. Nothing connects until Start.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 25 * time.Second
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	return &Client{
		cfg:      cfg,
		logger:   logger,
		bindings: make(map[string]*binding),
		done:     make(chan struct{}),
	}
}

// Subscribe delivers changes matching f to fn until the handle is closed.
// Subscriptions made before or after Start are joined on every connection.
func (c *Client) Subscribe(f Filter, fn func(Change)) observer.Subscription {
	if f.Event == "" {
		f.Event = "*"
	}
	if f.Schema == "" {
		f.Schema = "public"
	}
	topic := f.topic()

	c.mu.Lock()
	b, ok := c.bindings[topic]
	if !ok {
		b = &binding{filter: f, handlers: observer.NewRegistry[Change]()}
		c.bindings[topic] = b
	}
	conn := c.conn
	c.mu.Unlock()

	sub := b.handlers.Subscribe(fn)
	if !ok && conn != nil {
		if err := c.join(conn, topic, f); err != nil {
			c.logger.Warn("Realtime join failed", zap.String("topic", topic), zap.Error(err))
		}
	}

	return observer.Func(func() {
		sub.Close()
		c.mu.Lock()
		if b.handlers.Len() > 0 || c.bindings[topic] != b {
			c.mu.Unlock()
			return
		}
		delete(c.bindings, topic)
		conn := c.conn
		c.mu.Unlock()
		if conn != nil {
			_ = c.write(conn, message{Topic: topic, Event: "phx_leave", Payload: json.RawMessage(`{}`), Ref: c.nextRef()})
		}
	})
}

// Start connects in the background and keeps reconnecting until ctx ends
// or Close is called.
func (c *Client) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	go c.run(ctx)
}

// Close disconnects and waits for the connection loop to exit.
func (c *Client) Close() {
	c.mu.Lock()
	started, cancel := c.started, c.cancel
	c.mu.Unlock()
	if !started {
		return
	}
	cancel()
	<-c.done
}

// Connected reports whether a websocket is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.MinBackoff
	b.MaxInterval = c.cfg.MaxBackoff
	b.MaxElapsedTime = 0
	b.Reset()

	for {
		began := time.Now()
		err := c.connectOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if time.Since(began) > stableAfter {
			b.Reset()
		}
		wait := b.NextBackOff()
		c.logger.Warn("Realtime connection lost, reconnecting",
			zap.Error(err),
			zap.Duration("retryIn", wait),
		)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

func (c *Client) connectOnce(ctx context.Context) error {
	endpoint, err := c.endpoint()
	if err != nil {
		return err
	}
	conn, _, err := c.cfg.Dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial realtime: %w", err)
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	defer conn.Close()
	defer wg.Wait()
	defer close(stop)

	wg.Add(2)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()
	go func() {
		defer wg.Done()
		c.heartbeat(conn, stop)
	}()

	c.mu.Lock()
	c.conn = conn
	joins := make(map[string]Filter, len(c.bindings))
	for topic, b := range c.bindings {
		joins[topic] = b.filter
	}
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
	}()

	for topic, f := range joins {
		if err := c.join(conn, topic, f); err != nil {
			return err
		}
	}
	c.logger.Info("Realtime connected", zap.Int("channels", len(joins)))

	// Every heartbeat is answered, so two silent intervals mean the peer is gone.
	readWait := 2 * c.cfg.Heartbeat
	for {
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.dispatch(data)
	}
}

func (c *Client) heartbeat(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			msg := message{Topic: "phoenix", Event: "heartbeat", Payload: json.RawMessage(`{}`), Ref: c.nextRef()}
			if err := c.write(conn, msg); err != nil {
				conn.Close()
				return
			}
		}
	}
}

func (c *Client) join(conn *websocket.Conn, topic string, f Filter) error {
	payload, err := json.Marshal(map[string]interface{}{
		"config": map[string]interface{}{
			"broadcast":        map[string]bool{"self": false},
			"presence":         map[string]string{"key": ""},
			"postgres_changes": []Filter{f},
		},
		"access_token": c.cfg.APIKey,
	})
	if err != nil {
		return err
	}
	return c.write(conn, message{Topic: topic, Event: "phx_join", Payload: payload, Ref: c.nextRef()})
}

func (c *Client) write(conn *websocket.Conn, msg message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}

func (c *Client) dispatch(data []byte) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Debug("Dropping malformed realtime frame", zap.Error(err))
		return
	}

	switch msg.Event {
	case "postgres_changes":
		var payload struct {
			Data Change `json:"data"`
		}
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			c.logger.Debug("Dropping malformed change", zap.String("topic", msg.Topic), zap.Error(err))
			return
		}
		c.mu.Lock()
		b := c.bindings[msg.Topic]
		c.mu.Unlock()
		if b == nil || !b.filter.matches(payload.Data) {
			return
		}
		b.handlers.Notify(payload.Data)

	case "phx_reply":
		var reply struct {
			Status   string          `json:"status"`
			Response json.RawMessage `json:"response"`
		}
		if err := json.Unmarshal(msg.Payload, &reply); err == nil && reply.Status != "ok" {
			c.logger.Warn("Realtime request rejected",
				zap.String("topic", msg.Topic),
				zap.String("status", reply.Status),
				zap.ByteString("response", reply.Response),
			)
		}

	case "phx_error", "phx_close":
		c.logger.Debug("Realtime channel closed", zap.String("topic", msg.Topic), zap.String("event", msg.Event))
	}
}

func (f Filter) matches(ch Change) bool {
	return f.Event == "*" || strings.EqualFold(f.Event, ch.Type)
}

func (c *Client) nextRef() string {
	return strconv.FormatUint(c.ref.Add(1), 10)
}

func (c *Client) endpoint() (string, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("realtime url: %w", err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", errors.New("realtime url must be http(s) or ws(s)")
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/realtime/v1/websocket"
	q := url.Values{}
	q.Set("apikey", c.cfg.APIKey)
	q.Set("vsn", protocolVsn)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
