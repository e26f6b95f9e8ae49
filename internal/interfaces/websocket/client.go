package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"lens-backend/internal/feed"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Browsers only send control frames on this stream.
	maxMessageSize = 4 * 1024

	sendBufferSize = 256
)

// Client is one browser connection.
type Client struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	logger *zap.Logger

	gone     chan struct{}
	goneOnce sync.Once
}

func newClient(conn *websocket.Conn, logger *zap.Logger) *Client {
	id := uuid.New().String()
	return &Client{
		id:     id,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		logger: logger.With(zap.String("connectionID", id)),
		gone:   make(chan struct{}),
	}
}

// enqueue runs under the feed's lock, so it never blocks. A client that
// cannot keep up is disconnected.
func (c *Client) enqueue(e feed.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		c.logger.Error("Failed to marshal feed event", zap.Error(err))
		return
	}
	select {
	case <-c.gone:
	case c.send <- data:
	default:
		c.logger.Warn("Closing slow feed stream")
		c.kill()
	}
}

func (c *Client) kill() {
	c.goneOnce.Do(func() { close(c.gone) })
}

// run pumps until either side ends the connection.
func (c *Client) run() {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.readPump()
	}()
	c.writePump()
	c.conn.Close()
	wg.Wait()
}

// readPump only watches for pongs and disconnects.
func (c *Client) readPump() {
	defer c.kill()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("Feed stream read error", zap.Error(err))
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.gone:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug("Failed to write feed event", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
