package ws

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client is one realtime connection. Outbound frames go through a bounded
// queue drained by the write pump; a full queue means the peer is not keeping
// up and the connection is dropped.
type Client struct {
	Handle string
	UserID int64

	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	subs   map[int64]struct{}
	closed bool
	done   chan struct{}
}

func NewClient(userID int64, conn *websocket.Conn, queueSize int) *Client {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Client{
		Handle: uuid.NewString(),
		UserID: userID,
		conn:   conn,
		send:   make(chan []byte, queueSize),
		subs:   make(map[int64]struct{}),
		done:   make(chan struct{}),
	}
}

// enqueue never blocks. It reports false when the client is closed or its
// queue is full.
func (c *Client) enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// close abandons queued frames and stops the pumps. Safe to call repeatedly.
func (c *Client) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// Done is closed when the client is torn down.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) subscribe(conversationID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.subs[conversationID] = struct{}{}
	return true
}

func (c *Client) unsubscribe(conversationID int64) {
	c.mu.Lock()
	delete(c.subs, conversationID)
	c.mu.Unlock()
}

func (c *Client) subscribed(conversationID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subs[conversationID]
	return ok && !c.closed
}

// Subscriptions lists the conversations the client receives live events for.
func (c *Client) Subscriptions() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]int64, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	return ids
}

// PumpConfig holds the keepalive timings of a connection.
type PumpConfig struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
}

func (p PumpConfig) withDefaults() PumpConfig {
	if p.WriteWait <= 0 {
		p.WriteWait = 10 * time.Second
	}
	if p.PongWait <= 0 {
		p.PongWait = 60 * time.Second
	}
	if p.PingPeriod <= 0 || p.PingPeriod >= p.PongWait {
		p.PingPeriod = p.PongWait * 9 / 10
	}
	if p.MaxMessageSize <= 0 {
		p.MaxMessageSize = 64 << 10
	}
	return p
}

// writePump is the only writer of the connection.
func (c *Client) writePump(cfg PumpConfig) {
	ticker := time.NewTicker(cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// readPump hands every text frame to handle until the peer goes away.
func (c *Client) readPump(cfg PumpConfig, handle func([]byte)) {
	c.conn.SetReadLimit(cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		handle(data)
	}
}
