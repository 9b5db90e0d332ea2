package relay

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// ReconnectDelay is the fixed backoff between reconnect attempts.
const ReconnectDelay = 3 * time.Second

// Client maintains a role-tagged socket to a broker, reconnecting with a
// fixed backoff. A reentrancy guard keeps overlapping reconnect attempts
// from stacking up.
type Client struct {
	url  string
	role Role
	log  *slog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	closed atomic.Bool

	reconnecting atomic.Bool

	// OnMessage, when set, receives every inbound message.
	OnMessage func(Message)
}

// NewClient creates a relay client for the given broker URL and role.
func NewClient(url string, role Role, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{url: url, role: role, log: log}
}

// Connect dials the broker and starts the read loop.
func (c *Client) Connect() error {
	dialer := websocket.Dialer{HandshakeTimeout: HandshakeTimeout}
	conn, _, err := dialer.Dial(c.url+"?role="+string(c.role), nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(conn)
	return nil
}

// Send writes a message frame on the live connection.
func (c *Client) Send(t MessageType, content string) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return websocket.ErrCloseSent
	}
	return conn.WriteJSON(NewMessage(c.role, t, content))
}

// Close shuts the client down and stops reconnecting.
func (c *Client) Close() error {
	c.closed.Store(true)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			conn.Close()
			c.scheduleReconnect()
			return
		}
		if c.OnMessage != nil {
			c.OnMessage(msg)
		}
	}
}

// scheduleReconnect retries with a fixed delay. The guard ensures only one
// reconnect loop runs at a time.
func (c *Client) scheduleReconnect() {
	if c.closed.Load() {
		return
	}
	if !c.reconnecting.CompareAndSwap(false, true) {
		return
	}

	go func() {
		defer c.reconnecting.Store(false)
		for !c.closed.Load() {
			time.Sleep(ReconnectDelay)
			if err := c.Connect(); err != nil {
				c.log.Warn("relay reconnect failed", "role", string(c.role), "err", err)
				continue
			}
			c.log.Info("relay reconnected", "role", string(c.role))
			return
		}
	}()
}
