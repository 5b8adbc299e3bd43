package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/yourorg/teamhub/services/realtime-service/internal/protocol"
)

var (
	ErrClientClosed = errors.New("client closed")
	ErrBufferFull   = errors.New("send buffer full")
)

// Client owns one websocket connection for its lifetime. The hub enqueues
// envelopes; a single write pump drains them so per-connection delivery order
// matches enqueue order.
type Client struct {
	conn   *websocket.Conn
	send   chan protocol.Envelope
	userID string

	mu     sync.Mutex
	closed bool
}

func NewClient(conn *websocket.Conn, userID string, bufSize int) *Client {
	return &Client{
		conn:   conn,
		send:   make(chan protocol.Envelope, bufSize),
		userID: userID,
	}
}

func (c *Client) UserID() string { return c.userID }

// Enqueue hands an envelope to the write pump without blocking. A full buffer
// counts as a failed delivery so the hub prunes slow consumers instead of
// stalling a broadcast.
func (c *Client) Enqueue(env protocol.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.send <- env:
		return nil
	default:
		return ErrBufferFull
	}
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// WritePump serializes all writes on the connection and keeps it live with
// periodic pings. Returns when the send channel closes or a write fails;
// closing the conn on the way out unblocks the read loop.
func (c *Client) WritePump(pingInterval, writeDeadline time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case env, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
				return
			}
		}
	}
}
