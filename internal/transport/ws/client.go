package ws

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait       = 10 * time.Second
	sendBufferSize  = 32
	defaultPingRate = 30 * time.Second
)

// Client wraps one websocket connection. All writes go through the send
// channel into a single writer goroutine, so handlers for other connections
// never block on a slow socket.
type Client struct {
	ID   string
	conn *websocket.Conn

	send      chan Envelope
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{
		ID:   uuid.NewString(),
		conn: conn,
		send: make(chan Envelope, sendBufferSize),
		done: make(chan struct{}),
	}
}

// Send queues an envelope for delivery. If the client's buffer is full the
// message is dropped rather than stalling the caller; liveness checking will
// eventually reap a connection that never drains.
func (c *Client) Send(env Envelope) {
	select {
	case <-c.done:
	case c.send <- env:
	default:
		log.Printf("ws: dropping %s message to slow connection %s", env.Type, c.ID)
	}
}

// Close stops the writer and closes the underlying connection. Safe to call
// more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// writePump owns every write to the connection: queued envelopes, periodic
// heartbeat messages, and ping control frames for liveness.
func (c *Client) writePump(pingInterval time.Duration) {
	if pingInterval <= 0 {
		pingInterval = defaultPingRate
	}
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case env := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(env); err != nil {
				log.Printf("ws: write error on %s: %v", c.ID, err)
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
			if err := c.conn.WriteJSON(newEnvelope(TypeHeartbeat, nil, "")); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}
