package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Connection lifecycle states. Transitions only move forward:
// Connecting → Authenticated → Closed.
type connState int32

const (
	stateConnecting connState = iota
	stateAuthenticated
	stateClosed
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 64 * 1024

	sendBuffer = 32
)

// outFrame is the outbound wire envelope.
type outFrame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Conn is one authenticated realtime connection. It implements events.Sink:
// components hand it events, the write pump owns the socket.
type Conn struct {
	id        string
	userID    string
	fullName  string
	sessionID string

	ws   *websocket.Conn
	send chan outFrame

	mu    sync.Mutex
	state connState

	closeOnce sync.Once
	done      chan struct{}
}

func newConn(id string, ws *websocket.Conn) *Conn {
	return &Conn{
		id:    id,
		ws:    ws,
		send:  make(chan outFrame, sendBuffer),
		state: stateConnecting,
		done:  make(chan struct{}),
	}
}

// ID returns the connection's unique handle id. Presence uses it to tell a
// stale unregister from a current one.
func (c *Conn) ID() string { return c.id }

// UserID returns the authenticated identity bound at handshake time.
func (c *Conn) UserID() string { return c.userID }

// Send queues an event for delivery. It returns false when the connection
// is closed or its buffer is full; a full buffer closes the connection
// rather than blocking the caller on a slow client.
func (c *Conn) Send(event string, payload any) bool {
	c.mu.Lock()
	if c.state != stateAuthenticated {
		c.mu.Unlock()
		return false
	}
	c.mu.Unlock()

	select {
	case c.send <- outFrame{Type: event, Payload: payload}:
		return true
	case <-c.done:
		return false
	default:
		c.close()
		return false
	}
}

func (c *Conn) authenticate(userID, fullName, sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateConnecting {
		c.userID = userID
		c.fullName = fullName
		c.sessionID = sessionID
		c.state = stateAuthenticated
	}
}

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = stateClosed
		c.mu.Unlock()
		close(c.done)
		_ = c.ws.Close()
	})
}

// writePump drains the send channel onto the socket and keeps the
// connection alive with pings. It exits when the connection closes.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
