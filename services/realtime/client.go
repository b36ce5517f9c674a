package realtime

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"wayfinder/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// State is the lifecycle position of a connection.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticated
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateOpen:
		return "open"
	}
	return "closed"
}

const (
	closeUnauthenticated = 4401
	closeGoingAway       = websocket.CloseGoingAway
	closeSlowConsumer    = websocket.CloseTryAgainLater
	closeIdle            = websocket.CloseNormalClosure

	writeWait    = 10 * time.Second
	maxFrameSize = 4096
)

var (
	ErrHubClosed        = errors.New("realtime hub is shut down")
	ErrNotAuthenticated = errors.New("connection is not authenticated")
)

// Client is one live connection. A user may hold several.
type Client struct {
	ID     string
	UserID string

	conn   *websocket.Conn
	hub    *Hub
	send   chan []byte
	done   chan struct{}
	state  atomic.Int32
	once   sync.Once
	code   int
	reason string
}

func newClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	c := &Client{
		ID:     uuid.New().String(),
		UserID: userID,
		conn:   conn,
		hub:    hub,
		send:   make(chan []byte, hub.cfg.SendBuffer),
		done:   make(chan struct{}),
	}
	c.state.Store(int32(StateAuthenticated))
	return c
}

func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) transition(from, to State) bool {
	return c.state.CompareAndSwap(int32(from), int32(to))
}

// enqueue never blocks; it reports false when the connection is closed or
// its buffer is full.
func (c *Client) enqueue(msg []byte) bool {
	if c.State() != StateOpen {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) sendEnvelope(t models.EventType, payload any) bool {
	env, err := models.NewEnvelope(t, payload)
	if err != nil {
		return false
	}
	msg, err := json.Marshal(env)
	if err != nil {
		return false
	}
	return c.enqueue(msg)
}

// closeWith moves the client to Closed, drops it from the hub and signals
// the write pump to send a close frame with code.
func (c *Client) closeWith(code int, reason string) {
	c.once.Do(func() {
		c.code = code
		c.reason = reason
		c.state.Store(int32(StateClosed))
		c.hub.Unregister(c)
		close(c.done)
	})
}

func (c *Client) readPump() {
	defer c.closeWith(closeIdle, "")

	idle := c.hub.cfg.IdleTimeout
	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(idle))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(idle))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.hub.logger.Debug("realtime read ended",
					zap.String("connectionId", c.ID),
					zap.Error(err),
				)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(idle))

		var frame models.InboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			continue
		}
		if frame.Type == models.EventPing {
			c.sendEnvelope(models.EventPong, nil)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.cfg.IdleTimeout * 9 / 10)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		c.closeWith(closeIdle, "")
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(c.code, c.reason),
				time.Now().Add(writeWait))
			return
		}
	}
}
