package ws

import (
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/huenest/relay/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 64
)

// Client is one websocket connection. Its read pump handles inbound events
// sequentially, so a single connection's events are processed in order; the
// write pump drains the buffered send channel.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan Envelope

	id      string
	userID  string // verified identity when connection auth is enabled, else ""
	role    models.Role
	limiter *rate.Limiter
}

func newClient(hub *Hub, conn *websocket.Conn, userID string, role models.Role) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan Envelope, sendBufferSize),
		id:      uuid.NewString(),
		userID:  userID,
		role:    role,
		limiter: rate.NewLimiter(hub.eventRate, hub.eventBurst),
	}
}

func (c *Client) ID() string { return c.id }

// Identity returns the connection-level identity established at upgrade
// time. verified is false when connection auth is disabled, in which case
// the relay trusts the per-event user_id fields.
func (c *Client) Identity() (string, models.Role, bool) {
	return c.userID, c.role, c.userID != ""
}

// Enqueue hands an event to the write pump without blocking. A full buffer
// means the client is too slow; the event is dropped and the registry logs it.
func (c *Client) Enqueue(env Envelope) bool {
	select {
	case c.send <- env:
		return true
	default:
		return false
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("connection %s read error: %v", c.id, err)
			}
			return
		}
		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			c.Enqueue(Envelope{Type: EventError, Data: ErrorPayload{Message: "malformed event"}})
			continue
		}
		if !c.limiter.Allow() {
			c.Enqueue(Envelope{Type: EventError, Data: ErrorPayload{Message: "too many requests"}})
			continue
		}
		c.hub.relay.Handle(c, ev)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case env, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(env); err != nil {
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
