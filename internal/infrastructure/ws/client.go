package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024 * 1024
)

// Client is one websocket connection. A connection belongs to at most one
// room at a time; roomID is empty until a join succeeds.
type Client struct {
	ID string

	conn *connWrapper
	send chan *WSMessage

	roomID   string
	username string
	mu       sync.RWMutex
}

func NewClient(conn *websocket.Conn, id string) *Client {
	return &Client{
		ID:   id,
		conn: newConnWrapper(conn),
		send: make(chan *WSMessage, 64), // buffered to avoid dead-locks on slow clients
	}
}

func (c *Client) RoomID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomID
}

func (c *Client) Username() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username
}

func (c *Client) setRoom(roomID, username string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomID = roomID
	c.username = username
}

func (c *Client) clearRoom() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomID = ""
}

// trySend enqueues without blocking; false means the buffer was full.
func (c *Client) trySend(msg *WSMessage) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// ReadPump decodes inbound frames and hands them to the gateway. It owns
// the connection's read side and triggers disconnect cleanup on exit.
func (c *Client) ReadPump(g *Gateway) {
	defer func() {
		g.Disconnect(c)
		_ = c.conn.Close()
	}()

	c.conn.conn.SetReadLimit(maxMessageSize)
	c.conn.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.conn.SetPongHandler(func(string) error {
		c.conn.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("ws read error (client %s): %v", c.ID, err)
			}
			break
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.trySend(NewError(c.RoomID(), "malformed frame"))
			continue
		}

		g.Dispatch(c, env)
	}
}

// WritePump drains the send buffer onto the socket and keeps the connection
// alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error (client %s): %v", c.ID, err)
				return
			}

		case <-ticker.C:
			if err := c.conn.Ping(); err != nil {
				return
			}
		}
	}
}
