package broadcast

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 4096
	// Per-client send buffer.
	sendBuffer = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Dashboards connect from other origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client is a middleman between one WebSocket connection and the hub.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	channels map[string]bool
	mu       sync.RWMutex
}

// clientCommand is the inbound control message format.
type clientCommand struct {
	Action   string   `json:"action"`
	Channels []string `json:"channels,omitempty"`
}

// ServeWS upgrades an HTTP request into a hub client.
func ServeWS(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Printf("[broadcast] upgrade failed: %v", err)
		return
	}

	client := &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		channels: make(map[string]bool),
	}
	hub.register <- client

	go client.writePump()
	go client.readPump()

	env := newEnvelope("connection")
	env.Message = "connected"
	client.sendEnvelope(env)
}

func (c *Client) subscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channels[channel]
}

func (c *Client) subscriptionList() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	list := make([]string, 0, len(c.channels))
	for ch := range c.channels {
		list = append(list, ch)
	}
	return list
}

func (c *Client) sendEnvelope(env envelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}

// handleCommand processes a subscribe/unsubscribe/ping control message.
func (c *Client) handleCommand(raw []byte) {
	var cmd clientCommand
	if err := json.Unmarshal(raw, &cmd); err != nil {
		env := newEnvelope("error")
		env.Message = "invalid JSON"
		c.sendEnvelope(env)
		return
	}

	switch cmd.Action {
	case "subscribe":
		c.mu.Lock()
		for _, ch := range cmd.Channels {
			if validChannels[ch] {
				c.channels[ch] = true
			}
		}
		c.mu.Unlock()
		env := newEnvelope("subscribed")
		env.Channels = c.subscriptionList()
		c.sendEnvelope(env)

	case "unsubscribe":
		c.mu.Lock()
		for _, ch := range cmd.Channels {
			delete(c.channels, ch)
		}
		c.mu.Unlock()
		env := newEnvelope("unsubscribed")
		env.Channels = c.subscriptionList()
		c.sendEnvelope(env)

	case "ping":
		c.sendEnvelope(newEnvelope("pong"))

	default:
		env := newEnvelope("error")
		env.Message = "unknown action"
		c.sendEnvelope(env)
	}
}

// readPump pumps messages from the WebSocket connection to the hub.
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
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Printf("[broadcast] read error: %v", err)
			}
			return
		}
		c.handleCommand(message)
	}
}

// writePump pumps messages from the hub to the WebSocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
