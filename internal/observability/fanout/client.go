package fanout

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/flowgrid/platform/internal/platform/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 30 * time.Second
	pingPeriod     = 25 * time.Second
	maxMessageSize = 512
)

// Client is one dashboard websocket connection subscribed to a single
// execution's timeline.
type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	executionID string
	send        chan []byte
	log         *logger.Logger
}

// NewClient builds a Client.
func NewClient(hub *Hub, conn *websocket.Conn, executionID string, log *logger.Logger) *Client {
	return &Client{hub: hub, conn: conn, executionID: executionID, send: make(chan []byte, 256), log: log}
}

// ReadPump drains the connection for pongs/close frames; dashboard
// clients never send data, only pings keep the connection alive.
func (c *Client) ReadPump() {
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
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("dashboard websocket read error", "error", err)
			}
			return
		}
	}
}

// WritePump forwards broadcast frames to the connection and keeps it
// alive with periodic pings, each event sent as its own text frame so
// dashboard clients can parse one JSON object per message.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
