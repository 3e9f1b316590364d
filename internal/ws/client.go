package ws

import (
	"collab-docs-server/internal/domain"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20 // full document contents travel over the socket
	sendBufferSize = 64
)

// Client is one websocket connection joined to one document.
type Client struct {
	ID    string
	DocID uint64
	Ident domain.Identity

	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

// shutdown stops writePump. The send channel is never closed, so a broadcast
// racing a disconnect can only drop the message, never panic on a closed
// channel.
func (c *Client) shutdown() {
	c.closeOnce.Do(func() { close(c.done) })
}

// trySend queues a message without blocking. Delivery is fire-and-forget:
// when the buffer is full or the client is gone the message is dropped and
// the client re-syncs on its next join.
func (c *Client) trySend(data []byte) {
	if data == nil {
		return
	}
	select {
	case <-c.done:
	case c.send <- data:
	default:
		log.Debug().Str("client", c.ID).Uint64("document_id", c.DocID).Msg("send buffer full, dropping message")
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
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
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

// readPump consumes inbound events until the connection drops or the client
// sends leave-document.
func (c *Client) readPump() {
	defer c.conn.Close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var event Event
		if err := json.Unmarshal(raw, &event); err != nil {
			c.trySend(encodeEvent(EventError, ErrorPayload{Message: "malformed event"}))
			continue
		}

		if done := c.hub.handleEvent(c, event); done {
			return
		}
	}
}
