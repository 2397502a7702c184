package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Connection represents the WebSocket connection of one participant
type Connection struct {
	ID            string
	ParticipantID string
	Conn          *websocket.Conn

	// Connection metadata
	ConnectedAt time.Time

	send   chan []byte
	config ConnectionConfig
	clock  clockwork.Clock

	pingMu   sync.Mutex
	lastPing time.Time

	sendOnce      sync.Once
	transportOnce sync.Once
}

// LastPing returns when the peer last answered a ping
func (c *Connection) LastPing() time.Time {
	c.pingMu.Lock()
	defer c.pingMu.Unlock()
	return c.lastPing
}

func (c *Connection) touch() {
	c.pingMu.Lock()
	c.lastPing = c.clock.Now()
	c.pingMu.Unlock()
}

// enqueue hands a frame to the write pump without blocking. It must only be
// called while the connection is registered.
func (c *Connection) enqueue(frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// closeSend stops the write pump after it flushes the queued frames
func (c *Connection) closeSend() {
	c.sendOnce.Do(func() {
		close(c.send)
	})
}

// closeTransport closes the socket, which unblocks the read pump
func (c *Connection) closeTransport() {
	c.transportOnce.Do(func() {
		if c.Conn == nil {
			return
		}
		if err := c.Conn.Close(); err != nil {
			log.Debug().Err(err).Str("connection_id", c.ID).Msg("closing WebSocket")
		}
	})
}

// writeImmediate writes a frame before the pumps are running
func (c *Connection) writeImmediate(messageType int, data []byte) error {
	c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return c.Conn.WriteMessage(messageType, data)
}

// writePump is the only goroutine writing to the socket once started
func (c *Connection) writePump() {
	ticker := c.clock.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.closeTransport()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if !ok {
				// Unregistered
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Str("participant_id", c.ParticipantID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.Chan():
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump delivers inbound frames to onMessage until the socket fails,
// then calls onClose exactly once.
func (c *Connection) readPump(onMessage func(message []byte), onClose func()) {
	defer func() {
		onClose()
		c.closeTransport()
	}()

	c.Conn.SetReadLimit(c.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		c.touch()
		return nil
	})

	for {
		messageType, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Str("participant_id", c.ParticipantID).
					Msg("unexpected WebSocket close error")
			}
			return
		}
		if messageType != websocket.TextMessage {
			log.Warn().
				Str("participant_id", c.ParticipantID).
				Int("message_type", messageType).
				Msg("ignoring non-text frame")
		} else {
			onMessage(message)
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	}
}
