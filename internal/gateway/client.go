package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/rs/zerolog"
)

const (
	// maxMessageSize is the maximum size in bytes of a single inbound WebSocket message.
	maxMessageSize = 4096

	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// readWait is how long the connection may stay silent before it is
	// considered dead. Any inbound frame, ping included, resets it.
	readWait = 90 * time.Second
)

// Client is a single WebSocket connection bound to one authenticated user.
// Each client runs two goroutines: readPump routes inbound frames to the
// hub, writePump drains the send channel to the socket.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	send   chan []byte
	log    zerolog.Logger

	// subscriptions is owned by the hub; every access happens under hub.mu.
	subscriptions map[string]struct{}

	// sendMu serialises sends against closeSend so a frame published while
	// the client is being torn down never lands on a closed channel.
	sendMu     sync.Mutex
	sendClosed bool
}

func newClient(hub *Hub, conn *websocket.Conn, userID string, sendBuffer int, logger zerolog.Logger) *Client {
	return &Client{
		hub:           hub,
		conn:          conn,
		userID:        userID,
		send:          make(chan []byte, sendBuffer),
		log:           logger.With().Str("user_id", userID).Logger(),
		subscriptions: make(map[string]struct{}),
	}
}

// readPump reads frames from the socket and routes them by type. It runs on
// the upgrade goroutine and tears the client down when the read loop exits.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.closeConn()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(readWait))

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug().Err(err).Msg("WebSocket read error")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(readWait))

		var frame clientFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			c.sendError("Invalid JSON")
			continue
		}

		switch frame.Type {
		case framePing:
			if data, err := Encode(EventPong, nil); err == nil {
				c.enqueue(data)
			}
		case frameSubscribe:
			if frame.ConversationID == "" {
				c.sendError("conversationId is required")
				continue
			}
			c.hub.subscribe(c, frame.ConversationID)
		case frameUnsubscribe:
			if frame.ConversationID == "" {
				c.sendError("conversationId is required")
				continue
			}
			c.hub.unsubscribe(c, frame.ConversationID)
		default:
			c.sendError("Unknown frame type")
		}
	}
}

// writePump writes messages from the send channel to the socket. It exits
// when the channel closes and is the only goroutine that writes data frames.
func (c *Client) writePump() {
	defer c.closeConn()

	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.log.Debug().Err(err).Msg("WebSocket write error")
			return
		}
	}
}

// sendError reports a rejected frame without closing the connection.
func (c *Client) sendError(message string) {
	if data, err := Encode(EventError, errorPayload{Error: message}); err == nil {
		c.enqueue(data)
	}
}

// enqueue hands a message to the write pump. If the buffer is full the
// client is too far behind to catch up; the message is dropped and the
// connection closed so backpressure never stalls the hub.
func (c *Client) enqueue(msg []byte) {
	c.sendMu.Lock()
	if c.sendClosed {
		c.sendMu.Unlock()
		return
	}
	select {
	case c.send <- msg:
		c.sendMu.Unlock()
	default:
		c.sendMu.Unlock()
		c.log.Warn().Msg("Client send buffer full, closing connection")
		c.hub.unregister(c)
		c.closeConn()
	}
}

// closeSend closes the send channel exactly once, releasing the write pump.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	if !c.sendClosed {
		c.sendClosed = true
		close(c.send)
	}
	c.sendMu.Unlock()
}

func (c *Client) closeConn() {
	if c.conn != nil {
		_ = c.conn.Close()
	}
}
