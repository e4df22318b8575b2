package network

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/MRamiBalles/Basecaster/internal/platform/metrics"
	"github.com/MRamiBalles/Basecaster/internal/session"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 1024
)

// ErrorPayload is the body of an ERROR message.
type ErrorPayload struct {
	RequestID string `json:"request_id,omitempty"`
	Reason    string `json:"reason"`
	Detail    string `json:"detail,omitempty"`
}

// Client is one WebSocket connection bound to a player's session.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	session *session.Session
	limiter *rate.Limiter

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// NewClient creates a client with the hub's buffer and rate settings.
func NewClient(hub *Hub, conn *websocket.Conn, sess *session.Session) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		session: sess,
		limiter: rate.NewLimiter(rate.Limit(hub.cfg.MaxMessagesPerSecond), hub.cfg.MessageBurst),
		send:    make(chan []byte, hub.cfg.ClientSendBuffer),
	}
}

// enqueue queues data without blocking. It reports false when the client is
// closed or its queue is full.
func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// ReadPump reads intents until the connection drops, then leaves the hub
// and releases the session.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
		c.hub.sessions.Release(c.session)
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
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				metrics.Get().RecordWSError()
				c.hub.logger.Warnf("read from %s: %v", c.session.PlayerID(), err)
			}
			return
		}
		metrics.Get().RecordWSMessage(true)
		c.handle(message)
	}
}

func (c *Client) handle(raw []byte) {
	if !c.limiter.Allow() {
		metrics.Get().RecordIntentThrottled()
		c.reply(MsgTypeError, ErrorPayload{Reason: ReasonThrottled})
		return
	}
	in, err := c.hub.validator.Parse(raw)
	if err != nil {
		metrics.Get().RecordIntentRejected()
		c.reply(MsgTypeError, ErrorPayload{Reason: ReasonInvalid, Detail: err.Error()})
		return
	}
	res := c.hub.dispatcher.Dispatch(context.Background(), c.session, in)
	c.reply(MsgTypeResult, res)
}

func (c *Client) reply(t MessageType, payload any) {
	data, err := encodeMessage(t, payload)
	if err != nil {
		c.hub.logger.Errorf("encode %s: %v", t, err)
		return
	}
	if !c.enqueue(data) {
		c.hub.logger.Warnf("reply to %s dropped", c.session.PlayerID())
	}
}

// WritePump writes queued messages and keeps the connection alive with pings.
func (c *Client) WritePump() {
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
				metrics.Get().RecordWSError()
				return
			}
			metrics.Get().RecordWSMessage(false)
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
