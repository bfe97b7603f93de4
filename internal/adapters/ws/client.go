// Package ws is the signaling transport: a reconnecting-capable
// websocket client speaking the meeting protocol. It carries no
// business logic; retry policy belongs to the session controller.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/MishthiJain8/joinright/internal/core"
	"github.com/MishthiJain8/joinright/internal/domain"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var ErrBackpressure = errors.New("backpressure")

// wireMessage is the framing every protocol message travels in.
type wireMessage struct {
	Type    core.EventKind  `json:"type"`
	From    domain.RemoteID `json:"from,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client implements core.SignalTransport over one websocket at a time.
type Client struct {
	url        string
	sendBuffer int

	mu           sync.Mutex
	conn         *websocket.Conn
	send         chan []byte
	connDone     chan struct{}
	onEvent      func(core.Event)
	onDisconnect func(error)
}

func NewClient(serverURL string, sendBuffer int) *Client {
	if sendBuffer <= 0 {
		sendBuffer = 32
	}
	return &Client{url: serverURL, sendBuffer: sendBuffer}
}

func (c *Client) OnEvent(fn func(core.Event)) {
	c.mu.Lock()
	c.onEvent = fn
	c.mu.Unlock()
}

func (c *Client) OnDisconnect(fn func(error)) {
	c.mu.Lock()
	c.onDisconnect = fn
	c.mu.Unlock()
}

// Connect dials the signaling server. At most one connection is active;
// connecting while connected is an error, not an implicit reconnect.
func (c *Client) Connect(ctx context.Context, local *domain.User, room domain.RoomID) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return &core.TransportError{Op: "connect", Err: errors.New("already connected")}
	}
	c.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return &core.TransportError{Op: "connect", Err: err}
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	send := make(chan []byte, c.sendBuffer)
	done := make(chan struct{})

	c.mu.Lock()
	c.conn = conn
	c.send = send
	c.connDone = done
	c.mu.Unlock()

	log.Info().Str("module", "ws").Str("url", c.url).Str("room", string(room)).Str("user", string(local.ID)).Msg("signaling connected")

	go c.writePump(conn, send, done)
	go c.readPump(conn, done)
	return nil
}

// Send marshals the payload and queues it. A full queue surfaces as
// backpressure instead of blocking the caller.
func (c *Client) Send(kind core.EventKind, payload any) error {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return &core.TransportError{Op: "send", Err: err}
		}
		raw = b
	}
	data, err := json.Marshal(wireMessage{Type: kind, Payload: raw})
	if err != nil {
		return &core.TransportError{Op: "send", Err: err}
	}

	c.mu.Lock()
	send := c.send
	done := c.connDone
	c.mu.Unlock()
	if send == nil {
		return &core.TransportError{Op: "send", Err: errors.New("not connected")}
	}
	select {
	case send <- data:
		return nil
	case <-done:
		return &core.TransportError{Op: "send", Err: errors.New("connection closed")}
	default:
		return &core.TransportError{Op: "send", Err: ErrBackpressure}
	}
}

func (c *Client) writePump(conn *websocket.Conn, send <-chan []byte, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case data := <-send:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "ws").Msg("writePump set deadline")
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "ws").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump delivers events in arrival order; per-peer ordering follows
// from the single loop.
func (c *Client) readPump(conn *websocket.Conn, done <-chan struct{}) {
	defer func() {
		log.Info().Str("module", "ws").Msg("readPump closing")
	}()
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.dropConnection(conn, err, done)
			return
		}
		var msg wireMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Error().Err(err).Str("module", "ws").Msg("bad json")
			continue
		}
		c.mu.Lock()
		fn := c.onEvent
		c.mu.Unlock()
		if fn != nil {
			fn(core.Event{Kind: msg.Type, From: msg.From, Payload: msg.Payload})
		}
	}
}

// dropConnection clears state and reports the disconnect once, unless
// the close was deliberate.
func (c *Client) dropConnection(conn *websocket.Conn, err error, done <-chan struct{}) {
	deliberate := false
	select {
	case <-done:
		deliberate = true
	default:
	}

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		c.send = nil
		c.connDone = nil
	}
	fn := c.onDisconnect
	c.mu.Unlock()
	_ = conn.Close()

	if deliberate {
		return
	}
	log.Warn().Err(err).Str("module", "ws").Msg("signaling disconnected")
	if fn != nil {
		fn(err)
	}
}

// Close drops the connection without firing the disconnect handler.
// Safe to call when not connected, and safe to call twice.
func (c *Client) Close() {
	c.mu.Lock()
	conn := c.conn
	done := c.connDone
	c.conn = nil
	c.send = nil
	c.connDone = nil
	c.mu.Unlock()
	if done != nil {
		close(done)
	}
	if conn != nil {
		_ = conn.Close()
	}
}
