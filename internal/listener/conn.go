// Package listener accepts websocket connections and owns the dispatch
// boundary between the wire and the engine.
package listener

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// PingPeriod is how often the server pings each websocket. Browsers
// only pong in response to pings, so this is the slowest rate at which
// an idle client proves liveness. Any heartbeat timeout must exceed it
// or idle connections get swept before their first pong.
const PingPeriod = 15 * time.Second

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Conn wraps one websocket client. A single writer goroutine owns all
// writes; everything else queues through Send.
type Conn struct {
	id  string
	ws  *websocket.Conn
	out chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func newConn(ws *websocket.Conn) *Conn {
	return &Conn{
		id:   uuid.New().String(),
		ws:   ws,
		out:  make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

func (c *Conn) ID() string {
	return c.id
}

// Send queues envelope bytes for the writer. A full buffer means a
// client that is not keeping up; the message is dropped rather than
// blocking the caller.
func (c *Conn) Send(data []byte) {
	select {
	case <-c.done:
	case c.out <- data:
	default:
		slog.Warn("dropping message to slow client", "conn", c.id)
	}
}

// Close shuts the connection down with a close frame. Idempotent.
func (c *Conn) Close(reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		deadline := time.Now().Add(writeWait)
		if err := c.ws.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
			slog.Debug("writing close frame", "conn", c.id, "error", err)
		}
		if err := c.ws.Close(); err != nil {
			slog.Debug("closing websocket", "conn", c.id, "error", err)
		}
	})
}

// writeLoop drains the send queue and keeps the ping cadence. Exits on
// write failure or Close.
func (c *Conn) writeLoop() {
	ticker := time.NewTicker(PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.out:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				slog.Debug("writing to client", "conn", c.id, "error", err)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				slog.Debug("pinging client", "conn", c.id, "error", err)
				return
			}
		}
	}
}

// readLoop delivers each inbound message to handle, refreshing the read
// deadline and reporting liveness on every pong. Returns when the
// transport errors or closes.
func (c *Conn) readLoop(onPong func(), handle func([]byte)) {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		onPong()
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("reading from client", "conn", c.id, "error", err)
			}
			return
		}
		handle(data)
	}
}
