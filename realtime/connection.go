// Package realtime is the websocket transport: it upgrades sockets,
// pumps outbound envelopes and feeds inbound frames to a session.
package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"rodina-chat/domain"
	"rodina-chat/errors"
	"rodina-chat/observability"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// Connection wraps a websocket and coordinates outbound writes via a
// buffered channel. It is the contract.Sink handed to the fan-out
// registry; Deliver is safe for concurrent use.
type Connection struct {
	ID     string
	UserID string

	log     *slog.Logger
	ws      *websocket.Conn
	monitor *observability.Monitor
	send    chan []byte
	once    sync.Once
	close   chan struct{}
}

func NewConnection(log *slog.Logger, userID string, ws *websocket.Conn, bufferSize int, monitor *observability.Monitor) *Connection {
	return &Connection{
		ID:      uuid.NewString(),
		UserID:  userID,
		log:     log,
		ws:      ws,
		monitor: monitor,
		send:    make(chan []byte, bufferSize),
		close:   make(chan struct{}),
	}
}

// Start launches the write loop. It must be called exactly once per connection.
func (c *Connection) Start() {
	go c.writeLoop()
}

// Deliver encodes the envelope and enqueues it for the write loop. It
// blocks while the buffer is full until the publisher's delivery timeout
// expires, keeping backpressure bounded per recipient.
func (c *Connection) Deliver(ctx context.Context, e domain.Envelope) error {
	payload, err := domain.EncodeEnvelope(e)
	if err != nil {
		return err
	}
	select {
	case <-c.close:
		c.monitor.DeliveryFailed()
		return errors.ErrConnectionClosed
	case c.send <- payload:
		return nil
	case <-ctx.Done():
		// The buffer stayed full for the whole delivery window.
		c.monitor.DeliveryFailed()
		return fmt.Errorf("%w: %w", errors.ErrSendBufferFull, ctx.Err())
	}
}

// Close terminates the connection and stops the write loop.
func (c *Connection) Close(code int, reason string) {
	c.once.Do(func() {
		close(c.close)
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
		_ = c.ws.Close()
	})
}

func (c *Connection) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.close:
			return
		case payload := <-c.send:
			if err := c.writeMessage(payload); err != nil {
				c.monitor.DeliveryFailed()
				c.log.Debug("Write loop stopping", "connection", c.ID, "error", err)
				return
			}
			c.monitor.EnvelopeSent()
		case <-ticker.C:
			if err := c.writePing(); err != nil {
				return
			}
		}
	}
}

func (c *Connection) writeMessage(payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

func (c *Connection) writePing() error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.PingMessage, nil)
}
