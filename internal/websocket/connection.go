package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeBufferSize   = 100
	closeHandshakeMax = time.Second
)

type closeRequest struct {
	code   int
	reason string
	done   chan struct{}
}

// Connection wraps one relay socket for its whole lifetime.
// ARCHITECTURAL DISCOVERY: WebSocket writes must be serialized to prevent race conditions
// One writer goroutine owns the socket; everyone else hands it frames through writeCh
type Connection struct {
	conn         *websocket.Conn
	id           string
	writeCh      chan []byte // FUNCTIONAL DISCOVERY: 100 buffer absorbs snapshot bursts after reconnect
	closeCh      chan closeRequest
	writeTimeout time.Duration
	ctx          context.Context
	cancel       context.CancelFunc
	closeOnce    sync.Once
	logger       *slog.Logger
}

// NewConnection wraps a dialed socket and starts its writer.
func NewConnection(conn *websocket.Conn, writeTimeout time.Duration, logger *slog.Logger) *Connection {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	c := &Connection{
		conn:         conn,
		id:           id,
		writeCh:      make(chan []byte, writeBufferSize),
		closeCh:      make(chan closeRequest),
		writeTimeout: writeTimeout,
		ctx:          ctx,
		cancel:       cancel,
		logger:       logger.With("conn_id", id),
	}

	// Start the single writer goroutine
	go c.writeLoop()

	return c
}

// ID identifies this connection generation in logs.
func (c *Connection) ID() string { return c.id }

// Context is cancelled when the connection closes.
func (c *Connection) Context() context.Context { return c.ctx }

// Done is closed when the connection closes.
func (c *Connection) Done() <-chan struct{} { return c.ctx.Done() }

// ARCHITECTURAL DISCOVERY: Single writer goroutine pattern eliminates races
// writeCh is never closed; senders select on ctx instead so a late write cannot panic
func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.write(websocket.TextMessage, data); err != nil {
				c.logger.Warn("relay write failed", "error", err)
				c.Close()
				return
			}

		case req := <-c.closeCh:
			c.drain()
			msg := websocket.FormatCloseMessage(req.code, req.reason)
			if err := c.write(websocket.CloseMessage, msg); err != nil {
				c.logger.Debug("relay close frame not sent", "error", err)
			}
			close(req.done)
			return

		case <-c.ctx.Done():
			return
		}
	}
}

// drain flushes frames accepted before a close request so they precede the close frame.
func (c *Connection) drain() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.write(websocket.TextMessage, data); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Connection) write(messageType int, data []byte) error {
	// FUNCTIONAL DISCOVERY: Deadline per frame keeps a stalled relay from pinning the writer
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}

// WriteFrame hands an encoded frame to the writer.
func (c *Connection) WriteFrame(data []byte) error {
	return c.WriteFrameContext(context.Background(), data)
}

// WriteFrameContext hands an encoded frame to the writer, giving up when ctx
// ends or the writer does not accept it within the write timeout.
func (c *Connection) WriteFrameContext(ctx context.Context, data []byte) error {
	// Check if connection is closed
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	timer := time.NewTimer(c.writeTimeout)
	defer timer.Stop()

	select {
	case c.writeCh <- data:
		return nil
	case <-timer.C:
		return ErrWriteTimeout
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrWriteTimeout
		}
		return ctx.Err()
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// WriteJSON marshals v and hands it to the writer.
func (c *Connection) WriteJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}
	return c.WriteFrame(data)
}

// ReadLoop forwards every text frame to out until the socket fails or closes.
// The returned error explains why reading stopped.
func (c *Connection) ReadLoop(out chan<- []byte) error {
	defer c.Close()
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}
		if messageType != websocket.TextMessage {
			continue
		}
		select {
		case out <- data:
		case <-c.ctx.Done():
			return ErrConnectionClosed
		}
	}
}

// CloseWithReason flushes accepted frames, sends a close frame and tears the socket down.
func (c *Connection) CloseWithReason(code int, reason string) error {
	req := closeRequest{code: code, reason: reason, done: make(chan struct{})}
	select {
	case c.closeCh <- req:
		select {
		case <-req.done:
		case <-time.After(closeHandshakeMax):
		}
	case <-c.ctx.Done():
	case <-time.After(closeHandshakeMax):
	}
	return c.Close()
}

// ARCHITECTURAL DISCOVERY: Clean shutdown requires careful goroutine coordination
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		// Cancel context to stop goroutines
		c.cancel()

		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}
