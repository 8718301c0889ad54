package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	retry "github.com/avast/retry-go/v5"
	"github.com/gorilla/websocket"

	"roomsync/internal/config"
	"roomsync/pkg/interfaces"
	"roomsync/pkg/types"
)

const (
	inboundBufferSize = 256
	handshakeTimeout  = 10 * time.Second
)

// Close reasons sent with code 1000.
const (
	ReasonRefresh = "Page refresh"
	ReasonCleanup = "Cleanup"
)

type stopper interface {
	Stop() bool
}

// Client owns the single relay connection of the process.
// ARCHITECTURAL DISCOVERY: Every feature module shares this one socket through the router;
// only the client opens or closes it, so Connect is the single idempotent entry point
type Client struct {
	cfg      *config.RelayConfig
	identity interfaces.IdentityProvider
	dialer   *websocket.Dialer
	logger   *slog.Logger
	inbound  chan []byte

	ctx    context.Context
	cancel context.CancelFunc

	mu             sync.Mutex
	state          State
	conn           *Connection
	queue          [][]byte
	flushing       bool
	attempts       int
	generation     uint64
	registered     bool
	exhausted      bool
	closed         bool
	lastErr        error
	reconnectTimer stopper
	onOpen         []func()

	// afterFunc schedules reconnects; tests replace it to observe backoff.
	afterFunc func(d time.Duration, f func()) stopper
}

// NewClient builds a disconnected client. Nothing is dialed until Connect or Send.
func NewClient(cfg *config.RelayConfig, identity interfaces.IdentityProvider, logger *slog.Logger) (*Client, error) {
	if identity == nil {
		return nil, ErrNilIdentity
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		cfg:      cfg,
		identity: identity,
		dialer:   &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		logger:   logger.With("component", "relay"),
		inbound:  make(chan []byte, inboundBufferSize),
		ctx:      ctx,
		cancel:   cancel,
		state:    StateDisconnected,
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
	}, nil
}

// Inbound delivers raw frames in arrival order across all connection generations.
func (c *Client) Inbound() <-chan []byte { return c.inbound }

// OnOpen registers a hook run after every successful connect, once the queue
// is flushed and registration was attempted.
func (c *Client) OnOpen(hook func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onOpen = append(c.onOpen, hook)
}

// State reports the current lifecycle position.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the terminal failure, if any.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// QueueLen reports how many frames wait for the next connection.
func (c *Client) QueueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Connect dials the relay unless a socket is open, opening, or already
// scheduled by the backoff timer.
func (c *Client) Connect() {
	c.mu.Lock()
	if c.closed || c.exhausted || c.reconnectTimer != nil {
		c.mu.Unlock()
		return
	}
	switch c.state {
	case StateConnecting, StateOpen, StateRegistered, StateClosing:
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	go c.dial(gen)
}

func (c *Client) dial(gen uint64) {
	ws, _, err := c.dialer.DialContext(c.ctx, c.cfg.URL, nil)
	if err != nil {
		c.logger.Warn("relay dial failed", "url", c.cfg.URL, "error", err)
		c.mu.Lock()
		if gen == c.generation && !c.closed {
			c.state = StateDisconnected
			c.scheduleReconnectLocked()
		}
		c.mu.Unlock()
		return
	}

	conn := NewConnection(ws, c.cfg.WriteTimeout, c.logger)

	c.mu.Lock()
	if gen != c.generation || c.closed {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.state = StateOpen
	c.attempts = 0
	c.registered = false
	c.flushing = true
	hooks := append([]func(){}, c.onOpen...)
	c.mu.Unlock()

	c.logger.Info("relay connected", "conn_id", conn.ID(), "generation", gen)

	go c.readLoop(gen, conn)
	go c.heartbeatLoop(conn)

	c.flush(conn)

	if err := c.register(conn); errors.Is(err, interfaces.ErrNoIdentity) {
		go c.registerWithRetry(conn)
	}

	for _, hook := range hooks {
		hook()
	}
}

// flush drains the outbound queue in FIFO order. Sends that race with the
// flush are queued behind it.
func (c *Client) flush(conn *Connection) {
	for {
		c.mu.Lock()
		if c.conn != conn || len(c.queue) == 0 {
			c.flushing = false
			c.mu.Unlock()
			return
		}
		frame := c.queue[0]
		c.queue = c.queue[1:]
		c.mu.Unlock()

		if err := conn.WriteFrame(frame); err != nil {
			c.mu.Lock()
			c.queue = append([][]byte{frame}, c.queue...)
			c.trimQueueLocked()
			c.flushing = false
			c.mu.Unlock()
			return
		}
	}
}

func (c *Client) register(conn *Connection) error {
	name, ok := c.identity.DisplayName()
	if !ok {
		return interfaces.ErrNoIdentity
	}

	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return ErrConnectionClosed
	}
	if c.registered {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	msg := types.NewIdentityMessage(types.MessageTypeRegister, name, c.identity.SessionFingerprint())
	if err := conn.WriteJSON(msg); err != nil {
		return err
	}

	c.mu.Lock()
	if c.conn == conn {
		c.registered = true
		c.state = StateRegistered
	}
	c.mu.Unlock()

	c.logger.Info("registered with relay", "username", name, "conn_id", conn.ID())
	return nil
}

// FUNCTIONAL DISCOVERY: The display name often renders a moment after the socket opens,
// so registration polls for it a bounded number of times instead of giving up
func (c *Client) registerWithRetry(conn *Connection) {
	err := retry.New(
		retry.Attempts(uint(c.cfg.RegisterAttempts)),
		retry.Delay(c.cfg.RegisterInterval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(conn.Context()),
	).Do(func() error {
		return c.register(conn)
	})
	if err != nil {
		c.logger.Warn("registration abandoned", "conn_id", conn.ID(), "error", err)
	}
}

func (c *Client) readLoop(gen uint64, conn *Connection) {
	err := conn.ReadLoop(c.inbound)

	c.mu.Lock()
	if gen != c.generation || c.closed || c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.registered = false
	c.flushing = false
	c.state = StateDisconnected
	c.logger.Warn("relay connection lost", "conn_id", conn.ID(), "error", err)
	c.scheduleReconnectLocked()
	c.mu.Unlock()
}

// heartbeatLoop announces liveness while conn is open. A missing reply never
// forces a reconnect; only socket failures do.
func (c *Client) heartbeatLoop(conn *Connection) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.drain()
			name, ok := c.identity.DisplayName()
			if !ok {
				continue
			}
			msg := types.NewIdentityMessage(types.MessageTypeHeartbeat, name, c.identity.SessionFingerprint())
			if err := conn.WriteJSON(msg); err != nil {
				c.logger.Debug("heartbeat not sent", "error", err)
			}
		case <-conn.Done():
			return
		case <-c.ctx.Done():
			return
		}
	}
}

// scheduleReconnectLocked arms the backoff timer or parks the client once the
// attempt budget is spent. Caller holds c.mu.
func (c *Client) scheduleReconnectLocked() {
	if c.attempts >= c.cfg.MaxReconnectAttempts {
		c.exhausted = true
		c.lastErr = ErrReconnectExhausted
		c.logger.Error("relay unreachable, giving up", "attempts", c.attempts, "error", ErrReconnectExhausted)
		return
	}

	c.attempts++
	delay := BackoffDelay(c.cfg.ReconnectDelay, c.attempts)
	c.logger.Info("relay reconnect scheduled",
		"attempt", c.attempts, "max_attempts", c.cfg.MaxReconnectAttempts, "delay", delay)

	c.reconnectTimer = c.afterFunc(delay, func() {
		c.mu.Lock()
		c.reconnectTimer = nil
		c.mu.Unlock()
		c.Connect()
	})
}

// Send marshals v and writes it now, or queues it and triggers Connect.
// Transport failures never surface here; only unencodable values do.
func (c *Client) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	c.sendFrame(data)
	return nil
}

func (c *Client) sendFrame(data []byte) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.logger.Debug("dropping frame after close")
		return
	}
	conn := c.conn
	// Frames still queued on an open socket go out first
	if conn == nil || c.flushing || len(c.queue) > 0 {
		c.enqueueLocked(data)
		pending := c.claimFlushLocked()
		c.mu.Unlock()
		if conn == nil {
			c.Connect()
		}
		if pending != nil {
			c.flush(pending)
		}
		return
	}
	c.mu.Unlock()

	if err := conn.WriteFrame(data); err != nil {
		c.requeue(data)
	}
}

// requeue keeps a frame the writer did not accept. On an open socket it
// waits at the head of the line for the next send or heartbeat.
func (c *Client) requeue(data []byte) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.enqueueLocked(data)
	open := c.conn != nil
	c.mu.Unlock()
	if !open {
		c.Connect()
	}
}

// claimFlushLocked marks a flush as running when frames wait on an open
// socket and returns that socket. Caller holds c.mu.
func (c *Client) claimFlushLocked() *Connection {
	if c.conn == nil || c.flushing || len(c.queue) == 0 {
		return nil
	}
	c.flushing = true
	return c.conn
}

// drain flushes frames left queued on the open socket.
func (c *Client) drain() {
	c.mu.Lock()
	pending := c.claimFlushLocked()
	c.mu.Unlock()
	if pending != nil {
		c.flush(pending)
	}
}

// SendWithTimeout is Send with a distinct failure when the writer stalls.
// A frame that times out is queued again and goes out ahead of the next
// send; a frame sent while disconnected is queued and reports success.
func (c *Client) SendWithTimeout(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	conn := c.conn
	if conn == nil || c.flushing || len(c.queue) > 0 {
		c.enqueueLocked(data)
		pending := c.claimFlushLocked()
		c.mu.Unlock()
		if conn == nil {
			c.Connect()
		}
		if pending != nil {
			c.flush(pending)
		}
		return nil
	}
	c.mu.Unlock()

	if err := conn.WriteFrameContext(ctx, data); err != nil {
		c.requeue(data)
		if errors.Is(err, ErrWriteTimeout) {
			return ErrWriteTimeout
		}
		if errors.Is(err, ErrConnectionClosed) {
			return nil
		}
		return err
	}
	return nil
}

// enqueueLocked appends to the outbound queue, dropping the oldest frame when
// the queue is full. Caller holds c.mu.
func (c *Client) enqueueLocked(data []byte) {
	c.queue = append(c.queue, data)
	c.trimQueueLocked()
}

func (c *Client) trimQueueLocked() {
	if over := len(c.queue) - c.cfg.QueueLimit; over > 0 {
		c.logger.Warn("outbound queue full, dropping oldest frames", "dropped", over, "limit", c.cfg.QueueLimit)
		c.queue = append([][]byte(nil), c.queue[over:]...)
	}
}

// Close unregisters, closes the socket with code 1000 and stops all timers.
// The client cannot be reopened.
func (c *Client) Close(isRefresh bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.state = StateClosing
	conn := c.conn
	c.conn = nil
	c.queue = nil
	c.registered = false
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.mu.Unlock()

	if conn != nil {
		if name, ok := c.identity.DisplayName(); ok {
			msg := types.NewIdentityMessage(types.MessageTypeUnregister, name, c.identity.SessionFingerprint())
			if err := conn.WriteJSON(msg); err != nil {
				c.logger.Debug("unregister not sent", "error", err)
			}
		}
		reason := ReasonCleanup
		if isRefresh {
			reason = ReasonRefresh
		}
		if err := conn.CloseWithReason(websocket.CloseNormalClosure, reason); err != nil {
			c.logger.Debug("relay socket close", "error", err)
		}
	}

	c.cancel()

	c.mu.Lock()
	c.state = StateDisconnected
	c.mu.Unlock()
	c.logger.Info("relay client closed", "refresh", isRefresh)
}

// Cleanup implements interfaces.Component.
func (c *Client) Cleanup(isRefresh bool) { c.Close(isRefresh) }
