// Package relaytest runs an in-process relay for tests: it accepts clients,
// records every frame they send and forwards chosen message types to all
// connected peers the way the production relay does.
package relaytest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
)

// Frame is one message received from a client.
type Frame struct {
	Type string
	Raw  []byte
}

// Decode unmarshals the frame into v.
func (f Frame) Decode(v any) error {
	return json.Unmarshal(f.Raw, v)
}

// Close is a close frame received from a client.
type Close struct {
	Code   int
	Reason string
}

// Responder answers a received frame; returned values are sent back to the sender only.
type Responder func(f Frame) []any

type peer struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

func (p *peer) write(data []byte) error {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	p.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

// Relay is a fake relay server backed by httptest.
type Relay struct {
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu        sync.Mutex
	peers     map[*peer]struct{}
	frames    []Frame
	closes    []Close
	connects  int
	echo      map[string]bool
	responder Responder
	changed   chan struct{}
}

// Option configures a Relay.
type Option func(*Relay)

// WithEcho forwards frames of the given types to every connected client,
// including the sender.
func WithEcho(msgTypes ...string) Option {
	return func(r *Relay) {
		for _, typ := range msgTypes {
			r.echo[typ] = true
		}
	}
}

// WithResponder answers frames sent by a client.
func WithResponder(fn Responder) Option {
	return func(r *Relay) { r.responder = fn }
}

// New starts a relay that shuts down with the test.
func New(t testing.TB, opts ...Option) *Relay {
	t.Helper()
	r := &Relay{
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		peers:    make(map[*peer]struct{}),
		echo:     make(map[string]bool),
		changed:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.server = httptest.NewServer(http.HandlerFunc(r.handle))
	t.Cleanup(r.Close)
	return r
}

// URL is the ws:// address of the relay.
func (r *Relay) URL() string {
	return "ws" + strings.TrimPrefix(r.server.URL, "http") + "/ws"
}

func (r *Relay) handle(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}
	p := &peer{conn: conn}

	r.mu.Lock()
	r.peers[p] = struct{}{}
	r.connects++
	r.notifyLocked()
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.peers, p)
		r.notifyLocked()
		r.mu.Unlock()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ce, ok := err.(*websocket.CloseError); ok {
				r.mu.Lock()
				r.closes = append(r.closes, Close{Code: ce.Code, Reason: ce.Text})
				r.notifyLocked()
				r.mu.Unlock()
			}
			return
		}

		f := Frame{Type: gjson.GetBytes(data, "type").String(), Raw: data}

		r.mu.Lock()
		r.frames = append(r.frames, f)
		echo := r.echo[f.Type]
		responder := r.responder
		r.notifyLocked()
		r.mu.Unlock()

		if echo {
			r.broadcastRaw(data)
		}
		if responder != nil {
			for _, reply := range responder(f) {
				if b, err := json.Marshal(reply); err == nil {
					_ = p.write(b)
				}
			}
		}
	}
}

func (r *Relay) notifyLocked() {
	close(r.changed)
	r.changed = make(chan struct{})
}

func (r *Relay) snapshotPeers() []*peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*peer, 0, len(r.peers))
	for p := range r.peers {
		out = append(out, p)
	}
	return out
}

// Broadcast marshals v and sends it to every connected client.
func (r *Relay) Broadcast(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("relaytest: cannot marshal broadcast: %v", err))
	}
	r.broadcastRaw(data)
}

// BroadcastRaw sends data verbatim, which lets tests deliver malformed frames.
func (r *Relay) BroadcastRaw(data string) {
	r.broadcastRaw([]byte(data))
}

func (r *Relay) broadcastRaw(data []byte) {
	for _, p := range r.snapshotPeers() {
		_ = p.write(data)
	}
}

// DropAll closes every client socket without a close handshake.
func (r *Relay) DropAll() {
	for _, p := range r.snapshotPeers() {
		p.conn.Close()
	}
}

// Frames returns every frame received so far.
func (r *Relay) Frames() []Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Frame(nil), r.frames...)
}

// FramesOfType returns the received frames with the given type.
func (r *Relay) FramesOfType(typ string) []Frame {
	var out []Frame
	for _, f := range r.Frames() {
		if f.Type == typ {
			out = append(out, f)
		}
	}
	return out
}

// Closes returns the close frames received so far.
func (r *Relay) Closes() []Close {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Close(nil), r.closes...)
}

// Connects counts accepted connections over the relay's lifetime.
func (r *Relay) Connects() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connects
}

// Peers counts currently connected clients.
func (r *Relay) Peers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}

// WaitFor blocks until cond holds or the timeout expires.
func (r *Relay) WaitFor(t testing.TB, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		r.mu.Lock()
		changed := r.changed
		r.mu.Unlock()
		if cond() {
			return
		}
		select {
		case <-changed:
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			t.Fatalf("relaytest: timed out waiting for %s", what)
		}
	}
}

// WaitForFrames waits until at least n frames of typ arrived and returns them.
func (r *Relay) WaitForFrames(t testing.TB, typ string, n int, timeout time.Duration) []Frame {
	t.Helper()
	r.WaitFor(t, timeout, fmt.Sprintf("%d %q frames", n, typ), func() bool {
		return len(r.FramesOfType(typ)) >= n
	})
	return r.FramesOfType(typ)
}

// WaitForPeers waits until exactly n clients are connected.
func (r *Relay) WaitForPeers(t testing.TB, n int, timeout time.Duration) {
	t.Helper()
	r.WaitFor(t, timeout, fmt.Sprintf("%d peers", n), func() bool { return r.Peers() == n })
}

// Close stops the server and disconnects every client.
func (r *Relay) Close() {
	r.DropAll()
	r.server.Close()
}
