package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"roomsync/pkg/interfaces"
	"roomsync/pkg/types"
)

// Hub drains inbound relay frames and hands them to the router one at a time.
// ARCHITECTURAL DISCOVERY: Central coordination point for all inbound message flow;
// a single goroutine means feature handlers never run concurrently with each other
type Hub struct {
	source     <-chan []byte
	dispatcher interfaces.Dispatcher
	journal    interfaces.Journal // optional
	instanceID string
	logger     *slog.Logger

	// TECHNICAL DISCOVERY: RWMutex allows concurrent reads of running state
	mu              sync.RWMutex
	running         bool
	shutdownChannel chan struct{}
	done            chan struct{}

	statsMu   sync.Mutex
	processed int
	dropped   int
}

// Stats counts frames seen by the hub since construction.
type Stats struct {
	Processed int `json:"processed"`
	Dropped   int `json:"dropped"`
}

// NewHub creates a new hub
// ARCHITECTURAL DISCOVERY: Constructor pattern with dependency injection
// enables clean testing and component isolation
func NewHub(source <-chan []byte, dispatcher interfaces.Dispatcher, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		source:     source,
		dispatcher: dispatcher,
		logger:     logger.With("component", "hub"),
	}
}

// WithJournal records every decoded frame under instanceID.
func (h *Hub) WithJournal(journal interfaces.Journal, instanceID string) *Hub {
	h.journal = journal
	h.instanceID = instanceID
	return h
}

// Start begins hub processing
// FUNCTIONAL DISCOVERY: Single hub goroutine keeps arrival order end to end
func (h *Hub) Start(ctx context.Context) error {
	if h.source == nil || h.dispatcher == nil {
		return ErrMissingDependency
	}

	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.shutdownChannel = make(chan struct{})
	h.done = make(chan struct{})
	shutdown, done := h.shutdownChannel, h.done
	h.mu.Unlock()

	h.logger.Info("starting dispatch hub")
	go h.run(ctx, shutdown, done)
	return nil
}

// Stop halts processing and waits for the in-flight frame to finish.
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	close(h.shutdownChannel)
	done := h.done
	h.mu.Unlock()

	h.logger.Info("stopping dispatch hub")
	<-done
	return nil
}

// Running reports whether the loop is active.
func (h *Hub) Running() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// Stats returns a snapshot of the counters.
func (h *Hub) Stats() Stats {
	h.statsMu.Lock()
	defer h.statsMu.Unlock()
	return Stats{Processed: h.processed, Dropped: h.dropped}
}

// run is the main hub processing loop
// TECHNICAL DISCOVERY: Single select loop handles all coordination
func (h *Hub) run(ctx context.Context, shutdown <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer h.logger.Debug("hub processing stopped")

	for {
		select {
		case frame, ok := <-h.source:
			if !ok {
				h.logger.Info("inbound source closed")
				h.markStopped(shutdown)
				return
			}
			h.handleFrame(ctx, frame)

		case <-shutdown:
			return

		case <-ctx.Done():
			h.logger.Debug("hub context cancelled")
			return
		}
	}
}

func (h *Hub) markStopped(shutdown <-chan struct{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running && h.shutdownChannel == shutdown {
		h.running = false
		close(h.shutdownChannel)
	}
}

// handleFrame decodes, journals, then dispatches one frame
// FUNCTIONAL DISCOVERY: Malformed frames are dropped so one bad peer cannot stall the session
func (h *Hub) handleFrame(ctx context.Context, frame []byte) {
	msg, err := types.Decode(frame)
	if err != nil {
		h.logger.Warn("dropping malformed frame", "error", err, "bytes", len(frame))
		h.count(false)
		return
	}

	h.record(ctx, msg.MessageType(), frame)
	h.dispatcher.Dispatch(ctx, msg)
	h.count(true)
}

func (h *Hub) record(ctx context.Context, msgType string, frame []byte) {
	if h.journal == nil {
		return
	}
	entry := &types.JournalEntry{
		InstanceID: h.instanceID,
		Direction:  types.DirectionInbound,
		Type:       msgType,
		Payload:    json.RawMessage(append([]byte(nil), frame...)),
		ReceivedAt: time.Now(),
	}
	// TECHNICAL DISCOVERY: Journal errors are logged but never block delivery
	if err := h.journal.Record(ctx, entry); err != nil {
		h.logger.Warn("journal write failed", "type", msgType, "error", err)
	}
}

func (h *Hub) count(ok bool) {
	h.statsMu.Lock()
	defer h.statsMu.Unlock()
	if ok {
		h.processed++
	} else {
		h.dropped++
	}
}
