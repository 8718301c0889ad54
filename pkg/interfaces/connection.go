package interfaces

import "context"

// Sender puts one outbound message on the relay connection.
// ARCHITECTURAL DISCOVERY: Feature modules only ever see this abstraction so
// transport failures, queueing and reconnection stay invisible to them.
type Sender interface {
	// Send marshals v and delivers it now or after the next successful connect.
	// Only values that cannot be encoded produce an error.
	Send(v any) error
}

// TimedSender is implemented by transports that can report a stalled writer.
type TimedSender interface {
	Sender

	// SendWithTimeout behaves like Send but fails with a timeout error when the
	// writer does not accept the frame in time. The frame is re-queued.
	SendWithTimeout(ctx context.Context, v any) error
}

// Component is anything the lifecycle controller tears down on page unload.
type Component interface {
	// Cleanup releases timers and state. isRefresh distinguishes a page refresh
	// from a final departure.
	Cleanup(isRefresh bool)
}
