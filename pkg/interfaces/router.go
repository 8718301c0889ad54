package interfaces

import (
	"context"

	"roomsync/pkg/types"
)

// HandlerFunc processes one inbound message of a subscribed type.
// A returned error is logged by the router and never stops other handlers.
type HandlerFunc func(ctx context.Context, msg types.Inbound) error

// Subscriber is the registration half of the dispatch router.
type Subscriber interface {
	// Subscribe registers or replaces the handlers of moduleID for msgTypes.
	// Every type must have a handler in handlers.
	Subscribe(moduleID string, msgTypes []string, handlers map[string]HandlerFunc) error

	// Unsubscribe removes every registration of moduleID.
	Unsubscribe(moduleID string)
}

// Dispatcher delivers decoded inbound messages.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg types.Inbound)
}
