package router

import "errors"

// Router-specific error types
var (
	ErrEmptyModuleID  = errors.New("module ID cannot be empty")
	ErrNoMessageTypes = errors.New("subscription must name at least one message type")
	ErrMissingHandler = errors.New("no handler for subscribed message type")
	ErrHandlerPanic   = errors.New("handler panicked")
)
