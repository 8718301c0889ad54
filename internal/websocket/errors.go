package websocket

import "errors"

// Connection-related errors
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrWriteTimeout     = errors.New("write not accepted before timeout")
	ErrInvalidJSON      = errors.New("invalid JSON data")
)

// Client-related errors
var (
	ErrClientClosed       = errors.New("relay client closed")
	ErrReconnectExhausted = errors.New("relay reconnect attempts exhausted")
	ErrNilIdentity        = errors.New("identity provider cannot be nil")
)
