package types

import "errors"

// Specific error types keep decode and validation failures distinguishable for logging.
var (
	ErrMalformedFrame    = errors.New("frame is not valid JSON")
	ErrMissingType       = errors.New("frame has no type discriminator")
	ErrInvalidPayload    = errors.New("frame payload does not match its type")
	ErrInvalidAction     = errors.New("reaction action must be add or remove")
	ErrEmptyMessageID    = errors.New("message ID cannot be empty")
	ErrEmptyEmoji        = errors.New("emoji cannot be empty")
	ErrEmptyUserID       = errors.New("user ID cannot be empty")
	ErrNegativeDuration  = errors.New("pause duration cannot be negative")
	ErrEmptyProblemType  = errors.New("problem type cannot be empty")
	ErrEmptySessionToken = errors.New("session token cannot be empty")
)
