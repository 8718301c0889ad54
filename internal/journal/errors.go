package journal

import "errors"

var (
	ErrClosed       = errors.New("journal is closed")
	ErrWriteTimeout = errors.New("journal write timed out")
	ErrInvalidEntry = errors.New("journal entry is invalid")
)
