package pause

import "errors"

var (
	ErrInvalidDuration = errors.New("pause duration must be at least one minute")
	ErrNoActivePause   = errors.New("no pause is running")
	ErrNotLonger       = errors.New("extended pause must be longer than the current one")
)
