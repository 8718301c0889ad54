package interfaces

import "errors"

// Common interface errors used across components
var (
	ErrNoIdentity   = errors.New("local participant identity is not available")
	ErrNotModerator = errors.New("operation requires moderator rights")
)
