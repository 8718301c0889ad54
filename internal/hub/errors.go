package hub

import "errors"

// Hub-specific error types
var (
	ErrHubAlreadyRunning = errors.New("hub is already running")
	ErrHubNotRunning     = errors.New("hub is not running")
	ErrMissingDependency = errors.New("hub requires an inbound source and a dispatcher")
)
