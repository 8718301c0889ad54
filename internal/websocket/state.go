package websocket

import (
	"math"
	"time"
)

// State is the lifecycle position of the relay connection.
//
// disconnected -> connecting -> open -> registered -> closing -> disconnected,
// with connecting -> disconnected on dial failure. After the reconnect budget
// is spent the client parks in disconnected until it is closed.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateRegistered
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateRegistered:
		return "registered"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// BackoffFactor is the growth rate between consecutive reconnect delays.
const BackoffFactor = 1.5

// BackoffDelay returns base * 1.5^(attempt-1) for attempt >= 1.
func BackoffDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(float64(base) * math.Pow(BackoffFactor, float64(attempt-1)))
}
