package app

import (
	"log/slog"
	"sync"
	"time"

	"roomsync/pkg/interfaces"
	"roomsync/pkg/types"
)

const defaultEventBacklog = 100

// Notifier turns pause and warning notifications into a numbered event feed
// the overlay polls. Older events fall off once the backlog is full.
type Notifier struct {
	logger  *slog.Logger
	backlog int
	now     func() time.Time

	mu     sync.Mutex
	seq    uint64
	events []types.Event
}

// NewNotifier creates a notifier keeping the last backlog events.
func NewNotifier(backlog int, logger *slog.Logger) *Notifier {
	if backlog <= 0 {
		backlog = defaultEventBacklog
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		logger:  logger.With("component", "notifier"),
		backlog: backlog,
		now:     time.Now,
	}
}

func (n *Notifier) push(e types.Event) {
	n.mu.Lock()
	n.seq++
	e.Seq = n.seq
	e.At = n.now()
	n.events = append(n.events, e)
	if over := len(n.events) - n.backlog; over > 0 {
		n.events = append([]types.Event(nil), n.events[over:]...)
	}
	n.mu.Unlock()

	n.logger.Info("event", "kind", e.Kind, "seq", e.Seq)
}

// Since returns the retained events with a sequence number above seq.
func (n *Notifier) Since(seq uint64) []types.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]types.Event, 0, len(n.events))
	for _, e := range n.events {
		if e.Seq > seq {
			out = append(out, e)
		}
	}
	return out
}

func (n *Notifier) PauseStarted(a types.PauseAnnouncement) {
	n.push(types.Event{Kind: types.EventPauseStarted, Pause: &a})
}

func (n *Notifier) PauseEnded(e types.PauseEnd) {
	n.push(types.Event{Kind: types.EventPauseEnded, PauseEnd: &e})
}

// WarningRaised is where the overlay plays the alert sound.
func (n *Notifier) WarningRaised(a types.WarningAlert) {
	n.push(types.Event{Kind: types.EventWarningRaised, Alert: &a, ProblemType: a.ProblemType})
}

func (n *Notifier) WarningUpdated(a types.WarningAlert) {
	n.push(types.Event{Kind: types.EventWarningUpdated, Alert: &a, ProblemType: a.ProblemType})
}

func (n *Notifier) WarningDismissed(problemType string) {
	n.push(types.Event{Kind: types.EventWarningDismissed, ProblemType: problemType})
}

// Cleanup implements interfaces.Component.
func (n *Notifier) Cleanup(bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = nil
}

var (
	_ interfaces.PauseNotifier   = (*Notifier)(nil)
	_ interfaces.WarningNotifier = (*Notifier)(nil)
	_ interfaces.Component       = (*Notifier)(nil)
)
