package warning

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Aggregate is the set of distinct reporters of one problem type inside one
// cooldown window.
// FUNCTIONAL DISCOVERY: Fixed windows of floor(now/cooldown) keep every moderator
// client agreeing on which reports belong together without coordination
type Aggregate struct {
	AlertID     string
	ProblemType string
	Window      int64
	Reporters   []string
	FirstReport time.Time
	Resolved    bool
}

type windowKey struct {
	problemType string
	window      int64
}

type aggregate struct {
	Aggregate
	seen map[string]struct{}
}

func (a *aggregate) snapshot() Aggregate {
	out := a.Aggregate
	out.Reporters = slices.Clone(a.Reporters)
	return out
}

// Aggregator tracks reporters per (problem type, time window).
// ARCHITECTURAL DISCOVERY: Per-key state tracking with rollover cleanup prevents memory leaks
type Aggregator struct {
	mu       sync.Mutex
	cooldown time.Duration
	windows  map[windowKey]*aggregate
	latest   int64
	// pinned aggregates survive window rollover, keyed by alert id
	pinned map[string]windowKey
}

// NewAggregator creates an aggregator with the given window length.
func NewAggregator(cooldown time.Duration) *Aggregator {
	if cooldown <= 0 {
		cooldown = 2 * time.Minute
	}
	return &Aggregator{
		cooldown: cooldown,
		windows:  make(map[windowKey]*aggregate),
		pinned:   make(map[string]windowKey),
	}
}

// WindowOf returns the window index containing t.
func (a *Aggregator) WindowOf(t time.Time) int64 {
	return t.UnixMilli() / a.cooldown.Milliseconds()
}

// Add records reporter for problemType in the window of now. isNew is false
// when the reporter was already counted in that window. The window is taken
// from the local clock, not from the reporter's timestamp.
func (a *Aggregator) Add(problemType, reporter string, reportedAt, now time.Time) (agg Aggregate, isNew bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	window := a.WindowOf(now)
	if window > a.latest {
		a.latest = window
		a.cleanupLocked()
	}

	key := windowKey{problemType, window}
	entry, exists := a.windows[key]
	if !exists {
		// FUNCTIONAL DISCOVERY: First report opens the aggregate and fixes its alert identity
		entry = &aggregate{
			Aggregate: Aggregate{
				AlertID:     uuid.NewString(),
				ProblemType: problemType,
				Window:      window,
				FirstReport: reportedAt,
			},
			seen: make(map[string]struct{}),
		}
		a.windows[key] = entry
	}

	if _, dup := entry.seen[reporter]; dup {
		return entry.snapshot(), false
	}
	entry.seen[reporter] = struct{}{}
	entry.Reporters = append(entry.Reporters, reporter)
	// A new reporter reopens a resolved aggregate
	entry.Resolved = false
	return entry.snapshot(), true
}

// Current returns the aggregate of problemType in the window of now.
func (a *Aggregator) Current(problemType string, now time.Time) (Aggregate, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	entry, ok := a.windows[windowKey{problemType, a.WindowOf(now)}]
	if !ok {
		return Aggregate{}, false
	}
	return entry.snapshot(), true
}

// Pin keeps the aggregate of alertID alive across rollover until Unpin.
// It reports whether the aggregate is still retained.
func (a *Aggregator) Pin(alertID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for key, entry := range a.windows {
		if entry.AlertID == alertID {
			a.pinned[alertID] = key
			return true
		}
	}
	return false
}

// Unpin releases a pinned aggregate; it is dropped at the next rollover
// once its window is old.
func (a *Aggregator) Unpin(alertID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.pinned, alertID)
	a.cleanupLocked()
}

// Lookup returns the pinned aggregate of alertID.
func (a *Aggregator) Lookup(alertID string) (Aggregate, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	key, ok := a.pinned[alertID]
	if !ok {
		return Aggregate{}, false
	}
	entry, ok := a.windows[key]
	if !ok {
		return Aggregate{}, false
	}
	return entry.snapshot(), true
}

// Resolve marks every retained aggregate of problemType as resolved and
// reports whether there was one.
func (a *Aggregator) Resolve(problemType string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	found := false
	for key, entry := range a.windows {
		if key.problemType == problemType {
			entry.Resolved = true
			found = true
		}
	}
	return found
}

// Len is the number of retained aggregates.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.windows)
}

// Reset forgets everything.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.windows = make(map[windowKey]*aggregate)
	a.pinned = make(map[string]windowKey)
	a.latest = 0
}

// cleanupLocked keeps only the latest and the previous window, plus pinned ones.
// TECHNICAL DISCOVERY: Windows are never deleted explicitly, so rollover is the only bound
func (a *Aggregator) cleanupLocked() {
	keep := make(map[windowKey]struct{}, len(a.pinned))
	for _, key := range a.pinned {
		keep[key] = struct{}{}
	}
	for key := range a.windows {
		if _, ok := keep[key]; ok {
			continue
		}
		if key.window < a.latest-1 {
			delete(a.windows, key)
		}
	}
}
