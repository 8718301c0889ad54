package presence

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/tidwall/gjson"

	"roomsync/internal/config"
	"roomsync/internal/identity"
	"roomsync/pkg/interfaces"
	"roomsync/pkg/types"
)

// ModuleID is the router subscription key of the presence tracker.
const ModuleID = "presence"

// Status is how the overlay badges a participant.
type Status string

const (
	StatusContributor Status = "contributor"
	StatusActive      Status = "active"
	StatusNone        Status = "none"
)

// Participant is one active user as last reported by the relay.
type Participant struct {
	Name      string    `json:"name"`
	LastSeen  time.Time `json:"lastSeen"`
	SessionID string    `json:"sessionId"`
}

// Contributor is a known project contributor.
type Contributor struct {
	ID             string `json:"id,omitempty"`
	Name           string `json:"name"`
	Firstname      string `json:"firstname,omitempty"`
	GithubUsername string `json:"githubUsername,omitempty"`
}

// Tracker keeps the set of active participants and known contributors.
// The newest relay snapshot always replaces the whole set.
type Tracker struct {
	cfg      *config.PresenceConfig
	sender   interfaces.Sender
	identity interfaces.IdentityProvider
	logger   *slog.Logger
	now      func() time.Time

	mu           sync.RWMutex
	users        map[string]Participant
	contributors []Contributor
	normalized   map[string]struct{}
	listeners    []func([]Participant)
}

// NewTracker creates a tracker that requests snapshots through sender.
func NewTracker(cfg *config.PresenceConfig, sender interfaces.Sender, identity interfaces.IdentityProvider, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		cfg:        cfg,
		sender:     sender,
		identity:   identity,
		logger:     logger.With("component", ModuleID),
		now:        time.Now,
		users:      make(map[string]Participant),
		normalized: make(map[string]struct{}),
	}
}

// Register subscribes the tracker to every user-list spelling.
func (t *Tracker) Register(sub interfaces.Subscriber) error {
	handlers := make(map[string]interfaces.HandlerFunc, len(types.PresenceMessageTypes))
	for _, msgType := range types.PresenceMessageTypes {
		handlers[msgType] = t.handle
	}
	return sub.Subscribe(ModuleID, types.PresenceMessageTypes, handlers)
}

func (t *Tracker) handle(_ context.Context, msg types.Inbound) error {
	list, ok := msg.(*types.UserListMessage)
	if !ok {
		return nil
	}
	if err := t.HandleSnapshot(list); err != nil {
		t.logger.Warn("no user list in snapshot", "type", list.Type, "error", err)
	}
	return nil
}

// HandleSnapshot replaces the participant set with the users in msg.
// The most structured shape present wins. A payload with no user list leaves
// the current set untouched and returns ErrNoUserList.
func (t *Tracker) HandleSnapshot(msg *types.UserListMessage) error {
	doc := gjson.ParseBytes(msg.Raw)
	now := t.now()

	var users map[string]Participant
	switch {
	case doc.Get("payload.data.users").IsArray():
		users = t.structuredUsers(doc.Get("payload.data.users"), now)
	case doc.Get("data.users").IsArray():
		users = t.structuredUsers(doc.Get("data.users"), now)
	case doc.Get("users").IsArray():
		users = t.flatUsers(doc.Get("users"), now)
	default:
		return ErrNoUserList
	}

	var contributors []Contributor
	hasContributors := false
	for _, path := range []string{"payload.data.collaborators", "data.collaborators", "githubContributors"} {
		if list := doc.Get(path); list.IsArray() {
			contributors = parseContributors(list)
			hasContributors = true
			break
		}
	}

	t.mu.Lock()
	t.users = users
	if hasContributors {
		t.contributors = contributors
		t.normalized = lo.SliceToMap(contributors, func(c Contributor) (string, struct{}) {
			return identity.NormalizeName(c.Name), struct{}{}
		})
		delete(t.normalized, "")
	}
	t.mu.Unlock()

	t.logger.Debug("presence snapshot applied", "type", msg.Type, "users", len(users), "contributors", len(contributors))
	t.notify()
	return nil
}

// structuredUsers reads {id|sessionId, name, lastSeen} objects.
func (t *Tracker) structuredUsers(list gjson.Result, now time.Time) map[string]Participant {
	users := make(map[string]Participant)
	list.ForEach(func(_, u gjson.Result) bool {
		if p, ok := t.participant(u, now); ok {
			users[p.Name] = p
		}
		return true
	})
	return users
}

// flatUsers reads the oldest shape, a list of bare names. Entries that are
// objects are accepted too.
func (t *Tracker) flatUsers(list gjson.Result, now time.Time) map[string]Participant {
	fingerprint := t.identity.SessionFingerprint()
	users := make(map[string]Participant)
	list.ForEach(func(_, u gjson.Result) bool {
		if u.Type == gjson.String {
			name := strings.TrimSpace(u.String())
			if name != "" {
				users[name] = Participant{Name: name, LastSeen: now, SessionID: fingerprint}
			}
			return true
		}
		if p, ok := t.participant(u, now); ok {
			users[p.Name] = p
		}
		return true
	})
	return users
}

func (t *Tracker) participant(u gjson.Result, now time.Time) (Participant, bool) {
	if !u.IsObject() {
		return Participant{}, false
	}
	name := strings.TrimSpace(u.Get("name").String())
	if name == "" {
		return Participant{}, false
	}
	session := u.Get("id").String()
	if session == "" {
		session = u.Get("sessionId").String()
	}
	return Participant{Name: name, LastSeen: lastSeen(u.Get("lastSeen"), now), SessionID: session}, true
}

// lastSeen accepts epoch milliseconds or an RFC 3339 string; anything else means now.
func lastSeen(v gjson.Result, now time.Time) time.Time {
	switch v.Type {
	case gjson.Number:
		if ms := v.Int(); ms > 0 {
			return time.UnixMilli(ms)
		}
	case gjson.String:
		if ts, err := time.Parse(time.RFC3339, v.String()); err == nil {
			return ts
		}
	}
	return now
}

func parseContributors(list gjson.Result) []Contributor {
	var out []Contributor
	list.ForEach(func(_, c gjson.Result) bool {
		name := strings.TrimSpace(c.Get("name").String())
		if name == "" {
			return true
		}
		out = append(out, Contributor{
			ID:             c.Get("id").String(),
			Name:           name,
			Firstname:      c.Get("firstname").String(),
			GithubUsername: c.Get("github_username").String(),
		})
		return true
	})
	return out
}

// RequestRefresh asks the relay for a fresh user list.
func (t *Tracker) RequestRefresh() error {
	return t.sender.Send(types.NewRequest(types.MessageTypeGetUserLists))
}

// UserStatus badges name. Contributor wins over active.
func (t *Tracker) UserStatus(name string) Status {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.normalized) > 0 {
		if _, ok := t.normalized[identity.NormalizeName(name)]; ok {
			return StatusContributor
		}
	}
	if _, ok := t.users[name]; ok {
		return StatusActive
	}
	return StatusNone
}

// Sweep evicts participants not seen for longer than the user timeout and
// returns how many were removed.
func (t *Tracker) Sweep(now time.Time) int {
	t.mu.Lock()
	stale := lo.PickBy(t.users, func(_ string, p Participant) bool {
		return now.Sub(p.LastSeen) > t.cfg.UserTimeout
	})
	for name := range stale {
		delete(t.users, name)
	}
	t.mu.Unlock()

	if len(stale) > 0 {
		t.logger.Debug("evicted stale participants", "names", lo.Keys(stale))
		t.notify()
	}
	return len(stale)
}

// Users returns the active participants sorted by name.
func (t *Tracker) Users() []Participant {
	t.mu.RLock()
	users := lo.Values(t.users)
	t.mu.RUnlock()

	slices.SortFunc(users, func(a, b Participant) int { return strings.Compare(a.Name, b.Name) })
	return users
}

// Contributors returns the last known contributor list.
func (t *Tracker) Contributors() []Contributor {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.contributors)
}

// OnChange registers fn to receive the participant list after every change.
func (t *Tracker) OnChange(fn func([]Participant)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, fn)
}

func (t *Tracker) notify() {
	t.mu.RLock()
	listeners := slices.Clone(t.listeners)
	t.mu.RUnlock()
	if len(listeners) == 0 {
		return
	}

	users := t.Users()
	for _, fn := range listeners {
		fn(users)
	}
}

// Run sweeps and refreshes on the configured intervals until ctx is done.
func (t *Tracker) Run(ctx context.Context) error {
	sweep := time.NewTicker(t.cfg.CleanupInterval)
	defer sweep.Stop()
	refresh := time.NewTicker(t.cfg.RefreshInterval)
	defer refresh.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sweep.C:
			t.Sweep(t.now())
		case <-refresh.C:
			if err := t.RequestRefresh(); err != nil {
				t.logger.Warn("presence refresh failed", "error", err)
			}
		}
	}
}

// Cleanup implements interfaces.Component.
func (t *Tracker) Cleanup(bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.users = make(map[string]Participant)
	t.contributors = nil
	t.normalized = make(map[string]struct{})
	t.listeners = nil
}
