package reaction

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/samber/lo"

	"roomsync/pkg/interfaces"
	"roomsync/pkg/types"
)

// ModuleID is the router subscription key of the reaction store.
const ModuleID = "reactions"

// users is the set of display names that reacted with one emoji.
type users = map[string]struct{}

// Map is messageID -> emoji -> users. An empty user set is equivalent to absence.
type Map map[string]map[string]users

// Reaction is one renderable emoji badge.
type Reaction struct {
	Emoji string   `json:"emoji"`
	Count int      `json:"count"`
	Users []string `json:"users"`
	Mine  bool     `json:"mine"`
}

// Store holds the reaction state of every chat message. The relay snapshot is
// authoritative and always replaces local state.
type Store struct {
	sender   interfaces.Sender
	identity interfaces.IdentityProvider
	logger   *slog.Logger

	mu        sync.RWMutex
	reactions Map
	listeners []func()
}

// NewStore creates an empty store.
func NewStore(sender interfaces.Sender, identity interfaces.IdentityProvider, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		sender:    sender,
		identity:  identity,
		logger:    logger.With("component", ModuleID),
		reactions: make(Map),
	}
}

// Register subscribes the store to reaction snapshots.
func (s *Store) Register(sub interfaces.Subscriber) error {
	return sub.Subscribe(ModuleID, []string{types.MessageTypeUpdateReactions}, map[string]interfaces.HandlerFunc{
		types.MessageTypeUpdateReactions: s.handle,
	})
}

func (s *Store) handle(_ context.Context, msg types.Inbound) error {
	m, ok := msg.(*types.ReactionsMessage)
	if !ok || m.Data.Reactions == "" {
		return nil
	}
	if err := s.ApplySnapshot(m.Data.Reactions); err != nil {
		s.logger.Error("keeping previous reactions", "error", err)
	}
	return nil
}

// Toggle adds the local participant's emoji to messageID, or removes it when
// already present, and tells the relay. Without an identity nothing is sent.
func (s *Store) Toggle(messageID, emoji string) (types.ReactionAction, error) {
	name, ok := s.identity.DisplayName()
	if !ok {
		return "", interfaces.ErrNoIdentity
	}

	action := types.ReactionAdd
	if s.has(messageID, emoji, name) {
		action = types.ReactionRemove
	}

	update := types.ReactionUpdate{MessageID: messageID, Emoji: emoji, UserID: name, Action: action}
	if err := update.Validate(); err != nil {
		return "", err
	}
	if err := s.sender.Send(types.NewReactionUpdate(s.identity.SessionFingerprint(), update)); err != nil {
		return "", fmt.Errorf("send reaction: %w", err)
	}

	// Optimistic; the next snapshot overwrites it either way
	s.apply(update)
	s.notify()
	return action, nil
}

func (s *Store) has(messageID, emoji, name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.reactions[messageID][emoji][name]
	return ok
}

func (s *Store) apply(u types.ReactionUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch u.Action {
	case types.ReactionAdd:
		if s.reactions[u.MessageID] == nil {
			s.reactions[u.MessageID] = make(map[string]users)
		}
		if s.reactions[u.MessageID][u.Emoji] == nil {
			s.reactions[u.MessageID][u.Emoji] = make(users)
		}
		s.reactions[u.MessageID][u.Emoji][u.UserID] = struct{}{}
	case types.ReactionRemove:
		delete(s.reactions[u.MessageID][u.Emoji], u.UserID)
		s.pruneLocked(u.MessageID)
	}
}

// ApplySnapshot replaces the whole map with the serialized relay state
// {"messageId": {"emoji": ["user", ...]}}. On a parse error the previous
// state is kept.
func (s *Store) ApplySnapshot(serialized string) error {
	var raw map[string]map[string][]string
	if err := json.Unmarshal([]byte(serialized), &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}

	next := make(Map, len(raw))
	for messageID, emojis := range raw {
		for emoji, names := range emojis {
			set := lo.SliceToMap(lo.Compact(names), func(n string) (string, struct{}) { return n, struct{}{} })
			if len(set) == 0 {
				continue
			}
			if next[messageID] == nil {
				next[messageID] = make(map[string]users)
			}
			next[messageID][emoji] = set
		}
	}

	s.mu.Lock()
	s.reactions = next
	s.mu.Unlock()

	s.logger.Debug("reaction snapshot applied", "messages", len(next))
	s.notify()
	return nil
}

// pruneLocked drops empty emoji and empty messages. Callers hold mu.
func (s *Store) pruneLocked(messageID string) {
	emojis := s.reactions[messageID]
	for emoji, set := range emojis {
		if len(set) == 0 {
			delete(emojis, emoji)
		}
	}
	if len(emojis) == 0 {
		delete(s.reactions, messageID)
	}
}

// Reactions returns the badges of messageID, most used first then by emoji.
// Emoji without users never appear.
func (s *Store) Reactions(messageID string) []Reaction {
	name, _ := s.identity.DisplayName()

	s.mu.RLock()
	out := make([]Reaction, 0, len(s.reactions[messageID]))
	for emoji, set := range s.reactions[messageID] {
		if len(set) == 0 {
			continue
		}
		names := lo.Keys(set)
		slices.Sort(names)
		_, mine := set[name]
		out = append(out, Reaction{Emoji: emoji, Count: len(names), Users: names, Mine: mine && name != ""})
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b Reaction) int {
		if a.Count != b.Count {
			return b.Count - a.Count
		}
		return strings.Compare(a.Emoji, b.Emoji)
	})
	return out
}

// Snapshot returns a copy of the whole state in relay form.
func (s *Store) Snapshot() map[string]map[string][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]map[string][]string, len(s.reactions))
	for messageID, emojis := range s.reactions {
		for emoji, set := range emojis {
			if len(set) == 0 {
				continue
			}
			if out[messageID] == nil {
				out[messageID] = make(map[string][]string)
			}
			names := lo.Keys(set)
			slices.Sort(names)
			out[messageID][emoji] = names
		}
	}
	return out
}

// RequestSnapshot asks the relay for the current reaction state.
func (s *Store) RequestSnapshot() error {
	return s.sender.Send(types.NewRequest(types.MessageTypeGetReactions))
}

// OnChange registers fn to run after every state change.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Store) notify() {
	s.mu.RLock()
	listeners := slices.Clone(s.listeners)
	s.mu.RUnlock()
	for _, fn := range listeners {
		fn()
	}
}

// Cleanup implements interfaces.Component.
func (s *Store) Cleanup(bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reactions = make(Map)
	s.listeners = nil
}
