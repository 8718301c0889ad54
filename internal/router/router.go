package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"roomsync/pkg/interfaces"
	"roomsync/pkg/types"
)

// Subscription is one feature module's declared interest.
type Subscription struct {
	ModuleID string
	Types    []string
	Handlers map[string]interfaces.HandlerFunc
}

func (s *Subscription) wants(msgType string) bool {
	for _, t := range s.Types {
		if t == msgType {
			return true
		}
	}
	return false
}

// Router multiplexes the relay connection between feature modules.
// ARCHITECTURAL DISCOVERY: Pure routing logic without connection handling;
// the transport is reached only through interfaces.Sender
type Router struct {
	sender interfaces.Sender
	logger *slog.Logger

	journal    interfaces.Journal
	instanceID string

	mu       sync.RWMutex
	subs     []*Subscription
	liveness []func()
}

// NewRouter creates a new dispatch router
// FUNCTIONAL DISCOVERY: Dependency injection enables testing with a recording sender
func NewRouter(sender interfaces.Sender, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		sender: sender,
		logger: logger.With("component", "router"),
	}
}

// Subscribe registers or replaces moduleID's handlers. A replaced module keeps
// its original position in dispatch order.
func (r *Router) Subscribe(moduleID string, msgTypes []string, handlers map[string]interfaces.HandlerFunc) error {
	if moduleID == "" {
		return ErrEmptyModuleID
	}
	if len(msgTypes) == 0 {
		return ErrNoMessageTypes
	}
	for _, t := range msgTypes {
		if handlers[t] == nil {
			return fmt.Errorf("%w: %s for %s", ErrMissingHandler, moduleID, t)
		}
	}

	sub := &Subscription{
		ModuleID: moduleID,
		Types:    append([]string(nil), msgTypes...),
		Handlers: make(map[string]interfaces.HandlerFunc, len(handlers)),
	}
	for t, h := range handlers {
		sub.Handlers[t] = h
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.subs {
		if existing.ModuleID == moduleID {
			r.subs[i] = sub
			return nil
		}
	}
	r.subs = append(r.subs, sub)
	return nil
}

// Unsubscribe removes moduleID. Unknown ids are ignored.
func (r *Router) Unsubscribe(moduleID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.subs {
		if existing.ModuleID == moduleID {
			r.subs = append(r.subs[:i], r.subs[i+1:]...)
			return
		}
	}
}

// Subscribers lists module ids in dispatch order.
func (r *Router) Subscribers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, len(r.subs))
	for i, s := range r.subs {
		ids[i] = s.ModuleID
	}
	return ids
}

// OnLiveness registers a hook run on every pong from the relay.
func (r *Router) OnLiveness(hook func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.liveness = append(r.liveness, hook)
}

// WithJournal records every outbound message under instanceID.
// Must be called before the first Send.
func (r *Router) WithJournal(j interfaces.Journal, instanceID string) *Router {
	r.journal = j
	r.instanceID = instanceID
	return r
}

// Send delegates to the transport.
func (r *Router) Send(v any) error {
	if err := r.sender.Send(v); err != nil {
		return err
	}
	r.record(v)
	return nil
}

func (r *Router) record(v any) {
	if r.journal == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		r.logger.Warn("journal encode failed", "error", err)
		return
	}
	entry := &types.JournalEntry{
		InstanceID: r.instanceID,
		Direction:  types.DirectionOutbound,
		Type:       types.PeekType(data),
		Payload:    data,
		ReceivedAt: time.Now(),
	}
	if err := r.journal.Record(context.Background(), entry); err != nil {
		r.logger.Warn("journal write failed", "type", entry.Type, "error", err)
	}
}

// Dispatch applies built-in handling, then runs every matching subscriber
// handler in registration order. A failing handler never stops the others.
func (r *Router) Dispatch(ctx context.Context, msg types.Inbound) {
	msgType := msg.MessageType()

	r.mu.RLock()
	liveness := append([]func(){}, r.liveness...)
	type target struct {
		moduleID string
		handler  interfaces.HandlerFunc
	}
	var targets []target
	for _, s := range r.subs {
		if s.wants(msgType) {
			targets = append(targets, target{s.ModuleID, s.Handlers[msgType]})
		}
	}
	r.mu.RUnlock()

	// Built-in handling for well-known types
	switch m := msg.(type) {
	case *types.PongMessage:
		for _, hook := range liveness {
			r.invoke(ctx, "liveness", func(context.Context, types.Inbound) error {
				hook()
				return nil
			}, msg)
		}
	case *types.ErrorMessage:
		r.logger.Error("relay reported an error", "type", m.Type, "message", m.Text())
	case *types.RegisterResultMessage:
		r.logger.Info("relay accepted registration", "user", m.Payload.User.Name, "success", m.Payload.Success)
	case *types.UnknownMessage:
		if len(targets) == 0 {
			r.logger.Debug("dropping message with unrouted type", "type", m.Type)
		}
	}

	// FUNCTIONAL DISCOVERY: Continue delivery to other subscribers even if one fails
	for _, t := range targets {
		r.invoke(ctx, t.moduleID, t.handler, msg)
	}
}

func (r *Router) invoke(ctx context.Context, moduleID string, handler interfaces.HandlerFunc, msg types.Inbound) {
	if err := safeCall(ctx, handler, msg); err != nil {
		r.logger.Error("handler failed", "module", moduleID, "type", msg.MessageType(), "error", err)
	}
}

func safeCall(ctx context.Context, handler interfaces.HandlerFunc, msg types.Inbound) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, p)
		}
	}()
	return handler(ctx, msg)
}

// Reset drops every subscription and liveness hook.
func (r *Router) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = nil
	r.liveness = nil
}

// Cleanup implements interfaces.Component.
func (r *Router) Cleanup(bool) { r.Reset() }
