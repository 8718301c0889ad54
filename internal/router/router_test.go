package router

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"roomsync/pkg/interfaces"
	"roomsync/pkg/types"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []any
}

func (s *recordingSender) Send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, v)
	return nil
}

func activeUsers() types.Inbound {
	msg, err := types.Decode([]byte(`{"type":"activeUsers","users":["Alice","Bob"]}`))
	if err != nil {
		panic(err)
	}
	return msg
}

func handlerFor(msgType string, fn interfaces.HandlerFunc) map[string]interfaces.HandlerFunc {
	return map[string]interfaces.HandlerFunc{msgType: fn}
}

// FUNCTIONAL VALIDATION TEST: A panicking or failing handler does not stop later subscribers
func TestRouter_DispatchIsolation(t *testing.T) {
	tests := []struct {
		name    string
		failing interfaces.HandlerFunc
	}{
		{"panic", func(context.Context, types.Inbound) error { panic("boom") }},
		{"error", func(context.Context, types.Inbound) error { return errors.New("boom") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRouter(&recordingSender{}, nil)
			var ranB bool

			if err := r.Subscribe("A", []string{types.MessageTypeActiveUsers}, handlerFor(types.MessageTypeActiveUsers, tt.failing)); err != nil {
				t.Fatal(err)
			}
			if err := r.Subscribe("B", []string{types.MessageTypeActiveUsers}, handlerFor(types.MessageTypeActiveUsers, func(context.Context, types.Inbound) error {
				ranB = true
				return nil
			})); err != nil {
				t.Fatal(err)
			}

			r.Dispatch(context.Background(), activeUsers())

			if !ranB {
				t.Error("Subscriber B must run even though A failed")
			}
		})
	}
}

func TestRouter_DispatchOnlyMatchingTypes(t *testing.T) {
	r := NewRouter(&recordingSender{}, nil)
	var got []string

	record := func(id string) interfaces.HandlerFunc {
		return func(_ context.Context, msg types.Inbound) error {
			got = append(got, id+":"+msg.MessageType())
			return nil
		}
	}

	r.Subscribe("presence", types.PresenceMessageTypes, map[string]interfaces.HandlerFunc{
		types.MessageTypeActiveUsers:     record("presence"),
		types.MessageTypeUserLists:       record("presence"),
		types.MessageTypeUserListsUpdate: record("presence"),
	})
	r.Subscribe("pause", []string{types.MessageTypePause}, handlerFor(types.MessageTypePause, record("pause")))
	r.Subscribe("audit", []string{types.MessageTypeActiveUsers}, handlerFor(types.MessageTypeActiveUsers, record("audit")))

	r.Dispatch(context.Background(), activeUsers())

	want := []string{"presence:activeUsers", "audit:activeUsers"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Dispatch order = %v, want %v", got, want)
	}
}

func TestRouter_SubscribeReplaceKeepsOrder(t *testing.T) {
	r := NewRouter(&recordingSender{}, nil)
	noop := func(context.Context, types.Inbound) error { return nil }

	r.Subscribe("a", []string{types.MessageTypePong}, handlerFor(types.MessageTypePong, noop))
	r.Subscribe("b", []string{types.MessageTypePong}, handlerFor(types.MessageTypePong, noop))
	r.Subscribe("a", []string{types.MessageTypePause}, handlerFor(types.MessageTypePause, noop))

	if got := r.Subscribers(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Subscribers() = %v", got)
	}

	var called bool
	r.Subscribe("b", []string{types.MessageTypePong}, handlerFor(types.MessageTypePong, func(context.Context, types.Inbound) error {
		called = true
		return nil
	}))
	r.Dispatch(context.Background(), &types.PongMessage{Type: types.MessageTypePong})
	if !called {
		t.Error("Replacement handler should be used")
	}

	r.Unsubscribe("a")
	r.Unsubscribe("missing")
	if got := r.Subscribers(); !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("Subscribers() after unsubscribe = %v", got)
	}
}

func TestRouter_SubscribeValidation(t *testing.T) {
	noop := func(context.Context, types.Inbound) error { return nil }
	r := NewRouter(&recordingSender{}, nil)

	if err := r.Subscribe("", []string{"pong"}, handlerFor("pong", noop)); !errors.Is(err, ErrEmptyModuleID) {
		t.Errorf("Expected ErrEmptyModuleID, got %v", err)
	}
	if err := r.Subscribe("m", nil, nil); !errors.Is(err, ErrNoMessageTypes) {
		t.Errorf("Expected ErrNoMessageTypes, got %v", err)
	}
	if err := r.Subscribe("m", []string{"pong", "pause"}, handlerFor("pong", noop)); !errors.Is(err, ErrMissingHandler) {
		t.Errorf("Expected ErrMissingHandler, got %v", err)
	}
}

func TestRouter_PongRunsLivenessHooks(t *testing.T) {
	r := NewRouter(&recordingSender{}, nil)
	var calls int
	r.OnLiveness(func() { panic("first hook fails") })
	r.OnLiveness(func() { calls++ })

	r.Dispatch(context.Background(), &types.PongMessage{Type: types.MessageTypePong})
	r.Dispatch(context.Background(), &types.PongMessage{Type: types.MessageTypePong})

	if calls != 2 {
		t.Errorf("Expected liveness hook on every pong, got %d", calls)
	}
}

func TestRouter_UnknownTypesReachDeclaredSubscribers(t *testing.T) {
	r := NewRouter(&recordingSender{}, nil)
	msg, _ := types.Decode([]byte(`{"type":"gif_update","url":"x"}`))

	var got types.Inbound
	r.Subscribe("gif", []string{"gif_update"}, handlerFor("gif_update", func(_ context.Context, m types.Inbound) error {
		got = m
		return nil
	}))

	r.Dispatch(context.Background(), msg)
	if _, ok := got.(*types.UnknownMessage); !ok {
		t.Errorf("Expected UnknownMessage delivery, got %T", got)
	}
}

func TestRouter_SendDelegates(t *testing.T) {
	s := &recordingSender{}
	r := NewRouter(s, nil)

	req := types.NewRequest(types.MessageTypeGetReactions)
	if err := r.Send(req); err != nil {
		t.Fatal(err)
	}
	if len(s.sent) != 1 || s.sent[0] != req {
		t.Errorf("Send should delegate to the transport, got %v", s.sent)
	}
}

type memJournal struct {
	mu      sync.Mutex
	entries []*types.JournalEntry
}

func (j *memJournal) Record(_ context.Context, e *types.JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
	return nil
}

func (j *memJournal) Recent(context.Context, int) ([]*types.JournalEntry, error) { return nil, nil }
func (j *memJournal) HealthCheck(context.Context) error                          { return nil }
func (j *memJournal) Close() error                                               { return nil }

func TestRouter_SendJournalsOutbound(t *testing.T) {
	j := &memJournal{}
	r := NewRouter(&recordingSender{}, nil).WithJournal(j, "instance-1")

	if err := r.Send(types.NewRequest(types.MessageTypeGetUserLists)); err != nil {
		t.Fatal(err)
	}

	if len(j.entries) != 1 {
		t.Fatalf("Expected 1 journal entry, got %d", len(j.entries))
	}
	e := j.entries[0]
	if e.Direction != types.DirectionOutbound || e.Type != types.MessageTypeGetUserLists || e.InstanceID != "instance-1" {
		t.Errorf("Unexpected journal entry: %+v", e)
	}
}

func TestRouter_CleanupDropsSubscriptions(t *testing.T) {
	r := NewRouter(&recordingSender{}, nil)
	r.Subscribe("a", []string{"pong"}, handlerFor("pong", func(context.Context, types.Inbound) error { return nil }))
	r.OnLiveness(func() { t.Error("hook must be gone after cleanup") })

	r.Cleanup(false)
	r.Dispatch(context.Background(), &types.PongMessage{Type: types.MessageTypePong})

	if len(r.Subscribers()) != 0 {
		t.Error("Cleanup should remove every subscription")
	}
}

func TestRouter_ConcurrentSubscribeAndDispatch(t *testing.T) {
	r := NewRouter(&recordingSender{}, nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			r.Subscribe(string(rune('a'+i)), []string{"pong"}, handlerFor("pong", func(context.Context, types.Inbound) error { return nil }))
		}(i)
		go func() {
			defer wg.Done()
			r.Dispatch(context.Background(), &types.PongMessage{Type: types.MessageTypePong})
		}()
	}
	wg.Wait()
}
