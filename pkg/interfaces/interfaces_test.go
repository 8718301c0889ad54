package interfaces_test

import (
	"context"
	"errors"
	"testing"

	"roomsync/pkg/interfaces"
	"roomsync/pkg/types"
)

// Mock implementations for testing

type mockSender struct{ sent []any }

func (m *mockSender) Send(v any) error { m.sent = append(m.sent, v); return nil }
func (m *mockSender) SendWithTimeout(ctx context.Context, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.Send(v)
}

type mockSubscriber struct{ ids []string }

func (m *mockSubscriber) Subscribe(moduleID string, msgTypes []string, handlers map[string]interfaces.HandlerFunc) error {
	m.ids = append(m.ids, moduleID)
	return nil
}
func (m *mockSubscriber) Unsubscribe(moduleID string) {}

type mockIdentity struct{}

func (mockIdentity) DisplayName() (string, bool)  { return "Alice", true }
func (mockIdentity) SessionFingerprint() string    { return "a1b2c3d4" }

type mockJournal struct{}

func (mockJournal) Record(ctx context.Context, entry *types.JournalEntry) error { return nil }
func (mockJournal) Recent(ctx context.Context, limit int) ([]*types.JournalEntry, error) {
	return nil, nil
}
func (mockJournal) HealthCheck(ctx context.Context) error { return nil }
func (mockJournal) Close() error                          { return nil }

type mockNotifier struct{}

func (mockNotifier) PauseStarted(types.PauseAnnouncement) {}
func (mockNotifier) PauseEnded(types.PauseEnd)            {}
func (mockNotifier) WarningRaised(types.WarningAlert)     {}
func (mockNotifier) WarningUpdated(types.WarningAlert)    {}
func (mockNotifier) WarningDismissed(string)              {}

// Architectural Validation Tests - Ensure interfaces are properly defined

func TestInterfaces_ArchitecturalCompliance(t *testing.T) {
	var _ interfaces.TimedSender = &mockSender{}
	var _ interfaces.Subscriber = &mockSubscriber{}
	var _ interfaces.IdentityProvider = mockIdentity{}
	var _ interfaces.Journal = mockJournal{}
	var _ interfaces.PauseNotifier = mockNotifier{}
	var _ interfaces.WarningNotifier = mockNotifier{}
}

func TestTimedSender_CancelledContext(t *testing.T) {
	s := &mockSender{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.SendWithTimeout(ctx, struct{}{}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if len(s.sent) != 0 {
		t.Errorf("nothing should be sent, got %d", len(s.sent))
	}
}

func TestModeratorFunc(t *testing.T) {
	var check interfaces.ModeratorCheck = interfaces.ModeratorFunc(func() bool { return true })
	if !check.IsModerator() {
		t.Error("ModeratorFunc should forward the function result")
	}
}
