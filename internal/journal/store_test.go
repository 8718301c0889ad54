package journal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"roomsync/internal/config"
	"roomsync/pkg/interfaces"
	"roomsync/pkg/types"
)

var _ interfaces.Journal = (*Store)(nil)

func setupTestJournal(t *testing.T, maxEntries int) *Store {
	t.Helper()
	cfg := &config.JournalConfig{Enabled: true, MaxEntries: maxEntries, Timeout: 5 * time.Second}
	s, err := Open(cfg, nil)
	if err != nil {
		t.Fatalf("Failed to open journal: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func entry(msgType string, n int) *types.JournalEntry {
	return &types.JournalEntry{
		InstanceID: "test-instance",
		Direction:  types.DirectionInbound,
		Type:       msgType,
		Payload:    []byte(fmt.Sprintf(`{"type":%q,"n":%d}`, msgType, n)),
		ReceivedAt: time.Date(2024, 3, 1, 10, 0, n, 0, time.UTC),
	}
}

func TestStore_RecordAndRecent(t *testing.T) {
	s := setupTestJournal(t, 100)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		e := entry("pong", i)
		if err := s.Record(ctx, e); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
		if e.ID != int64(i+1) {
			t.Errorf("Expected id %d, got %d", i+1, e.ID)
		}
	}

	entries, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].ID != 3 || entries[1].ID != 2 {
		t.Errorf("Expected newest first, got ids %d, %d", entries[0].ID, entries[1].ID)
	}
	if string(entries[0].Payload) != `{"type":"pong","n":2}` {
		t.Errorf("Payload not preserved: %s", entries[0].Payload)
	}
	if !entries[0].ReceivedAt.Equal(time.Date(2024, 3, 1, 10, 0, 2, 0, time.UTC)) {
		t.Errorf("ReceivedAt not preserved: %v", entries[0].ReceivedAt)
	}
	if entries[0].InstanceID != "test-instance" || entries[0].Direction != types.DirectionInbound {
		t.Errorf("Metadata not preserved: %+v", entries[0])
	}
}

func TestStore_PrunesToMaxEntries(t *testing.T) {
	s := setupTestJournal(t, 5)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		if err := s.Record(ctx, entry("userList", i)); err != nil {
			t.Fatalf("Record %d failed: %v", i, err)
		}
	}

	entries, err := s.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("Expected 5 retained entries, got %d", len(entries))
	}
	if entries[4].ID != 8 {
		t.Errorf("Expected oldest retained id 8, got %d", entries[4].ID)
	}
}

func TestStore_CountByType(t *testing.T) {
	s := setupTestJournal(t, 100)
	ctx := context.Background()

	for i, msgType := range []string{"pong", "pause", "pong", "warning"} {
		if err := s.Record(ctx, entry(msgType, i)); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	counts, err := s.CountByType(ctx)
	if err != nil {
		t.Fatalf("CountByType failed: %v", err)
	}
	if counts["pong"] != 2 || counts["pause"] != 1 || counts["warning"] != 1 {
		t.Errorf("Unexpected counts: %v", counts)
	}
}

func TestStore_RejectsInvalidEntries(t *testing.T) {
	s := setupTestJournal(t, 10)
	ctx := context.Background()

	tests := []struct {
		name  string
		entry *types.JournalEntry
	}{
		{"nil entry", nil},
		{"missing type", &types.JournalEntry{Direction: types.DirectionInbound}},
		{"bad direction", &types.JournalEntry{Direction: "sideways", Type: "pong"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.Record(ctx, tt.entry); !errors.Is(err, ErrInvalidEntry) {
				t.Errorf("Expected ErrInvalidEntry, got %v", err)
			}
		})
	}
}

func TestStore_EmptyPayloadAndDefaultTime(t *testing.T) {
	s := setupTestJournal(t, 10)
	ctx := context.Background()

	e := &types.JournalEntry{Direction: types.DirectionOutbound, Type: "heartbeat"}
	if err := s.Record(ctx, e); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if e.ReceivedAt.IsZero() {
		t.Error("ReceivedAt should default to now")
	}

	entries, err := s.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if string(entries[0].Payload) != "null" {
		t.Errorf("Expected null payload, got %s", entries[0].Payload)
	}
}

func TestStore_SeparateInstancesAreIsolated(t *testing.T) {
	a := setupTestJournal(t, 10)
	b := setupTestJournal(t, 10)
	ctx := context.Background()

	if err := a.Record(ctx, entry("pong", 1)); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	entries, err := b.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected an empty second journal, got %d entries", len(entries))
	}
}

func TestStore_ConcurrentWrites(t *testing.T) {
	s := setupTestJournal(t, 1000)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if err := s.Record(ctx, entry("userList", n%60)); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Concurrent Record failed: %v", err)
	}
	entries, err := s.Recent(ctx, 100)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(entries) != 50 {
		t.Errorf("Expected 50 entries, got %d", len(entries))
	}
}

func TestStore_HealthCheckAndClose(t *testing.T) {
	s := setupTestJournal(t, 10)
	ctx := context.Background()

	if err := s.HealthCheck(ctx); err != nil {
		t.Fatalf("HealthCheck failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Second Close should be a no-op, got %v", err)
	}
	if err := s.Record(ctx, entry("pong", 0)); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed after Close, got %v", err)
	}
	if err := s.HealthCheck(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed from HealthCheck, got %v", err)
	}
}
