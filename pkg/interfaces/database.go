package interfaces

import (
	"context"

	"roomsync/pkg/types"
)

// Journal records relay traffic for the lifetime of the process.
// ARCHITECTURAL DISCOVERY: The hub depends on this interface rather than on
// sqlite so a disabled journal can be swapped for a no-op.
type Journal interface {
	// Record stores one frame. Failures are reported but never block dispatch.
	Record(ctx context.Context, entry *types.JournalEntry) error

	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]*types.JournalEntry, error)

	// HealthCheck verifies the store is usable.
	HealthCheck(ctx context.Context) error

	// Close drains pending writes and releases the store.
	Close() error
}
