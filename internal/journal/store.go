package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	retry "github.com/avast/retry-go/v5"
	"github.com/google/uuid"

	// ARCHITECTURAL DISCOVERY: Import SQLite driver but only reference in connection string
	_ "github.com/mattn/go-sqlite3"

	"roomsync/internal/config"
	"roomsync/pkg/types"
)

// Store is an in-memory sqlite journal of relay traffic. It implements
// interfaces.Journal.
type Store struct {
	db           *sql.DB
	cfg          *config.JournalConfig
	logger       *slog.Logger
	writeChannel chan writeOperation // TECHNICAL: Single-writer pattern for SQLite
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// Open creates a fresh journal. Each call gets its own private database.
func Open(cfg *config.JournalConfig, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dsn := fmt.Sprintf("file:journal-%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	// TECHNICAL DISCOVERY: An in-memory database disappears with its last connection,
	// so the pool is pinned to one connection that never expires
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applySchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{
		db:           db,
		cfg:          cfg,
		logger:       logger.With("component", "journal"),
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	s.wg.Add(1)
	go s.writeLoop()

	return s, nil
}

// writeLoop processes all write operations in a single goroutine
func (s *Store) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case op := <-s.writeChannel:
			// FUNCTIONAL DISCOVERY: A failed write is retried exactly once
			err := retry.New(
				retry.Attempts(2),
				retry.Delay(50*time.Millisecond),
				retry.DelayType(retry.FixedDelay),
				retry.LastErrorOnly(true),
			).Do(func() error {
				return op.operation(s.db)
			})
			if err != nil {
				s.logger.Warn("journal write failed after retry", "error", err)
			}
			op.result <- err

		case <-s.shutdown:
			s.logger.Debug("journal write loop shutting down")
			return
		}
	}
}

// executeWrite queues a write operation and waits for completion
func (s *Store) executeWrite(operation func(*sql.DB) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	s.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case s.writeChannel <- writeOperation{operation: operation, result: result}:
	case <-time.After(s.cfg.Timeout):
		return ErrWriteTimeout
	case <-s.shutdown:
		return ErrClosed
	}

	select {
	case err := <-result:
		return err
	case <-time.After(s.cfg.Timeout):
		return ErrWriteTimeout
	}
}

// Record stores entry and trims the journal to the configured size. The
// assigned row id is written back into entry.
func (s *Store) Record(ctx context.Context, entry *types.JournalEntry) error {
	if entry == nil || entry.Type == "" {
		return ErrInvalidEntry
	}
	if entry.Direction != types.DirectionInbound && entry.Direction != types.DirectionOutbound {
		return fmt.Errorf("%w: direction %q", ErrInvalidEntry, entry.Direction)
	}
	if entry.ReceivedAt.IsZero() {
		entry.ReceivedAt = time.Now()
	}
	payload := string(entry.Payload)
	if payload == "" {
		payload = "null"
	}

	return s.executeWrite(func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		res, err := tx.ExecContext(ctx, `
			INSERT INTO journal (instance_id, direction, type, payload, received_at)
			VALUES (?, ?, ?, ?, ?)
		`, entry.InstanceID, entry.Direction, entry.Type, payload, entry.ReceivedAt.UTC())
		if err != nil {
			return fmt.Errorf("failed to insert journal entry: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read journal entry id: %w", err)
		}

		// FUNCTIONAL DISCOVERY: Trimming inside the insert transaction keeps the row count bounded at all times
		if _, err := tx.ExecContext(ctx, `DELETE FROM journal WHERE id <= ?`, id-int64(s.cfg.MaxEntries)); err != nil {
			return fmt.Errorf("failed to prune journal: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit journal entry: %w", err)
		}
		entry.ID = id
		return nil
	})
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]*types.JournalEntry, error) {
	if limit <= 0 {
		limit = s.cfg.MaxEntries
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, instance_id, direction, type, payload, received_at
		FROM journal
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*types.JournalEntry
	for rows.Next() {
		var entry types.JournalEntry
		var payload string
		if err := rows.Scan(&entry.ID, &entry.InstanceID, &entry.Direction, &entry.Type, &payload, &entry.ReceivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan journal row: %w", err)
		}
		entry.Payload = []byte(payload)
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating journal rows: %w", err)
	}
	return entries, nil
}

// CountByType returns how many retained entries have each message type.
func (s *Store) CountByType(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM journal GROUP BY type`)
	if err != nil {
		return nil, fmt.Errorf("failed to count journal entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int)
	for rows.Next() {
		var msgType string
		var n int
		if err := rows.Scan(&msgType, &n); err != nil {
			return nil, fmt.Errorf("failed to scan journal count: %w", err)
		}
		counts[msgType] = n
	}
	return counts, rows.Err()
}

// HealthCheck validates that the journal can still be read.
func (s *Store) HealthCheck(ctx context.Context) error {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("journal ping failed: %w", err)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM journal").Scan(&n); err != nil {
		return fmt.Errorf("journal read test failed: %w", err)
	}
	return nil
}

// Close stops the writer and drops the database. Safe to call twice.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.shutdown)
	s.wg.Wait()

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close journal: %w", err)
	}
	return nil
}
