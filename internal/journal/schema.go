package journal

import (
	"database/sql"
	"fmt"
)

// schema is applied once per store. The database lives in memory so there is
// nothing to migrate between versions.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS journal (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		instance_id TEXT NOT NULL,
		direction TEXT NOT NULL CHECK (direction IN ('in', 'out')),
		type TEXT NOT NULL,
		payload TEXT NOT NULL,
		received_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_journal_type ON journal(type)`,
}

// pragmas tuned for a process-lifetime scratch database
var pragmas = []string{
	"PRAGMA synchronous = OFF",
	"PRAGMA temp_store = MEMORY",
	"PRAGMA cache_size = -8000",
}

func applySchema(db *sql.DB) error {
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create journal schema: %w", err)
		}
	}
	return nil
}
