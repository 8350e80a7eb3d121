package storage

import (
	"database/sql"
	"fmt"
)

// createSchema creates all tables. Safe to call multiple times.
func createSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS polls (
	id TEXT PRIMARY KEY,
	question TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS options (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	poll_id TEXT NOT NULL REFERENCES polls(id) ON DELETE CASCADE,
	text TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_options_poll_id ON options(poll_id);

CREATE TABLE IF NOT EXISTS votes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	poll_id TEXT NOT NULL REFERENCES polls(id) ON DELETE CASCADE,
	option_id INTEGER NOT NULL REFERENCES options(id) ON DELETE CASCADE,
	voter_id TEXT NOT NULL,
	ip_address TEXT,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_votes_poll_voter ON votes(poll_id, voter_id);
CREATE INDEX IF NOT EXISTS idx_votes_addr_time ON votes(ip_address, created_at);
`
