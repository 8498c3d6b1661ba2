// ABOUTME: Database schema definitions for the merge journal
// ABOUTME: One append-only table of merge decisions, indexed by type and time
package db

import (
	"database/sql"
)

const schema = `
CREATE TABLE IF NOT EXISTS merge_log (
	id TEXT PRIMARY KEY,
	object_type TEXT NOT NULL,
	storage_key TEXT NOT NULL,
	decision TEXT NOT NULL CHECK(decision IN ('created', 'newer', 'stale', 'tie-incoming', 'tie-existing')),
	incoming_updated TEXT,
	stored_updated TEXT,
	merged_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_merge_log_type ON merge_log(object_type, merged_at DESC);
CREATE INDEX IF NOT EXISTS idx_merge_log_key ON merge_log(storage_key);
`

func InitSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
