// ABOUTME: SQLite-backed merge journal recording every merge decision
// ABOUTME: Implements merge.Journal and serves recent-history queries for the CLI and MCP tools
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/harperreed/sfcrm/merge"
	"github.com/harperreed/sfcrm/models"
)

// DefaultRecentLimit bounds Recent when the caller passes no limit.
const DefaultRecentLimit = 50

// Entry is one journal row.
type Entry struct {
	ID              string            `json:"id"`
	ObjectType      models.ObjectType `json:"objectType"`
	StorageKey      string            `json:"storageKey"`
	Decision        merge.Decision    `json:"decision"`
	IncomingUpdated string            `json:"incomingUpdated,omitempty"`
	StoredUpdated   string            `json:"storedUpdated,omitempty"`
	MergedAt        time.Time         `json:"mergedAt"`
}

// Journal appends merge events to the merge_log table.
type Journal struct {
	db *sql.DB
}

// NewJournal wraps an open database.
func NewJournal(db *sql.DB) *Journal {
	return &Journal{db: db}
}

// OpenJournal opens the database at path and wraps it.
func OpenJournal(path string) (*Journal, error) {
	db, err := OpenDatabase(path)
	if err != nil {
		return nil, err
	}
	return &Journal{db: db}, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record appends one merge event.
func (j *Journal) Record(ctx context.Context, ev merge.Event) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO merge_log (id, object_type, storage_key, decision, incoming_updated, stored_updated, merged_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ulid.Make().String(), string(ev.ObjectType), ev.ID, string(ev.Decision),
		nullString(ev.IncomingUpdated), nullString(ev.StoredUpdated), ev.At.UTC())
	if err != nil {
		return fmt.Errorf("failed to record merge: %w", err)
	}
	return nil
}

// Recent returns the newest entries first. An empty objectType matches all
// types; limit <= 0 uses DefaultRecentLimit.
func (j *Journal) Recent(ctx context.Context, objectType models.ObjectType, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	query := `
		SELECT id, object_type, storage_key, decision, incoming_updated, stored_updated, merged_at
		FROM merge_log
	`
	args := []interface{}{}
	if objectType != "" {
		query += " WHERE object_type = ?"
		args = append(args, string(objectType))
	}
	query += " ORDER BY merged_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	return scanEntries(rows)
}

// History returns every entry for one storage key, oldest first.
func (j *Journal) History(ctx context.Context, storageKey string) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, object_type, storage_key, decision, incoming_updated, stored_updated, merged_at
		FROM merge_log
		WHERE storage_key = ?
		ORDER BY merged_at ASC, id ASC
	`, storageKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var (
			e                 Entry
			ot, decision      string
			incoming, storedU sql.NullString
		)
		if err := rows.Scan(&e.ID, &ot, &e.StorageKey, &decision, &incoming, &storedU, &e.MergedAt); err != nil {
			return nil, fmt.Errorf("failed to scan journal row: %w", err)
		}
		e.ObjectType = models.ObjectType(ot)
		e.Decision = merge.Decision(decision)
		e.IncomingUpdated = incoming.String
		e.StoredUpdated = storedU.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
