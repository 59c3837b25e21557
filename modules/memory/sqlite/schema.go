package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

const schemaVersion = 1

// schemaStatements are executed in order to create the database schema.
// All use IF NOT EXISTS for idempotent re-application.
var schemaStatements = []string{
	// seq breaks timestamp ties in insertion order.
	`CREATE TABLE IF NOT EXISTS turns (
		seq             INTEGER PRIMARY KEY AUTOINCREMENT,
		id              TEXT    NOT NULL UNIQUE,
		conversation_id TEXT    NOT NULL,
		speaker_id      TEXT    NOT NULL DEFAULT '',
		role            TEXT    NOT NULL,
		text            TEXT    NOT NULL DEFAULT '',
		ts              INTEGER NOT NULL,
		correlation_id  TEXT    NOT NULL DEFAULT '',
		metadata        TEXT    NOT NULL DEFAULT ''
	)`,

	`CREATE INDEX IF NOT EXISTS idx_turns_conversation ON turns(conversation_id, ts, seq)`,

	`CREATE INDEX IF NOT EXISTS idx_turns_ts ON turns(ts)`,

	`CREATE TABLE IF NOT EXISTS items (
		id              TEXT PRIMARY KEY,
		section         TEXT    NOT NULL,
		status          TEXT    NOT NULL DEFAULT '',
		owner_id        TEXT    NOT NULL DEFAULT '',
		conversation_id TEXT    NOT NULL DEFAULT '',
		occurred_at     INTEGER NOT NULL DEFAULT 0,
		created_at      INTEGER NOT NULL DEFAULT 0,
		updated_at      INTEGER NOT NULL DEFAULT 0,
		snapshot        BLOB    NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_items_section ON items(section)`,

	`CREATE INDEX IF NOT EXISTS idx_items_owner ON items(owner_id, occurred_at)`,
}

// migrate creates or updates the database schema to the latest version.
func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("sqlite: create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("sqlite: read schema version: %w", err)
	}
	if current >= schemaVersion {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range schemaStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: migrate: %w\nstatement: %s", err, stmt)
		}
	}
	if _, err := tx.ExecContext(ctx, "INSERT OR REPLACE INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("sqlite: record schema version: %w", err)
	}
	return tx.Commit()
}
