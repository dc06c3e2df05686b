package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations are applied in order at startup. Each entry runs once; applied
// versions are tracked in schema_migrations.
var migrations = []string{
	// death events, one row per (deceased, affected) observation.
	`CREATE TABLE IF NOT EXISTS death_events (
		id            UUID PRIMARY KEY,
		deceased_id   TEXT        NOT NULL,
		affected_id   TEXT        NOT NULL,
		relation      TEXT        NOT NULL,
		date_of_death DATE        NOT NULL,
		status        TEXT        NOT NULL,
		outcome       TEXT,
		case_ref      TEXT,
		letter_ref    TEXT,
		created_at    TIMESTAMPTZ NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL
	)`,
	// at most one open (NEW/UPDATED) row per deceased/affected pair.
	`CREATE UNIQUE INDEX IF NOT EXISTS death_events_open_pair
		ON death_events (deceased_id, affected_id)
		WHERE status IN ('NEW', 'UPDATED')`,
	`CREATE INDEX IF NOT EXISTS death_events_status ON death_events (status)`,
	// latest resolution attempt for relations without a canonical id.
	`CREATE TABLE IF NOT EXISTS unresolved_affected_parties (
		deceased_id TEXT PRIMARY KEY,
		children    JSONB       NOT NULL,
		spouses     JSONB       NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL
	)`,
	// ties a death observation back to the registry event that produced it.
	`ALTER TABLE death_events ADD COLUMN IF NOT EXISTS source_event_id TEXT NOT NULL DEFAULT ''`,
	// envelopes of life events without a dedicated pipeline, one row per
	// registry event.
	`CREATE TABLE IF NOT EXISTS life_events (
		id              UUID PRIMARY KEY,
		source_event_id TEXT        NOT NULL UNIQUE,
		subject_id      TEXT        NOT NULL,
		category        TEXT        NOT NULL,
		change_type     TEXT        NOT NULL,
		status          TEXT        NOT NULL,
		received_at     TIMESTAMPTZ NOT NULL,
		processed_at    TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS life_events_subject ON life_events (subject_id)`,
}

// Migrate brings the schema up to date. Safe to run from every replica; the
// advisory lock serializes concurrent starters.
func Migrate(ctx context.Context, db *sql.DB) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire migration connection: %w", err)
	}
	defer conn.Close()

	// Single well-known lock key for schema changes.
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock(874512)`); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer conn.ExecContext(ctx, `SELECT pg_advisory_unlock(874512)`)

	if _, err := conn.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INT PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := conn.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		version := i + 1
		if _, err := conn.ExecContext(ctx, migrations[i]); err != nil {
			return fmt.Errorf("apply migration %d: %w", version, err)
		}
		if _, err := conn.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version); err != nil {
			return fmt.Errorf("record migration %d: %w", version, err)
		}
	}
	return nil
}
