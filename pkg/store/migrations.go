package store

import (
	"context"
	"database/sql"
	"fmt"
)

type migration struct {
	version int
	name    string
	apply   func(ctx context.Context, tx *sql.Tx) error
}

// migrations run in order at open time. Each one must be safe to re-run: a
// crash between apply and the version bump replays it on the next open.
var migrations = []migration{
	{1, "create followerdata", func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS followerdata (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			record_key TEXT NOT NULL UNIQUE,
			source_id TEXT NOT NULL,
			subject_account TEXT NOT NULL,
			profile_url TEXT NOT NULL,
			avatar_url TEXT NOT NULL DEFAULT '',
			display_name TEXT NOT NULL DEFAULT '',
			handle TEXT NOT NULL DEFAULT '',
			bio TEXT NOT NULL DEFAULT '',
			searchable_text TEXT NOT NULL DEFAULT ''
		)`)
		return err
	}},
	{2, "index subject_account", func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_followerdata_subject ON followerdata(subject_account)`)
		return err
	}},
	{3, "add updated_at", func(ctx context.Context, tx *sql.Tx) error {
		var n int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM pragma_table_info('followerdata') WHERE name = 'updated_at'`).Scan(&n)
		if err != nil || n > 0 {
			return err
		}
		_, err = tx.ExecContext(ctx, `ALTER TABLE followerdata ADD COLUMN updated_at INTEGER NOT NULL DEFAULT 0`)
		return err
	}},
}

// migrate applies every migration above the persisted user_version and
// returns the version the database ends at.
func migrate(ctx context.Context, db *sql.DB) (int, error) {
	current, err := userVersion(ctx, db)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return current, err
		}
		if err := m.apply(ctx, tx); err != nil {
			tx.Rollback()
			return current, fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
		// PRAGMA does not accept bound parameters.
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
			tx.Rollback()
			return current, fmt.Errorf("migration %d: set version: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return current, fmt.Errorf("migration %d: commit: %w", m.version, err)
		}
		current = m.version
		applied++
	}

	if applied > 0 {
		if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
			return current, fmt.Errorf("vacuum after migration: %w", err)
		}
	}
	return current, nil
}

func userVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("read user_version: %w", err)
	}
	return v, nil
}

// LatestVersion is the schema version a freshly opened store is at.
func LatestVersion() int {
	return migrations[len(migrations)-1].version
}
