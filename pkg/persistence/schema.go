// Package persistence provides SQLite-based storage for campaigns, sessions and turns.
package persistence

import (
	"database/sql"
	"errors"
	"fmt"
)

// CurrentSchemaVersion defines the current schema version for migration support.
const CurrentSchemaVersion = 2

// initializeSchemaWithMigrations ensures the database schema is at the current version.
func initializeSchemaWithMigrations(db *sql.DB) error {
	currentVersion, err := GetSchemaVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	// Empty database: create the latest schema in one step.
	if currentVersion == 0 {
		return createSchema(db)
	}

	if currentVersion == CurrentSchemaVersion {
		return nil
	}
	if currentVersion > CurrentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", currentVersion, CurrentSchemaVersion)
	}

	return runMigrations(db, currentVersion, CurrentSchemaVersion)
}

// runMigrations applies database migrations from current version to target version.
func runMigrations(db *sql.DB, fromVersion, toVersion int) error {
	for version := fromVersion + 1; version <= toVersion; version++ {
		if err := runMigration(db, version); err != nil {
			return fmt.Errorf("migration to version %d failed: %w", version, err)
		}
		if err := setSchemaVersion(db, version); err != nil {
			return fmt.Errorf("failed to update schema version to %d: %w", version, err)
		}
	}
	return nil
}

// runMigration applies a specific version migration.
func runMigration(db *sql.DB, version int) error {
	switch version {
	case 2:
		return migrateToVersion2(db)
	default:
		return fmt.Errorf("unknown migration version: %d", version)
	}
}

// migrateToVersion2 records the combat action per turn and indexes memories by campaign.
func migrateToVersion2(db *sql.DB) error {
	migrations := []string{
		"ALTER TABLE turns ADD COLUMN combat_action TEXT NOT NULL DEFAULT ''",
		"CREATE INDEX IF NOT EXISTS idx_memories_campaign ON memories(campaign_id)",
	}

	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("failed to execute migration: %s: %w", migration, err)
		}
	}
	return nil
}

// createSchema creates all required tables and indices at the current version.
func createSchema(db *sql.DB) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,

		`CREATE TABLE IF NOT EXISTS campaigns (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			world TEXT NOT NULL DEFAULT '',
			outline TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			last_played DATETIME
		)`,

		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			campaign_id TEXT NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
			number INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'open' CHECK (status IN ('open','closed')),
			plan TEXT NOT NULL DEFAULT '{}',
			scene TEXT NOT NULL,
			summary TEXT NOT NULL DEFAULT '',
			turn_count INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			last_activity DATETIME NOT NULL,
			closed_at DATETIME,
			UNIQUE (campaign_id, number)
		)`,

		`CREATE TABLE IF NOT EXISTS turns (
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			number INTEGER NOT NULL,
			player_input TEXT NOT NULL,
			narrative TEXT NOT NULL,
			intent TEXT NOT NULL DEFAULT '',
			scene TEXT NOT NULL,
			summary TEXT NOT NULL DEFAULT '',
			payload TEXT NOT NULL DEFAULT '{}',
			combat_action TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			PRIMARY KEY (session_id, number)
		)`,

		`CREATE TABLE IF NOT EXISTS memories (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			campaign_id TEXT NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
			session_id TEXT NOT NULL,
			turn_number INTEGER NOT NULL,
			kind TEXT NOT NULL DEFAULT '',
			keys TEXT NOT NULL DEFAULT '[]',
			summary TEXT NOT NULL DEFAULT '',
			raw TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME NOT NULL
		)`,
	}

	indices := []string{
		"CREATE INDEX IF NOT EXISTS idx_sessions_campaign ON sessions(campaign_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_memories_campaign ON memories(campaign_id)",
	}

	for _, table := range tables {
		if _, err := db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	for _, index := range indices {
		if _, err := db.Exec(index); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return setSchemaVersion(db, CurrentSchemaVersion)
}

// setSchemaVersion records the schema version.
func setSchemaVersion(db *sql.DB, version int) error {
	if _, err := db.Exec("INSERT OR REPLACE INTO schema_version (version) VALUES (?)", version); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}
	return nil
}

// GetSchemaVersion returns the highest applied schema version, or 0 for an empty database.
func GetSchemaVersion(db *sql.DB) (int, error) {
	var exists int
	err := db.QueryRow("SELECT 1 FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to check schema_version table: %w", err)
	}

	var version sql.NullInt64
	if err := db.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return int(version.Int64), nil
}
