package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"dungeonmaster/pkg/logx"
)

var (
	// ErrCampaignNotFound is returned when a requested campaign does not exist.
	ErrCampaignNotFound = errors.New("campaign not found")
	// ErrSessionNotFound is returned when a requested session does not exist.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionClosed is returned when writing to a session that is no longer open.
	ErrSessionClosed = errors.New("session is closed")
	// ErrOpenSessionExists is returned when a campaign already has an open session.
	ErrOpenSessionExists = errors.New("campaign already has an open session")
)

// Store is the SQLite-backed game store. It is safe for concurrent use;
// SQLite serializes writers on the single connection.
type Store struct {
	db     *sql.DB
	path   string
	now    func() time.Time
	logger *logx.Logger
}

// Open opens (creating if needed) the database at path and brings the schema up to date.
// Use ":memory:" for a throwaway store.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	if path == ":memory:" {
		dsn = "file::memory:?_pragma=foreign_keys(1)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite supports one writer; a single connection also keeps :memory: stable.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := initializeSchemaWithMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s := &Store{db: db, path: path, now: time.Now, logger: logx.NewLogger("persistence")}
	s.logger.Info("📦 Database initialized: %s (schema v%d)", path, CurrentSchemaVersion)
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// Path returns the database path the store was opened with.
func (s *Store) Path() string {
	return s.path
}

// withTx runs fn in a transaction, committing on success and rolling back otherwise.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Warn("rollback failed: %v", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
