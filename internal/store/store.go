// Package store persists routing decisions, learned patterns, model
// performance aggregates, quotas, and payment records in a single embedded
// SQLite database. All rows are scoped by owner; every query is keyed by the
// owner column so cross-tenant leakage is impossible by construction.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrOutcomeReported is returned when a decision's outcome fields have
	// already been written. Outcomes are write-once.
	ErrOutcomeReported = errors.New("store: outcome already reported")
)

// Store wraps the SQLite database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the database at path and applies pending
// migrations.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// WAL mode for better concurrency under mixed read/write load.
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("wal mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("busy timeout: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger.With("component", "store"),
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// migrations are applied in order exactly once; the applied version is
// tracked in schema_migrations.
var migrations = []struct {
	version int
	name    string
	stmts   []string
}{
	{
		version: 1,
		name:    "core routing tables",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS routing_decisions (
				id               TEXT PRIMARY KEY,
				owner            TEXT NOT NULL,
				task_type        TEXT NOT NULL,
				complexity       REAL NOT NULL,
				estimated_tokens INTEGER NOT NULL,
				has_code         INTEGER NOT NULL DEFAULT 0,
				has_errors       INTEGER NOT NULL DEFAULT 0,
				model            TEXT NOT NULL,
				provider         TEXT NOT NULL,
				confidence       REAL NOT NULL,
				reason           TEXT NOT NULL DEFAULT '',
				alternatives     TEXT NOT NULL DEFAULT '[]',
				pattern_id       TEXT,
				estimated_cost   REAL NOT NULL DEFAULT 0,
				success          INTEGER,
				actual_tokens    INTEGER,
				actual_cost      REAL,
				quality          REAL,
				latency_ms       INTEGER,
				created_at       INTEGER NOT NULL,
				completed_at     INTEGER
			)`,
			`CREATE INDEX IF NOT EXISTS idx_decisions_owner_created
				ON routing_decisions(owner, created_at DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_decisions_similarity
				ON routing_decisions(owner, task_type, complexity)`,
			`CREATE INDEX IF NOT EXISTS idx_decisions_model
				ON routing_decisions(owner, model, task_type, created_at DESC)`,
			`CREATE TABLE IF NOT EXISTS routing_patterns (
				id             TEXT PRIMARY KEY,
				owner          TEXT NOT NULL,
				task_type      TEXT NOT NULL,
				complexity_min REAL NOT NULL,
				complexity_max REAL NOT NULL,
				token_min      INTEGER NOT NULL,
				token_max      INTEGER NOT NULL,
				model          TEXT NOT NULL,
				provider       TEXT NOT NULL,
				successes      INTEGER NOT NULL DEFAULT 0,
				failures       INTEGER NOT NULL DEFAULT 0,
				confidence     REAL NOT NULL,
				created_at     INTEGER NOT NULL,
				last_used_at   INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_patterns_lookup
				ON routing_patterns(owner, task_type, complexity_min, complexity_max)`,
			`CREATE TABLE IF NOT EXISTS model_performance (
				owner          TEXT NOT NULL,
				model          TEXT NOT NULL,
				provider       TEXT NOT NULL,
				task_type      TEXT NOT NULL,
				total_requests INTEGER NOT NULL DEFAULT 0,
				successes      INTEGER NOT NULL DEFAULT 0,
				avg_latency_ms REAL NOT NULL DEFAULT 0,
				avg_quality    REAL NOT NULL DEFAULT 0,
				avg_cost       REAL NOT NULL DEFAULT 0,
				updated_at     INTEGER NOT NULL,
				PRIMARY KEY (owner, model, provider, task_type)
			)`,
			`CREATE TABLE IF NOT EXISTS quotas (
				owner      TEXT PRIMARY KEY,
				tier       TEXT NOT NULL DEFAULT 'free',
				used_today INTEGER NOT NULL DEFAULT 0,
				last_reset TEXT NOT NULL,
				paid_until INTEGER
			)`,
		},
	},
	{
		version: 2,
		name:    "payment ledger",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS payments (
				id         INTEGER PRIMARY KEY AUTOINCREMENT,
				owner      TEXT NOT NULL,
				tx_hash    TEXT NOT NULL,
				amount     REAL NOT NULL,
				asset      TEXT NOT NULL,
				verified   INTEGER NOT NULL DEFAULT 0,
				created_at INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_payments_owner
				ON payments(owner, created_at DESC)`,
		},
	},
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		s.logger.Info("applying migration", "version", m.version, "name", m.name)
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}
		for _, stmt := range m.stmts {
			if _, err := tx.Exec(stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("migration %d: %w", m.version, err)
			}
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (version, applied_at) VALUES (?, strftime('%s','now'))`, m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database (for testing/advanced use).
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, query, args...)
}
