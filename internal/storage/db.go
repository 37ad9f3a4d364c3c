// Package storage persists finished simulation runs in SQLite.
package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// Store wraps the SQLite run history database.
type Store struct {
	sql *sql.DB
	log zerolog.Logger
	now func() time.Time
}

// Open opens (or creates) the database at path and runs migrations.
func Open(path string, log zerolog.Logger) (*Store, error) {
	sqlDB, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	s := &Store{
		sql: sqlDB,
		log: log.With().Str("component", "storage").Logger(),
		now: time.Now,
	}
	if err := s.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate db: %w", err)
	}
	s.log.Info().Str("path", path).Msg("opened run history")
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.sql.Close()
}

func (s *Store) migrate() error {
	version := 0
	// schema_version does not exist on a fresh database
	s.sql.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)

	if version < 1 {
		_, err := s.sql.Exec(`
			CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY);

			CREATE TABLE IF NOT EXISTS runs (
				id              TEXT PRIMARY KEY,
				created_at      TEXT NOT NULL,
				assets_json     TEXT NOT NULL,
				years           INTEGER NOT NULL,
				num_simulations INTEGER NOT NULL,
				risk_free_rate  REAL NOT NULL,
				seed            INTEGER NOT NULL,
				sampler         TEXT NOT NULL,
				return_kind     TEXT NOT NULL,
				max_sharpe_json TEXT NOT NULL,
				min_risk_json   TEXT NOT NULL,
				envelope_json   TEXT NOT NULL,
				asset_stats_json TEXT NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);

			INSERT OR IGNORE INTO schema_version (version) VALUES (1);
		`)
		if err != nil {
			return fmt.Errorf("migration v1: %w", err)
		}
		s.log.Debug().Msg("applied migration v1")
	}

	if version < 2 {
		_, err := s.sql.Exec(`
			ALTER TABLE runs ADD COLUMN duration_ms INTEGER NOT NULL DEFAULT 0;
			ALTER TABLE runs ADD COLUMN warnings_json TEXT NOT NULL DEFAULT '[]';

			INSERT OR IGNORE INTO schema_version (version) VALUES (2);
		`)
		if err != nil {
			return fmt.Errorf("migration v2: %w", err)
		}
		s.log.Debug().Msg("applied migration v2 (duration, warnings)")
	}

	return nil
}
