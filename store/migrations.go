package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
)

// migration is one schema step. Steps are appended, never edited: the
// version number is what an existing database remembers.
type migration struct {
	version     int
	description string
	statements  []string
	// optional tolerates "duplicate column" failures: a database created
	// from the current schemaSQL already has those columns.
	optional bool
}

var migrations = []migration{
	{version: 1, description: "initial schema"},
	{
		version:     2,
		description: "index questions by exam and local number",
		statements: []string{
			`CREATE INDEX IF NOT EXISTS idx_questions_exam ON questions(exam_number, local_number)`,
		},
	},
	{
		version:     3,
		description: "track segment and dropped counts on documents",
		statements: []string{
			`ALTER TABLE documents ADD COLUMN segments INTEGER DEFAULT 0`,
			`ALTER TABLE documents ADD COLUMN dropped INTEGER DEFAULT 0`,
		},
		optional: true,
	},
}

const schemaVersionSQL = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY,
	description TEXT,
	applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
)`

// Migrate applies every migration newer than the recorded schema version,
// each in its own transaction.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaVersionSQL); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}
	current, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		slog.Info("store: applying migration", "version", m.version, "description", m.description)
		if err := s.inTx(ctx, func(tx *sql.Tx) error { return m.apply(ctx, tx) }); err != nil {
			return fmt.Errorf("migration %d: %w", m.version, err)
		}
	}
	return nil
}

func (m migration) apply(ctx context.Context, tx *sql.Tx) error {
	for _, stmt := range m.statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			if !m.optional || !strings.Contains(err.Error(), "duplicate column") {
				return err
			}
			slog.Debug("store: column already present", "version", m.version, "sql", stmt)
		}
	}
	_, err := tx.ExecContext(ctx,
		"INSERT INTO schema_version (version, description) VALUES (?, ?)",
		m.version, m.description)
	return err
}

// SchemaVersion returns the highest applied migration, 0 for a new database.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var current int
	err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current)
	if err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return current, nil
}
