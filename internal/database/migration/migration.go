package migration

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

type migrationStep struct {
	Name string
	SQL  string
}

// Dialect is the schema for one database engine plus the query that tells whether
// it has already been applied.
type Dialect struct {
	Name     string
	Sentinel string
	Steps    []migrationStep
}

// Postgres creates the documents table with a BIGSERIAL id and JSONB analysis.
var Postgres = Dialect{
	Name:     "postgres",
	Sentinel: "SELECT to_regclass('public.documents') IS NOT NULL",
	Steps: []migrationStep{
		{
			Name: "create_table_documents",
			SQL: `CREATE TABLE IF NOT EXISTS documents (
  id           BIGSERIAL        PRIMARY KEY,
  filename     TEXT             NOT NULL,
  content_type TEXT             NOT NULL,
  size         BIGINT           NOT NULL CHECK (size >= 0),
  file_hash    TEXT             NOT NULL,
  storage_path TEXT             NOT NULL DEFAULT '',
  upload_date  TIMESTAMPTZ      NOT NULL DEFAULT clock_timestamp(),
  status       TEXT             NOT NULL CHECK (status IN ('GENUINE', 'FRAUD')),
  confidence   DOUBLE PRECISION NOT NULL CHECK (confidence >= 0 AND confidence <= 100),
  analysis     JSONB            NOT NULL DEFAULT '{}'::jsonb
);`,
		},
		{
			Name: "create_index_documents_upload_date",
			SQL:  `CREATE INDEX IF NOT EXISTS idx_documents_upload_date ON documents (upload_date DESC, id DESC);`,
		},
		{
			Name: "create_index_documents_status",
			SQL:  `CREATE INDEX IF NOT EXISTS idx_documents_status ON documents (status);`,
		},
		{
			Name: "create_index_documents_file_hash",
			SQL:  `CREATE INDEX IF NOT EXISTS idx_documents_file_hash ON documents (file_hash);`,
		},
	},
}

// SQLite stores upload_date as Unix nanoseconds; AUTOINCREMENT keeps ids from being reused.
var SQLite = Dialect{
	Name:     "sqlite",
	Sentinel: "SELECT EXISTS (SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = 'documents')",
	Steps: []migrationStep{
		{
			Name: "create_table_documents",
			SQL: `CREATE TABLE IF NOT EXISTS documents (
  id           INTEGER PRIMARY KEY AUTOINCREMENT,
  filename     TEXT    NOT NULL,
  content_type TEXT    NOT NULL,
  size         INTEGER NOT NULL CHECK (size >= 0),
  file_hash    TEXT    NOT NULL,
  storage_path TEXT    NOT NULL DEFAULT '',
  upload_date  INTEGER NOT NULL,
  status       TEXT    NOT NULL CHECK (status IN ('GENUINE', 'FRAUD')),
  confidence   REAL    NOT NULL CHECK (confidence >= 0 AND confidence <= 100),
  analysis     TEXT    NOT NULL DEFAULT '{}'
);`,
		},
		{
			Name: "create_index_documents_upload_date",
			SQL:  `CREATE INDEX IF NOT EXISTS idx_documents_upload_date ON documents (upload_date DESC, id DESC);`,
		},
		{
			Name: "create_index_documents_status",
			SQL:  `CREATE INDEX IF NOT EXISTS idx_documents_status ON documents (status);`,
		},
	},
}

// EnsureMigrated checks if the 'documents' table exists and runs migrations if it doesn't.
func EnsureMigrated(ctx context.Context, db *sql.DB, d Dialect, logger *slog.Logger, dbHost string) error {
	start := time.Now()
	log := logger.With("component", "database", "dialect", d.Name, "db_host", dbHost)

	log.Info("db_migration_check", "status", "starting")

	var exists bool
	if err := db.QueryRowContext(ctx, d.Sentinel).Scan(&exists); err != nil {
		log.Error("db_migration_failed",
			"status", "error",
			"error_message", fmt.Sprintf("failed to check sentinel table: %v", err),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}

	if exists {
		log.Info("db_migration_skip",
			"status", "success",
			"detail", "schema already exists, skipping migration",
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil
	}

	log.Info("db_migration_start", "status", "in_progress")

	for _, step := range d.Steps {
		stepStart := time.Now()
		if _, err := db.ExecContext(ctx, step.SQL); err != nil {
			log.Error("db_migration_failed",
				"status", "error",
				"migration_step", step.Name,
				"error_message", err.Error(),
				"duration_ms", time.Since(start).Milliseconds(),
				"step_duration_ms", time.Since(stepStart).Milliseconds(),
			)
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}

		log.Info("db_migration_step",
			"status", "success",
			"migration_step", step.Name,
			"step_duration_ms", time.Since(stepStart).Milliseconds(),
		)
	}

	log.Info("db_migration_success",
		"status", "success",
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
