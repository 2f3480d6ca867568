package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"

	"github.com/pressly/goose/v3"

	"incidentscope/core/utils"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// sqliteMigrations mirrors the goose postgres schema for the sqlite
// runtime used in development and tests. UUIDs are stored as TEXT and
// labels/payload as JSON text.
var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS incidents (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		env_id TEXT NOT NULL,
		primary_service_id TEXT,
		severity INTEGER NOT NULL,
		status TEXT NOT NULL,
		title TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		detected_at TIMESTAMP,
		resolved_at TIMESTAMP,
		created_by TEXT,
		assignee TEXT,
		labels TEXT NOT NULL DEFAULT '{}'
	);`,
	`CREATE INDEX IF NOT EXISTS idx_incidents_tenant_created ON incidents(tenant_id, created_at DESC);`,
	`CREATE INDEX IF NOT EXISTS idx_incidents_tenant_env ON incidents(tenant_id, env_id);`,
	`CREATE INDEX IF NOT EXISTS idx_incidents_tenant_status ON incidents(tenant_id, status);`,
	`CREATE TABLE IF NOT EXISTS incident_events (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		incident_id TEXT NOT NULL,
		type TEXT NOT NULL,
		payload TEXT NOT NULL DEFAULT '{}',
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY(incident_id) REFERENCES incidents(id)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_incident_events_tenant_incident ON incident_events(tenant_id, incident_id);`,
}

// ApplyMigrations brings the schema up to date. Postgres goes through
// goose; sqlite applies the in-code statement list directly.
func ApplyMigrations(ctx context.Context, db *sql.DB, logger *utils.Logger) error {
	isPG, err := isPostgresDB(ctx, db)
	if err != nil {
		return err
	}
	if !isPG {
		return applySQLiteMigrations(ctx, db, logger)
	}
	return applyGooseMigrations(ctx, db, logger)
}

func applyGooseMigrations(ctx context.Context, db *sql.DB, logger *utils.Logger) error {
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	version, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return err
	}
	if logger != nil {
		logger.Printf("postgres migrations applied version=%d", version)
	}
	return nil
}

func applySQLiteMigrations(ctx context.Context, db *sql.DB, logger *utils.Logger) error {
	for i, stmt := range sqliteMigrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite migration #%d failed: %w", i+1, err)
		}
	}
	if logger != nil {
		logger.Printf("sqlite migrations applied count=%d", len(sqliteMigrations))
	}
	return nil
}

// MigrationLockKey is the redis key serializing ApplyMigrations across
// replicas that share one database.
func MigrationLockKey(dbURL string) string {
	name := dbURL
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	if idx := strings.IndexRune(name, '?'); idx >= 0 {
		name = name[:idx]
	}
	if name == "" {
		name = "default"
	}
	return "incidentscope:migrations:" + name
}
