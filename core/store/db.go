package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"incidentscope/config"
	"incidentscope/core/utils"
)

// NewDB opens the configured database. Postgres (via the pgx stdlib
// driver) is the production store; sqlite backs local development and
// the test suite.
func NewDB(cfg *config.AppConfig, logger *utils.Logger) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)
	switch cfg.DBDriver {
	case "sqlite":
		db, err = sql.Open("sqlite", cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.DBPath, err)
		}
		// modernc sqlite serializes writes; a single connection avoids
		// SQLITE_BUSY under concurrent handlers.
		db.SetMaxOpenConns(1)
		if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite pragma: %w", err)
		}
	default:
		db, err = sql.Open("pgx", cfg.DBURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		db.SetMaxOpenConns(16)
		db.SetConnMaxIdleTime(5 * time.Minute)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.DBDriver, err)
	}
	if logger != nil {
		logger.Printf("database ready driver=%s", cfg.DBDriver)
	}
	return db, nil
}

func isPostgresDB(ctx context.Context, db *sql.DB) (bool, error) {
	var ignored string
	if err := db.QueryRowContext(ctx, `SELECT sqlite_version()`).Scan(&ignored); err == nil {
		return false, nil
	}
	var version string
	if err := db.QueryRowContext(ctx, `SELECT version()`).Scan(&version); err != nil {
		return false, fmt.Errorf("probe database flavor: %w", err)
	}
	return strings.HasPrefix(version, "PostgreSQL"), nil
}

// rebind rewrites ?-style placeholders to the $N form postgres expects.
// Store SQL is authored with ? so the same statements run on sqlite.
func rebind(pg bool, query string) string {
	if !pg || !strings.ContainsRune(query, '?') {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
