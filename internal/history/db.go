// Package history is the non-authoritative session-history store: it keeps
// no role in control decisions (the flat file in internal/persistence is
// the sole authoritative artifact per spec §4.7), but records boot,
// status, transaction and meter-value events for later inspection. Adapted
// from the teacher's internal/db/db.go (sqlite/postgres open, pool tuning,
// WAL pragmas) and internal/ocpp/server.go's upsert/insert statements,
// repurposed around this spec's charger_id-keyed data model.
package history

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"ocpp-gateway/internal/ocppframe"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies every pending migration, matching the teacher's
// goose.Up(database, "migrations") call but sourced from an embedded FS so
// the binary carries its own schema regardless of the working directory.
func Migrate(driver string, db *sql.DB) error {
	dialect := driver
	if dialect == "sqlite" {
		dialect = "sqlite3"
	}
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// decodePayload unmarshals a frame's Call payload into v. A malformed
// payload is not treated as an error by callers (spec §7's frame-malformed
// policy extends to the non-authoritative history store too): the caller
// simply skips recording that event.
func decodePayload(frame *ocppframe.Frame, v any) error {
	return json.Unmarshal(frame.Payload, v)
}

// Open mirrors the teacher's internal/db.Open: dispatch on driver, apply
// pool tuning, verify connectivity.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	switch driver {
	case "sqlite":
		return openSQLite(ctx, dsn)
	case "postgres":
		return openPostgres(ctx, dsn)
	default:
		return nil, fmt.Errorf("history: unsupported driver %q", driver)
	}
}

func openSQLite(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", p, err)
		}
	}

	db.SetMaxOpenConns(1) // sqlite: single-writer, avoid SQLITE_BUSY under WAL
	db.SetMaxIdleConns(1)

	return pingAndReturn(ctx, db)
}

func openPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return pingAndReturn(ctx, db)
}

func pingAndReturn(ctx context.Context, db *sql.DB) (*sql.DB, error) {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return db, nil
}
