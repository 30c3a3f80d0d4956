// Package storage persists users, sessions and product snapshots in SQL.
// The same queries run on SQLite and PostgreSQL; sqlx rebinds placeholders.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect selects the SQL database flavour.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

func (d Dialect) driverName() string {
	return string(d)
}

// IsValid reports whether d names a supported dialect.
func (d Dialect) IsValid() bool {
	return d == SQLite || d == Postgres
}

// SQLiteDSN turns a file path into a modernc sqlite DSN with the pragmas the
// repository relies on.
func SQLiteDSN(path string) string {
	return path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"
}

// Open connects to the database, runs migrations and verifies the connection.
// For sqlite, dsn is a file path; its directory is created when missing.
func Open(ctx context.Context, dialect Dialect, dsn string) (*sqlx.DB, error) {
	if !dialect.IsValid() {
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}

	if dialect == SQLite {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
		dsn = SQLiteDSN(dsn)
	}

	if err := RunMigrations(dialect, dsn); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sqlx.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	switch dialect {
	case SQLite:
		// One writer at a time; queued callers wait on the pool, not on SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	case Postgres:
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	return db, nil
}

func millis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
