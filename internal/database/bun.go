package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite"
)

const sqliteScheme = "sqlite://"

// Open connects to the database named by dsn and wraps it in a Bun DB.
// DSNs starting with sqlite:// or file: use the embedded SQLite driver;
// anything else is handed to lib/pq.
func Open(ctx context.Context, dsn string) (*bun.DB, error) {
	var db *bun.DB

	if path, ok := sqlitePath(dsn); ok {
		sqlDB, err := sql.Open("sqlite", path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		// SQLite serialises writers; a single connection avoids SQLITE_BUSY.
		sqlDB.SetMaxOpenConns(1)
		db = bun.NewDB(sqlDB, sqlitedialect.New())
	} else {
		sqlDB, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres database: %w", err)
		}
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(5 * time.Minute)
		db = NewBunDB(sqlDB)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// NewBunDB creates a new Bun DB instance from an existing Postgres sql.DB connection
func NewBunDB(sqlDB *sql.DB) *bun.DB {
	return bun.NewDB(sqlDB, pgdialect.New())
}

func sqlitePath(dsn string) (string, bool) {
	switch {
	case strings.HasPrefix(dsn, sqliteScheme):
		return strings.TrimPrefix(dsn, sqliteScheme), true
	case strings.HasPrefix(dsn, "file:"):
		return dsn, true
	default:
		return "", false
	}
}
