package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"faceclock/internal/attendance"
)

// DB wraps sql.DB together with the SQL dialect it speaks.
type DB struct {
	Client  *sql.DB
	Dialect attendance.Dialect
}

// NewDB creates a Postgres connection with sane defaults.
func NewDB(ctx context.Context, connString string) (*DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &DB{Client: db, Dialect: attendance.Postgres}, nil
}

// NewSQLite opens (and creates) a SQLite file in WAL mode.
func NewSQLite(ctx context.Context, path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One writer keeps SQLite from returning SQLITE_BUSY under the dispatcher and API.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &DB{Client: db, Dialect: attendance.SQLite}, nil
}

// Open connects to the configured backend. It returns nil, nil for "memory".
func Open(ctx context.Context, backend, databaseURL, sqlitePath string) (*DB, error) {
	switch backend {
	case "postgres":
		return NewDB(ctx, databaseURL)
	case "sqlite":
		return NewSQLite(ctx, sqlitePath)
	case "memory":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

// Backend returns the attendance backend over this connection, or an in-memory one when d is nil.
func (d *DB) Backend() attendance.Backend {
	if d == nil || d.Client == nil {
		return attendance.NewMemoryStore()
	}
	return attendance.NewRepository(d.Client, d.Dialect)
}

// Migrate applies the schema for the connection's dialect. The memory backend needs none.
func (d *DB) Migrate(ctx context.Context) error {
	if d == nil || d.Client == nil {
		return nil
	}
	return attendance.NewRepository(d.Client, d.Dialect).Migrate(ctx)
}

// Healthy pings the database.
func (d *DB) Healthy(ctx context.Context) bool {
	if d == nil || d.Client == nil {
		return true
	}
	return d.Client.PingContext(ctx) == nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}
