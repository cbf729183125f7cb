package db

import (
	"fmt"
	"log/slog"

	"github.com/driftsync/driftsync/internal/utils"
	"github.com/jmoiron/sqlx"
)

const memoryPath = ":memory:"

// Pragmas applied on open unless replaced with WithPragmas.
const defaultPragmas = `
PRAGMA journal_mode=WAL;
PRAGMA busy_timeout=5000;
PRAGMA foreign_keys=ON;
PRAGMA temp_store=MEMORY;
PRAGMA cache_size=8000;
PRAGMA mmap_size=268435456;
`

type sqliteConfig struct {
	path         string
	pragmas      string
	maxOpenConns int
}

// SqliteOption configures NewSqliteDB.
type SqliteOption func(*sqliteConfig)

// WithPath points the database at a file, creating the parent directory
// on open. The default is an in-memory database.
func WithPath(path string) SqliteOption {
	return func(c *sqliteConfig) { c.path = path }
}

// WithPragmas replaces the default pragma block.
func WithPragmas(pragmas string) SqliteOption {
	return func(c *sqliteConfig) { c.pragmas = pragmas }
}

// WithMaxOpenConns caps the connection pool. Zero leaves it unlimited.
func WithMaxOpenConns(n int) SqliteOption {
	return func(c *sqliteConfig) { c.maxOpenConns = n }
}

// NewSqliteDB opens a SQLite database with the compiled-in driver and
// applies the configured pragmas.
func NewSqliteDB(opts ...SqliteOption) (*sqlx.DB, error) {
	cfg := &sqliteConfig{path: memoryPath, pragmas: defaultPragmas}
	for _, opt := range opts {
		opt(cfg)
	}

	dsn := memoryPath
	if cfg.path != memoryPath {
		if err := utils.EnsureParent(cfg.path); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
		// Immediate transactions keep concurrent writers from tripping
		// over SQLITE_BUSY mid-transaction.
		dsn = fmt.Sprintf("file:%s?_txlock=immediate&mode=rwc", cfg.path)
	}

	slog.Debug("sqlite open", "driver", driverID, "path", cfg.path)
	conn, err := sqlx.Connect(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if cfg.maxOpenConns > 0 {
		conn.SetMaxOpenConns(cfg.maxOpenConns)
	}

	if _, err := conn.Exec(cfg.pragmas); err != nil {
		conn.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	return conn, nil
}
