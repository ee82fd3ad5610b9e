// Package db opens the SQLite database that backs the state store.
package db

import (
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/openmined/mirrorbox/internal/utils"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA temp_store=MEMORY",
}

type Option func(*sqlx.DB)

// WithMaxOpenConns caps the pool. The state store uses a single connection
// so every save sees the previous one.
func WithMaxOpenConns(n int) Option {
	return func(db *sqlx.DB) {
		db.SetMaxOpenConns(n)
		db.SetMaxIdleConns(n)
	}
}

// Open connects to the database at path, creating the file and its parent
// directory when missing.
func Open(path string, opts ...Option) (*sqlx.DB, error) {
	dsn := path
	if path != MemoryPath {
		if err := utils.EnsureParent(path); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
		dsn = "file:" + path + "?_txlock=immediate&mode=rwc"
	}

	slog.Debug("db open", "driver", driverID, "path", path)
	db, err := sqlx.Connect(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	for _, opt := range opts {
		opt(db)
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return db, nil
}
