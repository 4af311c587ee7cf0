package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

const defaultBusyTimeoutMS = 5000

// DB owns the local SQLite file holding the offline booking queue.
// A single instance is opened at startup and injected where needed.
type DB struct {
	*sql.DB
	path   string
	logger *zerolog.Logger

	// writeMu serializes writers; SQLite allows one writer at a time.
	writeMu sync.Mutex
}

// Option tweaks how the database is opened.
type Option func(*options)

type options struct {
	busyTimeoutMS int
}

// WithBusyTimeout sets how long SQLite waits on a locked database.
func WithBusyTimeout(ms int) Option {
	return func(o *options) {
		if ms > 0 {
			o.busyTimeoutMS = ms
		}
	}
}

func NewDB(path string, logger *zerolog.Logger, opts ...Option) (*DB, error) {
	o := options{busyTimeoutMS: defaultBusyTimeoutMS}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	if !isMemory(path) {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dsn(path, o))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps :memory: databases coherent and matches
	// SQLite's single-writer model.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return &DB{DB: db, path: path, logger: logger}, nil
}

// Path returns the file the database was opened from.
func (db *DB) Path() string {
	return db.path
}

func dsn(path string, o options) string {
	params := fmt.Sprintf("_busy_timeout=%d", o.busyTimeoutMS)
	if !isMemory(path) {
		params += "&_journal_mode=WAL"
	}
	return path + "?" + params
}

func isMemory(path string) bool {
	return path == ":memory:" || strings.HasPrefix(path, "file::memory:")
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS pending_bookings (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            tutor_id TEXT NOT NULL,
            tutor_name TEXT,
            user_id TEXT NOT NULL,
            subject TEXT NOT NULL,
            scheduled_at INTEGER NOT NULL,
            notes TEXT,
            idempotency_key TEXT NOT NULL UNIQUE,
            created_at INTEGER NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS idx_pending_bookings_user_id ON pending_bookings(user_id)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}
