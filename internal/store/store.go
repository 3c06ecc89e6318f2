// Package store persists chat messages and the roulette ledger in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// ErrDuplicate is returned when a unique constraint rejects a write.
var ErrDuplicate = errors.New("store: duplicate row")

// Store is the SQLite-backed message and roulette store.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open creates the database file if needed and applies the schema.
func Open(dbPath string, log zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db, log: log}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS messages (
		chat_id     TEXT    NOT NULL,
		message_id  TEXT    NOT NULL,
		user_id     TEXT    NOT NULL,
		username    TEXT,
		text        TEXT    NOT NULL,
		reply_to_id TEXT,
		is_bot      INTEGER NOT NULL DEFAULT 0,
		created_at  INTEGER NOT NULL,
		PRIMARY KEY (chat_id, message_id)
	);
	CREATE INDEX IF NOT EXISTS idx_messages_chat_time ON messages(chat_id, created_at);

	CREATE TABLE IF NOT EXISTS roulette_winners (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id    TEXT    NOT NULL,
		user_id    TEXT    NOT NULL,
		username   TEXT,
		title_code TEXT    NOT NULL,
		title      TEXT    NOT NULL,
		won_at     TEXT    NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_winners_chat_day ON roulette_winners(chat_id, won_at);

	CREATE TABLE IF NOT EXISTS roulette_participants (
		chat_id       TEXT    NOT NULL,
		user_id       TEXT    NOT NULL,
		username      TEXT,
		registered_at INTEGER NOT NULL,
		PRIMARY KEY (chat_id, user_id)
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY constraint failed")
}
