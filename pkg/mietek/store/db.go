// Package store provides the shared SQLite database that coordinates the
// bridge, processor and heartbeat processes. A single mietek.db file holds
// the message queue, user memory, reminders, outbound approvals, alert
// history and the bounded bot log. The whatsapp.db (whatsmeow session)
// remains a separate database.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver.
)

// schema is the DDL executed on every startup (idempotent via IF NOT EXISTS).
const schema = `
-- Inbound messages and their eventual responses.
CREATE TABLE IF NOT EXISTS message_queue (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    wa_message_id  TEXT NOT NULL,
    sender_jid     TEXT NOT NULL,
    text           TEXT NOT NULL,
    response       TEXT,
    status         TEXT NOT NULL DEFAULT 'pending',
    session_token  TEXT,
    created_at     TEXT NOT NULL,
    completed_at   TEXT,
    delivered_at   TEXT
);
CREATE INDEX IF NOT EXISTS idx_queue_status ON message_queue(status);

-- Durable facts about the user. Deletion flips is_active, never removes rows.
CREATE TABLE IF NOT EXISTS user_memory (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    category   TEXT NOT NULL DEFAULT 'fact',
    key        TEXT NOT NULL,
    value      TEXT NOT NULL,
    source     TEXT NOT NULL DEFAULT 'explicit',
    is_active  INTEGER DEFAULT 1,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memory_key ON user_memory(key, is_active);

CREATE TABLE IF NOT EXISTS reminders (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    text       TEXT NOT NULL,
    due_at     TEXT NOT NULL,
    recurrence TEXT,
    status     TEXT NOT NULL DEFAULT 'pending',
    created_at TEXT NOT NULL
);

-- AI-proposed messages to third parties awaiting operator approval.
CREATE TABLE IF NOT EXISTS outbound_messages (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    target_phone  TEXT NOT NULL,
    message       TEXT NOT NULL,
    status        TEXT NOT NULL DEFAULT 'pending_approval',
    session_token TEXT,
    created_at    TEXT NOT NULL,
    approved_at   TEXT,
    sent_at       TEXT
);

-- Alert dedup history for cooldown windows.
CREATE TABLE IF NOT EXISTS alert_history (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    dedup_key TEXT NOT NULL,
    type      TEXT NOT NULL,
    severity  TEXT NOT NULL DEFAULT 'warning',
    message   TEXT NOT NULL,
    sent_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alert_dedup ON alert_history(dedup_key, sent_at);

-- Non-critical alerts deferred during quiet hours, drained into the
-- morning summary.
CREATE TABLE IF NOT EXISTS pending_summary_items (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    type       TEXT NOT NULL,
    message    TEXT NOT NULL,
    created_at TEXT NOT NULL
);

-- Append-only bounded log mirror.
CREATE TABLE IF NOT EXISTS bot_logs (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    level      TEXT NOT NULL DEFAULT 'info',
    source     TEXT NOT NULL DEFAULT 'system',
    message    TEXT NOT NULL,
    created_at TEXT NOT NULL
);
`

// Store bundles the typed accessors sharing one database handle.
type Store struct {
	DB        *sql.DB
	Queue     *Queue
	Memory    *Memory
	Reminders *Reminders
	Outbound  *Outbound
	Alerts    *Alerts
	Summary   *Summary
	Logs      *Logs
}

// Open opens (or creates) the central mietek.db at the given path.
// Enables WAL mode for concurrent readers and creates all tables.
func Open(path string) (*Store, error) {
	if path == "" {
		path = "./data/mietek.db"
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory %q: %w", dir, err)
	}

	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", path, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{
		DB:        db,
		Queue:     &Queue{db: db},
		Memory:    &Memory{db: db},
		Reminders: &Reminders{db: db},
		Outbound:  &Outbound{db: db},
		Alerts:    &Alerts{db: db},
		Summary:   &Summary{db: db},
		Logs:      &Logs{db: db},
	}, nil
}

// OpenMemory opens an in-memory database for tests.
func OpenMemory() (*Store, error) {
	db, err := sql.Open("sqlite3", "file::memory:?cache=shared&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open in-memory database: %w", err)
	}
	// A single connection keeps the in-memory database alive and serializes
	// access the same way the on-disk WAL database does for one process.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{
		DB:        db,
		Queue:     &Queue{db: db},
		Memory:    &Memory{db: db},
		Reminders: &Reminders{db: db},
		Outbound:  &Outbound{db: db},
		Alerts:    &Alerts{db: db},
		Summary:   &Summary{db: db},
		Logs:      &Logs{db: db},
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.DB.Close()
}

// ---------- Time helpers ----------

// Timestamps are stored as RFC3339 UTC text so lexicographic SQL
// comparisons order them correctly.

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
