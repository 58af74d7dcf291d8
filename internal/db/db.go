package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Open opens (or creates) a SQLite database at the given path, ensuring
// that the parent directory exists.
func Open(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create db directory %s: %w", dir, err)
		}
	}

	database, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open db at %s: %w", path, err)
	}

	if err := database.Ping(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to ping db at %s: %w", path, err)
	}

	return database, nil
}

// InitSchema creates the asset_messages table.
func InitSchema(database *sql.DB) error {
	_, err := database.Exec(`
		CREATE TABLE IF NOT EXISTS asset_messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at INTEGER NOT NULL DEFAULT (unixepoch())
		);
		CREATE INDEX IF NOT EXISTS idx_asset_messages_session_id ON asset_messages(session_id, id);
	`)
	return err
}

// Message is one durably stored chat turn. ID doubles as creation order:
// within a session it is strictly increasing and defines eviction order.
type Message struct {
	ID        int64
	SessionID string
	Role      string
	Content   string
	CreatedAt int64
}

// Log provides transactional access to the asset_messages table.
type Log struct {
	db *sql.DB
}

// NewLog creates a Log over an opened database.
func NewLog(database *sql.DB) *Log {
	return &Log{db: database}
}
