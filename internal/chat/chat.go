package chat

import (
	"context"

	"github.com/sampattai/sarthi/internal/db"
)

// Turn roles. RoleContext is only used for the synthetic first turn that
// carries caller-supplied fund data; it lives in memory only and is never
// durably logged.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleContext   = "context"
)

// Turn is one message in a conversation. Order is the durable creation order
// assigned by the message log; it is zero for the synthetic context turn.
type Turn struct {
	SessionID string
	Role      string
	Content   string
	Order     int64
}

// Generator produces a reply from prior turns plus one new query turn.
type Generator interface {
	Generate(ctx context.Context, history []Turn, query string) (string, error)
}

// LogTx is one transaction against the durable message log. All writes made
// while answering a single user message commit or roll back together.
type LogTx interface {
	Append(sessionID, role, content string) (int64, error)
	Count(sessionID string) (int, error)
	Oldest(sessionID string) (*db.Message, error)
	Delete(id int64) error
	Commit() error
	Rollback() error
}

// Log opens message log transactions and reads back committed history.
type Log interface {
	Begin(ctx context.Context) (LogTx, error)
	Recent(sessionID string, limit int) ([]db.Message, error)
}

type sqliteLog struct {
	log *db.Log
}

func (s sqliteLog) Begin(ctx context.Context) (LogTx, error) {
	return s.log.Begin(ctx)
}

func (s sqliteLog) Recent(sessionID string, limit int) ([]db.Message, error) {
	return s.log.Recent(sessionID, limit)
}

// NewSQLiteLog adapts the SQLite message log to the Log interface.
func NewSQLiteLog(log *db.Log) Log {
	return sqliteLog{log: log}
}
