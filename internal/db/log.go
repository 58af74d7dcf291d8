package db

import (
	"context"
	"database/sql"
	"fmt"
)

// Tx is one transaction against the message log. All writes performed while
// answering a single user message go through one Tx so they commit or roll
// back together.
type Tx struct {
	tx *sql.Tx
}

// Begin starts a message log transaction.
func (l *Log) Begin(ctx context.Context) (*Tx, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin message tx: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// Append durably records a turn and returns its id (creation order).
func (t *Tx) Append(sessionID, role, content string) (int64, error) {
	res, err := t.tx.Exec(
		`INSERT INTO asset_messages (session_id, role, content) VALUES (?, ?, ?)`,
		sessionID, role, content,
	)
	if err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get message id: %w", err)
	}
	return id, nil
}

// Count returns the number of turns currently stored for the session,
// including uncommitted writes of this transaction.
func (t *Tx) Count(sessionID string) (int, error) {
	var count int
	err := t.tx.QueryRow(
		`SELECT COUNT(*) FROM asset_messages WHERE session_id = ?`,
		sessionID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

// Oldest returns the turn with the smallest id for the session, or nil when
// the session has no turns.
func (t *Tx) Oldest(sessionID string) (*Message, error) {
	var m Message
	err := t.tx.QueryRow(
		`SELECT id, session_id, role, content, created_at FROM asset_messages
		 WHERE session_id = ? ORDER BY id ASC LIMIT 1`,
		sessionID,
	).Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query oldest message: %w", err)
	}
	return &m, nil
}

// Delete removes a specific turn by id.
func (t *Tx) Delete(id int64) error {
	if _, err := t.tx.Exec(`DELETE FROM asset_messages WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete message %d: %w", id, err)
	}
	return nil
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	return t.tx.Commit()
}

// Rollback rolls the transaction back. Safe to call after Commit.
func (t *Tx) Rollback() error {
	err := t.tx.Rollback()
	if err == sql.ErrTxDone {
		return nil
	}
	return err
}

// Recent returns the most recent `limit` turns for the session in
// chronological order (oldest first). Used to rebuild the in-memory history
// after a process restart.
func (l *Log) Recent(sessionID string, limit int) ([]Message, error) {
	rows, err := l.db.Query(
		`SELECT id, session_id, role, content, created_at FROM asset_messages
		 WHERE session_id = ? ORDER BY id DESC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent messages: %w", err)
	}
	defer rows.Close()

	var results []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		results = append(results, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to chronological order.
	for i, j := 0, len(results)-1; i < j; i, j = i+1, j-1 {
		results[i], results[j] = results[j], results[i]
	}
	return results, nil
}
