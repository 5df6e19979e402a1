// Package store persists conversation transcripts in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"CodeChat/internal/session"
)

// ErrNotFound is returned when a conversation has never been written.
var ErrNotFound = errors.New("conversation not found")

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	created_at DATETIME,
	backend TEXT
);
CREATE TABLE IF NOT EXISTS messages (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id TEXT NOT NULL,
	message_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	timestamp DATETIME,
	FOREIGN KEY(conversation_id) REFERENCES conversations(id)
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, seq);`

// Store is a SQLite-backed transcript store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append adds messages to the end of a conversation, creating it on first
// use.
func (s *Store) Append(ctx context.Context, conversationID, backend string, msgs ...session.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := ensureConversation(ctx, tx, conversationID, backend, s.now()); err != nil {
		return err
	}
	if err := insertMessages(ctx, tx, conversationID, msgs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Load returns the conversation in insertion order.
func (s *Store) Load(ctx context.Context, conversationID string) (*session.Conversation, error) {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM conversations WHERE id = ?", conversationID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT message_id, role, content, timestamp FROM messages WHERE conversation_id = ? ORDER BY seq",
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	conv := &session.Conversation{ID: conversationID, Messages: []session.Message{}}
	for rows.Next() {
		var msg session.Message
		var role string
		if err := rows.Scan(&msg.ID, &role, &msg.Content, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Role = session.Role(role)
		conv.Append(msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}
	return conv, nil
}

// Reset replaces the transcript with the single greeting message.
func (s *Store) Reset(ctx context.Context, conversationID, backend string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now()
	if err := ensureConversation(ctx, tx, conversationID, backend, now); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE conversation_id = ?", conversationID); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}

	conv := session.Conversation{ID: conversationID}
	conv.Clear(now)
	if err := insertMessages(ctx, tx, conversationID, conv.Messages); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func ensureConversation(ctx context.Context, tx *sql.Tx, id, backend string, now time.Time) error {
	_, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO conversations (id, created_at, backend) VALUES (?, ?, ?)",
		id, now.UTC(), backend,
	)
	if err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	return nil
}

func insertMessages(ctx context.Context, tx *sql.Tx, conversationID string, msgs []session.Message) error {
	for _, msg := range msgs {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO messages (conversation_id, message_id, role, content, timestamp) VALUES (?, ?, ?, ?, ?)",
			conversationID, msg.ID, string(msg.Role), msg.Content, msg.Timestamp.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to save message: %w", err)
		}
	}
	return nil
}
