/*
Package core provides durable conversation persistence for the AlphaBot agent.

This file implements the SQLite-backed turn store. A turn is one completed
user/assistant exchange including a serialized record of any tool activity
that produced the assistant's reply. Turns are immutable once written; the
history builder reads back the most recent N per session and reverses them
into chronological order.

Concurrent appends for the same session are expected (same user,
overlapping tabs); ordering is resolved by the insertion timestamp, not by
the callers.
*/
package core

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// Turn is one persisted exchange. UserMessage and AssistantResponse are
// nullable: a pure tool-following turn has no user message, and a turn is
// incomplete until the loop produced the assistant text. ToolRecord holds
// the JSON-serialized tool activity for later history reconstruction.
type Turn struct {
	ID                int64     `json:"id"`
	SessionID         string    `json:"session_id"`
	UserID            string    `json:"user_id"`
	UserMessage       string    `json:"user_message"`
	AssistantResponse string    `json:"assistant_response"`
	ToolRecord        string    `json:"tool_record,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// SessionSummary describes one session for listing endpoints.
type SessionSummary struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	LastUpdated  string `json:"last_updated"`
	MessageCount int    `json:"message_count"`
}

// ConversationStore persists conversation turns in SQLite. All public
// methods are safe for concurrent use (SQLite serializes writes).
type ConversationStore struct {
	db     *sql.DB
	logger *logrus.Logger
}

// NewConversationStore opens (or creates) the turn database at the given
// path. The schema is created automatically on first use.
//
// Parameters:
//   - dbPath: SQLite database file path
//   - logger: Logger for operational monitoring
//
// Returns:
//   - *ConversationStore: Store ready for use
//   - error: Open or migration failure
func NewConversationStore(dbPath string, logger *logrus.Logger) (*ConversationStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &ConversationStore{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *ConversationStore) Close() error {
	return s.db.Close()
}

func (s *ConversationStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id                  INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id          TEXT NOT NULL,
		user_id             TEXT NOT NULL,
		user_message        TEXT,
		assistant_response  TEXT,
		tool_record         TEXT,
		created_at          TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_session
		ON conversations (session_id, created_at);
	CREATE TABLE IF NOT EXISTS tool_usage (
		user_id     TEXT PRIMARY KEY,
		call_count  INTEGER NOT NULL DEFAULT 0,
		updated_at  TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// IncrementUsage bumps the per-user tool call counter. It satisfies the
// usage recorder interface tools receive through their call context.
func (s *ConversationStore) IncrementUsage(ctx context.Context, userID string) error {
	if userID == "" {
		userID = "anonymous"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tool_usage (user_id, call_count, updated_at) VALUES (?, 1, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			call_count = call_count + 1,
			updated_at = excluded.updated_at`,
		userID, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("increment tool usage for user %s: %w", userID, err)
	}
	return nil
}

// ToolUsage returns the accumulated tool call count for a user. A user
// with no recorded calls yields zero.
func (s *ConversationStore) ToolUsage(userID string) (int64, error) {
	var count int64
	err := s.db.QueryRow(`SELECT call_count FROM tool_usage WHERE user_id = ?`, userID).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("tool usage for user %s: %w", userID, err)
	}
	return count, nil
}

// Append writes one completed turn. Each call represents a distinct turn;
// no deduplication is applied.
func (s *ConversationStore) Append(turn Turn) error {
	createdAt := turn.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.Exec(
		`INSERT INTO conversations (session_id, user_id, user_message, assistant_response, tool_record, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		turn.SessionID,
		turn.UserID,
		nullable(turn.UserMessage),
		nullable(turn.AssistantResponse),
		nullable(turn.ToolRecord),
		createdAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append turn for session %s: %w", turn.SessionID, err)
	}
	return nil
}

// RecentTurns returns up to limit turns for a session, most recent first.
// The history builder reverses the result into chronological order. An
// unknown or empty session id yields an empty slice, not an error.
func (s *ConversationStore) RecentTurns(sessionID string, limit int) ([]Turn, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, user_id, user_message, assistant_response, tool_record, created_at
		 FROM conversations
		 WHERE session_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent turns for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	return scanTurns(rows)
}

// SessionTurns returns every turn for a session in chronological order.
func (s *ConversationStore) SessionTurns(sessionID string) ([]Turn, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, user_id, user_message, assistant_response, tool_record, created_at
		 FROM conversations
		 WHERE session_id = ?
		 ORDER BY created_at ASC, id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("turns for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	return scanTurns(rows)
}

// Sessions lists a user's sessions, most recently active first. The title
// is the first user message of the session, truncated to 30 characters.
func (s *ConversationStore) Sessions(userID string) ([]SessionSummary, error) {
	rows, err := s.db.Query(
		`SELECT session_id, MAX(created_at) AS last_updated, COUNT(id) AS message_count
		 FROM conversations
		 WHERE user_id = ?
		 GROUP BY session_id
		 ORDER BY last_updated DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sessions for user %s: %w", userID, err)
	}
	defer rows.Close()

	var summaries []SessionSummary
	for rows.Next() {
		var summary SessionSummary
		if err := rows.Scan(&summary.ID, &summary.LastUpdated, &summary.MessageCount); err != nil {
			return nil, fmt.Errorf("scan session summary: %w", err)
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range summaries {
		title, err := s.firstUserMessage(summaries[i].ID, userID)
		if err != nil {
			s.logger.WithError(err).WithField("sessionID", summaries[i].ID).Warn("Failed to resolve session title")
			title = ""
		}
		if title == "" {
			title = "New session"
		}
		if runes := []rune(title); len(runes) > 30 {
			title = string(runes[:30]) + "..."
		}
		summaries[i].Title = title
	}

	return summaries, nil
}

func (s *ConversationStore) firstUserMessage(sessionID, userID string) (string, error) {
	var message sql.NullString
	err := s.db.QueryRow(
		`SELECT user_message FROM conversations
		 WHERE session_id = ? AND user_id = ? AND user_message IS NOT NULL
		 ORDER BY created_at ASC, id ASC
		 LIMIT 1`,
		sessionID, userID,
	).Scan(&message)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return message.String, nil
}

// DeleteSession removes every turn of a session and returns the number of
// deleted rows.
func (s *ConversationStore) DeleteSession(sessionID string) (int64, error) {
	result, err := s.db.Exec(`DELETE FROM conversations WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	deleted, _ := result.RowsAffected()
	if deleted > 0 {
		s.logger.WithFields(logrus.Fields{
			"sessionID":    sessionID,
			"deletedTurns": deleted,
		}).Info("Session deleted")
	}
	return deleted, nil
}

func scanTurns(rows *sql.Rows) ([]Turn, error) {
	var turns []Turn
	for rows.Next() {
		var (
			turn                                   Turn
			userMessage, assistantResponse, record sql.NullString
			createdAt                              string
		)
		if err := rows.Scan(&turn.ID, &turn.SessionID, &turn.UserID, &userMessage, &assistantResponse, &record, &createdAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turn.UserMessage = userMessage.String
		turn.AssistantResponse = assistantResponse.String
		turn.ToolRecord = record.String
		if parsed, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			turn.CreatedAt = parsed
		}
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}
