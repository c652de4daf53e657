package store

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// Message is one turn of a conversation as recorded by the LLM adapter.
// IDs are ULIDs, so lexical order is chronological order.
type Message struct {
	ID        string
	ChatID    string
	Role      string
	Content   string
	CreatedAt time.Time
}

// Chat message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// AppendMessage records one message at the tail of a conversation's log.
func (s *Store) AppendMessage(ctx context.Context, chatID, role, content string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO messages (id, chat_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)
`, ulid.Make().String(), chatID, role, content, now.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("%w: append message for %q: %v", ErrUnavailable, chatID, err)
	}
	return nil
}

// History returns up to n of the most recent messages for chatID, oldest
// first. The turn pipeline reads this view but never writes it.
func (s *Store) History(ctx context.Context, chatID string, n int) ([]Message, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, chat_id, role, content, created_at
FROM (
	SELECT id, chat_id, role, content, created_at
	FROM messages WHERE chat_id = ?
	ORDER BY id DESC LIMIT ?
)
ORDER BY id ASC
`, chatID, n)
	if err != nil {
		return nil, fmt.Errorf("%w: history for %q: %v", ErrUnavailable, chatID, err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		var created string
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Role, &m.Content, &created); err != nil {
			return nil, fmt.Errorf("%w: scan message: %v", ErrUnavailable, err)
		}
		m.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate messages: %v", ErrUnavailable, err)
	}
	return messages, nil
}
