package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/nudge/internal/model"
)

// ConversationStore is the slice of the messaging subsystem reminders need:
// a conversation per user pair and the ability to post into it.
type ConversationStore struct {
	db DBTX
}

func NewConversationStore(db DBTX) *ConversationStore {
	return &ConversationStore{db: db}
}

func orderedPair(a, b int64) (int64, int64) {
	if a < b {
		return a, b
	}
	return b, a
}

// GetOrCreateConversation returns the conversation between two users,
// creating it on first use.
func (s *ConversationStore) GetOrCreateConversation(ctx context.Context, u1, u2 int64) (int64, error) {
	low, high := orderedPair(u1, u2)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (user_low, user_high) VALUES (?, ?) ON CONFLICT(user_low, user_high) DO NOTHING`,
		low, high,
	)
	if err != nil {
		return 0, fmt.Errorf("create conversation: %w", err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM conversations WHERE user_low = ? AND user_high = ?`, low, high,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("get conversation: %w", err)
	}
	return id, nil
}

func (s *ConversationStore) PostMessage(ctx context.Context, conversationID, senderID int64, text, msgType string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, sender_id, body, message_type) VALUES (?, ?, ?, ?)`,
		conversationID, senderID, text, msgType,
	)
	if err != nil {
		return 0, fmt.Errorf("post message: %w", err)
	}
	return result.LastInsertId()
}

func (s *ConversationStore) ListMessages(ctx context.Context, conversationID int64) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, sender_id, body, message_type, created_at
		 FROM messages WHERE conversation_id = ? ORDER BY created_at ASC, id ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Body, &m.MessageType, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetConversation returns nil when no conversation exists with that id.
func (s *ConversationStore) GetConversation(ctx context.Context, id int64) (*model.Conversation, error) {
	var c model.Conversation
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_low, user_high, created_at FROM conversations WHERE id = ?`, id,
	).Scan(&c.ID, &c.UserLow, &c.UserHigh, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return &c, nil
}
