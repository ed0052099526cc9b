package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/nudge/internal/model"
)

type PresenceStore struct {
	db DBTX
}

func NewPresenceStore(db DBTX) *PresenceStore {
	return &PresenceStore{db: db}
}

func (s *PresenceStore) Upsert(ctx context.Context, userID int64, online bool, conversationID *int64, lastSeen time.Time) error {
	var onlineInt int
	if online {
		onlineInt = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO presence (user_id, is_online, last_seen, current_conversation_id)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET is_online = excluded.is_online, last_seen = excluded.last_seen,
		   current_conversation_id = excluded.current_conversation_id`,
		userID, onlineInt, lastSeen.UTC(), nullInt64(conversationID),
	)
	if err != nil {
		return fmt.Errorf("upsert presence: %w", err)
	}
	return nil
}

func (s *PresenceStore) Get(ctx context.Context, userID int64) (*model.Presence, error) {
	var p model.Presence
	var onlineInt int
	var conversationID sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, is_online, last_seen, current_conversation_id FROM presence WHERE user_id = ?`, userID,
	).Scan(&p.UserID, &onlineInt, &p.LastSeen, &conversationID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get presence: %w", err)
	}
	p.IsOnline = onlineInt != 0
	p.LastSeen = p.LastSeen.UTC()
	if conversationID.Valid {
		p.CurrentConversationID = &conversationID.Int64
	}
	return &p, nil
}
