package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/nudge/internal/model"
)

type NotificationStore struct {
	db DBTX
}

func NewNotificationStore(db DBTX) *NotificationStore {
	return &NotificationStore{db: db}
}

const notificationCols = `id, user_id, title, body, type, url, data, is_read, created_at`

func (s *NotificationStore) Create(ctx context.Context, userID int64, title, body, notifType, url, data string) (*model.Notification, error) {
	if data == "" {
		data = "{}"
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (user_id, title, body, type, url, data, is_read) VALUES (?, ?, ?, ?, ?, ?, 0)`,
		userID, title, body, notifType, url, data,
	)
	if err != nil {
		return nil, fmt.Errorf("insert notification: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *NotificationStore) GetByID(ctx context.Context, id int64) (*model.Notification, error) {
	var n model.Notification
	var readInt int
	err := s.db.QueryRowContext(ctx, `SELECT `+notificationCols+` FROM notifications WHERE id = ?`, id).
		Scan(&n.ID, &n.UserID, &n.Title, &n.Body, &n.Type, &n.URL, &n.Data, &readInt, &n.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	n.IsRead = readInt != 0
	return &n, nil
}

// ListByUser returns the user's notifications, newest first.
func (s *NotificationStore) ListByUser(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]model.Notification, error) {
	query := `SELECT ` + notificationCols + ` FROM notifications WHERE user_id = ?`
	if unreadOnly {
		query += ` AND is_read = 0`
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []model.Notification
	for rows.Next() {
		var n model.Notification
		var readInt int
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Body, &n.Type, &n.URL, &n.Data, &readInt, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.IsRead = readInt != 0
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *NotificationStore) CountUnread(ctx context.Context, userID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = 0`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// MarkRead reports false when the notification does not belong to the user.
func (s *NotificationStore) MarkRead(ctx context.Context, id, userID int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE notifications SET is_read = 1 WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return count > 0, nil
}

func (s *NotificationStore) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE notifications SET is_read = 1 WHERE user_id = ? AND is_read = 0`, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return result.RowsAffected()
}
