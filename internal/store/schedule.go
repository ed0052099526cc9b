package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/nudge/internal/model"
)

type ScheduleStore struct {
	db DBTX
}

func NewScheduleStore(db DBTX) *ScheduleStore {
	return &ScheduleStore{db: db}
}

// WithTx returns a copy of the store bound to tx.
func (s *ScheduleStore) WithTx(tx *sql.Tx) *ScheduleStore {
	return &ScheduleStore{db: tx}
}

const scheduleCols = `id, reminder_id, user_id, scheduled_for, notification_type, fired, fired_at`

func (s *ScheduleStore) Insert(ctx context.Context, reminderID, userID int64, at time.Time, notifType string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO scheduled_notifications (reminder_id, user_id, scheduled_for, notification_type) VALUES (?, ?, ?, ?)`,
		reminderID, userID, at.UTC(), notifType,
	)
	if err != nil {
		return 0, fmt.Errorf("insert scheduled notification: %w", err)
	}
	return result.LastInsertId()
}

func (s *ScheduleStore) ListByReminder(ctx context.Context, reminderID int64) ([]model.ScheduledNotification, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+scheduleCols+` FROM scheduled_notifications WHERE reminder_id = ? ORDER BY scheduled_for ASC, id ASC`,
		reminderID,
	)
	if err != nil {
		return nil, fmt.Errorf("list scheduled notifications: %w", err)
	}
	defer rows.Close()
	return scanScheduled(rows)
}

// ListDue returns unfired rows whose time has come, oldest first.
func (s *ScheduleStore) ListDue(ctx context.Context, now time.Time, limit int) ([]model.ScheduledNotification, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+scheduleCols+` FROM scheduled_notifications
		 WHERE fired = 0 AND scheduled_for <= ?
		 ORDER BY scheduled_for ASC, id ASC
		 LIMIT ?`,
		now.UTC(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list due notifications: %w", err)
	}
	defer rows.Close()
	return scanScheduled(rows)
}

// Claim marks a row fired. It reports false when another sweeper got there first.
func (s *ScheduleStore) Claim(ctx context.Context, id int64, now time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_notifications SET fired = 1, fired_at = ? WHERE id = ? AND fired = 0`,
		now.UTC(), id,
	)
	if err != nil {
		return false, fmt.Errorf("claim scheduled notification: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return count == 1, nil
}

func (s *ScheduleStore) DeleteUnfired(ctx context.Context, reminderID int64) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM scheduled_notifications WHERE reminder_id = ? AND fired = 0`, reminderID)
	if err != nil {
		return 0, fmt.Errorf("delete unfired notifications: %w", err)
	}
	return result.RowsAffected()
}

func (s *ScheduleStore) DeleteByReminder(ctx context.Context, reminderID int64) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM scheduled_notifications WHERE reminder_id = ?`, reminderID)
	if err != nil {
		return 0, fmt.Errorf("delete scheduled notifications: %w", err)
	}
	return result.RowsAffected()
}

// CleanupFired deletes fired rows older than before.
func (s *ScheduleStore) CleanupFired(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM scheduled_notifications WHERE fired = 1 AND fired_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("cleanup fired notifications: %w", err)
	}
	return result.RowsAffected()
}

func scanScheduled(rows *sql.Rows) ([]model.ScheduledNotification, error) {
	var out []model.ScheduledNotification
	for rows.Next() {
		var n model.ScheduledNotification
		var firedInt int
		var firedAt sql.NullTime
		if err := rows.Scan(&n.ID, &n.ReminderID, &n.UserID, &n.ScheduledFor, &n.NotificationType, &firedInt, &firedAt); err != nil {
			return nil, fmt.Errorf("scan scheduled notification: %w", err)
		}
		n.ScheduledFor = n.ScheduledFor.UTC()
		n.Fired = firedInt != 0
		if firedAt.Valid {
			t := firedAt.Time.UTC()
			n.FiredAt = &t
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
