package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dukerupert/nudge/internal/model"
)

type ReminderStore struct {
	db DBTX
}

func NewReminderStore(db DBTX) *ReminderStore {
	return &ReminderStore{db: db}
}

// WithTx returns a copy of the store bound to tx.
func (s *ReminderStore) WithTx(tx *sql.Tx) *ReminderStore {
	return &ReminderStore{db: tx}
}

const reminderCols = `id, sender_id, recipient_id, reminder_type, title, description, event_date, location,
	remind_before_hours, status, response_message, responded_at, linked_conversation_id, created_at`

type reminderScanner interface {
	Scan(dest ...any) error
}

func scanReminder(sc reminderScanner) (*model.Reminder, error) {
	var r model.Reminder
	var description, location, response sql.NullString
	var respondedAt sql.NullTime
	var conversationID sql.NullInt64
	var offsets string

	if err := sc.Scan(&r.ID, &r.SenderID, &r.RecipientID, &r.Type, &r.Title, &description, &r.EventDate, &location,
		&offsets, &r.Status, &response, &respondedAt, &conversationID, &r.CreatedAt); err != nil {
		return nil, err
	}

	if description.Valid {
		r.Description = &description.String
	}
	if location.Valid {
		r.Location = &location.String
	}
	if response.Valid {
		r.ResponseMessage = &response.String
	}
	if respondedAt.Valid {
		t := respondedAt.Time.UTC()
		r.RespondedAt = &t
	}
	if conversationID.Valid {
		r.LinkedConversationID = &conversationID.Int64
	}
	r.EventDate = r.EventDate.UTC()

	var wire []int
	if err := json.Unmarshal([]byte(offsets), &wire); err != nil {
		return nil, fmt.Errorf("decode offsets %q: %w", offsets, err)
	}
	parsed, err := model.ParseOffsets(wire)
	if err != nil {
		return nil, fmt.Errorf("parse offsets %q: %w", offsets, err)
	}
	r.Offsets = parsed

	return &r, nil
}

func encodeOffsets(offsets model.Offsets) (string, error) {
	data, err := json.Marshal(offsets.Wire())
	if err != nil {
		return "", fmt.Errorf("encode offsets: %w", err)
	}
	return string(data), nil
}

// CreateParams holds the fields of a new reminder.
type CreateParams struct {
	SenderID    int64
	RecipientID int64
	Type        model.ReminderType
	Title       string
	Description *string
	EventDate   time.Time
	Location    *string
	Offsets     model.Offsets
}

func (s *ReminderStore) Create(ctx context.Context, p CreateParams) (*model.Reminder, error) {
	offsets, err := encodeOffsets(p.Offsets)
	if err != nil {
		return nil, err
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders (sender_id, recipient_id, reminder_type, title, description, event_date, location, remind_before_hours, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.SenderID, p.RecipientID, p.Type, p.Title, nullString(p.Description), p.EventDate.UTC(), nullString(p.Location),
		offsets, model.StatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("insert reminder: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.GetByID(ctx, id)
}

func (s *ReminderStore) GetByID(ctx context.Context, id int64) (*model.Reminder, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reminderCols+` FROM reminders WHERE id = ?`, id)
	r, err := scanReminder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reminder: %w", err)
	}
	return r, nil
}

// TransitionParams describes a pending reminder being resolved.
type TransitionParams struct {
	ID              int64
	Status          model.ReminderStatus
	ResponseMessage *string
	RespondedAt     time.Time
	// Offsets replaces the stored offsets when non-nil.
	Offsets model.Offsets
}

// Transition moves a pending reminder to a terminal status. It reports false
// when the reminder was no longer pending, which means another request won.
func (s *ReminderStore) Transition(ctx context.Context, p TransitionParams) (bool, error) {
	var offsets sql.NullString
	if p.Offsets != nil {
		enc, err := encodeOffsets(p.Offsets)
		if err != nil {
			return false, err
		}
		offsets = sql.NullString{String: enc, Valid: true}
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE reminders
		 SET status = ?, response_message = ?, responded_at = ?,
		     remind_before_hours = COALESCE(?, remind_before_hours)
		 WHERE id = ? AND status = ?`,
		p.Status, nullString(p.ResponseMessage), p.RespondedAt.UTC(), offsets, p.ID, model.StatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("transition reminder: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return count == 1, nil
}

func (s *ReminderStore) LinkConversation(ctx context.Context, id, conversationID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE reminders SET linked_conversation_id = ? WHERE id = ?`, conversationID, id)
	if err != nil {
		return fmt.Errorf("link conversation: %w", err)
	}
	return nil
}

// ListFilter narrows ListForUser. Empty fields match everything.
type ListFilter struct {
	Sent     bool
	Received bool
	Status   model.ReminderStatus
}

// ListForUser returns reminders the user sent and/or received, soonest event first.
func (s *ReminderStore) ListForUser(ctx context.Context, userID int64, f ListFilter) ([]model.Reminder, error) {
	query := `SELECT ` + reminderCols + ` FROM reminders WHERE `
	var args []any

	switch {
	case f.Sent && !f.Received:
		query += `sender_id = ?`
		args = append(args, userID)
	case f.Received && !f.Sent:
		query += `recipient_id = ?`
		args = append(args, userID)
	default:
		query += `(sender_id = ? OR recipient_id = ?)`
		args = append(args, userID, userID)
	}

	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	query += ` ORDER BY event_date ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	defer rows.Close()

	var reminders []model.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		reminders = append(reminders, *r)
	}
	return reminders, rows.Err()
}
