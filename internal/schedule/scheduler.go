package schedule

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/nudge/internal/metrics"
	"github.com/dukerupert/nudge/internal/model"
	"github.com/dukerupert/nudge/internal/push"
	"github.com/dukerupert/nudge/internal/store"
)

const defaultBatchSize = 100

// Sender delivers a notice to a user.
type Sender interface {
	Send(ctx context.Context, userID int64, msg push.Message) (push.Report, error)
}

// SweepResult counts what one FireDue call did.
type SweepResult struct {
	Fired   int `json:"fired"`
	Skipped int `json:"skipped"`
	Lost    int `json:"lost"`
	Failed  int `json:"failed"`
}

// Scheduler turns reminder offsets into scheduled notification rows and
// fires them when they come due.
type Scheduler struct {
	schedules *store.ScheduleStore
	reminders *store.ReminderStore
	sender    Sender
	logger    *slog.Logger
	batchSize int
}

func New(schedules *store.ScheduleStore, reminders *store.ReminderStore, sender Sender, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		schedules: schedules,
		reminders: reminders,
		sender:    sender,
		logger:    logger,
		batchSize: defaultBatchSize,
	}
}

// WithTx returns a scheduler whose writes join tx.
func (s *Scheduler) WithTx(tx *sql.Tx) *Scheduler {
	cp := *s
	cp.schedules = s.schedules.WithTx(tx)
	cp.reminders = s.reminders.WithTx(tx)
	return &cp
}

// ScheduleInitial writes a row for every BeforeEvent offset of a new
// reminder. AfterAcceptance offsets wait for Reschedule, since they have no
// anchor until the reminder is accepted.
func (s *Scheduler) ScheduleInitial(ctx context.Context, r *model.Reminder) (int, error) {
	written := 0
	for _, o := range r.Offsets {
		if o.Kind != model.BeforeEvent {
			continue
		}
		at, notifType, _ := o.FireAt(r.EventDate, nil)
		if _, err := s.schedules.Insert(ctx, r.ID, r.RecipientID, at, notifType); err != nil {
			return written, fmt.Errorf("schedule initial: %w", err)
		}
		written++
	}
	return written, nil
}

type firedKey struct {
	at        int64
	notifType string
}

// Reschedule replaces the reminder's pending rows with one per offset. An
// offset whose instant already fired keeps its fired row instead of getting
// a duplicate, so the reminder ends with exactly len(offsets) rows.
func (s *Scheduler) Reschedule(ctx context.Context, r *model.Reminder, offsets model.Offsets) (int, error) {
	if _, err := s.schedules.DeleteUnfired(ctx, r.ID); err != nil {
		return 0, fmt.Errorf("reschedule: %w", err)
	}

	existing, err := s.schedules.ListByReminder(ctx, r.ID)
	if err != nil {
		return 0, fmt.Errorf("reschedule: %w", err)
	}
	fired := make(map[firedKey]bool, len(existing))
	for _, n := range existing {
		fired[firedKey{n.ScheduledFor.Unix(), n.NotificationType}] = true
	}

	written := 0
	for _, o := range offsets {
		at, notifType, ok := o.FireAt(r.EventDate, r.RespondedAt)
		if !ok {
			s.logger.Warn("offset has no anchor", "reminder_id", r.ID, "offset", o.String())
			continue
		}
		if fired[firedKey{at.Unix(), notifType}] {
			continue
		}
		if _, err := s.schedules.Insert(ctx, r.ID, r.RecipientID, at, notifType); err != nil {
			return written, fmt.Errorf("reschedule: %w", err)
		}
		written++
	}
	return written, nil
}

// Cancel removes every scheduled row for the reminder.
func (s *Scheduler) Cancel(ctx context.Context, r *model.Reminder) (int64, error) {
	n, err := s.schedules.DeleteByReminder(ctx, r.ID)
	if err != nil {
		return 0, fmt.Errorf("cancel schedule: %w", err)
	}
	return n, nil
}

// FireDue claims and dispatches every row due at now. Each row is claimed
// with a conditional update before dispatch, so concurrent sweeps never
// deliver the same row twice.
func (s *Scheduler) FireDue(ctx context.Context, now time.Time) (SweepResult, error) {
	var res SweepResult

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		due, err := s.schedules.ListDue(ctx, now, s.batchSize)
		if err != nil {
			return res, fmt.Errorf("fire due: %w", err)
		}

		progressed := 0
		for _, n := range due {
			claimed, err := s.schedules.Claim(ctx, n.ID, now)
			if err != nil {
				res.Failed++
				s.logger.Error("claim scheduled notification", "id", n.ID, "error", err)
				continue
			}
			if !claimed {
				res.Lost++
				progressed++
				continue
			}
			progressed++

			if s.dispatch(ctx, n, now) {
				res.Fired++
				metrics.ScheduledFiredTotal.WithLabelValues(n.NotificationType).Inc()
			} else {
				res.Skipped++
			}
		}

		if len(due) < s.batchSize || progressed == 0 {
			return res, nil
		}
	}
}

func (s *Scheduler) dispatch(ctx context.Context, n model.ScheduledNotification, now time.Time) bool {
	r, err := s.reminders.GetByID(ctx, n.ReminderID)
	if err != nil {
		s.logger.Error("load reminder for scheduled notification", "id", n.ID, "reminder_id", n.ReminderID, "error", err)
		return false
	}
	if r == nil || r.Status == model.StatusDeclined {
		return false
	}

	msg := scheduledMessage(r, n, now)
	report, err := s.sender.Send(ctx, n.UserID, msg)
	if err != nil {
		// The claim stands; a second attempt could double-deliver.
		s.logger.Error("dispatch scheduled notification", "id", n.ID, "reminder_id", r.ID, "error", err)
		return false
	}

	s.logger.Info("fired scheduled notification",
		"id", n.ID,
		"reminder_id", r.ID,
		"type", n.NotificationType,
		"devices", report.Devices,
		"delivered", report.Delivered,
	)
	return true
}
