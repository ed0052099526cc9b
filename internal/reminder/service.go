package reminder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dukerupert/nudge/internal/database"
	"github.com/dukerupert/nudge/internal/guard"
	"github.com/dukerupert/nudge/internal/metrics"
	"github.com/dukerupert/nudge/internal/model"
	"github.com/dukerupert/nudge/internal/push"
	"github.com/dukerupert/nudge/internal/schedule"
	"github.com/dukerupert/nudge/internal/store"
)

const (
	maxTitleLen       = 200
	maxDescriptionLen = 2000
	maxLocationLen    = 300
	maxMessageLen     = 500

	cancelledBySender = "cancelled by sender"
)

// Notifier delivers an immediate notice without waiting on push.
type Notifier interface {
	Notify(ctx context.Context, userID int64, msg push.Message) (*model.Notification, error)
}

// Messenger is the conversation subsystem acceptances are acknowledged in.
type Messenger interface {
	GetOrCreateConversation(ctx context.Context, u1, u2 int64) (int64, error)
	PostMessage(ctx context.Context, conversationID, senderID int64, text, msgType string) (int64, error)
}

type Config struct {
	RateLimit  int
	RateWindow time.Duration
}

// Manager owns reminder creation and the pending to accepted/declined
// transition. The status update is authoritative; scheduling, messaging and
// notices after it are best-effort.
type Manager struct {
	db        *sql.DB
	reminders *store.ReminderStore
	scheduler *schedule.Scheduler
	notifier  Notifier
	messenger Messenger
	limiter   *guard.RateLimiter
	cfg       Config
	now       func() time.Time
	logger    *slog.Logger
}

func NewManager(db *sql.DB, reminders *store.ReminderStore, scheduler *schedule.Scheduler, notifier Notifier, messenger Messenger, limiter *guard.RateLimiter, cfg Config, logger *slog.Logger) *Manager {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 5
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Minute
	}
	return &Manager{
		db:        db,
		reminders: reminders,
		scheduler: scheduler,
		notifier:  notifier,
		messenger: messenger,
		limiter:   limiter,
		cfg:       cfg,
		now:       time.Now,
		logger:    logger,
	}
}

type CreateInput struct {
	SenderID    int64
	SenderName  string
	RecipientID int64
	Type        model.ReminderType
	Title       string
	Description *string
	EventDate   time.Time
	Location    *string
	// Offsets in wire form. Empty means the defaults.
	Offsets []int
}

// Create validates and stores a new pending reminder with its initial
// schedule, then tells the recipient about it.
func (m *Manager) Create(ctx context.Context, in CreateInput) (*model.Reminder, error) {
	now := m.now()
	in.Title = strings.TrimSpace(in.Title)

	if in.RecipientID <= 0 {
		return nil, validation("invalid_recipient", "recipient_id is required")
	}
	if !in.Type.Valid() {
		return nil, validation("invalid_type", fmt.Sprintf("unknown reminder_type %q", in.Type))
	}
	if n := utf8.RuneCountInString(in.Title); n == 0 || n > maxTitleLen {
		return nil, validation("invalid_title", fmt.Sprintf("title must be 1-%d characters", maxTitleLen))
	}
	if in.Description != nil && utf8.RuneCountInString(*in.Description) > maxDescriptionLen {
		return nil, validation("description_too_long", fmt.Sprintf("description must be at most %d characters", maxDescriptionLen))
	}
	if in.Location != nil && utf8.RuneCountInString(*in.Location) > maxLocationLen {
		return nil, validation("location_too_long", fmt.Sprintf("location must be at most %d characters", maxLocationLen))
	}
	if in.EventDate.IsZero() || !in.EventDate.After(now) {
		return nil, validation("past_event_date", "event_date must be in the future")
	}

	offsets := model.DefaultOffsets()
	if len(in.Offsets) > 0 {
		var err *Error
		if offsets, err = parseOffsets(in.Type, in.Offsets); err != nil {
			return nil, err
		}
	}

	if containsSpam(in.Title, deref(in.Description), deref(in.Location)) {
		return nil, validation("spam_detected", "content looks like spam")
	}

	if res := m.limiter.CheckRateLimit(in.SenderID, m.cfg.RateLimit, m.cfg.RateWindow); !res.Allowed {
		metrics.RateLimitRejectionsTotal.Inc()
		m.logger.Warn("reminder rate limited", "sender_id", in.SenderID)
		return nil, &Error{Kind: ErrRateLimited, Code: "rate_limited", Message: "too many reminders, try again later"}
	}

	var r *model.Reminder
	err := database.InTx(ctx, m.db, func(tx *sql.Tx) error {
		var err error
		r, err = m.reminders.WithTx(tx).Create(ctx, store.CreateParams{
			SenderID:    in.SenderID,
			RecipientID: in.RecipientID,
			Type:        in.Type,
			Title:       in.Title,
			Description: in.Description,
			EventDate:   in.EventDate,
			Location:    in.Location,
			Offsets:     offsets,
		})
		if err != nil {
			return err
		}
		_, err = m.scheduler.WithTx(tx).ScheduleInitial(ctx, r)
		return err
	})
	if err != nil {
		m.logger.Error("create reminder", "sender_id", in.SenderID, "error", err)
		return nil, persistence("create reminder", err)
	}

	metrics.ReminderTransitionsTotal.WithLabelValues("created").Inc()
	m.logger.Info("reminder created", "id", r.ID, "sender_id", r.SenderID, "recipient_id", r.RecipientID, "type", r.Type)

	m.notify(ctx, r.RecipientID, inviteMessage(r, in.SenderName))
	return r, nil
}

type RespondInput struct {
	ReminderID    int64
	ResponderID   int64
	ResponderName string
	Status        model.ReminderStatus
	Message       *string
	// Offsets replace the reminder's offsets on accept. Nil keeps them.
	Offsets []int
}

// Respond accepts or declines a pending reminder on behalf of its recipient.
func (m *Manager) Respond(ctx context.Context, in RespondInput) (*model.Reminder, error) {
	if in.Status != model.StatusAccepted && in.Status != model.StatusDeclined {
		return nil, validation("invalid_status", "status must be accepted or declined")
	}

	r, err := m.reminders.GetByID(ctx, in.ReminderID)
	if err != nil {
		return nil, persistence("load reminder", err)
	}
	if r == nil {
		return nil, notFound()
	}
	if r.RecipientID != in.ResponderID {
		return nil, forbidden("only the recipient can respond to this reminder")
	}
	if r.Status != model.StatusPending {
		metrics.ReminderTransitionsTotal.WithLabelValues("conflict").Inc()
		return nil, conflict(fmt.Sprintf("reminder is already %s", r.Status))
	}

	if in.Message != nil {
		if utf8.RuneCountInString(*in.Message) > maxMessageLen {
			return nil, validation("message_too_long", fmt.Sprintf("response_message must be at most %d characters", maxMessageLen))
		}
		if guard.DetectSpam(*in.Message) {
			return nil, validation("spam_detected", "content looks like spam")
		}
	}

	var offsets model.Offsets
	if in.Status == model.StatusAccepted && in.Offsets != nil {
		var verr *Error
		if offsets, verr = parseOffsets(r.Type, in.Offsets); verr != nil {
			return nil, verr
		}
	}

	respondedAt := m.now()
	won, err := m.reminders.Transition(ctx, store.TransitionParams{
		ID:              r.ID,
		Status:          in.Status,
		ResponseMessage: in.Message,
		RespondedAt:     respondedAt,
		Offsets:         offsets,
	})
	if err != nil {
		return nil, persistence("transition reminder", err)
	}
	if !won {
		metrics.ReminderTransitionsTotal.WithLabelValues("conflict").Inc()
		return nil, conflict("reminder was resolved by another request")
	}
	metrics.ReminderTransitionsTotal.WithLabelValues(string(in.Status)).Inc()

	updated, err := m.reminders.GetByID(ctx, r.ID)
	if err != nil || updated == nil {
		// The transition stands; fall back to what we know.
		m.logger.Error("reload reminder", "id", r.ID, "error", err)
		updated = r
		updated.Status = in.Status
		updated.ResponseMessage = in.Message
		updated.RespondedAt = &respondedAt
		if offsets != nil {
			updated.Offsets = offsets
		}
	}

	switch in.Status {
	case model.StatusAccepted:
		m.afterAccept(ctx, updated, offsets != nil)
	case model.StatusDeclined:
		if _, err := m.scheduler.Cancel(ctx, updated); err != nil {
			m.logger.Error("cancel schedule", "reminder_id", updated.ID, "error", err)
		}
	}

	m.logger.Info("reminder resolved", "id", updated.ID, "status", updated.Status, "responder_id", in.ResponderID)
	m.notify(ctx, updated.SenderID, responseMessage(updated, in.ResponderName))
	return updated, nil
}

func (m *Manager) afterAccept(ctx context.Context, r *model.Reminder, offsetsGiven bool) {
	// Callback rows need responded_at, so they only exist after acceptance.
	if offsetsGiven || r.Offsets.Has(model.AfterAcceptance) {
		if _, err := m.scheduler.Reschedule(ctx, r, r.Offsets); err != nil {
			m.logger.Error("reschedule reminder", "reminder_id", r.ID, "error", err)
		}
	}

	if m.messenger == nil {
		return
	}
	convID, err := m.messenger.GetOrCreateConversation(ctx, r.SenderID, r.RecipientID)
	if err != nil {
		m.logger.Error("get conversation", "reminder_id", r.ID, "error", err)
		return
	}
	if _, err := m.messenger.PostMessage(ctx, convID, r.RecipientID, acknowledgement(r), "system"); err != nil {
		m.logger.Error("post acknowledgement", "reminder_id", r.ID, "conversation_id", convID, "error", err)
	}
	if err := m.reminders.LinkConversation(ctx, r.ID, convID); err != nil {
		m.logger.Error("link conversation", "reminder_id", r.ID, "error", err)
		return
	}
	r.LinkedConversationID = &convID
}

// Get returns a reminder visible to userID.
func (m *Manager) Get(ctx context.Context, id, userID int64) (*Item, error) {
	r, err := m.reminders.GetByID(ctx, id)
	if err != nil {
		return nil, persistence("load reminder", err)
	}
	if r == nil {
		return nil, notFound()
	}
	if r.SenderID != userID && r.RecipientID != userID {
		return nil, forbidden("not a party to this reminder")
	}
	it := newItem(*r, m.now())
	return &it, nil
}

// Delete cancels a pending reminder on behalf of its sender. The row is kept
// and marked declined.
func (m *Manager) Delete(ctx context.Context, id, userID int64) error {
	r, err := m.reminders.GetByID(ctx, id)
	if err != nil {
		return persistence("load reminder", err)
	}
	if r == nil {
		return notFound()
	}
	if r.SenderID != userID {
		return forbidden("only the sender can cancel this reminder")
	}
	if r.Status != model.StatusPending {
		return conflict(fmt.Sprintf("reminder is already %s", r.Status))
	}

	msg := cancelledBySender
	won, err := m.reminders.Transition(ctx, store.TransitionParams{
		ID:              r.ID,
		Status:          model.StatusDeclined,
		ResponseMessage: &msg,
		RespondedAt:     m.now(),
	})
	if err != nil {
		return persistence("cancel reminder", err)
	}
	if !won {
		return conflict("reminder was resolved by another request")
	}
	metrics.ReminderTransitionsTotal.WithLabelValues("cancelled").Inc()

	if _, err := m.scheduler.Cancel(ctx, r); err != nil {
		m.logger.Error("cancel schedule", "reminder_id", r.ID, "error", err)
	}
	m.logger.Info("reminder cancelled", "id", r.ID, "sender_id", userID)
	m.notify(ctx, r.RecipientID, cancelledMessage(r))
	return nil
}

// Filter types for List.
const (
	FilterAll      = "all"
	FilterSent     = "sent"
	FilterReceived = "received"
)

type Filter struct {
	Type   string
	Status model.ReminderStatus
}

// List groups the user's reminders into upcoming, pending and sent buckets.
func (m *Manager) List(ctx context.Context, userID int64, f Filter) (Listing, error) {
	var lf store.ListFilter
	switch f.Type {
	case "", FilterAll:
	case FilterSent:
		lf.Sent = true
	case FilterReceived:
		lf.Received = true
	default:
		return Listing{}, validation("invalid_filter", fmt.Sprintf("unknown type filter %q", f.Type))
	}
	switch f.Status {
	case "", model.StatusPending, model.StatusAccepted, model.StatusDeclined:
		lf.Status = f.Status
	default:
		return Listing{}, validation("invalid_status", fmt.Sprintf("unknown status %q", f.Status))
	}

	reminders, err := m.reminders.ListForUser(ctx, userID, lf)
	if err != nil {
		return Listing{}, persistence("list reminders", err)
	}
	return group(userID, reminders, m.now()), nil
}

func (m *Manager) notify(ctx context.Context, userID int64, msg push.Message) {
	if m.notifier == nil {
		return
	}
	if _, err := m.notifier.Notify(ctx, userID, msg); err != nil {
		m.logger.Error("send notice", "user_id", userID, "type", msg.Type, "error", err)
	}
}

func parseOffsets(t model.ReminderType, values []int) (model.Offsets, *Error) {
	offsets, err := model.ParseOffsets(values)
	if err != nil {
		code := "invalid_offsets"
		switch {
		case errors.Is(err, model.ErrTooManyOffsets):
			code = "too_many_offsets"
		case errors.Is(err, model.ErrDuplicateOffsets):
			code = "duplicate_offsets"
		}
		return nil, validation(code, err.Error())
	}
	if t != model.TypeCallback && offsets.Has(model.AfterAcceptance) {
		return nil, validation("invalid_offsets", "negative offsets are only allowed for callback reminders")
	}
	return offsets, nil
}

func containsSpam(texts ...string) bool {
	for _, t := range texts {
		if t != "" && guard.DetectSpam(t) {
			return true
		}
	}
	return false
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
