package reminder

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/nudge/internal/database"
	"github.com/dukerupert/nudge/internal/guard"
	"github.com/dukerupert/nudge/internal/model"
	"github.com/dukerupert/nudge/internal/push"
	"github.com/dukerupert/nudge/internal/schedule"
	"github.com/dukerupert/nudge/internal/store"
)

var testNow = time.Date(2026, 5, 20, 9, 0, 0, 0, time.UTC)

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []push.Message
	to   []int64
}

func (f *fakeNotifier) Notify(ctx context.Context, userID int64, msg push.Message) (*model.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	f.to = append(f.to, userID)
	return &model.Notification{ID: int64(len(f.msgs)), UserID: userID, Title: msg.Title, Type: msg.Type}, nil
}

func (f *fakeNotifier) ofType(t string) []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []int64
	for i, m := range f.msgs {
		if m.Type == t {
			out = append(out, f.to[i])
		}
	}
	return out
}

type fixture struct {
	mgr           *Manager
	schedules     *store.ScheduleStore
	reminders     *store.ReminderStore
	conversations *store.ConversationStore
	notifier      *fakeNotifier
}

func setup(t *testing.T) fixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	rs := store.NewReminderStore(db)
	ss := store.NewScheduleStore(db)
	cs := store.NewConversationStore(db)
	n := &fakeNotifier{}
	sched := schedule.New(ss, rs, nil, slog.Default())

	mgr := NewManager(db, rs, sched, n, cs, guard.NewRateLimiter(), Config{RateLimit: 5, RateWindow: time.Minute}, slog.Default())
	mgr.now = func() time.Time { return testNow }

	return fixture{mgr: mgr, schedules: ss, reminders: rs, conversations: cs, notifier: n}
}

func (f fixture) create(t *testing.T, in CreateInput) *model.Reminder {
	t.Helper()
	if in.SenderID == 0 {
		in.SenderID = 1
	}
	if in.RecipientID == 0 {
		in.RecipientID = 2
	}
	if in.Type == "" {
		in.Type = model.TypeMeeting
	}
	if in.Title == "" {
		in.Title = "Quarterly planning"
	}
	if in.EventDate.IsZero() {
		in.EventDate = testNow.Add(72 * time.Hour)
	}
	r, err := f.mgr.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return r
}

func (f fixture) rows(t *testing.T, reminderID int64) []model.ScheduledNotification {
	t.Helper()
	rows, err := f.schedules.ListByReminder(context.Background(), reminderID)
	if err != nil {
		t.Fatalf("list rows: %v", err)
	}
	return rows
}

func wantKind(t *testing.T, err, kind error, code string) {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("err = %v, want kind %v", err, kind)
	}
	var re *Error
	if !errors.As(err, &re) {
		t.Fatalf("err = %T, want *Error", err)
	}
	if code != "" && re.Code != code {
		t.Errorf("code = %q, want %q", re.Code, code)
	}
}

func TestCreateRejectsPastDate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	for _, at := range []time.Time{testNow.Add(-time.Minute), testNow} {
		_, err := f.mgr.Create(ctx, CreateInput{SenderID: 1, RecipientID: 2, Type: model.TypeGeneral, Title: "Late", EventDate: at})
		wantKind(t, err, ErrValidation, "past_event_date")
	}

	listing, err := f.mgr.List(ctx, 1, Filter{Type: FilterSent})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if listing.Counts.Sent != 0 {
		t.Errorf("sent = %d, want nothing persisted", listing.Counts.Sent)
	}
}

func TestCreateValidation(t *testing.T) {
	long := strings.Repeat("a", 2001)
	tests := []struct {
		name string
		in   CreateInput
		code string
	}{
		{"unknown type", CreateInput{Type: "party", Title: "x"}, "invalid_type"},
		{"blank title", CreateInput{Type: model.TypeGeneral, Title: "   "}, "invalid_title"},
		{"long title", CreateInput{Type: model.TypeGeneral, Title: strings.Repeat("t", 201)}, "invalid_title"},
		{"long description", CreateInput{Type: model.TypeGeneral, Title: "x", Description: &long}, "description_too_long"},
		{"zero offset", CreateInput{Type: model.TypeGeneral, Title: "x", Offsets: []int{0}}, "invalid_offsets"},
		{"callback offset on meeting", CreateInput{Type: model.TypeMeeting, Title: "x", Offsets: []int{-15}}, "invalid_offsets"},
		{"duplicate offsets", CreateInput{Type: model.TypeGeneral, Title: "x", Offsets: []int{2, 2}}, "duplicate_offsets"},
		{"too many offsets", CreateInput{Type: model.TypeGeneral, Title: "x", Offsets: []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}}, "too_many_offsets"},
		{"hours out of range", CreateInput{Type: model.TypeGeneral, Title: "x", Offsets: []int{9000}}, "invalid_offsets"},
		{"spam title", CreateInput{Type: model.TypeGeneral, Title: "Claim your prize at bit.ly/win"}, "spam_detected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			tt.in.SenderID, tt.in.RecipientID = 1, 2
			tt.in.EventDate = testNow.Add(48 * time.Hour)
			_, err := f.mgr.Create(context.Background(), tt.in)
			wantKind(t, err, ErrValidation, tt.code)
		})
	}
}

func TestCreateDefaultsAndInvite(t *testing.T) {
	f := setup(t)
	r := f.create(t, CreateInput{SenderName: "Ada"})

	if r.Status != model.StatusPending {
		t.Errorf("status = %q, want pending", r.Status)
	}
	if got := r.Offsets.Wire(); len(got) != 2 || got[0] != 1 || got[1] != 24 {
		t.Errorf("offsets = %v, want [1 24]", got)
	}
	if rows := f.rows(t, r.ID); len(rows) != 2 {
		t.Errorf("rows = %d, want 2", len(rows))
	}

	invited := f.notifier.ofType(model.NotifTypeReminderInvite)
	if len(invited) != 1 || invited[0] != 2 {
		t.Fatalf("invite notices = %v, want one to recipient 2", invited)
	}
	if title := f.notifier.msgs[0].Title; title != "Ada sent you a meeting reminder" {
		t.Errorf("invite title = %q", title)
	}
}

func TestCreateRateLimited(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		f.create(t, CreateInput{})
	}
	_, err := f.mgr.Create(ctx, CreateInput{SenderID: 1, RecipientID: 2, Type: model.TypeMeeting, Title: "Sixth", EventDate: testNow.Add(time.Hour * 5)})
	wantKind(t, err, ErrRateLimited, "rate_limited")

	listing, err := f.mgr.List(ctx, 1, Filter{Type: FilterSent})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if listing.Counts.Sent != 5 {
		t.Errorf("sent = %d, want 5", listing.Counts.Sent)
	}

	// Other senders have their own quota.
	f.create(t, CreateInput{SenderID: 7})
}

func TestRespondAcceptReplacesSchedule(t *testing.T) {
	f := setup(t)
	r := f.create(t, CreateInput{Type: model.TypeMeeting})

	got, err := f.mgr.Respond(context.Background(), RespondInput{
		ReminderID:  r.ID,
		ResponderID: 2,
		Status:      model.StatusAccepted,
		Offsets:     []int{1, 2, 48},
	})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if got.Status != model.StatusAccepted {
		t.Errorf("status = %q, want accepted", got.Status)
	}

	rows := f.rows(t, r.ID)
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	want := map[int64]bool{
		r.EventDate.Add(-time.Hour).Unix():      true,
		r.EventDate.Add(-2 * time.Hour).Unix():  true,
		r.EventDate.Add(-48 * time.Hour).Unix(): true,
	}
	for _, row := range rows {
		if !want[row.ScheduledFor.Unix()] {
			t.Errorf("unexpected scheduled_for %v", row.ScheduledFor)
		}
	}
}

func TestRespondAcceptCallback(t *testing.T) {
	f := setup(t)
	r := f.create(t, CreateInput{Type: model.TypeCallback, Title: "Call about the lease", Offsets: []int{-15}})

	if rows := f.rows(t, r.ID); len(rows) != 0 {
		t.Fatalf("rows before accept = %d, want 0", len(rows))
	}

	if _, err := f.mgr.Respond(context.Background(), RespondInput{ReminderID: r.ID, ResponderID: 2, Status: model.StatusAccepted}); err != nil {
		t.Fatalf("respond: %v", err)
	}

	rows := f.rows(t, r.ID)
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	if !rows[0].ScheduledFor.Equal(testNow.Add(15 * time.Minute)) {
		t.Errorf("scheduled_for = %v, want %v", rows[0].ScheduledFor, testNow.Add(15*time.Minute))
	}
	if rows[0].NotificationType != model.ScheduleTypeCallbackReminder {
		t.Errorf("type = %q, want callback_reminder", rows[0].NotificationType)
	}
}

func TestRespondAcceptWithoutOffsetsKeepsSchedule(t *testing.T) {
	f := setup(t)
	r := f.create(t, CreateInput{})
	before := f.rows(t, r.ID)

	if _, err := f.mgr.Respond(context.Background(), RespondInput{ReminderID: r.ID, ResponderID: 2, Status: model.StatusAccepted}); err != nil {
		t.Fatalf("respond: %v", err)
	}
	after := f.rows(t, r.ID)
	if len(after) != len(before) || after[0].ID != before[0].ID {
		t.Errorf("schedule changed: before %+v after %+v", before, after)
	}
}

func TestRespondDeclineClearsSchedule(t *testing.T) {
	f := setup(t)
	r := f.create(t, CreateInput{})

	got, err := f.mgr.Respond(context.Background(), RespondInput{ReminderID: r.ID, ResponderID: 2, Status: model.StatusDeclined})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if got.Status != model.StatusDeclined {
		t.Errorf("status = %q, want declined", got.Status)
	}
	if rows := f.rows(t, r.ID); len(rows) != 0 {
		t.Errorf("rows = %d, want 0", len(rows))
	}
	if got.LinkedConversationID != nil {
		t.Error("decline should not open a conversation")
	}
	if to := f.notifier.ofType(model.NotifTypeReminderResponse); len(to) != 1 || to[0] != 1 {
		t.Errorf("response notices = %v, want one to sender 1", to)
	}
}

func TestRespondTwiceConflicts(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	r := f.create(t, CreateInput{Type: model.TypeWedding, Title: "Sam & Alex"})

	first, err := f.mgr.Respond(ctx, RespondInput{ReminderID: r.ID, ResponderID: 2, Status: model.StatusAccepted, Offsets: []int{24, 1}})
	if err != nil {
		t.Fatalf("first respond: %v", err)
	}
	_, err = f.mgr.Respond(ctx, RespondInput{ReminderID: r.ID, ResponderID: 2, Status: model.StatusAccepted, Offsets: []int{24, 1}})
	wantKind(t, err, ErrConflict, "not_pending")

	if rows := f.rows(t, r.ID); len(rows) != 2 {
		t.Errorf("rows = %d, want 2", len(rows))
	}
	if first.LinkedConversationID == nil {
		t.Fatal("accept should link a conversation")
	}
	msgs, err := f.conversations.ListMessages(ctx, *first.LinkedConversationID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(msgs))
	}
	if msgs[0].MessageType != "system" || msgs[0].SenderID != 2 {
		t.Errorf("message = %+v", msgs[0])
	}
	if !strings.Contains(msgs[0].Body, "celebrate") {
		t.Errorf("wedding acknowledgement = %q", msgs[0].Body)
	}
	if to := f.notifier.ofType(model.NotifTypeReminderResponse); len(to) != 1 {
		t.Errorf("response notices = %d, want 1", len(to))
	}
}

func TestRespondConcurrentOnlyOneWins(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	r := f.create(t, CreateInput{})

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, conflicts := 0, 0
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.mgr.Respond(ctx, RespondInput{ReminderID: r.ID, ResponderID: 2, Status: model.StatusAccepted, Offsets: []int{3}})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrConflict):
				conflicts++
			default:
				t.Errorf("respond: %v", err)
			}
		}()
	}
	wg.Wait()

	if wins != 1 || conflicts != 4 {
		t.Errorf("wins=%d conflicts=%d, want 1 and 4", wins, conflicts)
	}
	if rows := f.rows(t, r.ID); len(rows) != 1 {
		t.Errorf("rows = %d, want 1", len(rows))
	}
}

func TestRespondRules(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	r := f.create(t, CreateInput{})

	_, err := f.mgr.Respond(ctx, RespondInput{ReminderID: r.ID, ResponderID: 1, Status: model.StatusAccepted})
	wantKind(t, err, ErrAuthorization, "forbidden")

	_, err = f.mgr.Respond(ctx, RespondInput{ReminderID: 999, ResponderID: 2, Status: model.StatusAccepted})
	wantKind(t, err, ErrNotFound, "not_found")

	_, err = f.mgr.Respond(ctx, RespondInput{ReminderID: r.ID, ResponderID: 2, Status: model.StatusPending})
	wantKind(t, err, ErrValidation, "invalid_status")

	long := strings.Repeat("m", 501)
	_, err = f.mgr.Respond(ctx, RespondInput{ReminderID: r.ID, ResponderID: 2, Status: model.StatusAccepted, Message: &long})
	wantKind(t, err, ErrValidation, "message_too_long")

	_, err = f.mgr.Respond(ctx, RespondInput{ReminderID: r.ID, ResponderID: 2, Status: model.StatusAccepted, Offsets: []int{-10}})
	wantKind(t, err, ErrValidation, "invalid_offsets")

	// None of the rejected calls moved the reminder.
	got, err := f.reminders.GetByID(ctx, r.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.StatusPending {
		t.Errorf("status = %q, want pending", got.Status)
	}
}

func TestDelete(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	r := f.create(t, CreateInput{})

	wantKind(t, f.mgr.Delete(ctx, r.ID, 2), ErrAuthorization, "forbidden")
	wantKind(t, f.mgr.Delete(ctx, 999, 1), ErrNotFound, "not_found")

	if err := f.mgr.Delete(ctx, r.ID, 1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err := f.reminders.GetByID(ctx, r.ID)
	if err != nil || got == nil {
		t.Fatalf("reminder should still exist: %v", err)
	}
	if got.Status != model.StatusDeclined || got.ResponseMessage == nil || *got.ResponseMessage != "cancelled by sender" {
		t.Errorf("reminder = %+v", got)
	}
	if rows := f.rows(t, r.ID); len(rows) != 0 {
		t.Errorf("rows = %d, want 0", len(rows))
	}

	wantKind(t, f.mgr.Delete(ctx, r.ID, 1), ErrConflict, "not_pending")
}

func TestGetVisibility(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	r := f.create(t, CreateInput{})

	for _, uid := range []int64{1, 2} {
		it, err := f.mgr.Get(ctx, r.ID, uid)
		if err != nil {
			t.Fatalf("get as %d: %v", uid, err)
		}
		if it.ID != r.ID || it.IsPast || it.Expired {
			t.Errorf("item = %+v", it)
		}
	}
	_, err := f.mgr.Get(ctx, r.ID, 3)
	wantKind(t, err, ErrAuthorization, "")
}

func TestListBuckets(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	soon := f.create(t, CreateInput{Title: "Soon", EventDate: testNow.Add(2 * time.Hour)})
	later := f.create(t, CreateInput{Title: "Later", EventDate: testNow.Add(96 * time.Hour)})
	mine := f.create(t, CreateInput{SenderID: 2, RecipientID: 1, Title: "Mine", EventDate: testNow.Add(5 * time.Hour)})

	if _, err := f.mgr.Respond(ctx, RespondInput{ReminderID: later.ID, ResponderID: 2, Status: model.StatusAccepted}); err != nil {
		t.Fatalf("respond: %v", err)
	}

	// Three hours on, "Soon" has passed.
	f.mgr.now = func() time.Time { return testNow.Add(3 * time.Hour) }

	listing, err := f.mgr.List(ctx, 2, Filter{Type: FilterAll})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if listing.Counts.Upcoming != 1 || listing.Upcoming[0].ID != later.ID {
		t.Errorf("upcoming = %+v", listing.Upcoming)
	}
	if listing.Counts.Pending != 0 {
		t.Errorf("pending = %+v, want none", listing.Pending)
	}
	if listing.Counts.Sent != 1 || listing.Sent[0].ID != mine.ID {
		t.Errorf("sent = %+v", listing.Sent)
	}
	if listing.Counts.Total != 3 {
		t.Errorf("total = %d, want 3", listing.Counts.Total)
	}

	it, err := f.mgr.Get(ctx, soon.ID, 2)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !it.IsPast || !it.Expired {
		t.Errorf("soon should be past and expired: %+v", it)
	}

	received, err := f.mgr.List(ctx, 1, Filter{Type: FilterReceived, Status: model.StatusPending})
	if err != nil {
		t.Fatalf("list received: %v", err)
	}
	if received.Counts.Pending != 1 || received.Pending[0].ID != mine.ID {
		t.Errorf("pending for user 1 = %+v", received.Pending)
	}

	_, err = f.mgr.List(ctx, 1, Filter{Type: "everything"})
	wantKind(t, err, ErrValidation, "invalid_filter")
}
