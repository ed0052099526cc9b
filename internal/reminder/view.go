package reminder

import (
	"time"

	"github.com/dukerupert/nudge/internal/model"
)

// IsPast reports whether the event has started.
func IsPast(eventDate, now time.Time) bool {
	return eventDate.Before(now)
}

// Expired reports whether a reminder that is still live by status has an
// event date behind it. Declined reminders never expire.
func Expired(status model.ReminderStatus, eventDate, now time.Time) bool {
	if status != model.StatusPending && status != model.StatusAccepted {
		return false
	}
	return IsPast(eventDate, now)
}

// Item is a reminder with its read-time labels.
type Item struct {
	model.Reminder
	IsPast  bool `json:"is_past"`
	Expired bool `json:"expired"`
}

func newItem(r model.Reminder, now time.Time) Item {
	return Item{
		Reminder: r,
		IsPast:   IsPast(r.EventDate, now),
		Expired:  Expired(r.Status, r.EventDate, now),
	}
}

// Counts are the bucket sizes of a Listing.
type Counts struct {
	Upcoming int `json:"upcoming"`
	Pending  int `json:"pending"`
	Sent     int `json:"sent"`
	Total    int `json:"total"`
}

// Listing groups a user's reminders the way the inbox shows them.
type Listing struct {
	Upcoming []Item `json:"upcoming"`
	Pending  []Item `json:"pending"`
	Sent     []Item `json:"sent"`
	Counts   Counts `json:"counts"`
}

func group(userID int64, reminders []model.Reminder, now time.Time) Listing {
	l := Listing{
		Upcoming: []Item{},
		Pending:  []Item{},
		Sent:     []Item{},
	}
	for _, r := range reminders {
		it := newItem(r, now)
		if r.Status == model.StatusAccepted && !it.IsPast {
			l.Upcoming = append(l.Upcoming, it)
		}
		if r.RecipientID == userID && r.Status == model.StatusPending && !it.IsPast {
			l.Pending = append(l.Pending, it)
		}
		if r.SenderID == userID {
			l.Sent = append(l.Sent, it)
		}
	}
	l.Counts = Counts{
		Upcoming: len(l.Upcoming),
		Pending:  len(l.Pending),
		Sent:     len(l.Sent),
		Total:    len(reminders),
	}
	return l
}
