package model

import "time"

// Notification types recorded on durable in-app notifications.
const (
	NotifTypeReminderInvite   = "reminder_invite"
	NotifTypeReminderResponse = "reminder_response"
	NotifTypeReminder         = "reminder"
	NotifTypeCallbackReminder = "callback_reminder"
	NotifTypeTest             = "test"
)

type PushSubscription struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	Endpoint   string    `json:"endpoint"`
	P256dhKey  string    `json:"p256dh_key"`
	AuthKey    string    `json:"auth_key"`
	DeviceName string    `json:"device_name"`
	CreatedAt  time.Time `json:"created_at"`
}

// Notification is the durable in-app copy of every notice sent to a user.
type Notification struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Type      string    `json:"type"`
	URL       string    `json:"url"`
	Data      string    `json:"data"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}
