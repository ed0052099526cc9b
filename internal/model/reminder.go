package model

import "time"

type ReminderStatus string

const (
	StatusPending  ReminderStatus = "pending"
	StatusAccepted ReminderStatus = "accepted"
	StatusDeclined ReminderStatus = "declined"
)

type ReminderType string

const (
	TypeWedding     ReminderType = "wedding"
	TypeMeeting     ReminderType = "meeting"
	TypeCallback    ReminderType = "callback"
	TypeGeneral     ReminderType = "general"
	TypeEvent       ReminderType = "event"
	TypeBirthday    ReminderType = "birthday"
	TypeAppointment ReminderType = "appointment"
)

var typeNouns = map[ReminderType]string{
	TypeWedding:     "Wedding",
	TypeMeeting:     "Meeting",
	TypeCallback:    "Callback",
	TypeGeneral:     "Reminder",
	TypeEvent:       "Event",
	TypeBirthday:    "Birthday",
	TypeAppointment: "Appointment",
}

// Valid reports whether t is a recognized reminder type.
func (t ReminderType) Valid() bool {
	_, ok := typeNouns[t]
	return ok
}

// Noun is the capitalised display name used in notification copy.
func (t ReminderType) Noun() string {
	if n, ok := typeNouns[t]; ok {
		return n
	}
	return "Reminder"
}

type Reminder struct {
	ID                   int64          `json:"id"`
	SenderID             int64          `json:"sender_id"`
	RecipientID          int64          `json:"recipient_id"`
	Type                 ReminderType   `json:"reminder_type"`
	Title                string         `json:"title"`
	Description          *string        `json:"description,omitempty"`
	EventDate            time.Time      `json:"event_date"`
	Location             *string        `json:"location,omitempty"`
	Offsets              Offsets        `json:"remind_before_hours"`
	Status               ReminderStatus `json:"status"`
	ResponseMessage      *string        `json:"response_message,omitempty"`
	RespondedAt          *time.Time     `json:"responded_at,omitempty"`
	LinkedConversationID *int64         `json:"linked_conversation_id,omitempty"`
	CreatedAt            time.Time      `json:"created_at"`
}

// Scheduled notification types.
const (
	ScheduleTypeReminder         = "reminder"
	ScheduleTypeCallbackReminder = "callback_reminder"
)

type ScheduledNotification struct {
	ID               int64      `json:"id"`
	ReminderID       int64      `json:"reminder_id"`
	UserID           int64      `json:"user_id"`
	ScheduledFor     time.Time  `json:"scheduled_for"`
	NotificationType string     `json:"notification_type"`
	Fired            bool       `json:"fired"`
	FiredAt          *time.Time `json:"fired_at,omitempty"`
}
