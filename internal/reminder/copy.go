package reminder

import (
	"fmt"

	"github.com/dukerupert/nudge/internal/model"
	"github.com/dukerupert/nudge/internal/push"
)

var acknowledgements = map[model.ReminderType]string{
	model.TypeWedding:     "Thank you for the invitation! I'll be there to celebrate with you.",
	model.TypeMeeting:     "Meeting confirmed: %q. See you there.",
	model.TypeCallback:    "Got your callback request about %q. I'll call you back.",
	model.TypeBirthday:    "Thanks for the invite, I wouldn't miss the birthday!",
	model.TypeAppointment: "Appointment confirmed: %q.",
	model.TypeEvent:       "Count me in for %q!",
}

// acknowledgement is the system message posted when a reminder is accepted.
// A response message from the recipient takes its place.
func acknowledgement(r *model.Reminder) string {
	if r.ResponseMessage != nil && *r.ResponseMessage != "" {
		return *r.ResponseMessage
	}
	tmpl, ok := acknowledgements[r.Type]
	if !ok {
		return fmt.Sprintf("I accepted your reminder %q.", r.Title)
	}
	if r.Type == model.TypeWedding || r.Type == model.TypeBirthday {
		return tmpl
	}
	return fmt.Sprintf(tmpl, r.Title)
}

func reminderURL(r *model.Reminder) string {
	return fmt.Sprintf("/reminders/%d", r.ID)
}

func who(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}

func inviteMessage(r *model.Reminder, senderName string) push.Message {
	body := r.Title + ", " + r.EventDate.UTC().Format("Mon Jan 2, 15:04 MST")
	if r.Location != nil && *r.Location != "" {
		body += " at " + *r.Location
	}
	return push.Message{
		Title: fmt.Sprintf("%s sent you a %s reminder", who(senderName, "Someone"), r.Type),
		Body:  body,
		Type:  model.NotifTypeReminderInvite,
		URL:   reminderURL(r),
		Data: map[string]any{
			"reminder_id":   r.ID,
			"reminder_type": string(r.Type),
			"sender_id":     r.SenderID,
		},
	}
}

func responseMessage(r *model.Reminder, responderName string) push.Message {
	body := r.Title
	if r.ResponseMessage != nil && *r.ResponseMessage != "" {
		body += ": " + *r.ResponseMessage
	}
	return push.Message{
		Title: fmt.Sprintf("%s %s your reminder", who(responderName, "Your contact"), r.Status),
		Body:  body,
		Type:  model.NotifTypeReminderResponse,
		URL:   reminderURL(r),
		Data: map[string]any{
			"reminder_id": r.ID,
			"status":      string(r.Status),
		},
	}
}

func cancelledMessage(r *model.Reminder) push.Message {
	return push.Message{
		Title: "Reminder cancelled",
		Body:  fmt.Sprintf("%s was cancelled by the sender", r.Title),
		Type:  model.NotifTypeReminderResponse,
		URL:   reminderURL(r),
		Data: map[string]any{
			"reminder_id": r.ID,
			"status":      string(model.StatusDeclined),
		},
	}
}
