package schedule

import (
	"fmt"
	"math"
	"time"

	"github.com/dukerupert/nudge/internal/model"
	"github.com/dukerupert/nudge/internal/push"
)

func scheduledMessage(r *model.Reminder, n model.ScheduledNotification, now time.Time) push.Message {
	msg := push.Message{
		URL: fmt.Sprintf("/reminders/%d", r.ID),
		Tag: fmt.Sprintf("reminder-%d-%d", r.ID, n.ID),
		Data: map[string]any{
			"reminder_id":     r.ID,
			"scheduled_id":    n.ID,
			"reminder_status": string(r.Status),
		},
	}

	if n.NotificationType == model.ScheduleTypeCallbackReminder {
		msg.Type = model.NotifTypeCallbackReminder
		msg.Title = "Time to call back"
		msg.Body = fmt.Sprintf("You promised to get back about \"%s\".", r.Title)
		return msg
	}

	msg.Type = model.NotifTypeReminder
	msg.Title = fmt.Sprintf("%s: %s", r.Type.Noun(), r.Title)
	msg.Body = startsIn(r.EventDate.Sub(now))
	if r.Location != nil && *r.Location != "" {
		msg.Body += " at " + *r.Location
	}
	if r.Status == model.StatusPending {
		msg.Body += ". You haven't responded yet"
	}
	return msg
}

func startsIn(d time.Duration) string {
	if d <= time.Minute {
		return "Starting now"
	}
	if d < time.Hour {
		return fmt.Sprintf("Starts in %d minutes", int(d/time.Minute))
	}
	hours := int(math.Round(d.Hours()))
	if hours == 1 {
		return "Starts in 1 hour"
	}
	if hours < 48 {
		return fmt.Sprintf("Starts in %d hours", hours)
	}
	return fmt.Sprintf("Starts in %d days", hours/24)
}
