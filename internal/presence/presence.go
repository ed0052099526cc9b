package presence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/nudge/internal/model"
)

// OnlineWindow is how long a heartbeat keeps a user online. A client that
// crashes without reporting offline drops out once it elapses.
const OnlineWindow = 5 * time.Minute

// Store persists presence records.
type Store interface {
	Upsert(ctx context.Context, userID int64, online bool, conversationID *int64, lastSeen time.Time) error
	Get(ctx context.Context, userID int64) (*model.Presence, error)
}

// Status is a user's derived presence.
type Status struct {
	UserID                int64      `json:"user_id"`
	Online                bool       `json:"online"`
	LastSeen              *time.Time `json:"last_seen,omitempty"`
	Label                 string     `json:"label"`
	CurrentConversationID *int64     `json:"current_conversation_id,omitempty"`
}

// Tracker records heartbeats and derives online status at read time.
type Tracker struct {
	store  Store
	now    func() time.Time
	logger *slog.Logger
}

func NewTracker(store Store, logger *slog.Logger) *Tracker {
	return &Tracker{store: store, now: time.Now, logger: logger}
}

// Heartbeat records that the user was just seen.
func (t *Tracker) Heartbeat(ctx context.Context, userID int64, online bool, conversationID *int64) error {
	if err := t.store.Upsert(ctx, userID, online, conversationID, t.now().UTC()); err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	t.logger.Debug("heartbeat", "user_id", userID, "online", online)
	return nil
}

// IsOnline reports whether the user's flag is set and still fresh.
func (t *Tracker) IsOnline(ctx context.Context, userID int64) (bool, error) {
	p, err := t.store.Get(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("is online: %w", err)
	}
	if p == nil {
		return false, nil
	}
	return IsOnline(p.IsOnline, p.LastSeen, t.now()), nil
}

// Status returns the derived presence for a user.
func (t *Tracker) Status(ctx context.Context, userID int64) (Status, error) {
	p, err := t.store.Get(ctx, userID)
	if err != nil {
		return Status{}, fmt.Errorf("presence status: %w", err)
	}
	if p == nil {
		return Status{UserID: userID, Label: "offline"}, nil
	}

	online, label := Describe(p.IsOnline, p.LastSeen, t.now())
	st := Status{
		UserID:   userID,
		Online:   online,
		LastSeen: &p.LastSeen,
		Label:    label,
	}
	if online {
		st.CurrentConversationID = p.CurrentConversationID
	}
	return st, nil
}

// IsOnline combines the stored flag with the staleness window.
func IsOnline(flag bool, lastSeen, now time.Time) bool {
	return flag && now.Sub(lastSeen) < OnlineWindow
}

// Describe returns whether the user is online and a human label for how long
// ago they were last seen.
func Describe(flag bool, lastSeen, now time.Time) (bool, string) {
	if IsOnline(flag, lastSeen, now) {
		return true, "online"
	}

	elapsed := now.Sub(lastSeen)
	if elapsed < 0 {
		elapsed = 0
	}
	minutes := int(elapsed / time.Minute)
	hours := int(elapsed / time.Hour)
	days := hours / 24

	switch {
	case elapsed < 2*time.Minute:
		return false, "online now"
	case elapsed < 10*time.Minute:
		return false, "online recently"
	case elapsed < 15*time.Minute:
		return false, fmt.Sprintf("%d minutes ago", minutes)
	case elapsed < 30*time.Minute:
		return false, "a quarter hour ago"
	case elapsed < time.Hour:
		return false, "half an hour ago"
	case hours == 1:
		return false, "an hour ago"
	case hours < 6:
		return false, fmt.Sprintf("%d hours ago", hours)
	case hours < 12:
		return false, "today, morning"
	case hours < 24:
		return false, "today"
	case days == 1:
		return false, "yesterday"
	case days < 7:
		return false, fmt.Sprintf("%d days ago", days)
	default:
		return false, lastSeen.Format("Jan 2, 2006")
	}
}
