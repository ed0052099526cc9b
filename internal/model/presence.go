package model

import "time"

type Presence struct {
	UserID                int64     `json:"user_id"`
	IsOnline              bool      `json:"is_online"`
	LastSeen              time.Time `json:"last_seen"`
	CurrentConversationID *int64    `json:"current_conversation_id,omitempty"`
}

type Conversation struct {
	ID        int64     `json:"id"`
	UserLow   int64     `json:"user_low"`
	UserHigh  int64     `json:"user_high"`
	CreatedAt time.Time `json:"created_at"`
}

type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	SenderID       int64     `json:"sender_id"`
	Body           string    `json:"body"`
	MessageType    string    `json:"message_type"`
	CreatedAt      time.Time `json:"created_at"`
}
