package models

import "time"

// Notification kinds created by the chat core.
const (
	NotificationKindMessage = "chat_message"
)

// Notification is a durable record created when a message is pushed to an
// online receiver, so platform pages can show it later.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Kind      string    `json:"kind"`
	FromID    string    `json:"fromId"`
	Preview   string    `json:"preview"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}
