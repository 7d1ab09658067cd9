package models

import "time"

// ChatMessage is one stored direct message. Content is a ciphertext blob
// unless Encrypted is false, in which case it is the raw text (an explicit
// opt-out on send that no current caller uses). ID and CreatedAt are
// assigned by the store on append; only the Read flag is ever mutated.
type ChatMessage struct {
	ID         string
	SenderID   string
	ReceiverID string
	Content    string
	Encrypted  bool
	Read       bool
	CreatedAt  time.Time
}
