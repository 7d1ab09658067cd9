// Package events defines the closed set of realtime event variants exchanged
// over a chat connection, and the Sink interface through which components
// deliver outbound events without touching the transport.
//
// Inbound payloads are decoded and validated here, at the connection
// boundary; handlers only ever see well-formed typed values. Unknown or
// malformed events yield ErrUnknownEvent / ErrInvalidPayload and are dropped
// by the caller rather than closing the connection.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Inbound event types (client → server).
const (
	TypeJoinConversation  = "join_conversation"
	TypeLeaveConversation = "leave_conversation"
	TypeSendMessage       = "send_message"
	TypeTypingStart       = "typing_start"
	TypeTypingStop        = "typing_stop"
	TypeMarkRead          = "mark_read"
	TypeSessionConfirmed  = "session_confirmed"
	TypeSessionCancelled  = "session_cancelled"
)

// Outbound event types (server → client).
const (
	TypeUserOnline          = "user_online"
	TypeUserOffline         = "user_offline"
	TypeOnlineUsers         = "online_users"
	TypeNewMessage          = "new_message"
	TypeMessageNotification = "message_notification"
	TypeUserTyping          = "user_typing"
	TypeMessagesRead        = "messages_read"
	TypeMessageError        = "message_error"
	TypeSessionUpdate       = "session_update"
)

var (
	ErrUnknownEvent   = errors.New("unknown event type")
	ErrInvalidPayload = errors.New("invalid event payload")
)

// Sink is a live connection from the point of view of presence, delivery and
// typing relays. Send reports whether the event was handed to the transport;
// it returns false once the connection is gone or its buffer is full.
type Sink interface {
	ID() string
	Send(event string, payload any) bool
}

// Frame is the wire envelope in both directions.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// --- inbound payloads ---

type JoinConversation struct {
	OtherUserID string `json:"otherUserId"`
}

type LeaveConversation struct {
	OtherUserID string `json:"otherUserId"`
}

// SendMessage carries an optional encrypt flag. A nil flag means the
// default, encrypt-at-rest. The false value is an explicit opt-out that no
// known client sends; it is kept as an inert knob.
type SendMessage struct {
	ReceiverID string `json:"receiverId"`
	Message    string `json:"message"`
	Encrypt    *bool  `json:"encrypt,omitempty"`
}

// Encrypted resolves the opt-out flag to its effective value.
func (m SendMessage) Encrypted() bool {
	return m.Encrypt == nil || *m.Encrypt
}

type Typing struct {
	ReceiverID string `json:"receiverId"`
}

type MarkRead struct {
	OtherUserID string `json:"otherUserId"`
}

// SessionEvent is the passthrough shape other subsystems push through the
// chat transport (booking confirmations and cancellations). Session is
// forwarded opaque.
type SessionEvent struct {
	ToUserID string          `json:"toUserId"`
	Session  json.RawMessage `json:"session,omitempty"`
	Message  string          `json:"message,omitempty"`
}

// --- outbound payloads ---

type PresenceChange struct {
	UserID    string    `json:"userId"`
	FullName  string    `json:"fullName"`
	Timestamp time.Time `json:"timestamp"`
}

type OnlineUser struct {
	UserID   string `json:"userId"`
	FullName string `json:"fullName"`
}

type NewMessage struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	ReceiverID string    `json:"receiverId"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
	IsRead     bool      `json:"isRead"`
}

type MessageNotification struct {
	From      string    `json:"from"`
	FromName  string    `json:"fromName"`
	Preview   string    `json:"preview"`
	Timestamp time.Time `json:"timestamp"`
}

type UserTyping struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	IsTyping bool   `json:"isTyping"`
}

type MessagesRead struct {
	ReaderID       string    `json:"readerId"`
	ConversationID string    `json:"conversationId"`
	Timestamp      time.Time `json:"timestamp"`
}

type MessageError struct {
	Error string `json:"error"`
}

type SessionUpdate struct {
	Type    string          `json:"type"`
	Session json.RawMessage `json:"session,omitempty"`
	Message string          `json:"message,omitempty"`
}

// ParseInbound decodes one inbound frame into its typed payload. The
// returned value is one of the inbound payload structs above.
func ParseInbound(data []byte) (any, error) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	switch frame.Type {
	case TypeJoinConversation:
		var p JoinConversation
		if err := decode(frame.Payload, &p); err != nil {
			return nil, err
		}
		if p.OtherUserID == "" {
			return nil, fmt.Errorf("%w: missing otherUserId", ErrInvalidPayload)
		}
		return p, nil

	case TypeLeaveConversation:
		var p LeaveConversation
		if err := decode(frame.Payload, &p); err != nil {
			return nil, err
		}
		if p.OtherUserID == "" {
			return nil, fmt.Errorf("%w: missing otherUserId", ErrInvalidPayload)
		}
		return p, nil

	case TypeSendMessage:
		var p SendMessage
		if err := decode(frame.Payload, &p); err != nil {
			return nil, err
		}
		if p.ReceiverID == "" {
			return nil, fmt.Errorf("%w: missing receiverId", ErrInvalidPayload)
		}
		return p, nil

	case TypeTypingStart, TypeTypingStop:
		var p Typing
		if err := decode(frame.Payload, &p); err != nil {
			return nil, err
		}
		if p.ReceiverID == "" {
			return nil, fmt.Errorf("%w: missing receiverId", ErrInvalidPayload)
		}
		if frame.Type == TypeTypingStart {
			return TypingStart(p), nil
		}
		return TypingStop(p), nil

	case TypeMarkRead:
		var p MarkRead
		if err := decode(frame.Payload, &p); err != nil {
			return nil, err
		}
		if p.OtherUserID == "" {
			return nil, fmt.Errorf("%w: missing otherUserId", ErrInvalidPayload)
		}
		return p, nil

	case TypeSessionConfirmed, TypeSessionCancelled:
		var p SessionEvent
		if err := decode(frame.Payload, &p); err != nil {
			return nil, err
		}
		if p.ToUserID == "" {
			return nil, fmt.Errorf("%w: missing toUserId", ErrInvalidPayload)
		}
		if frame.Type == TypeSessionConfirmed {
			return SessionConfirmed(p), nil
		}
		return SessionCancelled(p), nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, frame.Type)
	}
}

// TypingStart and TypingStop are distinct types so a dispatch switch can
// tell the two relays apart; same for the session passthrough pair.
type (
	TypingStart      Typing
	TypingStop       Typing
	SessionConfirmed SessionEvent
	SessionCancelled SessionEvent
)

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing payload", ErrInvalidPayload)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}
