// Package chat implements the conversation router and delivery protocol:
// deterministic conversation addressing, room membership, the
// encrypt → persist → broadcast → notify pipeline, read receipts, the
// typing relay, and the EmitToUser/IsOnline surface other subsystems use
// to push updates through the same transport.
package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/peertutor/tutorchat/internal/common"
	"github.com/peertutor/tutorchat/internal/cryptox"
	"github.com/peertutor/tutorchat/internal/logging"
	"github.com/peertutor/tutorchat/internal/server/events"
	"github.com/peertutor/tutorchat/internal/server/models"
	"github.com/peertutor/tutorchat/internal/server/presence"
	"github.com/peertutor/tutorchat/internal/server/repositories/repomanager"
)

// UndecryptablePlaceholder is surfaced in place of a stored message whose
// blob no longer decrypts. The protocol never guesses at plaintext.
const UndecryptablePlaceholder = "[message could not be decrypted]"

const previewRunes = 80

// Service is the delivery protocol. Room membership is connection-scoped
// and held in memory; everything durable goes through the repositories.
type Service struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	engine      *cryptox.Engine
	registry    presence.Registry
	logger      logging.Logger
	nowFn       func() time.Time

	mu    sync.RWMutex
	rooms map[string]map[string]events.Sink
}

// NewService wires the delivery protocol to its collaborators.
func NewService(db *sql.DB, m repomanager.RepositoryManager, engine *cryptox.Engine, registry presence.Registry, logger logging.Logger) *Service {
	return &Service{
		db:          db,
		repomanager: m,
		engine:      engine,
		registry:    registry,
		logger:      logger.With("module", "chat"),
		nowFn:       time.Now,
		rooms:       make(map[string]map[string]events.Sink),
	}
}

// Join subscribes the connection to a conversation's broadcast group.
// Membership lasts no longer than the connection.
func (s *Service) Join(conversationID string, sink events.Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[conversationID]
	if !ok {
		room = make(map[string]events.Sink)
		s.rooms[conversationID] = room
	}
	room[sink.ID()] = sink
}

// Leave unsubscribes the connection from a conversation's broadcast group.
func (s *Service) Leave(conversationID string, sink events.Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[conversationID]
	if !ok {
		return
	}
	delete(room, sink.ID())
	if len(room) == 0 {
		delete(s.rooms, conversationID)
	}
}

// LeaveAll removes the connection from every room; called on disconnect.
func (s *Service) LeaveAll(sink events.Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, room := range s.rooms {
		delete(room, sink.ID())
		if len(room) == 0 {
			delete(s.rooms, id)
		}
	}
}

// SendMessage runs the delivery pipeline for one message:
//
//  1. reject empty plaintext;
//  2. encrypt unless the inert opt-out was set;
//  3. append via the message store, which assigns id and timestamp;
//  4. only then broadcast new_message (cleartext) to the conversation room;
//  5. independently, if the receiver is online, push a direct
//     message_notification and create a durable notification record.
//
// A store failure aborts before step 4: no broadcast, no notification, and
// the caller gets an error wrapping common.ErrorPersistence.
func (s *Service) SendMessage(ctx context.Context, senderID, senderName, receiverID, plaintext string, encrypt bool) (*models.ChatMessage, error) {
	if plaintext == "" {
		return nil, common.ErrorEmptyMessage
	}

	stored := plaintext
	if encrypt {
		blob, err := s.engine.Encrypt(plaintext)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrorCrypto, err)
		}
		stored = blob
	}

	msg := &models.ChatMessage{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    stored,
		Encrypted:  encrypt,
	}

	msg, err := s.repomanager.Messages(s.db).Append(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorPersistence, err)
	}

	s.broadcast(ConversationID(senderID, receiverID), events.TypeNewMessage, events.NewMessage{
		ID:         msg.ID,
		SenderID:   senderID,
		SenderName: senderName,
		ReceiverID: receiverID,
		Message:    plaintext,
		Timestamp:  msg.CreatedAt,
		IsRead:     msg.Read,
	})

	if sink, online := s.registry.Lookup(receiverID); online {
		sink.Send(events.TypeMessageNotification, events.MessageNotification{
			From:      senderID,
			FromName:  senderName,
			Preview:   preview(plaintext),
			Timestamp: msg.CreatedAt,
		})

		if _, err := s.repomanager.Notifications(s.db).Create(ctx, &models.Notification{
			UserID:  receiverID,
			Kind:    models.NotificationKindMessage,
			FromID:  senderID,
			Preview: preview(plaintext),
		}); err != nil {
			// The message is already durable and broadcast; a lost
			// notification record is not worth failing the send.
			s.logger.Warn(ctx, "notification record not created", "receiver", receiverID, "error", err)
		}
	}

	return msg, nil
}

// MarkAsRead flips the read flag on every unread message from otherID to
// readerID, then emits messages_read to the conversation room. The stored
// state is idempotent; the event fires on every call.
func (s *Service) MarkAsRead(ctx context.Context, readerID, otherID string) error {
	n, err := s.repomanager.Messages(s.db).MarkConversationRead(ctx, readerID, otherID)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrorPersistence, err)
	}

	conversationID := ConversationID(readerID, otherID)
	if n > 0 {
		s.logger.Debug(ctx, "messages marked read", "conversation", conversationID, "count", n)
	}

	s.broadcast(conversationID, events.TypeMessagesRead, events.MessagesRead{
		ReaderID:       readerID,
		ConversationID: conversationID,
		Timestamp:      s.nowFn(),
	})

	return nil
}

// History returns the decrypted conversation between the two users, oldest
// first. Records that fail authentication are surfaced with the
// undecryptable placeholder instead of failing the whole read.
func (s *Service) History(ctx context.Context, userID, otherID string, limit int) ([]events.NewMessage, error) {
	userRepo := s.repomanager.Users(s.db)

	names := map[string]string{}
	for _, id := range []string{userID, otherID} {
		u, err := userRepo.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return nil, common.ErrorNotFound
			}
			return nil, fmt.Errorf("%w: %v", common.ErrorPersistence, err)
		}
		names[id] = u.FullName
	}

	msgs, err := s.repomanager.Messages(s.db).Conversation(ctx, userID, otherID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorPersistence, err)
	}

	out := make([]events.NewMessage, 0, len(msgs))
	for _, m := range msgs {
		text := m.Content
		if m.Encrypted {
			text, err = s.engine.Decrypt(m.Content)
			if err != nil {
				s.logger.Warn(ctx, "stored message failed to decrypt", "message", m.ID)
				text = UndecryptablePlaceholder
			}
		}
		out = append(out, events.NewMessage{
			ID:         m.ID,
			SenderID:   m.SenderID,
			SenderName: names[m.SenderID],
			ReceiverID: m.ReceiverID,
			Message:    text,
			Timestamp:  m.CreatedAt,
			IsRead:     m.Read,
		})
	}

	return out, nil
}

// EmitToUser delivers an arbitrary event to a user's live connection, if
// any. Exposed so unrelated subsystems (session booking) can reuse the
// transport.
func (s *Service) EmitToUser(userID, event string, payload any) bool {
	sink, ok := s.registry.Lookup(userID)
	if !ok {
		return false
	}
	return sink.Send(event, payload)
}

// IsOnline reports whether the user currently holds a live connection.
func (s *Service) IsOnline(userID string) bool {
	_, ok := s.registry.Lookup(userID)
	return ok
}

func (s *Service) broadcast(conversationID, event string, payload any) {
	s.mu.RLock()
	room := s.rooms[conversationID]
	sinks := make([]events.Sink, 0, len(room))
	for _, sink := range room {
		sinks = append(sinks, sink)
	}
	s.mu.RUnlock()

	for _, sink := range sinks {
		sink.Send(event, payload)
	}
}

func preview(text string) string {
	if utf8.RuneCountInString(text) <= previewRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:previewRunes]) + "…"
}
