package chat

import (
	"github.com/peertutor/tutorchat/internal/server/events"
)

// TypingStart forwards an ephemeral typing indicator straight to the
// receiver's registered connection. Nothing is persisted and the server
// runs no timers; the sender is expected to follow up with TypingStop.
func (s *Service) TypingStart(senderID, senderName, receiverID string) {
	s.relayTyping(senderID, senderName, receiverID, true)
}

// TypingStop forwards the matching stop indicator.
func (s *Service) TypingStop(senderID, senderName, receiverID string) {
	s.relayTyping(senderID, senderName, receiverID, false)
}

func (s *Service) relayTyping(senderID, senderName, receiverID string, isTyping bool) {
	sink, ok := s.registry.Lookup(receiverID)
	if !ok {
		return
	}
	sink.Send(events.TypeUserTyping, events.UserTyping{
		UserID:   senderID,
		UserName: senderName,
		IsTyping: isTyping,
	})
}
