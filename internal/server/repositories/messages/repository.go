package messages

import (
	"context"

	"github.com/peertutor/tutorchat/internal/server/models"
)

// Repository is the message-store collaborator of the delivery protocol.
// Append persists a new message and returns it with the store-assigned id
// and timestamp. MarkConversationRead flips the read flag on every unread
// message from otherID addressed to readerID and returns the number of
// rows changed.
type Repository interface {
	Append(ctx context.Context, msg *models.ChatMessage) (*models.ChatMessage, error)
	Conversation(ctx context.Context, userA, userB string, limit int) ([]models.ChatMessage, error)
	MarkConversationRead(ctx context.Context, readerID, otherID string) (int64, error)
}
