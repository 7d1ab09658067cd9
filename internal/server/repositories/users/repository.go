package users

import (
	"context"

	"github.com/peertutor/tutorchat/internal/server/models"
)

// Repository is the user-directory collaborator consumed by the chat core:
// identity lookups plus PIN credential mutation. The table itself is owned
// by the surrounding platform.
type Repository interface {
	GetByID(ctx context.Context, userID string) (*models.User, error)
	SetPinCredential(ctx context.Context, userID string, hash, salt []byte) error
	ClearPinCredential(ctx context.Context, userID string) error
}
