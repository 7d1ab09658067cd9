package notifications

import (
	"context"

	"github.com/peertutor/tutorchat/internal/server/models"
)

// Repository is the notification-store collaborator: durable records for
// pushes that platform pages can list later.
type Repository interface {
	Create(ctx context.Context, n *models.Notification) (*models.Notification, error)
	ListUnread(ctx context.Context, userID string) ([]models.Notification, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}
