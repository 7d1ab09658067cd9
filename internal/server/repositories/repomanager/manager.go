package repomanager

import (
	"context"
	"database/sql"

	"github.com/peertutor/tutorchat/internal/dbx"
	"github.com/peertutor/tutorchat/internal/server/repositories/messages"
	"github.com/peertutor/tutorchat/internal/server/repositories/notifications"
	"github.com/peertutor/tutorchat/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Messages(db dbx.DBTX) messages.Repository
	Notifications(db dbx.DBTX) notifications.Repository
}
