package messages

import (
	"context"
	"fmt"

	"github.com/peertutor/tutorchat/internal/dbx"
	"github.com/peertutor/tutorchat/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Append inserts the message and fills in the store-assigned id, timestamp
// and read flag on the returned value.
func (r *PostgresRepository) Append(ctx context.Context, msg *models.ChatMessage) (*models.ChatMessage, error) {

	query :=
		`INSERT INTO chat_messages (sender_id, receiver_id, content, encrypted)
         VALUES ($1, $2, $3, $4)
		 RETURNING id, is_read, created_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		msg.SenderID, msg.ReceiverID, msg.Content, msg.Encrypted).
		Scan(&msg.ID, &msg.Read, &msg.CreatedAt)

	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return msg, nil
}

func (r *PostgresRepository) Conversation(ctx context.Context, userA, userB string, limit int) ([]models.ChatMessage, error) {
	query :=
		`SELECT id, sender_id, receiver_id, content, encrypted, is_read, created_at FROM chat_messages
		 WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
		 ORDER BY created_at, id
		 LIMIT $3
		 `

	rows, err := r.db.QueryContext(ctx, query, userA, userB, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &m.Encrypted, &m.Read, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}

func (r *PostgresRepository) MarkConversationRead(ctx context.Context, readerID, otherID string) (int64, error) {
	query :=
		`UPDATE chat_messages SET is_read = true
		 WHERE receiver_id = $1 AND sender_id = $2 AND is_read = false
		 `

	res, err := r.db.ExecContext(ctx, query, readerID, otherID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return affected, nil
}
