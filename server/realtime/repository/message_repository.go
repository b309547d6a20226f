package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"editmarket/server/realtime/domain"
)

// MessageRepository is the durable side of the chat: the relay fans out
// live traffic, this store makes it retrievable on the next room join.
type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

func (r *MessageRepository) CreateMessage(ctx context.Context, message domain.Message) (domain.Message, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO messages(order_id, sender_id, sender_name, body)
		VALUES($1, $2, $3, $4)
		RETURNING message_id, created_at
	`, message.OrderID, message.SenderID, message.SenderName, message.Body).Scan(&message.ID, &message.CreatedAt)
	return message, err
}

func (r *MessageRepository) ListMessages(ctx context.Context, orderID string, limit int) ([]domain.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT message_id, order_id, sender_id, sender_name, body, created_at
		FROM messages
		WHERE order_id=$1
		ORDER BY created_at DESC, message_id DESC
		LIMIT $2
	`, orderID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]domain.Message, 0, limit)
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.OrderID, &m.SenderID, &m.SenderName, &m.Body, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// MarkRead records a read receipt for everything the user has received
// in the order so far.
func (r *MessageRepository) MarkRead(ctx context.Context, orderID, userID string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO read_receipts(order_id, user_id, read_at)
		VALUES($1, $2, now())
		ON CONFLICT (order_id, user_id) DO UPDATE SET read_at=now()
	`, orderID, userID)
	return err
}

// CountUnread counts messages in the order newer than the user's last
// read receipt and not authored by the user.
func (r *MessageRepository) CountUnread(ctx context.Context, orderID, userID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM messages m
		WHERE m.order_id=$1
		  AND m.sender_id <> $2
		  AND m.created_at > COALESCE(
			(SELECT read_at FROM read_receipts WHERE order_id=$1 AND user_id=$2),
			'epoch'::timestamptz)
	`, orderID, userID).Scan(&count)
	return count, err
}
