package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"editmarket/server/realtime/domain"
)

var ErrOrderNotFound = errors.New("order not found")

type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// HasAccess reports whether the user is one of the two parties on the
// order. This is the authorization gate in front of room.join.
func (r *OrderRepository) HasAccess(ctx context.Context, orderID, userID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM orders
			WHERE order_id=$1 AND (client_id=$2 OR editor_id=$2)
		)
	`, orderID, userID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (r *OrderRepository) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	var order domain.Order
	err := r.pool.QueryRow(ctx, `
		SELECT order_id, client_id, editor_id, status
		FROM orders
		WHERE order_id=$1
	`, orderID).Scan(&order.ID, &order.ClientID, &order.EditorID, &order.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, ErrOrderNotFound
	}
	return order, err
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID, status string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE orders SET status=$2, updated_at=now() WHERE order_id=$1`, orderID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}
