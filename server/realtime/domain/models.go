package domain

import "time"

// Message is a persisted chat message for one order conversation.
type Message struct {
	ID         string    `json:"id"`
	OrderID    string    `json:"order_id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

// Notification is an out-of-band alert shown outside any open room.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	Read      bool      `json:"read"`
}

// Order carries the two parties allowed into an order's room.
type Order struct {
	ID       string `json:"id"`
	ClientID string `json:"client_id"`
	EditorID string `json:"editor_id"`
	Status   string `json:"status"`
}

// PaymentEvent arrives from the payment gateway's webhook consumer.
// A captured payment moves the order forward and notifies the editor.
type PaymentEvent struct {
	OrderID   string    `json:"order_id"`
	PaymentID string    `json:"payment_id"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	OrderStatusPending    = "pending"
	OrderStatusInProgress = "in_progress"
	OrderStatusDelivered  = "delivered"
	OrderStatusCompleted  = "completed"
)

const PaymentStatusCaptured = "captured"
