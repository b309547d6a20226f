// Package event defines in-process event bus topics.
package event

const (
	// UserOnline fires when a user's live-session count goes 0 -> 1.
	UserOnline = "user.online"
	// UserOffline fires when a user's live-session count goes 1 -> 0.
	UserOffline = "user.offline"
	// NotificationCreated fires after a notification is persisted.
	NotificationCreated = "notification.created"
	// OrderStatusChanged fires after a payment moves an order forward.
	OrderStatusChanged = "order.status_changed"
)
