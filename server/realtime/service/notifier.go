package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/leandro-lugaresi/hub"
	amqp "github.com/rabbitmq/amqp091-go"

	commonlog "editmarket/server/common/log"
	"editmarket/server/realtime/domain"
	"editmarket/server/realtime/event"
)

type notificationStore interface {
	Create(ctx context.Context, n domain.Notification) (domain.Notification, error)
}

type orderStore interface {
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	UpdateStatus(ctx context.Context, orderID, status string) error
}

// Notifier relays out-of-band alerts to a user's sessions regardless of
// which rooms they have open, and turns payment-gateway events into
// order notifications.
type Notifier struct {
	bus      *hub.Hub
	registry *Registry
	store    notificationStore
	orders   orderStore
	bridge   *RedisBridge
}

func NewNotifier(bus *hub.Hub, registry *Registry, store notificationStore, orders orderStore, bridge *RedisBridge) *Notifier {
	return &Notifier{bus: bus, registry: registry, store: store, orders: orders, bridge: bridge}
}

func (n *Notifier) Notify(ctx context.Context, userID, message string) domain.Notification {
	item := domain.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
	if n.store != nil {
		persisted, err := n.store.Create(ctx, item)
		if err != nil {
			commonlog.Errorf("event=notifier action=persist status=failed user_id=%s error=%v", userID, err)
		} else {
			item = persisted
		}
	}

	n.bus.Publish(hub.Message{
		Name:   event.NotificationCreated,
		Fields: hub.Fields{"user_id": userID, "notification_id": item.ID},
	})

	env := domain.Envelope{
		Type:           domain.EventNotificationDelivered,
		NotificationID: item.ID,
		Message:        item.Message,
		CreatedAt:      item.CreatedAt,
	}
	if n.bridge != nil {
		n.bridge.PublishUser(userID, env)
	}
	count := n.registry.NotifyUser(userID, env)
	commonlog.Debugf("event=notifier action=dispatch user_id=%s fanout_count=%d", userID, count)
	return item
}

// HandlePayment applies a captured payment: the pending order moves to
// in_progress and both parties are told.
func (n *Notifier) HandlePayment(ctx context.Context, ev domain.PaymentEvent) error {
	if ev.Status != domain.PaymentStatusCaptured {
		return nil
	}
	if n.orders == nil {
		return nil
	}
	order, err := n.orders.GetOrder(ctx, ev.OrderID)
	if err != nil {
		return fmt.Errorf("load order %s: %w", ev.OrderID, err)
	}
	if order.Status == domain.OrderStatusPending {
		if err := n.orders.UpdateStatus(ctx, order.ID, domain.OrderStatusInProgress); err != nil {
			return fmt.Errorf("update order %s: %w", order.ID, err)
		}
		n.bus.Publish(hub.Message{
			Name:   event.OrderStatusChanged,
			Fields: hub.Fields{"order_id": order.ID, "status": domain.OrderStatusInProgress},
		})
	}

	n.Notify(ctx, order.EditorID, fmt.Sprintf("Payment received for order %s. You can start working.", order.ID))
	n.Notify(ctx, order.ClientID, fmt.Sprintf("Your payment for order %s is held in escrow.", order.ID))
	return nil
}

const paymentCapturedRoutingKey = "payment.captured"

// ConsumePayments binds a queue to the payments exchange and feeds
// captured events into HandlePayment until the context ends. Malformed
// payloads are acked and dropped.
func (n *Notifier) ConsumePayments(ctx context.Context, ch *amqp.Channel, exchange, queue string) error {
	q, err := ch.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		return err
	}
	if err := ch.QueueBind(q.Name, paymentCapturedRoutingKey, exchange, false, nil); err != nil {
		return err
	}
	deliveries, err := ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case delivery, ok := <-deliveries:
				if !ok {
					return
				}
				var ev domain.PaymentEvent
				if err := json.Unmarshal(delivery.Body, &ev); err != nil {
					commonlog.Warnf("event=payment_consumer action=decode status=dropped error=%v", err)
					_ = delivery.Ack(false)
					continue
				}
				if err := n.HandlePayment(ctx, ev); err != nil {
					commonlog.Errorf("event=payment_consumer action=handle status=failed order_id=%s error=%v", ev.OrderID, err)
					_ = delivery.Nack(false, true)
					continue
				}
				_ = delivery.Ack(false)
			}
		}
	}()
	return nil
}
