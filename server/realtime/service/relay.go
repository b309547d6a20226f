package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	commonlog "editmarket/server/common/log"
	"editmarket/server/realtime/domain"
)

type messageStore interface {
	CreateMessage(ctx context.Context, message domain.Message) (domain.Message, error)
	MarkRead(ctx context.Context, orderID, userID string) error
}

// MessageRelay fans a chat message out to the room's current
// subscribers. Durability lives in the message store; a persist
// failure never blocks realtime delivery.
type MessageRelay struct {
	rooms    *RoomCoordinator
	registry *Registry
	store    messageStore
	bridge   *RedisBridge
}

func NewMessageRelay(rooms *RoomCoordinator, registry *Registry, store messageStore, bridge *RedisBridge) *MessageRelay {
	return &MessageRelay{rooms: rooms, registry: registry, store: store, bridge: bridge}
}

// Send delivers to all subscribers in the order the sender's frames
// arrive. Local sessions are dispatched directly so per-sender FIFO
// holds even when the cross-node mirror fails; the bridge only carries
// the message to peer nodes. A room with zero subscribers gets no
// realtime delivery; the store makes the message retrievable on the
// next join.
func (mr *MessageRelay) Send(ctx context.Context, orderID, senderID, senderName, body string) domain.Message {
	msg := domain.Message{
		ID:         uuid.NewString(),
		OrderID:    orderID,
		SenderID:   senderID,
		SenderName: senderName,
		Body:       body,
		CreatedAt:  time.Now().UTC(),
	}
	if mr.store != nil {
		persisted, err := mr.store.CreateMessage(ctx, msg)
		if err != nil {
			commonlog.Errorf("event=message_relay action=persist status=failed order_id=%s sender_id=%s error=%v", orderID, senderID, err)
		} else {
			msg = persisted
		}
	}

	env := domain.Envelope{
		Type:       domain.EventMessageDelivered,
		OrderID:    msg.OrderID,
		SenderID:   msg.SenderID,
		SenderName: msg.SenderName,
		Body:       msg.Body,
		CreatedAt:  msg.CreatedAt,
	}
	if mr.bridge != nil {
		mr.bridge.PublishRoom(orderID, env)
	}
	count := mr.rooms.Broadcast(orderID, env)
	commonlog.Debugf("event=message_relay action=dispatch order_id=%s sender_id=%s fanout_count=%d", orderID, senderID, count)
	return msg
}

// MarkRead records the receipt and acks the reader's sessions so other
// open tabs clear their counters too.
func (mr *MessageRelay) MarkRead(ctx context.Context, orderID, readBy string) {
	if mr.store != nil {
		if err := mr.store.MarkRead(ctx, orderID, readBy); err != nil {
			commonlog.Errorf("event=message_relay action=mark_read status=failed order_id=%s user_id=%s error=%v", orderID, readBy, err)
		}
	}
	env := domain.Envelope{
		Type:    domain.EventMessageReadAck,
		OrderID: orderID,
		ReadBy:  readBy,
	}
	if mr.bridge != nil {
		mr.bridge.PublishUser(readBy, env)
	}
	mr.registry.NotifyUser(readBy, env)
}
