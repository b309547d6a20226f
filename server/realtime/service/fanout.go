package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	commonlog "editmarket/server/common/log"
	"editmarket/server/realtime/domain"
)

const realtimeEventsChannel = "realtime:events"

type bridgeEvent struct {
	Origin   string          `json:"origin"`
	Kind     string          `json:"kind"`
	OrderID  string          `json:"order_id,omitempty"`
	UserID   string          `json:"user_id,omitempty"`
	Envelope domain.Envelope `json:"envelope"`
}

// RedisBridge mirrors room and user fan-out to peer nodes through redis
// pub/sub. Local delivery stays with the caller: each node dispatches
// to its own sessions directly and the consumer skips events this node
// originated, so a failed publish can degrade cross-node delivery but
// never reorder the local stream.
type RedisBridge struct {
	rooms    *RoomCoordinator
	registry *Registry
	nodeID   string

	mu        sync.Mutex
	redis     *redis.Client
	sub       *redis.PubSub
	subCancel context.CancelFunc
}

// NewRedisBridge takes only the client; the service wires in its room
// coordinator and registry when it is constructed.
func NewRedisBridge(client *redis.Client) *RedisBridge {
	return &RedisBridge{redis: client, nodeID: uuid.NewString()}
}

func (b *RedisBridge) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.redis == nil {
		b.mu.Unlock()
		return errors.New("redis client is nil")
	}
	if b.sub != nil {
		b.mu.Unlock()
		return nil
	}
	subCtx, cancel := context.WithCancel(ctx)
	sub := b.redis.Subscribe(subCtx, realtimeEventsChannel)
	b.sub = sub
	b.subCancel = cancel
	b.mu.Unlock()

	go b.consumeEvents(subCtx, sub)
	return nil
}

func (b *RedisBridge) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subCancel != nil {
		b.subCancel()
		b.subCancel = nil
	}
	if b.sub != nil {
		_ = b.sub.Close()
		b.sub = nil
	}
}

// PublishRoom mirrors a room broadcast to peer nodes, best-effort. The
// caller always dispatches to its local sessions itself.
func (b *RedisBridge) PublishRoom(orderID string, env domain.Envelope) bool {
	return b.publish(bridgeEvent{Origin: b.nodeID, Kind: "room", OrderID: orderID, Envelope: env})
}

func (b *RedisBridge) PublishUser(userID string, env domain.Envelope) bool {
	return b.publish(bridgeEvent{Origin: b.nodeID, Kind: "user", UserID: userID, Envelope: env})
}

func (b *RedisBridge) publish(ev bridgeEvent) bool {
	b.mu.Lock()
	client := b.redis
	b.mu.Unlock()
	if client == nil {
		return false
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return false
	}
	if err := client.Publish(context.Background(), realtimeEventsChannel, raw).Err(); err != nil {
		commonlog.Errorf("event=realtime_fanout action=publish status=failed kind=%s error=%v", ev.Kind, err)
		return false
	}
	return true
}

func (b *RedisBridge) consumeEvents(ctx context.Context, sub *redis.PubSub) {
	for {
		msg, err := sub.ReceiveMessage(ctx)
		if err != nil {
			return
		}
		var ev bridgeEvent
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			commonlog.Warnf("event=realtime_fanout action=consume status=dropped error=%v", err)
			continue
		}
		if ev.Origin == b.nodeID {
			// this node already delivered locally at publish time
			continue
		}
		switch ev.Kind {
		case "room":
			count := b.rooms.Broadcast(ev.OrderID, ev.Envelope)
			commonlog.Debugf("event=realtime_fanout action=consume kind=room order_id=%s fanout_count=%d", ev.OrderID, count)
		case "user":
			count := b.registry.NotifyUser(ev.UserID, ev.Envelope)
			commonlog.Debugf("event=realtime_fanout action=consume kind=user user_id=%s fanout_count=%d", ev.UserID, count)
		}
	}
}
