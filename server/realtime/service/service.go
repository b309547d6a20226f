package service

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/leandro-lugaresi/hub"

	commonlog "editmarket/server/common/log"
	"editmarket/server/realtime/domain"
	"editmarket/server/realtime/event"
)

const dispatchTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type orderAccess interface {
	HasAccess(ctx context.Context, orderID, userID string) (bool, error)
}

// Deps are the collaborators the realtime service coordinates. Orders,
// Messages, Notifications and Redis may be nil; a nil Orders check
// allows every join (single-user dev mode).
type Deps struct {
	Orders        orderAccess
	Messages      messageStore
	Notifications notificationStore
	OrderStore    orderStore
	Bridge        *RedisBridge
	TypingTTL     time.Duration
}

// Service owns the registry and the per-concern coordinators, and is
// the only writer to each of their state sets.
type Service struct {
	bus      *hub.Hub
	registry *Registry
	presence *PresenceTracker
	rooms    *RoomCoordinator
	typing   *TypingCoordinator
	relay    *MessageRelay
	notifier *Notifier
	orders   orderAccess

	// registerMu serializes snapshot enqueueing against presence-delta
	// broadcasts, so a new session's snapshot always precedes any delta
	// on its send channel.
	registerMu  sync.Mutex
	presenceSub hub.Subscription
	closeOnce   sync.Once
	malformed   atomic.Int64
}

func NewService(bus *hub.Hub, deps Deps) *Service {
	registry := NewRegistry()
	rooms := NewRoomCoordinator()
	if deps.Bridge != nil {
		deps.Bridge.rooms = rooms
		deps.Bridge.registry = registry
	}

	svc := &Service{
		bus:      bus,
		registry: registry,
		presence: NewPresenceTracker(bus),
		rooms:    rooms,
		typing:   NewTypingCoordinator(rooms, deps.TypingTTL),
		relay:    NewMessageRelay(rooms, registry, deps.Messages, deps.Bridge),
		notifier: NewNotifier(bus, registry, deps.Notifications, deps.OrderStore, deps.Bridge),
		orders:   deps.Orders,
	}

	svc.presenceSub = bus.Subscribe(8, event.UserOnline, event.UserOffline)
	go svc.relayPresence()

	return svc
}

func (svc *Service) Presence() *PresenceTracker { return svc.presence }

// OrderAccess is the per-order authorization check; with no order
// store configured every join is allowed.
func (svc *Service) OrderAccess(ctx context.Context, orderID, userID string) (bool, error) {
	if svc.orders == nil {
		return true, nil
	}
	return svc.orders.HasAccess(ctx, orderID, userID)
}
func (svc *Service) Notifier() *Notifier       { return svc.notifier }
func (svc *Service) Relay() *MessageRelay      { return svc.relay }

func (svc *Service) Close() {
	svc.closeOnce.Do(func() {
		svc.typing.Close()
		svc.bus.Unsubscribe(svc.presenceSub)
	})
}

// relayPresence turns bus transitions into deltas for every connected
// session, so clients mirror the online set without subscribing rooms.
func (svc *Service) relayPresence() {
	for e := range svc.presenceSub.Receiver {
		userID, ok := e.Fields["user_id"].(string)
		if !ok {
			continue
		}
		svc.registerMu.Lock()
		switch e.Topic() {
		case event.UserOnline:
			svc.registry.BroadcastAll(domain.Envelope{Type: domain.EventPresenceJoined, UserID: userID})
		case event.UserOffline:
			svc.registry.BroadcastAll(domain.Envelope{Type: domain.EventPresenceLeft, UserID: userID})
		}
		svc.registerMu.Unlock()
	}
}

// HandleWS upgrades the authenticated request and runs the session
// until the connection drops. The handshake token was already checked
// by the auth middleware; it never appears in a query string.
func (svc *Service) HandleWS(c *gin.Context) {
	userID := contextString(c, "auth_user_id")
	userName := contextString(c, "auth_user_name")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	s := newSession(conn, userID, userName)
	svc.register(s)
	go s.writeLoop()
	s.readLoop(svc)
}

// register adds the session, hands it the presence snapshot, then
// announces the user. Registration and the snapshot enqueue happen
// under registerMu, so a concurrent delta broadcast cannot land on the
// send channel ahead of a snapshot that predates it. MarkOnline stays
// outside the lock: its bus publish could otherwise block against the
// delta relay waiting on the same lock.
func (svc *Service) register(s *Session) {
	svc.registerMu.Lock()
	svc.registry.Register(s)
	_ = s.Enqueue(domain.Envelope{
		Type:          domain.EventPresenceSnapshot,
		OnlineUserIDs: svc.presence.Snapshot(),
	})
	svc.registerMu.Unlock()
	svc.presence.MarkOnline(s.userID)
	commonlog.Infof("event=realtime_session action=register conn_id=%s user_id=%s sessions=%d", s.id, s.userID, svc.registry.Len())
}

// teardown runs on every exit path: read error, close frame, withdraw.
func (svc *Service) teardown(s *Session) {
	if !svc.registry.Unregister(s) {
		return
	}
	for _, orderID := range svc.rooms.DropSession(s) {
		svc.stopTypingIfGone(orderID, s.userID)
	}
	svc.presence.MarkOffline(s.userID)
	s.close()
	commonlog.Infof("event=realtime_session action=unregister conn_id=%s user_id=%s sessions=%d", s.id, s.userID, svc.registry.Len())
}

// stopTypingIfGone emits the implicit typing stop once the user's last
// session has left the room.
func (svc *Service) stopTypingIfGone(orderID, userID string) {
	if svc.rooms.UserInRoom(orderID, userID) {
		return
	}
	svc.typing.Stop(orderID, userID)
}

// MalformedEvents counts inbound frames dropped by the dispatcher.
func (svc *Service) MalformedEvents() int64 {
	return svc.malformed.Load()
}

func (svc *Service) dispatch(s *Session, raw []byte) {
	env, err := domain.DecodeEnvelope(raw)
	if err != nil {
		svc.malformed.Add(1)
		commonlog.Warnf("event=realtime_session action=dispatch status=dropped conn_id=%s user_id=%s reason=malformed", s.id, s.userID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	switch env.Type {
	case domain.EventPresenceAnnounce:
		// the handshake already counted this session; an explicit
		// announce is an allowed re-affirmation, not a second increment

	case domain.EventRoomJoin:
		svc.handleJoin(ctx, s, env.OrderID)

	case domain.EventRoomLeave:
		if env.OrderID == "" {
			svc.dropFrame(s, env.Type)
			return
		}
		svc.rooms.Leave(env.OrderID, s)
		svc.stopTypingIfGone(env.OrderID, s.userID)

	case domain.EventMessageSend:
		if env.OrderID == "" || strings.TrimSpace(env.Body) == "" {
			svc.dropFrame(s, env.Type)
			return
		}
		if !svc.rooms.IsMember(env.OrderID, s) {
			_ = s.Enqueue(domain.NewErrorEnvelope(env.OrderID, "join the room before sending"))
			return
		}
		svc.relay.Send(ctx, env.OrderID, s.userID, s.userName, env.Body)
		// sending a message ends the sender's typing state
		svc.typing.Stop(env.OrderID, s.userID)

	case domain.EventTypingStart:
		if env.OrderID == "" || !svc.rooms.IsMember(env.OrderID, s) {
			return
		}
		svc.typing.Start(env.OrderID, s.userID, s.userName)

	case domain.EventTypingStop:
		if env.OrderID == "" {
			return
		}
		svc.typing.Stop(env.OrderID, s.userID)

	case domain.EventMessageMarkRead:
		if env.OrderID == "" {
			svc.dropFrame(s, env.Type)
			return
		}
		svc.relay.MarkRead(ctx, env.OrderID, s.userID)

	case domain.EventPresenceWithdraw:
		// voluntary going-offline; the read loop exits after teardown
		svc.teardown(s)

	default:
		svc.malformed.Add(1)
		commonlog.Warnf("event=realtime_session action=dispatch status=dropped conn_id=%s user_id=%s type=%s reason=unknown_type", s.id, s.userID, env.Type)
	}
}

func (svc *Service) handleJoin(ctx context.Context, s *Session, orderID string) {
	if orderID == "" {
		svc.dropFrame(s, domain.EventRoomJoin)
		return
	}
	if svc.orders != nil {
		allowed, err := svc.orders.HasAccess(ctx, orderID, s.userID)
		if err != nil {
			commonlog.Errorf("event=realtime_session action=join status=failed conn_id=%s order_id=%s error=%v", s.id, orderID, err)
			_ = s.Enqueue(domain.NewErrorEnvelope(orderID, "join failed, try again"))
			return
		}
		if !allowed {
			_ = s.Enqueue(domain.NewErrorEnvelope(orderID, ErrForbidden.Error()))
			return
		}
	}
	svc.rooms.Join(orderID, s)
}

func (svc *Service) dropFrame(s *Session, eventType string) {
	svc.malformed.Add(1)
	commonlog.Warnf("event=realtime_session action=dispatch status=dropped conn_id=%s user_id=%s type=%s reason=missing_fields", s.id, s.userID, eventType)
}

func contextString(c *gin.Context, key string) string {
	raw, ok := c.Get(key)
	if !ok {
		return ""
	}
	v, _ := raw.(string)
	return strings.TrimSpace(v)
}
