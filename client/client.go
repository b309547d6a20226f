// Package client is the Go client for the editmarket realtime service:
// one authenticated websocket per session, with presence, unread and
// notification state mirrored locally.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"editmarket/server/realtime/domain"
)

// AuthError is terminal: a rejected handshake token is never retried.
type AuthError struct {
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("handshake rejected with status %d", e.Status)
}

var ErrClosed = errors.New("client is closed")

// State is the connection state surfaced to the UI layer.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

// Options configures a Client. URL points at the /ws endpoint.
type Options struct {
	URL    string
	Token  string
	UserID string

	// OnEvent sees every decoded inbound frame after the local
	// mirrors were updated. Optional.
	OnEvent func(domain.Envelope)
	// OnAlert fires for unread increments and notifications (the
	// toast hook). Optional.
	OnAlert func(domain.Envelope)
	// OnStateChange reports connection transitions. Optional.
	OnStateChange func(State)
}

type Client struct {
	opts Options

	Presence      *PresenceMirror
	Unread        *UnreadLedger
	Notifications *NotificationList
	Typing        *TypingMirror

	mu     sync.Mutex
	conn   *websocket.Conn
	joined map[string]struct{}
	closed bool

	typingSent map[string]time.Time
	backoff    *Backoff
	malformed  int64
	done       chan struct{}
}

func New(opts Options) *Client {
	c := &Client{
		opts:       opts,
		joined:     map[string]struct{}{},
		typingSent: map[string]time.Time{},
		backoff:    NewBackoff(500*time.Millisecond, 30*time.Second),
		done:       make(chan struct{}),
	}
	c.Presence = NewPresenceMirror()
	c.Unread = NewUnreadLedger(opts.UserID, opts.OnAlert)
	c.Notifications = NewNotificationList(opts.OnAlert)
	c.Typing = NewTypingMirror(DefaultTypingTTL)
	return c
}

// Dial performs the initial handshake. An auth rejection surfaces as
// *AuthError and is not retried; after a successful handshake the
// client keeps itself connected with capped exponential backoff until
// Close or ctx cancellation.
func (c *Client) Dial(ctx context.Context) error {
	conn, err := c.dialOnce(ctx)
	if err != nil {
		return err
	}
	c.setConn(conn)
	c.setState(StateConnected)
	c.backoff.Reset()
	c.announce(conn)

	go c.run(ctx, conn)
	return nil
}

func (c *Client) announce(conn *websocket.Conn) {
	_ = c.writeEnvelope(conn, domain.Envelope{Type: domain.EventPresenceAnnounce, UserID: c.opts.UserID})
}

func (c *Client) dialOnce(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.opts.Token)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.opts.URL, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, &AuthError{Status: resp.StatusCode}
		}
		return nil, err
	}
	return conn, nil
}

func (c *Client) run(ctx context.Context, conn *websocket.Conn) {
	for {
		c.readLoop(conn)

		if c.isClosed() || ctx.Err() != nil {
			return
		}
		c.setState(StateReconnecting)

		var err error
		conn, err = c.redial(ctx)
		if err != nil {
			c.setState(StateDisconnected)
			return
		}
		c.setConn(conn)
		c.setState(StateConnected)
		c.backoff.Reset()
		c.announce(conn)
		c.rejoinRooms()
	}
}

// redial retries with backoff until it connects, the context ends, the
// client is closed, or the server says the token is no longer good.
func (c *Client) redial(ctx context.Context) (*websocket.Conn, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.done:
			return nil, ErrClosed
		case <-time.After(c.backoff.Next()):
		}

		conn, err := c.dialOnce(ctx)
		if err == nil {
			return conn, nil
		}
		var authErr *AuthError
		if errors.As(err, &authErr) {
			return nil, err
		}
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := domain.DecodeEnvelope(raw)
		if err != nil {
			c.mu.Lock()
			c.malformed++
			c.mu.Unlock()
			continue
		}
		c.handle(env)
	}
}

func (c *Client) handle(env domain.Envelope) {
	switch env.Type {
	case domain.EventPresenceSnapshot:
		c.Presence.ApplySnapshot(env.OnlineUserIDs)
	case domain.EventPresenceJoined:
		c.Presence.Join(env.UserID)
	case domain.EventPresenceLeft:
		c.Presence.Leave(env.UserID)
	case domain.EventMessageDelivered:
		c.Typing.Stopped(env.OrderID, env.SenderID)
		c.Unread.Observe(env)
	case domain.EventTypingStarted:
		c.Typing.Started(env.OrderID, env.UserID, env.UserName)
	case domain.EventTypingStopped:
		c.Typing.Stopped(env.OrderID, env.UserID)
	case domain.EventNotificationDelivered:
		c.Notifications.Add(env)
	case domain.EventMessageReadAck:
		// another session of this user read the room
		if env.ReadBy == c.opts.UserID {
			c.Unread.MarkRead(env.OrderID)
		}
	}
	if c.opts.OnEvent != nil {
		c.opts.OnEvent(env)
	}
}

// JoinRoom subscribes to an order's room; the subscription survives
// reconnects until LeaveRoom.
func (c *Client) JoinRoom(orderID string) error {
	c.mu.Lock()
	c.joined[orderID] = struct{}{}
	c.mu.Unlock()
	return c.send(domain.Envelope{Type: domain.EventRoomJoin, OrderID: orderID})
}

func (c *Client) LeaveRoom(orderID string) error {
	c.mu.Lock()
	delete(c.joined, orderID)
	c.mu.Unlock()
	return c.send(domain.Envelope{Type: domain.EventRoomLeave, OrderID: orderID})
}

func (c *Client) SendMessage(orderID, body string) error {
	c.clearTypingSent(orderID)
	return c.send(domain.Envelope{Type: domain.EventMessageSend, OrderID: orderID, Body: body})
}

// StartTyping forwards at most one start signal per second per room;
// the server refreshes its TTL on each one.
func (c *Client) StartTyping(orderID string) error {
	c.mu.Lock()
	if last, ok := c.typingSent[orderID]; ok && time.Since(last) < time.Second {
		c.mu.Unlock()
		return nil
	}
	c.typingSent[orderID] = time.Now()
	c.mu.Unlock()
	return c.send(domain.Envelope{Type: domain.EventTypingStart, OrderID: orderID})
}

func (c *Client) StopTyping(orderID string) error {
	c.clearTypingSent(orderID)
	return c.send(domain.Envelope{Type: domain.EventTypingStop, OrderID: orderID})
}

// MarkRead zeroes the local ledger for the room and tells the server.
func (c *Client) MarkRead(orderID string) error {
	c.Unread.MarkRead(orderID)
	return c.send(domain.Envelope{Type: domain.EventMessageMarkRead, OrderID: orderID})
}

// SetActiveRoom names the room the user is looking at; its messages do
// not count as unread.
func (c *Client) SetActiveRoom(orderID string) {
	c.Unread.SetActiveRoom(orderID)
}

// Close announces going-offline best-effort, then tears the channel
// down. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	close(c.done)
	if conn != nil {
		_ = c.writeEnvelope(conn, domain.Envelope{Type: domain.EventPresenceWithdraw, UserID: c.opts.UserID})
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	}
	c.setState(StateDisconnected)
	return nil
}

// MalformedEvents counts inbound frames that failed to decode.
func (c *Client) MalformedEvents() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.malformed
}

func (c *Client) send(env domain.Envelope) error {
	c.mu.Lock()
	conn := c.conn
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if conn == nil {
		return errors.New("not connected")
	}
	return c.writeEnvelope(conn, env)
}

func (c *Client) writeEnvelope(conn *websocket.Conn, env domain.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, env.Encode())
}

func (c *Client) rejoinRooms() {
	c.mu.Lock()
	rooms := make([]string, 0, len(c.joined))
	for orderID := range c.joined {
		rooms = append(rooms, orderID)
	}
	c.mu.Unlock()
	for _, orderID := range rooms {
		_ = c.send(domain.Envelope{Type: domain.EventRoomJoin, OrderID: orderID})
	}
}

func (c *Client) clearTypingSent(orderID string) {
	c.mu.Lock()
	delete(c.typingSent, orderID)
	c.mu.Unlock()
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) setState(s State) {
	if c.opts.OnStateChange != nil {
		c.opts.OnStateChange(s)
	}
}
