package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Event types sent by clients.
const (
	EventPresenceAnnounce = "presence.announce"
	EventRoomJoin         = "room.join"
	EventRoomLeave        = "room.leave"
	EventMessageSend      = "message.send"
	EventTypingStart      = "typing.start"
	EventTypingStop       = "typing.stop"
	EventMessageMarkRead  = "message.markRead"
	EventPresenceWithdraw = "presence.withdraw"
)

// Event types sent by the server.
const (
	EventPresenceSnapshot      = "presence.snapshot"
	EventPresenceJoined        = "presence.joined"
	EventPresenceLeft          = "presence.left"
	EventMessageDelivered      = "message.delivered"
	EventTypingStarted         = "typing.started"
	EventTypingStopped         = "typing.stopped"
	EventNotificationDelivered = "notification.delivered"
	EventMessageReadAck        = "message.readAck"
	EventError                 = "error"
)

// Envelope is the single frame format on the wire. Fields not used by a
// given event type stay empty and are omitted when marshaled.
type Envelope struct {
	Type           string    `json:"type"`
	OrderID        string    `json:"order_id,omitempty"`
	UserID         string    `json:"user_id,omitempty"`
	UserName       string    `json:"user_name,omitempty"`
	SenderID       string    `json:"sender_id,omitempty"`
	SenderName     string    `json:"sender_name,omitempty"`
	Body           string    `json:"body,omitempty"`
	ReadBy         string    `json:"read_by,omitempty"`
	NotificationID string    `json:"notification_id,omitempty"`
	Message        string    `json:"message,omitempty"`
	Error          string    `json:"error,omitempty"`
	OnlineUserIDs  []string  `json:"online_user_ids,omitempty"`
	CreatedAt      time.Time `json:"created_at,omitzero"`
}

var ErrMalformedEvent = errors.New("malformed event")

// DecodeEnvelope parses an inbound frame. Unknown types decode fine and
// are rejected by the dispatcher; frames without a type are malformed.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, ErrMalformedEvent
	}
	env.Type = strings.TrimSpace(env.Type)
	if env.Type == "" {
		return Envelope{}, ErrMalformedEvent
	}
	return env, nil
}

func (e Envelope) Encode() []byte {
	b, _ := json.Marshal(e)
	return b
}

func NewErrorEnvelope(orderID, message string) Envelope {
	return Envelope{Type: EventError, OrderID: orderID, Error: message}
}
