package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"editmarket/server/realtime/domain"
)

// drain pulls everything currently buffered on the session's send
// channel. Write loops are not running in these tests.
func drain(s *Session) []domain.Envelope {
	var out []domain.Envelope
	for {
		select {
		case env := <-s.send:
			out = append(out, env)
		default:
			return out
		}
	}
}

func TestRoomJoinIdempotent(t *testing.T) {
	rc := NewRoomCoordinator()
	s := newSession(nil, "u1", "Ana")

	assert.False(t, rc.Join("order-1", s))
	assert.True(t, rc.Join("order-1", s), "second join reports already subscribed")

	rc.Broadcast("order-1", domain.Envelope{Type: domain.EventMessageDelivered, OrderID: "order-1"})
	require.Len(t, drain(s), 1, "double join must not duplicate delivery")
}

func TestRoomLeaveStopsDelivery(t *testing.T) {
	rc := NewRoomCoordinator()
	s := newSession(nil, "u1", "Ana")
	other := newSession(nil, "u2", "Ben")

	rc.Join("order-1", s)
	rc.Join("order-1", other)

	assert.True(t, rc.Leave("order-1", s))
	assert.False(t, rc.Leave("order-1", s), "leave is idempotent")

	rc.Broadcast("order-1", domain.Envelope{Type: domain.EventMessageDelivered, OrderID: "order-1"})
	assert.Empty(t, drain(s))
	assert.Len(t, drain(other), 1)
}

func TestRoomDropSessionReportsLeftRooms(t *testing.T) {
	rc := NewRoomCoordinator()
	s := newSession(nil, "u1", "Ana")
	rc.Join("order-1", s)
	rc.Join("order-2", s)

	left := rc.DropSession(s)
	assert.ElementsMatch(t, []string{"order-1", "order-2"}, left)
	assert.False(t, rc.IsMember("order-1", s))
	assert.Empty(t, rc.Members("order-1"), "empty rooms are removed")
}

func TestRoomUserInRoomAcrossSessions(t *testing.T) {
	rc := NewRoomCoordinator()
	tab1 := newSession(nil, "u1", "Ana")
	tab2 := newSession(nil, "u1", "Ana")
	rc.Join("order-1", tab1)
	rc.Join("order-1", tab2)

	rc.Leave("order-1", tab1)
	assert.True(t, rc.UserInRoom("order-1", "u1"), "other tab keeps the user in the room")

	rc.Leave("order-1", tab2)
	assert.False(t, rc.UserInRoom("order-1", "u1"))
}

func TestRoomBroadcastExceptUser(t *testing.T) {
	rc := NewRoomCoordinator()
	self := newSession(nil, "u1", "Ana")
	selfTab := newSession(nil, "u1", "Ana")
	other := newSession(nil, "u2", "Ben")
	rc.Join("order-1", self)
	rc.Join("order-1", selfTab)
	rc.Join("order-1", other)

	count := rc.BroadcastExceptUser("order-1", domain.Envelope{Type: domain.EventTypingStarted}, "u1")
	assert.Equal(t, 1, count)
	assert.Empty(t, drain(self))
	assert.Empty(t, drain(selfTab))
	assert.Len(t, drain(other), 1)
}
