package service

import (
	"testing"

	"github.com/leandro-lugaresi/hub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"editmarket/server/realtime/event"
)

func TestPresenceTrackerRefcount(t *testing.T) {
	pt := NewPresenceTracker(hub.New())

	assert.True(t, pt.MarkOnline("u1"), "first session is the online transition")
	assert.False(t, pt.MarkOnline("u1"), "second tab must not re-announce")
	assert.True(t, pt.IsOnline("u1"))

	assert.False(t, pt.MarkOffline("u1"), "one tab left, still online")
	assert.True(t, pt.IsOnline("u1"))

	assert.True(t, pt.MarkOffline("u1"), "last session is the offline transition")
	assert.False(t, pt.IsOnline("u1"))
}

func TestPresenceTrackerSpuriousOffline(t *testing.T) {
	pt := NewPresenceTracker(hub.New())

	assert.False(t, pt.MarkOffline("ghost"))
	assert.False(t, pt.IsOnline("ghost"))

	// a later real session still transitions normally
	assert.True(t, pt.MarkOnline("ghost"))
	assert.True(t, pt.MarkOffline("ghost"))
}

func TestPresenceTrackerPublishesTransitionsOnly(t *testing.T) {
	bus := hub.New()
	sub := bus.Subscribe(8, event.UserOnline, event.UserOffline)
	defer bus.Unsubscribe(sub)

	pt := NewPresenceTracker(bus)
	pt.MarkOnline("u1")
	pt.MarkOnline("u1")
	pt.MarkOffline("u1")
	pt.MarkOffline("u1")

	first := <-sub.Receiver
	require.Equal(t, event.UserOnline, first.Topic())
	assert.Equal(t, "u1", first.Fields["user_id"])

	second := <-sub.Receiver
	require.Equal(t, event.UserOffline, second.Topic())
	assert.Equal(t, "u1", second.Fields["user_id"])

	select {
	case extra := <-sub.Receiver:
		t.Fatalf("unexpected extra transition: %s", extra.Topic())
	default:
	}
}

func TestPresenceSnapshotSorted(t *testing.T) {
	pt := NewPresenceTracker(hub.New())
	pt.MarkOnline("charlie")
	pt.MarkOnline("alice")
	pt.MarkOnline("bob")

	assert.Equal(t, []string{"alice", "bob", "charlie"}, pt.Snapshot())
}
