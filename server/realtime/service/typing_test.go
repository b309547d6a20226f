package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"editmarket/server/realtime/domain"
)

func typingFixture(t *testing.T, ttl time.Duration) (*TypingCoordinator, *RoomCoordinator, *Session, *Session) {
	t.Helper()
	rc := NewRoomCoordinator()
	tc := NewTypingCoordinator(rc, ttl)
	t.Cleanup(tc.Close)

	typer := newSession(nil, "u1", "Ana")
	watcher := newSession(nil, "u2", "Ben")
	rc.Join("order-1", typer)
	rc.Join("order-1", watcher)
	return tc, rc, typer, watcher
}

func TestTypingStartBroadcastsOnce(t *testing.T) {
	tc, _, typer, watcher := typingFixture(t, time.Minute)

	tc.Start("order-1", "u1", "Ana")
	tc.Start("order-1", "u1", "Ana")
	tc.Start("order-1", "u1", "Ana")

	got := drain(watcher)
	require.Len(t, got, 1, "repeated starts refresh, not rebroadcast")
	assert.Equal(t, domain.EventTypingStarted, got[0].Type)
	assert.Equal(t, "u1", got[0].UserID)
	assert.Equal(t, "Ana", got[0].UserName)
	assert.Empty(t, drain(typer), "typer never sees their own indicator")
}

func TestTypingExplicitStop(t *testing.T) {
	tc, _, _, watcher := typingFixture(t, time.Minute)

	tc.Start("order-1", "u1", "Ana")
	tc.Stop("order-1", "u1")
	tc.Stop("order-1", "u1")

	got := drain(watcher)
	require.Len(t, got, 2)
	assert.Equal(t, domain.EventTypingStarted, got[0].Type)
	assert.Equal(t, domain.EventTypingStopped, got[1].Type)
	assert.False(t, tc.IsTyping("order-1", "u1"))
}

func TestTypingExpiryEmitsSingleStop(t *testing.T) {
	tc, _, _, watcher := typingFixture(t, 80*time.Millisecond)

	tc.Start("order-1", "u1", "Ana")
	require.True(t, tc.IsTyping("order-1", "u1"))

	assert.Eventually(t, func() bool {
		for _, env := range drain(watcher) {
			if env.Type == domain.EventTypingStopped {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond, "expiry should broadcast a stop")

	assert.False(t, tc.IsTyping("order-1", "u1"))

	// explicit stop after expiry must not produce a second broadcast
	tc.Stop("order-1", "u1")
	for _, env := range drain(watcher) {
		assert.NotEqual(t, domain.EventTypingStopped, env.Type)
	}
}

func TestTypingRefreshExtendsTTL(t *testing.T) {
	tc, _, _, _ := typingFixture(t, 120*time.Millisecond)

	tc.Start("order-1", "u1", "Ana")
	for i := 0; i < 4; i++ {
		time.Sleep(40 * time.Millisecond)
		tc.Start("order-1", "u1", "Ana")
	}
	assert.True(t, tc.IsTyping("order-1", "u1"), "refreshes keep the signal alive past the base TTL")
}

func TestTypingIsScopedPerRoom(t *testing.T) {
	tc, rc, typer, _ := typingFixture(t, time.Minute)
	rc.Join("order-2", typer)

	tc.Start("order-1", "u1", "Ana")
	assert.True(t, tc.IsTyping("order-1", "u1"))
	assert.False(t, tc.IsTyping("order-2", "u1"))
}
