package service

import (
	"sync"
	"time"

	"editmarket/server/realtime/domain"
)

// DefaultTypingTTL is how long a typing signal stays live without a
// refresh before it expires as an implicit stop.
const DefaultTypingTTL = 3 * time.Second

type typingKey struct {
	orderID string
	userID  string
}

type typingEntry struct {
	userName   string
	lastSignal time.Time
}

// TypingCoordinator holds ephemeral per-room, per-user typing state.
// A repeated start refreshes the entry; expiry and explicit stop both
// emit exactly one stopped broadcast.
type TypingCoordinator struct {
	rooms *RoomCoordinator
	ttl   time.Duration

	mu      sync.Mutex
	entries map[typingKey]*typingEntry

	done     chan struct{}
	stopOnce sync.Once
}

func NewTypingCoordinator(rooms *RoomCoordinator, ttl time.Duration) *TypingCoordinator {
	if ttl <= 0 {
		ttl = DefaultTypingTTL
	}
	tc := &TypingCoordinator{
		rooms:   rooms,
		ttl:     ttl,
		entries: map[typingKey]*typingEntry{},
		done:    make(chan struct{}),
	}
	go tc.sweepLoop()
	return tc
}

func (tc *TypingCoordinator) Close() {
	tc.stopOnce.Do(func() { close(tc.done) })
}

// Start marks the user as typing. Only the idle -> typing transition
// broadcasts; while typing, calls just rearm the expiry.
func (tc *TypingCoordinator) Start(orderID, userID, userName string) {
	key := typingKey{orderID: orderID, userID: userID}

	tc.mu.Lock()
	entry, ok := tc.entries[key]
	if ok {
		entry.lastSignal = time.Now()
		tc.mu.Unlock()
		return
	}
	tc.entries[key] = &typingEntry{userName: userName, lastSignal: time.Now()}
	tc.mu.Unlock()

	tc.rooms.BroadcastExceptUser(orderID, domain.Envelope{
		Type:     domain.EventTypingStarted,
		OrderID:  orderID,
		UserID:   userID,
		UserName: userName,
	}, userID)
}

// Stop clears the state if present. A stop after expiry already fired
// is a no-op, never a duplicate broadcast.
func (tc *TypingCoordinator) Stop(orderID, userID string) {
	key := typingKey{orderID: orderID, userID: userID}

	tc.mu.Lock()
	entry, ok := tc.entries[key]
	if !ok {
		tc.mu.Unlock()
		return
	}
	delete(tc.entries, key)
	tc.mu.Unlock()

	tc.broadcastStopped(orderID, userID, entry.userName)
}

// IsTyping treats an entry older than the TTL as already absent even
// if the sweeper has not collected it yet.
func (tc *TypingCoordinator) IsTyping(orderID, userID string) bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	entry, ok := tc.entries[typingKey{orderID: orderID, userID: userID}]
	return ok && time.Since(entry.lastSignal) < tc.ttl
}

func (tc *TypingCoordinator) sweepLoop() {
	interval := tc.ttl / 6
	if interval < 50*time.Millisecond {
		interval = 50 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-tc.done:
			return
		case <-ticker.C:
			tc.sweep(time.Now())
		}
	}
}

func (tc *TypingCoordinator) sweep(now time.Time) {
	type expired struct {
		key      typingKey
		userName string
	}

	tc.mu.Lock()
	var stale []expired
	for key, entry := range tc.entries {
		if now.Sub(entry.lastSignal) >= tc.ttl {
			stale = append(stale, expired{key: key, userName: entry.userName})
			delete(tc.entries, key)
		}
	}
	tc.mu.Unlock()

	for _, e := range stale {
		tc.broadcastStopped(e.key.orderID, e.key.userID, e.userName)
	}
}

func (tc *TypingCoordinator) broadcastStopped(orderID, userID, userName string) {
	tc.rooms.BroadcastExceptUser(orderID, domain.Envelope{
		Type:     domain.EventTypingStopped,
		OrderID:  orderID,
		UserID:   userID,
		UserName: userName,
	}, userID)
}
