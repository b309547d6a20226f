package client

import (
	"sync"
	"time"
)

// DefaultTypingTTL mirrors the server's typing expiry; an indicator the
// server never cleared (lost stop frame) falls out of the mirror after
// this long.
const DefaultTypingTTL = 3 * time.Second

type typingSeen struct {
	userName string
	seenAt   time.Time
}

// TypingMirror tracks who the server says is typing in each room.
type TypingMirror struct {
	mu    sync.Mutex
	ttl   time.Duration
	rooms map[string]map[string]typingSeen
}

func NewTypingMirror(ttl time.Duration) *TypingMirror {
	if ttl <= 0 {
		ttl = DefaultTypingTTL
	}
	return &TypingMirror{ttl: ttl, rooms: map[string]map[string]typingSeen{}}
}

func (t *TypingMirror) Started(orderID, userID, userName string) {
	if userID == "" {
		return
	}
	t.mu.Lock()
	room := t.rooms[orderID]
	if room == nil {
		room = map[string]typingSeen{}
		t.rooms[orderID] = room
	}
	room[userID] = typingSeen{userName: userName, seenAt: time.Now()}
	t.mu.Unlock()
}

func (t *TypingMirror) Stopped(orderID, userID string) {
	t.mu.Lock()
	if room, ok := t.rooms[orderID]; ok {
		delete(room, userID)
		if len(room) == 0 {
			delete(t.rooms, orderID)
		}
	}
	t.mu.Unlock()
}

// TypingIn lists the display names typing in a room. Entries past the
// TTL are treated as stopped even before a stop frame arrives.
func (t *TypingMirror) TypingIn(orderID string) []string {
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	room := t.rooms[orderID]
	names := make([]string, 0, len(room))
	for userID, seen := range room {
		if now.Sub(seen.seenAt) > t.ttl {
			delete(room, userID)
			continue
		}
		names = append(names, seen.userName)
	}
	if len(room) == 0 {
		delete(t.rooms, orderID)
	}
	return names
}
