package service

import (
	"sort"
	"sync"

	"github.com/leandro-lugaresi/hub"

	"editmarket/server/realtime/event"
)

// PresenceTracker keeps the process-wide set of online users. Counts
// are per live session: a user with three tabs stays online until the
// last one closes.
type PresenceTracker struct {
	bus      *hub.Hub
	mu       sync.Mutex
	counters map[string]int
}

func NewPresenceTracker(bus *hub.Hub) *PresenceTracker {
	return &PresenceTracker{bus: bus, counters: map[string]int{}}
}

// MarkOnline increments the user's session count and reports whether
// this was the 0 -> 1 transition. Only that transition is announced.
func (pt *PresenceTracker) MarkOnline(userID string) (toOnline bool) {
	pt.mu.Lock()
	pt.counters[userID]++
	toOnline = pt.counters[userID] == 1
	pt.mu.Unlock()

	if toOnline {
		pt.bus.Publish(hub.Message{
			Name:   event.UserOnline,
			Fields: hub.Fields{"user_id": userID},
		})
	}
	return toOnline
}

// MarkOffline decrements the count and reports the 1 -> 0 transition.
// A decrement without a prior increment is ignored.
func (pt *PresenceTracker) MarkOffline(userID string) (toOffline bool) {
	pt.mu.Lock()
	count, ok := pt.counters[userID]
	if !ok {
		pt.mu.Unlock()
		return false
	}
	count--
	if count <= 0 {
		delete(pt.counters, userID)
		toOffline = true
	} else {
		pt.counters[userID] = count
	}
	pt.mu.Unlock()

	if toOffline {
		pt.bus.Publish(hub.Message{
			Name:   event.UserOffline,
			Fields: hub.Fields{"user_id": userID},
		})
	}
	return toOffline
}

func (pt *PresenceTracker) IsOnline(userID string) bool {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.counters[userID] > 0
}

func (pt *PresenceTracker) Snapshot() []string {
	pt.mu.Lock()
	ids := make([]string, 0, len(pt.counters))
	for userID := range pt.counters {
		ids = append(ids, userID)
	}
	pt.mu.Unlock()

	sort.Strings(ids)
	return ids
}
