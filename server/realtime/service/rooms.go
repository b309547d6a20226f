package service

import (
	"sync"

	"editmarket/server/realtime/domain"
)

// RoomCoordinator maps each order conversation to the sessions
// subscribed to it. Rooms are created lazily on first join and removed
// when the last subscriber leaves.
type RoomCoordinator struct {
	mu    sync.RWMutex
	rooms map[string]map[string]*Session
}

func NewRoomCoordinator() *RoomCoordinator {
	return &RoomCoordinator{rooms: map[string]map[string]*Session{}}
}

// Join subscribes the session. Joining twice is a no-op, so a double
// join never duplicates delivery.
func (rc *RoomCoordinator) Join(orderID string, s *Session) (already bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	members, ok := rc.rooms[orderID]
	if !ok {
		members = map[string]*Session{}
		rc.rooms[orderID] = members
	}
	if _, ok := members[s.id]; ok {
		return true
	}
	members[s.id] = s
	return false
}

// Leave removes the session before returning, so nothing broadcast
// after Leave reaches it.
func (rc *RoomCoordinator) Leave(orderID string, s *Session) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	members, ok := rc.rooms[orderID]
	if !ok {
		return false
	}
	if _, ok := members[s.id]; !ok {
		return false
	}
	delete(members, s.id)
	if len(members) == 0 {
		delete(rc.rooms, orderID)
	}
	return true
}

// DropSession removes the session from every room it is in and returns
// the order IDs it left, for typing-state cleanup.
func (rc *RoomCoordinator) DropSession(s *Session) []string {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	var left []string
	for orderID, members := range rc.rooms {
		if _, ok := members[s.id]; !ok {
			continue
		}
		delete(members, s.id)
		if len(members) == 0 {
			delete(rc.rooms, orderID)
		}
		left = append(left, orderID)
	}
	return left
}

func (rc *RoomCoordinator) IsMember(orderID string, s *Session) bool {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	_, ok := rc.rooms[orderID][s.id]
	return ok
}

// UserInRoom reports whether any session of the user is subscribed.
func (rc *RoomCoordinator) UserInRoom(orderID, userID string) bool {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	for _, member := range rc.rooms[orderID] {
		if member.userID == userID {
			return true
		}
	}
	return false
}

func (rc *RoomCoordinator) Members(orderID string) []*Session {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	members := make([]*Session, 0, len(rc.rooms[orderID]))
	for _, s := range rc.rooms[orderID] {
		members = append(members, s)
	}
	return members
}

func (rc *RoomCoordinator) Broadcast(orderID string, env domain.Envelope) int {
	return rc.broadcast(orderID, env, "")
}

// BroadcastExceptUser fans out to the room while suppressing the
// originator's own sessions (typing self-echo).
func (rc *RoomCoordinator) BroadcastExceptUser(orderID string, env domain.Envelope, excludeUserID string) int {
	return rc.broadcast(orderID, env, excludeUserID)
}

func (rc *RoomCoordinator) broadcast(orderID string, env domain.Envelope, excludeUserID string) int {
	count := 0
	for _, s := range rc.Members(orderID) {
		if excludeUserID != "" && s.userID == excludeUserID {
			continue
		}
		if s.Enqueue(env) == nil {
			count++
		}
	}
	return count
}
