package service

import (
	"sync"

	"editmarket/server/realtime/domain"
)

// Registry tracks every live session on this node, grouped by user.
// It owns session membership only; presence transitions are derived
// from Register/Unregister by the caller.
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]*Session
	byUser map[string]map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{
		byID:   map[string]*Session{},
		byUser: map[string]map[string]*Session{},
	}
}

func (r *Registry) Register(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[s.id]; ok {
		return
	}
	r.byID[s.id] = s
	sessions, ok := r.byUser[s.userID]
	if !ok {
		sessions = map[string]*Session{}
		r.byUser[s.userID] = sessions
	}
	sessions[s.id] = s
}

// Unregister removes the session and reports whether it was present,
// so the caller decrements presence exactly once per session.
func (r *Registry) Unregister(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[s.id]; !ok {
		return false
	}
	delete(r.byID, s.id)
	if sessions, ok := r.byUser[s.userID]; ok {
		delete(sessions, s.id)
		if len(sessions) == 0 {
			delete(r.byUser, s.userID)
		}
	}
	return true
}

func (r *Registry) SessionsOf(userID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sessions := make([]*Session, 0, len(r.byUser[userID]))
	for _, s := range r.byUser[userID] {
		sessions = append(sessions, s)
	}
	return sessions
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func (r *Registry) NotifyUser(userID string, env domain.Envelope) int {
	count := 0
	for _, s := range r.SessionsOf(userID) {
		if s.Enqueue(env) == nil {
			count++
		}
	}
	return count
}

func (r *Registry) BroadcastAll(env domain.Envelope) int {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.byID))
	for _, s := range r.byID {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	count := 0
	for _, s := range sessions {
		if s.Enqueue(env) == nil {
			count++
		}
	}
	return count
}
