package client

import (
	"sort"
	"sync"
)

// PresenceMirror is the local copy of who is online. A snapshot
// replaces the whole set; joined/left deltas mutate it and are
// idempotent, so a delta racing its own snapshot does no harm.
type PresenceMirror struct {
	mu     sync.RWMutex
	online map[string]struct{}
}

func NewPresenceMirror() *PresenceMirror {
	return &PresenceMirror{online: map[string]struct{}{}}
}

func (p *PresenceMirror) ApplySnapshot(userIDs []string) {
	next := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		next[id] = struct{}{}
	}
	p.mu.Lock()
	p.online = next
	p.mu.Unlock()
}

func (p *PresenceMirror) Join(userID string) {
	if userID == "" {
		return
	}
	p.mu.Lock()
	p.online[userID] = struct{}{}
	p.mu.Unlock()
}

func (p *PresenceMirror) Leave(userID string) {
	p.mu.Lock()
	delete(p.online, userID)
	p.mu.Unlock()
}

func (p *PresenceMirror) IsOnline(userID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.online[userID]
	return ok
}

// Online returns the online user ids sorted for stable rendering.
func (p *PresenceMirror) Online() []string {
	p.mu.RLock()
	ids := make([]string, 0, len(p.online))
	for id := range p.online {
		ids = append(ids, id)
	}
	p.mu.RUnlock()
	sort.Strings(ids)
	return ids
}
