package client

import (
	"sync"

	"editmarket/server/realtime/domain"
)

// UnreadLedger counts unread messages per order room. A mark-read
// subtracts the count it captured instead of zeroing the entry, so a
// message that lands while the mark is in flight keeps its badge.
type UnreadLedger struct {
	mu         sync.Mutex
	selfID     string
	counts     map[string]int
	activeRoom string
	onAlert    func(domain.Envelope)
}

func NewUnreadLedger(selfID string, onAlert func(domain.Envelope)) *UnreadLedger {
	return &UnreadLedger{selfID: selfID, counts: map[string]int{}, onAlert: onAlert}
}

// Observe feeds a delivered message into the ledger. Messages the user
// sent themselves and messages for the room currently on screen do not
// count.
func (u *UnreadLedger) Observe(env domain.Envelope) {
	if env.SenderID == u.selfID {
		return
	}
	u.mu.Lock()
	if env.OrderID == u.activeRoom && u.activeRoom != "" {
		u.mu.Unlock()
		return
	}
	u.counts[env.OrderID]++
	u.mu.Unlock()

	if u.onAlert != nil {
		u.onAlert(env)
	}
}

// MarkRead subtracts the count observed at call time.
func (u *UnreadLedger) MarkRead(orderID string) {
	u.mu.Lock()
	captured := u.counts[orderID]
	u.subtractLocked(orderID, captured)
	u.mu.Unlock()
}

func (u *UnreadLedger) subtractLocked(orderID string, n int) {
	rest := u.counts[orderID] - n
	if rest <= 0 {
		delete(u.counts, orderID)
		return
	}
	u.counts[orderID] = rest
}

func (u *UnreadLedger) SetActiveRoom(orderID string) {
	u.mu.Lock()
	u.activeRoom = orderID
	u.mu.Unlock()
}

func (u *UnreadLedger) Count(orderID string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.counts[orderID]
}

// Total is the badge across all rooms.
func (u *UnreadLedger) Total() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	total := 0
	for _, n := range u.counts {
		total += n
	}
	return total
}

// NotificationList holds delivered notifications newest first, with an
// unseen counter that zeroes when the panel opens.
type NotificationList struct {
	mu      sync.Mutex
	items   []domain.Envelope
	unseen  int
	onAlert func(domain.Envelope)
}

func NewNotificationList(onAlert func(domain.Envelope)) *NotificationList {
	return &NotificationList{onAlert: onAlert}
}

func (n *NotificationList) Add(env domain.Envelope) {
	n.mu.Lock()
	n.items = append([]domain.Envelope{env}, n.items...)
	n.unseen++
	n.mu.Unlock()

	if n.onAlert != nil {
		n.onAlert(env)
	}
}

// OpenPanel returns the notifications newest first and clears the
// unseen counter. The list itself is kept.
func (n *NotificationList) OpenPanel() []domain.Envelope {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.unseen = 0
	out := make([]domain.Envelope, len(n.items))
	copy(out, n.items)
	return out
}

func (n *NotificationList) Unseen() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.unseen
}
