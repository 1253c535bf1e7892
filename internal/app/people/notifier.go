package people

import "sync"

// EventKind names a roster notification.
type EventKind string

const (
	// EventLoginCompleted is published once a pending login has been confirmed.
	// The event carries the reconciled current user.
	EventLoginCompleted EventKind = "login-completed"

	// EventLogoutCompleted is published when a logout completes. The event carries the former user.
	EventLogoutCompleted EventKind = "logout-completed"

	// EventLoginFailed is published when a pending login is abandoned without confirmation.
	// The event carries the discarded provisional person and the reason.
	EventLoginFailed EventKind = "login-failed"

	// EventRosterChanged is published after the roster was rebuilt from a server list.
	EventRosterChanged EventKind = "roster-changed"
)

// Event is delivered to subscribers.
type Event struct {
	Kind   EventKind
	Person *Person
	Err    error
}

// Handler receives events.
type Handler func(Event)

type subscription struct {
	id      uint64
	handler Handler
}

// Notifier delivers events synchronously to the handlers subscribed at publish time,
// in subscription order. Events are not stored or replayed.
type Notifier struct {
	mu   sync.RWMutex
	next uint64
	subs map[EventKind][]subscription
}

// NewNotifier returns a notifier with no subscribers.
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[EventKind][]subscription)}
}

// Subscribe registers handler for kind. The returned function removes the subscription
// and is safe to call more than once.
func (n *Notifier) Subscribe(kind EventKind, handler Handler) (unsubscribe func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.next++
	id := n.next
	n.subs[kind] = append(n.subs[kind], subscription{id: id, handler: handler})

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()

		subs := n.subs[kind]
		for i, s := range subs {
			if s.id == id {
				n.subs[kind] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers ev to every current subscriber of ev.Kind.
func (n *Notifier) Publish(ev Event) {
	n.mu.RLock()
	subs := append([]subscription(nil), n.subs[ev.Kind]...)
	n.mu.RUnlock()

	for _, s := range subs {
		s.handler(ev)
	}
}
