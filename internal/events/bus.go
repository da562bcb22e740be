package events

import (
	"sync"
	"time"
)

// Listener receives notifications.
type Listener interface {
	Notify(Event)
}

// ListenerFunc adapts a plain function to Listener.
type ListenerFunc func(Event)

func (f ListenerFunc) Notify(e Event) { f(e) }

type subscription struct {
	id       uint64
	typ      Type // empty matches every type
	listener Listener
}

// Bus dispatches events synchronously to listeners in subscription order.
// Each listener gets its own copy of the event.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscription
	now    func() time.Time
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{now: func() time.Time { return time.Now().UTC() }}
}

// Subscribe registers l for events of type t and returns a function that
// removes the registration.
func (b *Bus) Subscribe(t Type, l Listener) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, typ: t, listener: l})
	return func() { b.remove(id) }
}

// SubscribeAll registers l for every event type.
func (b *Bus) SubscribeAll(l Listener) (unsubscribe func()) {
	return b.Subscribe("", l)
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Emit stamps e and delivers it.  Listeners added or removed while an
// event is being delivered take effect from the next event.
func (b *Bus) Emit(e Event) {
	if e.At.IsZero() {
		e.At = b.now()
	}
	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		if s.typ != "" && s.typ != e.Type {
			continue
		}
		s.listener.Notify(e.Clone())
	}
}
