package events

import (
	"fmt"
	"sync"
	"time"

	"github.com/OFFIS-RIT/kiwi-live/pkg/logger"
)

// Handler receives emitted events. Handlers run synchronously on the
// emitting goroutine and must not block for long.
type Handler func(Event)

type subscription struct {
	id      uint64
	kind    Kind
	all     bool
	handler Handler
}

// Bus fans events out to registered handlers in registration order.
type Bus struct {
	sessionID string
	now       func() time.Time
	log       logger.ComponentLogger

	mu     sync.RWMutex
	nextID uint64
	subs   []subscription
	closed bool
}

// NewBus creates the event bus for one session. now defaults to time.Now.
func NewBus(sessionID string, now func() time.Time) *Bus {
	if now == nil {
		now = time.Now
	}
	return &Bus{
		sessionID: sessionID,
		now:       now,
		log:       logger.Component("Events").With("session", sessionID),
	}
}

// Subscribe registers h for a single kind and returns its unsubscribe func.
func (b *Bus) Subscribe(kind Kind, h Handler) func() {
	return b.add(subscription{kind: kind, handler: h})
}

// SubscribeAll registers h for every kind.
func (b *Bus) SubscribeAll(h Handler) func() {
	return b.add(subscription{all: true, handler: h})
}

func (b *Bus) add(s subscription) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}
	}
	b.nextID++
	s.id = b.nextID
	b.subs = append(b.subs, s)

	id := s.id
	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Emit delivers payload to every matching handler before returning. Emits
// after Close are dropped.
func (b *Bus) Emit(kind Kind, payload any) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	handlers := make([]Handler, 0, len(b.subs))
	for _, s := range b.subs {
		if s.all || s.kind == kind {
			handlers = append(handlers, s.handler)
		}
	}
	b.mu.RUnlock()

	ev := Event{
		Kind:      kind,
		SessionID: b.sessionID,
		Timestamp: b.now(),
		Payload:   payload,
	}
	for _, h := range handlers {
		b.deliver(h, ev)
	}
}

func (b *Bus) deliver(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("listener panicked", "kind", ev.Kind, "err", fmt.Sprint(r))
		}
	}()
	h(ev)
}

// Listeners returns the number of registered handlers.
func (b *Bus) Listeners() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close drops every listener. Further Subscribe calls are no-ops.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = nil
}
