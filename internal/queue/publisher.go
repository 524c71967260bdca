package queue

import (
	"encoding/json"
	"sync"

	"github.com/OFFIS-RIT/kiwi-live/pkg/events"
	"github.com/OFFIS-RIT/kiwi-live/pkg/logger"
)

// EventPublisher forwards session events to a topic exchange with routing
// key "<session>.<kind>", so consumers can bind to "*.realtime-insight" or
// "<session>.#".
type EventPublisher struct {
	exchange string
	kinds    map[events.Kind]bool

	mu sync.Mutex
	ch Publisher
}

// NewEventPublisher publishes the given kinds, or every kind when none are
// given.
func NewEventPublisher(ch Publisher, exchange string, kinds ...events.Kind) *EventPublisher {
	p := &EventPublisher{ch: ch, exchange: exchange}
	if len(kinds) > 0 {
		p.kinds = make(map[events.Kind]bool, len(kinds))
		for _, k := range kinds {
			p.kinds[k] = true
		}
	}
	return p
}

func RoutingKey(ev events.Event) string {
	return ev.SessionID + "." + string(ev.Kind)
}

func (p *EventPublisher) Handle(ev events.Event) {
	if p.kinds != nil && !p.kinds[ev.Kind] {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		logger.Error("[Queue] Failed to encode event", "kind", ev.Kind, "err", err)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := PublishTopic(p.ch, p.exchange, RoutingKey(ev), data); err != nil {
		logger.Warn("[Queue] Failed to publish event", "session", ev.SessionID, "kind", ev.Kind, "err", err)
	}
}
