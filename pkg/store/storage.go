package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/OFFIS-RIT/kiwi-live/pkg/common"
	"github.com/OFFIS-RIT/kiwi-live/pkg/events"
)

// StoredEvent is an event as it was persisted. The payload stays encoded
// since its type depends on Kind.
type StoredEvent struct {
	ID        int64           `json:"id"`
	SessionID string          `json:"session_id"`
	Kind      events.Kind     `json:"kind"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// EventLog persists the events of every session so a finished conversation
// can be replayed or mined for its insights later.
type EventLog interface {
	Append(ctx context.Context, evs ...events.Event) error
	Events(ctx context.Context, sessionID string, kinds []events.Kind, limit int) ([]StoredEvent, error)
	Insights(ctx context.Context, sessionID string) ([]common.Insight, error)
	DeleteSession(ctx context.Context, sessionID string) error
}
