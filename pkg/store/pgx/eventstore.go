// Package pgx persists session events in PostgreSQL.
package pgx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/kiwi-live/internal/util"
	"github.com/OFFIS-RIT/kiwi-live/pkg/common"
	"github.com/OFFIS-RIT/kiwi-live/pkg/events"
	"github.com/OFFIS-RIT/kiwi-live/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const defaultBatchSize = 100

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	SendBatch(ctx context.Context, b *pgxv5.Batch) pgxv5.BatchResults
}

// EventStore implements store.EventLog on a pgx connection or pool.
type EventStore struct {
	conn      pgxIConn
	batchSize int
}

var _ store.EventLog = (*EventStore)(nil)

type EventStoreOption func(*EventStore)

// WithBatchSize bounds how many inserts are sent in one round trip.
func WithBatchSize(n int) EventStoreOption {
	return func(s *EventStore) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

func NewEventStore(conn pgxIConn, opts ...EventStoreOption) *EventStore {
	s := &EventStore{conn: conn, batchSize: defaultBatchSize}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}
	return s
}

const insertEventSQL = `INSERT INTO session_events (session_id, kind, payload, created_at) VALUES ($1, $2, $3::jsonb, $4)`

type eventRow struct {
	sessionID string
	kind      string
	payload   string
	ev        events.Event
}

func encodeEvent(ev events.Event) (eventRow, error) {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return eventRow{}, fmt.Errorf("failed to encode %s payload: %w", ev.Kind, err)
	}
	if string(payload) == "null" {
		payload = []byte("{}")
	}
	return eventRow{
		sessionID: util.SanitizePostgresText(ev.SessionID),
		kind:      string(ev.Kind),
		payload:   string(util.SanitizeJSON(payload)),
		ev:        ev,
	}, nil
}

// Append stores evs in order. A single event is one statement; more are
// sent as batches.
func (s *EventStore) Append(ctx context.Context, evs ...events.Event) error {
	rows := make([]eventRow, 0, len(evs))
	for _, ev := range evs {
		row, err := encodeEvent(ev)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	if len(rows) == 1 {
		r := rows[0]
		if _, err := s.conn.Exec(ctx, insertEventSQL, r.sessionID, r.kind, r.payload, r.ev.Timestamp); err != nil {
			return fmt.Errorf("failed to insert event: %w", err)
		}
		return nil
	}

	return store.ChunkRange(len(rows), s.batchSize, func(start, end int) error {
		batch := &pgxv5.Batch{}
		for _, r := range rows[start:end] {
			batch.Queue(insertEventSQL, r.sessionID, r.kind, r.payload, r.ev.Timestamp)
		}
		br := s.conn.SendBatch(ctx, batch)
		var errs []error
		for range end - start {
			if _, err := br.Exec(); err != nil {
				errs = append(errs, err)
			}
		}
		errs = append(errs, br.Close())
		if err := errors.Join(errs...); err != nil {
			return fmt.Errorf("failed to insert event batch: %w", err)
		}
		return nil
	})
}

// Events lists stored events of a session, oldest first. Empty kinds means
// every kind; limit <= 0 means no limit.
func (s *EventStore) Events(ctx context.Context, sessionID string, kinds []events.Kind, limit int) ([]store.StoredEvent, error) {
	names := make([]string, 0, len(kinds))
	for _, k := range kinds {
		names = append(names, string(k))
	}

	sql := `SELECT id, session_id, kind, payload, created_at FROM session_events
		WHERE session_id = $1 AND (cardinality($2::text[]) = 0 OR kind = ANY($2::text[]))
		ORDER BY id`
	args := []any{sessionID, names}
	if limit > 0 {
		sql += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := s.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	out, err := pgxv5.CollectRows(rows, func(row pgxv5.CollectableRow) (store.StoredEvent, error) {
		var (
			ev      store.StoredEvent
			kind    string
			payload []byte
		)
		if err := row.Scan(&ev.ID, &ev.SessionID, &kind, &payload, &ev.Timestamp); err != nil {
			return ev, err
		}
		ev.Kind = events.Kind(kind)
		ev.Payload = payload
		return ev, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return out, nil
}

// Insights decodes every realtime insight stored for a session.
func (s *EventStore) Insights(ctx context.Context, sessionID string) ([]common.Insight, error) {
	stored, err := s.Events(ctx, sessionID, []events.Kind{events.KindInsight}, 0)
	if err != nil {
		return nil, err
	}
	return decodeInsights(stored)
}

func decodeInsights(stored []store.StoredEvent) ([]common.Insight, error) {
	out := make([]common.Insight, 0, len(stored))
	for _, ev := range stored {
		var ins common.Insight
		if err := json.Unmarshal(ev.Payload, &ins); err != nil {
			return nil, fmt.Errorf("failed to decode insight %d: %w", ev.ID, err)
		}
		out = append(out, ins)
	}
	return out, nil
}

func (s *EventStore) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := s.conn.Exec(ctx, `DELETE FROM session_events WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("failed to delete events of %s: %w", sessionID, err)
	}
	return nil
}
