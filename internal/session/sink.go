package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OFFIS-RIT/kiwi-live/pkg/events"
	"github.com/OFFIS-RIT/kiwi-live/pkg/logger"
	"github.com/OFFIS-RIT/kiwi-live/pkg/store"
)

// Sink receives every event of every hosted session. Handle runs on the
// emitting goroutine and must not block.
type Sink interface {
	Handle(ev events.Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ev events.Event)

func (f SinkFunc) Handle(ev events.Event) { f(ev) }

const (
	logSinkMaxBatch     = 64
	logSinkWriteTimeout = 10 * time.Second
)

// LogSink writes events to an event log from a background goroutine.
// Events arriving while the buffer is full are dropped and logged.
type LogSink struct {
	log store.EventLog
	ch  chan events.Event

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
	done    chan struct{}
	logger  logger.ComponentLogger
}

func NewLogSink(log store.EventLog, buffer int) *LogSink {
	if buffer <= 0 {
		buffer = 1024
	}
	s := &LogSink{
		log:    log,
		ch:     make(chan events.Event, buffer),
		done:   make(chan struct{}),
		logger: logger.Component("EventLog"),
	}
	go s.run()
	return s
}

func (s *LogSink) Handle(ev events.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- ev:
	default:
		s.dropped.Add(1)
		s.logger.Warn("event log buffer full, dropping event", "session", ev.SessionID, "kind", ev.Kind)
	}
}

func (s *LogSink) run() {
	defer close(s.done)
	for ev := range s.ch {
		batch := []events.Event{ev}
	drain:
		for len(batch) < logSinkMaxBatch {
			select {
			case next, ok := <-s.ch:
				if !ok {
					break drain
				}
				batch = append(batch, next)
			default:
				break drain
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), logSinkWriteTimeout)
		if err := s.log.Append(ctx, batch...); err != nil {
			s.logger.Error("failed to persist events", "count", len(batch), "err", err)
		}
		cancel()
	}
}

// Dropped returns how many events were discarded on a full buffer.
func (s *LogSink) Dropped() int {
	return int(s.dropped.Load())
}

// Close stops accepting events and waits until the buffered ones are written.
func (s *LogSink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.ch)
	s.mu.Unlock()
	<-s.done
}
