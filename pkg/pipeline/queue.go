package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/OFFIS-RIT/kiwi-live/pkg/common"
	"github.com/OFFIS-RIT/kiwi-live/pkg/logger"
	"github.com/OFFIS-RIT/kiwi-live/pkg/metrics"
	"github.com/OFFIS-RIT/kiwi-live/pkg/schedule"
)

// QueueConfig bounds an AnalysisQueue.
type QueueConfig struct {
	// MaxDepth is the depth above which the queue drops its oldest entries.
	MaxDepth int
	// Keep is how many of the newest entries survive a drop.
	Keep int
	// Delay is the pause after every processed chunk. Zero disables it.
	Delay time.Duration
}

// AnalysisQueue hands ready chunks to a single consumer, one at a time.
// Under sustained overload it drops the oldest chunks in favour of fresh
// ones instead of falling behind.
type AnalysisQueue struct {
	cfg     QueueConfig
	clock   schedule.Clock
	process func(context.Context, common.Chunk)
	onDrop  func(dropped int)
	log     logger.ComponentLogger

	mu         sync.Mutex
	ctx        context.Context
	items      []common.Chunk
	processing bool
	closed     bool
	timer      schedule.Timer
	wg         sync.WaitGroup
}

// QueueOption customises an AnalysisQueue.
type QueueOption func(*AnalysisQueue)

// WithDropHandler is called with the number of chunks dropped on overflow.
func WithDropHandler(fn func(dropped int)) QueueOption {
	return func(q *AnalysisQueue) {
		q.onDrop = fn
	}
}

// NewAnalysisQueue creates a queue whose consumer calls process with ctx.
func NewAnalysisQueue(
	ctx context.Context,
	cfg QueueConfig,
	clock schedule.Clock,
	process func(context.Context, common.Chunk),
	opts ...QueueOption,
) *AnalysisQueue {
	if clock == nil {
		clock = schedule.NewRealClock()
	}
	if cfg.Keep <= 0 || cfg.Keep > cfg.MaxDepth {
		cfg.Keep = cfg.MaxDepth
	}
	q := &AnalysisQueue{
		cfg:     cfg,
		clock:   clock,
		process: process,
		ctx:     ctx,
		log:     logger.Component("Queue"),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Push enqueues c and wakes the consumer if it is idle. It reports false
// once the queue was closed.
func (q *AnalysisQueue) Push(c common.Chunk) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, c)
	start := !q.processing
	if start {
		q.processing = true
		q.wg.Add(1)
	}
	q.mu.Unlock()

	if start {
		go q.next()
	}
	return true
}

// next is one consumer step: drop overflow, take the oldest chunk, process
// it and schedule the following step after the inter-item delay. The caller
// has already counted the step in wg.
func (q *AnalysisQueue) next() {
	defer q.wg.Done()

	q.mu.Lock()
	if q.closed {
		q.processing = false
		q.mu.Unlock()
		return
	}
	dropped := q.trimLocked()
	if len(q.items) == 0 {
		q.processing = false
		q.mu.Unlock()
		q.reportDrop(dropped)
		return
	}
	item := q.items[0]
	q.items[0] = common.Chunk{}
	q.items = q.items[1:]
	ctx := q.ctx
	q.mu.Unlock()

	q.reportDrop(dropped)
	q.run(ctx, item)

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.processing = false
		return
	}
	q.wg.Add(1)
	if q.cfg.Delay <= 0 {
		go q.next()
		return
	}
	q.timer = q.clock.AfterFunc(q.cfg.Delay, q.next)
}

func (q *AnalysisQueue) run(ctx context.Context, c common.Chunk) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("chunk processing panicked", "chunk", c.ID, "err", fmt.Sprint(r))
		}
	}()
	q.process(ctx, c)
}

// trimLocked keeps the newest Keep chunks once the queue grew beyond
// MaxDepth and returns how many were dropped.
func (q *AnalysisQueue) trimLocked() int {
	if q.cfg.MaxDepth <= 0 || len(q.items) <= q.cfg.MaxDepth {
		return 0
	}
	drop := len(q.items) - q.cfg.Keep
	q.items = append([]common.Chunk(nil), q.items[drop:]...)
	return drop
}

func (q *AnalysisQueue) reportDrop(dropped int) {
	if dropped == 0 {
		return
	}
	metrics.QueueDropped.Add(float64(dropped))
	q.log.Warn("analysis queue overloaded, dropped oldest chunks", "dropped", dropped, "kept", q.cfg.Keep)
	if q.onDrop != nil {
		q.onDrop(dropped)
	}
}

// Len returns the number of waiting chunks, not counting the one in flight.
func (q *AnalysisQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Processing reports whether the consumer is busy or waiting out the delay.
func (q *AnalysisQueue) Processing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.processing
}

// Clear drops every waiting chunk and returns how many there were.
func (q *AnalysisQueue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = nil
	return n
}

// Close clears the queue and stops the consumer after its current chunk.
// It does not wait; use Wait for that.
func (q *AnalysisQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.items = nil
	if q.timer != nil && q.timer.Stop() {
		q.processing = false
		q.wg.Done()
	}
	q.timer = nil
}

// Wait blocks until no consumer step is running or scheduled.
func (q *AnalysisQueue) Wait() {
	q.wg.Wait()
}
