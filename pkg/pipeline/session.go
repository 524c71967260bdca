package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/OFFIS-RIT/kiwi-live/pkg/common"
	"github.com/OFFIS-RIT/kiwi-live/pkg/events"
	"github.com/OFFIS-RIT/kiwi-live/pkg/extract"
	"github.com/OFFIS-RIT/kiwi-live/pkg/graph"
	"github.com/OFFIS-RIT/kiwi-live/pkg/logger"
	"github.com/OFFIS-RIT/kiwi-live/pkg/metrics"
	"github.com/OFFIS-RIT/kiwi-live/pkg/realtime"
	"github.com/OFFIS-RIT/kiwi-live/pkg/research"
	"github.com/OFFIS-RIT/kiwi-live/pkg/schedule"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

var (
	ErrSessionStopped    = errors.New("session stopped")
	ErrSessionNotStarted = errors.New("session not started")
)

// Stats is a point-in-time view of a session.
type Stats struct {
	ID              string         `json:"id"`
	StartedAt       time.Time      `json:"started_at"`
	LastActivity    time.Time      `json:"last_activity"`
	Fragments       int            `json:"fragments"`
	Chunks          int            `json:"chunks"`
	ChunksProcessed int            `json:"chunks_processed"`
	ChunksFailed    int            `json:"chunks_failed"`
	ChunksDropped   int            `json:"chunks_dropped"`
	QueueLength     int            `json:"queue_length"`
	BufferedWords   int            `json:"buffered_words"`
	Processing      bool           `json:"processing"`
	Graph           graph.Stats    `json:"graph"`
	Realtime        realtime.Stats `json:"realtime"`
}

// Session is one live conversation. It owns the chunk pipeline, the realtime
// analyzer, the knowledge graph and the event bus they publish on.
type Session struct {
	id    string
	cfg   Config
	clock schedule.Clock
	log   logger.ComponentLogger

	bus       *events.Bus
	graph     *graph.Builder
	buffer    *ChunkBuffer
	queue     *AnalysisQueue
	processor *Processor
	analyzer  *realtime.Analyzer

	ctx    context.Context
	cancel context.CancelFunc
	timers schedule.Group
	detach func()

	mu           sync.Mutex
	started      bool
	stopped      bool
	startedAt    time.Time
	lastActivity time.Time
	fragments    int
	chunks       int
	dropped      int
	release      func() bool
}

// NewSession builds a session. An empty id gets a generated one. The session
// does nothing until Start.
func NewSession(id string, cfg Config, deps Dependencies) (*Session, error) {
	if deps.AI == nil {
		return nil, errors.New("pipeline: an AI client is required")
	}
	if id == "" {
		var err error
		id, err = gonanoid.New()
		if err != nil {
			return nil, err
		}
	}
	cfg = cfg.withDefaults()
	clock := deps.Clock
	if clock == nil {
		clock = schedule.NewRealClock()
	}

	s := &Session{
		id:    id,
		cfg:   cfg,
		clock: clock,
		log:   logger.Component("Session").With("session", id),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.bus = events.NewBus(id, clock.Now)
	s.graph = graph.NewBuilder(cfg.Graph, graph.WithClock(clock.Now))
	s.detach = s.graph.AddListener(graph.ListenerFuncs{
		OnTopicAdded:      s.onTopicAdded,
		OnConnectionAdded: s.onConnectionAdded,
		OnGraphUpdated:    s.onGraphUpdated,
	})

	var researcher *research.Researcher
	if len(deps.Providers) > 0 {
		opts := []research.Option{research.WithClock(clock.Now)}
		if deps.Enricher != nil {
			opts = append(opts, research.WithEnricher(deps.Enricher))
		}
		researcher = research.New(deps.AI, deps.Providers, cfg.Research, opts...)
	}

	s.processor = NewProcessor(
		extract.New(deps.AI, extract.WithAttempts(cfg.ExtractionAttempts)),
		researcher,
		s.graph,
		s.bus,
		clock,
		cfg.ContextWords,
		cfg.ResearchHistory,
		WithExtractionTimeout(cfg.ExtractionTimeout),
	)
	s.queue = NewAnalysisQueue(s.ctx, QueueConfig{
		MaxDepth: cfg.MaxQueueDepth,
		Keep:     cfg.QueueKeep,
		Delay:    cfg.InterItemDelay,
	}, clock, s.processor.Process, WithDropHandler(s.onDrop))
	s.buffer = NewChunkBuffer(cfg.MinWordsPerChunk, cfg.MaxBufferWords, cfg.IdleTimeout, clock, s.onChunk)
	s.analyzer = realtime.New(deps.AI, s.graph, s.bus, clock, cfg.Realtime)

	return s, nil
}

func (s *Session) ID() string {
	return s.id
}

// Start arms the realtime timers and graph maintenance. Cancelling ctx stops
// the session.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrSessionStopped
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.startedAt = s.clock.Now()
	s.lastActivity = s.startedAt
	if ctx != nil {
		s.release = context.AfterFunc(ctx, s.Stop)
	}
	s.mu.Unlock()

	s.analyzer.Start(s.ctx)
	s.timers.Add(schedule.Every(s.clock, s.cfg.MaintenanceInterval, s.maintain))

	metrics.SessionsActive.Inc()
	s.log.Info("session started",
		"min_words", s.cfg.MinWordsPerChunk,
		"idle_timeout", s.cfg.IdleTimeout,
		"max_nodes", s.graph.Config().MaxNodes,
	)
	return nil
}

// AddFragment feeds one transcript fragment to the chunk buffer and the
// realtime analyzer. Noise is dropped silently.
func (s *Session) AddFragment(text string) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrSessionStopped
	}
	if !s.started {
		s.mu.Unlock()
		return ErrSessionNotStarted
	}
	s.fragments++
	s.lastActivity = s.clock.Now()
	s.mu.Unlock()

	if s.buffer.Add(text) {
		s.analyzer.AddFragment(text)
	}
	return nil
}

// Flush releases the buffered text as a chunk right away.
func (s *Session) Flush() bool {
	_, ok := s.buffer.Flush()
	return ok
}

// Stop flushes the buffer once, cancels every timer, clears the queue, stops
// the analyzer and releases all listeners. It is safe to call more than once.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	started := s.started
	release := s.release
	s.mu.Unlock()

	if release != nil {
		release()
	}
	s.timers.StopAll()

	// The flushed chunk is published but no longer analyzed.
	s.queue.Close()
	s.buffer.Flush()
	s.buffer.Stop()

	s.cancel()
	s.analyzer.Stop()
	s.queue.Wait()

	s.detach()
	s.graph.ClearListeners()
	s.bus.Close()

	if started {
		metrics.SessionsActive.Dec()
	}
	metrics.ForgetSession(s.id)
	s.log.Info("session stopped")
}

// Stopped reports whether Stop was called.
func (s *Session) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *Session) Graph() *graph.Builder {
	return s.graph
}

func (s *Session) Events() *events.Bus {
	return s.bus
}

// Analyzer exposes the realtime analyzer, e.g. to trigger a summary on demand.
func (s *Session) Analyzer() *realtime.Analyzer {
	return s.analyzer
}

// RecentInsights returns the insights still held for de-duplication.
func (s *Session) RecentInsights() []common.Insight {
	return s.analyzer.RecentInsights()
}

// LastActivity is the time of the last accepted fragment, or of Start.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *Session) Stats() Stats {
	s.mu.Lock()
	st := Stats{
		ID:            s.id,
		StartedAt:     s.startedAt,
		LastActivity:  s.lastActivity,
		Fragments:     s.fragments,
		Chunks:        s.chunks,
		ChunksDropped: s.dropped,
	}
	s.mu.Unlock()

	st.ChunksProcessed = s.processor.Processed()
	st.ChunksFailed = s.processor.Failed()
	st.QueueLength = s.queue.Len()
	st.BufferedWords = s.buffer.Words()
	st.Processing = s.queue.Processing()
	st.Graph = s.graph.Stats()
	st.Realtime = s.analyzer.Stats()
	return st
}

func (s *Session) onChunk(chunk common.Chunk) {
	s.mu.Lock()
	s.chunks++
	s.mu.Unlock()

	s.bus.Emit(events.KindChunk, chunk)
	s.queue.Push(chunk)
}

func (s *Session) onDrop(dropped int) {
	s.mu.Lock()
	s.dropped += dropped
	s.mu.Unlock()
}

func (s *Session) maintain() {
	report := s.graph.PerformMaintenance()
	if err := s.graph.Validate(); err != nil {
		s.log.Error("graph invariant violated", "err", err)
	}
	s.log.Debug("graph maintenance",
		"decayed_edges", report.DecayedEdges,
		"removed_edges", report.RemovedEdges,
		"evicted_nodes", report.EvictedNodes,
	)
}

func (s *Session) onTopicAdded(n graph.Node) {
	s.bus.Emit(events.KindTopicAdded, events.TopicAddedPayload{
		ID:       n.ID,
		Label:    n.Label,
		Category: n.Category,
		Weight:   n.Weight,
	})
}

func (s *Session) onConnectionAdded(e graph.Edge) {
	s.bus.Emit(events.KindConnectionAdded, events.ConnectionAddedPayload{
		Source: e.Source,
		Target: e.Target,
		Type:   e.Type,
		Weight: e.Weight,
	})
}

func (s *Session) onGraphUpdated(st graph.Stats) {
	metrics.GraphNodes.WithLabelValues(s.id).Set(float64(st.Nodes))
	metrics.GraphEdges.WithLabelValues(s.id).Set(float64(st.Edges))
	s.bus.Emit(events.KindGraphUpdated, events.GraphUpdatedPayload{Nodes: st.Nodes, Edges: st.Edges})
}
