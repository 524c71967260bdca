// Package session hosts many live conversations at once and connects them to
// persistence and delivery sinks.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/OFFIS-RIT/kiwi-live/internal/storage"
	"github.com/OFFIS-RIT/kiwi-live/internal/util"
	"github.com/OFFIS-RIT/kiwi-live/pkg/graph"
	"github.com/OFFIS-RIT/kiwi-live/pkg/leaselock"
	"github.com/OFFIS-RIT/kiwi-live/pkg/logger"
	"github.com/OFFIS-RIT/kiwi-live/pkg/pipeline"
	"github.com/OFFIS-RIT/kiwi-live/pkg/schedule"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrExists   = errors.New("session already exists")
)

// Lease is exclusive ownership of one session. Done is closed when the
// lease is released or lost.
type Lease interface {
	Done() <-chan struct{}
	Release(ctx context.Context) error
}

// LeaseFunc claims a session before it is started.
type LeaseFunc func(ctx context.Context, sessionID string) (Lease, error)

// LeaseClient adapts a lease table client to a LeaseFunc.
func LeaseClient(c *leaselock.Client) LeaseFunc {
	return func(ctx context.Context, sessionID string) (Lease, error) {
		l, err := c.Acquire(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		return l, nil
	}
}

// Archive stores the graph of a finished session.
type Archive interface {
	Save(ctx context.Context, sessionID string, snap graph.Snapshot) error
	Load(ctx context.Context, sessionID string) (graph.Snapshot, error)
}

type Manager struct {
	ctx     context.Context
	cfg     pipeline.Config
	deps    pipeline.Dependencies
	clock   schedule.Clock
	sinks   []Sink
	archive Archive
	leases  LeaseFunc
	log     logger.ComponentLogger

	mu       sync.RWMutex
	sessions map[string]*pipeline.Session
	pending  map[string]chan struct{}
	held     map[string]Lease
}

type Option func(*Manager)

func WithSinks(sinks ...Sink) Option {
	return func(m *Manager) {
		m.sinks = append(m.sinks, sinks...)
	}
}

// WithArchive saves every stopped session's graph and lets Create restore it.
func WithArchive(a Archive) Option {
	return func(m *Manager) {
		m.archive = a
	}
}

// WithLeases makes every session claim a lease before it starts. A session
// whose lease is lost is stopped without archiving.
func WithLeases(fn LeaseFunc) Option {
	return func(m *Manager) {
		m.leases = fn
	}
}

// NewManager creates a manager whose sessions live until they are stopped or
// ctx is cancelled.
func NewManager(ctx context.Context, cfg pipeline.Config, deps pipeline.Dependencies, opts ...Option) *Manager {
	clock := deps.Clock
	if clock == nil {
		clock = schedule.NewRealClock()
		deps.Clock = clock
	}
	m := &Manager{
		ctx:      ctx,
		cfg:      cfg,
		deps:     deps,
		clock:    clock,
		log:      logger.Component("Sessions"),
		sessions: make(map[string]*pipeline.Session),
		pending:  make(map[string]chan struct{}),
		held:     make(map[string]Lease),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(m)
	}
	return m
}

// Create starts a new session. An empty id gets a generated one. With
// restore set, an archived graph for id is loaded first.
func (m *Manager) Create(ctx context.Context, id string, restore bool) (*pipeline.Session, error) {
	if id != "" {
		m.mu.RLock()
		_, exists := m.sessions[id]
		m.mu.RUnlock()
		if exists {
			return nil, ErrExists
		}
	}

	s, err := pipeline.NewSession(id, m.cfg, m.deps)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	id = s.ID()

	// The id stays reserved until the session is started and published, so
	// nobody can see a session that is not running yet.
	m.mu.Lock()
	_, exists := m.sessions[id]
	_, pending := m.pending[id]
	if exists || pending {
		m.mu.Unlock()
		s.Stop()
		return nil, ErrExists
	}
	ready := make(chan struct{})
	m.pending[id] = ready
	m.mu.Unlock()

	unreserve := func() {
		m.mu.Lock()
		delete(m.pending, id)
		m.mu.Unlock()
		close(ready)
	}

	var lease Lease
	if m.leases != nil {
		lease, err = m.leases(ctx, id)
		if err != nil {
			unreserve()
			s.Stop()
			return nil, fmt.Errorf("failed to lease session %s: %w", id, err)
		}
	}
	if restore && m.archive != nil {
		m.restore(ctx, s)
	}

	for _, sink := range m.sinks {
		s.Events().SubscribeAll(sink.Handle)
	}
	if err := s.Start(m.ctx); err != nil {
		unreserve()
		if lease != nil {
			if rerr := lease.Release(ctx); rerr != nil {
				m.log.Warn("failed to release session lease", "session", id, "err", rerr)
			}
		}
		return nil, err
	}

	m.mu.Lock()
	delete(m.pending, id)
	m.sessions[id] = s
	if lease != nil {
		m.held[id] = lease
	}
	m.mu.Unlock()
	close(ready)

	if lease != nil {
		go m.watchLease(s, lease)
	}
	return s, nil
}

// watchLease stops s when its lease goes away while s is still hosted.
func (m *Manager) watchLease(s *pipeline.Session, lease Lease) {
	<-lease.Done()

	m.mu.Lock()
	cur, ok := m.sessions[s.ID()]
	if !ok || cur != s || m.held[s.ID()] != lease {
		m.mu.Unlock()
		return
	}
	delete(m.sessions, s.ID())
	delete(m.held, s.ID())
	m.mu.Unlock()

	m.log.Warn("session lease lost, stopping session", "session", s.ID())
	s.Stop()
}

func (m *Manager) release(ctx context.Context, id string) {
	m.mu.Lock()
	lease, ok := m.held[id]
	delete(m.held, id)
	m.mu.Unlock()
	if !ok {
		return
	}
	if err := lease.Release(ctx); err != nil {
		m.log.Warn("failed to release session lease", "session", id, "err", err)
	}
}

func (m *Manager) restore(ctx context.Context, s *pipeline.Session) {
	snap, err := m.archive.Load(ctx, s.ID())
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			m.log.Warn("failed to load archived graph", "session", s.ID(), "err", err)
		}
		return
	}
	if err := s.Graph().Import(snap); err != nil {
		m.log.Warn("failed to restore archived graph", "session", s.ID(), "err", err)
		return
	}
	m.log.Info("restored archived graph", "session", s.ID(), "nodes", len(snap.Nodes))
}

func (m *Manager) Get(id string) (*pipeline.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// GetOrCreate returns the running session id, starting it (and restoring
// its archived graph) when it is not hosted yet.
func (m *Manager) GetOrCreate(ctx context.Context, id string) (*pipeline.Session, error) {
	if s, err := m.Get(id); err == nil {
		return s, nil
	}
	s, err := m.Create(ctx, id, true)
	if !errors.Is(err, ErrExists) {
		return s, err
	}
	if err := m.awaitPending(ctx, id); err != nil {
		return nil, err
	}
	if s, err := m.Get(id); err == nil {
		return s, nil
	}
	// The reservation was dropped without a session.
	return m.Create(ctx, id, true)
}

// awaitPending blocks while another caller is creating session id.
func (m *Manager) awaitPending(ctx context.Context, id string) error {
	m.mu.RLock()
	ready, ok := m.pending[id]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ingest feeds one transcript fragment to session id. A final fragment ends
// the conversation: the session is flushed, stopped and archived.
func (m *Manager) Ingest(ctx context.Context, id, text string, final bool) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("session id is required")
	}
	s, err := m.GetOrCreate(ctx, id)
	if err != nil {
		return err
	}
	if text = util.SanitizePostgresText(text); text != "" {
		if err := s.AddFragment(text); err != nil {
			return err
		}
	}
	if final {
		return m.Stop(ctx, id)
	}
	return nil
}

// Stop ends session id and archives its graph.
func (m *Manager) Stop(ctx context.Context, id string) error {
	s := m.remove(id)
	if s == nil {
		return ErrNotFound
	}
	s.Stop()
	// The lease is released after archiving so the next holder restores
	// the final graph.
	defer m.release(ctx, id)

	if m.archive == nil {
		return nil
	}
	if err := m.archive.Save(ctx, id, s.Graph().Export()); err != nil {
		m.log.Error("failed to archive graph", "session", id, "err", err)
		return err
	}
	return nil
}

// StopIdle stops every session without a fragment for maxIdle and returns
// their ids.
func (m *Manager) StopIdle(ctx context.Context, maxIdle time.Duration) []string {
	cutoff := m.clock.Now().Add(-maxIdle)

	m.mu.RLock()
	var idle []string
	for id, s := range m.sessions {
		if s.Stopped() || s.LastActivity().Before(cutoff) {
			idle = append(idle, id)
		}
	}
	m.mu.RUnlock()
	slices.Sort(idle)

	for _, id := range idle {
		if err := m.Stop(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
			m.log.Warn("failed to stop idle session", "session", id, "err", err)
		}
	}
	if len(idle) > 0 {
		m.log.Info("stopped idle sessions", "count", len(idle))
	}
	return idle
}

// StopAll stops every hosted session.
func (m *Manager) StopAll(ctx context.Context) {
	for _, st := range m.List() {
		if err := m.Stop(ctx, st.ID); err != nil && !errors.Is(err, ErrNotFound) {
			m.log.Warn("failed to stop session", "session", st.ID, "err", err)
		}
	}
}

// List returns the stats of every hosted session ordered by id.
func (m *Manager) List() []pipeline.Stats {
	m.mu.RLock()
	sessions := make([]*pipeline.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	out := make([]pipeline.Stats, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Stats())
	}
	slices.SortFunc(out, func(a, b pipeline.Stats) int {
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

func (m *Manager) remove(id string) *pipeline.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil
	}
	delete(m.sessions, id)
	return s
}
