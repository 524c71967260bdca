// Package graph maintains the weighted, undirected topic graph of a
// conversation. Nodes are topics keyed by their lowercased label, edges are
// keyed by the sorted pair of node ids. Weights grow with every mention and
// decay during maintenance, so memory stays bounded in arbitrarily long
// sessions.
package graph

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/OFFIS-RIT/kiwi-live/pkg/logger"
)

// Edge types the builder creates on its own.
const (
	TypeCoMentioned = "co-mentioned"
	TypeRelated     = "related"
)

const defaultCategory = "general"

// Config tunes the builder. Zero values fall back to DefaultConfig.
type Config struct {
	MaxNodes            int
	DecayFactor         float64
	DecayAfter          time.Duration
	EdgeEpsilon         float64
	StaleNodeAge        time.Duration
	MaxTimestamps       int
	CoMentionConfidence float64
	// MaxCoMentionTopics bounds the topics of one batch that get pairwise
	// co-mention edges.
	MaxCoMentionTopics     int
	DefaultTopicConfidence float64
}

func DefaultConfig() Config {
	return Config{
		MaxNodes:               100,
		DecayFactor:            0.95,
		DecayAfter:             time.Hour,
		EdgeEpsilon:            0.1,
		StaleNodeAge:           24 * time.Hour,
		MaxTimestamps:          10,
		CoMentionConfidence:    0.6,
		MaxCoMentionTopics:     10,
		DefaultTopicConfidence: 0.8,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxNodes <= 0 {
		c.MaxNodes = d.MaxNodes
	}
	if c.DecayFactor <= 0 || c.DecayFactor > 1 {
		c.DecayFactor = d.DecayFactor
	}
	if c.DecayAfter <= 0 {
		c.DecayAfter = d.DecayAfter
	}
	if c.EdgeEpsilon <= 0 {
		c.EdgeEpsilon = d.EdgeEpsilon
	}
	if c.StaleNodeAge <= 0 {
		c.StaleNodeAge = d.StaleNodeAge
	}
	if c.MaxTimestamps <= 0 {
		c.MaxTimestamps = d.MaxTimestamps
	}
	if c.CoMentionConfidence <= 0 {
		c.CoMentionConfidence = d.CoMentionConfidence
	}
	if c.MaxCoMentionTopics <= 0 {
		c.MaxCoMentionTopics = d.MaxCoMentionTopics
	}
	if c.DefaultTopicConfidence <= 0 {
		c.DefaultTopicConfidence = d.DefaultTopicConfidence
	}
	return c
}

// Node is a topic in the graph.
type Node struct {
	ID            string    `json:"id"`
	Label         string    `json:"label"`
	Weight        float64   `json:"weight"`
	Category      string    `json:"category"`
	Confidence    float64   `json:"confidence"`
	FirstSeen     time.Time `json:"first_seen"`
	LastMentioned time.Time `json:"last_mentioned"`
	Connections   []string  `json:"connections"`
}

// Edge connects two topics. Source and Target are in canonical sorted order.
type Edge struct {
	Key        string      `json:"key"`
	Source     string      `json:"source"`
	Target     string      `json:"target"`
	Weight     float64     `json:"weight"`
	Type       string      `json:"type"`
	Confidence float64     `json:"confidence"`
	Timestamps []time.Time `json:"timestamps"`
}

// LastUpdated is the most recent time the edge was created or strengthened.
func (e Edge) LastUpdated() time.Time {
	if len(e.Timestamps) == 0 {
		return time.Time{}
	}
	return e.Timestamps[len(e.Timestamps)-1]
}

type node struct {
	Node
	conns map[string]struct{}
}

func (n *node) view() Node {
	out := n.Node
	out.Connections = make([]string, 0, len(n.conns))
	for id := range n.conns {
		out.Connections = append(out.Connections, id)
	}
	sort.Strings(out.Connections)
	return out
}

type edge struct {
	Edge
}

func (e *edge) view() Edge {
	out := e.Edge
	out.Timestamps = append([]time.Time(nil), e.Timestamps...)
	return out
}

// Stats summarises the graph size.
type Stats struct {
	Nodes       int     `json:"nodes"`
	Edges       int     `json:"edges"`
	Categories  int     `json:"categories"`
	TotalWeight float64 `json:"total_weight"`
}

// Listener is notified after a mutation completed and the builder's lock was
// released. Calls arrive in mutation order.
type Listener interface {
	TopicAdded(Node)
	ConnectionAdded(Edge)
	GraphUpdated(Stats)
}

// ListenerFuncs adapts plain functions to Listener. Nil funcs are skipped.
type ListenerFuncs struct {
	OnTopicAdded      func(Node)
	OnConnectionAdded func(Edge)
	OnGraphUpdated    func(Stats)
}

func (l ListenerFuncs) TopicAdded(n Node) {
	if l.OnTopicAdded != nil {
		l.OnTopicAdded(n)
	}
}

func (l ListenerFuncs) ConnectionAdded(e Edge) {
	if l.OnConnectionAdded != nil {
		l.OnConnectionAdded(e)
	}
}

func (l ListenerFuncs) GraphUpdated(s Stats) {
	if l.OnGraphUpdated != nil {
		l.OnGraphUpdated(s)
	}
}

// Builder owns the topic graph. It is safe for concurrent use.
type Builder struct {
	cfg Config
	now func() time.Time
	log logger.ComponentLogger

	mu    sync.RWMutex
	nodes map[string]*node
	edges map[string]*edge

	listenerMu sync.RWMutex
	listeners  map[int]Listener
	nextID     int
}

// Option customises a Builder.
type Option func(*Builder)

// WithClock replaces time.Now as the builder's time source.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		b.now = now
	}
}

func NewBuilder(cfg Config, opts ...Option) *Builder {
	b := &Builder{
		cfg:       cfg.withDefaults(),
		now:       time.Now,
		log:       logger.Component("Graph"),
		nodes:     make(map[string]*node),
		edges:     make(map[string]*edge),
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Config returns the effective configuration.
func (b *Builder) Config() Config {
	return b.cfg
}

// AddListener registers l and returns a func that removes it again.
func (b *Builder) AddListener(l Listener) func() {
	b.listenerMu.Lock()
	defer b.listenerMu.Unlock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = l
	return func() {
		b.listenerMu.Lock()
		defer b.listenerMu.Unlock()
		delete(b.listeners, id)
	}
}

// ClearListeners drops every listener.
func (b *Builder) ClearListeners() {
	b.listenerMu.Lock()
	defer b.listenerMu.Unlock()
	b.listeners = make(map[int]Listener)
}

// notifications collects listener calls while the graph lock is held so
// they can be delivered after it was released.
type notifications []func(Listener)

func (n *notifications) topicAdded(v Node) {
	*n = append(*n, func(l Listener) { l.TopicAdded(v) })
}

func (n *notifications) connectionAdded(v Edge) {
	*n = append(*n, func(l Listener) { l.ConnectionAdded(v) })
}

func (n *notifications) graphUpdated(s Stats) {
	*n = append(*n, func(l Listener) { l.GraphUpdated(s) })
}

func (b *Builder) dispatch(n notifications) {
	if len(n) == 0 {
		return
	}
	b.listenerMu.RLock()
	ids := make([]int, 0, len(b.listeners))
	for id := range b.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	listeners := make([]Listener, 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, b.listeners[id])
	}
	b.listenerMu.RUnlock()

	for _, call := range n {
		for _, l := range listeners {
			call(l)
		}
	}
}

// NodeID returns the dedup key of a topic label.
func NodeID(topic string) string {
	return strings.ToLower(strings.Join(strings.Fields(topic), " "))
}

// EdgeKey returns the canonical key of the undirected edge between a and b.
// EdgeKey(a, b) == EdgeKey(b, a). The first id is length prefixed so labels
// containing the separator cannot make two pairs share a key.
func EdgeKey(a, b string) string {
	a, b = NodeID(a), NodeID(b)
	if b < a {
		a, b = b, a
	}
	return strconv.Itoa(len(a)) + ":" + a + "|" + b
}

func (b *Builder) statsLocked() Stats {
	s := Stats{Nodes: len(b.nodes), Edges: len(b.edges)}
	categories := make(map[string]struct{})
	for _, n := range b.nodes {
		categories[n.Category] = struct{}{}
		s.TotalWeight += n.Weight
	}
	s.Categories = len(categories)
	return s
}

// Stats returns node, edge and category counts.
func (b *Builder) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.statsLocked()
}
