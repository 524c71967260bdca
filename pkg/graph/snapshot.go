package graph

import (
	"encoding/json"
	"fmt"
	"time"
)

const snapshotVersion = 1

// Snapshot is the plain serialisable form of the whole graph.
type Snapshot struct {
	Version    int                 `json:"version"`
	ExportedAt time.Time           `json:"exported_at"`
	Nodes      []Node              `json:"nodes"`
	Edges      []Edge              `json:"edges"`
	Categories map[string][]string `json:"categories"`
}

// Export copies the full graph state.
func (b *Builder) Export() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Snapshot{
		Version:    snapshotVersion,
		ExportedAt: b.now(),
		Nodes:      b.sortedNodesLocked(),
		Edges:      b.sortedEdgesLocked(),
		Categories: b.categoriesLocked(),
	}
}

// Import replaces the graph with s. Adjacency is rebuilt from the edges;
// edges whose endpoints are missing from s are dropped.
func (b *Builder) Import(s Snapshot) error {
	if s.Version != 0 && s.Version != snapshotVersion {
		return fmt.Errorf("unsupported graph snapshot version %d", s.Version)
	}

	nodes := make(map[string]*node, len(s.Nodes))
	for _, n := range s.Nodes {
		id := NodeID(n.ID)
		if id == "" {
			continue
		}
		n.ID = id
		n.Connections = nil
		if n.Weight < 0 {
			n.Weight = 0
		}
		nodes[id] = &node{Node: n, conns: make(map[string]struct{})}
	}

	edges := make(map[string]*edge, len(s.Edges))
	dropped := 0
	for _, e := range s.Edges {
		src, tgt := NodeID(e.Source), NodeID(e.Target)
		if tgt < src {
			src, tgt = tgt, src
		}
		a, okA := nodes[src]
		c, okC := nodes[tgt]
		if !okA || !okC || src == tgt {
			dropped++
			continue
		}
		e.Source, e.Target = src, tgt
		e.Key = EdgeKey(src, tgt)
		e.Timestamps = append([]time.Time(nil), e.Timestamps...)
		if e.Weight < 0 {
			e.Weight = 0
		}
		edges[e.Key] = &edge{Edge: e}
		a.conns[tgt] = struct{}{}
		c.conns[src] = struct{}{}
	}
	if dropped > 0 {
		b.log.Warn("dropped dangling edges on import", "count", dropped)
	}

	var n notifications
	b.mu.Lock()
	b.nodes = nodes
	b.edges = edges
	b.enforceCapacityLocked()
	n.graphUpdated(b.statsLocked())
	b.mu.Unlock()

	b.dispatch(n)
	return nil
}

// MarshalJSON exports the builder as a Snapshot document.
func (b *Builder) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.Export())
}

// UnmarshalJSON imports a Snapshot document.
func (b *Builder) UnmarshalJSON(data []byte) error {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decode graph snapshot: %w", err)
	}
	return b.Import(s)
}

// Reset drops every node and edge.
func (b *Builder) Reset() {
	var n notifications
	b.mu.Lock()
	b.nodes = make(map[string]*node)
	b.edges = make(map[string]*edge)
	n.graphUpdated(b.statsLocked())
	b.mu.Unlock()
	b.dispatch(n)
}
