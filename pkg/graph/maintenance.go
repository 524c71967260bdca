package graph

import "fmt"

// MaintenanceReport describes what one maintenance pass changed.
type MaintenanceReport struct {
	DecayedEdges int `json:"decayed_edges"`
	RemovedEdges int `json:"removed_edges"`
	RemovedNodes int `json:"removed_nodes"`
	EvictedNodes int `json:"evicted_nodes"`
}

func (r MaintenanceReport) changed() bool {
	return r.DecayedEdges+r.RemovedEdges+r.RemovedNodes+r.EvictedNodes > 0
}

// PerformMaintenance decays edges untouched for longer than DecayAfter,
// drops edges whose weight fell below EdgeEpsilon, drops isolated nodes not
// mentioned within StaleNodeAge and finally evicts the least recently
// mentioned nodes while the graph is over MaxNodes.
func (b *Builder) PerformMaintenance() MaintenanceReport {
	var n notifications
	var report MaintenanceReport

	b.mu.Lock()
	now := b.now()

	for _, e := range b.edges {
		if now.Sub(e.LastUpdated()) <= b.cfg.DecayAfter {
			continue
		}
		e.Weight *= b.cfg.DecayFactor
		report.DecayedEdges++
		if e.Weight < b.cfg.EdgeEpsilon {
			b.removeEdgeLocked(e)
			report.RemovedEdges++
		}
	}

	for id, nd := range b.nodes {
		if now.Sub(nd.LastMentioned) > b.cfg.DecayAfter {
			nd.Weight *= b.cfg.DecayFactor
		}
		if len(nd.conns) == 0 && now.Sub(nd.LastMentioned) > b.cfg.StaleNodeAge {
			delete(b.nodes, id)
			report.RemovedNodes++
		}
	}

	report.EvictedNodes = b.enforceCapacityLocked()
	if report.changed() {
		n.graphUpdated(b.statsLocked())
	}
	b.mu.Unlock()

	if report.changed() {
		b.log.Debug("maintenance pass",
			"decayed_edges", report.DecayedEdges,
			"removed_edges", report.RemovedEdges,
			"removed_nodes", report.RemovedNodes,
			"evicted_nodes", report.EvictedNodes,
		)
	}
	b.dispatch(n)
	return report
}

// Validate checks the structural invariants of the graph: weights are
// non-negative, the node count is within MaxNodes, every edge references
// existing nodes and adjacency sets mirror the edge set.
func (b *Builder) Validate() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.nodes) > b.cfg.MaxNodes {
		return fmt.Errorf("graph has %d nodes, max is %d", len(b.nodes), b.cfg.MaxNodes)
	}
	degree := 0
	for id, nd := range b.nodes {
		if nd.Weight < 0 {
			return fmt.Errorf("node %q has negative weight %v", id, nd.Weight)
		}
		for other := range nd.conns {
			if _, ok := b.edges[EdgeKey(id, other)]; !ok {
				return fmt.Errorf("node %q lists %q without an edge", id, other)
			}
		}
		degree += len(nd.conns)
	}
	for key, e := range b.edges {
		if e.Weight < 0 {
			return fmt.Errorf("edge %q has negative weight %v", key, e.Weight)
		}
		if key != EdgeKey(e.Source, e.Target) || e.Source > e.Target {
			return fmt.Errorf("edge %q is not canonical", key)
		}
		src, ok := b.nodes[e.Source]
		if !ok {
			return fmt.Errorf("edge %q references missing node %q", key, e.Source)
		}
		tgt, ok := b.nodes[e.Target]
		if !ok {
			return fmt.Errorf("edge %q references missing node %q", key, e.Target)
		}
		if _, ok := src.conns[e.Target]; !ok {
			return fmt.Errorf("edge %q missing from adjacency of %q", key, e.Source)
		}
		if _, ok := tgt.conns[e.Source]; !ok {
			return fmt.Errorf("edge %q missing from adjacency of %q", key, e.Target)
		}
		if len(e.Timestamps) > b.cfg.MaxTimestamps {
			return fmt.Errorf("edge %q keeps %d timestamps", key, len(e.Timestamps))
		}
	}
	if degree != 2*len(b.edges) {
		return fmt.Errorf("adjacency degree %d does not match %d edges", degree, len(b.edges))
	}
	return nil
}
