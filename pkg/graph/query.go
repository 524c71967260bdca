package graph

import (
	"sort"
	"strings"
	"time"
)

// Neighbor is a node seen from one of its edges.
type Neighbor struct {
	Node Node `json:"node"`
	Edge Edge `json:"edge"`
}

// Cluster is the neighbourhood of a topic up to a bounded depth.
type Cluster struct {
	Center string `json:"center"`
	Depth  int    `json:"depth"`
	Nodes  []Node `json:"nodes"`
	Edges  []Edge `json:"edges"`
}

// Node returns the node for topic.
func (b *Builder) Node(topic string) (Node, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	nd, ok := b.nodes[NodeID(topic)]
	if !ok {
		return Node{}, false
	}
	return nd.view(), true
}

// Edge returns the edge between a and c.
func (b *Builder) Edge(a, c string) (Edge, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.edges[EdgeKey(a, c)]
	if !ok {
		return Edge{}, false
	}
	return e.view(), true
}

// Nodes returns every node ordered by id.
func (b *Builder) Nodes() []Node {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sortedNodesLocked()
}

func (b *Builder) sortedNodesLocked() []Node {
	out := make([]Node, 0, len(b.nodes))
	for _, nd := range b.nodes {
		out = append(out, nd.view())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Edges returns every edge ordered by key.
func (b *Builder) Edges() []Edge {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sortedEdgesLocked()
}

func (b *Builder) sortedEdgesLocked() []Edge {
	out := make([]Edge, 0, len(b.edges))
	for _, e := range b.edges {
		out = append(out, e.view())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// StrongestConnections returns up to k neighbours of topic ordered by edge
// weight, heaviest first.
func (b *Builder) StrongestConnections(topic string, k int) []Neighbor {
	b.mu.RLock()
	defer b.mu.RUnlock()

	id := NodeID(topic)
	nd, ok := b.nodes[id]
	if !ok {
		return nil
	}

	out := make([]Neighbor, 0, len(nd.conns))
	for other := range nd.conns {
		e, ok := b.edges[EdgeKey(id, other)]
		o, okNode := b.nodes[other]
		if !ok || !okNode {
			continue
		}
		out = append(out, Neighbor{Node: o.view(), Edge: e.view()})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Edge.Weight != out[j].Edge.Weight {
			return out[i].Edge.Weight > out[j].Edge.Weight
		}
		return out[i].Node.ID < out[j].Node.ID
	})
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}

// Categories maps each category to the ids of its nodes.
func (b *Builder) Categories() map[string][]string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.categoriesLocked()
}

func (b *Builder) categoriesLocked() map[string][]string {
	out := make(map[string][]string)
	for id, nd := range b.nodes {
		out[nd.Category] = append(out[nd.Category], id)
	}
	for c := range out {
		sort.Strings(out[c])
	}
	return out
}

// TopicsByCategory returns the nodes of category, heaviest first.
func (b *Builder) TopicsByCategory(category string) []Node {
	b.mu.RLock()
	defer b.mu.RUnlock()

	category = strings.ToLower(strings.TrimSpace(category))
	out := make([]Node, 0)
	for _, nd := range b.nodes {
		if nd.Category == category {
			out = append(out, nd.view())
		}
	}
	sortByWeight(out)
	return out
}

// MostConnected returns up to k nodes with the most edges.
func (b *Builder) MostConnected(k int) []Node {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Node, 0, len(b.nodes))
	for _, nd := range b.nodes {
		out = append(out, nd.view())
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i].Connections) != len(out[j].Connections) {
			return len(out[i].Connections) > len(out[j].Connections)
		}
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].ID < out[j].ID
	})
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}

// RecentlyActive returns nodes mentioned within window, most recent first.
func (b *Builder) RecentlyActive(window time.Duration) []Node {
	b.mu.RLock()
	defer b.mu.RUnlock()

	cutoff := b.now().Add(-window)
	out := make([]Node, 0)
	for _, nd := range b.nodes {
		if !nd.LastMentioned.Before(cutoff) {
			out = append(out, nd.view())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastMentioned.Equal(out[j].LastMentioned) {
			return out[i].LastMentioned.After(out[j].LastMentioned)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ShortestPath returns the node ids on a shortest path from one topic to
// another, both ends included. It returns nil when either topic is unknown
// or no path exists.
func (b *Builder) ShortestPath(from, to string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	start, goal := NodeID(from), NodeID(to)
	if _, ok := b.nodes[start]; !ok {
		return nil
	}
	if _, ok := b.nodes[goal]; !ok {
		return nil
	}
	if start == goal {
		return []string{start}
	}

	prev := map[string]string{start: ""}
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range b.neighborsLocked(cur) {
			if _, seen := prev[next]; seen {
				continue
			}
			prev[next] = cur
			if next == goal {
				return buildPath(prev, start, goal)
			}
			queue = append(queue, next)
		}
	}
	return nil
}

func buildPath(prev map[string]string, start, goal string) []string {
	path := []string{goal}
	for cur := goal; cur != start; {
		cur = prev[cur]
		path = append(path, cur)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// neighborsLocked lists adjacent ids in sorted order so traversals are
// deterministic.
func (b *Builder) neighborsLocked(id string) []string {
	nd, ok := b.nodes[id]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(nd.conns))
	for other := range nd.conns {
		out = append(out, other)
	}
	sort.Strings(out)
	return out
}

// Cluster collects every node reachable from topic within depth hops and
// the edges between them.
func (b *Builder) Cluster(topic string, depth int) Cluster {
	b.mu.RLock()
	defer b.mu.RUnlock()

	center := NodeID(topic)
	c := Cluster{Center: center, Depth: depth}
	if _, ok := b.nodes[center]; !ok {
		return c
	}
	if depth < 0 {
		depth = 0
	}

	dist := map[string]int{center: 0}
	queue := []string{center}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if dist[cur] >= depth {
			continue
		}
		for _, next := range b.neighborsLocked(cur) {
			if _, seen := dist[next]; seen {
				continue
			}
			dist[next] = dist[cur] + 1
			queue = append(queue, next)
		}
	}

	for id := range dist {
		c.Nodes = append(c.Nodes, b.nodes[id].view())
	}
	sortByWeight(c.Nodes)
	for _, e := range b.edges {
		_, inA := dist[e.Source]
		_, inB := dist[e.Target]
		if inA && inB {
			c.Edges = append(c.Edges, e.view())
		}
	}
	sort.Slice(c.Edges, func(i, j int) bool { return c.Edges[i].Key < c.Edges[j].Key })
	return c
}

func sortByWeight(nodes []Node) {
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Weight != nodes[j].Weight {
			return nodes[i].Weight > nodes[j].Weight
		}
		return nodes[i].ID < nodes[j].ID
	})
}
