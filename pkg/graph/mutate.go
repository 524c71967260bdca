package graph

import (
	"container/heap"
	"strings"
	"time"
)

// Topic is a topic to add in a batch.
type Topic struct {
	Name       string  `json:"name"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// Topics wraps plain names into Topics with default category and confidence.
func Topics(names ...string) []Topic {
	out := make([]Topic, 0, len(names))
	for _, n := range names {
		out = append(out, Topic{Name: n})
	}
	return out
}

// Connection is an explicit relationship between two topics.
type Connection struct {
	Source     string  `json:"source"`
	Target     string  `json:"target"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

// AddTopic creates the node for topic or, if it exists, bumps its weight,
// refreshes its last mention and keeps the higher confidence. It reports
// whether the node was created. Blank topics are ignored.
func (b *Builder) AddTopic(topic, category string, confidence float64) (Node, bool) {
	var n notifications
	b.mu.Lock()
	nd, created := b.addTopicLocked(topic, category, confidence, &n)
	var view Node
	if nd != nil {
		b.enforceCapacityLocked(nd.ID)
		view = nd.view()
		n.graphUpdated(b.statsLocked())
	}
	b.mu.Unlock()

	b.dispatch(n)
	return view, created
}

func (b *Builder) addTopicLocked(
	topic, category string,
	confidence float64,
	n *notifications,
) (*node, bool) {
	id := NodeID(topic)
	if id == "" {
		return nil, false
	}
	if confidence <= 0 {
		confidence = b.cfg.DefaultTopicConfidence
	}
	category = strings.ToLower(strings.TrimSpace(category))
	now := b.now()

	if existing, ok := b.nodes[id]; ok {
		existing.Weight++
		existing.LastMentioned = now
		if confidence > existing.Confidence {
			existing.Confidence = confidence
		}
		if category != "" && existing.Category == defaultCategory {
			existing.Category = category
		}
		return existing, false
	}

	if category == "" {
		category = defaultCategory
	}
	nd := &node{
		Node: Node{
			ID:            id,
			Label:         strings.Join(strings.Fields(topic), " "),
			Weight:        1,
			Category:      category,
			Confidence:    confidence,
			FirstSeen:     now,
			LastMentioned: now,
		},
		conns: make(map[string]struct{}),
	}
	b.nodes[id] = nd
	n.topicAdded(nd.view())
	return nd, true
}

// AddConnection ensures both topics exist and creates or strengthens the
// edge between them. Self connections are ignored.
func (b *Builder) AddConnection(a, c, connType string, confidence float64) (Edge, bool) {
	var n notifications
	b.mu.Lock()
	e, created := b.addConnectionLocked(a, c, connType, confidence, &n)
	var view Edge
	if e != nil {
		b.enforceCapacityLocked(e.Source, e.Target)
		view = e.view()
		n.graphUpdated(b.statsLocked())
	}
	b.mu.Unlock()

	b.dispatch(n)
	return view, created
}

func (b *Builder) addConnectionLocked(
	a, c, connType string,
	confidence float64,
	n *notifications,
) (*edge, bool) {
	idA, idC := NodeID(a), NodeID(c)
	if idA == "" || idC == "" || idA == idC {
		return nil, false
	}
	if connType == "" {
		connType = TypeRelated
	}
	if confidence <= 0 {
		confidence = b.cfg.DefaultTopicConfidence
	}

	if _, ok := b.nodes[idA]; !ok {
		b.addTopicLocked(a, "", confidence, n)
	}
	if _, ok := b.nodes[idC]; !ok {
		b.addTopicLocked(c, "", confidence, n)
	}
	nodeA, okA := b.nodes[idA]
	nodeC, okC := b.nodes[idC]
	if !okA || !okC {
		return nil, false
	}

	now := b.now()
	key := EdgeKey(idA, idC)
	if existing, ok := b.edges[key]; ok {
		existing.Weight++
		if confidence > existing.Confidence {
			existing.Confidence = confidence
		}
		if existing.Type == TypeCoMentioned && connType != TypeCoMentioned {
			existing.Type = connType
		}
		existing.Timestamps = append(existing.Timestamps, now)
		if over := len(existing.Timestamps) - b.cfg.MaxTimestamps; over > 0 {
			existing.Timestamps = append([]time.Time(nil), existing.Timestamps[over:]...)
		}
		return existing, false
	}

	src, tgt := idA, idC
	if tgt < src {
		src, tgt = tgt, src
	}
	e := &edge{Edge: Edge{
		Key:        key,
		Source:     src,
		Target:     tgt,
		Weight:     1,
		Type:       connType,
		Confidence: confidence,
		Timestamps: []time.Time{now},
	}}
	b.edges[key] = e
	nodeA.conns[idC] = struct{}{}
	nodeC.conns[idA] = struct{}{}
	n.connectionAdded(e.view())
	return e, true
}

// AddTopicsFromText adds every topic, applies the explicit connections and
// then links every pair of topics from this batch with a co-mentioned edge.
// Only the first MaxCoMentionTopics distinct topics take part in the
// pairwise step.
func (b *Builder) AddTopicsFromText(topics []Topic, connections []Connection) {
	var n notifications
	b.mu.Lock()

	batch := make([]string, 0, len(topics))
	seen := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		nd, _ := b.addTopicLocked(t.Name, t.Category, t.Confidence, &n)
		if nd == nil {
			continue
		}
		if _, dup := seen[nd.ID]; dup {
			continue
		}
		seen[nd.ID] = struct{}{}
		batch = append(batch, nd.ID)
	}

	for _, c := range connections {
		b.addConnectionLocked(c.Source, c.Target, c.Type, c.Confidence, &n)
	}

	pairs := batch
	if len(pairs) > b.cfg.MaxCoMentionTopics {
		b.log.Debug("capping co-mention batch", "topics", len(pairs), "cap", b.cfg.MaxCoMentionTopics)
		pairs = pairs[:b.cfg.MaxCoMentionTopics]
	}
	for i := 0; i < len(pairs); i++ {
		for j := i + 1; j < len(pairs); j++ {
			b.addConnectionLocked(pairs[i], pairs[j], TypeCoMentioned, b.cfg.CoMentionConfidence, &n)
		}
	}

	b.enforceCapacityLocked()
	if len(n) > 0 || len(batch) > 0 {
		n.graphUpdated(b.statsLocked())
	}
	b.mu.Unlock()

	b.dispatch(n)
}

// enforceCapacityLocked evicts the least recently mentioned nodes, and their
// edges, until the graph fits MaxNodes. Protected ids go last and are only
// evicted when MaxNodes is smaller than the protected set.
func (b *Builder) enforceCapacityLocked(protect ...string) int {
	over := len(b.nodes) - b.cfg.MaxNodes
	if over <= 0 {
		return 0
	}

	protected := make(map[string]struct{}, len(protect))
	for _, id := range protect {
		protected[id] = struct{}{}
	}

	h := &evictionHeap{nodes: make([]*node, 0, len(b.nodes)), protected: protected}
	for _, nd := range b.nodes {
		h.nodes = append(h.nodes, nd)
	}
	heap.Init(h)

	evicted := 0
	for evicted < over && h.Len() > 0 {
		b.removeNodeLocked(heap.Pop(h).(*node).ID)
		evicted++
	}
	if evicted > 0 {
		b.log.Debug("evicted nodes over capacity", "count", evicted, "max_nodes", b.cfg.MaxNodes)
	}
	return evicted
}

func (b *Builder) removeNodeLocked(id string) {
	nd, ok := b.nodes[id]
	if !ok {
		return
	}
	for other := range nd.conns {
		delete(b.edges, EdgeKey(id, other))
		if o, ok := b.nodes[other]; ok {
			delete(o.conns, id)
		}
	}
	delete(b.nodes, id)
}

func (b *Builder) removeEdgeLocked(e *edge) {
	delete(b.edges, e.Key)
	if a, ok := b.nodes[e.Source]; ok {
		delete(a.conns, e.Target)
	}
	if c, ok := b.nodes[e.Target]; ok {
		delete(c.conns, e.Source)
	}
}

// evictionHeap orders nodes by eviction priority: unprotected first, then
// least recently mentioned, then lightest. Building it is O(n) and each
// eviction O(log n), so a single insert over capacity stays linear.
type evictionHeap struct {
	nodes     []*node
	protected map[string]struct{}
}

func (h *evictionHeap) Len() int { return len(h.nodes) }

func (h *evictionHeap) Less(i, j int) bool {
	a, c := h.nodes[i], h.nodes[j]
	_, pa := h.protected[a.ID]
	_, pc := h.protected[c.ID]
	if pa != pc {
		return pc
	}
	if !a.LastMentioned.Equal(c.LastMentioned) {
		return a.LastMentioned.Before(c.LastMentioned)
	}
	if a.Weight != c.Weight {
		return a.Weight < c.Weight
	}
	return a.ID < c.ID
}

func (h *evictionHeap) Swap(i, j int) { h.nodes[i], h.nodes[j] = h.nodes[j], h.nodes[i] }

func (h *evictionHeap) Push(x any) { h.nodes = append(h.nodes, x.(*node)) }

func (h *evictionHeap) Pop() any {
	n := len(h.nodes)
	nd := h.nodes[n-1]
	h.nodes = h.nodes[:n-1]
	return nd
}
