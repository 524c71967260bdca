package graph

import (
	"encoding/json"
	"math"
	"reflect"
	"testing"
	"time"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestBuilder(t *testing.T, cfg Config) (*Builder, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)}
	b := NewBuilder(cfg, WithClock(clock.Now))
	t.Cleanup(func() {
		if err := b.Validate(); err != nil {
			t.Errorf("Validate() = %v", err)
		}
	})
	return b, clock
}

func TestAddTopicWeightIsMonotonic(t *testing.T) {
	b, clock := newTestBuilder(t, DefaultConfig())

	n, created := b.AddTopic("Kubernetes", "technology", 0.5)
	if !created || n.Weight != 1 {
		t.Fatalf("AddTopic() = (%+v, %v), want new node with weight 1", n, created)
	}

	prev := n.Weight
	for i := 0; i < 5; i++ {
		clock.Advance(time.Minute)
		n, created = b.AddTopic("kubernetes", "", 0.9)
		if created {
			t.Fatal("AddTopic() created a duplicate for a different casing")
		}
		if n.Weight <= prev {
			t.Fatalf("weight = %v after %v, want strictly increasing", n.Weight, prev)
		}
		prev = n.Weight
	}

	if n.Label != "Kubernetes" {
		t.Errorf("Label = %q, want first spelling", n.Label)
	}
	if n.Confidence != 0.9 {
		t.Errorf("Confidence = %v, want max 0.9", n.Confidence)
	}
	if !n.LastMentioned.Equal(clock.Now()) {
		t.Errorf("LastMentioned = %v, want %v", n.LastMentioned, clock.Now())
	}
	if n.Category != "technology" {
		t.Errorf("Category = %q, want technology", n.Category)
	}
}

func TestAddTopicIgnoresBlank(t *testing.T) {
	b, _ := newTestBuilder(t, DefaultConfig())
	if _, created := b.AddTopic("   ", "", 0); created {
		t.Fatal("AddTopic() created a node for a blank topic")
	}
	if s := b.Stats(); s.Nodes != 0 {
		t.Errorf("Stats().Nodes = %d, want 0", s.Nodes)
	}
}

func TestAddConnectionCanonicalKey(t *testing.T) {
	b, _ := newTestBuilder(t, DefaultConfig())

	e1, created := b.AddConnection("Sharding", "MongoDB", "part of", 0.8)
	if !created {
		t.Fatal("AddConnection() did not create edge")
	}
	e2, created := b.AddConnection("mongodb", "sharding", "part of", 0.7)
	if created {
		t.Fatal("AddConnection() created a second edge for the reversed pair")
	}
	if e1.Key != e2.Key || e1.Key != EdgeKey("MongoDB", "Sharding") {
		t.Errorf("keys = %q, %q, want both %q", e1.Key, e2.Key, EdgeKey("MongoDB", "Sharding"))
	}
	if e2.Weight != 2 {
		t.Errorf("Weight = %v, want 2", e2.Weight)
	}
	if e2.Confidence != 0.8 {
		t.Errorf("Confidence = %v, want 0.8", e2.Confidence)
	}
	if _, ok := b.AddConnection("x", "X", "", 0); ok {
		t.Error("AddConnection() accepted a self connection")
	}
}

func TestEdgeKeySeparatorInLabels(t *testing.T) {
	tests := []struct {
		a, b string
		c, d string
	}{
		{"a", "b|c", "a|b", "c"},
		{"1:a", "b", "1", "a|b"},
		{"x y", "z", "x", "y z"},
	}
	for _, tt := range tests {
		t.Run(tt.a+"+"+tt.b, func(t *testing.T) {
			if EdgeKey(tt.a, tt.b) == EdgeKey(tt.c, tt.d) {
				t.Errorf("EdgeKey(%q, %q) == EdgeKey(%q, %q) = %q", tt.a, tt.b, tt.c, tt.d, EdgeKey(tt.a, tt.b))
			}

			b, _ := newTestBuilder(t, DefaultConfig())
			if _, created := b.AddConnection(tt.a, tt.b, "", 0.5); !created {
				t.Fatalf("AddConnection(%q, %q) created = false", tt.a, tt.b)
			}
			if _, created := b.AddConnection(tt.c, tt.d, "", 0.5); !created {
				t.Fatalf("AddConnection(%q, %q) created = false, want a separate edge", tt.c, tt.d)
			}
			if s := b.Stats(); s.Edges != 2 {
				t.Errorf("Stats().Edges = %d, want 2", s.Edges)
			}
			e, ok := b.Edge(tt.c, tt.d)
			if !ok || e.Weight != 1 || e.Source != NodeID(min(tt.c, tt.d)) {
				t.Errorf("Edge(%q, %q) = %+v, %v", tt.c, tt.d, e, ok)
			}
		})
	}
}

func TestEdgeTimestampsAreBounded(t *testing.T) {
	b, clock := newTestBuilder(t, DefaultConfig())
	var e Edge
	for i := 0; i < 25; i++ {
		clock.Advance(time.Second)
		e, _ = b.AddConnection("a1", "b1", "", 0)
	}
	if len(e.Timestamps) != 10 {
		t.Fatalf("len(Timestamps) = %d, want 10", len(e.Timestamps))
	}
	if !e.LastUpdated().Equal(clock.Now()) {
		t.Errorf("LastUpdated() = %v, want %v", e.LastUpdated(), clock.Now())
	}
}

func TestCoMentionSymmetry(t *testing.T) {
	b, _ := newTestBuilder(t, DefaultConfig())
	b.AddTopicsFromText(Topics("A", "B", "C"), nil)

	pairs := [][2]string{{"A", "B"}, {"A", "C"}, {"B", "C"}}
	for _, p := range pairs {
		e, ok := b.Edge(p[0], p[1])
		if !ok {
			t.Fatalf("missing edge %v", p)
		}
		if e.Type != TypeCoMentioned {
			t.Errorf("edge %v type = %q, want %q", p, e.Type, TypeCoMentioned)
		}
		if e.Confidence != 0.6 {
			t.Errorf("edge %v confidence = %v, want 0.6", p, e.Confidence)
		}
		if EdgeKey(p[0], p[1]) != EdgeKey(p[1], p[0]) {
			t.Errorf("EdgeKey not symmetric for %v", p)
		}
	}
	if s := b.Stats(); s.Edges != 3 || s.Nodes != 3 {
		t.Errorf("Stats() = %+v, want 3 nodes and 3 edges", s)
	}
}

func TestAddTopicsFromTextExplicitConnectionKeepsType(t *testing.T) {
	b, _ := newTestBuilder(t, DefaultConfig())
	b.AddTopicsFromText(
		[]Topic{{Name: "Raft", Category: "concept"}, {Name: "etcd", Category: "product"}},
		[]Connection{{Source: "etcd", Target: "Raft", Type: "implements", Confidence: 0.9}},
	)

	e, ok := b.Edge("raft", "etcd")
	if !ok {
		t.Fatal("missing edge raft|etcd")
	}
	if e.Type != "implements" {
		t.Errorf("Type = %q, want implements", e.Type)
	}
	if e.Weight != 2 {
		t.Errorf("Weight = %v, want 2 (explicit + co-mention)", e.Weight)
	}
	if got := b.TopicsByCategory("product"); len(got) != 1 || got[0].ID != "etcd" {
		t.Errorf("TopicsByCategory(product) = %+v", got)
	}
}

func TestCoMentionBatchIsCapped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxCoMentionTopics = 3
	b, _ := newTestBuilder(t, cfg)

	b.AddTopicsFromText(Topics("t1", "t2", "t3", "t4", "t5"), nil)
	if s := b.Stats(); s.Nodes != 5 || s.Edges != 3 {
		t.Fatalf("Stats() = %+v, want 5 nodes and 3 edges", s)
	}
	if _, ok := b.Edge("t4", "t5"); ok {
		t.Error("topics beyond the cap were paired")
	}
}

func TestEdgeDecay(t *testing.T) {
	b, clock := newTestBuilder(t, DefaultConfig())
	b.AddConnection("alpha", "beta", "", 0)

	clock.Advance(30 * time.Minute)
	if r := b.PerformMaintenance(); r.DecayedEdges != 0 {
		t.Fatalf("decayed a fresh edge: %+v", r)
	}

	clock.Advance(31 * time.Minute)
	b.PerformMaintenance()
	e, ok := b.Edge("alpha", "beta")
	if !ok {
		t.Fatal("edge removed too early")
	}
	if math.Abs(e.Weight-0.95) > 1e-9 {
		t.Fatalf("Weight = %v, want 0.95 after one pass", e.Weight)
	}

	b.PerformMaintenance()
	e, _ = b.Edge("alpha", "beta")
	if math.Abs(e.Weight-0.95*0.95) > 1e-9 {
		t.Fatalf("Weight = %v, want 0.9025 after two passes", e.Weight)
	}

	passes := 2
	for {
		if _, ok := b.Edge("alpha", "beta"); !ok {
			break
		}
		b.PerformMaintenance()
		passes++
		if passes > 100 {
			t.Fatal("edge never removed")
		}
	}
	// 0.95^45 is the first power below 0.1.
	if passes != 45 {
		t.Errorf("edge removed after %d passes, want 45", passes)
	}
	if n, _ := b.Node("alpha"); len(n.Connections) != 0 {
		t.Errorf("alpha still lists connections %v", n.Connections)
	}
}

func TestMaintenanceRemovesStaleIsolatedNodes(t *testing.T) {
	b, clock := newTestBuilder(t, DefaultConfig())
	b.AddTopic("lonely", "", 0)
	b.AddConnection("kept1", "kept2", "", 0)

	clock.Advance(25 * time.Hour)
	b.AddConnection("kept1", "kept2", "", 0)
	r := b.PerformMaintenance()
	if r.RemovedNodes != 1 {
		t.Fatalf("RemovedNodes = %d, want 1", r.RemovedNodes)
	}
	if _, ok := b.Node("lonely"); ok {
		t.Error("stale isolated node survived maintenance")
	}
	if _, ok := b.Node("kept1"); !ok {
		t.Error("connected node removed")
	}
}

func TestMaxNodesEvictsLeastRecentlyMentioned(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxNodes = 3
	b, clock := newTestBuilder(t, cfg)

	for _, topic := range []string{"n1", "n2", "n3"} {
		b.AddTopic(topic, "", 0)
		clock.Advance(time.Minute)
	}
	b.AddConnection("n1", "n2", "", 0)
	b.AddTopic("n1", "", 0)
	clock.Advance(time.Minute)
	b.AddTopic("n4", "", 0)

	if s := b.Stats(); s.Nodes != 3 {
		t.Fatalf("Nodes = %d, want 3", s.Nodes)
	}
	if _, ok := b.Node("n2"); ok {
		t.Error("n2 should have been evicted as least recently mentioned")
	}
	if _, ok := b.Edge("n1", "n2"); ok {
		t.Error("edge to evicted node survived")
	}
}

func TestImportEvictsDownToCapacity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxNodes = 3
	b, _ := newTestBuilder(t, cfg)

	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	var nodes []Node
	for i, id := range []string{"e", "d", "c", "b", "a"} {
		nodes = append(nodes, Node{ID: id, Label: id, Weight: 1, LastMentioned: base.Add(time.Duration(i) * time.Minute)})
	}
	if err := b.Import(Snapshot{Version: 1, Nodes: nodes}); err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	for _, id := range []string{"e", "d"} {
		if _, ok := b.Node(id); ok {
			t.Errorf("Node(%q) survived, want the two oldest evicted", id)
		}
	}
	for _, id := range []string{"c", "b", "a"} {
		if _, ok := b.Node(id); !ok {
			t.Errorf("Node(%q) evicted, want kept", id)
		}
	}
}

func TestQueries(t *testing.T) {
	b, clock := newTestBuilder(t, DefaultConfig())
	b.AddConnection("go", "channels", "has", 0)
	b.AddConnection("go", "channels", "has", 0)
	b.AddConnection("go", "goroutines", "has", 0)
	b.AddConnection("goroutines", "scheduler", "uses", 0)
	clock.Advance(2 * time.Hour)
	b.AddTopic("rust", "", 0)

	strongest := b.StrongestConnections("Go", 1)
	if len(strongest) != 1 || strongest[0].Node.ID != "channels" {
		t.Errorf("StrongestConnections() = %+v, want channels first", strongest)
	}

	most := b.MostConnected(1)
	if len(most) != 1 || most[0].ID != "go" && most[0].ID != "goroutines" {
		t.Errorf("MostConnected() = %+v", most)
	}

	recent := b.RecentlyActive(time.Hour)
	if len(recent) != 1 || recent[0].ID != "rust" {
		t.Errorf("RecentlyActive() = %+v, want [rust]", recent)
	}

	path := b.ShortestPath("channels", "scheduler")
	if want := []string{"channels", "go", "goroutines", "scheduler"}; !reflect.DeepEqual(path, want) {
		t.Errorf("ShortestPath() = %v, want %v", path, want)
	}
	if p := b.ShortestPath("channels", "rust"); p != nil {
		t.Errorf("ShortestPath() to disconnected node = %v, want nil", p)
	}
	if p := b.ShortestPath("go", "go"); !reflect.DeepEqual(p, []string{"go"}) {
		t.Errorf("ShortestPath(go, go) = %v", p)
	}

	c := b.Cluster("go", 1)
	if len(c.Nodes) != 3 || len(c.Edges) != 2 {
		t.Errorf("Cluster(go, 1) = %d nodes %d edges, want 3 and 2", len(c.Nodes), len(c.Edges))
	}
	c = b.Cluster("go", 2)
	if len(c.Nodes) != 4 {
		t.Errorf("Cluster(go, 2) = %d nodes, want 4", len(c.Nodes))
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	b, clock := newTestBuilder(t, DefaultConfig())
	b.AddTopicsFromText([]Topic{
		{Name: "MongoDB sharding", Category: "technology"},
		{Name: "write concern", Category: "concept"},
		{Name: "replica set", Category: "technology"},
	}, nil)
	clock.Advance(90 * time.Minute)
	b.AddConnection("write concern", "replica set", "configures", 0.9)
	b.PerformMaintenance()

	data, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}

	restored, _ := newTestBuilder(t, DefaultConfig())
	if err := json.Unmarshal(data, restored); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}

	want, got := b.Export(), restored.Export()
	if len(got.Nodes) != len(want.Nodes) || len(got.Edges) != len(want.Edges) {
		t.Fatalf("restored %d/%d, want %d/%d nodes/edges",
			len(got.Nodes), len(got.Edges), len(want.Nodes), len(want.Edges))
	}
	for i := range want.Nodes {
		w, g := want.Nodes[i], got.Nodes[i]
		if w.ID != g.ID || w.Weight != g.Weight || !w.FirstSeen.Equal(g.FirstSeen) ||
			!w.LastMentioned.Equal(g.LastMentioned) || !reflect.DeepEqual(w.Connections, g.Connections) {
			t.Errorf("node %d = %+v, want %+v", i, g, w)
		}
	}
	for i := range want.Edges {
		w, g := want.Edges[i], got.Edges[i]
		if w.Key != g.Key || w.Weight != g.Weight || w.Type != g.Type || len(w.Timestamps) != len(g.Timestamps) {
			t.Errorf("edge %d = %+v, want %+v", i, g, w)
			continue
		}
		for j := range w.Timestamps {
			if !w.Timestamps[j].Equal(g.Timestamps[j]) {
				t.Errorf("edge %d timestamp %d = %v, want %v", i, j, g.Timestamps[j], w.Timestamps[j])
			}
		}
	}
	if !reflect.DeepEqual(got.Categories, want.Categories) {
		t.Errorf("Categories = %v, want %v", got.Categories, want.Categories)
	}
}

func TestImportDropsDanglingEdges(t *testing.T) {
	b, _ := newTestBuilder(t, DefaultConfig())
	err := b.Import(Snapshot{
		Version: 1,
		Nodes:   []Node{{ID: "a", Label: "a", Weight: 1}},
		Edges:   []Edge{{Source: "a", Target: "ghost", Weight: 1}},
	})
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if s := b.Stats(); s.Edges != 0 {
		t.Errorf("Edges = %d, want 0", s.Edges)
	}
	if err := b.Import(Snapshot{Version: 99}); err == nil {
		t.Error("Import() accepted unknown version")
	}
}

func TestListenersReceiveNotifications(t *testing.T) {
	b, _ := newTestBuilder(t, DefaultConfig())
	var topics, connections, updates int
	remove := b.AddListener(ListenerFuncs{
		OnTopicAdded:      func(Node) { topics++ },
		OnConnectionAdded: func(Edge) { connections++ },
		OnGraphUpdated: func(s Stats) {
			updates++
			// Listeners run after the lock was released.
			_ = b.Stats()
		},
	})

	b.AddTopicsFromText(Topics("MongoDB sharding", "write concern"), nil)
	if topics != 2 || connections != 1 || updates != 1 {
		t.Fatalf("topics=%d connections=%d updates=%d, want 2/1/1", topics, connections, updates)
	}

	remove()
	b.AddTopic("other", "", 0)
	if topics != 2 {
		t.Errorf("listener called after removal")
	}
}
