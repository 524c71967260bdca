package research

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/OFFIS-RIT/kiwi-live/pkg/ai/aitest"
	"github.com/OFFIS-RIT/kiwi-live/pkg/common"
)

type fakeProvider struct {
	name    string
	results map[string][]common.SourceResult
	err     error

	mu      sync.Mutex
	queries []string
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Search(_ context.Context, query string, _ SearchOptions) ([]common.SourceResult, error) {
	p.mu.Lock()
	p.queries = append(p.queries, query)
	p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	return p.results[query], nil
}

func (p *fakeProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queries)
}

func src(url, typ string, relevance float64) common.SourceResult {
	return common.SourceResult{
		Source:         "fake",
		Title:          "About " + url,
		Summary:        "Summary of " + url,
		URL:            url,
		Type:           typ,
		RelevanceScore: relevance,
	}
}

func TestResearchIsolatesFailures(t *testing.T) {
	good := &fakeProvider{name: "good", results: map[string][]common.SourceResult{
		"Raft":  {src("https://a.example/raft", common.InfoTechnical, 0.9)},
		"Paxos": {src("https://a.example/paxos", common.InfoAcademic, 0.8)},
	}}
	broken := &fakeProvider{name: "broken", err: errors.New("503")}

	stub := aitest.New() // every answer is empty, every LLM stage falls back
	r := New(stub, []Provider{broken, good}, Config{})

	got := r.Research(context.Background(), []string{"Raft", "Unknown thing", "Paxos"}, "", nil)
	if len(got) != 2 {
		t.Fatalf("Research() returned %d summaries, want 2", len(got))
	}
	if got[0].Topic != "Raft" || got[1].Topic != "Paxos" {
		t.Errorf("topics = %q, %q, want Raft, Paxos in input order", got[0].Topic, got[1].Topic)
	}

	s := got[0]
	if s.Synthesis != "Summary of https://a.example/raft" {
		t.Errorf("Synthesis = %q, want fallback to source summary", s.Synthesis)
	}
	if s.Sources[0].Credibility != 0.5 {
		t.Errorf("Credibility = %v, want default 0.5", s.Sources[0].Credibility)
	}
	if s.FollowUpQuestions == nil || len(s.FollowUpQuestions) != 0 {
		t.Errorf("FollowUpQuestions = %#v, want empty list", s.FollowUpQuestions)
	}
	if broken.calls() != 3 {
		t.Errorf("broken provider calls = %d, want 3", broken.calls())
	}
}

func TestResearchCapsTopics(t *testing.T) {
	p := &fakeProvider{name: "p", results: map[string][]common.SourceResult{}}
	r := New(aitest.New(), []Provider{p}, Config{MaxTopics: 5})

	topics := []string{"a1", "a2", "a3", "a4", "a5", "a6", "a7"}
	r.Research(context.Background(), topics, "", nil)
	if got := p.calls(); got != 5 {
		t.Errorf("provider calls = %d, want 5", got)
	}
}

func TestResearchUsesLLMAnswers(t *testing.T) {
	p := &fakeProvider{name: "p", results: map[string][]common.SourceResult{
		"kafka consumer groups": {
			src("https://docs.example/kafka", common.InfoTechnical, 0.7),
			src("https://blog.example/kafka", common.InfoGeneral, 0.9),
		},
	}}
	stub := aitest.New().
		On("You generate web search queries", `{"queries":["kafka consumer groups","kafka consumer groups"]}`).
		On("Summarize what the sources", "Kafka balances partitions across group members.").
		On("You rate how credible", `{"scores":[{"index":1,"score":0.9},{"index":2,"score":1.7}]}`).
		On("dig deeper", `{"questions":["How are offsets committed?"]}`)

	r := New(stub, []Provider{p}, Config{})
	got := r.Research(context.Background(), []string{"Kafka"}, "we discussed the database and the api", nil)
	if len(got) != 1 {
		t.Fatalf("Research() returned %d summaries, want 1", len(got))
	}
	s := got[0]

	if s.InformationType != common.InfoTechnical {
		t.Errorf("InformationType = %q, want %q", s.InformationType, common.InfoTechnical)
	}
	if p.calls() != 1 {
		t.Errorf("provider calls = %d, want 1 for deduplicated queries", p.calls())
	}
	if s.Sources[0].Type != common.InfoTechnical {
		t.Errorf("first source type = %q, want technical ranked first", s.Sources[0].Type)
	}
	if s.Sources[0].Credibility != 0.9 || s.Sources[1].Credibility != 1 {
		t.Errorf("credibility = %v, %v, want 0.9, 1", s.Sources[0].Credibility, s.Sources[1].Credibility)
	}
	if s.Synthesis != "Kafka balances partitions across group members." {
		t.Errorf("Synthesis = %q", s.Synthesis)
	}
	if len(s.FollowUpQuestions) != 1 {
		t.Errorf("FollowUpQuestions = %q, want one question", s.FollowUpQuestions)
	}
}

func TestResearchLLMTimeout(t *testing.T) {
	p := &fakeProvider{name: "p", results: map[string][]common.SourceResult{
		"etcd": {src("https://etcd.example/docs", common.InfoTechnical, 0.9)},
	}}
	stub := aitest.New()
	var deadlines sync.Map
	stub.BeforeCall = func(ctx context.Context, prompt string) {
		_, ok := ctx.Deadline()
		deadlines.Store(prompt, ok)
		if strings.Contains(prompt, "Summarize what the sources") {
			<-ctx.Done()
		}
	}

	r := New(stub, []Provider{p}, Config{LLMTimeout: 50 * time.Millisecond})
	got := r.Research(context.Background(), []string{"etcd"}, "", nil)
	if len(got) != 1 {
		t.Fatalf("Research() returned %d summaries, want 1", len(got))
	}
	if got[0].Synthesis != "Summary of https://etcd.example/docs" {
		t.Errorf("Synthesis = %q, want fallback after the synthesis call timed out", got[0].Synthesis)
	}

	n := 0
	deadlines.Range(func(k, v any) bool {
		n++
		if !v.(bool) {
			t.Errorf("model call without deadline: %.40q", k)
		}
		return true
	})
	if n == 0 {
		t.Error("no model calls recorded")
	}
}

func TestResearchCacheTTL(t *testing.T) {
	p := &fakeProvider{name: "p", results: map[string][]common.SourceResult{
		"Go": {src("https://go.dev", common.InfoGeneral, 1)},
	}}
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r := New(aitest.New(), []Provider{p}, Config{CacheTTL: 5 * time.Minute}, WithClock(func() time.Time { return now }))

	r.Research(context.Background(), []string{"Go"}, "", nil)
	r.Research(context.Background(), []string{"go"}, "", nil)
	if p.calls() != 1 {
		t.Fatalf("provider calls = %d, want 1 (second lookup cached)", p.calls())
	}

	now = now.Add(6 * time.Minute)
	r.Research(context.Background(), []string{"Go"}, "", nil)
	if p.calls() != 2 {
		t.Errorf("provider calls = %d, want 2 after TTL expiry", p.calls())
	}
}

func TestRankSources(t *testing.T) {
	older := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(24 * time.Hour)

	sources := []common.SourceResult{
		{URL: "news-low", Type: common.InfoNews, RelevanceScore: 0.2},
		{URL: "acad-old", Type: common.InfoAcademic, RelevanceScore: 0.5, Timestamp: older},
		{URL: "other", Type: "forum", RelevanceScore: 1},
		{URL: "acad-new", Type: common.InfoAcademic, RelevanceScore: 0.5, Timestamp: newer},
		{URL: "tech", Type: common.InfoTechnical, RelevanceScore: 0.9},
	}
	RankSources(sources, common.InfoAcademic)

	want := []string{"acad-new", "acad-old", "tech", "news-low", "other"}
	for i, w := range want {
		if sources[i].URL != w {
			t.Fatalf("RankSources()[%d] = %q, want %q", i, sources[i].URL, w)
		}
	}
}

func TestDedupeSources(t *testing.T) {
	in := []common.SourceResult{
		{URL: "https://www.example.com/a/", RelevanceScore: 0.2},
		{URL: "https://example.com/a?utm_source=x", RelevanceScore: 0.8},
		{URL: "https://example.com/b"},
		{Title: "No link"},
		{Title: "no link "},
		{},
	}
	got := DedupeSources(in)
	if len(got) != 3 {
		t.Fatalf("DedupeSources() len = %d, want 3", len(got))
	}
	if got[0].RelevanceScore != 0.8 {
		t.Errorf("kept relevance = %v, want the more relevant duplicate", got[0].RelevanceScore)
	}
}

func TestClassifyInformationType(t *testing.T) {
	tests := []struct {
		topic, context string
		want           string
	}{
		{"MongoDB sharding", "", common.InfoTechnical},
		{"Election results", "", common.InfoNews},
		{"Quantum error correction", "a recent paper", common.InfoAcademic},
		{"Team offsite", "", common.InfoGeneral},
		{"Budget", "the latest market news today", common.InfoNews},
		{"apiary", "", common.InfoGeneral},
	}
	for _, tc := range tests {
		t.Run(tc.topic, func(t *testing.T) {
			if got := ClassifyInformationType(tc.topic, tc.context); got != tc.want {
				t.Errorf("ClassifyInformationType(%q, %q) = %q, want %q", tc.topic, tc.context, got, tc.want)
			}
		})
	}
}

func TestFallbackSynthesisSkipsEmpty(t *testing.T) {
	got := fallbackSynthesis([]common.SourceResult{{}, {Title: "Only title"}, {Summary: "S"}})
	if !strings.Contains(got, "Only title") || !strings.HasSuffix(got, "S") {
		t.Errorf("fallbackSynthesis() = %q", got)
	}
}
