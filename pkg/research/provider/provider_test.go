package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/OFFIS-RIT/kiwi-live/pkg/common"
	"github.com/OFFIS-RIT/kiwi-live/pkg/research"
)

const arxivFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>arXiv Query</title>
  <entry>
    <id>http://arxiv.org/abs/2401.00001v1</id>
    <published>2024-01-02T10:00:00Z</published>
    <title>Consensus in Sharded Databases</title>
    <summary>We study   consensus across shards.</summary>
    <author><name>Ada Lovelace</name></author>
    <link href="http://arxiv.org/abs/2401.00001v1" rel="alternate" type="text/html"/>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2401.00002v1</id>
    <published>2024-01-01T10:00:00Z</published>
    <title>A Second Paper</title>
    <summary>Another abstract.</summary>
    <link href="http://arxiv.org/abs/2401.00002v1" rel="alternate" type="text/html"/>
  </entry>
</feed>`

const newsFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Google News</title>
  <item>
    <title>MongoDB ships new release - The Register</title>
    <link>https://news.example/mongodb</link>
    <pubDate>Tue, 02 Jan 2024 10:00:00 GMT</pubDate>
    <description>&lt;a href="https://news.example/mongodb"&gt;MongoDB ships&lt;/a&gt; a &lt;b&gt;new&lt;/b&gt; release</description>
  </item>
</channel></rss>`

func serve(t *testing.T, wantPath, contentType, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != wantPath {
			t.Errorf("path = %q, want %q", r.URL.Path, wantPath)
		}
		if ua := r.Header.Get("User-Agent"); !strings.HasPrefix(ua, "kiwi-live") {
			t.Errorf("User-Agent = %q", ua)
		}
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestArxiv(t *testing.T) {
	srv := serve(t, "/api/query", "application/atom+xml", arxivFeed)
	p := NewArxiv(Options{BaseURL: srv.URL})

	got, err := p.Search(context.Background(), "sharding", research.SearchOptions{MaxResults: 5})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Search() len = %d, want 2", len(got))
	}
	first := got[0]
	if first.Type != common.InfoAcademic {
		t.Errorf("Type = %q, want %q", first.Type, common.InfoAcademic)
	}
	if first.Source != "arXiv: Ada Lovelace" {
		t.Errorf("Source = %q", first.Source)
	}
	if first.Summary != "We study consensus across shards." {
		t.Errorf("Summary = %q", first.Summary)
	}
	if first.URL != "http://arxiv.org/abs/2401.00001v1" {
		t.Errorf("URL = %q", first.URL)
	}
	if first.Timestamp.IsZero() {
		t.Error("Timestamp not parsed")
	}
	if got[0].RelevanceScore <= got[1].RelevanceScore {
		t.Errorf("relevance %v <= %v, want decreasing by position", got[0].RelevanceScore, got[1].RelevanceScore)
	}
}

func TestGoogleNews(t *testing.T) {
	srv := serve(t, "/rss/search", "application/rss+xml", newsFeed)
	p := NewGoogleNews(Options{BaseURL: srv.URL})

	got, err := p.Search(context.Background(), "mongodb", research.SearchOptions{})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Search() len = %d, want 1", len(got))
	}
	if got[0].Source != "The Register" {
		t.Errorf("Source = %q, want publisher from title", got[0].Source)
	}
	if got[0].Summary != "MongoDB ships a new release" {
		t.Errorf("Summary = %q", got[0].Summary)
	}
	if got[0].Type != common.InfoNews {
		t.Errorf("Type = %q", got[0].Type)
	}
}

func TestWikipedia(t *testing.T) {
	body := `{"query":{"search":[
		{"title":"Shard (database architecture)","snippet":"A <span class=\"searchmatch\">shard</span> is a horizontal partition","timestamp":"2024-05-01T12:00:00Z"}
	]}}`
	srv := serve(t, "/w/api.php", "application/json", body)
	w := NewWikipedia(Options{BaseURL: srv.URL})

	got, err := w.Search(context.Background(), "shard", research.SearchOptions{MaxResults: 3})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Search() len = %d, want 1", len(got))
	}
	if got[0].Summary != "A shard is a horizontal partition" {
		t.Errorf("Summary = %q", got[0].Summary)
	}
	if !strings.HasSuffix(got[0].URL, "/wiki/Shard_%28database_architecture%29") {
		t.Errorf("URL = %q", got[0].URL)
	}
}

func TestStackExchange(t *testing.T) {
	body := `{"items":[
		{"title":"How to pick a shard key?","link":"https://stackoverflow.com/q/1","score":42,"is_answered":true,"answer_count":3,"tags":["mongodb"],"creation_date":1700000000},
		{"title":"Unanswered &amp; old","link":"https://stackoverflow.com/q/2","score":0,"is_answered":false,"answer_count":0,"creation_date":1600000000}
	]}`
	srv := serve(t, "/2.3/search/advanced", "application/json", body)
	s := NewStackExchange(Options{BaseURL: srv.URL}, "")

	got, err := s.Search(context.Background(), "shard key", research.SearchOptions{})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Search() len = %d, want 2", len(got))
	}
	if got[0].Type != common.InfoTechnical || got[0].Source != "StackExchange stackoverflow" {
		t.Errorf("first = %+v", got[0])
	}
	if got[1].Title != "Unanswered & old" {
		t.Errorf("Title = %q, want decoded entity", got[1].Title)
	}
	if got[0].Summary != "3 answers, score 42, tagged mongodb" {
		t.Errorf("Summary = %q", got[0].Summary)
	}
}

func TestStackExchangeErrorMessage(t *testing.T) {
	srv := serve(t, "/2.3/search/advanced", "application/json", `{"items":[],"error_message":"throttle violation"}`)
	s := NewStackExchange(Options{BaseURL: srv.URL}, "")
	if _, err := s.Search(context.Background(), "q", research.SearchOptions{}); err == nil {
		t.Fatal("Search() error = nil, want api error")
	}
}

func TestBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	w := NewWikipedia(Options{BaseURL: srv.URL})
	if _, err := w.Search(context.Background(), "q", research.SearchOptions{}); err == nil {
		t.Fatal("Search() error = nil, want status error")
	}
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain   text", "plain text"},
		{"<p>Hello <b>world</b></p>", "Hello world"},
		{"a &amp; b", "a & b"},
		{"<style>p{}</style>visible<script>x()</script>", "visible"},
		{"", ""},
	}
	for _, tc := range tests {
		if got := StripHTML(tc.in); got != tc.want {
			t.Errorf("StripHTML(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
