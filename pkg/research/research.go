// Package research looks up background sources for extracted topics and
// condenses them into research summaries.
package research

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/OFFIS-RIT/kiwi-live/pkg/ai"
	"github.com/OFFIS-RIT/kiwi-live/pkg/bounded"
	"github.com/OFFIS-RIT/kiwi-live/pkg/common"
	"github.com/OFFIS-RIT/kiwi-live/pkg/logger"
	"github.com/OFFIS-RIT/kiwi-live/pkg/metrics"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// SearchOptions are passed to every provider search.
type SearchOptions struct {
	MaxResults      int
	InformationType string
}

// Provider is an external source of research results. Implementations must
// be safe for concurrent use.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, opts SearchOptions) ([]common.SourceResult, error)
}

// Enricher fetches the readable text behind a source URL.
type Enricher interface {
	Enrich(ctx context.Context, url string) (string, error)
}

// Config tunes a Researcher. Zero values fall back to DefaultConfig; a
// negative EnrichTop disables enrichment. LLMTimeout bounds every single
// model call of the stage.
type Config struct {
	MaxTopics          int
	CacheTTL           time.Duration
	CacheSize          int
	MaxSources         int
	MaxQueries         int
	ResultsPerQuery    int
	CredibilityTop     int
	EnrichTop          int
	EnrichMinChars     int
	ProviderTimeout    time.Duration
	LLMTimeout         time.Duration
	TopicConcurrency   int
	DefaultCredibility float64
}

func DefaultConfig() Config {
	return Config{
		MaxTopics:          5,
		CacheTTL:           5 * time.Minute,
		CacheSize:          100,
		MaxSources:         10,
		MaxQueries:         3,
		ResultsPerQuery:    5,
		CredibilityTop:     3,
		EnrichTop:          2,
		EnrichMinChars:     200,
		ProviderTimeout:    15 * time.Second,
		LLMTimeout:         45 * time.Second,
		TopicConcurrency:   2,
		DefaultCredibility: 0.5,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxTopics <= 0 {
		c.MaxTopics = d.MaxTopics
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = d.CacheTTL
	}
	if c.CacheSize <= 0 {
		c.CacheSize = d.CacheSize
	}
	if c.MaxSources <= 0 {
		c.MaxSources = d.MaxSources
	}
	if c.MaxQueries <= 0 {
		c.MaxQueries = d.MaxQueries
	}
	if c.ResultsPerQuery <= 0 {
		c.ResultsPerQuery = d.ResultsPerQuery
	}
	if c.CredibilityTop <= 0 {
		c.CredibilityTop = d.CredibilityTop
	}
	if c.EnrichTop == 0 {
		c.EnrichTop = d.EnrichTop
	}
	if c.EnrichMinChars <= 0 {
		c.EnrichMinChars = d.EnrichMinChars
	}
	if c.ProviderTimeout <= 0 {
		c.ProviderTimeout = d.ProviderTimeout
	}
	if c.LLMTimeout <= 0 {
		c.LLMTimeout = d.LLMTimeout
	}
	if c.TopicConcurrency <= 0 {
		c.TopicConcurrency = d.TopicConcurrency
	}
	if c.DefaultCredibility <= 0 {
		c.DefaultCredibility = d.DefaultCredibility
	}
	return c
}

// Researcher runs the research stage for one session.
type Researcher struct {
	client    ai.Client
	providers []Provider
	enricher  Enricher
	cfg       Config
	now       func() time.Time

	cache *bounded.Cache[string, common.ResearchSummary]
	group singleflight.Group
	log   logger.ComponentLogger
}

// Option customises a Researcher.
type Option func(*Researcher)

// WithEnricher enables readability enrichment of thin source summaries.
func WithEnricher(e Enricher) Option {
	return func(r *Researcher) {
		r.enricher = e
	}
}

// WithClock replaces time.Now for timestamps and cache expiry.
func WithClock(now func() time.Time) Option {
	return func(r *Researcher) {
		r.now = now
	}
}

func New(client ai.Client, providers []Provider, cfg Config, opts ...Option) *Researcher {
	r := &Researcher{
		client:    client,
		providers: providers,
		cfg:       cfg.withDefaults(),
		now:       time.Now,
		log:       logger.Component("Research"),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.cache = bounded.NewCache[string, common.ResearchSummary](
		r.cfg.CacheSize, r.cfg.CacheTTL, bounded.WithClock(r.now),
	)
	return r
}

// CacheLen reports how many research summaries are cached.
func (r *Researcher) CacheLen() int {
	return r.cache.Len()
}

// ClearCache drops every cached summary.
func (r *Researcher) ClearCache() {
	r.cache.Clear()
}

func cacheKey(topic, infoType string) string {
	return strings.ToLower(strings.TrimSpace(topic)) + "|" + infoType
}

// Research produces one summary per topic for at most MaxTopics topics.
// Topics without any source are left out. A failure while researching one
// topic never affects the others and is never returned; the result order
// follows the order of topics.
func (r *Researcher) Research(
	ctx context.Context,
	topics []string,
	transcriptContext string,
	previous []common.ResearchSummary,
) []common.ResearchSummary {
	if len(topics) > r.cfg.MaxTopics {
		topics = topics[:r.cfg.MaxTopics]
	}
	if len(topics) == 0 {
		return nil
	}

	results := make([]*common.ResearchSummary, len(topics))
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(r.cfg.TopicConcurrency)
	for i, topic := range topics {
		g.Go(func() error {
			summary, ok := r.researchTopic(ctx, topic, transcriptContext, previous)
			if ok {
				mu.Lock()
				results[i] = &summary
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]common.ResearchSummary, 0, len(topics))
	for _, s := range results {
		if s != nil {
			out = append(out, *s)
		}
	}
	return out
}

func (r *Researcher) researchTopic(
	ctx context.Context,
	topic string,
	transcriptContext string,
	previous []common.ResearchSummary,
) (summary common.ResearchSummary, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("research panicked", "topic", topic, "panic", rec)
			summary, ok = common.ResearchSummary{}, false
		}
	}()

	infoType := ClassifyInformationType(topic, transcriptContext)
	key := cacheKey(topic, infoType)

	if cached, hit := r.cache.Get(key); hit {
		metrics.ResearchCache.WithLabelValues("hit").Inc()
		r.log.Debug("cache hit", "topic", topic, "type", infoType)
		return cached, true
	}
	metrics.ResearchCache.WithLabelValues("miss").Inc()

	v, err, _ := r.group.Do(key, func() (any, error) {
		s, found := r.build(ctx, topic, infoType, transcriptContext, previous)
		if !found {
			return nil, nil
		}
		r.cache.Set(key, s)
		return s, nil
	})
	if err != nil || v == nil {
		return common.ResearchSummary{}, false
	}
	return v.(common.ResearchSummary), true
}

func (r *Researcher) build(
	ctx context.Context,
	topic string,
	infoType string,
	transcriptContext string,
	previous []common.ResearchSummary,
) (common.ResearchSummary, bool) {
	start := r.now()

	queries := r.generateQueries(ctx, topic, infoType, transcriptContext)
	sources := r.gather(ctx, queries, infoType)
	if len(sources) == 0 {
		r.log.Debug("no sources found", "topic", topic, "queries", len(queries))
		return common.ResearchSummary{}, false
	}

	sources = RankSources(DedupeSources(sources), infoType)
	if len(sources) > r.cfg.MaxSources {
		sources = sources[:r.cfg.MaxSources]
	}
	r.enrich(ctx, sources)

	synthesis := r.synthesize(ctx, topic, sources, previous)
	r.scoreCredibility(ctx, sources)
	followUps := r.followUps(ctx, topic, synthesis)

	r.log.Info("researched topic",
		"topic", topic,
		"type", infoType,
		"sources", len(sources),
		"duration", r.now().Sub(start),
	)

	return common.ResearchSummary{
		Topic:             topic,
		InformationType:   infoType,
		Sources:           sources,
		Synthesis:         synthesis,
		FollowUpQuestions: followUps,
		Timestamp:         r.now(),
	}, true
}

// gather queries every provider with every query concurrently and keeps
// whatever succeeded.
func (r *Researcher) gather(ctx context.Context, queries []string, infoType string) []common.SourceResult {
	var (
		mu  sync.Mutex
		all []common.SourceResult
	)

	g := new(errgroup.Group)
	g.SetLimit(8)
	for _, p := range r.providers {
		for _, q := range queries {
			g.Go(func() error {
				pctx, cancel := context.WithTimeout(ctx, r.cfg.ProviderTimeout)
				defer cancel()

				res, err := safeSearch(pctx, p, q, SearchOptions{
					MaxResults:      r.cfg.ResultsPerQuery,
					InformationType: infoType,
				})
				if err != nil {
					metrics.ProviderFailures.WithLabelValues(p.Name()).Inc()
					r.log.Warn("provider search failed", "provider", p.Name(), "query", q, "err", err)
					return nil
				}
				mu.Lock()
				all = append(all, res...)
				mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait()
	return all
}

func safeSearch(ctx context.Context, p Provider, q string, opts SearchOptions) (res []common.SourceResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("provider %s panicked: %v", p.Name(), rec)
		}
	}()
	return p.Search(ctx, q, opts)
}

// enrich replaces thin summaries of the top sources with readable page text.
func (r *Researcher) enrich(ctx context.Context, sources []common.SourceResult) {
	if r.enricher == nil || r.cfg.EnrichTop < 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range sources {
		if i >= r.cfg.EnrichTop {
			break
		}
		if len(sources[i].Summary) >= r.cfg.EnrichMinChars || sources[i].URL == "" {
			continue
		}
		g.Go(func() error {
			text, err := r.enricher.Enrich(gctx, sources[i].URL)
			if err != nil {
				r.log.Debug("enrichment failed", "url", sources[i].URL, "err", err)
				return nil
			}
			if text = truncateRunes(strings.TrimSpace(text), 1200); text != "" {
				sources[i].Summary = text
			}
			return nil
		})
	}
	_ = g.Wait()
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
