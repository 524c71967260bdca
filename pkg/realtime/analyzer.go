// Package realtime runs the lightweight analyses that accompany a live
// conversation: contradiction detection, jargon explanation, ad-hoc
// insights and knowledge connections, plus the periodic executive summary
// and slide deck.
package realtime

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OFFIS-RIT/kiwi-live/pkg/ai"
	"github.com/OFFIS-RIT/kiwi-live/pkg/bounded"
	"github.com/OFFIS-RIT/kiwi-live/pkg/common"
	"github.com/OFFIS-RIT/kiwi-live/pkg/events"
	"github.com/OFFIS-RIT/kiwi-live/pkg/graph"
	"github.com/OFFIS-RIT/kiwi-live/pkg/logger"
	"github.com/OFFIS-RIT/kiwi-live/pkg/metrics"
	"github.com/OFFIS-RIT/kiwi-live/pkg/schedule"
	"github.com/OFFIS-RIT/kiwi-live/pkg/transcript"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	// WordThreshold is the number of new words that triggers a cycle.
	WordThreshold int
	// ContextFragments is the size of the rolling fragment window.
	ContextFragments     int
	MaxInsightsPerMinute int
	QuotaWindow          time.Duration
	ConfidenceThreshold  float64
	// BufferKeepChars is how much of the buffer survives a cycle.
	BufferKeepChars  int
	InsightHistory   int
	InsightTTL       time.Duration
	JargonCacheSize  int
	JargonTTL        time.Duration
	JargonComplexity float64
	SummaryInterval  time.Duration
	SlidesInterval   time.Duration
	SummaryMaxWords  int
	CycleTimeout     time.Duration
	// SummaryThinking is the thinking mode or reasoning effort for summary
	// and slides calls. Empty leaves the backend default.
	SummaryThinking string
}

func DefaultConfig() Config {
	return Config{
		WordThreshold:        40,
		ContextFragments:     10,
		MaxInsightsPerMinute: 8,
		QuotaWindow:          time.Minute,
		ConfidenceThreshold:  0.7,
		BufferKeepChars:      3000,
		InsightHistory:       50,
		InsightTTL:           30 * time.Minute,
		JargonCacheSize:      200,
		JargonTTL:            2 * time.Hour,
		JargonComplexity:     0.6,
		SummaryInterval:      60 * time.Second,
		SlidesInterval:       600 * time.Second,
		SummaryMaxWords:      150,
		CycleTimeout:         90 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.WordThreshold <= 0 {
		c.WordThreshold = d.WordThreshold
	}
	if c.ContextFragments <= 0 {
		c.ContextFragments = d.ContextFragments
	}
	if c.MaxInsightsPerMinute <= 0 {
		c.MaxInsightsPerMinute = d.MaxInsightsPerMinute
	}
	if c.QuotaWindow <= 0 {
		c.QuotaWindow = d.QuotaWindow
	}
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = d.ConfidenceThreshold
	}
	if c.BufferKeepChars <= 0 {
		c.BufferKeepChars = d.BufferKeepChars
	}
	if c.InsightHistory <= 0 {
		c.InsightHistory = d.InsightHistory
	}
	if c.InsightTTL <= 0 {
		c.InsightTTL = d.InsightTTL
	}
	if c.JargonCacheSize <= 0 {
		c.JargonCacheSize = d.JargonCacheSize
	}
	if c.JargonTTL <= 0 {
		c.JargonTTL = d.JargonTTL
	}
	if c.JargonComplexity <= 0 {
		c.JargonComplexity = d.JargonComplexity
	}
	if c.SummaryInterval <= 0 {
		c.SummaryInterval = d.SummaryInterval
	}
	if c.SlidesInterval <= 0 {
		c.SlidesInterval = d.SlidesInterval
	}
	if c.SummaryMaxWords <= 0 {
		c.SummaryMaxWords = d.SummaryMaxWords
	}
	if c.CycleTimeout <= 0 {
		c.CycleTimeout = d.CycleTimeout
	}
	return c
}

// Stats is a point-in-time view of the analyzer.
type Stats struct {
	BufferChars     int  `json:"buffer_chars"`
	PendingWords    int  `json:"pending_words"`
	Processing      bool `json:"processing"`
	Cycles          int  `json:"cycles"`
	InsightsEmitted int  `json:"insights_emitted"`
	QuotaRemaining  int  `json:"quota_remaining"`
}

// Analyzer owns the realtime buffer of one session. It runs at most one
// cycle at a time, independently of the chunk pipeline.
type Analyzer struct {
	client ai.Client
	graph  *graph.Builder
	bus    *events.Bus
	clock  schedule.Clock
	cfg    Config
	log    logger.ComponentLogger

	mu          sync.Mutex
	buffer      string
	pending     int
	fragments   *bounded.Ring[string]
	lastSummary string
	cycles      int
	emitted     int

	processing atomic.Bool
	stopped    atomic.Bool
	quota      *Quota
	insights   *bounded.Cache[string, common.Insight]
	jargon     *bounded.Cache[string, string]

	ctx    context.Context
	cancel context.CancelFunc
	timers schedule.Group
	wg     sync.WaitGroup
}

// New creates an analyzer. g may be nil, in which case knowledge
// connections are computed but not recorded.
func New(client ai.Client, g *graph.Builder, bus *events.Bus, clock schedule.Clock, cfg Config) *Analyzer {
	if clock == nil {
		clock = schedule.NewRealClock()
	}
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Analyzer{
		client:    client,
		graph:     g,
		bus:       bus,
		clock:     clock,
		cfg:       cfg,
		log:       logger.Component("Realtime"),
		fragments: bounded.NewRing[string](cfg.ContextFragments),
		quota:     NewQuota(cfg.MaxInsightsPerMinute, cfg.QuotaWindow, clock.Now),
		insights: bounded.NewCache[string, common.Insight](
			cfg.InsightHistory, cfg.InsightTTL, bounded.WithClock(clock.Now),
		),
		jargon: bounded.NewCache[string, string](
			cfg.JargonCacheSize, cfg.JargonTTL, bounded.WithClock(clock.Now),
		),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start derives the analyzer context from ctx and arms the summary and
// slide timers.
func (a *Analyzer) Start(ctx context.Context) {
	a.mu.Lock()
	a.cancel()
	a.ctx, a.cancel = context.WithCancel(ctx)
	a.mu.Unlock()

	a.timers.Add(schedule.Every(a.clock, a.cfg.SummaryInterval, func() {
		a.GenerateExecutiveSummary(a.context())
	}))
	a.timers.Add(schedule.Every(a.clock, a.cfg.SlidesInterval, func() {
		a.GenerateSlides(a.context())
	}))
}

// Stop cancels the timers and any running cycle and waits for it to return.
// Nothing is emitted after Stop returned.
func (a *Analyzer) Stop() {
	a.mu.Lock()
	if a.stopped.Load() {
		a.mu.Unlock()
		return
	}
	a.stopped.Store(true)
	a.cancel()
	a.mu.Unlock()

	a.timers.StopAll()
	a.wg.Wait()
}

// Wait blocks until the cycle started by AddFragment, if any, finished.
func (a *Analyzer) Wait() {
	a.wg.Wait()
}

func (a *Analyzer) context() context.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ctx
}

// AddFragment appends text to the rolling buffer and starts a cycle in the
// background once enough new words arrived, no cycle is running and the
// insight quota is not exhausted.
func (a *Analyzer) AddFragment(text string) {
	if a.stopped.Load() {
		return
	}
	text = transcript.Normalize(text)
	if !transcript.IsInformative(text) {
		return
	}

	a.mu.Lock()
	if a.buffer == "" {
		a.buffer = text
	} else {
		a.buffer += " " + text
	}
	a.fragments.Push(text)
	a.pending += transcript.WordCount(text)
	ready := a.pending >= a.cfg.WordThreshold
	a.mu.Unlock()

	if !ready || a.quota.Exhausted() {
		return
	}
	if !a.processing.CompareAndSwap(false, true) {
		return
	}

	a.mu.Lock()
	if a.stopped.Load() {
		a.mu.Unlock()
		a.processing.Store(false)
		return
	}
	a.wg.Add(1)
	a.mu.Unlock()

	go func() {
		defer a.wg.Done()
		defer a.processing.Store(false)
		a.runCycle(a.context())
	}()
}

// RunCycle runs one analysis cycle on the caller's goroutine. It reports
// false without doing anything when a cycle is already running.
func (a *Analyzer) RunCycle(ctx context.Context) bool {
	if !a.processing.CompareAndSwap(false, true) {
		return false
	}
	defer a.processing.Store(false)
	a.runCycle(ctx)
	return true
}

type cycleInput struct {
	buffer  string
	recent  string
	earlier string
}

func (a *Analyzer) snapshot() cycleInput {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending = 0

	frags := a.fragments.Items()
	split := max(0, len(frags)-3)
	recent := strings.Join(frags[split:], " ")

	earlier := strings.TrimSpace(strings.TrimSuffix(a.buffer, recent))
	if earlier == a.buffer {
		earlier = strings.Join(frags[:split], " ")
	}

	return cycleInput{
		buffer:  a.buffer,
		recent:  recent,
		earlier: tailChars(earlier, 2000),
	}
}

func (a *Analyzer) runCycle(ctx context.Context) {
	in := a.snapshot()
	if strings.TrimSpace(in.buffer) == "" {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.CycleTimeout)
	defer cancel()

	start := a.clock.Now()
	var (
		contradictions []common.Insight
		jargon         []common.Insight
		insights       []common.Insight
		conn           connections
	)

	g := new(errgroup.Group)
	g.Go(func() error {
		contradictions = a.detectContradictions(ctx, in)
		return nil
	})
	g.Go(func() error {
		jargon = a.explainJargon(ctx, in)
		return nil
	})
	g.Go(func() error {
		insights = a.generateInsights(ctx, in)
		return nil
	})
	g.Go(func() error {
		conn = a.extractConnections(ctx, in)
		return nil
	})
	_ = g.Wait()

	if ctx.Err() != nil && a.stopped.Load() {
		return
	}

	emitted := 0
	for _, batch := range [][]common.Insight{contradictions, jargon, insights} {
		for _, ins := range batch {
			if a.publish(ins, in.recent) {
				emitted++
			}
		}
	}

	if a.graph != nil && len(conn.topics) > 0 {
		a.graph.AddTopicsFromText(conn.topics, conn.connections)
	}

	a.mu.Lock()
	a.cycles++
	a.emitted += emitted
	a.buffer = tailChars(a.buffer, a.cfg.BufferKeepChars)
	a.mu.Unlock()

	metrics.StageDuration.WithLabelValues("realtime").Observe(a.clock.Now().Sub(start).Seconds())
	a.log.Debug("cycle finished",
		"insights", emitted,
		"topics", len(conn.topics),
		"quota_remaining", a.quota.Remaining(),
	)
}

func insightKey(ins common.Insight) string {
	return ins.Type + "|" + strings.ToLower(strings.Join(strings.Fields(ins.Content), " "))
}

// publish applies the confidence gate, de-duplication and the rolling
// quota, in that order, and emits what passes.
func (a *Analyzer) publish(ins common.Insight, recent string) bool {
	if a.stopped.Load() {
		return false
	}
	if strings.TrimSpace(ins.Content) == "" {
		return false
	}
	if ins.Confidence < a.cfg.ConfidenceThreshold {
		metrics.InsightsRejected.WithLabelValues("confidence").Inc()
		a.log.Debug("insight below confidence threshold", "type", ins.Type, "confidence", ins.Confidence)
		return false
	}
	key := insightKey(ins)
	if a.insights.Has(key) {
		metrics.InsightsRejected.WithLabelValues("duplicate").Inc()
		return false
	}
	if !a.quota.Allow() {
		metrics.InsightsRejected.WithLabelValues("quota").Inc()
		a.log.Debug("insight quota exhausted", "type", ins.Type)
		return false
	}

	id, err := gonanoid.New()
	if err != nil {
		id = key
	}
	ins.ID = id
	ins.Timestamp = a.clock.Now()
	if ins.Context == "" {
		ins.Context = tailChars(recent, 300)
	}

	a.insights.Set(key, ins)
	if ins.Type == common.InsightJargon {
		a.jargon.Set(strings.ToLower(ins.Content), ins.Details)
	}

	metrics.InsightsEmitted.WithLabelValues(ins.Type).Inc()
	if a.bus != nil {
		a.bus.Emit(events.KindInsight, ins)
	}
	return true
}

// RecentInsights returns the retained insights, oldest first.
func (a *Analyzer) RecentInsights() []common.Insight {
	keys := a.insights.Keys()
	out := make([]common.Insight, 0, len(keys))
	for _, k := range keys {
		if ins, ok := a.insights.Get(k); ok {
			out = append(out, ins)
		}
	}
	return out
}

// Buffer returns the current rolling buffer.
func (a *Analyzer) Buffer() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.buffer
}

func (a *Analyzer) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Stats{
		BufferChars:     len(a.buffer),
		PendingWords:    a.pending,
		Processing:      a.processing.Load(),
		Cycles:          a.cycles,
		InsightsEmitted: a.emitted,
		QuotaRemaining:  a.quota.Remaining(),
	}
}

// tailChars keeps the last n bytes of s, moved forward to the next word
// boundary so no word is cut in half.
func tailChars(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := len(s) - n
	if i := strings.IndexByte(s[cut:], ' '); i >= 0 {
		cut += i + 1
	}
	return s[cut:]
}
