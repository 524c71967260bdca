package pipeline

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OFFIS-RIT/kiwi-live/pkg/bounded"
	"github.com/OFFIS-RIT/kiwi-live/pkg/common"
	"github.com/OFFIS-RIT/kiwi-live/pkg/events"
	"github.com/OFFIS-RIT/kiwi-live/pkg/extract"
	"github.com/OFFIS-RIT/kiwi-live/pkg/graph"
	"github.com/OFFIS-RIT/kiwi-live/pkg/logger"
	"github.com/OFFIS-RIT/kiwi-live/pkg/metrics"
	"github.com/OFFIS-RIT/kiwi-live/pkg/research"
	"github.com/OFFIS-RIT/kiwi-live/pkg/schedule"
	"github.com/OFFIS-RIT/kiwi-live/pkg/transcript"
)

const topicCategory = "topic"

// Processor runs one chunk through topic extraction, the knowledge graph and
// research, and publishes the results.
type Processor struct {
	extractor    *extract.Extractor
	researcher   *research.Researcher
	graph        *graph.Builder
	bus          *events.Bus
	clock        schedule.Clock
	contextWords int
	timeout      time.Duration
	log          logger.ComponentLogger

	mu       sync.Mutex
	history  string
	previous *bounded.Ring[common.ResearchSummary]

	processed atomic.Int64
	failed    atomic.Int64
}

// ProcessorOption customises a Processor.
type ProcessorOption func(*Processor)

// WithExtractionTimeout bounds the extraction call of every chunk. Zero
// leaves it bounded by the session context only.
func WithExtractionTimeout(d time.Duration) ProcessorOption {
	return func(p *Processor) {
		p.timeout = d
	}
}

// NewProcessor wires the chunk stages. researcher may be nil to skip
// research.
func NewProcessor(
	extractor *extract.Extractor,
	researcher *research.Researcher,
	g *graph.Builder,
	bus *events.Bus,
	clock schedule.Clock,
	contextWords, researchHistory int,
	opts ...ProcessorOption,
) *Processor {
	if clock == nil {
		clock = schedule.NewRealClock()
	}
	p := &Processor{
		extractor:    extractor,
		researcher:   researcher,
		graph:        g,
		bus:          bus,
		clock:        clock,
		contextWords: contextWords,
		previous:     bounded.NewRing[common.ResearchSummary](researchHistory),
		log:          logger.Component("Pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Processor) extract(ctx context.Context, text, recent string) (common.TopicExtraction, error) {
	if p.timeout <= 0 {
		return p.extractor.Extract(ctx, text, recent)
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.extractor.Extract(ctx, text, recent)
}

// Process handles one chunk. Only an extraction failure is reported, as an
// error event; every later stage degrades silently. An extraction that runs
// past its timeout counts as a failure, a cancelled session does not.
func (p *Processor) Process(ctx context.Context, chunk common.Chunk) {
	start := p.clock.Now()
	log := p.log.With("chunk", chunk.ID)

	p.mu.Lock()
	recent := p.history
	p.history = transcript.LastWords(strings.TrimSpace(p.history+" "+chunk.Text), p.contextWords)
	p.mu.Unlock()

	extraction, err := p.extract(ctx, chunk.Text, recent)
	metrics.StageDuration.WithLabelValues("extraction").Observe(p.clock.Now().Sub(start).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.failed.Add(1)
		metrics.LLMFailures.WithLabelValues("extraction").Inc()
		log.Warn("topic extraction failed", "err", err)
		p.emit(events.KindError, events.ErrorPayload{Stage: "topic-extraction", Message: err.Error()})
		return
	}
	if ctx.Err() != nil {
		return
	}

	p.emit(events.KindTopics, events.TopicsPayload{ChunkID: chunk.ID, Extraction: extraction})
	log.Info("topics extracted",
		"topics", len(extraction.Topics),
		"questions", len(extraction.Questions),
		"terms", len(extraction.Terms),
	)

	if len(extraction.Topics) > 0 && p.graph != nil {
		topics := make([]graph.Topic, 0, len(extraction.Topics))
		for _, t := range extraction.Topics {
			topics = append(topics, graph.Topic{Name: t, Category: topicCategory})
		}
		p.graph.AddTopicsFromText(topics, nil)
	}

	if len(extraction.Topics) > 0 && p.researcher != nil {
		p.research(ctx, chunk, recent, extraction.Topics)
	}

	p.processed.Add(1)
	metrics.ChunksProcessed.Inc()
	metrics.StageDuration.WithLabelValues("chunk").Observe(p.clock.Now().Sub(start).Seconds())
}

func (p *Processor) research(ctx context.Context, chunk common.Chunk, recent string, topics []string) {
	start := p.clock.Now()
	transcriptContext := strings.TrimSpace(recent + " " + chunk.Text)

	summaries := p.researcher.Research(ctx, topics, transcriptContext, p.previous.Items())
	metrics.StageDuration.WithLabelValues("research").Observe(p.clock.Now().Sub(start).Seconds())
	if ctx.Err() != nil || len(summaries) == 0 {
		return
	}

	for _, s := range summaries {
		p.previous.Push(s)
	}
	p.emit(events.KindResearch, events.ResearchPayload{ChunkID: chunk.ID, Summaries: summaries})
}

func (p *Processor) emit(kind events.Kind, payload any) {
	if p.bus != nil {
		p.bus.Emit(kind, payload)
	}
}

// Processed returns how many chunks completed extraction successfully.
func (p *Processor) Processed() int {
	return int(p.processed.Load())
}

// Failed returns how many chunks failed topic extraction.
func (p *Processor) Failed() int {
	return int(p.failed.Load())
}

// PreviousResearch returns the rolling research history, oldest first.
func (p *Processor) PreviousResearch() []common.ResearchSummary {
	return p.previous.Items()
}
