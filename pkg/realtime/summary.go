package realtime

import (
	"context"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/kiwi-live/pkg/ai"
	"github.com/OFFIS-RIT/kiwi-live/pkg/common"
	"github.com/OFFIS-RIT/kiwi-live/pkg/events"
	"github.com/OFFIS-RIT/kiwi-live/pkg/graph"
	"github.com/OFFIS-RIT/kiwi-live/pkg/metrics"
	"github.com/OFFIS-RIT/kiwi-live/pkg/transcript"
)

const slideCount = 3

type summaryAnswer struct {
	Summary    string   `json:"summary"`
	Highlights []string `json:"highlights"`
}

// GenerateExecutiveSummary refreshes the executive summary from the rolling
// buffer and emits it. It is a no-op on an empty buffer and reports whether
// a summary was emitted.
func (a *Analyzer) GenerateExecutiveSummary(ctx context.Context) (common.ExecutiveSummary, bool) {
	a.mu.Lock()
	buffer := a.buffer
	previous := a.lastSummary
	a.mu.Unlock()

	if strings.TrimSpace(buffer) == "" || a.stopped.Load() {
		return common.ExecutiveSummary{}, false
	}
	if previous == "" {
		previous = "(none yet)"
	}

	var answer summaryAnswer
	prompt := fmt.Sprintf(ai.ExecutiveSummaryPrompt, previous, buffer, a.cfg.SummaryMaxWords)
	if !a.ask(ctx, "summary", prompt, &answer, a.deliberate()...) {
		return common.ExecutiveSummary{}, false
	}
	text := limitWords(strings.TrimSpace(answer.Summary), a.cfg.SummaryMaxWords)
	if text == "" {
		metrics.LLMFailures.WithLabelValues("summary").Inc()
		return common.ExecutiveSummary{}, false
	}

	summary := common.ExecutiveSummary{
		Summary:     text,
		Highlights:  nonEmpty(answer.Highlights),
		GeneratedAt: a.clock.Now(),
	}

	a.mu.Lock()
	a.lastSummary = text
	a.mu.Unlock()

	if a.bus != nil && !a.stopped.Load() {
		a.bus.Emit(events.KindSummary, summary)
	}
	return summary, true
}

type slidesAnswer struct {
	Slides []common.Slide `json:"slides"`
}

// GenerateSlides builds the three slide deck from the rolling buffer and
// emits it. It is a no-op on an empty buffer.
func (a *Analyzer) GenerateSlides(ctx context.Context) ([]common.Slide, bool) {
	buffer := a.Buffer()
	if strings.TrimSpace(buffer) == "" || a.stopped.Load() {
		return nil, false
	}

	var answer slidesAnswer
	if !a.ask(ctx, "slides", fmt.Sprintf(ai.SlidesPrompt, buffer), &answer, a.deliberate()...) {
		return nil, false
	}

	slides := make([]common.Slide, 0, slideCount)
	for _, s := range answer.Slides {
		title := strings.TrimSpace(s.Title)
		bullets := nonEmpty(s.Bullets)
		if title == "" || len(bullets) == 0 {
			continue
		}
		slides = append(slides, common.Slide{Title: title, Bullets: bullets})
		if len(slides) == slideCount {
			break
		}
	}
	if len(slides) == 0 {
		return nil, false
	}

	if a.bus != nil && !a.stopped.Load() {
		a.bus.Emit(events.KindSlides, events.SlidesPayload{
			Slides:      slides,
			GeneratedAt: a.clock.Now(),
		})
	}
	return slides, true
}

func nonEmpty(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}

func limitWords(text string, n int) string {
	words := strings.Fields(text)
	if len(words) <= n {
		return text
	}
	return strings.Join(words[:n], " ") + "…"
}

// filterGraphTopics drops transcription artifacts before they reach the
// knowledge graph.
func filterGraphTopics(topics []graph.Topic) []graph.Topic {
	out := topics[:0]
	for _, t := range topics {
		t.Name = strings.TrimSpace(t.Name)
		if transcript.IsValidTopic(t.Name) {
			out = append(out, t)
		}
	}
	return out
}

// deliberate runs summaries and slides on the default model, with thinking
// when configured.
func (a *Analyzer) deliberate() []ai.GenerateOption {
	if a.cfg.SummaryThinking == "" {
		return nil
	}
	return []ai.GenerateOption{ai.WithThinking(a.cfg.SummaryThinking)}
}
