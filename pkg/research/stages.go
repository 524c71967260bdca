package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/kiwi-live/pkg/ai"
	"github.com/OFFIS-RIT/kiwi-live/pkg/common"
	"github.com/OFFIS-RIT/kiwi-live/pkg/metrics"
	"github.com/OFFIS-RIT/kiwi-live/pkg/transcript"
)

func (r *Researcher) llmContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.cfg.LLMTimeout)
}

type queryAnswer struct {
	Queries []string `json:"queries" jsonschema:"description=Search queries for the topic"`
}

// generateQueries falls back to the bare topic when the model gives nothing
// usable.
func (r *Researcher) generateQueries(ctx context.Context, topic, infoType, transcriptContext string) []string {
	prompt := fmt.Sprintf(ai.QueryGenerationPrompt, topic, infoType, transcript.LastWords(transcriptContext, 80))

	ctx, cancel := r.llmContext(ctx)
	defer cancel()

	var answer queryAnswer
	err := r.client.GenerateCompletionWithFormat(
		ctx, "search_queries", "Search queries for a conversation topic", prompt, &answer,
		ai.WithSystemPrompts(ai.SystemPrompt),
		ai.WithTemperature(0.3),
	)
	if err != nil {
		metrics.LLMFailures.WithLabelValues("queries").Inc()
		r.log.Debug("query generation failed, searching for topic", "topic", topic, "err", err)
		return []string{topic}
	}

	queries := make([]string, 0, r.cfg.MaxQueries)
	seen := make(map[string]struct{})
	for _, q := range answer.Queries {
		q = strings.TrimSpace(q)
		key := strings.ToLower(q)
		if q == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		queries = append(queries, q)
		if len(queries) == r.cfg.MaxQueries {
			break
		}
	}
	if len(queries) == 0 {
		return []string{topic}
	}
	return queries
}

func formatSources(sources []common.SourceResult, limit int) string {
	var b strings.Builder
	for i, s := range sources {
		if i >= limit {
			break
		}
		fmt.Fprintf(&b, "[%d] %s (%s, %s)\n%s\n%s\n\n", i+1, s.Title, s.Source, s.Type, s.URL, s.Summary)
	}
	return strings.TrimSpace(b.String())
}

func formatPrevious(previous []common.ResearchSummary) string {
	if len(previous) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for _, p := range previous {
		fmt.Fprintf(&b, "- %s: %s\n", p.Topic, truncateRunes(p.Synthesis, 300))
	}
	return strings.TrimSpace(b.String())
}

// synthesize falls back to stitching the top summaries together.
func (r *Researcher) synthesize(
	ctx context.Context,
	topic string,
	sources []common.SourceResult,
	previous []common.ResearchSummary,
) string {
	prompt := fmt.Sprintf(ai.SynthesisPrompt, topic, formatSources(sources, 5), formatPrevious(previous))
	ctx, cancel := r.llmContext(ctx)
	defer cancel()

	text, err := r.client.GenerateCompletion(ctx, prompt, ai.WithSystemPrompts(ai.SystemPrompt), ai.WithTemperature(0.4))
	text = strings.TrimSpace(text)
	if err == nil && text != "" {
		return text
	}

	metrics.LLMFailures.WithLabelValues("synthesis").Inc()
	r.log.Debug("synthesis failed, using source summaries", "topic", topic, "err", err)
	return fallbackSynthesis(sources)
}

func fallbackSynthesis(sources []common.SourceResult) string {
	parts := make([]string, 0, 3)
	for _, s := range sources {
		if len(parts) == 3 {
			break
		}
		text := strings.TrimSpace(s.Summary)
		if text == "" {
			text = strings.TrimSpace(s.Title)
		}
		if text == "" {
			continue
		}
		parts = append(parts, truncateRunes(text, 280))
	}
	return strings.Join(parts, " ")
}

type credibilityAnswer struct {
	Scores []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	} `json:"scores"`
}

// scoreCredibility rates the top sources in place. Sources the model skips
// get the default score.
func (r *Researcher) scoreCredibility(ctx context.Context, sources []common.SourceResult) {
	top := min(r.cfg.CredibilityTop, len(sources))
	if top == 0 {
		return
	}
	for i := range top {
		sources[i].Credibility = r.cfg.DefaultCredibility
	}

	ctx, cancel := r.llmContext(ctx)
	defer cancel()

	prompt := fmt.Sprintf(ai.CredibilityPrompt, formatSources(sources, top))
	var answer credibilityAnswer
	err := r.client.GenerateCompletionWithFormat(
		ctx, "credibility_scores", "Credibility score per numbered source", prompt, &answer,
		ai.WithSystemPrompts(ai.SystemPrompt),
		ai.WithTemperature(0),
	)
	if err != nil {
		metrics.LLMFailures.WithLabelValues("credibility").Inc()
		r.log.Debug("credibility scoring failed, using default", "err", err)
		return
	}

	for _, s := range answer.Scores {
		idx := s.Index - 1
		if idx < 0 || idx >= top {
			continue
		}
		sources[idx].Credibility = clamp01(s.Score)
	}
}

type followUpAnswer struct {
	Questions []string `json:"questions"`
}

// followUps falls back to no questions.
func (r *Researcher) followUps(ctx context.Context, topic, synthesis string) []string {
	if strings.TrimSpace(synthesis) == "" {
		return []string{}
	}

	ctx, cancel := r.llmContext(ctx)
	defer cancel()

	prompt := fmt.Sprintf(ai.FollowUpPrompt, topic, truncateRunes(synthesis, 1200))
	var answer followUpAnswer
	err := r.client.GenerateCompletionWithFormat(
		ctx, "follow_up_questions", "Follow-up questions about the research summary", prompt, &answer,
		ai.WithSystemPrompts(ai.SystemPrompt),
		ai.WithTemperature(0.5),
	)
	if err != nil {
		metrics.LLMFailures.WithLabelValues("follow_up").Inc()
		r.log.Debug("follow-up generation failed", "topic", topic, "err", err)
		return []string{}
	}

	out := make([]string, 0, 3)
	for _, q := range answer.Questions {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
		if len(out) == 3 {
			break
		}
	}
	return out
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
