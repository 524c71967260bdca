package realtime

import (
	"context"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/kiwi-live/pkg/ai"
	"github.com/OFFIS-RIT/kiwi-live/pkg/common"
	"github.com/OFFIS-RIT/kiwi-live/pkg/graph"
	"github.com/OFFIS-RIT/kiwi-live/pkg/metrics"
	"github.com/OFFIS-RIT/kiwi-live/pkg/transcript"
)

// ask sends a JSON-mode prompt and decodes the answer into out. Any failure
// is logged and reported as false; the caller treats it as "no insight".
func (a *Analyzer) ask(ctx context.Context, stage, prompt string, out any, opts ...ai.GenerateOption) bool {
	opts = append([]ai.GenerateOption{
		ai.WithSystemPrompts(ai.SystemPrompt),
		ai.WithJSONFormat(),
		ai.WithTemperature(0.3),
	}, opts...)
	raw, err := a.client.GenerateCompletion(ctx, prompt, opts...)
	if err != nil {
		metrics.LLMFailures.WithLabelValues(stage).Inc()
		a.log.Debug("analysis request failed", "stage", stage, "err", err)
		return false
	}

	res := ai.Decode(raw, out)
	if !res.OK() {
		metrics.LLMFailures.WithLabelValues(stage).Inc()
		a.log.Debug("analysis answer not usable", "stage", stage, "err", res.Err)
		return false
	}
	if res.Status == ai.DecodeFallback {
		a.log.Debug("recovered embedded JSON", "stage", stage)
	}
	return true
}

// fast selects the client's fast model for the per-cycle analyses.
func (a *Analyzer) fast() []ai.GenerateOption {
	if m := a.client.FastModel(); m != "" {
		return []ai.GenerateOption{ai.WithModel(m)}
	}
	return nil
}

type contradictionAnswer struct {
	Contradictions []struct {
		Statement   string  `json:"statement"`
		Contradicts string  `json:"contradicts"`
		Explanation string  `json:"explanation"`
		Confidence  float64 `json:"confidence"`
	} `json:"contradictions"`
}

func (a *Analyzer) detectContradictions(ctx context.Context, in cycleInput) []common.Insight {
	if strings.TrimSpace(in.earlier) == "" || strings.TrimSpace(in.recent) == "" {
		return nil
	}

	var answer contradictionAnswer
	if !a.ask(ctx, "contradiction", fmt.Sprintf(ai.ContradictionPrompt, in.earlier, in.recent), &answer, a.fast()...) {
		return nil
	}

	out := make([]common.Insight, 0, len(answer.Contradictions))
	for _, c := range answer.Contradictions {
		if strings.TrimSpace(c.Statement) == "" {
			continue
		}
		details := c.Explanation
		if c.Contradicts != "" {
			details = strings.TrimSpace(fmt.Sprintf("Earlier: %q. %s", c.Contradicts, c.Explanation))
		}
		out = append(out, common.Insight{
			Type:       common.InsightContradiction,
			Content:    c.Statement,
			Details:    details,
			Confidence: c.Confidence,
		})
	}
	return out
}

type jargonAnswer struct {
	Terms []struct {
		Term        string  `json:"term"`
		Explanation string  `json:"explanation"`
		Complexity  float64 `json:"complexity"`
		Confidence  float64 `json:"confidence"`
	} `json:"terms"`
}

func (a *Analyzer) explainJargon(ctx context.Context, in cycleInput) []common.Insight {
	known := a.jargon.Keys()
	explained := "(none)"
	if len(known) > 0 {
		explained = strings.Join(known, ", ")
	}

	var answer jargonAnswer
	if !a.ask(ctx, "jargon", fmt.Sprintf(ai.JargonPrompt, tailChars(in.buffer, 1500), explained), &answer, a.fast()...) {
		return nil
	}

	out := make([]common.Insight, 0, len(answer.Terms))
	for _, t := range answer.Terms {
		term := strings.TrimSpace(t.Term)
		if term == "" || strings.TrimSpace(t.Explanation) == "" {
			continue
		}
		if t.Complexity < a.cfg.JargonComplexity {
			continue
		}
		if a.jargon.Has(strings.ToLower(term)) {
			continue
		}
		out = append(out, common.Insight{
			Type:       common.InsightJargon,
			Content:    term,
			Details:    t.Explanation,
			Confidence: t.Confidence,
		})
	}
	return out
}

type insightAnswer struct {
	Insights []struct {
		Type       string  `json:"type"`
		Content    string  `json:"content"`
		Details    string  `json:"details"`
		Confidence float64 `json:"confidence"`
	} `json:"insights"`
}

var adHocTypes = map[string]bool{
	common.InsightStrategic:   true,
	common.InsightPerspective: true,
	common.InsightExample:     true,
	common.InsightQuestion:    true,
}

func (a *Analyzer) generateInsights(ctx context.Context, in cycleInput) []common.Insight {
	var answer insightAnswer
	if !a.ask(ctx, "insight", fmt.Sprintf(ai.InsightPrompt, tailChars(in.buffer, 2000)), &answer, a.fast()...) {
		return nil
	}

	out := make([]common.Insight, 0, len(answer.Insights))
	for _, i := range answer.Insights {
		typ := strings.ToLower(strings.TrimSpace(i.Type))
		if !adHocTypes[typ] {
			typ = common.InsightStrategic
		}
		out = append(out, common.Insight{
			Type:       typ,
			Content:    strings.TrimSpace(i.Content),
			Details:    strings.TrimSpace(i.Details),
			Confidence: i.Confidence,
		})
	}
	return out
}

type connectionAnswer struct {
	Topics []struct {
		Name     string `json:"name"`
		Category string `json:"category"`
	} `json:"topics"`
	Connections []struct {
		Source     string  `json:"source"`
		Target     string  `json:"target"`
		Type       string  `json:"type"`
		Confidence float64 `json:"confidence"`
	} `json:"connections"`
}

type connections struct {
	topics      []graph.Topic
	connections []graph.Connection
}

func (a *Analyzer) extractConnections(ctx context.Context, in cycleInput) connections {
	text := in.recent
	if text == "" {
		text = tailChars(in.buffer, 1500)
	}

	var answer connectionAnswer
	if !a.ask(ctx, "connections", fmt.Sprintf(ai.ConnectionsPrompt, text), &answer, a.fast()...) {
		return connections{}
	}

	var out connections
	for _, t := range answer.Topics {
		out.topics = append(out.topics, graph.Topic{
			Name:     t.Name,
			Category: strings.ToLower(strings.TrimSpace(t.Category)),
		})
	}
	for _, c := range answer.Connections {
		if !transcript.IsValidTopic(strings.TrimSpace(c.Source)) || !transcript.IsValidTopic(strings.TrimSpace(c.Target)) {
			continue
		}
		out.connections = append(out.connections, graph.Connection{
			Source:     c.Source,
			Target:     c.Target,
			Type:       strings.TrimSpace(c.Type),
			Confidence: c.Confidence,
		})
	}
	out.topics = filterGraphTopics(out.topics)
	return out
}
