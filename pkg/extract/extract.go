// Package extract turns a transcript chunk into topics, questions, terms,
// entities and challenges using the LLM collaborator.
package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/kiwi-live/internal/util"
	"github.com/OFFIS-RIT/kiwi-live/pkg/ai"
	"github.com/OFFIS-RIT/kiwi-live/pkg/common"
	"github.com/OFFIS-RIT/kiwi-live/pkg/logger"
	"github.com/OFFIS-RIT/kiwi-live/pkg/transcript"
)

// Extractor runs topic extraction for one session.
type Extractor struct {
	client   ai.Client
	attempts int
	opts     []ai.GenerateOption
	log      logger.ComponentLogger
}

// Option customises an Extractor.
type Option func(*Extractor)

// WithAttempts sets how often a failing LLM call is tried. Defaults to 1.
func WithAttempts(n int) Option {
	return func(e *Extractor) {
		e.attempts = n
	}
}

// WithGenerateOptions appends options to every extraction request.
func WithGenerateOptions(opts ...ai.GenerateOption) Option {
	return func(e *Extractor) {
		e.opts = append(e.opts, opts...)
	}
}

func New(client ai.Client, opts ...Option) *Extractor {
	e := &Extractor{
		client:   client,
		attempts: 1,
		log:      logger.Component("Extract"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type extractionAnswer struct {
	Topics     flexList `json:"topics"`
	Questions  flexList `json:"questions"`
	Terms      flexList `json:"terms"`
	Entities   flexList `json:"entities"`
	Challenges flexList `json:"challenges"`
}

// Extract asks the model for the topics of chunkText. recentContext is the
// tail of the conversation before the chunk.
//
// A transport failure is returned as an error. Malformed answers never are:
// they fall back to quoted phrases and list items found in the raw answer.
// Sentinel and placeholder topics are always filtered out.
func (e *Extractor) Extract(ctx context.Context, chunkText, recentContext string) (common.TopicExtraction, error) {
	chunkText = strings.TrimSpace(chunkText)
	if chunkText == "" {
		return common.TopicExtraction{}, nil
	}
	if strings.TrimSpace(recentContext) == "" {
		recentContext = "(start of conversation)"
	}

	prompt := fmt.Sprintf(ai.TopicExtractionPrompt, recentContext, chunkText)
	opts := append([]ai.GenerateOption{
		ai.WithSystemPrompts(ai.SystemPrompt),
		ai.WithJSONFormat(),
		ai.WithTemperature(0.2),
	}, e.opts...)

	raw, err := util.RetryWithContext(ctx, e.attempts, func(ctx context.Context) (string, error) {
		return e.client.GenerateCompletion(ctx, prompt, opts...)
	})
	if err != nil {
		return common.TopicExtraction{}, fmt.Errorf("topic extraction: %w", err)
	}

	var answer extractionAnswer
	res := ai.Decode(raw, &answer)
	var out common.TopicExtraction
	if res.OK() {
		out = common.TopicExtraction{
			Topics:     answer.Topics,
			Questions:  answer.Questions,
			Terms:      answer.Terms,
			Entities:   answer.Entities,
			Challenges: answer.Challenges,
		}
		if res.Status == ai.DecodeFallback {
			e.log.Debug("recovered malformed extraction answer")
		}
	} else {
		out = fallbackExtraction(raw)
		e.log.Warn("extraction answer was not JSON, using text fallback",
			"err", res.Err, "topics", len(out.Topics))
	}

	return sanitize(out), nil
}

func sanitize(t common.TopicExtraction) common.TopicExtraction {
	return common.TopicExtraction{
		Topics:     transcript.FilterTopics(t.Topics),
		Questions:  cleanList(t.Questions),
		Terms:      transcript.FilterTopics(t.Terms),
		Entities:   transcript.FilterTopics(t.Entities),
		Challenges: cleanList(t.Challenges),
	}
}

// cleanList drops empty and sentinel entries but keeps longer free text
// such as questions.
func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if !transcript.IsValidTopic(item) {
			continue
		}
		key := strings.ToLower(item)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}
