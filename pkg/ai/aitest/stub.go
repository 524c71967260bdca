// Package aitest provides a scripted ai.Client for tests.
package aitest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/OFFIS-RIT/kiwi-live/pkg/ai"
)

// Call records one request the stub received.
type Call struct {
	Prompt  string
	Options ai.GenerateOptions
}

type rule struct {
	match  string
	answer string
	err    error
}

// Stub answers prompts from rules matched by substring, first match wins.
// Prompts matching no rule get Default.
type Stub struct {
	mu      sync.Mutex
	rules   []rule
	calls   []Call
	metrics ai.ModelMetrics

	Default string
	// Fast is returned by FastModel.
	Fast string
	// BeforeCall runs before every answer, outside the stub's lock. Tests
	// use it to block a call or observe concurrency.
	BeforeCall func(ctx context.Context, prompt string)
}

func New() *Stub {
	return &Stub{}
}

// On answers prompts containing match with answer.
func (s *Stub) On(match, answer string) *Stub {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, rule{match: match, answer: answer})
	return s
}

// OnError fails prompts containing match with err.
func (s *Stub) OnError(match string, err error) *Stub {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, rule{match: match, err: err})
	return s
}

// Calls returns a copy of every recorded call.
func (s *Stub) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallsContaining counts calls whose prompt contains substr.
func (s *Stub) CallsContaining(substr string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if strings.Contains(c.Prompt, substr) {
			n++
		}
	}
	return n
}

func (s *Stub) answer(ctx context.Context, prompt string, opts []ai.GenerateOption) (string, error) {
	if s.BeforeCall != nil {
		s.BeforeCall(ctx, prompt)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Prompt: prompt, Options: ai.ApplyOptions(ai.GenerateOptions{}, opts...)})
	s.metrics.Requests++

	for _, r := range s.rules {
		if strings.Contains(prompt, r.match) {
			if r.err != nil {
				s.metrics.Failures++
			}
			return r.answer, r.err
		}
	}
	return s.Default, nil
}

func (s *Stub) GenerateCompletion(
	ctx context.Context,
	prompt string,
	opts ...ai.GenerateOption,
) (string, error) {
	return s.answer(ctx, prompt, opts)
}

func (s *Stub) GenerateCompletionWithFormat(
	ctx context.Context,
	name string,
	description string,
	prompt string,
	out any,
	opts ...ai.GenerateOption,
) error {
	raw, err := s.answer(ctx, prompt, opts)
	if err != nil {
		return err
	}
	if res := ai.Decode(raw, out); !res.OK() {
		return fmt.Errorf("decode %s: %w", name, res.Err)
	}
	return nil
}

func (s *Stub) FastModel() string {
	return s.Fast
}

func (s *Stub) ResetMetrics() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = ai.ModelMetrics{}
}

func (s *Stub) GetMetrics() ai.ModelMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics
}
