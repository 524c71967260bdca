package extract

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/OFFIS-RIT/kiwi-live/pkg/ai"
	"github.com/OFFIS-RIT/kiwi-live/pkg/ai/aitest"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name          string
		answer        string
		wantTopics    []string
		wantQuestions []string
		wantTerms     []string
	}{
		{
			name:       "plain json",
			answer:     `{"topics":["MongoDB sharding","write concern"],"questions":[],"terms":["shard key"],"entities":["MongoDB"],"challenges":[]}`,
			wantTopics: []string{"MongoDB sharding", "write concern"},
			wantTerms:  []string{"shard key"},
		},
		{
			name:       "object items and sentinels",
			answer:     `{"topics":[{"name":"Kafka"},"BLANK_AUDIO","[object Object]",{"topic":"Consumer groups"},"kafka"]}`,
			wantTopics: []string{"Kafka", "Consumer groups"},
		},
		{
			name:       "comma separated string",
			answer:     `{"topics":"Raft, Paxos, NULL"}`,
			wantTopics: []string{"Raft", "Paxos"},
		},
		{
			name:          "fenced json",
			answer:        "```json\n{\"topics\":[\"gRPC\"],\"questions\":[\"Why not REST?\"]}\n```",
			wantTopics:    []string{"gRPC"},
			wantQuestions: []string{"Why not REST?"},
		},
		{
			name:          "prose fallback",
			answer:        "Topics:\n- Service mesh\n- \"Istio\"\nQuestions:\n1. How do we roll this out?\nThe team also mentioned \"sidecar injection\".",
			wantTopics:    []string{"Service mesh", "Istio", "sidecar injection"},
			wantQuestions: []string{"How do we roll this out?"},
		},
		{
			name:   "empty answer",
			answer: "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			stub := aitest.New()
			stub.Default = tc.answer
			e := New(stub)

			got, err := e.Extract(context.Background(), "some chunk text", "earlier words")
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			if !reflect.DeepEqual(got.Topics, nonNil(tc.wantTopics)) {
				t.Errorf("Topics = %q, want %q", got.Topics, tc.wantTopics)
			}
			if tc.wantQuestions != nil && !reflect.DeepEqual(got.Questions, tc.wantQuestions) {
				t.Errorf("Questions = %q, want %q", got.Questions, tc.wantQuestions)
			}
			if tc.wantTerms != nil && !reflect.DeepEqual(got.Terms, tc.wantTerms) {
				t.Errorf("Terms = %q, want %q", got.Terms, tc.wantTerms)
			}
		})
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func TestExtractPromptCarriesContextAndJSONMode(t *testing.T) {
	stub := aitest.New()
	stub.Default = `{"topics":[]}`
	e := New(stub)

	if _, err := e.Extract(context.Background(), "new chunk words", "previous tail words"); err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	calls := stub.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	if !strings.Contains(calls[0].Prompt, "new chunk words") || !strings.Contains(calls[0].Prompt, "previous tail words") {
		t.Errorf("prompt misses chunk or context:\n%s", calls[0].Prompt)
	}
	if !calls[0].Options.JSON {
		t.Error("extraction request not sent in JSON mode")
	}
	if sp := calls[0].Options.SystemPrompts; len(sp) != 1 || sp[0] != ai.SystemPrompt {
		t.Errorf("SystemPrompts = %q, want the shared system prompt", sp)
	}
}

func TestExtractTransportErrorIsReturned(t *testing.T) {
	stub := aitest.New().OnError("", errors.New("connection refused"))
	e := New(stub, WithAttempts(2))

	if _, err := e.Extract(context.Background(), "chunk", ""); err == nil {
		t.Fatal("Extract() error = nil, want transport error")
	}
	if n := len(stub.Calls()); n != 2 {
		t.Errorf("calls = %d, want 2 attempts", n)
	}
}

func TestExtractSkipsEmptyChunk(t *testing.T) {
	stub := aitest.New()
	if _, err := New(stub).Extract(context.Background(), "   ", "ctx"); err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(stub.Calls()) != 0 {
		t.Error("model called for an empty chunk")
	}
}
