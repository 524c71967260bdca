package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/OFFIS-RIT/kiwi-live/pkg/ai"
)

func completionServer(t *testing.T, content string, seen *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if seen != nil {
			_ = json.Unmarshal(body, seen)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1700000000,
			"model":   "test-model",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
			"usage": map[string]any{"prompt_tokens": 12, "completion_tokens": 4, "total_tokens": 16},
		})
	}))
}

func TestGenerateCompletionJSONMode(t *testing.T) {
	var seen map[string]any
	srv := completionServer(t, `{"topics":["Kafka"]}`, &seen)
	defer srv.Close()

	c := NewOpenAIClient(NewOpenAIClientParams{Model: "test-model", ChatURL: srv.URL + "/v1/", ChatKey: "k"})
	got, err := c.GenerateCompletion(context.Background(), "extract", ai.WithJSONFormat())
	if err != nil {
		t.Fatalf("GenerateCompletion() error = %v", err)
	}
	if got != `{"topics":["Kafka"]}` {
		t.Errorf("GenerateCompletion() = %q", got)
	}

	rf, _ := seen["response_format"].(map[string]any)
	if rf["type"] != "json_object" {
		t.Errorf("response_format = %v, want json_object", seen["response_format"])
	}

	m := c.GetMetrics()
	if m.Requests != 1 || m.TotalTokens != 16 {
		t.Errorf("GetMetrics() = %+v, want 1 request and 16 tokens", m)
	}
	c.ResetMetrics()
	if c.GetMetrics().Requests != 0 {
		t.Error("ResetMetrics() did not clear requests")
	}
}

func TestGenerateCompletionWithFormatDecodesFencedAnswer(t *testing.T) {
	srv := completionServer(t, "```json\n{\"queries\":[\"raft consensus\"]}\n```", nil)
	defer srv.Close()

	c := NewOpenAIClient(NewOpenAIClientParams{Model: "test-model", ChatURL: srv.URL + "/v1/", ChatKey: "k"})
	var out struct {
		Queries []string `json:"queries"`
	}
	if err := c.GenerateCompletionWithFormat(context.Background(), "queries", "search queries", "p", &out); err != nil {
		t.Fatalf("GenerateCompletionWithFormat() error = %v", err)
	}
	if len(out.Queries) != 1 || out.Queries[0] != "raft consensus" {
		t.Errorf("Queries = %v, want [raft consensus]", out.Queries)
	}
	if c.FastModel() != "test-model" {
		t.Errorf("FastModel() = %q, want fallback to Model", c.FastModel())
	}
}
