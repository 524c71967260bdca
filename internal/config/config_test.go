package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoadLayersFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
ai:
  adapter: ollama
  model: llama3.1
research:
  providers: [news, stackexchange]
pipeline:
  min_words_per_chunk: 12
  idle_timeout: 8s
  max_nodes: 50
sessions:
  max_idle: 10m
`)
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PIPELINE_MIN_WORDS", "20")
	t.Setenv("AI_CHAT_KEY", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AI.Adapter != "ollama" || cfg.AI.Model != "llama3.1" || cfg.AI.Key != "secret" {
		t.Errorf("AI = %+v", cfg.AI)
	}
	if !slices.Equal(cfg.Research.Providers, []string{"news", "stackexchange"}) {
		t.Errorf("Providers = %v", cfg.Research.Providers)
	}
	if cfg.Pipeline.MinWordsPerChunk != 20 {
		t.Errorf("MinWordsPerChunk = %d, want the env override 20", cfg.Pipeline.MinWordsPerChunk)
	}
	if cfg.Pipeline.IdleTimeout != 8*time.Second {
		t.Errorf("IdleTimeout = %v, want 8s", cfg.Pipeline.IdleTimeout)
	}
	if cfg.Sessions.MaxIdle != 10*time.Minute {
		t.Errorf("MaxIdle = %v, want 10m", cfg.Sessions.MaxIdle)
	}
	if cfg.Pipeline.MaxBufferWords != 100 {
		t.Errorf("MaxBufferWords = %d, want the default 100", cfg.Pipeline.MaxBufferWords)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = "http" }, wantErr: "invalid port"},
		{name: "unknown adapter", mutate: func(c *Config) { c.AI.Adapter = "bard" }, wantErr: "unknown ai adapter"},
		{name: "unknown provider", mutate: func(c *Config) { c.Research.Providers = []string{"altavista"} }, wantErr: "unknown research provider"},
		{name: "bad cron", mutate: func(c *Config) { c.Sessions.ReapSchedule = "every minute" }, wantErr: "invalid reap schedule"},
		{name: "buffer below threshold", mutate: func(c *Config) { c.Pipeline.MaxBufferWords = 4 }, wantErr: "max_buffer_words"},
		{name: "keep above depth", mutate: func(c *Config) { c.Pipeline.QueueKeep = 20 }, wantErr: "queue_keep"},
		{name: "confidence out of range", mutate: func(c *Config) { c.Pipeline.ConfidenceThreshold = 1.5 }, wantErr: "confidence_threshold"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestPipelineConfigMapping(t *testing.T) {
	cfg := Default()
	cfg.Pipeline.MinWordsPerChunk = 15
	cfg.Pipeline.MaxTopicsPerCycle = 3
	cfg.Pipeline.MaxInsightsPerMinute = 2
	cfg.Pipeline.DecayFactor = 0.9
	cfg.Pipeline.MaxQueueDepth = 0
	cfg.Pipeline.ExtractionTimeout = 20 * time.Second
	cfg.Pipeline.ResearchTimeout = 0
	cfg.Pipeline.SummaryThinking = "medium"

	got := cfg.PipelineConfig()
	if got.MinWordsPerChunk != 15 {
		t.Errorf("MinWordsPerChunk = %d, want 15", got.MinWordsPerChunk)
	}
	if got.Research.MaxTopics != 3 {
		t.Errorf("Research.MaxTopics = %d, want 3", got.Research.MaxTopics)
	}
	if got.Realtime.MaxInsightsPerMinute != 2 {
		t.Errorf("Realtime.MaxInsightsPerMinute = %d, want 2", got.Realtime.MaxInsightsPerMinute)
	}
	if got.Graph.DecayFactor != 0.9 {
		t.Errorf("Graph.DecayFactor = %v, want 0.9", got.Graph.DecayFactor)
	}
	if got.MaxQueueDepth != 10 {
		t.Errorf("MaxQueueDepth = %d, want the default 10 for a zero setting", got.MaxQueueDepth)
	}
	if got.ExtractionTimeout != 20*time.Second {
		t.Errorf("ExtractionTimeout = %v, want 20s", got.ExtractionTimeout)
	}
	if got.Realtime.SummaryThinking != "medium" {
		t.Errorf("Realtime.SummaryThinking = %q, want medium", got.Realtime.SummaryThinking)
	}
	if got.Research.LLMTimeout != 45*time.Second {
		t.Errorf("Research.LLMTimeout = %v, want the default 45s", got.Research.LLMTimeout)
	}
}
