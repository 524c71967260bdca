// Package config loads the service configuration: built-in defaults, then an
// optional YAML file named by CONFIG_FILE, then environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/OFFIS-RIT/kiwi-live/internal/util"
	"github.com/OFFIS-RIT/kiwi-live/pkg/pipeline"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

var KnownProviders = []string{"arxiv", "news", "wikipedia", "stackexchange"}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	AI        AIConfig        `yaml:"ai"`
	Research  ResearchConfig  `yaml:"research"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Storage   StorageConfig   `yaml:"storage"`
	Messaging MessagingConfig `yaml:"messaging"`
}

type ServerConfig struct {
	Port           string `yaml:"port"`
	AuthURL        string `yaml:"auth_url"`
	MasterAPIKey   string `yaml:"-"`
	MasterUserID   int32  `yaml:"master_user_id"`
	MasterUserRole string `yaml:"master_user_role"`
	BodyLimit      string `yaml:"body_limit"`
}

type AIConfig struct {
	// Adapter is "openai" or "ollama".
	Adapter   string `yaml:"adapter"`
	Model     string `yaml:"model"`
	FastModel string `yaml:"fast_model"`
	URL       string `yaml:"url"`
	Key       string `yaml:"-"`
	// MaxConcurrent caps in-flight requests for the ollama adapter.
	MaxConcurrent int `yaml:"max_concurrent"`
}

type ResearchConfig struct {
	Providers         []string `yaml:"providers"`
	RequestsPerSecond float64  `yaml:"requests_per_second"`
	StackExchangeSite string   `yaml:"stackexchange_site"`
	// Enrich fetches the readable text of short source summaries.
	Enrich        bool          `yaml:"enrich"`
	EnrichTTL     time.Duration `yaml:"enrich_ttl"`
	EnrichEntries int           `yaml:"enrich_entries"`
}

type SessionsConfig struct {
	MaxIdle time.Duration `yaml:"max_idle"`
	// ReapSchedule is a standard five-field cron expression.
	ReapSchedule string `yaml:"reap_schedule"`
	// Archive stores the graph of every stopped session in S3.
	Archive bool `yaml:"archive"`
	// LeaseTTL bounds how long a crashed worker keeps its sessions claimed.
	// Leases need a database.
	LeaseTTL time.Duration `yaml:"lease_ttl"`
}

type StorageConfig struct {
	DatabaseURL string `yaml:"-"`
	Bucket      string `yaml:"bucket"`
}

type MessagingConfig struct {
	TranscriptQueue string `yaml:"transcript_queue"`
	EventExchange   string `yaml:"event_exchange"`
	// PublishEvents forwards every session event to EventExchange.
	PublishEvents bool `yaml:"publish_events"`
}

// PipelineConfig is the flat, file friendly view of pipeline.Config.
type PipelineConfig struct {
	MinWordsPerChunk    int           `yaml:"min_words_per_chunk"`
	MaxBufferWords      int           `yaml:"max_buffer_words"`
	IdleTimeout         time.Duration `yaml:"idle_timeout"`
	MaxQueueDepth       int           `yaml:"max_queue_depth"`
	QueueKeep           int           `yaml:"queue_keep"`
	InterItemDelay      time.Duration `yaml:"inter_item_delay"`
	ContextWords        int           `yaml:"context_words"`
	ExtractionAttempts  int           `yaml:"extraction_attempts"`
	ExtractionTimeout   time.Duration `yaml:"extraction_timeout"`
	ResearchHistory     int           `yaml:"research_history"`
	MaintenanceInterval time.Duration `yaml:"maintenance_interval"`

	MaxTopicsPerCycle int           `yaml:"max_topics_per_cycle"`
	ResearchCacheTTL  time.Duration `yaml:"research_cache_ttl"`
	ResearchCacheSize int           `yaml:"research_cache_size"`
	MaxSourceResults  int           `yaml:"max_source_results"`
	ResearchTimeout   time.Duration `yaml:"research_timeout"`

	WordThreshold        int           `yaml:"word_threshold"`
	ContextFragments     int           `yaml:"context_fragments"`
	MaxInsightsPerMinute int           `yaml:"max_insights_per_minute"`
	ConfidenceThreshold  float64       `yaml:"confidence_threshold"`
	BufferKeepChars      int           `yaml:"buffer_keep_chars"`
	SummaryInterval      time.Duration `yaml:"summary_interval"`
	SlidesInterval       time.Duration `yaml:"slides_interval"`
	SummaryThinking      string        `yaml:"summary_thinking"`

	MaxNodes    int     `yaml:"max_nodes"`
	DecayFactor float64 `yaml:"decay_factor"`
}

// Default returns the built-in configuration.
func Default() Config {
	p := pipeline.DefaultConfig()
	return Config{
		Server: ServerConfig{
			Port:           "8080",
			MasterUserRole: "admin",
			BodyLimit:      "1M",
		},
		AI: AIConfig{
			Adapter:       "openai",
			Model:         "gpt-4o-mini",
			MaxConcurrent: 4,
		},
		Research: ResearchConfig{
			Providers:         []string{"wikipedia", "arxiv"},
			RequestsPerSecond: 1,
			StackExchangeSite: "stackoverflow",
			EnrichTTL:         time.Hour,
			EnrichEntries:     256,
		},
		Sessions: SessionsConfig{
			MaxIdle:      30 * time.Minute,
			ReapSchedule: "*/5 * * * *",
			LeaseTTL:     30 * time.Second,
		},
		Storage: StorageConfig{
			Bucket: "kiwi-live",
		},
		Messaging: MessagingConfig{
			TranscriptQueue: "transcript_queue",
			EventExchange:   "session_events",
			PublishEvents:   true,
		},
		Pipeline: PipelineConfig{
			MinWordsPerChunk:     p.MinWordsPerChunk,
			MaxBufferWords:       p.MaxBufferWords,
			IdleTimeout:          p.IdleTimeout,
			MaxQueueDepth:        p.MaxQueueDepth,
			QueueKeep:            p.QueueKeep,
			InterItemDelay:       p.InterItemDelay,
			ContextWords:         p.ContextWords,
			ExtractionAttempts:   p.ExtractionAttempts,
			ExtractionTimeout:    p.ExtractionTimeout,
			ResearchHistory:      p.ResearchHistory,
			MaintenanceInterval:  p.MaintenanceInterval,
			MaxTopicsPerCycle:    p.Research.MaxTopics,
			ResearchCacheTTL:     p.Research.CacheTTL,
			ResearchCacheSize:    p.Research.CacheSize,
			MaxSourceResults:     p.Research.MaxSources,
			ResearchTimeout:      p.Research.LLMTimeout,
			WordThreshold:        p.Realtime.WordThreshold,
			ContextFragments:     p.Realtime.ContextFragments,
			MaxInsightsPerMinute: p.Realtime.MaxInsightsPerMinute,
			ConfidenceThreshold:  p.Realtime.ConfidenceThreshold,
			BufferKeepChars:      p.Realtime.BufferKeepChars,
			SummaryInterval:      p.Realtime.SummaryInterval,
			SlidesInterval:       p.Realtime.SlidesInterval,
			MaxNodes:             p.Graph.MaxNodes,
			DecayFactor:          p.Graph.DecayFactor,
		},
	}
}

// Load reads .env, the optional CONFIG_FILE and the environment, and
// validates the result.
func Load() (Config, error) {
	util.LoadEnv()

	cfg := Default()
	if path := util.GetEnv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Port = util.GetEnvString("PORT", c.Server.Port)
	c.Server.AuthURL = util.GetEnvString("AUTH_URL", c.Server.AuthURL)
	c.Server.MasterAPIKey = util.GetEnv("MASTER_API_KEY")
	if id, err := strconv.ParseInt(util.GetEnv("MASTER_USER_ID"), 10, 32); err == nil {
		c.Server.MasterUserID = int32(id)
	}
	c.Server.MasterUserRole = util.GetEnvString("MASTER_USER_ROLE", c.Server.MasterUserRole)

	c.AI.Adapter = util.GetEnvString("AI_ADAPTER", c.AI.Adapter)
	c.AI.Model = util.GetEnvString("AI_CHAT_MODEL", c.AI.Model)
	c.AI.FastModel = util.GetEnvString("AI_CHAT_FAST_MODEL", c.AI.FastModel)
	c.AI.URL = util.GetEnvString("AI_CHAT_URL", c.AI.URL)
	c.AI.Key = util.GetEnv("AI_CHAT_KEY")
	c.AI.MaxConcurrent = util.GetEnvInt("AI_PARALLEL_REQ", c.AI.MaxConcurrent)

	c.Research.Providers = util.GetEnvList("RESEARCH_PROVIDERS", c.Research.Providers)
	c.Research.RequestsPerSecond = util.GetEnvNumeric("RESEARCH_RPS", c.Research.RequestsPerSecond)
	c.Research.Enrich = util.GetEnvBool("RESEARCH_ENRICH", c.Research.Enrich)

	c.Sessions.MaxIdle = util.GetEnvDuration("SESSION_MAX_IDLE", c.Sessions.MaxIdle)
	c.Sessions.ReapSchedule = util.GetEnvString("SESSION_REAP_SCHEDULE", c.Sessions.ReapSchedule)
	c.Sessions.Archive = util.GetEnvBool("SESSION_ARCHIVE", c.Sessions.Archive)
	c.Sessions.LeaseTTL = util.GetEnvDuration("SESSION_LEASE_TTL", c.Sessions.LeaseTTL)

	c.Storage.DatabaseURL = util.GetEnv("DATABASE_URL")
	c.Storage.Bucket = util.GetEnvString("AWS_BUCKET", c.Storage.Bucket)

	c.Messaging.PublishEvents = util.GetEnvBool("PUBLISH_EVENTS", c.Messaging.PublishEvents)

	p := &c.Pipeline
	p.MinWordsPerChunk = util.GetEnvInt("PIPELINE_MIN_WORDS", p.MinWordsPerChunk)
	p.MaxBufferWords = util.GetEnvInt("PIPELINE_MAX_WORDS", p.MaxBufferWords)
	p.IdleTimeout = util.GetEnvDuration("PIPELINE_IDLE_TIMEOUT", p.IdleTimeout)
	p.MaxQueueDepth = util.GetEnvInt("PIPELINE_MAX_QUEUE", p.MaxQueueDepth)
	p.InterItemDelay = util.GetEnvDuration("PIPELINE_ITEM_DELAY", p.InterItemDelay)
	p.ExtractionTimeout = util.GetEnvDuration("PIPELINE_EXTRACTION_TIMEOUT", p.ExtractionTimeout)
	p.ResearchTimeout = util.GetEnvDuration("RESEARCH_LLM_TIMEOUT", p.ResearchTimeout)
	p.WordThreshold = util.GetEnvInt("REALTIME_WORD_THRESHOLD", p.WordThreshold)
	p.MaxInsightsPerMinute = util.GetEnvInt("REALTIME_MAX_INSIGHTS", p.MaxInsightsPerMinute)
	p.ConfidenceThreshold = util.GetEnvNumeric("REALTIME_CONFIDENCE", p.ConfidenceThreshold)
	p.SummaryThinking = util.GetEnvString("REALTIME_SUMMARY_THINKING", p.SummaryThinking)
	p.MaxNodes = util.GetEnvInt("GRAPH_MAX_NODES", p.MaxNodes)
}

// Validate reports every inconsistent setting at once.
func (c Config) Validate() error {
	var errs []error

	if port, err := strconv.Atoi(c.Server.Port); err != nil || port <= 0 || port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %q", c.Server.Port))
	}
	switch c.AI.Adapter {
	case "openai", "ollama":
	default:
		errs = append(errs, fmt.Errorf("unknown ai adapter %q", c.AI.Adapter))
	}
	if c.AI.Model == "" {
		errs = append(errs, errors.New("ai model is required"))
	}
	for _, name := range c.Research.Providers {
		if !slices.Contains(KnownProviders, name) {
			errs = append(errs, fmt.Errorf("unknown research provider %q", name))
		}
	}
	if c.Sessions.ReapSchedule != "" {
		if _, err := cron.ParseStandard(c.Sessions.ReapSchedule); err != nil {
			errs = append(errs, fmt.Errorf("invalid reap schedule: %w", err))
		}
	}

	p := c.Pipeline
	if p.MinWordsPerChunk > 0 && p.MaxBufferWords > 0 && p.MaxBufferWords < p.MinWordsPerChunk {
		errs = append(errs, fmt.Errorf("max_buffer_words %d is below min_words_per_chunk %d", p.MaxBufferWords, p.MinWordsPerChunk))
	}
	if p.QueueKeep > p.MaxQueueDepth && p.MaxQueueDepth > 0 {
		errs = append(errs, fmt.Errorf("queue_keep %d exceeds max_queue_depth %d", p.QueueKeep, p.MaxQueueDepth))
	}
	if p.ConfidenceThreshold < 0 || p.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("confidence_threshold %v is outside [0,1]", p.ConfidenceThreshold))
	}
	if p.DecayFactor < 0 || p.DecayFactor > 1 {
		errs = append(errs, fmt.Errorf("decay_factor %v is outside [0,1]", p.DecayFactor))
	}

	return errors.Join(errs...)
}

// PipelineConfig maps the flat settings onto pipeline.Config. Zero values
// keep the pipeline defaults.
func (c Config) PipelineConfig() pipeline.Config {
	out := pipeline.DefaultConfig()
	p := c.Pipeline

	setInt(&out.MinWordsPerChunk, p.MinWordsPerChunk)
	setInt(&out.MaxBufferWords, p.MaxBufferWords)
	setDuration(&out.IdleTimeout, p.IdleTimeout)
	setInt(&out.MaxQueueDepth, p.MaxQueueDepth)
	setInt(&out.QueueKeep, p.QueueKeep)
	setDuration(&out.InterItemDelay, p.InterItemDelay)
	setInt(&out.ContextWords, p.ContextWords)
	setInt(&out.ExtractionAttempts, p.ExtractionAttempts)
	setDuration(&out.ExtractionTimeout, p.ExtractionTimeout)
	setInt(&out.ResearchHistory, p.ResearchHistory)
	setDuration(&out.MaintenanceInterval, p.MaintenanceInterval)

	setInt(&out.Research.MaxTopics, p.MaxTopicsPerCycle)
	setDuration(&out.Research.CacheTTL, p.ResearchCacheTTL)
	setInt(&out.Research.CacheSize, p.ResearchCacheSize)
	setInt(&out.Research.MaxSources, p.MaxSourceResults)
	setDuration(&out.Research.LLMTimeout, p.ResearchTimeout)

	setInt(&out.Realtime.WordThreshold, p.WordThreshold)
	setInt(&out.Realtime.ContextFragments, p.ContextFragments)
	setInt(&out.Realtime.MaxInsightsPerMinute, p.MaxInsightsPerMinute)
	if p.ConfidenceThreshold > 0 {
		out.Realtime.ConfidenceThreshold = p.ConfidenceThreshold
	}
	setInt(&out.Realtime.BufferKeepChars, p.BufferKeepChars)
	setDuration(&out.Realtime.SummaryInterval, p.SummaryInterval)
	setDuration(&out.Realtime.SlidesInterval, p.SlidesInterval)
	if p.SummaryThinking != "" {
		out.Realtime.SummaryThinking = p.SummaryThinking
	}

	setInt(&out.Graph.MaxNodes, p.MaxNodes)
	if p.DecayFactor > 0 {
		out.Graph.DecayFactor = p.DecayFactor
	}
	return out
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}
