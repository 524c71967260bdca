// Package pipeline wires the conversation processing stages of one session:
// fragments are buffered into chunks, chunks are queued and run through topic
// extraction, the knowledge graph and research, while the realtime analyzer
// works on the same fragments independently.
package pipeline

import (
	"time"

	"github.com/OFFIS-RIT/kiwi-live/pkg/ai"
	"github.com/OFFIS-RIT/kiwi-live/pkg/graph"
	"github.com/OFFIS-RIT/kiwi-live/pkg/realtime"
	"github.com/OFFIS-RIT/kiwi-live/pkg/research"
	"github.com/OFFIS-RIT/kiwi-live/pkg/schedule"
)

// Config holds every tunable of a session. Zero values fall back to
// DefaultConfig.
type Config struct {
	// MinWordsPerChunk releases a chunk as soon as the buffer holds that many
	// words.
	MinWordsPerChunk int
	// MaxBufferWords is the hard cap of the chunk buffer.
	MaxBufferWords int
	// IdleTimeout releases whatever is buffered after that much silence.
	IdleTimeout time.Duration

	MaxQueueDepth  int
	QueueKeep      int
	InterItemDelay time.Duration

	// ContextWords is how much of the conversation before a chunk goes into
	// the extraction prompt.
	ContextWords       int
	ExtractionAttempts int
	// ExtractionTimeout bounds topic extraction of one chunk, all attempts
	// included. A chunk that runs into it is reported as failed.
	ExtractionTimeout time.Duration
	ResearchHistory   int

	MaintenanceInterval time.Duration

	Research research.Config
	Realtime realtime.Config
	Graph    graph.Config
}

func DefaultConfig() Config {
	return Config{
		MinWordsPerChunk:    8,
		MaxBufferWords:      100,
		IdleTimeout:         5 * time.Second,
		MaxQueueDepth:       10,
		QueueKeep:           5,
		InterItemDelay:      2 * time.Second,
		ContextWords:        50,
		ExtractionAttempts:  1,
		ExtractionTimeout:   60 * time.Second,
		ResearchHistory:     5,
		MaintenanceInterval: 5 * time.Minute,
		Research:            research.DefaultConfig(),
		Realtime:            realtime.DefaultConfig(),
		Graph:               graph.DefaultConfig(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MinWordsPerChunk <= 0 {
		c.MinWordsPerChunk = d.MinWordsPerChunk
	}
	if c.MaxBufferWords <= 0 {
		c.MaxBufferWords = d.MaxBufferWords
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = d.IdleTimeout
	}
	if c.MaxQueueDepth <= 0 {
		c.MaxQueueDepth = d.MaxQueueDepth
	}
	if c.QueueKeep <= 0 || c.QueueKeep > c.MaxQueueDepth {
		c.QueueKeep = min(d.QueueKeep, c.MaxQueueDepth)
	}
	if c.InterItemDelay <= 0 {
		c.InterItemDelay = d.InterItemDelay
	}
	if c.ContextWords <= 0 {
		c.ContextWords = d.ContextWords
	}
	if c.ExtractionAttempts <= 0 {
		c.ExtractionAttempts = d.ExtractionAttempts
	}
	if c.ExtractionTimeout <= 0 {
		c.ExtractionTimeout = d.ExtractionTimeout
	}
	if c.ResearchHistory <= 0 {
		c.ResearchHistory = d.ResearchHistory
	}
	if c.MaintenanceInterval <= 0 {
		c.MaintenanceInterval = d.MaintenanceInterval
	}
	return c
}

// Dependencies are the collaborators a session talks to.
type Dependencies struct {
	AI ai.Client
	// Providers are queried by the research stage. Without providers research
	// is skipped entirely.
	Providers []research.Provider
	Enricher  research.Enricher
	// Clock defaults to the real clock.
	Clock schedule.Clock
}
