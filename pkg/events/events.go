// Package events is the observer surface of a conversation session. Every
// stage publishes what it produced on a Bus and any number of listeners
// (websocket clients, the AMQP publisher, the event store) subscribe to it.
package events

import (
	"time"

	"github.com/OFFIS-RIT/kiwi-live/pkg/common"
)

// Kind names one type of emitted event.
type Kind string

const (
	KindChunk           Kind = "chunk"
	KindTopics          Kind = "topics"
	KindResearch        Kind = "research"
	KindInsight         Kind = "realtime-insight"
	KindSummary         Kind = "executive-summary-updated"
	KindSlides          Kind = "slides-generated"
	KindGraphUpdated    Kind = "knowledge-graph-updated"
	KindTopicAdded      Kind = "topic-added"
	KindConnectionAdded Kind = "connection-added"
	KindError           Kind = "error"
)

// Kinds lists every event kind in a stable order.
var Kinds = []Kind{
	KindChunk,
	KindTopics,
	KindResearch,
	KindInsight,
	KindSummary,
	KindSlides,
	KindGraphUpdated,
	KindTopicAdded,
	KindConnectionAdded,
	KindError,
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Event is a single emitted notification. Payload holds one of the payload
// types below, depending on Kind.
type Event struct {
	Kind      Kind      `json:"kind"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// Payload of KindChunk.
type ChunkPayload = common.Chunk

// TopicsPayload is emitted once topics were extracted from a chunk.
type TopicsPayload struct {
	ChunkID    string                 `json:"chunk_id"`
	Extraction common.TopicExtraction `json:"extraction"`
}

// ResearchPayload carries every topic summary produced for one chunk.
type ResearchPayload struct {
	ChunkID   string                   `json:"chunk_id"`
	Summaries []common.ResearchSummary `json:"summaries"`
}

// Payload of KindInsight.
type InsightPayload = common.Insight

// Payload of KindSummary.
type SummaryPayload = common.ExecutiveSummary

type SlidesPayload struct {
	Slides      []common.Slide `json:"slides"`
	GeneratedAt time.Time      `json:"generated_at"`
}

type GraphUpdatedPayload struct {
	Nodes int `json:"nodes"`
	Edges int `json:"edges"`
}

type TopicAddedPayload struct {
	ID       string  `json:"id"`
	Label    string  `json:"label"`
	Category string  `json:"category"`
	Weight   float64 `json:"weight"`
}

type ConnectionAddedPayload struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Type   string  `json:"type"`
	Weight float64 `json:"weight"`
}

// ErrorPayload reports a pipeline-level failure. Per-topic or per-provider
// failures never produce one.
type ErrorPayload struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}
