// Package metrics holds the Prometheus instrumentation of the conversation
// pipeline. Collectors are usable right away; they only become visible on
// /metrics once Handler or Registry was called.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kiwi_live"

var (
	registry     = prometheus.NewRegistry()
	registryOnce sync.Once

	// Chunk pipeline
	ChunksEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_emitted_total",
			Help:      "Chunks released by the chunk buffer, by trigger",
		},
		[]string{"trigger"},
	)
	ChunksProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_processed_total",
			Help:      "Chunks that went through topic extraction and research",
		},
	)
	QueueDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_dropped_total",
			Help:      "Chunks dropped from the analysis queue under overload",
		},
	)
	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time per pipeline stage",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"stage"},
	)

	// Collaborators
	LLMFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_failures_total",
			Help:      "Failed or unparseable LLM answers, by stage",
		},
		[]string{"stage"},
	)
	ProviderFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_failures_total",
			Help:      "Failed research provider searches, by provider",
		},
		[]string{"provider"},
	)
	ResearchCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "research_cache_lookups_total",
			Help:      "Research cache lookups, by result",
		},
		[]string{"result"},
	)

	// Realtime analyzer
	InsightsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "insights_emitted_total",
			Help:      "Insights emitted, by type",
		},
		[]string{"type"},
	)
	InsightsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "insights_rejected_total",
			Help:      "Insights not emitted, by reason",
		},
		[]string{"reason"},
	)

	// Graph and sessions
	GraphNodes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "graph_nodes",
			Help:      "Knowledge graph node count per session",
		},
		[]string{"session"},
	)
	GraphEdges = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "graph_edges",
			Help:      "Knowledge graph edge count per session",
		},
		[]string{"session"},
	)
	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Sessions currently running",
		},
	)
)

// Registry returns the private registry with every collector registered.
func Registry() *prometheus.Registry {
	registryOnce.Do(func() {
		registry.MustRegister(
			ChunksEmitted,
			ChunksProcessed,
			QueueDropped,
			StageDuration,
			LLMFailures,
			ProviderFailures,
			ResearchCache,
			InsightsEmitted,
			InsightsRejected,
			GraphNodes,
			GraphEdges,
			SessionsActive,
			prometheus.NewGoCollector(),
			prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		)
	})
	return registry
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry(), promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// ForgetSession drops the per-session series of a stopped session.
func ForgetSession(sessionID string) {
	GraphNodes.DeleteLabelValues(sessionID)
	GraphEdges.DeleteLabelValues(sessionID)
}
