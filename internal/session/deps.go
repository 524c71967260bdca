package session

import (
	"fmt"
	"net/http"
	"time"

	"github.com/OFFIS-RIT/kiwi-live/internal/config"
	"github.com/OFFIS-RIT/kiwi-live/pkg/ai"
	oai "github.com/OFFIS-RIT/kiwi-live/pkg/ai/ollama"
	gai "github.com/OFFIS-RIT/kiwi-live/pkg/ai/openai"
	"github.com/OFFIS-RIT/kiwi-live/pkg/pipeline"
	"github.com/OFFIS-RIT/kiwi-live/pkg/research"
	"github.com/OFFIS-RIT/kiwi-live/pkg/research/provider"
	"github.com/OFFIS-RIT/kiwi-live/pkg/research/web"
)

// NewAIClient picks the backend named by cfg.Adapter.
func NewAIClient(cfg config.AIConfig) (ai.Client, error) {
	switch cfg.Adapter {
	case "ollama":
		client, err := oai.NewOllamaClient(oai.NewOllamaClientParams{
			Model:                 cfg.Model,
			FastModel:             cfg.FastModel,
			BaseURL:               cfg.URL,
			ApiKey:                cfg.Key,
			MaxConcurrentRequests: int64(cfg.MaxConcurrent),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama client: %w", err)
		}
		return client, nil
	case "openai", "":
		return gai.NewOpenAIClient(gai.NewOpenAIClientParams{
			Model:     cfg.Model,
			FastModel: cfg.FastModel,
			ChatURL:   cfg.URL,
			ChatKey:   cfg.Key,
		}), nil
	default:
		return nil, fmt.Errorf("unknown ai adapter %q", cfg.Adapter)
	}
}

// NewProviders builds the configured research providers in order.
func NewProviders(cfg config.ResearchConfig, client *http.Client) ([]research.Provider, error) {
	opts := provider.Options{
		HTTPClient:        client,
		RequestsPerSecond: cfg.RequestsPerSecond,
	}

	providers := make([]research.Provider, 0, len(cfg.Providers))
	for _, name := range cfg.Providers {
		switch name {
		case "arxiv":
			providers = append(providers, provider.NewArxiv(opts))
		case "news":
			providers = append(providers, provider.NewGoogleNews(opts))
		case "wikipedia":
			providers = append(providers, provider.NewWikipedia(opts))
		case "stackexchange":
			providers = append(providers, provider.NewStackExchange(opts, cfg.StackExchangeSite))
		default:
			return nil, fmt.Errorf("unknown research provider %q", name)
		}
	}
	return providers, nil
}

// NewDependencies wires the AI backend, research providers and the optional
// page enricher shared by every session.
func NewDependencies(cfg config.Config) (pipeline.Dependencies, error) {
	client, err := NewAIClient(cfg.AI)
	if err != nil {
		return pipeline.Dependencies{}, err
	}

	httpClient := &http.Client{Timeout: 20 * time.Second}
	providers, err := NewProviders(cfg.Research, httpClient)
	if err != nil {
		return pipeline.Dependencies{}, err
	}

	deps := pipeline.Dependencies{
		AI:        client,
		Providers: providers,
	}
	if cfg.Research.Enrich {
		deps.Enricher = web.NewEnricher(httpClient, cfg.Research.EnrichEntries, cfg.Research.EnrichTTL)
	}
	return deps, nil
}
