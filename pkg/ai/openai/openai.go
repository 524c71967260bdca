package openai

import (
	"sync"

	"github.com/OFFIS-RIT/kiwi-live/pkg/ai"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIClient implements ai.Client against any OpenAI compatible chat
// completions endpoint.
//
// An OpenAIClient should be created using NewOpenAIClient.
type OpenAIClient struct {
	model     string
	fastModel string
	chatURL   string

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	ChatClient *openai.Client
}

// NewOpenAIClientParams defines the configuration for NewOpenAIClient.
//
// Model is used for extraction, research synthesis and summaries. FastModel
// serves the high-frequency realtime analyses and defaults to Model.
type NewOpenAIClientParams struct {
	Model     string
	FastModel string

	ChatURL string
	ChatKey string
}

// NewOpenAIClient creates a client for the configured endpoint.
//
// Example:
//
//	client := openai.NewOpenAIClient(openai.NewOpenAIClientParams{
//		Model:   "gpt-4o-mini",
//		ChatKey: os.Getenv("OPENAI_API_KEY"),
//	})
func NewOpenAIClient(params NewOpenAIClientParams) *OpenAIClient {
	fast := params.FastModel
	if fast == "" {
		fast = params.Model
	}
	return &OpenAIClient{
		model:      params.Model,
		fastModel:  fast,
		chatURL:    params.ChatURL,
		ChatClient: newOpenaiClient(params.ChatURL, params.ChatKey),
	}
}

// FastModel returns the model name meant for low-latency calls.
func (c *OpenAIClient) FastModel() string {
	return c.fastModel
}

func newOpenaiClient(
	baseURL string,
	apiKey string,
) *openai.Client {
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}

	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(options...)

	return &client
}
