package ollama

import (
	"net/http"
	"net/url"
	"sync"

	"github.com/OFFIS-RIT/kiwi-live/pkg/ai"

	"github.com/ollama/ollama/api"
	"golang.org/x/sync/semaphore"
)

// OllamaClient implements ai.Client using a locally hosted Ollama server.
type OllamaClient struct {
	model     string
	fastModel string

	reqLock *semaphore.Weighted

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	Client *api.Client
}

// NewOllamaClientParams contains configuration options for creating a new OllamaClient.
type NewOllamaClientParams struct {
	Model     string
	FastModel string

	BaseURL string
	ApiKey  string

	// MaxConcurrentRequests caps in-flight requests to the server. Values
	// below one mean one.
	MaxConcurrentRequests int64
}

type headerTransport struct {
	headers map[string]string
	rt      http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// clone so original request isn't modified
	r := req.Clone(req.Context())
	for k, v := range t.headers {
		if r.Header.Get(k) == "" {
			r.Header.Set(k, v)
		}
	}
	return t.rt.RoundTrip(r)
}

// NewOllamaClient connects to the Ollama server at BaseURL, or the default
// address when BaseURL is empty.
func NewOllamaClient(params NewOllamaClientParams) (*OllamaClient, error) {
	var (
		u   *url.URL
		err error
	)

	if params.BaseURL != "" {
		u, err = url.Parse(params.BaseURL)
		if err != nil {
			return nil, err
		}
	} else {
		u = &url.URL{Scheme: "http", Host: "127.0.0.1:11434"}
	}

	httpClient := &http.Client{Transport: http.DefaultTransport}
	if params.ApiKey != "" {
		httpClient.Transport = &headerTransport{
			headers: map[string]string{
				"Authorization": "Bearer " + params.ApiKey,
			},
			rt: http.DefaultTransport,
		}
	}

	limit := params.MaxConcurrentRequests
	if limit < 1 {
		limit = 1
	}

	fast := params.FastModel
	if fast == "" {
		fast = params.Model
	}

	return &OllamaClient{
		model:     params.Model,
		fastModel: fast,
		reqLock:   semaphore.NewWeighted(limit),
		Client:    api.NewClient(u, httpClient),
	}, nil
}

// FastModel returns the model name meant for low-latency calls.
func (c *OllamaClient) FastModel() string {
	return c.fastModel
}
