package ollama

import (
	"net/http"
	"net/url"

	"github.com/zaldivarmena/mindy/pkg/ai"

	"github.com/ollama/ollama/api"
	"golang.org/x/sync/semaphore"
)

// ContentOllamaClient implements ai.ContentAIClient using a local or remote
// Ollama server.
type ContentOllamaClient struct {
	model string

	reqLock *semaphore.Weighted
	metrics ai.MetricsTracker

	Client *api.Client
}

// NewContentOllamaClientParams contains configuration options for creating
// a new ContentOllamaClient.
type NewContentOllamaClientParams struct {
	Model string

	BaseURL string
	ApiKey  string

	// MaxConcurrentRequests bounds in-flight chat calls. Defaults to 1.
	MaxConcurrentRequests int64
}

type headerTransport struct {
	headers map[string]string
	rt      http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	for k, v := range t.headers {
		if r.Header.Get(k) == "" {
			r.Header.Set(k, v)
		}
	}
	return t.rt.RoundTrip(r)
}

// NewContentOllamaClient connects to the Ollama server at BaseURL, or the
// environment default when empty.
func NewContentOllamaClient(params NewContentOllamaClientParams) (*ContentOllamaClient, error) {
	var u *url.URL
	if params.BaseURL != "" {
		parsed, err := url.Parse(params.BaseURL)
		if err != nil {
			return nil, err
		}
		u = parsed
	}

	httpClient := &http.Client{Transport: http.DefaultTransport}
	if params.ApiKey != "" {
		httpClient.Transport = &headerTransport{
			headers: map[string]string{"Authorization": "Bearer " + params.ApiKey},
			rt:      http.DefaultTransport,
		}
	}

	var cli *api.Client
	if u != nil {
		cli = api.NewClient(u, httpClient)
	} else {
		env, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, err
		}
		cli = env
	}

	concurrency := params.MaxConcurrentRequests
	if concurrency <= 0 {
		concurrency = 1
	}

	return &ContentOllamaClient{
		model:   params.Model,
		reqLock: semaphore.NewWeighted(concurrency),
		Client:  cli,
	}, nil
}

// ResetMetrics clears all accumulated token and timing metrics to zero.
func (c *ContentOllamaClient) ResetMetrics() {
	c.metrics.Reset()
}

// GetMetrics returns the accumulated token usage and timing metrics since the last reset.
func (c *ContentOllamaClient) GetMetrics() ai.ModelMetrics {
	return c.metrics.Snapshot()
}

var _ ai.ContentAIClient = (*ContentOllamaClient)(nil)
