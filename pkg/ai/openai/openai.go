package openai

import (
	"github.com/zaldivarmena/mindy/pkg/ai"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// ContentOpenAIClient implements ai.ContentAIClient against any OpenAI
// compatible chat completion endpoint.
//
// A ContentOpenAIClient should be created using NewContentOpenAIClient.
type ContentOpenAIClient struct {
	model   string
	chatURL string

	metrics ai.MetricsTracker

	ChatClient *openai.Client
}

// NewContentOpenAIClientParams configures a ContentOpenAIClient. An empty
// ChatURL targets the public OpenAI API.
type NewContentOpenAIClientParams struct {
	Model   string
	ChatURL string
	ChatKey string
}

// NewContentOpenAIClient creates a client for the configured endpoint.
//
// Example:
//
//	client := openai.NewContentOpenAIClient(openai.NewContentOpenAIClientParams{
//		Model:   "gpt-4o-mini",
//		ChatKey: os.Getenv("AI_CHAT_KEY"),
//	})
func NewContentOpenAIClient(params NewContentOpenAIClientParams) *ContentOpenAIClient {
	options := []option.RequestOption{
		option.WithAPIKey(params.ChatKey),
	}
	if params.ChatURL != "" {
		options = append(options, option.WithBaseURL(params.ChatURL))
	}
	client := openai.NewClient(options...)

	return &ContentOpenAIClient{
		model:      params.Model,
		chatURL:    params.ChatURL,
		ChatClient: &client,
	}
}

// ResetMetrics clears all accumulated token and timing metrics.
func (c *ContentOpenAIClient) ResetMetrics() {
	c.metrics.Reset()
}

// GetMetrics returns the metrics accumulated since the last reset.
func (c *ContentOpenAIClient) GetMetrics() ai.ModelMetrics {
	return c.metrics.Snapshot()
}

var _ ai.ContentAIClient = (*ContentOpenAIClient)(nil)
