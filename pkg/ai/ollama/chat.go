package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"

	"github.com/zaldivarmena/mindy/pkg/ai"

	"github.com/ollama/ollama/api"
	"github.com/pkoukk/tiktoken-go"
)

const (
	defaultContext = 4096
	// contextHeadroom leaves room for the answer on top of the prompt.
	contextHeadroom = 2048
)

// countTokens estimates prompt size with the o200k tokenizer.
var countTokens = func(s string) (int, error) {
	enc, err := tiktoken.GetEncoding("o200k_base")
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(s, nil, nil)), nil
}

// contextWindow estimates the num_ctx needed for prompt, or 0 when the
// server default suffices.
func contextWindow(prompt string) (int, error) {
	n, err := countTokens(prompt)
	if err != nil {
		return 0, err
	}
	tokens := n + contextHeadroom
	if tokens <= defaultContext {
		return 0, nil
	}
	return tokens, nil
}

func (c *ContentOllamaClient) newRequest(prompt string, options ai.GenerateOptions) (*api.ChatRequest, error) {
	msgs := make([]api.Message, 0, len(options.SystemPrompts)+1)
	for _, sys := range options.SystemPrompts {
		msgs = append(msgs, api.Message{Role: "system", Content: sys})
	}
	msgs = append(msgs, api.Message{Role: "user", Content: prompt})

	stream := false
	req := &api.ChatRequest{
		Model:    options.Model,
		Messages: msgs,
		Stream:   &stream,
		Options:  map[string]any{"temperature": options.Temperature},
	}
	if options.Thinking != "" {
		req.Think = &api.ThinkValue{Value: options.Thinking}
	}

	numCtx, err := contextWindow(prompt)
	if err != nil {
		return nil, err
	}
	if numCtx > 0 {
		req.Options["num_ctx"] = numCtx
	}
	return req, nil
}

func (c *ContentOllamaClient) chat(ctx context.Context, req *api.ChatRequest) (string, error) {
	if err := c.reqLock.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer c.reqLock.Release(1)

	var final api.ChatResponse
	if err := c.Client.Chat(ctx, req, func(cr api.ChatResponse) error {
		final.Message.Content += cr.Message.Content
		if cr.Done {
			final.Done = true
			final.Metrics = cr.Metrics
		}
		return nil
	}); err != nil {
		return "", err
	}

	c.metrics.Add(ai.ModelMetrics{
		InputTokens:  final.Metrics.PromptEvalCount,
		OutputTokens: final.Metrics.EvalCount,
		TotalTokens:  final.Metrics.PromptEvalCount + final.Metrics.EvalCount,
		DurationMs:   final.Metrics.TotalDuration.Milliseconds(),
	})
	if final.Message.Content == "" {
		return "", errors.New("empty response from model")
	}
	return final.Message.Content, nil
}

// GenerateCompletion sends a single-turn prompt and returns assistant text.
func (c *ContentOllamaClient) GenerateCompletion(
	ctx context.Context,
	prompt string,
	opts ...ai.GenerateOption,
) (string, error) {
	options := ai.ApplyOptions(ai.GenerateOptions{Model: c.model, Temperature: 0.3}, opts...)
	req, err := c.newRequest(prompt, options)
	if err != nil {
		return "", err
	}
	return c.chat(ctx, req)
}

// GenerateCompletionWithFormat enforces a JSON schema and unmarshals into out.
func (c *ContentOllamaClient) GenerateCompletionWithFormat(
	ctx context.Context,
	name string,
	description string,
	prompt string,
	out any,
	opts ...ai.GenerateOption,
) error {
	rv := reflect.ValueOf(out)
	if out == nil || rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errors.New("out must be a non-nil pointer")
	}

	format, err := json.Marshal(ai.GenerateSchema(out))
	if err != nil {
		return err
	}

	options := ai.ApplyOptions(ai.GenerateOptions{Model: c.model, Temperature: 0.1}, opts...)
	req, err := c.newRequest(prompt, options)
	if err != nil {
		return err
	}
	req.Format = json.RawMessage(format)

	content, err := c.chat(ctx, req)
	if err != nil {
		return err
	}
	return ai.UnmarshalFlexible(ai.StripCodeFences(content), out)
}

// LoadModel preloads a model into memory to reduce latency on subsequent requests.
func (c *ContentOllamaClient) LoadModel(ctx context.Context, opts ...ai.GenerateOption) error {
	options := ai.ApplyOptions(ai.GenerateOptions{Model: c.model}, opts...)
	return c.Client.Chat(ctx, &api.ChatRequest{Model: options.Model}, func(api.ChatResponse) error {
		return nil
	})
}
