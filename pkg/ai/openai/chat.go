package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zaldivarmena/mindy/pkg/ai"
	"github.com/zaldivarmena/mindy/pkg/logger"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/shared"
)

func (c *ContentOpenAIClient) newBody(prompt string, options ai.GenerateOptions) openai.ChatCompletionNewParams {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(options.SystemPrompts)+1)
	for _, sp := range options.SystemPrompts {
		msgs = append(msgs, openai.SystemMessage(sp))
	}
	msgs = append(msgs, openai.UserMessage(prompt))

	body := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(options.Model),
		Messages:    msgs,
		Temperature: openai.Float(options.Temperature),
	}
	if options.Thinking != "" {
		// Reasoning models on the public API only accept temperature 1.
		if c.chatURL == "" {
			body.Temperature = openai.Float(1.0)
		}
		body.ReasoningEffort = shared.ReasoningEffort(options.Thinking)
	}
	return body
}

func (c *ContentOpenAIClient) complete(ctx context.Context, body openai.ChatCompletionNewParams) (string, error) {
	start := time.Now()
	response, err := c.ChatClient.Chat.Completions.New(ctx, body)
	if err != nil {
		return "", err
	}
	c.metrics.Add(ai.ModelMetrics{
		InputTokens:  int(response.Usage.PromptTokens),
		OutputTokens: int(response.Usage.CompletionTokens),
		TotalTokens:  int(response.Usage.TotalTokens),
		DurationMs:   time.Since(start).Milliseconds(),
	})

	if len(response.Choices) == 0 {
		return "", errors.New("no choices in response from model")
	}
	message := response.Choices[0].Message.Content
	if message == "" {
		return "", fmt.Errorf("empty response from model (finish_reason: %s)", response.Choices[0].FinishReason)
	}
	return message, nil
}

// GenerateCompletion sends a single-turn prompt and returns the answer text.
func (c *ContentOpenAIClient) GenerateCompletion(
	ctx context.Context,
	prompt string,
	opts ...ai.GenerateOption,
) (string, error) {
	options := ai.ApplyOptions(ai.GenerateOptions{Model: c.model, Temperature: 0.3}, opts...)
	return c.complete(ctx, c.newBody(prompt, options))
}

// GenerateCompletionWithFormat requests output matching the JSON schema of
// out and unmarshals the answer into it.
func (c *ContentOpenAIClient) GenerateCompletionWithFormat(
	ctx context.Context,
	name string,
	description string,
	prompt string,
	out any,
	opts ...ai.GenerateOption,
) error {
	options := ai.ApplyOptions(ai.GenerateOptions{Model: c.model, Temperature: 0.1}, opts...)
	body := c.newBody(prompt, options)
	body.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
			JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
				Name:        name,
				Description: openai.String(description),
				Schema:      ai.GenerateSchema(out),
				Strict:      openai.Bool(true),
			},
		},
	}

	message, err := c.complete(ctx, body)
	if err != nil {
		return err
	}
	if err := ai.UnmarshalFlexible(ai.StripCodeFences(message), out); err != nil {
		logger.Debug("[AI] structured output did not parse", "name", name, "err", err)
		return err
	}
	return nil
}

// LoadModel is a no-op for OpenAI as models are loaded on-demand.
func (c *ContentOpenAIClient) LoadModel(ctx context.Context, opts ...ai.GenerateOption) error {
	return nil
}
