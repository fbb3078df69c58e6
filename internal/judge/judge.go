// Package judge rates feedback with an OpenAI-compatible model, producing
// the same ratings an expert would enter.
package judge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pavelanni/athena-playground/internal/experiment"
	"github.com/pavelanni/athena-playground/internal/judge/prompts"
	"github.com/pavelanni/athena-playground/internal/model"
)

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api     *openai.Client
	model   string
	variant prompts.Variant
}

// New creates a judge client. An empty baseURL uses the OpenAI API.
func New(baseURL, apiKey, modelName, variant string) (*Client, error) {
	if variant == "" {
		variant = string(prompts.Standard)
	}
	if !prompts.IsValidVariant(variant) {
		return nil, model.Invalid(fmt.Sprintf("unknown prompt variant %q", variant))
	}
	if modelName == "" {
		return nil, model.Invalid("judge model is required")
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:     openai.NewClientWithConfig(config),
		model:   modelName,
		variant: prompts.Variant(variant),
	}, nil
}

type rateResult struct {
	Ratings map[string]int `json:"ratings"`
}

// Rate asks the model to rate feedbacks on every metric. The result maps
// metric id to a rating on the Likert scale.
func (c *Client) Rate(ctx context.Context, metrics []model.Metric, ex model.Exercise, sub model.Submission, feedbacks []model.Feedback) (map[string]int, error) {
	prompt, err := prompts.BuildRatePrompt(c.variant, metrics, ex, sub, feedbacks)
	if err != nil {
		return nil, err
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM rating API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("LLM returned no choices for rating")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM rating response", "exercise_id", ex.ID, "submission_id", sub.ID, "raw", raw)
	return parseRatings(raw, metrics)
}

// parseRatings decodes the model output and checks that every metric got a
// rating within range.
func parseRatings(raw string, metrics []model.Metric) (map[string]int, error) {
	var result rateResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("parse rating response: %w (raw: %s)", err, raw)
	}
	out := make(map[string]int, len(metrics))
	for _, m := range metrics {
		v, ok := result.Ratings[m.ID]
		if !ok {
			return nil, fmt.Errorf("rating response misses metric %q (raw: %s)", m.ID, raw)
		}
		if v < experiment.MinRating || v > experiment.MaxRating {
			return nil, fmt.Errorf("rating %d for metric %q out of range", v, m.ID)
		}
		out[m.ID] = v
	}
	return out, nil
}
