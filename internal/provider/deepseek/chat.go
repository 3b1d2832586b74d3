// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quibli Contributors

package deepseek

import (
	"context"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/quibli-dev/quibli/internal/provider"
	quiberr "github.com/quibli-dev/quibli/pkg/errors"
)

// DefaultEndpoint is DeepSeek's OpenAI-compatible API base.
const DefaultEndpoint = "https://api.deepseek.com"

// Config holds DeepSeek chat client configuration.
type Config struct {
	APIKey      string
	BaseURL     string // optional, useful for testing against a mock server
	Model       string
	Temperature float64
}

// Compile-time interface check.
var _ provider.ChatStreamer = (*ChatClient)(nil)

// ChatClient implements provider.ChatStreamer using DeepSeek's
// OpenAI-compatible chat completions API.
type ChatClient struct {
	client      openaisdk.Client
	model       string
	temperature float64
}

// NewChatClient creates a DeepSeek chat client. Returns an error if the
// API key is missing.
func NewChatClient(cfg Config) (*ChatClient, error) {
	if cfg.APIKey == "" {
		return nil, quiberr.New(quiberr.CodeProviderRequestInvalid, "deepseek: missing api_key in config")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultEndpoint
	}
	model := cfg.Model
	if model == "" {
		model = "deepseek-chat"
	}

	client := openaisdk.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(baseURL),
	)

	return &ChatClient{client: client, model: model, temperature: cfg.Temperature}, nil
}

// StreamChat relays the conversation and forwards each content token to
// onToken as it arrives. An unsupported role fails before any upstream
// call is made.
func (c *ChatClient) StreamChat(ctx context.Context, messages []provider.ChatMessage, onToken func(token string)) error {
	msgs, err := convertMessages(messages)
	if err != nil {
		return err
	}

	params := openaisdk.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.model),
		Messages: msgs,
	}
	if c.temperature > 0 {
		params.Temperature = param.NewOpt(c.temperature)
	}

	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	for stream.Next() {
		chunk := stream.Current()
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				onToken(choice.Delta.Content)
			}
		}
	}

	if err := stream.Err(); err != nil {
		return quiberr.Wrapf(err, quiberr.CodeProviderUpstreamFailure, "deepseek: chat stream failed")
	}
	return nil
}

// convertMessages transforms relay messages into OpenAI SDK params.
func convertMessages(messages []provider.ChatMessage) ([]openaisdk.ChatCompletionMessageParamUnion, error) {
	result := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case "user":
			result = append(result, openaisdk.UserMessage(msg.Content))
		case "assistant":
			result = append(result, openaisdk.AssistantMessage(msg.Content))
		case "system":
			result = append(result, openaisdk.SystemMessage(msg.Content))
		default:
			return nil, quiberr.Errorf(quiberr.CodeProviderRequestInvalid, "deepseek: unsupported message role %q", msg.Role)
		}
	}
	return result, nil
}
