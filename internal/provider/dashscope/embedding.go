// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quibli Contributors

package dashscope

import (
	"context"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/quibli-dev/quibli/internal/provider"
	quiberr "github.com/quibli-dev/quibli/pkg/errors"
)

// DefaultEmbeddingEndpoint is DashScope's OpenAI-compatible API base.
const DefaultEmbeddingEndpoint = "https://dashscope.aliyuncs.com/compatible-mode/v1"

// EmbeddingConfig holds DashScope embedding client configuration.
type EmbeddingConfig struct {
	APIKey     string
	BaseURL    string // optional, useful for testing against a mock server
	Model      string
	Dimensions int
}

// Compile-time interface check.
var _ provider.Embedder = (*EmbeddingClient)(nil)

// EmbeddingClient implements provider.Embedder against DashScope's
// OpenAI-compatible embeddings endpoint.
type EmbeddingClient struct {
	client     openaisdk.Client
	model      string
	dimensions int
}

// NewEmbeddingClient creates a DashScope embedding client. Returns an
// error if the API key or model is missing.
func NewEmbeddingClient(cfg EmbeddingConfig) (*EmbeddingClient, error) {
	if cfg.APIKey == "" {
		return nil, quiberr.New(quiberr.CodeProviderRequestInvalid, "dashscope: missing api_key in config")
	}
	if cfg.Model == "" {
		return nil, quiberr.New(quiberr.CodeProviderRequestInvalid, "dashscope: missing embedding model in config")
	}
	if cfg.Dimensions <= 0 {
		return nil, quiberr.New(quiberr.CodeProviderRequestInvalid, "dashscope: embedding dimensions must be positive")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultEmbeddingEndpoint
	}

	client := openaisdk.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(baseURL),
	)

	return &EmbeddingClient{
		client:     client,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}, nil
}

// Dimensions returns the vector dimension every successful Embed yields.
func (c *EmbeddingClient) Dimensions() int {
	return c.dimensions
}

// Embed converts text into a vector of exactly Dimensions() floats. Any
// upstream failure, missing vector, or dimension mismatch is a provider
// error; there is no retry here.
func (c *EmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.client.Embeddings.New(ctx, openaisdk.EmbeddingNewParams{
		Model: openaisdk.EmbeddingModel(c.model),
		Input: openaisdk.EmbeddingNewParamsInputUnion{
			OfString: openaisdk.String(text),
		},
	})
	if err != nil {
		return nil, quiberr.Wrapf(err, quiberr.CodeProviderUpstreamFailure, "dashscope: embedding call failed")
	}

	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, quiberr.New(quiberr.CodeProviderResponseInvalid,
			"dashscope: embedding response missing vector",
			quiberr.FieldProvider("dashscope"),
		)
	}

	raw := resp.Data[0].Embedding
	if len(raw) != c.dimensions {
		return nil, quiberr.Errorf(quiberr.CodeProviderResponseInvalid,
			"dashscope: embedding has dimension %d, expected %d", len(raw), c.dimensions)
	}

	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	return vec, nil
}
