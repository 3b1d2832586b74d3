// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quibli Contributors

package deepseek_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quibli-dev/quibli/internal/provider"
	"github.com/quibli-dev/quibli/internal/provider/deepseek"
	quiberr "github.com/quibli-dev/quibli/pkg/errors"
)

// Compile-time interface satisfaction check.
var _ provider.ChatStreamer = (*deepseek.ChatClient)(nil)

func TestNewChatClient_RequiresAPIKey(t *testing.T) {
	_, err := deepseek.NewChatClient(deepseek.Config{Model: "deepseek-chat"})
	require.Error(t, err)
	assert.True(t, quiberr.HasCode(err, quiberr.CodeProviderRequestInvalid))
}

func TestStreamChat_UnsupportedRoleFailsBeforeNetwork(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))
	t.Cleanup(srv.Close)

	client, err := deepseek.NewChatClient(deepseek.Config{APIKey: "sk-test", BaseURL: srv.URL})
	require.NoError(t, err)

	err = client.StreamChat(context.Background(), []provider.ChatMessage{
		{Role: "tool", Content: "irrelevant"},
	}, func(string) {})
	require.Error(t, err)
	assert.True(t, quiberr.HasCode(err, quiberr.CodeProviderRequestInvalid))
	assert.Contains(t, err.Error(), `"tool"`)
	assert.False(t, called)
}

// chatStreamServer replies to a chat completion request with the given
// content tokens as server-sent events.
func chatStreamServer(t *testing.T, tokens []string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)

		var req struct {
			Model       string  `json:"model"`
			Temperature float64 `json:"temperature"`
			Stream      bool    `json:"stream"`
			Messages    []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "deepseek-chat", req.Model)
		assert.InDelta(t, 0.7, req.Temperature, 1e-9)
		assert.True(t, req.Stream)
		require.NotEmpty(t, req.Messages)
		assert.Equal(t, "user", req.Messages[0].Role)

		w.Header().Set("Content-Type", "text/event-stream")
		for _, token := range tokens {
			payload, err := json.Marshal(map[string]any{
				"id":      "cmpl-1",
				"object":  "chat.completion.chunk",
				"created": 1700000000,
				"model":   "deepseek-chat",
				"choices": []map[string]any{
					{"index": 0, "delta": map[string]any{"content": token}},
				},
			})
			require.NoError(t, err)
			_, _ = fmt.Fprintf(w, "data: %s\n\n", payload)
		}
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestStreamChat_ForwardsTokensInOrder(t *testing.T) {
	srv := chatStreamServer(t, []string{"你", "好", "！"})

	client, err := deepseek.NewChatClient(deepseek.Config{
		APIKey:      "sk-test",
		BaseURL:     srv.URL,
		Model:       "deepseek-chat",
		Temperature: 0.7,
	})
	require.NoError(t, err)

	var got strings.Builder
	err = client.StreamChat(context.Background(), []provider.ChatMessage{
		{Role: "user", Content: "打个招呼"},
	}, func(token string) {
		got.WriteString(token)
	})
	require.NoError(t, err)
	assert.Equal(t, "你好！", got.String())
}

func TestStreamChat_UpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// 400 is not retried by the SDK, so the failure surfaces immediately.
		http.Error(w, `{"error":{"message":"bad request"}}`, http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)

	client, err := deepseek.NewChatClient(deepseek.Config{APIKey: "sk-test", BaseURL: srv.URL})
	require.NoError(t, err)

	tokens := 0
	err = client.StreamChat(context.Background(), []provider.ChatMessage{
		{Role: "user", Content: "hi"},
	}, func(string) { tokens++ })
	require.Error(t, err)
	assert.True(t, quiberr.IsUpstreamFailure(err))
	assert.Zero(t, tokens)
}
