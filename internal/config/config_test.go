// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quibli Contributors

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quibli-dev/quibli/internal/config"
)

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:3000", cfg.Networking.Listen)
	assert.Equal(t, "text-embedding-v2", cfg.Embedding.Model)
	assert.Equal(t, 1536, cfg.Embedding.Dimensions)
	assert.Equal(t, "wanx-v1", cfg.Avatar.Model)
	assert.Equal(t, "1024*1024", cfg.Avatar.Size)
	assert.Equal(t, 1, cfg.Avatar.Count)
	assert.Equal(t, 2*time.Second, cfg.Avatar.PollInterval)
	assert.Equal(t, 30, cfg.Avatar.MaxAttempts)
	assert.Equal(t, "deepseek-chat", cfg.Chat.Model)
	assert.InDelta(t, 0.7, cfg.Chat.Temperature, 1e-9)
	assert.Equal(t, "quibli.db", cfg.Storage.Path)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "quibli.yaml")
	content := `
networking:
  listen: "0.0.0.0:8080"
providers:
  dashscope:
    api_key: "sk-dash"
  deepseek:
    api_key: "sk-deep"
    endpoint: "https://deepseek.internal"
embedding:
  dimensions: 768
avatar:
  poll_interval: "500ms"
  max_attempts: 10
storage:
  path: "/var/lib/quibli/content.db"
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o600))

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8080", cfg.Networking.Listen)
	assert.Equal(t, "sk-dash", cfg.Providers.DashScope.APIKey)
	assert.Equal(t, "sk-deep", cfg.Providers.DeepSeek.APIKey)
	assert.Equal(t, "https://deepseek.internal", cfg.Providers.DeepSeek.Endpoint)
	assert.Equal(t, 768, cfg.Embedding.Dimensions)
	assert.Equal(t, 500*time.Millisecond, cfg.Avatar.PollInterval)
	assert.Equal(t, 10, cfg.Avatar.MaxAttempts)
	assert.Equal(t, "/var/lib/quibli/content.db", cfg.Storage.Path)

	// Unset values keep their defaults.
	assert.Equal(t, "text-embedding-v2", cfg.Embedding.Model)
	assert.Equal(t, "wanx-v1", cfg.Avatar.Model)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoad_InvalidValuesCollected(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "quibli.yaml")
	content := `
networking:
  listen: "not-an-address"
embedding:
  model: ""
  dimensions: -1
avatar:
  count: 0
chat:
  temperature: 3.5
storage:
  path: ""
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o600))

	_, err := config.Load(cfgPath)
	require.Error(t, err)

	// All problems are reported at once, not just the first.
	msg := err.Error()
	assert.Contains(t, msg, "networking.listen")
	assert.Contains(t, msg, "embedding.model")
	assert.Contains(t, msg, "embedding.dimensions")
	assert.Contains(t, msg, "avatar.count")
	assert.Contains(t, msg, "chat.temperature")
	assert.Contains(t, msg, "storage.path")
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("QUIBLI_NETWORKING_LISTEN", "127.0.0.1:9999")
	t.Setenv("QUIBLI_PROVIDERS_DASHSCOPE_API_KEY", "sk-from-env")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", cfg.Networking.Listen)
	assert.Equal(t, "sk-from-env", cfg.Providers.DashScope.APIKey)
}

func TestLoad_EnvOnlyProviderKeys(t *testing.T) {
	// A deployment with no config file at all must still be able to set
	// every provider credential through the environment.
	t.Setenv("QUIBLI_PROVIDERS_DASHSCOPE_API_KEY", "sk-dash")
	t.Setenv("QUIBLI_PROVIDERS_DASHSCOPE_ENDPOINT", "https://dash.example")
	t.Setenv("QUIBLI_PROVIDERS_DEEPSEEK_API_KEY", "sk-deep")
	t.Setenv("QUIBLI_PROVIDERS_DEEPSEEK_ENDPOINT", "https://deep.example")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "sk-dash", cfg.Providers.DashScope.APIKey)
	assert.Equal(t, "https://dash.example", cfg.Providers.DashScope.Endpoint)
	assert.Equal(t, "sk-deep", cfg.Providers.DeepSeek.APIKey)
	assert.Equal(t, "https://deep.example", cfg.Providers.DeepSeek.Endpoint)
}

func TestValidate_PortRange(t *testing.T) {
	tests := []struct {
		name   string
		listen string
		ok     bool
	}{
		{"valid port", "127.0.0.1:3000", true},
		{"empty host", ":3000", true},
		{"port zero", "127.0.0.1:0", false},
		{"port too large", "127.0.0.1:70000", false},
		{"not a number", "127.0.0.1:http", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.Load("")
			require.NoError(t, err)
			cfg.Networking.Listen = tt.listen

			errs := cfg.Validate()
			if tt.ok {
				assert.Empty(t, errs)
			} else {
				assert.NotEmpty(t, errs)
			}
		})
	}
}

func TestBootstrapYAMLIsValid(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "quibli.yaml")
	require.NoError(t, os.WriteFile(cfgPath, config.DefaultConfigYAML, 0o600))

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:3000", cfg.Networking.Listen)
}
