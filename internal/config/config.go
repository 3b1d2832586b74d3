// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quibli Contributors

package config

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	quiberr "github.com/quibli-dev/quibli/pkg/errors"
)

// Config is the top-level Quibli configuration.
type Config struct {
	Networking NetworkingConfig `mapstructure:"networking"`
	Providers  ProvidersConfig  `mapstructure:"providers"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding"`
	Avatar     AvatarConfig     `mapstructure:"avatar"`
	Chat       ChatConfig       `mapstructure:"chat"`
	Storage    StorageConfig    `mapstructure:"storage"`
}

// NetworkingConfig controls how Quibli listens for connections.
type NetworkingConfig struct {
	Listen string `mapstructure:"listen"`
}

// ProvidersConfig holds credentials for the upstream AI providers.
type ProvidersConfig struct {
	DashScope ProviderConfig `mapstructure:"dashscope"`
	DeepSeek  ProviderConfig `mapstructure:"deepseek"`
}

// ProviderConfig holds credentials and endpoint for one provider.
// An empty endpoint selects the provider's public endpoint.
type ProviderConfig struct {
	APIKey   string `mapstructure:"api_key"`
	Endpoint string `mapstructure:"endpoint"`
}

// EmbeddingConfig selects the text embedding model.
type EmbeddingConfig struct {
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
}

// AvatarConfig controls avatar image synthesis and its poll budget.
type AvatarConfig struct {
	Model        string        `mapstructure:"model"`
	Size         string        `mapstructure:"size"`
	Count        int           `mapstructure:"count"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
}

// ChatConfig controls the conversational relay.
type ChatConfig struct {
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
}

// StorageConfig locates the content database.
type StorageConfig struct {
	Path string `mapstructure:"path"`
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides (prefix QUIBLI_).
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults. Provider keys default to empty so AutomaticEnv can see
	// them during Unmarshal; viper only surfaces env vars for keys it
	// already knows about.
	v.SetDefault("networking.listen", "127.0.0.1:3000")
	v.SetDefault("providers.dashscope.api_key", "")
	v.SetDefault("providers.dashscope.endpoint", "")
	v.SetDefault("providers.deepseek.api_key", "")
	v.SetDefault("providers.deepseek.endpoint", "")
	v.SetDefault("embedding.model", "text-embedding-v2")
	v.SetDefault("embedding.dimensions", 1536)
	v.SetDefault("avatar.model", "wanx-v1")
	v.SetDefault("avatar.size", "1024*1024")
	v.SetDefault("avatar.count", 1)
	v.SetDefault("avatar.poll_interval", "2s")
	v.SetDefault("avatar.max_attempts", 30)
	v.SetDefault("chat.model", "deepseek-chat")
	v.SetDefault("chat.temperature", 0.7)
	v.SetDefault("storage.path", "quibli.db")

	// Environment
	v.SetEnvPrefix("QUIBLI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// File
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, quiberr.Errorf(quiberr.CodeConfigValidateInvalidValue, "reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, quiberr.Errorf(quiberr.CodeConfigValidateInvalidValue, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, quiberr.Errorf(quiberr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Validate checks the configuration for logical errors.
// It returns a slice of all validation errors found, collecting all issues
// rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateNetworking()...)
	errs = append(errs, c.validateEmbedding()...)
	errs = append(errs, c.validateAvatar()...)
	errs = append(errs, c.validateChat()...)
	errs = append(errs, c.validateStorage()...)

	return errs
}

func (c *Config) validateNetworking() []error {
	var errs []error

	if c.Networking.Listen == "" {
		errs = append(errs, quiberr.Errorf(quiberr.CodeConfigValidateInvalidValue, "config: networking.listen must not be empty"))
	} else {
		host, portStr, err := net.SplitHostPort(c.Networking.Listen)
		if err != nil {
			errs = append(errs, quiberr.Errorf(quiberr.CodeConfigValidateInvalidValue,
				"config: networking.listen must be a valid host:port address, got %q: %w",
				c.Networking.Listen, err,
			))
		} else {
			_ = host // host can be empty (e.g., ":3000"), which is valid
			port, err := strconv.Atoi(portStr)
			if err != nil {
				errs = append(errs, quiberr.Errorf(quiberr.CodeConfigValidateInvalidValue,
					"config: networking.listen port must be a number, got %q",
					portStr,
				))
			} else if port < 1 || port > 65535 {
				errs = append(errs, quiberr.Errorf(quiberr.CodeConfigValidateInvalidValue,
					"config: networking.listen port must be between 1 and 65535, got %d",
					port,
				))
			}
		}
	}

	return errs
}

func (c *Config) validateEmbedding() []error {
	var errs []error

	if c.Embedding.Model == "" {
		errs = append(errs, quiberr.Errorf(quiberr.CodeConfigValidateInvalidValue, "config: embedding.model must not be empty"))
	}

	if c.Embedding.Dimensions <= 0 {
		errs = append(errs, quiberr.Errorf(quiberr.CodeConfigValidateInvalidValue,
			"config: embedding.dimensions must be greater than 0, got %d",
			c.Embedding.Dimensions,
		))
	}

	return errs
}

func (c *Config) validateAvatar() []error {
	var errs []error

	if c.Avatar.Model == "" {
		errs = append(errs, quiberr.Errorf(quiberr.CodeConfigValidateInvalidValue, "config: avatar.model must not be empty"))
	}

	if c.Avatar.Size == "" {
		errs = append(errs, quiberr.Errorf(quiberr.CodeConfigValidateInvalidValue, "config: avatar.size must not be empty"))
	}

	if c.Avatar.Count < 1 {
		errs = append(errs, quiberr.Errorf(quiberr.CodeConfigValidateInvalidValue,
			"config: avatar.count must be at least 1, got %d",
			c.Avatar.Count,
		))
	}

	if c.Avatar.PollInterval <= 0 {
		errs = append(errs, quiberr.Errorf(quiberr.CodeConfigValidateInvalidValue,
			"config: avatar.poll_interval must be greater than 0, got %s",
			c.Avatar.PollInterval,
		))
	}

	if c.Avatar.MaxAttempts <= 0 {
		errs = append(errs, quiberr.Errorf(quiberr.CodeConfigValidateInvalidValue,
			"config: avatar.max_attempts must be greater than 0, got %d",
			c.Avatar.MaxAttempts,
		))
	}

	return errs
}

func (c *Config) validateChat() []error {
	var errs []error

	if c.Chat.Model == "" {
		errs = append(errs, quiberr.Errorf(quiberr.CodeConfigValidateInvalidValue, "config: chat.model must not be empty"))
	}

	if c.Chat.Temperature < 0 || c.Chat.Temperature > 2 {
		errs = append(errs, quiberr.Errorf(quiberr.CodeConfigValidateInvalidValue,
			"config: chat.temperature must be between 0 and 2, got %g",
			c.Chat.Temperature,
		))
	}

	return errs
}

func (c *Config) validateStorage() []error {
	var errs []error

	if c.Storage.Path == "" {
		errs = append(errs, quiberr.Errorf(quiberr.CodeConfigValidateInvalidValue, "config: storage.path must not be empty"))
	}

	return errs
}
