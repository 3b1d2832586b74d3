// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quibli Contributors

package main

import (
	"log/slog"

	"github.com/quibli-dev/quibli/internal/avatar"
	"github.com/quibli-dev/quibli/internal/backfill"
	"github.com/quibli-dev/quibli/internal/config"
	"github.com/quibli-dev/quibli/internal/content"
	"github.com/quibli-dev/quibli/internal/provider/dashscope"
	"github.com/quibli-dev/quibli/internal/provider/deepseek"
	"github.com/quibli-dev/quibli/internal/search"
	"github.com/quibli-dev/quibli/internal/server"
	"github.com/quibli-dev/quibli/internal/store"
	"github.com/quibli-dev/quibli/internal/store/sqlite"
	quiberr "github.com/quibli-dev/quibli/pkg/errors"
	"github.com/quibli-dev/quibli/pkg/health"
)

// App holds all wired subsystems and manages their lifecycle.
type App struct {
	Server   *server.Server
	Store    store.ContentStore
	Backfill *backfill.Coordinator
}

// WireApp creates all subsystems and wires them together.
func WireApp(cfg *config.Config) (*App, error) {
	// 1. Content store with the vector index.
	st, err := sqlite.NewContentStore(cfg.Storage.Path, cfg.Embedding.Dimensions)
	if err != nil {
		return nil, quiberr.Wrapf(err, quiberr.CodeCLISetupFailure, "opening content store %s", cfg.Storage.Path)
	}

	// 2. DashScope clients: embeddings and image synthesis.
	embedder, err := dashscope.NewEmbeddingClient(dashscope.EmbeddingConfig{
		APIKey:     cfg.Providers.DashScope.APIKey,
		BaseURL:    cfg.Providers.DashScope.Endpoint,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
	})
	if err != nil {
		_ = st.Close()
		return nil, quiberr.Wrapf(err, quiberr.CodeCLISetupFailure, "creating embedding client")
	}

	images, err := dashscope.NewImageClient(dashscope.ImageConfig{
		APIKey:  cfg.Providers.DashScope.APIKey,
		BaseURL: cfg.Providers.DashScope.Endpoint,
		Model:   cfg.Avatar.Model,
		Size:    cfg.Avatar.Size,
		Count:   cfg.Avatar.Count,
	})
	if err != nil {
		_ = st.Close()
		return nil, quiberr.Wrapf(err, quiberr.CodeCLISetupFailure, "creating image client")
	}

	// 3. Discovery core.
	tracker := &health.Tracker{}
	coordinator := backfill.NewCoordinator(embedder, st,
		backfill.WithHealthTracker(tracker),
	)
	contentSvc := content.NewService(st, coordinator)
	ranker := search.NewRanker(embedder, st, slog.Default())
	generator := avatar.NewGenerator(images,
		avatar.WithPollInterval(cfg.Avatar.PollInterval),
		avatar.WithMaxAttempts(cfg.Avatar.MaxAttempts),
	)

	// 4. Chat relay. Optional: without a key the endpoint answers 503.
	var chat server.ChatService
	if cfg.Providers.DeepSeek.APIKey != "" {
		chatClient, err := deepseek.NewChatClient(deepseek.Config{
			APIKey:      cfg.Providers.DeepSeek.APIKey,
			BaseURL:     cfg.Providers.DeepSeek.Endpoint,
			Model:       cfg.Chat.Model,
			Temperature: cfg.Chat.Temperature,
		})
		if err != nil {
			_ = st.Close()
			return nil, quiberr.Wrapf(err, quiberr.CodeCLISetupFailure, "creating chat client")
		}
		chat = chatClient
	} else {
		slog.Warn("chat relay disabled: no DeepSeek API key configured")
	}

	// 5. HTTP server.
	services, err := server.NewServices(contentSvc, ranker, generator, chat)
	if err != nil {
		_ = st.Close()
		return nil, quiberr.Wrapf(err, quiberr.CodeCLISetupFailure, "creating services")
	}

	srv, err := server.New(server.Config{
		ListenAddr:  cfg.Networking.Listen,
		CORSOrigins: nil,
		Backfill:    tracker,
	})
	if err != nil {
		_ = st.Close()
		return nil, quiberr.Wrapf(err, quiberr.CodeCLISetupFailure, "creating server")
	}
	srv.RegisterServices(services)

	return &App{
		Server:   srv,
		Store:    st,
		Backfill: coordinator,
	}, nil
}

// Close releases all resources held by the app. Safe to call after a
// failed or cancelled Start; it waits for pending embedding jobs first.
func (a *App) Close() error {
	a.Backfill.Wait()
	return a.Store.Close()
}
