// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quibli Contributors

// Package avatar drives the long-running avatar image synthesis job
// through a bounded submit/poll protocol.
package avatar

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quibli-dev/quibli/internal/provider"
	quiberr "github.com/quibli-dev/quibli/pkg/errors"
)

const (
	// DefaultPollInterval is the pause between status checks.
	DefaultPollInterval = 2 * time.Second
	// DefaultMaxAttempts bounds the poll loop; with the default interval
	// this is a hard 60-second wall-clock budget.
	DefaultMaxAttempts = 30
)

// Generator submits an image synthesis task and polls it to completion.
// Each Generate call blocks only its caller; concurrent generations for
// different users share no state.
type Generator struct {
	images      provider.ImageSynthesizer
	interval    time.Duration
	maxAttempts int
	logger      *slog.Logger
}

// Option customizes a Generator.
type Option func(*Generator)

// WithPollInterval overrides the pause between status checks.
func WithPollInterval(d time.Duration) Option {
	return func(g *Generator) {
		if d > 0 {
			g.interval = d
		}
	}
}

// WithMaxAttempts overrides the status-check budget.
func WithMaxAttempts(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGenerator creates a Generator over the given image provider.
func NewGenerator(images provider.ImageSynthesizer, opts ...Option) *Generator {
	g := &Generator{
		images:      images,
		interval:    DefaultPollInterval,
		maxAttempts: DefaultMaxAttempts,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Prompt renders the avatar design prompt for a nickname.
func Prompt(nickname string) string {
	return fmt.Sprintf("你是一位头像设计师，请你根据用户的姓名%s，设计一个专业的头像，风格卡通、时尚且好看。", nickname)
}

// Generate submits an avatar synthesis task for nickname and polls it to
// a terminal state, returning the first result URL. Every failure path
// surfaces synchronously: provider errors pass through, a terminal
// failure carries the provider's message, and an exhausted poll budget
// is a timeout. There is no silent-empty fallback here.
func (g *Generator) Generate(ctx context.Context, nickname string) (string, error) {
	taskID, err := g.images.SubmitImageTask(ctx, Prompt(nickname))
	if err != nil {
		return "", err
	}

	g.logger.Debug("avatar task submitted", "task_id", taskID, "nickname", nickname)
	return g.poll(ctx, taskID)
}

// poll checks the task status up to maxAttempts times, sleeping interval
// between checks. A malformed status payload aborts immediately — it is
// a hard stop, not a transient failure, and does not consume the budget
// semantics of a retry.
func (g *Generator) poll(ctx context.Context, taskID string) (string, error) {
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		task, err := g.images.ImageTaskStatus(ctx, taskID)
		if err != nil {
			return "", err
		}

		if !task.Status.Terminal() {
			if attempt == g.maxAttempts {
				break
			}
			if err := g.wait(ctx); err != nil {
				return "", err
			}
			continue
		}

		switch task.Status {
		case provider.TaskStatusSucceeded:
			if len(task.Results) == 0 {
				return "", quiberr.New(quiberr.CodeProviderResponseInvalid,
					"image task succeeded without results",
					quiberr.FieldTaskID(taskID),
				)
			}
			g.logger.Debug("avatar task succeeded", "task_id", taskID, "attempts", attempt)
			return task.Results[0], nil

		case provider.TaskStatusFailed, provider.TaskStatusUnknown:
			msg := task.Message
			if msg == "" {
				msg = "internal error"
			}
			return "", quiberr.New(quiberr.CodeAvatarTaskFailed,
				"image generation failed: "+msg,
				quiberr.FieldTaskID(taskID),
			)
		}
	}

	budget := time.Duration(g.maxAttempts) * g.interval
	return "", quiberr.New(quiberr.CodeAvatarTaskTimeout,
		fmt.Sprintf("image generation timed out after %s", budget),
		quiberr.FieldTaskID(taskID),
	)
}

// wait sleeps one poll interval, honoring context cancellation.
func (g *Generator) wait(ctx context.Context) error {
	timer := time.NewTimer(g.interval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return quiberr.Wrapf(ctx.Err(), quiberr.CodeProviderUpstreamFailure, "image task polling cancelled")
	case <-timer.C:
		return nil
	}
}
