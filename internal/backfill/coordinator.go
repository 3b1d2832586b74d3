// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quibli Contributors

// Package backfill asynchronously computes and stores content embeddings
// so that writes never wait on the embedding provider.
package backfill

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quibli-dev/quibli/internal/provider"
	"github.com/quibli-dev/quibli/internal/store"
	"github.com/quibli-dev/quibli/pkg/health"
)

// bodyRuneLimit caps how much of a post body feeds the embedding input.
const bodyRuneLimit = 500

// noTags is the placeholder rendered when an item carries no tags.
const noTags = "无"

// Coordinator schedules embedding jobs for newly created content. Jobs
// run on their own goroutines; the scheduling call returns immediately
// and a failed job is logged and abandoned, never retried. Readers that
// race a pending job simply see the item without an embedding.
type Coordinator struct {
	embedder provider.Embedder
	writer   store.EmbeddingWriter
	logger   *slog.Logger
	timeout  time.Duration
	tracker  *health.Tracker

	wg sync.WaitGroup
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithJobTimeout bounds how long a single backfill job may run.
func WithJobTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHealthTracker records job outcomes into tr.
func WithHealthTracker(tr *health.Tracker) Option {
	return func(c *Coordinator) {
		if tr != nil {
			c.tracker = tr
		}
	}
}

// NewCoordinator creates a Coordinator writing embeddings through writer.
func NewCoordinator(embedder provider.Embedder, writer store.EmbeddingWriter, opts ...Option) *Coordinator {
	c := &Coordinator{
		embedder: embedder,
		writer:   writer,
		logger:   slog.Default(),
		timeout:  time.Minute,
		tracker:  &health.Tracker{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Schedule enqueues an embedding job for the item and returns
// immediately. The caller's latency is independent of provider latency.
func (c *Coordinator) Schedule(kind store.ContentType, id int64, sourceText string) {
	jobID := uuid.NewString()
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(jobID, kind, id, sourceText)
	}()
}

// Wait blocks until all scheduled jobs have finished. Used on shutdown
// so in-flight embeddings are not torn down mid-write.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) run(jobID string, kind store.ContentType, id int64, sourceText string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	vector, err := c.embedder.Embed(ctx, sourceText)
	if err != nil {
		c.tracker.RecordFailure()
		c.logger.Error("embedding backfill failed",
			"job_id", jobID, "content_type", string(kind), "item_id", id, "error", err)
		return
	}

	switch kind {
	case store.ContentTypePost:
		err = c.writer.SetPostEmbedding(ctx, id, vector)
	case store.ContentTypeQuestion:
		err = c.writer.SetQuestionEmbedding(ctx, id, vector)
	default:
		c.tracker.RecordFailure()
		c.logger.Error("embedding backfill skipped: unknown content type",
			"job_id", jobID, "content_type", string(kind), "item_id", id)
		return
	}
	if err != nil {
		c.tracker.RecordFailure()
		c.logger.Error("embedding write failed",
			"job_id", jobID, "content_type", string(kind), "item_id", id, "error", err)
		return
	}

	c.tracker.RecordSuccess()
	c.logger.Debug("embedding backfill complete",
		"job_id", jobID, "content_type", string(kind), "item_id", id)
}

// PostSourceText renders the canonical embedding input for a post. The
// body is truncated to its first 500 runes so one oversized post cannot
// blow the provider's input window.
func PostSourceText(title string, tags []string, body string) string {
	var b strings.Builder
	b.WriteString("标题: ")
	b.WriteString(title)
	b.WriteString("; 标签: ")
	b.WriteString(joinTags(tags))
	b.WriteString("; 正文: ")
	b.WriteString(truncateRunes(body, bodyRuneLimit))
	return b.String()
}

// QuestionSourceText renders the canonical embedding input for a
// question. Questions have no body, so only title and tags contribute.
func QuestionSourceText(title string, tags []string) string {
	var b strings.Builder
	b.WriteString("提问标题: ")
	b.WriteString(title)
	b.WriteString("; 标签: ")
	b.WriteString(joinTags(tags))
	return b.String()
}

func joinTags(tags []string) string {
	if len(tags) == 0 {
		return noTags
	}
	return strings.Join(tags, ", ")
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
