// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quibli Contributors

// Package content is the write path for posts and questions: it persists
// the item, then hands the embedding work to the backfill coordinator.
package content

import (
	"context"
	"strings"

	"github.com/quibli-dev/quibli/internal/backfill"
	"github.com/quibli-dev/quibli/internal/store"
	quiberr "github.com/quibli-dev/quibli/pkg/errors"
)

// Scheduler enqueues embedding jobs without blocking the caller.
type Scheduler interface {
	Schedule(kind store.ContentType, id int64, sourceText string)
}

// Service wraps the content store so every successful create also
// schedules its embedding. Reads pass straight through.
type Service struct {
	store     store.ContentStore
	scheduler Scheduler
}

// NewService creates a Service over the given store and scheduler.
func NewService(s store.ContentStore, scheduler Scheduler) *Service {
	return &Service{store: s, scheduler: scheduler}
}

// CreatePost persists a post and schedules its embedding. The create
// succeeds even if the embedding later fails; the post simply stays
// invisible to semantic queries.
func (s *Service) CreatePost(ctx context.Context, in store.CreatePostInput) (*store.Post, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, quiberr.New(quiberr.CodeStoreInvalidInput, "post title must not be empty")
	}

	post, err := s.store.CreatePost(ctx, in)
	if err != nil {
		return nil, err
	}

	s.scheduler.Schedule(store.ContentTypePost, post.ID,
		backfill.PostSourceText(post.Title, post.Tags, post.Content))
	return post, nil
}

// CreateQuestion persists a question and schedules its embedding.
func (s *Service) CreateQuestion(ctx context.Context, in store.CreateQuestionInput) (*store.Question, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, quiberr.New(quiberr.CodeStoreInvalidInput, "question title must not be empty")
	}

	question, err := s.store.CreateQuestion(ctx, in)
	if err != nil {
		return nil, err
	}

	s.scheduler.Schedule(store.ContentTypeQuestion, question.ID,
		backfill.QuestionSourceText(question.Title, question.Tags))
	return question, nil
}

// GetPost returns one post by id.
func (s *Service) GetPost(ctx context.Context, id int64) (*store.Post, error) {
	return s.store.GetPost(ctx, id)
}

// GetQuestion returns one question by id.
func (s *Service) GetQuestion(ctx context.Context, id int64) (*store.Question, error) {
	return s.store.GetQuestion(ctx, id)
}

// ListPosts returns posts newest first.
func (s *Service) ListPosts(ctx context.Context, opts store.ListOpts) ([]*store.Post, error) {
	return s.store.ListPosts(ctx, opts)
}

// ListQuestions returns questions newest first.
func (s *Service) ListQuestions(ctx context.Context, opts store.ListOpts) ([]*store.Question, error) {
	return s.store.ListQuestions(ctx, opts)
}
