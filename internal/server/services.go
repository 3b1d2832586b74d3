// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quibli Contributors

package server

import (
	"context"

	"github.com/quibli-dev/quibli/internal/provider"
	"github.com/quibli-dev/quibli/internal/store"
	quiberr "github.com/quibli-dev/quibli/pkg/errors"
)

// Services holds dependencies injected into route handlers.
// Each field is an interface so subsystems can be mocked in tests.
// Use NewServices constructor to ensure all required services are provided.
type Services struct {
	content ContentService
	ranker  RankerService
	avatars AvatarService
	chat    ChatService
}

// NewServices creates a Services instance with validation.
// Returns an error if any required service is nil. The chat service is
// optional; when nil the chat relay endpoint answers 503.
func NewServices(content ContentService, ranker RankerService, avatars AvatarService, chat ChatService) (*Services, error) {
	if content == nil {
		return nil, quiberr.New(quiberr.CodeServerStartFailure, "content service is required")
	}
	if ranker == nil {
		return nil, quiberr.New(quiberr.CodeServerStartFailure, "ranker service is required")
	}
	if avatars == nil {
		return nil, quiberr.New(quiberr.CodeServerStartFailure, "avatar service is required")
	}
	return &Services{
		content: content,
		ranker:  ranker,
		avatars: avatars,
		chat:    chat,
	}, nil
}

// ContentService provides post and question operations for REST handlers.
type ContentService interface {
	CreatePost(ctx context.Context, in store.CreatePostInput) (*store.Post, error)
	CreateQuestion(ctx context.Context, in store.CreateQuestionInput) (*store.Question, error)
	GetPost(ctx context.Context, id int64) (*store.Post, error)
	GetQuestion(ctx context.Context, id int64) (*store.Question, error)
	ListPosts(ctx context.Context, opts store.ListOpts) ([]*store.Post, error)
	ListQuestions(ctx context.Context, opts store.ListOpts) ([]*store.Question, error)
}

// RankerService provides semantic suggestion and search for REST handlers.
// Implementations degrade to empty results on provider or store failure.
type RankerService interface {
	Suggest(ctx context.Context, query string) []string
	SearchPosts(ctx context.Context, keyword string, opts store.ListOpts) []store.RankedPost
	SearchQuestions(ctx context.Context, keyword string, opts store.ListOpts) []store.RankedQuestion
}

// AvatarService generates an avatar image URL for a nickname.
type AvatarService interface {
	Generate(ctx context.Context, nickname string) (string, error)
}

// ChatService relays a conversation to the chat provider, forwarding
// each generated token to onToken as it arrives.
type ChatService interface {
	StreamChat(ctx context.Context, messages []provider.ChatMessage, onToken func(token string)) error
}

// NewServicesForTest creates a Services instance for testing.
// It delegates to NewServices to enforce the same validation invariants
// as production code. Panics if a required service is nil.
func NewServicesForTest(content ContentService, ranker RankerService, avatars AvatarService, chat ChatService) *Services {
	svc, err := NewServices(content, ranker, avatars, chat)
	if err != nil {
		panic(err)
	}
	return svc
}
