// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quibli Contributors

package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/quibli-dev/quibli/internal/store"
	quiberr "github.com/quibli-dev/quibli/pkg/errors"
)

// RegisterServices sets the service dependencies and registers REST routes.
func (s *Server) RegisterServices(svc *Services) {
	s.services = svc
	s.registerRoutes()
}

func (s *Server) registerRoutes() {
	// Discovery endpoints
	huma.Register(s.api, huma.Operation{
		OperationID: "ai-suggestions",
		Method:      http.MethodGet,
		Path:        "/api/v1/ai/suggestions",
		Summary:     "Suggest related titles for a query",
		Tags:        []string{"ai"},
	}, s.handleSuggestions)

	huma.Register(s.api, huma.Operation{
		OperationID: "ai-search",
		Method:      http.MethodGet,
		Path:        "/api/v1/ai/search",
		Summary:     "Semantic search over posts or questions",
		Tags:        []string{"ai"},
	}, s.handleSearch)

	huma.Register(s.api, huma.Operation{
		OperationID: "ai-avatar",
		Method:      http.MethodGet,
		Path:        "/api/v1/ai/avatar",
		Summary:     "Generate an avatar image for a nickname",
		Tags:        []string{"ai"},
	}, s.handleAvatar)

	// Post endpoints
	huma.Register(s.api, huma.Operation{
		OperationID:   "create-post",
		Method:        http.MethodPost,
		Path:          "/api/v1/posts",
		Summary:       "Create a post",
		Tags:          []string{"posts"},
		DefaultStatus: http.StatusCreated,
	}, s.handleCreatePost)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-posts",
		Method:      http.MethodGet,
		Path:        "/api/v1/posts",
		Summary:     "List posts, newest first",
		Tags:        []string{"posts"},
	}, s.handleListPosts)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-post",
		Method:      http.MethodGet,
		Path:        "/api/v1/posts/{id}",
		Summary:     "Get post details",
		Tags:        []string{"posts"},
	}, s.handleGetPost)

	// Question endpoints
	huma.Register(s.api, huma.Operation{
		OperationID:   "create-question",
		Method:        http.MethodPost,
		Path:          "/api/v1/questions",
		Summary:       "Create a question",
		Tags:          []string{"questions"},
		DefaultStatus: http.StatusCreated,
	}, s.handleCreateQuestion)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-questions",
		Method:      http.MethodGet,
		Path:        "/api/v1/questions",
		Summary:     "List questions, newest first",
		Tags:        []string{"questions"},
	}, s.handleListQuestions)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-question",
		Method:      http.MethodGet,
		Path:        "/api/v1/questions/{id}",
		Summary:     "Get question details",
		Tags:        []string{"questions"},
	}, s.handleGetQuestion)
}

// --- Request/Response types for huma ---

type suggestionsInput struct {
	Keyword string `query:"keyword" doc:"Free-text query"`
}
// suggestionsOutput is a bare JSON array of titles, closest first.
type suggestionsOutput struct {
	Body []string
}

type searchInput struct {
	Keyword string `query:"keyword" doc:"Free-text query"`
	Type    string `query:"type" enum:"post,question" doc:"Collection to search, post when omitted"`
	Page    int    `query:"page" minimum:"0" doc:"Page number, 1-based"`
	Limit   int    `query:"limit" minimum:"0" maximum:"100" doc:"Page size"`
}
type searchOutput struct {
	// Only the field matching the requested type is present; an empty
	// result serializes as an empty array, never null.
	Body struct {
		Posts     *[]store.RankedPost     `json:"postItems,omitempty" doc:"Ranked posts (type=post)"`
		Questions *[]store.RankedQuestion `json:"questionItems,omitempty" doc:"Ranked questions (type=question)"`
	}
}

type avatarInput struct {
	Nickname string `query:"nickname" minLength:"1" doc:"User nickname the avatar is designed for"`
}
type avatarOutput struct {
	Body struct {
		URL string `json:"url" doc:"Generated image URL"`
	}
}

// PostView is the REST representation of a post.
type PostView struct {
	ID        int64    `json:"id" doc:"Post identifier"`
	Title     string   `json:"title" doc:"Post title"`
	Content   string   `json:"content" doc:"Post body"`
	Tags      []string `json:"tags" doc:"Normalized tags"`
	AuthorID  int64    `json:"authorId" doc:"Author identifier"`
	CreatedAt string   `json:"createdAt" doc:"Creation time, RFC 3339"`
	Embedded  bool     `json:"embedded" doc:"Whether the embedding has been computed"`
}

// QuestionView is the REST representation of a question.
type QuestionView struct {
	ID        int64    `json:"id" doc:"Question identifier"`
	Title     string   `json:"title" doc:"Question title"`
	Tags      []string `json:"tags" doc:"Normalized tags"`
	AuthorID  int64    `json:"authorId" doc:"Author identifier"`
	CreatedAt string   `json:"createdAt" doc:"Creation time, RFC 3339"`
	Embedded  bool     `json:"embedded" doc:"Whether the embedding has been computed"`
}

type createPostInput struct {
	Body struct {
		Title    string   `json:"title" minLength:"1" doc:"Post title"`
		Content  string   `json:"content" doc:"Post body"`
		Tags     []string `json:"tags,omitempty" doc:"Tags"`
		AuthorID int64    `json:"authorId,omitempty" doc:"Author identifier"`
	}
}
type postOutput struct {
	Body PostView
}

type createQuestionInput struct {
	Body struct {
		Title    string   `json:"title" minLength:"1" doc:"Question title"`
		Tags     []string `json:"tags,omitempty" doc:"Tags"`
		AuthorID int64    `json:"authorId,omitempty" doc:"Author identifier"`
	}
}
type questionOutput struct {
	Body QuestionView
}

type listInput struct {
	Page  int `query:"page" minimum:"0" doc:"Page number, 1-based"`
	Limit int `query:"limit" minimum:"0" maximum:"100" doc:"Page size"`
}
type listPostsOutput struct {
	Body struct {
		Posts []PostView `json:"posts"`
	}
}
type listQuestionsOutput struct {
	Body struct {
		Questions []QuestionView `json:"questions"`
	}
}

type idInput struct {
	ID int64 `path:"id" doc:"Item identifier"`
}

// --- Handlers ---

func (s *Server) handleSuggestions(ctx context.Context, input *suggestionsInput) (*suggestionsOutput, error) {
	suggestions := s.services.ranker.Suggest(ctx, input.Keyword)
	if suggestions == nil {
		suggestions = []string{}
	}
	return &suggestionsOutput{Body: suggestions}, nil
}

func (s *Server) handleSearch(ctx context.Context, input *searchInput) (*searchOutput, error) {
	kind := store.ContentTypePost
	if input.Type != "" {
		kind = store.ContentType(input.Type)
		if !kind.Valid() {
			return nil, huma.Error422UnprocessableEntity(fmt.Sprintf("type must be post or question, got %q", input.Type))
		}
	}

	opts := store.ListOpts{Page: input.Page, Limit: input.Limit}
	out := &searchOutput{}
	switch kind {
	case store.ContentTypePost:
		posts := s.services.ranker.SearchPosts(ctx, input.Keyword, opts)
		if posts == nil {
			posts = []store.RankedPost{}
		}
		out.Body.Posts = &posts
	case store.ContentTypeQuestion:
		questions := s.services.ranker.SearchQuestions(ctx, input.Keyword, opts)
		if questions == nil {
			questions = []store.RankedQuestion{}
		}
		out.Body.Questions = &questions
	}
	return out, nil
}

func (s *Server) handleAvatar(ctx context.Context, input *avatarInput) (*avatarOutput, error) {
	url, err := s.services.avatars.Generate(ctx, input.Nickname)
	if err != nil {
		return nil, serviceError("generating avatar", err)
	}

	out := &avatarOutput{}
	out.Body.URL = url
	return out, nil
}

func (s *Server) handleCreatePost(ctx context.Context, input *createPostInput) (*postOutput, error) {
	post, err := s.services.content.CreatePost(ctx, store.CreatePostInput{
		Title:    input.Body.Title,
		Content:  input.Body.Content,
		Tags:     input.Body.Tags,
		AuthorID: input.Body.AuthorID,
	})
	if err != nil {
		return nil, serviceError("creating post", err)
	}
	return &postOutput{Body: toPostView(post)}, nil
}

func (s *Server) handleListPosts(ctx context.Context, input *listInput) (*listPostsOutput, error) {
	posts, err := s.services.content.ListPosts(ctx, store.ListOpts{Page: input.Page, Limit: input.Limit})
	if err != nil {
		return nil, serviceError("listing posts", err)
	}

	out := &listPostsOutput{}
	out.Body.Posts = make([]PostView, 0, len(posts))
	for _, p := range posts {
		out.Body.Posts = append(out.Body.Posts, toPostView(p))
	}
	return out, nil
}

func (s *Server) handleGetPost(ctx context.Context, input *idInput) (*postOutput, error) {
	post, err := s.services.content.GetPost(ctx, input.ID)
	if err != nil {
		if quiberr.IsNotFound(err) {
			return nil, huma.Error404NotFound(fmt.Sprintf("post %d not found", input.ID))
		}
		return nil, serviceError("getting post", err)
	}
	return &postOutput{Body: toPostView(post)}, nil
}

func (s *Server) handleCreateQuestion(ctx context.Context, input *createQuestionInput) (*questionOutput, error) {
	question, err := s.services.content.CreateQuestion(ctx, store.CreateQuestionInput{
		Title:    input.Body.Title,
		Tags:     input.Body.Tags,
		AuthorID: input.Body.AuthorID,
	})
	if err != nil {
		return nil, serviceError("creating question", err)
	}
	return &questionOutput{Body: toQuestionView(question)}, nil
}

func (s *Server) handleListQuestions(ctx context.Context, input *listInput) (*listQuestionsOutput, error) {
	questions, err := s.services.content.ListQuestions(ctx, store.ListOpts{Page: input.Page, Limit: input.Limit})
	if err != nil {
		return nil, serviceError("listing questions", err)
	}

	out := &listQuestionsOutput{}
	out.Body.Questions = make([]QuestionView, 0, len(questions))
	for _, q := range questions {
		out.Body.Questions = append(out.Body.Questions, toQuestionView(q))
	}
	return out, nil
}

func (s *Server) handleGetQuestion(ctx context.Context, input *idInput) (*questionOutput, error) {
	question, err := s.services.content.GetQuestion(ctx, input.ID)
	if err != nil {
		if quiberr.IsNotFound(err) {
			return nil, huma.Error404NotFound(fmt.Sprintf("question %d not found", input.ID))
		}
		return nil, serviceError("getting question", err)
	}
	return &questionOutput{Body: toQuestionView(question)}, nil
}

// serviceError maps a service failure onto the matching huma status.
func serviceError(action string, err error) error {
	// Provider errors never map to client-fault statuses, even though
	// codes such as provider.response.invalid share the invalid reason.
	if !quiberr.IsProviderError(err) {
		switch {
		case quiberr.IsInvalidInput(err):
			return huma.Error422UnprocessableEntity(fmt.Sprintf("%s: %s", action, err))
		case quiberr.IsNotFound(err):
			return huma.Error404NotFound(fmt.Sprintf("%s: %s", action, err))
		}
	}

	switch quiberr.HTTPStatus(err) {
	case http.StatusGatewayTimeout:
		return huma.Error504GatewayTimeout(action, err)
	case http.StatusBadGateway:
		return huma.Error502BadGateway(action, err)
	default:
		return huma.Error500InternalServerError(action, err)
	}
}

func toPostView(p *store.Post) PostView {
	return PostView{
		ID:        p.ID,
		Title:     p.Title,
		Content:   p.Content,
		Tags:      emptyIfNil(p.Tags),
		AuthorID:  p.AuthorID,
		CreatedAt: p.CreatedAt.Format(time.RFC3339Nano),
		Embedded:  len(p.Embedding) > 0,
	}
}

func toQuestionView(q *store.Question) QuestionView {
	return QuestionView{
		ID:        q.ID,
		Title:     q.Title,
		Tags:      emptyIfNil(q.Tags),
		AuthorID:  q.AuthorID,
		CreatedAt: q.CreatedAt.Format(time.RFC3339Nano),
		Embedded:  len(q.Embedding) > 0,
	}
}

func emptyIfNil(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
