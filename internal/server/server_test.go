// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quibli Contributors

package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quibli-dev/quibli/internal/provider"
	"github.com/quibli-dev/quibli/internal/server"
	"github.com/quibli-dev/quibli/internal/store"
	quiberr "github.com/quibli-dev/quibli/pkg/errors"
	"github.com/quibli-dev/quibli/pkg/health"
)

// --- fakes ---

type fakeContent struct {
	posts     map[int64]*store.Post
	questions map[int64]*store.Question
	nextID    int64
}

func newFakeContent() *fakeContent {
	return &fakeContent{
		posts:     make(map[int64]*store.Post),
		questions: make(map[int64]*store.Question),
	}
}

func (f *fakeContent) CreatePost(_ context.Context, in store.CreatePostInput) (*store.Post, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, quiberr.New(quiberr.CodeStoreInvalidInput, "post title must not be empty")
	}
	f.nextID++
	p := &store.Post{
		ID:        f.nextID,
		Title:     in.Title,
		Content:   in.Content,
		Tags:      in.Tags,
		AuthorID:  in.AuthorID,
		CreatedAt: time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC),
	}
	f.posts[p.ID] = p
	return p, nil
}

func (f *fakeContent) CreateQuestion(_ context.Context, in store.CreateQuestionInput) (*store.Question, error) {
	f.nextID++
	q := &store.Question{
		ID:        f.nextID,
		Title:     in.Title,
		Tags:      in.Tags,
		AuthorID:  in.AuthorID,
		CreatedAt: time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC),
	}
	f.questions[q.ID] = q
	return q, nil
}

func (f *fakeContent) GetPost(_ context.Context, id int64) (*store.Post, error) {
	p, ok := f.posts[id]
	if !ok {
		return nil, quiberr.Errorf(quiberr.CodeStoreEntityNotFound, "post %d not found", id)
	}
	return p, nil
}

func (f *fakeContent) GetQuestion(_ context.Context, id int64) (*store.Question, error) {
	q, ok := f.questions[id]
	if !ok {
		return nil, quiberr.Errorf(quiberr.CodeStoreEntityNotFound, "question %d not found", id)
	}
	return q, nil
}

func (f *fakeContent) ListPosts(_ context.Context, _ store.ListOpts) ([]*store.Post, error) {
	out := make([]*store.Post, 0, len(f.posts))
	for _, p := range f.posts {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeContent) ListQuestions(_ context.Context, _ store.ListOpts) ([]*store.Question, error) {
	out := make([]*store.Question, 0, len(f.questions))
	for _, q := range f.questions {
		out = append(out, q)
	}
	return out, nil
}

type fakeRanker struct {
	suggestions []string
	posts       []store.RankedPost
	questions   []store.RankedQuestion

	lastKeyword string
}

func (f *fakeRanker) Suggest(_ context.Context, query string) []string {
	f.lastKeyword = query
	if f.suggestions == nil {
		return []string{}
	}
	return f.suggestions
}

func (f *fakeRanker) SearchPosts(_ context.Context, keyword string, _ store.ListOpts) []store.RankedPost {
	f.lastKeyword = keyword
	if f.posts == nil {
		return []store.RankedPost{}
	}
	return f.posts
}

func (f *fakeRanker) SearchQuestions(_ context.Context, keyword string, _ store.ListOpts) []store.RankedQuestion {
	f.lastKeyword = keyword
	if f.questions == nil {
		return []store.RankedQuestion{}
	}
	return f.questions
}

type fakeAvatars struct {
	url string
	err error
}

func (f *fakeAvatars) Generate(_ context.Context, _ string) (string, error) {
	return f.url, f.err
}

type fakeChat struct {
	tokens []string
	err    error
}

func (f *fakeChat) StreamChat(_ context.Context, _ []provider.ChatMessage, onToken func(string)) error {
	for _, tok := range f.tokens {
		onToken(tok)
	}
	return f.err
}

func newTestServer(t *testing.T, svc *server.Services) *server.Server {
	t.Helper()
	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"})
	require.NoError(t, err)
	srv.RegisterServices(svc)
	return srv
}

func defaultServices() *server.Services {
	return server.NewServicesForTest(newFakeContent(), &fakeRanker{}, &fakeAvatars{url: "https://img.example/a.png"}, &fakeChat{})
}

// --- tests ---

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, defaultServices())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestHealthEndpointReportsBackfillMetrics(t *testing.T) {
	tracker := &health.Tracker{}
	tracker.RecordSuccess()
	tracker.RecordFailure()

	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0", Backfill: tracker})
	require.NoError(t, err)
	srv.RegisterServices(defaultServices())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"completed_jobs":1`)
	assert.Contains(t, rec.Body.String(), `"failed_jobs":1`)
}

func TestSuggestionsEndpoint(t *testing.T) {
	ranker := &fakeRanker{suggestions: []string{"周末去处", "附近的公园"}}
	srv := newTestServer(t, server.NewServicesForTest(newFakeContent(), ranker, &fakeAvatars{}, &fakeChat{}))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ai/suggestions?keyword=周末", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"周末去处", "附近的公园"}, resp)
	assert.Equal(t, "周末", ranker.lastKeyword)
}

func TestSuggestionsEmptyIsArrayNotNull(t *testing.T) {
	srv := newTestServer(t, defaultServices())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ai/suggestions?keyword=x", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestSearchPostsEndpoint(t *testing.T) {
	ranker := &fakeRanker{posts: []store.RankedPost{{ID: 5, Title: "命中"}}}
	srv := newTestServer(t, server.NewServicesForTest(newFakeContent(), ranker, &fakeAvatars{}, &fakeChat{}))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ai/search?keyword=命中&type=post", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Posts []store.RankedPost `json:"postItems"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Posts, 1)
	assert.Equal(t, int64(5), resp.Posts[0].ID)
}

func TestSearchEmptyResultIsArrayNotNull(t *testing.T) {
	srv := newTestServer(t, defaultServices())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ai/search?keyword=没有的&type=post", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"postItems":[]`)
	assert.NotContains(t, rec.Body.String(), "questionItems")
}

func TestSearchQuestionsEndpoint(t *testing.T) {
	ranker := &fakeRanker{questions: []store.RankedQuestion{{ID: 9, Title: "为什么", Answers: 3}}}
	srv := newTestServer(t, server.NewServicesForTest(newFakeContent(), ranker, &fakeAvatars{}, &fakeChat{}))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ai/search?keyword=为什么&type=question", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"questionItems"`)
	assert.Contains(t, rec.Body.String(), `"totalAnswers":3`)
}

func TestSearchDefaultsToPosts(t *testing.T) {
	ranker := &fakeRanker{posts: []store.RankedPost{{ID: 5, Title: "命中"}}}
	srv := newTestServer(t, server.NewServicesForTest(newFakeContent(), ranker, &fakeAvatars{}, &fakeChat{}))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ai/search?keyword=命中", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"postItems"`)
}

func TestSearchRejectsUnknownType(t *testing.T) {
	srv := newTestServer(t, defaultServices())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ai/search?keyword=x&type=comment", nil))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAvatarEndpoint(t *testing.T) {
	srv := newTestServer(t, defaultServices())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ai/avatar?nickname=小明", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "https://img.example/a.png")
}

func TestAvatarTaskFailureIs502(t *testing.T) {
	avatars := &fakeAvatars{err: quiberr.New(quiberr.CodeAvatarTaskFailed, "image generation failed: policy")}
	srv := newTestServer(t, server.NewServicesForTest(newFakeContent(), &fakeRanker{}, avatars, &fakeChat{}))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ai/avatar?nickname=小明", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestAvatarMalformedProviderPayloadIs502(t *testing.T) {
	avatars := &fakeAvatars{err: quiberr.New(quiberr.CodeProviderResponseInvalid, "dashscope: task status response missing output")}
	srv := newTestServer(t, server.NewServicesForTest(newFakeContent(), &fakeRanker{}, avatars, &fakeChat{}))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ai/avatar?nickname=小明", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestAvatarTimeoutIs504(t *testing.T) {
	avatars := &fakeAvatars{err: quiberr.New(quiberr.CodeAvatarTaskTimeout, "image generation timed out after 1m0s")}
	srv := newTestServer(t, server.NewServicesForTest(newFakeContent(), &fakeRanker{}, avatars, &fakeChat{}))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ai/avatar?nickname=小明", nil))

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestCreatePostEndpoint(t *testing.T) {
	content := newFakeContent()
	srv := newTestServer(t, server.NewServicesForTest(content, &fakeRanker{}, &fakeAvatars{}, &fakeChat{}))

	body := `{"title":"周末去处","content":"有什么推荐","tags":["生活"],"authorId":1}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/posts", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp server.PostView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "周末去处", resp.Title)
	assert.Equal(t, []string{"生活"}, resp.Tags)
	assert.False(t, resp.Embedded)
	assert.Len(t, content.posts, 1)
}

func TestCreatePostMissingTitleIs422(t *testing.T) {
	srv := newTestServer(t, defaultServices())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/posts", strings.NewReader(`{"content":"x"}`))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestGetPostNotFoundIs404(t *testing.T) {
	srv := newTestServer(t, defaultServices())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/posts/42", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateAndGetQuestion(t *testing.T) {
	srv := newTestServer(t, defaultServices())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/questions", strings.NewReader(`{"title":"如何学习Go","tags":["编程"]}`))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created server.QuestionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/questions/1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got server.QuestionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "如何学习Go", got.Title)
}

func TestChatStreamsTokens(t *testing.T) {
	chat := &fakeChat{tokens: []string{"你", "好", "！"}}
	srv := newTestServer(t, server.NewServicesForTest(newFakeContent(), &fakeRanker{}, &fakeAvatars{}, chat))

	body := `{"messages":[{"role":"user","content":"打个招呼"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ai/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "你好！", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
}

func TestChatEmptyMessagesIs422(t *testing.T) {
	srv := newTestServer(t, defaultServices())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ai/chat", strings.NewReader(`{"messages":[]}`))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestChatWithoutServiceIs503(t *testing.T) {
	srv := newTestServer(t, server.NewServicesForTest(newFakeContent(), &fakeRanker{}, &fakeAvatars{}, nil))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ai/chat", strings.NewReader(`{"messages":[{"role":"user","content":"hi"}]}`))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestChatUpstreamFailureBeforeFirstTokenIs502(t *testing.T) {
	chat := &fakeChat{err: quiberr.New(quiberr.CodeProviderUpstreamFailure, "stream refused")}
	srv := newTestServer(t, server.NewServicesForTest(newFakeContent(), &fakeRanker{}, &fakeAvatars{}, chat))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ai/chat", strings.NewReader(`{"messages":[{"role":"user","content":"hi"}]}`))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestNewRequiresListenAddr(t *testing.T) {
	_, err := server.New(server.Config{})
	assert.Error(t, err)
}
