// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quibli Contributors

package server

import (
	"encoding/json"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/quibli-dev/quibli/internal/provider"
	quiberr "github.com/quibli-dev/quibli/pkg/errors"
)

// chatRequest is the request body for the streaming chat endpoint.
type chatRequest struct {
	Messages []provider.ChatMessage `json:"messages"`
}

func (s *Server) registerChatRoute() {
	s.router.Post("/api/v1/ai/chat", s.handleChat)

	// Register the operation in the OpenAPI spec manually. The streaming
	// handler needs raw http.ResponseWriter access, so it cannot use Huma's
	// standard handler signature. We keep the chi route above for actual
	// request handling and add the spec entry here for documentation.
	s.api.OpenAPI().AddOperation(&huma.Operation{
		OperationID: "ai-chat",
		Method:      http.MethodPost,
		Path:        "/api/v1/ai/chat",
		Summary:     "Relay a conversation to the chat model, streaming tokens",
		Description: "Send the conversation history and receive the assistant reply as a chunked plain-text stream, token by token.",
		Tags:        []string{"ai"},
		RequestBody: &huma.RequestBody{
			Required: true,
			Content: map[string]*huma.MediaType{
				"application/json": {
					Schema: &huma.Schema{
						Type:     "object",
						Required: []string{"messages"},
						Properties: map[string]*huma.Schema{
							"messages": {
								Type:        "array",
								Description: "Conversation history, oldest first",
								Items: &huma.Schema{
									Type:     "object",
									Required: []string{"role", "content"},
									Properties: map[string]*huma.Schema{
										"role": {
											Type:        "string",
											Enum:        []any{"system", "user", "assistant"},
											Description: "Message author role",
										},
										"content": {
											Type:        "string",
											Description: "Message text",
										},
									},
								},
							},
						},
					},
				},
			},
		},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "Chunked token stream",
				Content: map[string]*huma.MediaType{
					"text/plain": {
						Schema: &huma.Schema{
							Type:        "string",
							Description: "Assistant reply streamed token by token",
						},
					},
				},
			},
			"422": {Description: "Validation error (missing messages)"},
			"503": {Description: "Chat service not configured"},
		},
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}
	if len(req.Messages) == 0 {
		http.Error(w, `{"error":"messages are required"}`, http.StatusUnprocessableEntity)
		return
	}

	if s.services == nil || s.services.chat == nil {
		http.Error(w, `{"error":"chat service not configured"}`, http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	flusher, ok := w.(http.Flusher)
	if !ok {
		// httptest.ResponseRecorder doesn't implement Flusher,
		// but we still write the tokens for testability.
		flusher = nil
	}

	wroteToken := false
	err := s.services.chat.StreamChat(r.Context(), req.Messages, func(token string) {
		if _, werr := w.Write([]byte(token)); werr != nil {
			return
		}
		wroteToken = true
		if flusher != nil {
			flusher.Flush()
		}
	})
	if err != nil && !wroteToken {
		// Headers not committed by a token yet; report the failure properly.
		http.Error(w, `{"error":"chat relay failed"}`, quiberr.HTTPStatus(err))
	}
	// Mid-stream failures just end the stream; the partial reply stands.
}
