// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quibli Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/quibli-dev/quibli/internal/provider"
	"github.com/quibli-dev/quibli/internal/server"
	"github.com/quibli-dev/quibli/internal/store"
	quiberr "github.com/quibli-dev/quibli/pkg/errors"
)

func main() {
	spec, err := generateSpec()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	outPath := "api/openapi/spec.json"
	if len(os.Args) > 1 {
		outPath = os.Args[1]
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error creating output dir: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(outPath, spec, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error writing spec: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("OpenAPI spec written to %s\n", outPath)
}

// generateSpec creates a server with all routes registered and extracts the
// OpenAPI spec that huma generates from the Go type annotations.
func generateSpec() ([]byte, error) {
	// Use no-op service stubs so all routes are registered for schema
	// discovery. Handlers are never invoked during spec generation.
	svc := server.NewServicesForTest(&stubContent{}, &stubRanker{}, &stubAvatars{}, &stubChat{})

	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"})
	if err != nil {
		return nil, quiberr.Errorf(quiberr.CodeCLISetupFailure, "creating server: %w", err)
	}
	srv.RegisterServices(svc)

	return json.MarshalIndent(srv.API().OpenAPI(), "", "  ")
}

// No-op service stubs for spec generation. Methods are never called.

type stubContent struct{}

func (s *stubContent) CreatePost(context.Context, store.CreatePostInput) (*store.Post, error) {
	return nil, nil
}

func (s *stubContent) CreateQuestion(context.Context, store.CreateQuestionInput) (*store.Question, error) {
	return nil, nil
}
func (s *stubContent) GetPost(context.Context, int64) (*store.Post, error)         { return nil, nil }
func (s *stubContent) GetQuestion(context.Context, int64) (*store.Question, error) { return nil, nil }
func (s *stubContent) ListPosts(context.Context, store.ListOpts) ([]*store.Post, error) {
	return nil, nil
}

func (s *stubContent) ListQuestions(context.Context, store.ListOpts) ([]*store.Question, error) {
	return nil, nil
}

type stubRanker struct{}

func (s *stubRanker) Suggest(context.Context, string) []string { return nil }
func (s *stubRanker) SearchPosts(context.Context, string, store.ListOpts) []store.RankedPost {
	return nil
}

func (s *stubRanker) SearchQuestions(context.Context, string, store.ListOpts) []store.RankedQuestion {
	return nil
}

type stubAvatars struct{}

func (s *stubAvatars) Generate(context.Context, string) (string, error) { return "", nil }

type stubChat struct{}

func (s *stubChat) StreamChat(context.Context, []provider.ChatMessage, func(string)) error {
	return nil
}
