// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quibli Contributors

package store

import "context"

// ContentStore is the contract the discovery core holds against the
// platform's content storage: fetch-by-id with the embedding field, a
// single-row idempotent embedding update, distance-ordered scans over
// embedded items, and join-time retrieval of tags, counters, and author
// summaries.
type ContentStore interface {
	CreatePost(ctx context.Context, in CreatePostInput) (*Post, error)
	CreateQuestion(ctx context.Context, in CreateQuestionInput) (*Question, error)

	GetPost(ctx context.Context, id int64) (*Post, error)
	GetQuestion(ctx context.Context, id int64) (*Question, error)

	ListPosts(ctx context.Context, opts ListOpts) ([]*Post, error)
	ListQuestions(ctx context.Context, opts ListOpts) ([]*Question, error)

	EmbeddingWriter
	SemanticIndex

	Close() error
}

// EmbeddingWriter persists computed embeddings. Both updates are
// idempotent: re-running with an equivalent vector is safe.
type EmbeddingWriter interface {
	SetPostEmbedding(ctx context.Context, id int64, embedding []float32) error
	SetQuestionEmbedding(ctx context.Context, id int64, embedding []float32) error
}

// SemanticIndex answers distance-ordered scans restricted to items with a
// present embedding. Results are sorted by non-decreasing distance within
// a single call; there is no snapshot isolation across calls, so two
// sequential pages may disagree if items were embedded in between.
type SemanticIndex interface {
	// TitleDistances returns up to k (title, distance) pairs for one
	// collection, ascending by distance.
	TitleDistances(ctx context.Context, t ContentType, query []float32, k int) ([]TitleDistance, error)

	// NearestPosts returns the window [offset, offset+limit) of posts
	// ordered by distance to query, joined with tags, counters, and
	// author summary.
	NearestPosts(ctx context.Context, query []float32, offset, limit int) ([]RankedPost, error)

	// NearestQuestions is the question-side counterpart of NearestPosts.
	NearestQuestions(ctx context.Context, query []float32, offset, limit int) ([]RankedQuestion, error)
}
