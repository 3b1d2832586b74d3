// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quibli Contributors

// Package search ranks stored content against free-text queries using
// embedding distance.
package search

import (
	"context"
	"log/slog"
	"strings"

	"github.com/quibli-dev/quibli/internal/provider"
	"github.com/quibli-dev/quibli/internal/store"
)

const (
	// minQueryRunes is the shortest trimmed query worth embedding.
	minQueryRunes = 2
	// suggestLimit caps the merged suggestion list.
	suggestLimit = 7
)

// Ranker turns keywords into embedding-distance rankings over the
// content store. Both entry points degrade to empty results on any
// provider or store failure; search never takes a write path down
// with it.
type Ranker struct {
	embedder provider.Embedder
	index    store.SemanticIndex
	logger   *slog.Logger
}

// NewRanker creates a Ranker over the given embedder and index.
func NewRanker(embedder provider.Embedder, index store.SemanticIndex, logger *slog.Logger) *Ranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ranker{embedder: embedder, index: index, logger: logger}
}

// Suggest returns up to seven titles semantically close to the query,
// merged across posts and questions and deduplicated by title. Queries
// shorter than two runes after trimming return nothing without touching
// the provider.
func (r *Ranker) Suggest(ctx context.Context, query string) []string {
	trimmed := strings.TrimSpace(query)
	if len([]rune(trimmed)) < minQueryRunes {
		return []string{}
	}

	vector, err := r.embedder.Embed(ctx, trimmed)
	if err != nil {
		r.logger.Error("suggestion embedding failed", "query", trimmed, "error", err)
		return []string{}
	}

	posts, err := r.index.TitleDistances(ctx, store.ContentTypePost, vector, suggestLimit)
	if err != nil {
		r.logger.Error("post title lookup failed", "error", err)
		return []string{}
	}
	questions, err := r.index.TitleDistances(ctx, store.ContentTypeQuestion, vector, suggestLimit)
	if err != nil {
		r.logger.Error("question title lookup failed", "error", err)
		return []string{}
	}

	return mergeTitles(posts, questions, suggestLimit)
}

// SearchPosts returns posts ranked by distance to the keyword. A blank
// keyword returns nothing without a provider call.
func (r *Ranker) SearchPosts(ctx context.Context, keyword string, opts store.ListOpts) []store.RankedPost {
	vector, ok := r.embedKeyword(ctx, keyword)
	if !ok {
		return []store.RankedPost{}
	}

	results, err := r.index.NearestPosts(ctx, vector, opts.Offset(), opts.EffectiveLimit())
	if err != nil {
		r.logger.Error("post search failed", "keyword", keyword, "error", err)
		return []store.RankedPost{}
	}
	return results
}

// SearchQuestions returns questions ranked by distance to the keyword.
func (r *Ranker) SearchQuestions(ctx context.Context, keyword string, opts store.ListOpts) []store.RankedQuestion {
	vector, ok := r.embedKeyword(ctx, keyword)
	if !ok {
		return []store.RankedQuestion{}
	}

	results, err := r.index.NearestQuestions(ctx, vector, opts.Offset(), opts.EffectiveLimit())
	if err != nil {
		r.logger.Error("question search failed", "keyword", keyword, "error", err)
		return []store.RankedQuestion{}
	}
	return results
}

func (r *Ranker) embedKeyword(ctx context.Context, keyword string) ([]float32, bool) {
	trimmed := strings.TrimSpace(keyword)
	if trimmed == "" {
		return nil, false
	}

	vector, err := r.embedder.Embed(ctx, trimmed)
	if err != nil {
		r.logger.Error("search embedding failed", "keyword", trimmed, "error", err)
		return nil, false
	}
	return vector, true
}

// mergeTitles merges two distance-ascending streams into one, keeping
// the closer occurrence of any duplicated title.
func mergeTitles(a, b []store.TitleDistance, limit int) []string {
	titles := make([]string, 0, limit)
	seen := make(map[string]struct{}, limit)

	i, j := 0, 0
	for len(titles) < limit && (i < len(a) || j < len(b)) {
		var next store.TitleDistance
		switch {
		case i >= len(a):
			next = b[j]
			j++
		case j >= len(b):
			next = a[i]
			i++
		case a[i].Distance <= b[j].Distance:
			next = a[i]
			i++
		default:
			next = b[j]
			j++
		}
		if _, dup := seen[next.Title]; dup {
			continue
		}
		seen[next.Title] = struct{}{}
		titles = append(titles, next.Title)
	}
	return titles
}
