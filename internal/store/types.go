// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quibli Contributors

package store

import "time"

// ContentType selects one of the two content collections.
type ContentType string

const (
	ContentTypePost     ContentType = "post"
	ContentTypeQuestion ContentType = "question"
)

// Valid reports whether t names a known collection.
func (t ContentType) Valid() bool {
	return t == ContentTypePost || t == ContentTypeQuestion
}

// Author is the denormalized author summary joined into ranked results.
// Missing fields are empty strings, never null, so the result shape stays
// stable for consumers.
type Author struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar"`
}

// Counters are aggregate counts owned by the content store and read-only
// to the discovery core.
type Counters struct {
	Likes     int `json:"totalLikes"`
	Favorites int `json:"totalFavorites"`
	Comments  int `json:"totalComments"`
}

// Post is a long-form content item. Embedding is nil until the backfill
// coordinator computes it; a nil embedding hides the post from semantic
// queries but not from plain listings.
type Post struct {
	ID        int64
	Title     string
	Content   string
	Tags      []string
	AuthorID  int64
	CreatedAt time.Time
	Embedding []float32
}

// Question is a title-plus-tags content item; it has no body.
type Question struct {
	ID        int64
	Title     string
	Tags      []string
	AuthorID  int64
	CreatedAt time.Time
	Embedding []float32
}

// CreatePostInput carries the fields the creation flow provides. Tags are
// deduplicated and trimmed by the store; the embedding starts absent.
type CreatePostInput struct {
	Title    string
	Content  string
	Tags     []string
	AuthorID int64
}

// CreateQuestionInput mirrors CreatePostInput for questions.
type CreateQuestionInput struct {
	Title    string
	Tags     []string
	AuthorID int64
}

// TitleDistance is one element of a distance-ordered title stream used by
// the suggestion merge. Distance is a unitless dissimilarity; lower means
// more similar.
type TitleDistance struct {
	Title    string
	Distance float64
}

// RankedPost is a transient (post, distance) view produced by a semantic
// search call; it is never persisted.
type RankedPost struct {
	ID          int64    `json:"id"`
	Title       string   `json:"title"`
	Content     string   `json:"content"`
	PublishedAt string   `json:"publishedAt"`
	Tags        []string `json:"tags"`
	Counters
	Author   Author  `json:"user"`
	Distance float64 `json:"-"`
}

// RankedQuestion is the question-side counterpart of RankedPost. Comment
// counts surface as answers.
type RankedQuestion struct {
	ID          int64    `json:"id"`
	Title       string   `json:"title"`
	PublishedAt string   `json:"publishedAt"`
	Tags        []string `json:"tags"`
	Likes       int      `json:"totalLikes"`
	Favorites   int      `json:"totalFavorites"`
	Answers     int      `json:"totalAnswers"`
	Author      Author   `json:"user"`
	Distance    float64  `json:"-"`
}

// ListOpts controls plain (non-semantic) listings.
type ListOpts struct {
	Page  int
	Limit int
}

// Offset returns the row offset for the page, defaulting page and limit
// when unset.
func (o ListOpts) Offset() int {
	page := o.Page
	if page < 1 {
		page = 1
	}
	return (page - 1) * o.EffectiveLimit()
}

// EffectiveLimit returns the row limit, defaulting to 10.
func (o ListOpts) EffectiveLimit() int {
	if o.Limit < 1 {
		return 10
	}
	return o.Limit
}
