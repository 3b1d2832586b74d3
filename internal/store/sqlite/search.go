// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quibli Contributors

package sqlite

import (
	"context"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"

	"github.com/quibli-dev/quibli/internal/store"
	quiberr "github.com/quibli-dev/quibli/pkg/errors"
)

// titleScanMultiple widens the inner KNN scan for TitleDistances so
// duplicate titles cannot crowd distinct ones out of the k result
// groups. vec0 needs k up front, so the scan cannot be unbounded.
const titleScanMultiple = 32

// TitleDistances returns up to k (title, min distance) groups for one
// collection, ascending by distance. Items sharing a title collapse
// into one group keyed by the closest match. Only embedded items
// participate; vec0 rows exist only after a backfill wrote them.
func (s *ContentStore) TitleDistances(ctx context.Context, t store.ContentType, query []float32, k int) ([]store.TitleDistance, error) {
	if !t.Valid() {
		return nil, quiberr.Errorf(quiberr.CodeStoreInvalidInput, "unknown content type %q", t)
	}
	if k <= 0 {
		return nil, nil
	}

	blob, err := sqlite_vec.SerializeFloat32(query)
	if err != nil {
		return nil, quiberr.Errorf(quiberr.CodeStoreInvalidInput, "serializing query vector: %w", err)
	}

	q := `SELECT p.title, MIN(v.distance) AS distance
FROM (SELECT id, distance FROM post_vectors WHERE embedding MATCH ? AND k = ?) v
JOIN posts p ON p.id = v.id
GROUP BY p.title
ORDER BY distance
LIMIT ?`
	if t == store.ContentTypeQuestion {
		q = `SELECT p.title, MIN(v.distance) AS distance
FROM (SELECT id, distance FROM question_vectors WHERE embedding MATCH ? AND k = ?) v
JOIN questions p ON p.id = v.id
GROUP BY p.title
ORDER BY distance
LIMIT ?`
	}

	rows, err := s.db.QueryContext(ctx, q, blob, k*titleScanMultiple, k)
	if err != nil {
		return nil, quiberr.Errorf(quiberr.CodeStoreDatabaseFailure, "scanning %s titles by distance: %w", t, err)
	}
	defer func() { _ = rows.Close() }()

	var out []store.TitleDistance
	for rows.Next() {
		var td store.TitleDistance
		if err := rows.Scan(&td.Title, &td.Distance); err != nil {
			return nil, quiberr.Errorf(quiberr.CodeStoreDatabaseFailure, "scanning title distance: %w", err)
		}
		out = append(out, td)
	}
	if err := rows.Err(); err != nil {
		return nil, quiberr.Errorf(quiberr.CodeStoreDatabaseFailure, "iterating title distances: %w", err)
	}

	return out, nil
}

// NearestPosts returns the window [offset, offset+limit) of posts ordered
// by distance to query, joined with counters, tags, and author summary.
// The scan covers only posts with a present embedding. There is no
// snapshot isolation: a backfill landing between two page fetches can
// shift the ranking, which callers accept.
func (s *ContentStore) NearestPosts(ctx context.Context, query []float32, offset, limit int) ([]store.RankedPost, error) {
	if limit <= 0 {
		return nil, nil
	}

	blob, err := sqlite_vec.SerializeFloat32(query)
	if err != nil {
		return nil, quiberr.Errorf(quiberr.CodeStoreInvalidInput, "serializing query vector: %w", err)
	}

	// vec0 KNN needs k up front; fetch enough rows to cover the window.
	const q = `SELECT p.id, p.title, p.content, p.created_at, v.distance,
	COALESCE(CAST(u.id AS TEXT), ''), COALESCE(u.nickname, ''), COALESCE(u.avatar, ''),
	(SELECT COUNT(*) FROM post_likes WHERE post_id = p.id),
	(SELECT COUNT(*) FROM post_favorites WHERE post_id = p.id),
	(SELECT COUNT(*) FROM comments WHERE post_id = p.id)
FROM (SELECT id, distance FROM post_vectors WHERE embedding MATCH ? AND k = ?) v
JOIN posts p ON p.id = v.id
LEFT JOIN users u ON u.id = p.user_id
ORDER BY v.distance
LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, q, blob, offset+limit, limit, offset)
	if err != nil {
		return nil, quiberr.Errorf(quiberr.CodeStoreDatabaseFailure, "searching posts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []store.RankedPost
	for rows.Next() {
		var r store.RankedPost
		var created string
		if err := rows.Scan(&r.ID, &r.Title, &r.Content, &created, &r.Distance,
			&r.Author.ID, &r.Author.Nickname, &r.Author.Avatar,
			&r.Likes, &r.Favorites, &r.Comments,
		); err != nil {
			return nil, quiberr.Errorf(quiberr.CodeStoreDatabaseFailure, "scanning ranked post: %w", err)
		}
		r.PublishedAt = publishedAt(created)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, quiberr.Errorf(quiberr.CodeStoreDatabaseFailure, "iterating ranked posts: %w", err)
	}

	for i := range results {
		if results[i].Tags, err = s.tagsFor(ctx, "post_tags", "post_id", results[i].ID); err != nil {
			return nil, err
		}
		if results[i].Tags == nil {
			results[i].Tags = []string{}
		}
	}

	return results, nil
}

// NearestQuestions is the question-side counterpart of NearestPosts; the
// comment count surfaces as the answer count.
func (s *ContentStore) NearestQuestions(ctx context.Context, query []float32, offset, limit int) ([]store.RankedQuestion, error) {
	if limit <= 0 {
		return nil, nil
	}

	blob, err := sqlite_vec.SerializeFloat32(query)
	if err != nil {
		return nil, quiberr.Errorf(quiberr.CodeStoreInvalidInput, "serializing query vector: %w", err)
	}

	const q = `SELECT qn.id, qn.title, qn.created_at, v.distance,
	COALESCE(CAST(u.id AS TEXT), ''), COALESCE(u.nickname, ''), COALESCE(u.avatar, ''),
	(SELECT COUNT(*) FROM question_likes WHERE question_id = qn.id),
	(SELECT COUNT(*) FROM question_favorites WHERE question_id = qn.id),
	(SELECT COUNT(*) FROM comments WHERE question_id = qn.id)
FROM (SELECT id, distance FROM question_vectors WHERE embedding MATCH ? AND k = ?) v
JOIN questions qn ON qn.id = v.id
LEFT JOIN users u ON u.id = qn.user_id
ORDER BY v.distance
LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, q, blob, offset+limit, limit, offset)
	if err != nil {
		return nil, quiberr.Errorf(quiberr.CodeStoreDatabaseFailure, "searching questions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []store.RankedQuestion
	for rows.Next() {
		var r store.RankedQuestion
		var created string
		if err := rows.Scan(&r.ID, &r.Title, &created, &r.Distance,
			&r.Author.ID, &r.Author.Nickname, &r.Author.Avatar,
			&r.Likes, &r.Favorites, &r.Answers,
		); err != nil {
			return nil, quiberr.Errorf(quiberr.CodeStoreDatabaseFailure, "scanning ranked question: %w", err)
		}
		r.PublishedAt = publishedAt(created)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, quiberr.Errorf(quiberr.CodeStoreDatabaseFailure, "iterating ranked questions: %w", err)
	}

	for i := range results {
		if results[i].Tags, err = s.tagsFor(ctx, "question_tags", "question_id", results[i].ID); err != nil {
			return nil, err
		}
		if results[i].Tags == nil {
			results[i].Tags = []string{}
		}
	}

	return results, nil
}

// publishedAt formats the stored timestamp for result payloads, empty
// when missing rather than null.
func publishedAt(created string) string {
	t := parseTime(created)
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02T15:04:05.000Z07:00")
}
