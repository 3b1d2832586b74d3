// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quibli Contributors

package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/quibli-dev/quibli/internal/store"
	quiberr "github.com/quibli-dev/quibli/pkg/errors"
)

func init() {
	sqlite_vec.Auto()
}

// Compile-time interface check.
var _ store.ContentStore = (*ContentStore)(nil)

// ContentStore implements store.ContentStore backed by SQLite, with
// sqlite-vec vec0 virtual tables holding the post and question embeddings
// next to the relational content rows.
type ContentStore struct {
	db         *sql.DB
	dimensions int
	logger     *slog.Logger
}

// NewContentStore opens (or creates) a SQLite database at dbPath and
// initialises the content schema plus the two vec0 embedding tables.
func NewContentStore(dbPath string, dimensions int) (*ContentStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, quiberr.Errorf(quiberr.CodeStoreDatabaseFailure, "opening sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, quiberr.Errorf(quiberr.CodeStoreDatabaseFailure, "pinging sqlite db: %w", err)
	}

	if err := migrateContent(db, dimensions); err != nil {
		_ = db.Close()
		return nil, quiberr.Errorf(quiberr.CodeStoreDatabaseFailure, "migrating content tables: %w", err)
	}

	return &ContentStore{db: db, dimensions: dimensions, logger: slog.Default()}, nil
}

func migrateContent(db *sql.DB, dimensions int) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS users (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	nickname   TEXT NOT NULL DEFAULT '',
	avatar     TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS posts (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	title      TEXT NOT NULL,
	content    TEXT NOT NULL DEFAULT '',
	user_id    INTEGER NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS questions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	title      TEXT NOT NULL,
	user_id    INTEGER NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tags (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS post_tags (
	post_id INTEGER NOT NULL,
	tag_id  INTEGER NOT NULL,
	PRIMARY KEY (post_id, tag_id)
);

CREATE TABLE IF NOT EXISTS question_tags (
	question_id INTEGER NOT NULL,
	tag_id      INTEGER NOT NULL,
	PRIMARY KEY (question_id, tag_id)
);

CREATE TABLE IF NOT EXISTS post_likes (
	post_id INTEGER NOT NULL,
	user_id INTEGER NOT NULL,
	PRIMARY KEY (post_id, user_id)
);

CREATE TABLE IF NOT EXISTS post_favorites (
	post_id INTEGER NOT NULL,
	user_id INTEGER NOT NULL,
	PRIMARY KEY (post_id, user_id)
);

CREATE TABLE IF NOT EXISTS question_likes (
	question_id INTEGER NOT NULL,
	user_id     INTEGER NOT NULL,
	PRIMARY KEY (question_id, user_id)
);

CREATE TABLE IF NOT EXISTS question_favorites (
	question_id INTEGER NOT NULL,
	user_id     INTEGER NOT NULL,
	PRIMARY KEY (question_id, user_id)
);

CREATE TABLE IF NOT EXISTS comments (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	post_id     INTEGER,
	question_id INTEGER,
	user_id     INTEGER NOT NULL,
	parent_id   INTEGER,
	content     TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_posts_created ON posts(created_at);
CREATE INDEX IF NOT EXISTS idx_questions_created ON questions(created_at);
CREATE INDEX IF NOT EXISTS idx_comments_post ON comments(post_id);
CREATE INDEX IF NOT EXISTS idx_comments_question ON comments(question_id);
`
	if _, err := db.Exec(ddl); err != nil {
		return fmt.Errorf("creating content tables: %w", err)
	}

	// vec0 does not support IF NOT EXISTS-style column changes, but the
	// CREATE VIRTUAL TABLE IF NOT EXISTS form is fine.
	for _, table := range []string{"post_vectors", "question_vectors"} {
		vecDDL := fmt.Sprintf(
			`CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0(id INTEGER PRIMARY KEY, embedding float[%d])`,
			table, dimensions,
		)
		if _, err := db.Exec(vecDDL); err != nil {
			return fmt.Errorf("creating %s virtual table: %w", table, err)
		}
	}

	return nil
}

// Close closes the underlying database connection.
func (s *ContentStore) Close() error {
	return s.db.Close()
}

// Dimensions returns the embedding dimension the store was opened with.
func (s *ContentStore) Dimensions() int {
	return s.dimensions
}

// CreateUser inserts a user row and returns its id. Authors must exist
// before content referencing them is created.
func (s *ContentStore) CreateUser(ctx context.Context, nickname, avatar string) (int64, error) {
	const q = `INSERT INTO users (nickname, avatar, created_at) VALUES (?, ?, ?)`
	res, err := s.db.ExecContext(ctx, q, nickname, avatar, formatTime(time.Now()))
	if err != nil {
		return 0, quiberr.Errorf(quiberr.CodeStoreDatabaseFailure, "creating user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, quiberr.Errorf(quiberr.CodeStoreDatabaseFailure, "reading user id: %w", err)
	}
	return id, nil
}

// CreatePost inserts a post with its tags. The embedding starts absent;
// the backfill coordinator attaches it later.
func (s *ContentStore) CreatePost(ctx context.Context, in store.CreatePostInput) (*store.Post, error) {
	if in.Title == "" {
		return nil, quiberr.New(quiberr.CodeStoreInvalidInput, "post title is required")
	}

	tags := normalizeTags(in.Tags)
	now := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, quiberr.Errorf(quiberr.CodeStoreDatabaseFailure, "beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO posts (title, content, user_id, created_at) VALUES (?, ?, ?, ?)`,
		in.Title, in.Content, in.AuthorID, formatTime(now),
	)
	if err != nil {
		return nil, quiberr.Errorf(quiberr.CodeStoreDatabaseFailure, "inserting post: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, quiberr.Errorf(quiberr.CodeStoreDatabaseFailure, "reading post id: %w", err)
	}

	if err := attachTags(ctx, tx, "post_tags", "post_id", id, tags); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, quiberr.Errorf(quiberr.CodeStoreDatabaseFailure, "committing post %d: %w", id, err)
	}

	return &store.Post{
		ID:        id,
		Title:     in.Title,
		Content:   in.Content,
		Tags:      tags,
		AuthorID:  in.AuthorID,
		CreatedAt: now,
	}, nil
}

// CreateQuestion inserts a question with its tags, embedding absent.
func (s *ContentStore) CreateQuestion(ctx context.Context, in store.CreateQuestionInput) (*store.Question, error) {
	if in.Title == "" {
		return nil, quiberr.New(quiberr.CodeStoreInvalidInput, "question title is required")
	}

	tags := normalizeTags(in.Tags)
	now := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, quiberr.Errorf(quiberr.CodeStoreDatabaseFailure, "beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO questions (title, user_id, created_at) VALUES (?, ?, ?)`,
		in.Title, in.AuthorID, formatTime(now),
	)
	if err != nil {
		return nil, quiberr.Errorf(quiberr.CodeStoreDatabaseFailure, "inserting question: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, quiberr.Errorf(quiberr.CodeStoreDatabaseFailure, "reading question id: %w", err)
	}

	if err := attachTags(ctx, tx, "question_tags", "question_id", id, tags); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, quiberr.Errorf(quiberr.CodeStoreDatabaseFailure, "committing question %d: %w", id, err)
	}

	return &store.Question{
		ID:        id,
		Title:     in.Title,
		Tags:      tags,
		AuthorID:  in.AuthorID,
		CreatedAt: now,
	}, nil
}

// attachTags connect-or-creates each tag name and links it to the item.
func attachTags(ctx context.Context, tx *sql.Tx, linkTable, linkColumn string, itemID int64, tags []string) error {
	for _, name := range tags {
		if _, err := tx.ExecContext(ctx, `INSERT INTO tags (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, name); err != nil {
			return quiberr.Errorf(quiberr.CodeStoreDatabaseFailure, "upserting tag %q: %w", name, err)
		}

		var tagID int64
		if err := tx.QueryRowContext(ctx, `SELECT id FROM tags WHERE name = ?`, name).Scan(&tagID); err != nil {
			return quiberr.Errorf(quiberr.CodeStoreDatabaseFailure, "resolving tag %q: %w", name, err)
		}

		link := fmt.Sprintf(`INSERT INTO %s (%s, tag_id) VALUES (?, ?) ON CONFLICT DO NOTHING`, linkTable, linkColumn)
		if _, err := tx.ExecContext(ctx, link, itemID, tagID); err != nil {
			return quiberr.Errorf(quiberr.CodeStoreDatabaseFailure, "linking tag %q: %w", name, err)
		}
	}
	return nil
}

// normalizeTags trims, drops empties, and deduplicates while preserving
// first-seen order.
func normalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// GetPost fetches a post with its tags and embedding (nil when absent).
func (s *ContentStore) GetPost(ctx context.Context, id int64) (*store.Post, error) {
	const q = `SELECT id, title, content, user_id, created_at FROM posts WHERE id = ?`

	var p store.Post
	var created string
	err := s.db.QueryRowContext(ctx, q, id).Scan(&p.ID, &p.Title, &p.Content, &p.AuthorID, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, quiberr.Errorf(quiberr.CodeStoreEntityNotFound, "post %d not found", id)
		}
		return nil, quiberr.Errorf(quiberr.CodeStoreDatabaseFailure, "getting post %d: %w", id, err)
	}
	p.CreatedAt = parseTime(created)

	p.Tags, err = s.tagsFor(ctx, "post_tags", "post_id", id)
	if err != nil {
		return nil, err
	}

	p.Embedding, err = s.embeddingFor(ctx, "post_vectors", id)
	if err != nil {
		return nil, err
	}

	return &p, nil
}

// GetQuestion fetches a question with its tags and embedding.
func (s *ContentStore) GetQuestion(ctx context.Context, id int64) (*store.Question, error) {
	const q = `SELECT id, title, user_id, created_at FROM questions WHERE id = ?`

	var qn store.Question
	var created string
	err := s.db.QueryRowContext(ctx, q, id).Scan(&qn.ID, &qn.Title, &qn.AuthorID, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, quiberr.Errorf(quiberr.CodeStoreEntityNotFound, "question %d not found", id)
		}
		return nil, quiberr.Errorf(quiberr.CodeStoreDatabaseFailure, "getting question %d: %w", id, err)
	}
	qn.CreatedAt = parseTime(created)

	qn.Tags, err = s.tagsFor(ctx, "question_tags", "question_id", id)
	if err != nil {
		return nil, err
	}

	qn.Embedding, err = s.embeddingFor(ctx, "question_vectors", id)
	if err != nil {
		return nil, err
	}

	return &qn, nil
}

// ListPosts returns posts newest-first. Items without an embedding are
// included; plain listings do not care about semantic visibility.
func (s *ContentStore) ListPosts(ctx context.Context, opts store.ListOpts) ([]*store.Post, error) {
	const q = `SELECT id, title, content, user_id, created_at FROM posts
ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, q, opts.EffectiveLimit(), opts.Offset())
	if err != nil {
		return nil, quiberr.Errorf(quiberr.CodeStoreDatabaseFailure, "listing posts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var posts []*store.Post
	for rows.Next() {
		var p store.Post
		var created string
		if err := rows.Scan(&p.ID, &p.Title, &p.Content, &p.AuthorID, &created); err != nil {
			return nil, quiberr.Errorf(quiberr.CodeStoreDatabaseFailure, "scanning post: %w", err)
		}
		p.CreatedAt = parseTime(created)
		posts = append(posts, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, quiberr.Errorf(quiberr.CodeStoreDatabaseFailure, "iterating posts: %w", err)
	}

	for _, p := range posts {
		if p.Tags, err = s.tagsFor(ctx, "post_tags", "post_id", p.ID); err != nil {
			return nil, err
		}
	}

	return posts, nil
}

// ListQuestions returns questions newest-first, embedding-agnostic.
func (s *ContentStore) ListQuestions(ctx context.Context, opts store.ListOpts) ([]*store.Question, error) {
	const q = `SELECT id, title, user_id, created_at FROM questions
ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, q, opts.EffectiveLimit(), opts.Offset())
	if err != nil {
		return nil, quiberr.Errorf(quiberr.CodeStoreDatabaseFailure, "listing questions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var questions []*store.Question
	for rows.Next() {
		var qn store.Question
		var created string
		if err := rows.Scan(&qn.ID, &qn.Title, &qn.AuthorID, &created); err != nil {
			return nil, quiberr.Errorf(quiberr.CodeStoreDatabaseFailure, "scanning question: %w", err)
		}
		qn.CreatedAt = parseTime(created)
		questions = append(questions, &qn)
	}
	if err := rows.Err(); err != nil {
		return nil, quiberr.Errorf(quiberr.CodeStoreDatabaseFailure, "iterating questions: %w", err)
	}

	for _, qn := range questions {
		if qn.Tags, err = s.tagsFor(ctx, "question_tags", "question_id", qn.ID); err != nil {
			return nil, err
		}
	}

	return questions, nil
}

// SetPostEmbedding persists a post's embedding as a single idempotent
// upsert. Re-running with an equivalent vector is safe.
func (s *ContentStore) SetPostEmbedding(ctx context.Context, id int64, embedding []float32) error {
	return s.setEmbedding(ctx, "post_vectors", id, embedding)
}

// SetQuestionEmbedding is the question-side counterpart of SetPostEmbedding.
func (s *ContentStore) SetQuestionEmbedding(ctx context.Context, id int64, embedding []float32) error {
	return s.setEmbedding(ctx, "question_vectors", id, embedding)
}

func (s *ContentStore) setEmbedding(ctx context.Context, table string, id int64, embedding []float32) error {
	if len(embedding) != s.dimensions {
		return quiberr.Errorf(quiberr.CodeStoreInvalidInput,
			"embedding for id %d has dimension %d, store expects %d", id, len(embedding), s.dimensions)
	}

	blob, err := sqlite_vec.SerializeFloat32(embedding)
	if err != nil {
		return quiberr.Errorf(quiberr.CodeStoreInvalidInput, "serializing embedding: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return quiberr.Errorf(quiberr.CodeStoreDatabaseFailure, "beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// vec0 does not support ON CONFLICT; delete first for upsert.
	if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id); err != nil {
		return quiberr.Errorf(quiberr.CodeStoreDatabaseFailure, "deleting existing embedding %d: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO `+table+`(id, embedding) VALUES (?, ?)`, id, blob); err != nil {
		return quiberr.Errorf(quiberr.CodeStoreDatabaseFailure, "inserting embedding %d: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return quiberr.Errorf(quiberr.CodeStoreDatabaseFailure, "committing embedding %d: %w", id, err)
	}
	return nil
}

// tagsFor returns the tag names linked to one item, in tag-id order.
func (s *ContentStore) tagsFor(ctx context.Context, linkTable, linkColumn string, itemID int64) ([]string, error) {
	q := fmt.Sprintf(`SELECT t.name FROM tags t JOIN %s l ON l.tag_id = t.id WHERE l.%s = ? ORDER BY t.id`,
		linkTable, linkColumn)

	rows, err := s.db.QueryContext(ctx, q, itemID)
	if err != nil {
		return nil, quiberr.Errorf(quiberr.CodeStoreDatabaseFailure, "loading tags for %d: %w", itemID, err)
	}
	defer func() { _ = rows.Close() }()

	var tags []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, quiberr.Errorf(quiberr.CodeStoreDatabaseFailure, "scanning tag: %w", err)
		}
		tags = append(tags, name)
	}
	if err := rows.Err(); err != nil {
		return nil, quiberr.Errorf(quiberr.CodeStoreDatabaseFailure, "iterating tags: %w", err)
	}

	return tags, nil
}

// embeddingFor reads one embedding back from a vec0 table, nil when the
// item has not been backfilled yet.
func (s *ContentStore) embeddingFor(ctx context.Context, table string, id int64) ([]float32, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT embedding FROM `+table+` WHERE id = ?`, id).Scan(&blob)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, quiberr.Errorf(quiberr.CodeStoreDatabaseFailure, "loading embedding %d: %w", id, err)
	}
	return deserializeFloat32(blob), nil
}

// deserializeFloat32 decodes the little-endian float32 blob vec0 stores.
func deserializeFloat32(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

// formatTime serialises a time.Time to RFC3339 with nanosecond precision.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime deserialises a time string stored in the database.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
