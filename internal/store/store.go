// Package store keeps drafts and the log of published posts in a local SQLite
// database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS drafts (
	id         TEXT PRIMARY KEY,
	content    TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS drafts_updated_at ON drafts (updated_at DESC);

CREATE TABLE IF NOT EXISTS posts (
	remote_id TEXT PRIMARY KEY,
	text      TEXT NOT NULL,
	had_image INTEGER NOT NULL DEFAULT 0,
	posted_at INTEGER NOT NULL
);
`

// Draft is an unpublished post body.
type Draft struct {
	ID        string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewDraft stamps a new draft with a time-ordered UUIDv7 id.
func NewDraft(content string, now time.Time) (Draft, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Draft{}, fmt.Errorf("draft id: %w", err)
	}
	return Draft{ID: id.String(), Content: content, CreatedAt: now, UpdatedAt: now}, nil
}

// Update replaces the content and bumps UpdatedAt.
func (d *Draft) Update(content string, now time.Time) {
	d.Content = content
	d.UpdatedAt = now
}

// Preview is one list line: "2006-01-02 15:04 | first line of the draft".
func (d Draft) Preview() string {
	first, _, _ := strings.Cut(d.Content, "\n")
	if r := []rune(first); len(r) > 60 {
		first = string(r[:60]) + "..."
	}
	return d.UpdatedAt.Local().Format("2006-01-02 15:04") + " | " + first
}

// PostRecord is one entry of the published-post log.
type PostRecord struct {
	RemoteID string
	Text     string
	HadImage bool
	PostedAt time.Time
}

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, err
	}
	// One UI goroutine and one pipeline goroutine; a single connection avoids
	// SQLITE_BUSY between them.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// ===================== drafts =====================

// SaveDraft inserts d or overwrites the draft with the same id.
func (s *Store) SaveDraft(ctx context.Context, d Draft) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO drafts (id, content, created_at, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at`,
		d.ID, d.Content, d.CreatedAt.UnixNano(), d.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("save draft %s: %w", d.ID, err)
	}
	return nil
}

// LoadDrafts returns every draft, most recently updated first.
func (s *Store) LoadDrafts(ctx context.Context) ([]Draft, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, content, created_at, updated_at
FROM drafts
ORDER BY updated_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("load drafts: %w", err)
	}
	defer rows.Close()

	var out []Draft
	for rows.Next() {
		var d Draft
		var created, updated int64
		if err := rows.Scan(&d.ID, &d.Content, &created, &updated); err != nil {
			return nil, err
		}
		d.CreatedAt = time.Unix(0, created)
		d.UpdatedAt = time.Unix(0, updated)
		out = append(out, d)
	}
	return out, rows.Err()
}

// GetDraft returns the draft with id, or sql.ErrNoRows wrapped.
func (s *Store) GetDraft(ctx context.Context, id string) (Draft, error) {
	var d Draft
	var created, updated int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, content, created_at, updated_at FROM drafts WHERE id = ?`, id).
		Scan(&d.ID, &d.Content, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Draft{}, fmt.Errorf("draft %s not found: %w", id, err)
		}
		return Draft{}, err
	}
	d.CreatedAt = time.Unix(0, created)
	d.UpdatedAt = time.Unix(0, updated)
	return d, nil
}

// DeleteDraft removes the draft. Deleting a missing draft is not an error.
func (s *Store) DeleteDraft(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM drafts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete draft %s: %w", id, err)
	}
	return nil
}

// ===================== post log =====================

// RecordPost logs a published post.
func (s *Store) RecordPost(ctx context.Context, remoteID, text string, hadImage bool, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO posts (remote_id, text, had_image, posted_at) VALUES (?, ?, ?, ?)`,
		remoteID, text, hadImage, at.UnixNano())
	if err != nil {
		return fmt.Errorf("record post %s: %w", remoteID, err)
	}
	return nil
}

// RecentPosts returns up to limit logged posts, newest first.
func (s *Store) RecentPosts(ctx context.Context, limit int) ([]PostRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT remote_id, text, had_image, posted_at FROM posts ORDER BY posted_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent posts: %w", err)
	}
	defer rows.Close()

	var out []PostRecord
	for rows.Next() {
		var r PostRecord
		var at int64
		if err := rows.Scan(&r.RemoteID, &r.Text, &r.HadImage, &at); err != nil {
			return nil, err
		}
		r.PostedAt = time.Unix(0, at)
		out = append(out, r)
	}
	return out, rows.Err()
}
