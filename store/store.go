// Package store persists the media gallery and the studio's key/value
// settings in a local SQLite database.
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

// ErrNotFound is returned when an item or key does not exist.
var ErrNotFound = errors.New("not found")

// MediaItem is one generated or edited image or video in the gallery.
type MediaItem struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Prompt    string    `json:"prompt"`
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	URL       string    `json:"url,omitempty"`
	LocalPath string    `json:"local_path,omitempty"`
	Format    string    `json:"format"`
	Width     int       `json:"width,omitempty"`
	Height    int       `json:"height,omitempty"`
	JobID     string    `json:"job_id,omitempty"`
	ParentID  string    `json:"parent_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Filter narrows ListItems.
type Filter struct {
	Type  string
	Limit int
}

// Store manages gallery persistence backed by SQLite.
type Store struct {
	db *sql.DB
}

// Open initializes or connects to the database at path and applies migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	s := &Store{db: db}
	if err := s.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const itemColumns = "id, media_type, prompt, provider, model, url, local_path, format, width, height, job_id, parent_id, created_at"

// AddItem stores a new item, assigning an ID and creation time when unset.
func (s *Store) AddItem(ctx context.Context, item *MediaItem) error {
	if item == nil {
		return errors.New("add item: nil item")
	}
	if strings.TrimSpace(item.Type) == "" {
		return errors.New("add item: media type required")
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO media_items ("+itemColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		item.ID, item.Type, item.Prompt, item.Provider, item.Model, item.URL, item.LocalPath,
		item.Format, item.Width, item.Height, item.JobID, item.ParentID, formatTime(item.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert media item: %w", err)
	}
	return nil
}

// GetItem returns the item with the given ID.
func (s *Store) GetItem(ctx context.Context, id string) (*MediaItem, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+itemColumns+" FROM media_items WHERE id = ?", id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("media item %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get media item: %w", err)
	}
	return item, nil
}

// ListItems returns items newest first.
func (s *Store) ListItems(ctx context.Context, filter Filter) ([]*MediaItem, error) {
	query := "SELECT " + itemColumns + " FROM media_items"
	var args []any
	if filter.Type != "" {
		query += " WHERE media_type = ?"
		args = append(args, filter.Type)
	}
	query += " ORDER BY created_at DESC, rowid DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list media items: %w", err)
	}
	defer rows.Close()

	var items []*MediaItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan media item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// UpdateItem rewrites the mutable fields of an existing item.
func (s *Store) UpdateItem(ctx context.Context, item *MediaItem) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE media_items SET prompt = ?, url = ?, local_path = ?, format = ?, width = ?, height = ? WHERE id = ?",
		item.Prompt, item.URL, item.LocalPath, item.Format, item.Width, item.Height, item.ID,
	)
	if err != nil {
		return fmt.Errorf("update media item: %w", err)
	}
	return expectOneRow(res, "media item "+item.ID)
}

// DeleteItem removes an item.
func (s *Store) DeleteItem(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM media_items WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete media item: %w", err)
	}
	return expectOneRow(res, "media item "+id)
}

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("key %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get key %s: %w", key, err)
	}
	return value, nil
}

// Set stores value under key, replacing any previous value.
func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at",
		key, value, formatTime(time.Now().UTC()),
	)
	if err != nil {
		return fmt.Errorf("set key %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("delete key %s: %w", key, err)
	}
	return nil
}

// Prefixed returns all keys starting with prefix.
func (s *Store) Prefixed(ctx context.Context, prefix string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM kv WHERE substr(key, 1, ?) = ?", len(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("list keys %s*: %w", prefix, err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (*MediaItem, error) {
	var item MediaItem
	var created string
	if err := row.Scan(&item.ID, &item.Type, &item.Prompt, &item.Provider, &item.Model, &item.URL,
		&item.LocalPath, &item.Format, &item.Width, &item.Height, &item.JobID, &item.ParentID, &created); err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", created, err)
	}
	item.CreatedAt = t
	return &item, nil
}

func expectOneRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
