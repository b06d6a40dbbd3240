package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "studio.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestItemLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	item := &MediaItem{Type: "image", Prompt: "a red fox", Provider: "openai", Model: "dall-e-3", Format: "png", Width: 1024, Height: 1024}
	require.NoError(t, s.AddItem(ctx, item))
	require.NotEmpty(t, item.ID)
	require.False(t, item.CreatedAt.IsZero())

	got, err := s.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "a red fox", got.Prompt)
	assert.Equal(t, 1024, got.Width)
	assert.True(t, item.CreatedAt.Equal(got.CreatedAt))

	got.LocalPath = "media/fox.png"
	got.URL = "https://cdn.test/fox.png"
	require.NoError(t, s.UpdateItem(ctx, got))
	got, err = s.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "media/fox.png", got.LocalPath)

	require.NoError(t, s.DeleteItem(ctx, item.ID))
	_, err = s.GetItem(ctx, item.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteItem(ctx, item.ID), ErrNotFound)
	assert.ErrorIs(t, s.UpdateItem(ctx, got), ErrNotFound)
}

func TestListItemsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for i, typ := range []string{"image", "video", "image"} {
		require.NoError(t, s.AddItem(ctx, &MediaItem{
			ID:        string(rune('a' + i)),
			Type:      typ,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	all, err := s.ListItems(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{all[0].ID, all[1].ID, all[2].ID})

	images, err := s.ListItems(ctx, Filter{Type: "image", Limit: 1})
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, "c", images[0].ID)
}

func TestAddItemRequiresType(t *testing.T) {
	s := openTestStore(t)
	assert.Error(t, s.AddItem(context.Background(), &MediaItem{Prompt: "x"}))
}

func TestKeyValue(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.Get(ctx, "apikey.openai")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, "apikey.openai", "sk-1"))
	require.NoError(t, s.Set(ctx, "apikey.openai", "sk-2"))
	require.NoError(t, s.Set(ctx, "apikey.runway", "rw"))
	require.NoError(t, s.Set(ctx, "theme", "dark"))

	v, err := s.Get(ctx, "apikey.openai")
	require.NoError(t, err)
	assert.Equal(t, "sk-2", v)

	keys, err := s.Prefixed(ctx, "apikey.")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"apikey.openai": "sk-2", "apikey.runway": "rw"}, keys)

	require.NoError(t, s.Delete(ctx, "apikey.openai"))
	require.NoError(t, s.Delete(ctx, "apikey.openai"))
	_, err = s.Get(ctx, "apikey.openai")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "studio.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "k", "v"))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}
