package generation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mediastudio/imageproc"
	"mediastudio/providers"
	"mediastudio/store"
)

// ReadMedia returns the content of an item, preferring its local copy.
func (s *Service) ReadMedia(ctx context.Context, item *store.MediaItem) ([]byte, error) {
	if item.LocalPath != "" {
		data, err := os.ReadFile(s.localPath(item))
		if err == nil {
			return data, nil
		}
		if item.URL == "" {
			return nil, fmt.Errorf("read local copy: %w", err)
		}
		zap.S().Warnf("Local copy of %s unreadable, falling back to URL: %v", item.ID, err)
	}
	if item.URL == "" {
		return nil, fmt.Errorf("media item %s has no content", item.ID)
	}
	data, _, err := providers.DownloadFile(ctx, s.httpClient, item.URL)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", item.ID, err)
	}
	return data, nil
}

// Thumbnail renders a WebP preview of an image item.
func (s *Service) Thumbnail(ctx context.Context, id string, size uint) ([]byte, error) {
	item, err := s.store.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Type != string(providers.MediaImage) {
		return nil, fmt.Errorf("%w: thumbnails are only rendered for images", ErrInvalidRequest)
	}
	data, err := s.ReadMedia(ctx, item)
	if err != nil {
		return nil, err
	}
	return imageproc.Thumbnail(data, size)
}

// Edit applies photo adjustments to an image item and stores the result as a
// new item that points back at its source.
func (s *Service) Edit(ctx context.Context, id string, adj imageproc.Adjustments) (*store.MediaItem, error) {
	if err := adj.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	src, err := s.store.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if src.Type != string(providers.MediaImage) {
		return nil, fmt.Errorf("%w: only images can be edited", ErrInvalidRequest)
	}
	data, err := s.ReadMedia(ctx, src)
	if err != nil {
		return nil, err
	}
	edited, err := imageproc.Edit(data, adj)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	item := &store.MediaItem{
		ID:       uuid.NewString(),
		Type:     src.Type,
		Prompt:   src.Prompt,
		Provider: src.Provider,
		Model:    src.Model,
		Format:   "png",
		ParentID: src.ID,
	}
	if item.Width, item.Height, err = imageproc.Dimensions(edited); err != nil {
		return nil, fmt.Errorf("inspect edited image: %w", err)
	}
	if item.LocalPath, err = s.writeMedia(item.ID, edited, item.Format); err != nil {
		return nil, err
	}
	if err := s.store.AddItem(ctx, item); err != nil {
		_ = os.Remove(s.localPath(item))
		return nil, err
	}
	zap.S().Infof("Saved edit %s of %s", item.ID, src.ID)
	return item, nil
}

// Delete removes an item and its local copy.
func (s *Service) Delete(ctx context.Context, id string) error {
	item, err := s.store.GetItem(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteItem(ctx, id); err != nil {
		return err
	}
	if item.LocalPath != "" {
		if err := os.Remove(s.localPath(item)); err != nil && !errors.Is(err, os.ErrNotExist) {
			zap.S().Warnf("Could not remove %s: %v", item.LocalPath, err)
		}
	}
	return nil
}

// localPath resolves an item's local copy inside the media directory.
func (s *Service) localPath(item *store.MediaItem) string {
	return filepath.Join(s.mediaDir, filepath.Base(item.LocalPath))
}
