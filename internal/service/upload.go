package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"foldershare/internal/domain"
	"foldershare/internal/domain/models"
	"foldershare/internal/storage"
)

func newStorageKey(ownerID string) string {
	return storage.NewKey(ownerID)
}

// Upload stores one file's bytes and wraps them in a new item. With an
// empty parentID the file becomes a root item. The settings' extension
// allow-list and per-file size limit apply.
func (s *ItemService) Upload(ctx context.Context, user models.User, parentID, filename, mimeType string, content io.Reader) (*models.Item, error) {
	if user.Anonymous() && parentID == "" {
		return nil, &domain.UnauthorizedError{Message: "authentication required"}
	}
	if err := validateName(filename); err != nil {
		return nil, err
	}

	settings := s.settings.Current()
	if !settings.ExtensionAllowed(filename) {
		return nil, &domain.ValidationError{
			Summary: fmt.Sprintf("files of this type are not allowed (%q)", filename),
		}
	}

	var parent *models.Item
	if parentID != "" {
		var err error
		parent, err = s.access.Load(ctx, user, parentID, OpAuthor)
		if err != nil {
			return nil, err
		}
		if !parent.IsFolder() {
			return nil, &domain.ValidationError{
				Summary: fmt.Sprintf("%q is not a folder", parent.Name),
				Detail:  "upload was given a non-folder parent; the client should not offer it",
			}
		}
	}

	owner := user.ID
	var newParentID *string
	if parent != nil {
		owner = parent.OwnerID
		newParentID = &parent.ID
	}

	if existing, err := s.itemRepo.ChildByName(ctx, newParentID, owner, filename); err == nil {
		return nil, &domain.ConflictError{
			Message:      fmt.Sprintf("an item named %q already exists at the destination", filename),
			ResourceType: "item",
			ResourceID:   existing.ID,
		}
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	file, err := s.storeFile(ctx, owner, filename, mimeType, content, settings.MaxUploadSize)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	item := &models.Item{
		ID:        uuid.NewString(),
		OwnerID:   owner,
		ParentID:  newParentID,
		Name:      filename,
		Kind:      models.KindFromMime(mimeType),
		MimeType:  mimeType,
		Size:      file.Size,
		FileID:    &file.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if parent != nil {
		item.RootID = parent.RootID
	} else {
		item.RootID = item.ID
	}

	if err := s.itemRepo.Create(ctx, item); err != nil {
		// Orphaned content must not survive a failed wrapper insert.
		_ = s.store.Delete(ctx, file.Key)
		_ = s.fileRepo.Delete(ctx, file.ID)
		return nil, err
	}

	if err := s.adjustAncestorSizes(ctx, newParentID, item.Size); err != nil {
		return nil, err
	}

	s.logActivity(user, "upload", "item_id", item.ID, "name", filename, "size", file.Size)
	return item, nil
}

// storeFile streams content into the blob store and records it,
// enforcing the per-file size limit as it copies.
func (s *ItemService) storeFile(ctx context.Context, ownerID, filename, mimeType string, content io.Reader, maxSize int64) (*models.StoredFile, error) {
	reader := content
	if maxSize > 0 {
		// One extra byte so the limit overshoot is detectable.
		reader = io.LimitReader(content, maxSize+1)
	}

	key := newStorageKey(ownerID)
	size, err := s.store.Put(ctx, key, reader)
	if err != nil {
		return nil, err
	}
	if maxSize > 0 && size > maxSize {
		_ = s.store.Delete(ctx, key)
		return nil, &domain.ValidationError{
			Summary: fmt.Sprintf("%q exceeds the upload size limit of %d bytes", filename, maxSize),
		}
	}

	file := &models.StoredFile{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Key:       key,
		Filename:  filename,
		MimeType:  mimeType,
		Size:      size,
		Scheme:    s.settings.Current().FileScheme,
		CreatedAt: time.Now(),
	}
	if err := s.fileRepo.Create(ctx, file); err != nil {
		_ = s.store.Delete(ctx, key)
		return nil, err
	}

	return file, nil
}

// Download opens the stored content behind a file-like item. The caller
// closes the reader.
func (s *ItemService) Download(ctx context.Context, user models.User, id string) (*models.StoredFile, io.ReadCloser, error) {
	item, err := s.access.Load(ctx, user, id, OpView)
	if err != nil {
		return nil, nil, err
	}
	if !item.HasStoredFile() {
		return nil, nil, &domain.ValidationError{
			Summary: fmt.Sprintf("%q is a folder and cannot be downloaded directly; compress it first", item.Name),
		}
	}

	file, err := s.fileRepo.GetByID(ctx, *item.FileID)
	if err != nil {
		return nil, nil, err
	}

	reader, err := s.store.Get(ctx, file.Key)
	if err != nil {
		return nil, nil, err
	}

	s.logActivity(user, "download", "item_id", item.ID, "name", item.Name)
	return file, reader, nil
}
