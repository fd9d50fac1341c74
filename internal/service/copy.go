package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"foldershare/internal/domain"
	"foldershare/internal/domain/models"
)

// Move reparents an item under a destination folder, or to the top
// level when destID is empty. Locks are taken on the item, its current
// parent, and the destination, and released before the subtree's root
// pointers are rewritten.
func (s *ItemService) Move(ctx context.Context, user models.User, id, destID string) (*models.Item, error) {
	item, err := s.access.Load(ctx, user, id, OpAuthor)
	if err != nil {
		return nil, err
	}

	var dest *models.Item
	if destID != "" {
		dest, err = s.access.Load(ctx, user, destID, OpAuthor)
		if err != nil {
			return nil, err
		}
		if !dest.IsFolder() {
			return nil, &domain.ValidationError{
				Summary: fmt.Sprintf("%q is not a folder", dest.Name),
				Detail:  "move was given a non-folder destination; the client should not offer it",
			}
		}
		if dest.ID == item.ID {
			return nil, &domain.ValidationError{Summary: "an item cannot be moved into itself"}
		}
		inside, err := s.isDescendant(ctx, dest.ID, item.ID)
		if err != nil {
			return nil, err
		}
		if inside {
			return nil, &domain.ValidationError{
				Summary: fmt.Sprintf("%q cannot be moved into its own subtree", item.Name),
			}
		}
	} else if user.Anonymous() {
		return nil, &domain.UnauthorizedError{Message: "authentication required"}
	}

	locked, unlockAll := s.lockGroup(moveLockIDs(item, dest))
	if !locked {
		return nil, &domain.LockError{
			Message: fmt.Sprintf("%q or its surroundings are in use; try again shortly", item.Name),
			ItemID:  item.ID,
		}
	}
	defer unlockAll()

	// Duplicate-name check against the destination.
	newOwner := item.OwnerID
	var newParentID *string
	if dest != nil {
		newOwner = dest.OwnerID
		newParentID = &dest.ID
	} else {
		newOwner = user.ID
	}
	if existing, err := s.itemRepo.ChildByName(ctx, newParentID, newOwner, item.Name); err == nil && existing.ID != item.ID {
		return nil, &domain.ConflictError{
			Message:      fmt.Sprintf("an item named %q already exists at the destination", item.Name),
			ResourceType: "item",
			ResourceID:   existing.ID,
		}
	} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	wasRoot := item.IsRoot()
	oldParentID := item.ParentID
	newRootID := item.ID
	if dest != nil {
		newRootID = dest.RootID
	}

	err = s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		if err := s.adjustAncestorSizes(txCtx, oldParentID, -item.Size); err != nil {
			return err
		}

		item.ParentID = newParentID
		item.OwnerID = newOwner
		item.RootID = newRootID
		item.UpdatedAt = time.Now()
		if err := s.itemRepo.Update(txCtx, item); err != nil {
			return err
		}

		if err := s.itemRepo.SetRootForSubtree(txCtx, item.ID, newRootID); err != nil {
			return err
		}

		// A root moved under another tree loses its grants; the new
		// root's grants govern from here on.
		if wasRoot && dest != nil {
			if err := s.grantRepo.ClearRoot(txCtx, item.ID); err != nil {
				return err
			}
		}

		return s.adjustAncestorSizes(txCtx, newParentID, item.Size)
	})
	if err != nil {
		return nil, err
	}

	s.logActivity(user, "move", "item_id", item.ID, "destination", destID)
	return item, nil
}

// Copy duplicates an item (recursively for folders) into a destination
// folder, or to the top level when destID is empty. The copy is owned
// by the copying user, carries no grants, and stored-file content is
// duplicated blob by blob.
func (s *ItemService) Copy(ctx context.Context, user models.User, id, destID, newName string) (*models.Item, error) {
	if user.Anonymous() {
		return nil, &domain.UnauthorizedError{Message: "authentication required"}
	}

	item, err := s.access.Load(ctx, user, id, OpView)
	if err != nil {
		return nil, err
	}

	var dest *models.Item
	if destID != "" {
		dest, err = s.access.Load(ctx, user, destID, OpAuthor)
		if err != nil {
			return nil, err
		}
		if !dest.IsFolder() {
			return nil, &domain.ValidationError{
				Summary: fmt.Sprintf("%q is not a folder", dest.Name),
				Detail:  "copy was given a non-folder destination; the client should not offer it",
			}
		}
		inside, err := s.isDescendant(ctx, dest.ID, item.ID)
		if err != nil {
			return nil, err
		}
		if inside {
			return nil, &domain.ValidationError{
				Summary: fmt.Sprintf("%q cannot be copied into its own subtree", item.Name),
			}
		}
	}

	if newName == "" {
		newName = item.Name
	}
	if err := validateName(newName); err != nil {
		return nil, err
	}

	if !s.tryLock(item.ID) {
		return nil, &domain.LockError{
			Message: fmt.Sprintf("%q is in use by another operation; try again shortly", item.Name),
			ItemID:  item.ID,
		}
	}
	defer s.unlock(item.ID)

	var newParentID *string
	var newRootID string
	if dest != nil {
		newParentID = &dest.ID
		newRootID = dest.RootID
	}

	if existing, err := s.itemRepo.ChildByName(ctx, newParentID, user.ID, newName); err == nil && existing != nil {
		return nil, &domain.ConflictError{
			Message:      fmt.Sprintf("an item named %q already exists at the destination", newName),
			ResourceType: "item",
			ResourceID:   existing.ID,
		}
	} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	// A folder copy is not atomic: the top clone stays disabled while
	// its subtree fills in, so a half-built tree is view-only until the
	// copy completes.
	copied, err := s.copySubtree(ctx, user, item, newParentID, newRootID, newName, item.IsFolder())
	if err != nil {
		return nil, err
	}

	if err := s.adjustAncestorSizes(ctx, newParentID, copied.Size); err != nil {
		return nil, err
	}

	if copied.Disabled {
		copied.Disabled = false
		copied.UpdatedAt = time.Now()
		if err := s.itemRepo.Update(ctx, copied); err != nil {
			return nil, err
		}
	}

	s.logActivity(user, "copy", "item_id", item.ID, "copy_id", copied.ID, "destination", destID)
	return copied, nil
}

// Duplicate copies an item next to itself under a distinguishing name.
func (s *ItemService) Duplicate(ctx context.Context, user models.User, id string) (*models.Item, error) {
	item, err := s.access.Load(ctx, user, id, OpView)
	if err != nil {
		return nil, err
	}

	destID := ""
	if item.ParentID != nil {
		destID = *item.ParentID
	}

	return s.Copy(ctx, user, id, destID, "Copy of "+item.Name)
}

// copySubtree clones one item and, for folders, recurses over visible
// children. Folder sizes accumulate from the copied children so the
// aggregate-size invariant holds for the new tree without a second pass.
// Only the top of a copy is created disabled; gating its root is enough
// to keep the tree under it out of reach.
func (s *ItemService) copySubtree(ctx context.Context, user models.User, src *models.Item, parentID *string, rootID, name string, disabled bool) (*models.Item, error) {
	now := time.Now()
	clone := &models.Item{
		ID:          uuid.NewString(),
		OwnerID:     user.ID,
		ParentID:    parentID,
		Name:        name,
		Description: src.Description,
		Kind:        src.Kind,
		MimeType:    src.MimeType,
		Disabled:    disabled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if rootID == "" {
		clone.RootID = clone.ID
	} else {
		clone.RootID = rootID
	}

	if src.HasStoredFile() {
		file, err := s.fileRepo.GetByID(ctx, *src.FileID)
		if err != nil {
			return nil, err
		}
		dup, err := s.duplicateStoredFile(ctx, user, file)
		if err != nil {
			return nil, err
		}
		clone.FileID = &dup.ID
		clone.Size = dup.Size
	}

	if err := s.itemRepo.Create(ctx, clone); err != nil {
		return nil, err
	}

	if src.IsFolder() {
		children, err := s.itemRepo.ListChildren(ctx, src.ID)
		if err != nil {
			return nil, err
		}
		var total int64
		for i := range children {
			child := children[i]
			childCopy, err := s.copySubtree(ctx, user, &child, &clone.ID, clone.RootID, child.Name, false)
			if err != nil {
				return nil, err
			}
			total += childCopy.Size
		}
		if total > 0 {
			if err := s.itemRepo.AdjustSize(ctx, clone.ID, total); err != nil {
				return nil, err
			}
			clone.Size = total
		}
	}

	return clone, nil
}

// duplicateStoredFile copies a blob and its record for a new owner.
func (s *ItemService) duplicateStoredFile(ctx context.Context, user models.User, file *models.StoredFile) (*models.StoredFile, error) {
	src, err := s.store.Get(ctx, file.Key)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	key := newStorageKey(user.ID)
	size, err := s.store.Put(ctx, key, src)
	if err != nil {
		return nil, err
	}

	dup := &models.StoredFile{
		ID:        uuid.NewString(),
		OwnerID:   user.ID,
		Key:       key,
		Filename:  file.Filename,
		MimeType:  file.MimeType,
		Size:      size,
		Scheme:    s.settings.Current().FileScheme,
		CreatedAt: time.Now(),
	}
	if err := s.fileRepo.Create(ctx, dup); err != nil {
		// Don't strand the blob if the record cannot be written.
		_ = s.store.Delete(ctx, key)
		return nil, err
	}

	return dup, nil
}

// isDescendant reports whether candidate sits inside ancestor's subtree.
func (s *ItemService) isDescendant(ctx context.Context, candidateID, ancestorID string) (bool, error) {
	current := candidateID
	for {
		item, err := s.itemRepo.GetByID(ctx, current)
		if err != nil {
			return false, err
		}
		if item.ParentID == nil {
			return false, nil
		}
		if *item.ParentID == ancestorID {
			return true, nil
		}
		current = *item.ParentID
	}
}

// lockGroup try-locks a set of IDs, returning an unlock function for the
// ones it took. On any failure everything already taken is released.
func (s *ItemService) lockGroup(ids []string) (bool, func()) {
	var taken []string
	release := func() {
		for _, id := range taken {
			s.unlock(id)
		}
	}

	for _, id := range ids {
		if !s.tryLock(id) {
			release()
			return false, func() {}
		}
		taken = append(taken, id)
	}
	return true, release
}

// moveLockIDs collects the distinct lock keys a move touches: the item,
// its current parent, and the destination.
func moveLockIDs(item *models.Item, dest *models.Item) []string {
	seen := map[string]struct{}{item.ID: {}}
	ids := []string{item.ID}

	if item.ParentID != nil {
		if _, ok := seen[*item.ParentID]; !ok {
			seen[*item.ParentID] = struct{}{}
			ids = append(ids, *item.ParentID)
		}
	}
	if dest != nil {
		if _, ok := seen[dest.ID]; !ok {
			seen[dest.ID] = struct{}{}
			ids = append(ids, dest.ID)
		}
	}
	return ids
}
